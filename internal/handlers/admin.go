package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/agents"
	"github.com/localnerve/reportdesk/internal/confirm"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/pagination"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/localnerve/reportdesk/internal/utils"
)

// AdminHandler serves user and site administration
type AdminHandler struct {
	Deps
}

type createUserRequest struct {
	Email string `json:"email" validate:"required,email"`
	// Password is generated when empty
	Password string   `json:"password" validate:"omitempty,min=6"`
	Role     string   `json:"role" validate:"required,oneof=user reviewer admin"`
	SiteIDs  []string `json:"site_ids" validate:"dive,required"`
}

type updateUserRequest struct {
	Role    string   `json:"role" validate:"required,oneof=user reviewer admin"`
	SiteIDs []string `json:"site_ids" validate:"dive,required"`
}

type createSiteRequest struct {
	Name        string `json:"name" validate:"required"`
	DisplayName string `json:"display_name"`
}

// UserList is one page of users with their site assignments
type UserList struct {
	Users []models.User   `json:"users"`
	Page  pagination.Page `json:"pagination"`
}

// Stats are the admin dashboard counters
type Stats struct {
	TotalUsers   int `json:"total_users"`
	Admins       int `json:"admins"`
	Reviewers    int `json:"reviewers"`
	RegularUsers int `json:"regular_users"`
	ActiveSites  int `json:"active_sites"`
}

// ComputeStats counts users by role and the active sites
func ComputeStats(users []models.User, activeSites []models.Site) Stats {
	s := Stats{TotalUsers: len(users), ActiveSites: len(activeSites)}
	for i := range users {
		switch users[i].NormalizedRole() {
		case models.RoleAdmin:
			s.Admins++
		case models.RoleReviewer:
			s.Reviewers++
		case models.RoleUser:
			s.RegularUsers++
		}
	}
	return s
}

// siteNames resolves site ids to display names for the welcome mail
func (h *AdminHandler) siteNames(ctx context.Context, ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	sites, err := h.Store.ListSites(ctx, false)
	if err != nil {
		return []string{}
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, models.SiteName(id, sites))
	}
	return names
}

// ListUsers godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Param page query int false "Page number"
// @Success 200 {object} UserList
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.Store.ListUsers(c.UserContext())
	if err != nil {
		return fail(c, err, "admin.users")
	}
	page := pagination.Compute(int64(len(users)), h.Config.UsersPerPage, c.QueryInt("page", 1))
	return c.Status(fiber.StatusOK).JSON(UserList{
		Users: pagination.Slice(users, page),
		Page:  page,
	})
}

// CreateUser godoc
// @Summary Create a user
// @Description Creates the user with site assignments and sends the welcome mail
// @Tags Admin
// @Accept json
// @Produce json
// @Success 201 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /admin/users [post]
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	admin, err := caller(c)
	if err != nil {
		return err
	}
	var body createUserRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, nil, "admin.createUser")
	}
	body.Email = strings.TrimSpace(body.Email)
	if err := utils.Validate(&body); err != nil {
		return badRequest(c, err, "admin.createUser")
	}

	if body.Password == "" {
		if body.Password, err = agents.GeneratePassword(); err != nil {
			return fail(c, err, "admin.createUser")
		}
	}
	role, _ := models.ParseRole(body.Role)
	ctx := c.UserContext()

	result, err := h.Store.CreateUserWithSites(ctx, store.CreateUserInput{
		Email:      body.Email,
		Password:   body.Password,
		Role:       role,
		SiteIDs:    body.SiteIDs,
		AssignedBy: admin.ID,
	})
	if err != nil {
		return fail(c, err, "admin.createUser")
	}
	if err := result.Err(store.ProcCreateUserWithSites, "Failed to create user"); err != nil {
		return fail(c, err, "admin.createUser")
	}

	sent := h.Uploads.Client().SendConfirmation(ctx, agents.Confirmation{
		Email:         body.Email,
		Password:      body.Password,
		Role:          string(role),
		SitesAssigned: h.siteNames(ctx, body.SiteIDs),
	})

	msg := "User created successfully! Email: " + body.Email
	if len(body.SiteIDs) > 0 {
		msg += fmt.Sprintf(" with %d site(s) assigned", result.SitesAssigned.Int())
	}
	if sent {
		msg += " - Confirmation email sent!"
	} else {
		msg += " - Warning: Could not send confirmation email"
	}

	return utils.MessageResponse(c, fiber.StatusCreated, msg, fiber.Map{
		"user_id":        result.UserID,
		"sites_assigned": result.SitesAssigned.Int(),
		"email_sent":     sent,
	})
}

// UpdateUser godoc
// @Summary Update a user's role and sites
// @Description The site list replaces the current assignments
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /admin/users/{id} [put]
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	var body updateUserRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, nil, "admin.updateUser")
	}
	if err := utils.Validate(&body); err != nil {
		return badRequest(c, err, "admin.updateUser")
	}
	role, _ := models.ParseRole(body.Role)

	result, err := h.Store.UpdateUserRoleAndSites(c.UserContext(), store.UpdateUserInput{
		UserID:  c.Params("id"),
		Role:    role,
		SiteIDs: body.SiteIDs,
	})
	if err != nil {
		return fail(c, err, "admin.updateUser")
	}
	if err := result.Err(store.ProcUpdateUserRoleAndSites, "Failed to update user"); err != nil {
		return fail(c, err, "admin.updateUser")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "User updated successfully!", result)
}

// DeleteUser godoc
// @Summary Delete a user
// @Description Returns a pending confirmation; the user is deleted once it is confirmed
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 202 {object} confirm.Action
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	admin, err := caller(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	target, err := h.Store.GetUser(ctx, c.Params("id"))
	if err != nil {
		return fail(c, err, "admin.deleteUser")
	}

	action, err := h.Confirm.Request(ctx, confirm.KindDeleteUser, admin.ID,
		fmt.Sprintf("Are you sure you want to delete user %q? This action cannot be undone.", target.Email),
		map[string]string{"user_id": target.ID, "email": target.Email})
	if err != nil {
		return fail(c, err, "admin.deleteUser")
	}
	return c.Status(fiber.StatusAccepted).JSON(action)
}

// RemoveSiteAssignment godoc
// @Summary Remove a site assignment
// @Description Returns a pending confirmation; the assignment is removed once it is confirmed
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Param siteId path string true "Site ID"
// @Success 202 {object} confirm.Action
// @Router /admin/users/{id}/sites/{siteId} [delete]
func (h *AdminHandler) RemoveSiteAssignment(c *fiber.Ctx) error {
	admin, err := caller(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	target, err := h.Store.GetUser(ctx, c.Params("id"))
	if err != nil {
		return fail(c, err, "admin.removeSite")
	}
	siteID := c.Params("siteId")
	sites, err := h.Store.ListSites(ctx, false)
	if err != nil {
		return fail(c, err, "admin.removeSite")
	}

	action, err := h.Confirm.Request(ctx, confirm.KindRemoveSiteAssignment, admin.ID,
		fmt.Sprintf("Remove %q from user %q?", models.SiteName(siteID, sites), target.Email),
		map[string]string{"user_id": target.ID, "site_id": siteID})
	if err != nil {
		return fail(c, err, "admin.removeSite")
	}
	return c.Status(fiber.StatusAccepted).JSON(action)
}

// ListSites godoc
// @Summary List sites
// @Tags Admin
// @Produce json
// @Param active query bool false "Only active sites"
// @Success 200 {array} models.Site
// @Router /admin/sites [get]
func (h *AdminHandler) ListSites(c *fiber.Ctx) error {
	sites, err := h.Store.ListSites(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return fail(c, err, "admin.sites")
	}
	return c.Status(fiber.StatusOK).JSON(sites)
}

// CreateSite godoc
// @Summary Create a site
// @Tags Admin
// @Accept json
// @Produce json
// @Success 201 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /admin/sites [post]
func (h *AdminHandler) CreateSite(c *fiber.Ctx) error {
	var body createSiteRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, nil, "admin.createSite")
	}
	if err := utils.Validate(&body); err != nil {
		return badRequest(c, err, "admin.createSite")
	}

	result, err := h.Store.CreateSite(c.UserContext(), store.CreateSiteInput{Name: body.Name, DisplayName: body.DisplayName})
	if err != nil {
		return fail(c, err, "admin.createSite")
	}
	if err := result.Err(store.ProcCreateSite, "Failed to create site"); err != nil {
		return fail(c, err, "admin.createSite")
	}
	return utils.MessageResponse(c, fiber.StatusCreated, "Site created successfully!", result)
}

// Stats godoc
// @Summary Dashboard counters
// @Tags Admin
// @Produce json
// @Success 200 {object} Stats
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	users, err := h.Store.ListUsers(ctx)
	if err != nil {
		return fail(c, err, "admin.stats")
	}
	sites, err := h.Store.ListSites(ctx, true)
	if err != nil {
		return fail(c, err, "admin.stats")
	}
	return c.Status(fiber.StatusOK).JSON(ComputeStats(users, sites))
}
