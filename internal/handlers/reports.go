package handlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/confirm"
	"github.com/localnerve/reportdesk/internal/export"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/pagination"
	"github.com/localnerve/reportdesk/internal/review"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/localnerve/reportdesk/internal/types"
	"github.com/localnerve/reportdesk/internal/utils"
)

// ReportHandler serves report listings and reviews
type ReportHandler struct {
	Deps
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// ReportList is one page of the caller's reports
type ReportList struct {
	Reports []models.Report  `json:"reports"`
	Page    pagination.Page  `json:"pagination"`
	State   pagination.State `json:"state"`
	// Query is the shareable query string for this page and filter
	Query string        `json:"query"`
	Sites []models.Site `json:"sites"`
}

// activeSites reads the live site directory, or the store when there is none
func (h *ReportHandler) activeSites(ctx context.Context) ([]models.Site, error) {
	if h.Sites != nil {
		return h.Sites.Items(), nil
	}
	return h.Store.ListSites(ctx, true)
}

// assignedSites lists the site ids a user is assigned to
func assignedSites(ctx context.Context, s store.Store, userID string) ([]string, error) {
	assignments, err := s.ListUserSites(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(assignments))
	for _, us := range assignments {
		ids = append(ids, us.SiteID)
	}
	return ids, nil
}

// scope builds the listing query for a caller: users see their own uploads, reviewers the
// reports of their assigned sites, admins every site. site narrows reviewers and admins.
func (h *ReportHandler) scope(ctx context.Context, user *models.User, site string) (store.ReportQuery, error) {
	switch user.NormalizedRole() {
	case models.RoleAdmin:
		if site == "" || site == pagination.AllSites {
			return store.ReportQuery{}, nil
		}
		return store.ReportQuery{SiteIDs: []string{site}}, nil
	case models.RoleReviewer:
		assigned, err := assignedSites(ctx, h.Store, user.ID)
		if err != nil {
			return store.ReportQuery{}, err
		}
		return store.ReportQuery{SiteIDs: pagination.ScopeSites(assigned, site)}, nil
	}
	return store.ReportQuery{UploadedBy: user.ID}, nil
}

// visibleSites is the site filter list shown to a caller
func (h *ReportHandler) visibleSites(ctx context.Context, user *models.User) ([]models.Site, error) {
	sites, err := h.activeSites(ctx)
	if err != nil {
		return nil, err
	}
	if user.NormalizedRole() != models.RoleReviewer {
		return sites, nil
	}
	assigned, err := assignedSites(ctx, h.Store, user.ID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Site, 0, len(assigned))
	for _, s := range sites {
		for _, id := range assigned {
			if s.ID == id {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

// canView applies the listing scope to a single report
func (h *ReportHandler) canView(ctx context.Context, user *models.User, r *models.Report) (bool, error) {
	switch user.NormalizedRole() {
	case models.RoleAdmin:
		return true, nil
	case models.RoleReviewer:
		if r.SiteID == nil {
			return false, nil
		}
		assigned, err := assignedSites(ctx, h.Store, user.ID)
		if err != nil {
			return false, err
		}
		for _, id := range assigned {
			if id == *r.SiteID {
				return true, nil
			}
		}
		return false, nil
	}
	return r.UploadedBy == user.ID, nil
}

// report loads a report the caller may see; others look like missing reports
func (h *ReportHandler) report(c *fiber.Ctx, user *models.User, id string) (*models.Report, error) {
	r, err := h.Store.GetReport(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	ok, err := h.canView(c.UserContext(), user, r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

// List godoc
// @Summary List reports
// @Description One page of the caller's reports, newest first
// @Tags Reports
// @Produce json
// @Param page query int false "Page number"
// @Param site query string false "Site id or all"
// @Success 200 {object} ReportList
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /reports [get]
func (h *ReportHandler) List(c *fiber.Ctx) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	values, _ := url.ParseQuery(string(c.Context().QueryArgs().QueryString()))
	state := pagination.FromQuery(values)
	perPage := h.Config.ReportsPerPage

	q, err := h.scope(ctx, user, state.Site)
	if err != nil {
		return fail(c, err, "reports.list")
	}
	q.Limit = perPage
	q.Offset = (state.Page - 1) * perPage

	result, err := h.Store.ListReports(ctx, q)
	if err != nil {
		return fail(c, err, "reports.list")
	}
	page := pagination.Compute(result.Total, perPage, state.Page)
	if page.Page != state.Page {
		// the requested page ran past the end; serve the last one instead
		state.Page = page.Page
		q.Offset = page.Offset
		if result, err = h.Store.ListReports(ctx, q); err != nil {
			return fail(c, err, "reports.list")
		}
	}

	sites, err := h.visibleSites(ctx, user)
	if err != nil {
		return fail(c, err, "reports.list")
	}

	return c.Status(fiber.StatusOK).JSON(ReportList{
		Reports: result.Reports,
		Page:    page,
		State:   state,
		Query:   state.Encode(),
		Sites:   sites,
	})
}

// ExportXLSX godoc
// @Summary Export reports
// @Description The caller's reports for the site filter as an xlsx workbook
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param site query string false "Site id or all"
// @Success 200 {file} file
// @Router /reports/export.xlsx [get]
func (h *ReportHandler) ExportXLSX(c *fiber.Ctx) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	q, err := h.scope(ctx, user, c.Query("site", pagination.AllSites))
	if err != nil {
		return fail(c, err, "reports.export")
	}
	result, err := h.Store.ListReports(ctx, q)
	if err != nil {
		return fail(c, err, "reports.export")
	}
	sites, err := h.Store.ListSites(ctx, false)
	if err != nil {
		return fail(c, err, "reports.export")
	}

	out, err := export.ReportsXLSX(result.Reports, sites)
	if err != nil {
		return fail(c, err, "reports.export")
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Attachment(export.ReportsFileName(time.Now()))
	return c.Status(fiber.StatusOK).Send(out)
}

// Get godoc
// @Summary Get a report
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} models.Report
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *fiber.Ctx) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	r, err := h.report(c, user, c.Params("id"))
	if err != nil {
		return fail(c, err, "reports.get")
	}
	return c.Status(fiber.StatusOK).JSON(r)
}

// reviewable loads the report for a review action
func (h *ReportHandler) reviewable(c *fiber.Ctx) (*models.User, *models.Report, error) {
	user, err := caller(c)
	if err != nil {
		return nil, nil, err
	}
	if !user.NormalizedRole().CanReview() {
		return nil, nil, types.NewError(fiber.StatusForbidden, "Insufficient role", "auth.role")
	}
	r, err := h.report(c, user, c.Params("id"))
	if err != nil {
		return nil, nil, err
	}
	return user, r, nil
}

// ApproveDomain godoc
// @Summary Approve a domain
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Param domainId path string true "Domain ID"
// @Success 200 {object} utils.MessageResponseStruct
// @Router /reports/{id}/domains/{domainId}/approve [post]
func (h *ReportHandler) ApproveDomain(c *fiber.Ctx) error {
	user, r, err := h.reviewable(c)
	if err != nil {
		return fail(c, err, "reports.review")
	}
	if err := h.Reviews.ApproveDomain(c.UserContext(), r.ID, c.Params("domainId"), user.ID); err != nil {
		return fail(c, err, "reports.review")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Domain approved!", nil)
}

// RejectDomain godoc
// @Summary Reject a domain
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param domainId path string true "Domain ID"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /reports/{id}/domains/{domainId}/reject [post]
func (h *ReportHandler) RejectDomain(c *fiber.Ctx) error {
	var body rejectRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, nil, "reports.review")
	}
	user, r, err := h.reviewable(c)
	if err != nil {
		return fail(c, err, "reports.review")
	}
	if err := h.Reviews.RejectDomain(c.UserContext(), r.ID, c.Params("domainId"), user.ID, body.Reason); err != nil {
		return fail(c, err, "reports.review")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Domain rejected!", nil)
}

// ApproveAll godoc
// @Summary Approve a report and all its domains
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} utils.MessageResponseStruct
// @Router /reports/{id}/approve [post]
func (h *ReportHandler) ApproveAll(c *fiber.Ctx) error {
	user, r, err := h.reviewable(c)
	if err != nil {
		return fail(c, err, "reports.review")
	}
	if err := h.Reviews.ApproveAll(c.UserContext(), r.ID, user.ID); err != nil {
		return fail(c, err, "reports.review")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Report and all domains approved!", nil)
}

// RejectAll godoc
// @Summary Reject a report and all its domains
// @Description Returns a pending confirmation; the rejection runs once it is confirmed
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Success 202 {object} confirm.Action
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /reports/{id}/reject [post]
func (h *ReportHandler) RejectAll(c *fiber.Ctx) error {
	var body rejectRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, nil, "reports.review")
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		return fail(c, review.ErrReasonRequired, "reports.review")
	}
	user, r, err := h.reviewable(c)
	if err != nil {
		return fail(c, err, "reports.review")
	}

	action, err := h.Confirm.Request(c.UserContext(), confirm.KindRejectAll, user.ID,
		fmt.Sprintf("This will reject all domains and the entire report %q.", r.Filename),
		map[string]string{"report_id": r.ID, "reason": reason})
	if err != nil {
		return fail(c, err, "reports.review")
	}
	return c.Status(fiber.StatusAccepted).JSON(action)
}
