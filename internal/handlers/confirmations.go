package handlers

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/confirm"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/localnerve/reportdesk/internal/utils"
)

// ConfirmHandler confirms or cancels pending destructive actions
type ConfirmHandler struct {
	Deps
}

// confirmRoles are the roles the confirming caller must still hold for each kind
var confirmRoles = map[confirm.Kind][]models.Role{
	confirm.KindDeleteUser:           {models.RoleAdmin},
	confirm.KindRemoveSiteAssignment: {models.RoleAdmin},
	confirm.KindRejectAll:            {models.RoleReviewer, models.RoleAdmin},
}

func holdsRole(user *models.User, roles []models.Role) bool {
	role := user.NormalizedRole()
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// RegisterActions binds the confirmable kinds to the operations they guard
func RegisterActions(flow *confirm.Flow, d Deps) {
	flow.Handle(confirm.KindDeleteUser, func(ctx context.Context, a confirm.Action) (string, error) {
		result, err := d.Store.DeleteUserCompletely(ctx, a.Params["user_id"])
		if err != nil {
			return "", err
		}
		if err := result.Err(store.ProcDeleteUserCompletely, "Failed to delete user"); err != nil {
			return "", err
		}
		return fmt.Sprintf("User %q deleted successfully!", a.Params["email"]), nil
	})

	flow.Handle(confirm.KindRemoveSiteAssignment, func(ctx context.Context, a confirm.Action) (string, error) {
		result, err := d.Store.RemoveSiteAssignment(ctx, a.Params["user_id"], a.Params["site_id"])
		if err != nil {
			return "", err
		}
		if err := result.Err(store.ProcRemoveSiteAssignment, "Failed to remove site assignment"); err != nil {
			return "", err
		}
		return "Site assignment removed", nil
	})

	flow.Handle(confirm.KindRejectAll, func(ctx context.Context, a confirm.Action) (string, error) {
		if err := d.Reviews.RejectAll(ctx, a.Params["report_id"], a.RequestedBy, a.Params["reason"]); err != nil {
			return "", err
		}
		return "Report and all domains rejected!", nil
	})
}

// Accept godoc
// @Summary Confirm a pending action
// @Description Runs the action once; the token is spent even when the action fails
// @Tags Confirmations
// @Produce json
// @Param token path string true "Confirmation token"
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /confirmations/{token} [post]
func (h *ConfirmHandler) Accept(c *fiber.Ctx) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	token := c.Params("token")

	// the role and report scope are checked again as of now, not as of the request
	pending, err := h.Deps.Confirm.Pending(ctx, token, user.ID)
	if err != nil {
		return fail(c, err, "confirmations.confirm")
	}
	if !holdsRole(user, confirmRoles[pending.Kind]) {
		return utils.ErrorResponse(c, "Insufficient role", fiber.StatusForbidden, "auth.role")
	}
	if pending.Kind == confirm.KindRejectAll {
		reports := &ReportHandler{Deps: h.Deps}
		if _, err := reports.report(c, user, pending.Params["report_id"]); err != nil {
			return fail(c, err, "confirmations.confirm")
		}
	}

	result, err := h.Deps.Confirm.Confirm(ctx, token, user.ID)
	if err != nil {
		return fail(c, err, "confirmations.confirm")
	}
	return utils.MessageResponse(c, fiber.StatusOK, result.Message, fiber.Map{"kind": result.Kind})
}

// Cancel godoc
// @Summary Cancel a pending action
// @Tags Confirmations
// @Produce json
// @Param token path string true "Confirmation token"
// @Success 204
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /confirmations/{token} [delete]
func (h *ConfirmHandler) Cancel(c *fiber.Ctx) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	if err := h.Deps.Confirm.Cancel(c.UserContext(), c.Params("token"), user.ID); err != nil {
		return fail(c, err, "confirmations.cancel")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
