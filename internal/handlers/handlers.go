// handlers.go
//
// A compliance report review and analysis-agent gateway service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reportdesk.
// reportdesk is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reportdesk is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reportdesk.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/agents"
	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/confirm"
	"github.com/localnerve/reportdesk/internal/identity"
	"github.com/localnerve/reportdesk/internal/middleware"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/localnerve/reportdesk/internal/review"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/localnerve/reportdesk/internal/types"
	"github.com/localnerve/reportdesk/internal/utils"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by every handler
type Deps struct {
	Config  *config.Config
	Store   store.Store
	Auth    *identity.AppContext
	Reviews *review.Service
	Uploads *agents.Service
	Confirm *confirm.Flow
	Hub     *realtime.Hub
	// Sites is the live active-site directory; nil falls back to the store
	Sites *realtime.View[models.Site]
	Log   *zap.Logger
}

// status maps domain errors onto HTTP status codes
func status(err error) int {
	var (
		rpcErr    *store.RPCError
		httpErr   *store.HTTPError
		uploadErr *agents.UploadError
	)
	switch {
	case errors.As(err, &rpcErr):
		return fiber.StatusBadRequest
	case errors.As(err, &uploadErr), errors.As(err, &httpErr):
		return fiber.StatusBadGateway
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, confirm.ErrNotFound),
		errors.Is(err, agents.ErrUnknownAgent):
		return fiber.StatusNotFound
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidSession):
		return fiber.StatusUnauthorized
	case errors.Is(err, confirm.ErrNotAllowed),
		errors.Is(err, agents.ErrSiteNotAssigned):
		return fiber.StatusForbidden
	case errors.Is(err, confirm.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, identity.ErrUnsupported):
		return fiber.StatusNotImplemented
	case errors.Is(err, identity.ErrDisposed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, identity.ErrEmailRequired),
		errors.Is(err, identity.ErrPasswordMismatch),
		errors.Is(err, identity.ErrPasswordTooShort),
		errors.Is(err, identity.ErrResetLinkInvalid),
		errors.Is(err, identity.ErrResetLinkMissing),
		errors.Is(err, review.ErrReasonRequired),
		errors.Is(err, confirm.ErrUnknownKind):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// fail sends err in the error envelope. RPC and webhook failures keep their own messages.
func fail(c *fiber.Ctx, err error, errorType string) error {
	if ce, ok := types.AsCustomError(err); ok {
		return utils.ErrorResponse(c, ce.Message, ce.Code, ce.Type)
	}
	return utils.ErrorResponse(c, err.Error(), status(err), errorType)
}

// badRequest is the envelope for unreadable or invalid request bodies
func badRequest(c *fiber.Ctx, err error, errorType string) error {
	if err == nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, errorType)
	}
	return utils.ErrorResponse(c, utils.ValidationMessage(err), fiber.StatusBadRequest, errorType)
}

// caller returns the signed in application user; a session without a users row is forbidden
func caller(c *fiber.Ctx) (*models.User, error) {
	user := middleware.CurrentUser(c)
	if user == nil {
		return nil, types.NewError(fiber.StatusForbidden, "User profile not found", "auth.profile")
	}
	return user, nil
}

// ErrorHandler is the application's global error handler
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	if ce, ok := types.AsCustomError(err); ok {
		code = ce.Code
		message = ce.Message
		errorType = ce.Type
	}

	return c.Status(code).JSON(utils.ErrorResponseStruct{
		Status:    code,
		Message:   message,
		Ok:        false,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		URL:       c.OriginalURL(),
		Type:      errorType,
	})
}

// NotFound is the catch-all 404 handler
func NotFound(c *fiber.Ctx) error {
	return utils.NotFoundResponse(c, "[404] Resource Not Found")
}
