package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/agents"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/utils"
	"go.uber.org/zap"
)

// AgentHandler serves the agent catalogue, uploads and bug reports
type AgentHandler struct {
	Deps
}

// List godoc
// @Summary List analysis agents
// @Tags Agents
// @Produce json
// @Success 200 {array} config.Agent
// @Router /agents [get]
func (h *AgentHandler) List(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.Uploads.Registry().List())
}

// Upload godoc
// @Summary Upload a document to an agent
// @Description Forwards the file to the agent webhook and returns its normalized answer.
// @Description With site_id the result is also recorded as a report.
// @Tags Agents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Agent ID"
// @Param file formData file true "Document"
// @Param site_id formData string false "Site to record the report under"
// @Success 200 {object} agents.Outcome
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 502 {object} utils.ErrorResponseStruct
// @Router /agents/{id}/upload [post]
func (h *AgentHandler) Upload(c *fiber.Ctx) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	header, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, "Please select a file to upload", fiber.StatusBadRequest, "agents.upload")
	}
	file, err := header.Open()
	if err != nil {
		return fail(c, err, "agents.upload")
	}
	defer file.Close()

	up := agents.Upload{
		AgentID:    c.Params("id"),
		FileName:   header.Filename,
		Size:       header.Size,
		Body:       file,
		UploadedBy: user.ID,
		SiteID:     c.FormValue("site_id"),
	}
	if up.SiteID != "" && user.NormalizedRole() != models.RoleAdmin {
		if up.AllowedSites, err = assignedSites(ctx, h.Store, user.ID); err != nil {
			return fail(c, err, "agents.upload")
		}
	}

	out, err := h.Uploads.Process(ctx, up)
	if err != nil {
		if out != nil {
			// the agent answered; only the bookkeeping failed
			h.Log.Warn("returning agent answer without a recorded report", zap.Error(err))
			return c.Status(fiber.StatusOK).JSON(out)
		}
		var upErr *agents.UploadError
		if errors.As(err, &upErr) {
			return utils.ErrorResponse(c, upErr.Message, fiber.StatusBadGateway, "agents.upload")
		}
		return fail(c, err, "agents.upload")
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// BugReport godoc
// @Summary Report a problem with an agent's output
// @Tags Agents
// @Accept json
// @Produce json
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 502 {object} utils.ErrorResponseStruct
// @Router /bug-reports [post]
func (h *AgentHandler) BugReport(c *fiber.Ctx) error {
	var body agents.BugReport
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, nil, "agents.bugReport")
	}
	if err := body.Validate(); err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusBadRequest, "agents.bugReport")
	}

	traceID, err := h.Uploads.Client().SubmitBugReport(c.UserContext(), body)
	if err != nil {
		return fail(c, err, "agents.bugReport")
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Thanks! Your report was logged.", fiber.Map{"trace_id": traceID})
}
