package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/export"
	"github.com/localnerve/reportdesk/internal/normalize"
	"github.com/localnerve/reportdesk/internal/types"
	"github.com/localnerve/reportdesk/internal/utils"
)

// ExportHandler renders agent answers as PDF downloads
type ExportHandler struct {
	Deps
	Reports *ReportHandler
}

// exportRequest names the answer to render: an inline agent response, or a stored report's analysis
type exportRequest struct {
	FileName  string            `json:"file_name"`
	Response  json.RawMessage   `json:"response"`
	ReportID  string            `json:"report_id"`
	ViewMode  string            `json:"view_mode"`
	ViewModes map[string]string `json:"view_modes"`
}

func (r exportRequest) options() export.Options {
	opts := export.Options{FileName: r.FileName, Mode: export.ParseViewMode(r.ViewMode)}
	if len(r.ViewModes) > 0 {
		opts.Modes = make(map[string]export.ViewMode, len(r.ViewModes))
		for k, v := range r.ViewModes {
			opts.Modes[k] = export.ParseViewMode(v)
		}
	}
	return opts
}

// envelope resolves the request to a normalized answer
func (h *ExportHandler) envelope(c *fiber.Ctx, body *exportRequest) (normalize.Envelope, error) {
	if body.ReportID == "" {
		if len(body.Response) == 0 {
			return normalize.Envelope{}, types.NewError(fiber.StatusBadRequest, "A response or report_id is required", "exports.input")
		}
		return normalize.Normalize(body.Response), nil
	}

	user, err := caller(c)
	if err != nil {
		return normalize.Envelope{}, err
	}
	r, err := h.Reports.report(c, user, body.ReportID)
	if err != nil {
		return normalize.Envelope{}, err
	}
	if body.FileName == "" {
		body.FileName = r.Filename
	}

	var raw interface{}
	if err := r.Analysis.Decode(&raw); err != nil {
		return normalize.Envelope{}, err
	}
	return normalize.Normalize(raw), nil
}

func (h *ExportHandler) read(c *fiber.Ctx) (*exportRequest, normalize.Envelope, error) {
	var body exportRequest
	if err := c.BodyParser(&body); err != nil {
		return nil, normalize.Envelope{}, err
	}
	env, err := h.envelope(c, &body)
	return &body, env, err
}

func sendPDF(c *fiber.Ctx, name string, out []byte) error {
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Attachment(name)
	return c.Status(fiber.StatusOK).Send(out)
}

// AgentsPDF godoc
// @Summary Export agent responses
// @Tags Exports
// @Accept json
// @Produce application/pdf
// @Success 200 {file} file
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /exports/agents.pdf [post]
func (h *ExportHandler) AgentsPDF(c *fiber.Ctx) error {
	body, env, err := h.read(c)
	if err != nil {
		if body == nil {
			return badRequest(c, nil, "exports.agents")
		}
		return fail(c, err, "exports.agents")
	}

	keys := normalize.AgentKeys(env, h.Uploads.Registry().Order())
	if len(keys) == 0 {
		return utils.ErrorResponse(c, "No agent responses to export", fiber.StatusBadRequest, "exports.agents")
	}
	out, err := export.AgentResponsesPDF(env, keys, body.options())
	if err != nil {
		return fail(c, err, "exports.agents")
	}
	return sendPDF(c, export.AgentFileName(body.FileName), out)
}

// DomainsPDF godoc
// @Summary Export domain-wise responses
// @Tags Exports
// @Accept json
// @Produce application/pdf
// @Success 200 {file} file
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /exports/domains.pdf [post]
func (h *ExportHandler) DomainsPDF(c *fiber.Ctx) error {
	body, env, err := h.read(c)
	if err != nil {
		if body == nil {
			return badRequest(c, nil, "exports.domains")
		}
		return fail(c, err, "exports.domains")
	}

	domains := normalize.DomainKeys(env, h.Uploads.Registry().Domains())
	if len(domains) == 0 {
		return utils.ErrorResponse(c, "No domain responses to export", fiber.StatusBadRequest, "exports.domains")
	}
	out, err := export.DomainResponsesPDF(env, domains, body.options())
	if err != nil {
		return fail(c, err, "exports.domains")
	}
	return sendPDF(c, export.DomainFileName(body.FileName), out)
}
