package agents

import (
	"context"
	"errors"
	"io"

	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/normalize"
	"github.com/localnerve/reportdesk/internal/store"
	"go.uber.org/zap"
)

var (
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrSiteNotAssigned = errors.New("site is not assigned to you")
)

// Upload is one document headed for an agent
type Upload struct {
	AgentID    string
	FileName   string
	Size       int64
	Body       io.Reader
	UploadedBy string
	// SiteID records the result as a report for that site; empty skips bookkeeping
	SiteID string
	// AllowedSites are the sites the uploader may record reports for; nil allows any
	AllowedSites []string
}

// Outcome is an agent answer after normalization
type Outcome struct {
	Agent    config.Agent       `json:"agent"`
	Variant  normalize.Variant  `json:"variant"`
	Envelope normalize.Envelope `json:"response"`
	Keys     []string           `json:"agent_keys"`
	Domains  []string           `json:"domain_keys"`
	Summary  normalize.Summary  `json:"summary"`
	Report   *models.Report     `json:"report,omitempty"`
}

// Service forwards documents and records their results
type Service struct {
	client   *Client
	registry *Registry
	store    store.Store
	log      *zap.Logger
}

// NewService creates an upload Service
func NewService(client *Client, registry *Registry, s store.Store, log *zap.Logger) *Service {
	return &Service{client: client, registry: registry, store: s, log: log}
}

// Registry returns the agent catalogue in use
func (s *Service) Registry() *Registry {
	return s.registry
}

// Client returns the webhook client
func (s *Service) Client() *Client {
	return s.client
}

func allowed(siteID string, sites []string) bool {
	if sites == nil {
		return true
	}
	for _, id := range sites {
		if id == siteID {
			return true
		}
	}
	return false
}

// Process forwards the upload, normalizes the answer and, when a site is given, records a report
// with one pending domain per domain-wise section.
func (s *Service) Process(ctx context.Context, up Upload) (*Outcome, error) {
	agent, ok := s.registry.Find(up.AgentID)
	if !ok {
		return nil, ErrUnknownAgent
	}
	if up.SiteID != "" && !allowed(up.SiteID, up.AllowedSites) {
		return nil, ErrSiteNotAssigned
	}

	raw, err := s.client.Upload(ctx, agent, up.FileName, up.Body)
	if err != nil {
		return nil, err
	}

	parsed := normalize.Parse(raw)
	keys := normalize.AgentKeys(parsed.Envelope, s.registry.Order())
	out := &Outcome{
		Agent:    agent,
		Variant:  parsed.Variant,
		Envelope: parsed.Envelope,
		Keys:     keys,
		Domains:  normalize.DomainKeys(parsed.Envelope, s.registry.Domains()),
		Summary:  normalize.Summarize(parsed.Envelope, keys),
	}

	if up.SiteID == "" {
		return out, nil
	}

	analysis, err := models.NewJSON(parsed.Envelope)
	if err != nil {
		return nil, err
	}
	siteID := up.SiteID
	report := &models.Report{
		Filename:   up.FileName,
		SiteID:     &siteID,
		UploadedBy: up.UploadedBy,
		FileSize:   up.Size,
		AgentID:    agent.ID,
		Analysis:   analysis,
		Status:     models.ReportQueued,
	}
	if len(out.Domains) > 0 {
		report.Status = models.ReportProcessing
	}

	if err := s.store.CreateReport(ctx, report, out.Domains); err != nil {
		// the agent answer is still useful to the caller
		s.log.Error("failed to record report", zap.String("file", up.FileName), zap.Error(err))
		return out, err
	}
	out.Report = report
	return out, nil
}
