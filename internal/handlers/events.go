package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/localnerve/reportdesk/internal/utils"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const keepAlive = 25 * time.Second

// EventsHandler streams change events to signed in clients
type EventsHandler struct {
	Deps
}

// memberTables are the tables every role may follow; admins may follow any
var memberTables = []string{store.TableReports, store.TableDomains, store.TableSites}

// eventTables reads ?tables=a,b and drops what the role may not see
func eventTables(raw string, role models.Role) []string {
	allowed := map[string]bool{}
	for _, t := range memberTables {
		allowed[t] = true
	}
	if role == models.RoleAdmin {
		allowed[store.TableUsers] = true
		allowed[store.TableUserSites] = true
	}

	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" && allowed[t] {
			out = append(out, t)
		}
	}
	if len(out) == 0 && strings.TrimSpace(raw) == "" {
		for t := range allowed {
			out = append(out, t)
		}
	}
	return out
}

// lookupTimeout bounds the report read behind a domain event
const lookupTimeout = 5 * time.Second

// reportLookup loads the report a domain event belongs to
type reportLookup func(ctx context.Context, id string) (*models.Report, error)

// streamScope limits report and domain events to the rows the caller could list.
// It remembers each report it has decided on, so domain events need at most one lookup
// per report and deletes that carry only a key follow the earlier decision.
type streamScope struct {
	user    *models.User
	role    models.Role
	sites   map[string]bool
	lookup  reportLookup
	visible map[string]bool
	log     *zap.Logger
}

func newStreamScope(user *models.User, assigned []string, lookup reportLookup, log *zap.Logger) *streamScope {
	sites := make(map[string]bool, len(assigned))
	for _, id := range assigned {
		sites[id] = true
	}
	return &streamScope{
		user:    user,
		role:    user.NormalizedRole(),
		sites:   sites,
		lookup:  lookup,
		visible: map[string]bool{},
		log:     log,
	}
}

// scopeRow holds the columns of reports and domains rows that decide visibility
type scopeRow struct {
	ID         string  `json:"id"`
	ReportID   string  `json:"report_id"`
	UploadedBy string  `json:"uploaded_by"`
	SiteID     *string `json:"site_id"`
}

func rowOf(ev realtime.Event) (scopeRow, bool) {
	raw := ev.New
	if len(raw) == 0 || string(raw) == "null" {
		raw = ev.Old
	}
	var row scopeRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, false
	}
	return row, true
}

func (s *streamScope) canSee(uploadedBy string, siteID *string) bool {
	switch s.role {
	case models.RoleAdmin:
		return true
	case models.RoleReviewer:
		return siteID != nil && s.sites[*siteID]
	}
	return uploadedBy != "" && uploadedBy == s.user.ID
}

func (s *streamScope) keep(ctx context.Context, ev realtime.Event) bool {
	if s.role == models.RoleAdmin {
		return true
	}

	switch ev.Table {
	case store.TableReports:
		row, ok := rowOf(ev)
		if !ok || row.ID == "" {
			return false
		}
		if row.UploadedBy == "" && row.SiteID == nil {
			return s.visible[row.ID]
		}
		ok = s.canSee(row.UploadedBy, row.SiteID)
		s.visible[row.ID] = ok
		return ok

	case store.TableDomains:
		row, ok := rowOf(ev)
		if !ok || row.ReportID == "" {
			return false
		}
		if known, seen := s.visible[row.ReportID]; seen {
			return known
		}
		if s.lookup == nil {
			return false
		}
		lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		defer cancel()
		r, err := s.lookup(lookupCtx, row.ReportID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.log.Warn("failed to scope domain event", zap.String("report_id", row.ReportID), zap.Error(err))
			}
			return false
		}
		ok = s.canSee(r.UploadedBy, r.SiteID)
		s.visible[row.ReportID] = ok
		return ok
	}
	return true
}

// Stream godoc
// @Summary Change event stream
// @Description Server-sent events of row changes: {table, eventType, new, old}
// @Tags Events
// @Produce text/event-stream
// @Param tables query string false "Comma-separated table names"
// @Success 200 {object} realtime.Event
// @Router /events [get]
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	tables := eventTables(c.Query("tables"), user.NormalizedRole())
	if len(tables) == 0 {
		return utils.ErrorResponse(c, "No permitted tables requested", fiber.StatusBadRequest, "events")
	}

	var assigned []string
	if user.NormalizedRole() == models.RoleReviewer {
		if assigned, err = assignedSites(c.UserContext(), h.Store, user.ID); err != nil {
			return fail(c, err, "events")
		}
	}
	// the stream outlives the request context; keep the caller's token for lookups
	token := store.AccessToken(c.UserContext())
	lookup := func(ctx context.Context, id string) (*models.Report, error) {
		return h.Store.GetReport(store.WithAccessToken(ctx, token), id)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := h.Hub.Subscribe(tables...)
	log := h.Log.With(zap.String("user_id", user.ID))
	scope := newStreamScope(user, assigned, lookup, log)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		fmt.Fprintf(w, "retry: 3000\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if !scope.keep(context.Background(), ev) {
					continue
				}
				data, err := json.Marshal(ev)
				if err != nil {
					log.Warn("failed to encode change event", zap.Error(err))
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Table, data)
			case <-ticker.C:
				fmt.Fprintf(w, ": keep-alive\n\n")
			}
			if err := w.Flush(); err != nil {
				// client went away
				log.Debug("event stream closed", zap.Error(err))
				return
			}
		}
	}))
	return nil
}
