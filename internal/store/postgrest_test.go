package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/localnerve/reportdesk/internal/logging"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgREST(t *testing.T, handler http.HandlerFunc) *PostgRESTStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPostgRESTStore(srv.URL, "service-key", 5*time.Second, nil, logging.Nop())
}

func TestPostgRESTListReportsUsesRangeAndCount(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports", r.URL.Path)
		assert.Equal(t, "20-29", r.Header.Get("Range"))
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, `in.("s1","s2")`, r.URL.Query().Get("site_id"))
		assert.Equal(t, "uploaded_at.desc", r.URL.Query().Get("order"))

		w.Header().Set("Content-Range", "20-22/23")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"r1","status":"approved","domains":[{"id":"d1","status":"approved"}],"site":{"id":"s1","display_name":"North"}}]`)
	})

	ctx := WithAccessToken(context.Background(), "user-token")
	page, err := s.ListReports(ctx, ReportQuery{SiteIDs: []string{"s1", "s2"}, Offset: 20, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(23), page.Total)
	require.Len(t, page.Reports, 1)
	assert.Equal(t, models.ReportApproved, page.Reports[0].Status)
	assert.Equal(t, "North", page.Reports[0].Site.DisplayName)
	assert.Len(t, page.Reports[0].Domains, 1)
}

func TestPostgRESTEmptySiteScopeSkipsRequest(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL)
	})
	page, err := s.ListReports(context.Background(), ReportQuery{SiteIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, page.Reports)
}

func TestPostgRESTRPC(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/create_user_with_sites", r.URL.Path)
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body["user_email"])
		assert.Equal(t, "reviewer", body["user_role"])
		assert.Nil(t, body["site_ids"])
		assert.Nil(t, body["assigned_by_user_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"success":true,"sites_assigned":"0"}]`)
	})

	res, err := s.CreateUserWithSites(context.Background(), CreateUserInput{Email: " a@b.c ", Password: "secret1", Role: models.RoleReviewer})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.SitesAssigned.Int())
}

func TestPostgRESTRPCFailurePayload(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":false,"error":"Cannot delete the last admin"}`)
	})

	res, err := s.DeleteUserCompletely(context.Background(), "u1")
	require.NoError(t, err)
	err = res.Err(ProcDeleteUserCompletely, "Failed to delete user")
	assert.EqualError(t, err, "Cannot delete the last admin")

	res.Error = ""
	assert.EqualError(t, res.Err(ProcDeleteUserCompletely, "Failed to delete user"), "Failed to delete user")
}

func TestPostgRESTHTTPError(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := s.ListSites(context.Background(), true)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "HTTP 503", err.Error())
}

func TestPostgRESTGetUserNotFound(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.auth-1", r.URL.Query().Get("auth_user_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := s.GetUserByAuthID(context.Background(), "auth-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgRESTUpdateDomainNotFound(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[]`)
	})

	err := s.UpdateDomains(context.Background(), DomainFilter{ID: "d1"}, DomainReview{Status: models.DomainApproved, ReviewedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgRESTCreateReport(t *testing.T) {
	var paths []string
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	})

	report := models.Report{Filename: "a.pdf", UploadedBy: "u1"}
	require.NoError(t, s.CreateReport(context.Background(), &report, []string{"Air"}))
	assert.Equal(t, []string{"/reports", "/domains"}, paths)
	assert.NotEmpty(t, report.ID)
	require.Len(t, report.Domains, 1)
	assert.Equal(t, report.ID, report.Domains[0].ReportID)
}

func TestParseContentRange(t *testing.T) {
	total, ok := parseContentRange("0-9/23")
	assert.True(t, ok)
	assert.Equal(t, int64(23), total)

	total, ok = parseContentRange("*/0")
	assert.True(t, ok)
	assert.Zero(t, total)

	_, ok = parseContentRange("0-9/*")
	assert.False(t, ok)
	_, ok = parseContentRange("")
	assert.False(t, ok)
}

type capture struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (c *capture) Publish(_ context.Context, ev realtime.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capture) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Table+":"+string(ev.EventType))
	}
	return out
}

func TestPostgRESTCreateSitePublishes(t *testing.T) {
	log := logging.Nop()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rpc/create_site":
			_, _ = io.WriteString(w, `{"success":true}`)
		case "/sites":
			assert.Equal(t, "eq.east", r.URL.Query().Get("name"))
			_, _ = io.WriteString(w, `[{"id":"s9","name":"east","display_name":"East plant","is_active":true}]`)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	hub := realtime.NewHub(log)
	view := realtime.NewView(hub, TableSites, []models.Site{{ID: "s1", Name: "north", IsActive: true}},
		realtime.SitesByName, func(s models.Site) bool { return s.IsActive }, log)
	t.Cleanup(view.Close)

	s := NewPostgRESTStore(srv.URL, "service-key", 5*time.Second, hub, log)
	res, err := s.CreateSite(context.Background(), CreateSiteInput{Name: " east ", DisplayName: "East plant"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Eventually(t, func() bool { return len(view.Items()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestPostgRESTMutationsPublish(t *testing.T) {
	north := "north"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPatch && r.URL.Path == "/domains":
			_, _ = io.WriteString(w, `[{"id":"d1","report_id":"r1","domain_name":"Air","status":"approved"}]`)
		case r.Method == http.MethodPatch && r.URL.Path == "/reports":
			_, _ = io.WriteString(w, `[{"id":"r1","uploaded_by":"u1","site_id":"north","status":"approved"}]`)
		case r.URL.Path == "/users":
			_, _ = io.WriteString(w, `[{"id":"u1","email":"up@example.com","role":"user"}]`)
		case r.URL.Path == "/reports":
			_, _ = io.WriteString(w, `[{"id":"r1","uploaded_by":"u1","site_id":"north","status":"approved",
				"domains":[{"id":"d1","report_id":"r1","domain_name":"Air","status":"approved"}]}]`)
		case r.URL.Path == "/rpc/delete_user_completely", r.URL.Path == "/rpc/remove_site_assignment":
			_, _ = io.WriteString(w, `[{"success":true}]`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	events := &capture{}
	s := NewPostgRESTStore(srv.URL, "service-key", 5*time.Second, events, logging.Nop())
	ctx := context.Background()

	require.NoError(t, s.UpdateDomains(ctx, DomainFilter{ID: "d1"}, DomainReview{Status: models.DomainApproved, ReviewedAt: time.Now()}))
	require.NoError(t, s.UpdateReport(ctx, "r1", ReportReview{Status: models.ReportApproved}))
	res, err := s.RemoveSiteAssignment(ctx, "u1", north)
	require.NoError(t, err)
	require.True(t, res.Success)
	res, err = s.DeleteUserCompletely(ctx, "u1")
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, []string{
		"domains:UPDATE", "reports:UPDATE", "user_sites:DELETE",
		"reports:DELETE", "domains:DELETE", "users:DELETE",
	}, events.kinds())

	gone, err := realtime.Decode[models.Report](events.events[3])
	require.NoError(t, err)
	require.NotNil(t, gone.Old)
	assert.Equal(t, "u1", gone.Old.UploadedBy)
	require.NotNil(t, gone.Old.SiteID)
	assert.Equal(t, north, *gone.Old.SiteID)
	assert.Empty(t, gone.Old.Domains)
}

func TestPostgRESTFailedRPCPublishesNothing(t *testing.T) {
	events := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":false,"error":"Site already exists"}`)
	}))
	t.Cleanup(srv.Close)

	s := NewPostgRESTStore(srv.URL, "service-key", 5*time.Second, events, logging.Nop())
	res, err := s.CreateSite(context.Background(), CreateSiteInput{Name: "north"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, events.kinds())
}
