package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/agents"
	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/confirm"
	"github.com/localnerve/reportdesk/internal/database"
	"github.com/localnerve/reportdesk/internal/handlers"
	"github.com/localnerve/reportdesk/internal/identity"
	"github.com/localnerve/reportdesk/internal/logging"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/localnerve/reportdesk/internal/review"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	password     = "secret123"
	envelopeBody = `[{"data":{
	"jsons":{"summary":{"total_nodes":2,"passed_count":1,"failed_count":1},
		"Sample Adequacy":{"passed":false},"Document Checker":{"passed":true}},
	"plain_texts":{"Document Checker":"fine"},
	"domain_wise_jsons":{"Water":{"ok":true},"Air":{"ok":false}}
}}]`
)

type testEnv struct {
	app   *fiber.App
	store *store.GormStore
	north string
	south string
	// user ids by email
	ids map[string]string
}

// webhooks stands in for the agent, bug report and confirmation mail endpoints
func webhooks(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agent":
			_, _ = io.WriteString(w, envelopeBody)
		case "/bug", "/confirm":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := logging.Nop()

	db, err := database.Connect(&config.Config{DBType: "sqlite-purego", DBDatabase: ":memory:"}, log)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	hub := realtime.NewHub(log)
	s := store.NewGormStore(db, hub, log)
	srv := webhooks(t)

	cfg := &config.Config{
		PublicURL:      "http://localhost:3000",
		ReportsPerPage: 10,
		UsersPerPage:   5,
		ConfirmTTL:     time.Minute,
		Agents: &config.AgentCatalog{
			Agents: []config.Agent{{ID: "checker", Name: "Checker", Webhook: srv.URL + "/agent"}},
			Order:  []string{"Document Checker", "Sample Adequacy"},
		},
	}

	client := agents.NewClient(5*time.Second, srv.URL+"/bug", srv.URL+"/confirm", log)
	provider := identity.NewLocalProvider(s, client, "test-secret", time.Hour, time.Hour, log)
	auth := identity.NewAppContext(provider, s, log)
	require.NoError(t, auth.Init(ctx))

	deps := handlers.Deps{
		Config:  cfg,
		Store:   s,
		Auth:    auth,
		Reviews: review.NewService(s, log),
		Uploads: agents.NewService(client, agents.NewRegistry(cfg.Agents), s, log),
		Confirm: confirm.NewFlow(confirm.NewMemoryStore(), cfg.ConfirmTTL, log),
		Hub:     hub,
		Log:     log,
	}
	handlers.RegisterActions(deps.Confirm, deps)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	handlers.Register(app.Group("/api"), deps)
	app.Use(handlers.NotFound)

	env := &testEnv{app: app, store: s, ids: map[string]string{}}
	env.north = env.site(t, "north")
	env.south = env.site(t, "south")
	env.user(t, "admin@example.com", models.RoleAdmin)
	env.user(t, "reviewer@example.com", models.RoleReviewer, env.north)
	env.user(t, "uploader@example.com", models.RoleUser, env.north)
	return env
}

func (e *testEnv) site(t *testing.T, name string) string {
	t.Helper()
	res, err := e.store.CreateSite(context.Background(), store.CreateSiteInput{Name: name, DisplayName: name + " plant"})
	require.NoError(t, err)
	require.True(t, res.Success)
	return res.SiteID
}

func (e *testEnv) user(t *testing.T, email string, role models.Role, sites ...string) {
	t.Helper()
	res, err := e.store.CreateUserWithSites(context.Background(), store.CreateUserInput{
		Email: email, Password: password, Role: role, SiteIDs: sites,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	e.ids[email] = res.UserID
}

func (e *testEnv) report(t *testing.T, uploader, siteID string) models.Report {
	t.Helper()
	r := models.Report{Filename: "audit.pdf", UploadedBy: e.ids[uploader], SiteID: &siteID, Status: models.ReportProcessing}
	require.NoError(t, e.store.CreateReport(context.Background(), &r, []string{"Air", "Water"}))
	return r
}

// do sends a JSON request and decodes a JSON response when there is one
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/auth/login", fiber.Map{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	session, ok := body["session"].(map[string]interface{})
	require.True(t, ok)
	return session["access_token"].(string)
}

func TestLoginAndSession(t *testing.T) {
	e := setup(t)

	resp, body := e.do(t, http.MethodPost, "/api/auth/login", fiber.Map{"email": "admin@example.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["ok"])

	resp, _ = e.do(t, http.MethodPost, "/api/auth/login", fiber.Map{"email": ""}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/api/auth/login", fiber.Map{"email": "admin@example.com", "password": password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin", body["role"])
	assert.NotEmpty(t, body["redirect"])
	assert.Contains(t, resp.Header.Get("Set-Cookie"), "session=")

	token := body["session"].(map[string]interface{})["access_token"].(string)
	resp, body = e.do(t, http.MethodGet, "/api/auth/session", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin", body["role"])

	resp, _ = e.do(t, http.MethodGet, "/api/reports", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/auth/logout", nil, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/api/reports", nil, token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCookieSession(t *testing.T) {
	e := setup(t)
	token := e.login(t, "uploader@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	resp, _ := e.send(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReportVisibility(t *testing.T) {
	e := setup(t)
	own := e.report(t, "uploader@example.com", e.north)
	other := e.report(t, "admin@example.com", e.south)

	tests := []struct {
		email string
		want  int
	}{
		{"uploader@example.com", 1},
		{"reviewer@example.com", 1},
		{"admin@example.com", 2},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			resp, body := e.do(t, http.MethodGet, "/api/reports", nil, e.login(t, tt.email))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Len(t, body["reports"], tt.want)
		})
	}

	reviewer := e.login(t, "reviewer@example.com")
	resp, _ := e.do(t, http.MethodGet, "/api/reports/"+other.ID, nil, reviewer)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, body := e.do(t, http.MethodGet, "/api/reports/"+own.ID, nil, reviewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, own.ID, body["id"])

	// a site outside the reviewer's assignments shows nothing
	resp, body = e.do(t, http.MethodGet, "/api/reports?site="+e.south, nil, reviewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["reports"], 0)

	// page past the end is clamped
	admin := e.login(t, "admin@example.com")
	resp, body = e.do(t, http.MethodGet, "/api/reports?page=9", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 1, page["page"])
	assert.Len(t, body["reports"], 2)

	resp, _ = e.do(t, http.MethodGet, "/api/reports/export.xlsx", nil, admin)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "reports-")
}

func TestReviewFlow(t *testing.T) {
	e := setup(t)
	r := e.report(t, "uploader@example.com", e.north)
	reviewer := e.login(t, "reviewer@example.com")
	uploader := e.login(t, "uploader@example.com")
	base := "/api/reports/" + r.ID

	resp, _ := e.do(t, http.MethodPost, base+"/domains/"+r.Domains[0].ID+"/approve", nil, uploader)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, base+"/domains/"+r.Domains[0].ID+"/approve", nil, reviewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Domain approved!", body["message"])

	resp, _ = e.do(t, http.MethodPost, base+"/domains/"+r.Domains[1].ID+"/reject", fiber.Map{"reason": " "}, reviewer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, base+"/reject", fiber.Map{}, reviewer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, base+"/reject", fiber.Map{"reason": "incomplete"}, reviewer)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "reject_all", body["kind"])
	token := body["token"].(string)

	// nothing happens until the request is confirmed
	got, err := e.store.GetReport(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportProcessing, got.Status)

	resp, _ = e.do(t, http.MethodPost, "/api/confirmations/"+token, nil, e.login(t, "admin@example.com"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/api/confirmations/"+token, nil, reviewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Report and all domains rejected!", body["message"])

	got, err = e.store.GetReport(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportRejected, got.Status)

	// spent
	resp, _ = e.do(t, http.MethodPost, "/api/confirmations/"+token, nil, reviewer)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, base+"/approve", nil, reviewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Report and all domains approved!", body["message"])
}

func TestCancelConfirmation(t *testing.T) {
	e := setup(t)
	admin := e.login(t, "admin@example.com")

	resp, body := e.do(t, http.MethodDelete, "/api/admin/users/"+e.ids["uploader@example.com"], nil, admin)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, body["prompt"], "uploader@example.com")

	resp, _ = e.do(t, http.MethodDelete, "/api/confirmations/"+body["token"].(string), nil, admin)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err := e.store.GetUser(context.Background(), e.ids["uploader@example.com"])
	assert.NoError(t, err)
}

func TestConfirmChecksCurrentRole(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.login(t, "admin@example.com")

	resp, body := e.do(t, http.MethodDelete, "/api/admin/users/"+e.ids["uploader@example.com"], nil, admin)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	token := body["token"].(string)

	// demoted between asking and confirming
	require.NoError(t, e.store.DB.Model(&models.User{}).
		Where("id = ?", e.ids["admin@example.com"]).
		Updates(map[string]interface{}{"role": "user", "is_admin": false}).Error)

	resp, _ = e.do(t, http.MethodPost, "/api/confirmations/"+token, nil, admin)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_, err := e.store.GetUser(ctx, e.ids["uploader@example.com"])
	assert.NoError(t, err)

	// a reviewer who lost the report's site can no longer reject it
	r := e.report(t, "uploader@example.com", e.north)
	reviewer := e.login(t, "reviewer@example.com")
	resp, body = e.do(t, http.MethodPost, "/api/reports/"+r.ID+"/reject", fiber.Map{"reason": "incomplete"}, reviewer)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	result, err := e.store.RemoveSiteAssignment(ctx, e.ids["reviewer@example.com"], e.north)
	require.NoError(t, err)
	require.True(t, result.Success)

	resp, _ = e.do(t, http.MethodPost, "/api/confirmations/"+body["token"].(string), nil, reviewer)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	got, err := e.store.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportProcessing, got.Status)
}

func TestAdminUsers(t *testing.T) {
	e := setup(t)
	admin := e.login(t, "admin@example.com")

	resp, _ := e.do(t, http.MethodGet, "/api/admin/users", nil, e.login(t, "reviewer@example.com"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := e.do(t, http.MethodGet, "/api/admin/stats", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["total_users"])
	assert.EqualValues(t, 2, body["active_sites"])

	resp, _ = e.do(t, http.MethodPost, "/api/admin/users", fiber.Map{"email": "not-an-email", "role": "user"}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	newUser := fiber.Map{"email": "new@example.com", "role": "reviewer", "site_ids": []string{e.north, e.south}}
	resp, body = e.do(t, http.MethodPost, "/api/admin/users", newUser, admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "User created successfully! Email: new@example.com with 2 site(s) assigned - Confirmation email sent!", body["message"])
	userID := body["data"].(map[string]interface{})["user_id"].(string)

	resp, body = e.do(t, http.MethodPost, "/api/admin/users", newUser, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "User with this email already exists", body["message"])

	resp, _ = e.do(t, http.MethodPut, "/api/admin/users/"+userID, fiber.Map{"role": "user", "site_ids": []string{e.south}}, admin)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = e.do(t, http.MethodDelete, "/api/admin/users/"+userID+"/sites/"+e.south, nil, admin)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp, body = e.do(t, http.MethodPost, "/api/confirmations/"+body["token"].(string), nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Site assignment removed", body["message"])

	resp, body = e.do(t, http.MethodDelete, "/api/admin/users/"+userID, nil, admin)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp, body = e.do(t, http.MethodPost, "/api/confirmations/"+body["token"].(string), nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `User "new@example.com" deleted successfully!`, body["message"])

	_, err := e.store.GetUser(context.Background(), userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	resp, body = e.do(t, http.MethodPost, "/api/admin/sites", fiber.Map{"name": "east", "display_name": "East plant"}, admin)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Site created successfully!", body["message"])
}

func uploadRequest(t *testing.T, path, siteID, token string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	if siteID != "" {
		require.NoError(t, w.WriteField("site_id", siteID))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUpload(t *testing.T) {
	e := setup(t)
	uploader := e.login(t, "uploader@example.com")

	resp, body := e.send(t, uploadRequest(t, "/api/agents/checker/upload", e.north, uploader))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, []interface{}{"Document Checker", "Sample Adequacy"}, body["agent_keys"])
	report := body["report"].(map[string]interface{})
	assert.Equal(t, "processing", report["status"])

	resp, body = e.do(t, http.MethodGet, "/api/reports", nil, uploader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["reports"], 1)

	resp, _ = e.send(t, uploadRequest(t, "/api/agents/checker/upload", e.south, uploader))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.send(t, uploadRequest(t, "/api/agents/missing/upload", "", uploader))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExports(t *testing.T) {
	e := setup(t)
	token := e.login(t, "uploader@example.com")

	resp, _ := e.do(t, http.MethodPost, "/api/exports/agents.pdf", fiber.Map{
		"file_name": "audit.pdf",
		"response":  json.RawMessage(envelopeBody),
		"view_mode": "split",
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "audit-agent-responses.pdf")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-")))

	resp, _ = e.do(t, http.MethodPost, "/api/exports/domains.pdf", fiber.Map{"response": json.RawMessage(envelopeBody)}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "report-domain-responses.pdf")

	resp, _ = e.do(t, http.MethodPost, "/api/exports/agents.pdf", fiber.Map{}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBugReport(t *testing.T) {
	e := setup(t)
	token := e.login(t, "uploader@example.com")

	resp, body := e.do(t, http.MethodPost, "/api/bug-reports", fiber.Map{"agent_name": "Checker"}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Expected output is required.", body["message"])

	resp, body = e.do(t, http.MethodPost, "/api/bug-reports", fiber.Map{
		"agent_name":      "Checker",
		"expected_output": "pass",
		"actual_output":   "fail",
		"bug_description": "wrong verdict",
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(data["trace_id"].(string), "br_"))
}

func TestNotFound(t *testing.T) {
	e := setup(t)
	resp, body := e.do(t, http.MethodGet, "/nowhere", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "[404] Resource Not Found", body["message"])
}
