package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/localnerve/reportdesk/internal/types"
	"go.uber.org/zap"
)

const (
	reportSelect = "*," +
		"domains(id,report_id,domain_name,status,rejection_reason,reviewed_by,reviewed_at)," +
		"uploaded_by_user:users!reports_uploaded_by_fkey(id,email)," +
		"reviewed_by_user:users!reports_reviewed_by_fkey(id,email)," +
		"site:sites(id,name,display_name)"
	userSelect     = "*,user_sites(user_id,site_id,assigned_by,assigned_at,sites(id,name,display_name,is_active))"
	userSiteSelect = "*,sites(id,name,display_name,is_active)"
)

// HTTPError is a non-2xx answer from an HTTP collaborator
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Status)
}

// PostgRESTStore implements Store against a hosted PostgREST endpoint (tables under the base URL,
// procedures under /rpc). Requests carry the caller's token from the context so the backend's
// row-level security applies; the service key is used when there is none.
//
// With a Publisher, mutations made through this store are read back and published as change
// events. Writes other clients make directly against the backend are not seen.
type PostgRESTStore struct {
	client    *resty.Client
	apiKey    string
	Publisher realtime.Publisher
	log       *zap.Logger
}

// NewPostgRESTStore creates a PostgRESTStore for the REST root, e.g. https://project.example/rest/v1.
// A nil publisher turns change events and the read-backs they need off.
func NewPostgRESTStore(baseURL, apiKey string, timeout time.Duration, publisher realtime.Publisher, log *zap.Logger) *PostgRESTStore {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("apikey", apiKey)
	}

	return &PostgRESTStore{client: client, apiKey: apiKey, Publisher: publisher, log: log}
}

func (s *PostgRESTStore) tracking() bool {
	return s.Publisher != nil
}

func (s *PostgRESTStore) publish(ctx context.Context, table string, eventType realtime.EventType, newRow, oldRow interface{}) {
	if !s.tracking() {
		return
	}
	ev, err := realtime.NewEvent(table, eventType, newRow, oldRow)
	if err != nil {
		s.log.Error("failed to build change event", zap.String("table", table), zap.Error(err))
		return
	}
	s.Publisher.Publish(ctx, ev)
}

// readBackFailed logs a read made only to publish a change; the mutation itself succeeded
func (s *PostgRESTStore) readBackFailed(op string, err error) {
	s.log.Warn("change event skipped", zap.String("op", op), zap.Error(err))
}

func (s *PostgRESTStore) request(ctx context.Context) *resty.Request {
	r := s.client.R().SetContext(ctx)
	token := AccessToken(ctx)
	if token == "" {
		token = s.apiKey
	}
	if token != "" {
		r.SetAuthToken(token)
	}
	return r
}

func (s *PostgRESTStore) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		s.log.Error("backend request failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		s.log.Warn("backend returned error",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return &HTTPError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

func eq(v string) string {
	return "eq." + v
}

func in(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, strconv.Quote(v))
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}

// GetUserByAuthID implements Store
func (s *PostgRESTStore) GetUserByAuthID(ctx context.Context, authUserID string) (*models.User, error) {
	return s.oneUser(ctx, "auth_user_id", authUserID)
}

// GetUser implements Store
func (s *PostgRESTStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.oneUser(ctx, "id", id)
}

func (s *PostgRESTStore) oneUser(ctx context.Context, column, value string) (*models.User, error) {
	var users []models.User
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{
			"select": userSelect,
			column:   eq(value),
			"limit":  "1",
		}).
		SetResult(&users).
		Get("/users")
	if err := s.check("get user", resp, err); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

// ListUsers implements Store
func (s *PostgRESTStore) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{
			"select": userSelect,
			"order":  "created_at.desc",
		}).
		SetResult(&users).
		Get("/users")
	return users, s.check("list users", resp, err)
}

// ListSites implements Store
func (s *PostgRESTStore) ListSites(ctx context.Context, activeOnly bool) ([]models.Site, error) {
	params := map[string]string{"select": "*", "order": "name.asc"}
	if activeOnly {
		params["is_active"] = "eq.true"
	}
	sites := []models.Site{}
	resp, err := s.request(ctx).SetQueryParams(params).SetResult(&sites).Get("/sites")
	return sites, s.check("list sites", resp, err)
}

// ListUserSites implements Store
func (s *PostgRESTStore) ListUserSites(ctx context.Context, userID string) ([]models.UserSite, error) {
	params := map[string]string{"select": userSiteSelect, "order": "assigned_at.asc"}
	if userID != "" {
		params["user_id"] = eq(userID)
	}
	assignments := []models.UserSite{}
	resp, err := s.request(ctx).SetQueryParams(params).SetResult(&assignments).Get("/user_sites")
	return assignments, s.check("list user sites", resp, err)
}

// ListReports implements Store. The total comes from the exact count in Content-Range.
func (s *PostgRESTStore) ListReports(ctx context.Context, q ReportQuery) (ReportPage, error) {
	page := ReportPage{Reports: []models.Report{}}
	if q.SiteIDs != nil && len(q.SiteIDs) == 0 {
		return page, nil
	}

	params := map[string]string{
		"select":        reportSelect,
		"order":         "uploaded_at.desc",
		"domains.order": "domain_name.asc",
	}
	if q.UploadedBy != "" {
		params["uploaded_by"] = eq(q.UploadedBy)
	}
	if q.SiteIDs != nil {
		params["site_id"] = in(q.SiteIDs)
	}

	req := s.request(ctx).
		SetQueryParams(params).
		SetHeader("Prefer", "count=exact").
		SetResult(&page.Reports)
	if q.Limit > 0 {
		req.SetHeader("Range-Unit", "items").
			SetHeader("Range", fmt.Sprintf("%d-%d", q.Offset, q.Offset+q.Limit-1))
	}

	resp, err := req.Get("/reports")
	if err := s.check("list reports", resp, err); err != nil {
		return page, err
	}

	total, ok := parseContentRange(resp.Header().Get("Content-Range"))
	if !ok {
		total = int64(q.Offset + len(page.Reports))
	}
	page.Total = total
	return page, nil
}

// parseContentRange reads the total from "0-9/23" or "*/0"
func parseContentRange(v string) (int64, bool) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// GetReport implements Store
func (s *PostgRESTStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var reports []models.Report
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{
			"select":        reportSelect,
			"id":            eq(id),
			"domains.order": "domain_name.asc",
		}).
		SetResult(&reports).
		Get("/reports")
	if err := s.check("get report", resp, err); err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, ErrNotFound
	}
	return &reports[0], nil
}

// ListDomains implements Store
func (s *PostgRESTStore) ListDomains(ctx context.Context, reportID string) ([]models.Domain, error) {
	domains := []models.Domain{}
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{
			"select":    "*",
			"report_id": eq(reportID),
			"order":     "domain_name.asc",
		}).
		SetResult(&domains).
		Get("/domains")
	return domains, s.check("list domains", resp, err)
}

func (s *PostgRESTStore) rpc(ctx context.Context, procedure string, params map[string]interface{}) (RPCResult, error) {
	var rows types.FlexList[RPCResult]
	resp, err := s.request(ctx).
		SetBody(params).
		SetResult(&rows).
		Post("/rpc/" + procedure)
	if err := s.check(procedure, resp, err); err != nil {
		return RPCResult{}, err
	}

	result, ok := rows.First()
	if !ok {
		return RPCResult{}, fmt.Errorf("%s: empty result", procedure)
	}
	return result, nil
}

func nullableIDs(ids []string) interface{} {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// CreateUserWithSites implements Store
func (s *PostgRESTStore) CreateUserWithSites(ctx context.Context, in CreateUserInput) (RPCResult, error) {
	email := strings.TrimSpace(in.Email)
	result, err := s.rpc(ctx, ProcCreateUserWithSites, map[string]interface{}{
		"user_email":          email,
		"user_password":       in.Password,
		"user_role":           string(in.Role),
		"site_ids":            nullableIDs(in.SiteIDs),
		"assigned_by_user_id": nullableString(in.AssignedBy),
	})
	if err != nil || !result.Success || !s.tracking() {
		return result, err
	}

	user, err := s.oneUser(ctx, "email", email)
	if err != nil {
		s.readBackFailed(ProcCreateUserWithSites, err)
		return result, nil
	}
	s.publish(ctx, TableUsers, realtime.Insert, user, nil)
	for _, us := range user.UserSites {
		s.publish(ctx, TableUserSites, realtime.Insert, us, nil)
	}
	return result, nil
}

// UpdateUserRoleAndSites implements Store
func (s *PostgRESTStore) UpdateUserRoleAndSites(ctx context.Context, in UpdateUserInput) (RPCResult, error) {
	var before *models.User
	if s.tracking() {
		var err error
		if before, err = s.GetUser(ctx, in.UserID); err != nil {
			s.readBackFailed(ProcUpdateUserRoleAndSites, err)
		}
	}

	result, err := s.rpc(ctx, ProcUpdateUserRoleAndSites, map[string]interface{}{
		"p_user_id":  in.UserID,
		"p_new_role": string(in.Role),
		"p_site_ids": nullableIDs(in.SiteIDs),
	})
	if err != nil || !result.Success || !s.tracking() {
		return result, err
	}

	after, err := s.GetUser(ctx, in.UserID)
	if err != nil {
		s.readBackFailed(ProcUpdateUserRoleAndSites, err)
		return result, nil
	}
	s.publish(ctx, TableUsers, realtime.Update, after, nil)
	if before != nil {
		for _, us := range before.UserSites {
			s.publish(ctx, TableUserSites, realtime.Delete, nil, us)
		}
	}
	for _, us := range after.UserSites {
		s.publish(ctx, TableUserSites, realtime.Insert, us, nil)
	}
	return result, nil
}

// DeleteUserCompletely implements Store
func (s *PostgRESTStore) DeleteUserCompletely(ctx context.Context, userID string) (RPCResult, error) {
	var (
		user    *models.User
		reports []models.Report
	)
	if s.tracking() {
		var err error
		if user, err = s.GetUser(ctx, userID); err != nil {
			s.readBackFailed(ProcDeleteUserCompletely, err)
		}
		page, err := s.ListReports(ctx, ReportQuery{UploadedBy: userID})
		if err != nil {
			s.readBackFailed(ProcDeleteUserCompletely, err)
		}
		reports = page.Reports
	}

	result, err := s.rpc(ctx, ProcDeleteUserCompletely, map[string]interface{}{"p_user_id": userID})
	if err != nil || !result.Success {
		return result, err
	}

	for _, r := range reports {
		s.publish(ctx, TableReports, realtime.Delete, nil, deletedReport(r))
		for _, d := range r.Domains {
			s.publish(ctx, TableDomains, realtime.Delete, nil, d)
		}
	}
	if user != nil {
		s.publish(ctx, TableUsers, realtime.Delete, nil, models.User{ID: user.ID, AuthUserID: user.AuthUserID, Email: user.Email})
	}
	return result, nil
}

// RemoveSiteAssignment implements Store
func (s *PostgRESTStore) RemoveSiteAssignment(ctx context.Context, userID, siteID string) (RPCResult, error) {
	result, err := s.rpc(ctx, ProcRemoveSiteAssignment, map[string]interface{}{
		"p_user_id": userID,
		"p_site_id": siteID,
	})
	if err != nil || !result.Success {
		return result, err
	}
	s.publish(ctx, TableUserSites, realtime.Delete, nil, models.UserSite{UserID: userID, SiteID: siteID})
	return result, nil
}

// CreateSite implements Store
func (s *PostgRESTStore) CreateSite(ctx context.Context, in CreateSiteInput) (RPCResult, error) {
	name := strings.TrimSpace(in.Name)
	result, err := s.rpc(ctx, ProcCreateSite, map[string]interface{}{
		"site_name":         name,
		"site_display_name": strings.TrimSpace(in.DisplayName),
	})
	if err != nil || !result.Success || !s.tracking() {
		return result, err
	}

	column, value := "name", name
	if result.SiteID != "" {
		column, value = "id", result.SiteID
	}
	var sites []models.Site
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{"select": "*", column: eq(value), "limit": "1"}).
		SetResult(&sites).
		Get("/sites")
	if err := s.check("read back site", resp, err); err != nil {
		s.readBackFailed(ProcCreateSite, err)
		return result, nil
	}
	if len(sites) == 0 {
		s.readBackFailed(ProcCreateSite, ErrNotFound)
		return result, nil
	}
	s.publish(ctx, TableSites, realtime.Insert, sites[0], nil)
	return result, nil
}

// UpdateDomains implements Store
func (s *PostgRESTStore) UpdateDomains(ctx context.Context, filter DomainFilter, review DomainReview) error {
	params := map[string]string{}
	switch {
	case filter.ID != "":
		params["id"] = eq(filter.ID)
	case filter.ReportID != "":
		params["report_id"] = eq(filter.ReportID)
	default:
		return errors.New("domain filter requires an id or report id")
	}

	body := map[string]interface{}{
		"status":      review.Status,
		"reviewed_by": review.ReviewedBy,
		"reviewed_at": review.ReviewedAt.UTC().Format(time.RFC3339Nano),
	}
	if review.RejectionReason != nil {
		body["rejection_reason"] = *review.RejectionReason
	}

	var changed []models.Domain
	resp, err := s.request(ctx).
		SetQueryParams(params).
		SetHeader("Prefer", "return=representation").
		SetBody(body).
		SetResult(&changed).
		Patch("/domains")
	if err := s.check("update domains", resp, err); err != nil {
		return err
	}
	if filter.ID != "" && len(changed) == 0 {
		return ErrNotFound
	}
	for _, d := range changed {
		s.publish(ctx, TableDomains, realtime.Update, d, nil)
	}
	return nil
}

// UpdateReport implements Store
func (s *PostgRESTStore) UpdateReport(ctx context.Context, id string, review ReportReview) error {
	body := map[string]interface{}{"status": review.Status}
	if review.ReviewedBy != "" {
		body["reviewed_by"] = review.ReviewedBy
		body["reviewed_at"] = review.ReviewedAt.UTC().Format(time.RFC3339Nano)
	}
	if review.ReviewNotes != nil {
		body["review_notes"] = *review.ReviewNotes
	}

	var changed []models.Report
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{"id": eq(id)}).
		SetHeader("Prefer", "return=representation").
		SetBody(body).
		SetResult(&changed).
		Patch("/reports")
	if err := s.check("update report", resp, err); err != nil {
		return err
	}
	if len(changed) == 0 {
		return ErrNotFound
	}
	s.publish(ctx, TableReports, realtime.Update, changed[0], nil)
	return nil
}

// CreateReport implements Store
func (s *PostgRESTStore) CreateReport(ctx context.Context, report *models.Report, domainNames []string) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.UploadedAt.IsZero() {
		report.UploadedAt = time.Now().UTC()
	}
	if report.Status == "" {
		report.Status = models.ReportQueued
	}

	row := map[string]interface{}{
		"id":          report.ID,
		"filename":    report.Filename,
		"status":      report.Status,
		"site_id":     report.SiteID,
		"uploaded_by": report.UploadedBy,
		"uploaded_at": report.UploadedAt.Format(time.RFC3339Nano),
		"file_size":   report.FileSize,
		"agent_id":    report.AgentID,
	}
	if report.ReportNumber != "" {
		row["report_number"] = report.ReportNumber
	}
	if report.Analysis != nil {
		row["analysis"] = report.Analysis
	}

	resp, err := s.request(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(row).
		Post("/reports")
	if err := s.check("create report", resp, err); err != nil {
		return err
	}

	if len(domainNames) == 0 {
		s.publish(ctx, TableReports, realtime.Insert, report, nil)
		return nil
	}

	domains := make([]map[string]interface{}, 0, len(domainNames))
	report.Domains = report.Domains[:0]
	for _, name := range domainNames {
		d := models.Domain{ID: uuid.NewString(), ReportID: report.ID, DomainName: name, Status: models.DomainPending}
		report.Domains = append(report.Domains, d)
		domains = append(domains, map[string]interface{}{
			"id":          d.ID,
			"report_id":   d.ReportID,
			"domain_name": d.DomainName,
			"status":      d.Status,
		})
	}

	resp, err = s.request(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(domains).
		Post("/domains")
	if err := s.check("create domains", resp, err); err != nil {
		return err
	}

	s.publish(ctx, TableReports, realtime.Insert, report, nil)
	for _, d := range report.Domains {
		s.publish(ctx, TableDomains, realtime.Insert, d, nil)
	}
	return nil
}

// Ping implements Store
func (s *PostgRESTStore) Ping(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Head("/")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= 500 {
		return &HTTPError{Status: resp.StatusCode()}
	}
	return nil
}
