// store.go
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

package store

import (
	"context"
	"errors"
	"time"

	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/types"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Remote procedure names
const (
	ProcCreateUserWithSites    = "create_user_with_sites"
	ProcUpdateUserRoleAndSites = "update_user_role_and_sites"
	ProcDeleteUserCompletely   = "delete_user_completely"
	ProcRemoveSiteAssignment   = "remove_site_assignment"
	ProcCreateSite             = "create_site"
)

// Table names carried by change events
const (
	TableUsers     = "users"
	TableSites     = "sites"
	TableUserSites = "user_sites"
	TableReports   = "reports"
	TableDomains   = "domains"
)

// RPCResult is the payload every remote procedure answers with
type RPCResult struct {
	Success       bool             `json:"success"`
	SitesAssigned types.FlexUint64 `json:"sites_assigned,omitempty"`
	UserID        string           `json:"user_id,omitempty"`
	SiteID        string           `json:"site_id,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// RPCError carries a procedure's own failure message verbatim
type RPCError struct {
	Procedure string
	Message   string
}

func (e *RPCError) Error() string {
	return e.Message
}

// Err converts an unsuccessful result into an *RPCError
func (r RPCResult) Err(procedure, fallback string) error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = fallback
	}
	return &RPCError{Procedure: procedure, Message: msg}
}

// ReportQuery selects a page of reports.
// A nil SiteIDs means no site filter; an empty non-nil SiteIDs matches nothing.
type ReportQuery struct {
	UploadedBy string
	SiteIDs    []string
	Offset     int
	Limit      int
}

// ReportPage is one page of reports plus the exact total across pages
type ReportPage struct {
	Reports []models.Report `json:"reports"`
	Total   int64           `json:"total"`
}

// DomainFilter targets one domain by ID or every domain of a report by ReportID
type DomainFilter struct {
	ID       string
	ReportID string
}

// DomainReview is the set of columns a review writes to domains
type DomainReview struct {
	Status          models.DomainStatus
	RejectionReason *string
	ReviewedBy      string
	ReviewedAt      time.Time
}

// ReportReview is the set of columns a review writes to a report.
// A status recompute leaves ReviewedBy empty and only the status is written.
type ReportReview struct {
	Status      models.ReportStatus
	ReviewedBy  string
	ReviewedAt  time.Time
	ReviewNotes *string
}

// CreateUserInput mirrors create_user_with_sites
type CreateUserInput struct {
	Email      string
	Password   string
	Role       models.Role
	SiteIDs    []string
	AssignedBy string
}

// UpdateUserInput mirrors update_user_role_and_sites
type UpdateUserInput struct {
	UserID  string
	Role    models.Role
	SiteIDs []string
}

// CreateSiteInput mirrors create_site
type CreateSiteInput struct {
	Name        string
	DisplayName string
}

// Store is the backend call contract: table reads, privileged procedures,
// and the direct row mutations allowed for review.
type Store interface {
	GetUserByAuthID(ctx context.Context, authUserID string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListSites(ctx context.Context, activeOnly bool) ([]models.Site, error)
	// ListUserSites lists assignments for one user, or all assignments when userID is empty
	ListUserSites(ctx context.Context, userID string) ([]models.UserSite, error)
	ListReports(ctx context.Context, q ReportQuery) (ReportPage, error)
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListDomains(ctx context.Context, reportID string) ([]models.Domain, error)

	CreateUserWithSites(ctx context.Context, in CreateUserInput) (RPCResult, error)
	UpdateUserRoleAndSites(ctx context.Context, in UpdateUserInput) (RPCResult, error)
	DeleteUserCompletely(ctx context.Context, userID string) (RPCResult, error)
	RemoveSiteAssignment(ctx context.Context, userID, siteID string) (RPCResult, error)
	CreateSite(ctx context.Context, in CreateSiteInput) (RPCResult, error)

	UpdateDomains(ctx context.Context, filter DomainFilter, review DomainReview) error
	UpdateReport(ctx context.Context, id string, review ReportReview) error
	CreateReport(ctx context.Context, report *models.Report, domainNames []string) error

	Ping(ctx context.Context) error
}

type accessTokenKey struct{}

// WithAccessToken attaches the caller's identity token so backends that
// enforce row-level security can act on the caller's behalf.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the token attached by WithAccessToken
func AccessToken(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// deletedReport is the old row a report DELETE carries: the key plus the columns that scope
// who may see the report
func deletedReport(r models.Report) models.Report {
	return models.Report{
		ID:           r.ID,
		ReportNumber: r.ReportNumber,
		Filename:     r.Filename,
		Status:       r.Status,
		SiteID:       r.SiteID,
		UploadedBy:   r.UploadedBy,
		UploadedAt:   r.UploadedAt,
	}
}
