// gorm.go
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
	"fmt"
	"strings"
	"time"

	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/localnerve/reportdesk/internal/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/hints"
)

// GormStore implements Store directly on a relational database.
// Procedures run as transactions and answer with the same payloads the hosted backend does.
type GormStore struct {
	DB        *gorm.DB
	Publisher realtime.Publisher
	Log       *zap.Logger
}

// NewGormStore creates a GormStore. A nil publisher discards change events.
func NewGormStore(db *gorm.DB, publisher realtime.Publisher, log *zap.Logger) *GormStore {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	return &GormStore{DB: db, Publisher: publisher, Log: log}
}

func (s *GormStore) quiet(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).Session(&gorm.Session{Logger: s.DB.Logger.LogMode(logger.Silent)})
}

func (s *GormStore) publish(ctx context.Context, table string, eventType realtime.EventType, newRow, oldRow interface{}) {
	ev, err := realtime.NewEvent(table, eventType, newRow, oldRow)
	if err != nil {
		s.Log.Error("failed to build change event", zap.String("table", table), zap.Error(err))
		return
	}
	s.Publisher.Publish(ctx, ev)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GetUserByAuthID implements Store
func (s *GormStore) GetUserByAuthID(ctx context.Context, authUserID string) (*models.User, error) {
	var user models.User
	if err := s.quiet(ctx).
		Preload("UserSites").
		Where("auth_user_id = ?", authUserID).
		First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetUser implements Store
func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.quiet(ctx).Preload("UserSites").First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetUserByEmail looks a user up for password sign-in
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.quiet(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// SetPasswordHash stores a new bcrypt hash for the identity account
func (s *GormStore) SetPasswordHash(ctx context.Context, authUserID, hash string) error {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("auth_user_id = ?", authUserID).
		Update("password_hash", hash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers implements Store
func (s *GormStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.quiet(ctx).
		Clauses(hints.CommentBefore("select", "list_users")).
		Preload("UserSites.Site").
		Order("created_at desc").
		Find(&users).Error
	return users, err
}

// ListSites implements Store
func (s *GormStore) ListSites(ctx context.Context, activeOnly bool) ([]models.Site, error) {
	q := s.quiet(ctx).Order("name")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var sites []models.Site
	err := q.Find(&sites).Error
	return sites, err
}

// ListUserSites implements Store
func (s *GormStore) ListUserSites(ctx context.Context, userID string) ([]models.UserSite, error) {
	q := s.quiet(ctx).Preload("Site").Order("assigned_at")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var assignments []models.UserSite
	err := q.Find(&assignments).Error
	return assignments, err
}

func reportFilter(q ReportQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if q.UploadedBy != "" {
			db = db.Where("uploaded_by = ?", q.UploadedBy)
		}
		if q.SiteIDs != nil {
			db = db.Where("site_id IN ?", q.SiteIDs)
		}
		return db
	}
}

func withReportJoins(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Domains", func(db *gorm.DB) *gorm.DB { return db.Order("domain_name") }).
		Preload("UploadedByUser").
		Preload("ReviewedByUser").
		Preload("Site")
}

// ListReports implements Store. Reports are ordered newest upload first.
func (s *GormStore) ListReports(ctx context.Context, q ReportQuery) (ReportPage, error) {
	page := ReportPage{Reports: []models.Report{}}
	if q.SiteIDs != nil && len(q.SiteIDs) == 0 {
		return page, nil
	}

	if err := s.quiet(ctx).Model(&models.Report{}).
		Scopes(reportFilter(q)).
		Count(&page.Total).Error; err != nil {
		return page, err
	}

	find := s.quiet(ctx).
		Clauses(hints.CommentBefore("select", "list_reports")).
		Scopes(reportFilter(q), withReportJoins).
		Order("uploaded_at desc")
	if q.Offset > 0 {
		find = find.Offset(q.Offset)
	}
	if q.Limit > 0 {
		find = find.Limit(q.Limit)
	}

	err := find.Find(&page.Reports).Error
	return page, err
}

// GetReport implements Store
func (s *GormStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	if err := s.quiet(ctx).Scopes(withReportJoins).First(&report, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &report, nil
}

// ListDomains implements Store
func (s *GormStore) ListDomains(ctx context.Context, reportID string) ([]models.Domain, error) {
	var domains []models.Domain
	err := s.quiet(ctx).Where("report_id = ?", reportID).Order("domain_name").Find(&domains).Error
	return domains, err
}

// CreateUserWithSites implements Store
func (s *GormStore) CreateUserWithSites(ctx context.Context, in CreateUserInput) (RPCResult, error) {
	email := strings.TrimSpace(in.Email)
	switch {
	case email == "":
		return RPCResult{Error: "Email is required"}, nil
	case in.Password == "":
		return RPCResult{Error: "Password is required"}, nil
	case len(in.Password) < 6:
		return RPCResult{Error: "Password must be at least 6 characters long"}, nil
	}
	role, ok := models.ParseRole(string(in.Role))
	if !ok {
		return RPCResult{Error: fmt.Sprintf("Invalid role: %s", in.Role)}, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return RPCResult{}, fmt.Errorf("hash password: %w", err)
	}

	var (
		result   RPCResult
		user     models.User
		assigned []models.UserSite
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).Where("LOWER(email) = ?", strings.ToLower(email)).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			result = RPCResult{Error: "User with this email already exists"}
			return nil
		}

		if msg, err := missingSites(tx, in.SiteIDs); err != nil || msg != "" {
			result = RPCResult{Error: msg}
			return err
		}

		user = models.User{Email: email, Role: string(role), PasswordHash: string(hash)}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		assigned, err = assignSites(tx, user.ID, in.SiteIDs, in.AssignedBy)
		if err != nil {
			return err
		}

		result = RPCResult{Success: true, UserID: user.ID}
		result.SitesAssigned = types.FlexUint64(len(assigned))
		return nil
	})
	if err != nil || !result.Success {
		return result, err
	}

	s.publish(ctx, TableUsers, realtime.Insert, user, nil)
	for _, us := range assigned {
		s.publish(ctx, TableUserSites, realtime.Insert, us, nil)
	}
	return result, nil
}

// UpdateUserRoleAndSites implements Store. The site list replaces all current assignments.
func (s *GormStore) UpdateUserRoleAndSites(ctx context.Context, in UpdateUserInput) (RPCResult, error) {
	role, ok := models.ParseRole(string(in.Role))
	if !ok {
		return RPCResult{Error: fmt.Sprintf("Invalid role: %s", in.Role)}, nil
	}

	var (
		result   RPCResult
		user     models.User
		removed  []models.UserSite
		assigned []models.UserSite
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", in.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result = RPCResult{Error: "User not found"}
				return nil
			}
			return err
		}

		if msg, err := missingSites(tx, in.SiteIDs); err != nil || msg != "" {
			result = RPCResult{Error: msg}
			return err
		}

		if err := tx.Model(&user).Update("role", string(role)).Error; err != nil {
			return err
		}

		if err := tx.Where("user_id = ?", user.ID).Find(&removed).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.UserSite{}).Error; err != nil {
			return err
		}

		var err error
		assigned, err = assignSites(tx, user.ID, in.SiteIDs, "")
		if err != nil {
			return err
		}

		result = RPCResult{Success: true, UserID: user.ID}
		result.SitesAssigned = types.FlexUint64(len(assigned))
		return nil
	})
	if err != nil || !result.Success {
		return result, err
	}

	s.publish(ctx, TableUsers, realtime.Update, user, nil)
	for _, us := range removed {
		s.publish(ctx, TableUserSites, realtime.Delete, nil, us)
	}
	for _, us := range assigned {
		s.publish(ctx, TableUserSites, realtime.Insert, us, nil)
	}
	return result, nil
}

// DeleteUserCompletely implements Store. The user's assignments and uploaded reports go with them;
// review stamps they left on other reports are cleared.
func (s *GormStore) DeleteUserCompletely(ctx context.Context, userID string) (RPCResult, error) {
	var (
		result  RPCResult
		user    models.User
		reports []models.Report
		domains []models.Domain
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result = RPCResult{Error: "User not found"}
				return nil
			}
			return err
		}

		if err := tx.Where("uploaded_by = ?", user.ID).Find(&reports).Error; err != nil {
			return err
		}
		if len(reports) > 0 {
			ids := make([]string, 0, len(reports))
			for _, r := range reports {
				ids = append(ids, r.ID)
			}
			if err := tx.Where("report_id IN ?", ids).Find(&domains).Error; err != nil {
				return err
			}
			if err := tx.Where("report_id IN ?", ids).Delete(&models.Domain{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", ids).Delete(&models.Report{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Report{}).Where("reviewed_by = ?", user.ID).Update("reviewed_by", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Domain{}).Where("reviewed_by = ?", user.ID).Update("reviewed_by", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.UserSite{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&user).Error; err != nil {
			return err
		}

		result = RPCResult{Success: true, UserID: user.ID}
		return nil
	})
	if err != nil || !result.Success {
		return result, err
	}

	// reports first so stream filters learn the report before its domains go
	for _, r := range reports {
		s.publish(ctx, TableReports, realtime.Delete, nil, deletedReport(r))
	}
	for _, d := range domains {
		s.publish(ctx, TableDomains, realtime.Delete, nil, d)
	}
	s.publish(ctx, TableUsers, realtime.Delete, nil, models.User{ID: user.ID, AuthUserID: user.AuthUserID, Email: user.Email})
	return result, nil
}

// RemoveSiteAssignment implements Store
func (s *GormStore) RemoveSiteAssignment(ctx context.Context, userID, siteID string) (RPCResult, error) {
	res := s.DB.WithContext(ctx).
		Where("user_id = ? AND site_id = ?", userID, siteID).
		Delete(&models.UserSite{})
	if res.Error != nil {
		return RPCResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return RPCResult{Error: "Site assignment not found"}, nil
	}

	s.publish(ctx, TableUserSites, realtime.Delete, nil, models.UserSite{UserID: userID, SiteID: siteID})
	return RPCResult{Success: true, UserID: userID, SiteID: siteID}, nil
}

// CreateSite implements Store
func (s *GormStore) CreateSite(ctx context.Context, in CreateSiteInput) (RPCResult, error) {
	name := strings.TrimSpace(in.Name)
	display := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return RPCResult{Error: "Site name is required"}, nil
	}
	if display == "" {
		display = name
	}

	var (
		result RPCResult
		site   models.Site
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Site{}).Where("name = ?", name).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			result = RPCResult{Error: "Site with this name already exists"}
			return nil
		}

		site = models.Site{Name: name, DisplayName: display, IsActive: true}
		if err := tx.Create(&site).Error; err != nil {
			return err
		}
		result = RPCResult{Success: true, SiteID: site.ID}
		return nil
	})
	if err != nil || !result.Success {
		return result, err
	}

	s.publish(ctx, TableSites, realtime.Insert, site, nil)
	return result, nil
}

// UpdateDomains implements Store
func (s *GormStore) UpdateDomains(ctx context.Context, filter DomainFilter, review DomainReview) error {
	q := s.DB.WithContext(ctx).Model(&models.Domain{})
	switch {
	case filter.ID != "":
		q = q.Where("id = ?", filter.ID)
	case filter.ReportID != "":
		q = q.Where("report_id = ?", filter.ReportID)
	default:
		return fmt.Errorf("domain filter requires an id or report id")
	}

	updates := map[string]interface{}{
		"status":      review.Status,
		"reviewed_by": review.ReviewedBy,
		"reviewed_at": review.ReviewedAt,
	}
	if review.RejectionReason != nil {
		updates["rejection_reason"] = *review.RejectionReason
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if filter.ID != "" && res.RowsAffected == 0 {
		return ErrNotFound
	}

	var changed []models.Domain
	reload := s.quiet(ctx)
	if filter.ID != "" {
		reload = reload.Where("id = ?", filter.ID)
	} else {
		reload = reload.Where("report_id = ?", filter.ReportID)
	}
	if err := reload.Find(&changed).Error; err != nil {
		s.Log.Warn("failed to reload reviewed domains", zap.Error(err))
		return nil
	}
	for _, d := range changed {
		s.publish(ctx, TableDomains, realtime.Update, d, nil)
	}
	return nil
}

// UpdateReport implements Store
func (s *GormStore) UpdateReport(ctx context.Context, id string, review ReportReview) error {
	updates := map[string]interface{}{"status": review.Status}
	if review.ReviewedBy != "" {
		updates["reviewed_by"] = review.ReviewedBy
		updates["reviewed_at"] = review.ReviewedAt
	}
	if review.ReviewNotes != nil {
		updates["review_notes"] = *review.ReviewNotes
	}

	res := s.DB.WithContext(ctx).Model(&models.Report{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	var report models.Report
	if err := s.quiet(ctx).First(&report, "id = ?", id).Error; err == nil {
		s.publish(ctx, TableReports, realtime.Update, report, nil)
	}
	return nil
}

// CreateReport implements Store. One pending domain is created per name.
func (s *GormStore) CreateReport(ctx context.Context, report *models.Report, domainNames []string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range domainNames {
			report.Domains = append(report.Domains, models.Domain{DomainName: name, Status: models.DomainPending})
		}
		return tx.Create(report).Error
	})
	if err != nil {
		return err
	}

	s.publish(ctx, TableReports, realtime.Insert, report, nil)
	for _, d := range report.Domains {
		s.publish(ctx, TableDomains, realtime.Insert, d, nil)
	}
	return nil
}

// Ping implements Store
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func missingSites(tx *gorm.DB, siteIDs []string) (string, error) {
	if len(siteIDs) == 0 {
		return "", nil
	}
	var found int64
	if err := tx.Model(&models.Site{}).Where("id IN ?", dedupe(siteIDs)).Count(&found).Error; err != nil {
		return "", err
	}
	if int(found) != len(dedupe(siteIDs)) {
		return "One or more sites do not exist", nil
	}
	return "", nil
}

func assignSites(tx *gorm.DB, userID string, siteIDs []string, assignedBy string) ([]models.UserSite, error) {
	ids := dedupe(siteIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	var by *string
	if assignedBy != "" {
		by = &assignedBy
	}
	now := time.Now().UTC()
	rows := make([]models.UserSite, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.UserSite{UserID: userID, SiteID: id, AssignedBy: by, AssignedAt: now})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
