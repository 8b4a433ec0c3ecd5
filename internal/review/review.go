// review.go
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

package review

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/store"
	"go.uber.org/zap"
)

// ErrReasonRequired is returned when a rejection has no reason
var ErrReasonRequired = errors.New("Rejection reason is required")

// DeriveReportStatus computes a report's status from its domains: approved when every
// domain is approved, rejected when any is rejected, processing otherwise.
// ok is false for an empty set, which leaves the report untouched.
func DeriveReportStatus(domains []models.Domain) (status models.ReportStatus, ok bool) {
	if len(domains) == 0 {
		return models.ReportProcessing, false
	}

	allApproved := true
	anyRejected := false
	for _, d := range domains {
		if d.Status != models.DomainApproved {
			allApproved = false
		}
		if d.Status == models.DomainRejected {
			anyRejected = true
		}
	}

	switch {
	case allApproved:
		return models.ReportApproved, true
	case anyRejected:
		return models.ReportRejected, true
	}
	return models.ReportProcessing, true
}

// Service applies domain and report reviews through the backend
type Service struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates a review Service
func NewService(s store.Store, log *zap.Logger) *Service {
	return &Service{store: s, log: log, now: time.Now}
}

func (s *Service) domainOf(ctx context.Context, reportID, domainID string) error {
	domains, err := s.store.ListDomains(ctx, reportID)
	if err != nil {
		return err
	}
	for _, d := range domains {
		if d.ID == domainID {
			return nil
		}
	}
	return store.ErrNotFound
}

// ApproveDomain approves one domain and recomputes the report status
func (s *Service) ApproveDomain(ctx context.Context, reportID, domainID, reviewerID string) error {
	if err := s.domainOf(ctx, reportID, domainID); err != nil {
		return err
	}
	if err := s.store.UpdateDomains(ctx, store.DomainFilter{ID: domainID}, store.DomainReview{
		Status:     models.DomainApproved,
		ReviewedBy: reviewerID,
		ReviewedAt: s.now().UTC(),
	}); err != nil {
		return err
	}
	s.Recompute(ctx, reportID)
	return nil
}

// RejectDomain rejects one domain with a reason and recomputes the report status
func (s *Service) RejectDomain(ctx context.Context, reportID, domainID, reviewerID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if err := s.domainOf(ctx, reportID, domainID); err != nil {
		return err
	}
	if err := s.store.UpdateDomains(ctx, store.DomainFilter{ID: domainID}, store.DomainReview{
		Status:          models.DomainRejected,
		RejectionReason: &reason,
		ReviewedBy:      reviewerID,
		ReviewedAt:      s.now().UTC(),
	}); err != nil {
		return err
	}
	s.Recompute(ctx, reportID)
	return nil
}

// Recompute re-derives the report status from the latest domains. Failures are logged only;
// the domain review already succeeded.
func (s *Service) Recompute(ctx context.Context, reportID string) {
	domains, err := s.store.ListDomains(ctx, reportID)
	if err != nil {
		s.log.Error("error updating report status", zap.String("report_id", reportID), zap.Error(err))
		return
	}
	status, ok := DeriveReportStatus(domains)
	if !ok {
		return
	}
	if err := s.store.UpdateReport(ctx, reportID, store.ReportReview{Status: status}); err != nil {
		s.log.Error("error updating report status", zap.String("report_id", reportID), zap.Error(err))
	}
}

// ApproveAll approves every domain and the report
func (s *Service) ApproveAll(ctx context.Context, reportID, reviewerID string) error {
	now := s.now().UTC()
	if err := s.store.UpdateDomains(ctx, store.DomainFilter{ReportID: reportID}, store.DomainReview{
		Status:     models.DomainApproved,
		ReviewedBy: reviewerID,
		ReviewedAt: now,
	}); err != nil {
		return err
	}
	return s.store.UpdateReport(ctx, reportID, store.ReportReview{
		Status:     models.ReportApproved,
		ReviewedBy: reviewerID,
		ReviewedAt: now,
	})
}

// RejectAll rejects every domain with the reason, which also becomes the report's review notes
func (s *Service) RejectAll(ctx context.Context, reportID, reviewerID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}

	now := s.now().UTC()
	if err := s.store.UpdateDomains(ctx, store.DomainFilter{ReportID: reportID}, store.DomainReview{
		Status:          models.DomainRejected,
		RejectionReason: &reason,
		ReviewedBy:      reviewerID,
		ReviewedAt:      now,
	}); err != nil {
		return err
	}
	return s.store.UpdateReport(ctx, reportID, store.ReportReview{
		Status:      models.ReportRejected,
		ReviewedBy:  reviewerID,
		ReviewedAt:  now,
		ReviewNotes: &reason,
	})
}
