package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportStatus is the review state of a report
type ReportStatus string

const (
	ReportQueued     ReportStatus = "queued"
	ReportProcessing ReportStatus = "processing"
	ReportApproved   ReportStatus = "approved"
	ReportRejected   ReportStatus = "rejected"
)

// DomainStatus is the review state of a single domain of a report
type DomainStatus string

const (
	DomainPending  DomainStatus = "pending"
	DomainApproved DomainStatus = "approved"
	DomainRejected DomainStatus = "rejected"
)

// Report is an uploaded document and its review state
type Report struct {
	ID             string       `gorm:"type:char(36);primaryKey" json:"id"`
	ReportNumber   string       `gorm:"size:64;index" json:"report_number"`
	Filename       string       `gorm:"size:255;not null" json:"filename"`
	Status         ReportStatus `gorm:"size:16;not null;index" json:"status"`
	SiteID         *string      `gorm:"type:char(36);index" json:"site_id"`
	UploadedBy     string       `gorm:"type:char(36);index;not null" json:"uploaded_by"`
	ReviewedBy     *string      `gorm:"type:char(36)" json:"reviewed_by"`
	UploadedAt     time.Time    `gorm:"index" json:"uploaded_at"`
	ReviewedAt     *time.Time   `json:"reviewed_at"`
	FileSize       int64        `json:"file_size"`
	ReviewNotes    *string      `gorm:"type:text" json:"review_notes"`
	AgentID        string       `gorm:"size:64" json:"agent_id,omitempty"`
	Analysis       *JSON        `json:"analysis,omitempty"`
	Domains        []Domain     `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE" json:"domains"`
	UploadedByUser *User        `gorm:"foreignKey:UploadedBy" json:"uploaded_by_user,omitempty"`
	ReviewedByUser *User        `gorm:"foreignKey:ReviewedBy" json:"reviewed_by_user,omitempty"`
	Site           *Site        `gorm:"foreignKey:SiteID" json:"site,omitempty"`
}

// BeforeCreate assigns id, number and upload time for new reports
func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.UploadedAt.IsZero() {
		r.UploadedAt = time.Now().UTC()
	}
	if r.ReportNumber == "" {
		r.ReportNumber = "RPT-" + r.UploadedAt.Format("20060102") + "-" + r.ID[:8]
	}
	if r.Status == "" {
		r.Status = ReportQueued
	}
	return nil
}

// Key identifies the row for change reconciliation
func (r Report) Key() string {
	return r.ID
}

// TableName overrides the table name for Report
func (Report) TableName() string {
	return "reports"
}

// Domain is one independently reviewable part of a report
type Domain struct {
	ID              string       `gorm:"type:char(36);primaryKey" json:"id"`
	ReportID        string       `gorm:"type:char(36);index;not null" json:"report_id"`
	DomainName      string       `gorm:"size:255;not null" json:"domain_name"`
	Status          DomainStatus `gorm:"size:16;not null" json:"status"`
	RejectionReason *string      `gorm:"type:text" json:"rejection_reason"`
	ReviewedBy      *string      `gorm:"type:char(36)" json:"reviewed_by"`
	ReviewedAt      *time.Time   `json:"reviewed_at"`
}

// BeforeCreate assigns an id for new domains
func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DomainPending
	}
	return nil
}

// Key identifies the row for change reconciliation
func (d Domain) Key() string {
	return d.ID
}

// TableName overrides the table name for Domain
func (Domain) TableName() string {
	return "domains"
}

// DomainCounts tallies domain states for a report
func (r *Report) DomainCounts() (approved, rejected, pending int) {
	for _, d := range r.Domains {
		switch d.Status {
		case DomainApproved:
			approved++
		case DomainRejected:
			rejected++
		default:
			pending++
		}
	}
	return approved, rejected, pending
}
