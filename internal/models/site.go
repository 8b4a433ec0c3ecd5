package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnknownSite is shown for reports whose site is missing from the directory
const UnknownSite = "Unknown Site"

// Site is a physical location reports are filed against
type Site struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name        string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	DisplayName string    `gorm:"size:255;not null" json:"display_name"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// BeforeCreate assigns an id for new sites
func (s *Site) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Key identifies the row for change reconciliation
func (s Site) Key() string {
	return s.ID
}

// TableName overrides the table name for Site
func (Site) TableName() string {
	return "sites"
}

// SiteName returns the display name of a site from a directory listing
func SiteName(siteID string, sites []Site) string {
	for _, s := range sites {
		if s.ID == siteID && s.DisplayName != "" {
			return s.DisplayName
		}
	}
	return UnknownSite
}
