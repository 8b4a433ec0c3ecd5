// user.go
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

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the application role of a user
type Role string

const (
	RoleUser     Role = "user"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// ParseRole lower-cases and validates a role name
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleReviewer, RoleAdmin:
		return r, true
	}
	return "", false
}

// CanReview reports whether the role may approve or reject domains
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}

// User is an application user, linked to an identity account by AuthUserID
type User struct {
	ID           string     `gorm:"type:char(36);primaryKey" json:"id"`
	AuthUserID   string     `gorm:"type:char(36);uniqueIndex;not null" json:"auth_user_id"`
	Email        string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role         string     `gorm:"size:32" json:"role"`
	IsAdmin      *bool      `json:"is_admin,omitempty"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UserSites    []UserSite `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user_sites,omitempty"`
}

// BeforeCreate assigns ids for new users
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.AuthUserID == "" {
		u.AuthUserID = u.ID
	}
	return nil
}

// NormalizedRole resolves the effective role: an explicit role wins,
// then the legacy is_admin flag, then "user".
func (u *User) NormalizedRole() Role {
	if u == nil {
		return RoleUser
	}
	if u.Role != "" {
		return Role(strings.ToLower(u.Role))
	}
	if u.IsAdmin != nil {
		if *u.IsAdmin {
			return RoleAdmin
		}
		return RoleUser
	}
	return RoleUser
}

// SiteIDs lists the ids of the user's assigned sites
func (u *User) SiteIDs() []string {
	ids := make([]string, 0, len(u.UserSites))
	for _, us := range u.UserSites {
		ids = append(ids, us.SiteID)
	}
	return ids
}

// TableName overrides the table name for User
func (User) TableName() string {
	return "users"
}

// UserSite assigns a site to a user
type UserSite struct {
	UserID     string    `gorm:"type:char(36);primaryKey" json:"user_id"`
	SiteID     string    `gorm:"type:char(36);primaryKey" json:"site_id"`
	AssignedBy *string   `gorm:"type:char(36)" json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
	Site       *Site     `gorm:"foreignKey:SiteID;constraint:OnDelete:CASCADE" json:"sites,omitempty"`
}

// TableName overrides the table name for UserSite
func (UserSite) TableName() string {
	return "user_sites"
}

// UserSitesOf filters assignments down to those of one user
func UserSitesOf(userID string, assignments []UserSite) []UserSite {
	out := make([]UserSite, 0)
	for _, us := range assignments {
		if us.UserID == userID {
			out = append(out, us)
		}
	}
	return out
}
