// Package models contains data structures for the directory's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactMethod selects which contact field of a profile is meaningful.
type ContactMethod string

const (
	// ContactSlack means slack_handle is the member's preferred contact.
	ContactSlack ContactMethod = "slack"
	// ContactEmail means contact_email is the member's preferred contact.
	ContactEmail ContactMethod = "email"
)

// Valid reports whether m is one of the known contact methods.
func (m ContactMethod) Valid() bool {
	return m == ContactSlack || m == ContactEmail
}

// Profile is one member's directory entry. There is at most one per user.
type Profile struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	DisplayName   string        `gorm:"size:100;not null" json:"display_name"`
	Background    string        `gorm:"type:text" json:"background"`
	Bio           *string       `gorm:"type:text" json:"bio"`
	Location      *string       `gorm:"size:100" json:"location"`
	OpenTo        []string      `gorm:"type:jsonb;serializer:json" json:"open_to"`
	CanProvide    []string      `gorm:"type:jsonb;serializer:json" json:"can_provide"`
	Skills        []string      `gorm:"type:jsonb;serializer:json" json:"skills"`
	ContactMethod ContactMethod `gorm:"type:varchar(10);not null;default:'email'" json:"contact_method"`
	SlackHandle   *string       `gorm:"size:100" json:"slack_handle"`
	ContactEmail  *string       `gorm:"size:255" json:"contact_email"`
	LinkedinURL   *string       `gorm:"column:linkedin_url;size:255" json:"linkedin_url"`
	TwitterURL    *string       `gorm:"column:twitter_url;size:255" json:"twitter_url"`
	WebsiteURL    *string       `gorm:"column:website_url;size:255" json:"website_url"`
	IsVisible     bool          `gorm:"not null;index" json:"is_visible"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Profile) TableName() string {
	return "profiles"
}

// BeforeCreate assigns the row id when the caller left it empty.
func (p *Profile) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Normalize()
	return nil
}

// Normalize replaces nil list fields with empty slices so consumers never
// see a null array.
func (p *Profile) Normalize() {
	if p.OpenTo == nil {
		p.OpenTo = []string{}
	}
	if p.CanProvide == nil {
		p.CanProvide = []string{}
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
}

// OwnedBy reports whether the profile belongs to userID.
func (p *Profile) OwnedBy(userID uuid.UUID) bool {
	return p != nil && userID != uuid.Nil && p.UserID == userID
}

// Clone returns a deep copy so callers can hand profiles out without sharing
// backing arrays.
func (p Profile) Clone() Profile {
	out := p
	out.OpenTo = append([]string{}, p.OpenTo...)
	out.CanProvide = append([]string{}, p.CanProvide...)
	out.Skills = append([]string{}, p.Skills...)
	return out
}

// NormalizeProfiles normalizes every element in place and returns the slice,
// never nil.
func NormalizeProfiles(profiles []Profile) []Profile {
	if profiles == nil {
		return []Profile{}
	}
	for i := range profiles {
		profiles[i].Normalize()
	}
	return profiles
}
