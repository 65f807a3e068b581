package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Skill is one entry of the shared skills taxonomy. Read-only reference data.
type Skill struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Category  string    `gorm:"size:100;not null;index" json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Skill) TableName() string {
	return "skills"
}

// Identity is the auth provider's record of a member.
type Identity struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	ConfirmedAt  *time.Time `json:"confirmed_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Identity) TableName() string {
	return "identities"
}

// BeforeCreate assigns the identity id when the caller left it empty.
func (i *Identity) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
