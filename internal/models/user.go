package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an identity managed by the built-in identity provider.
type User struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Email            string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash     string     `gorm:"size:255;not null" json:"-"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(_ *gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

// CodePurpose tells what a one-time code may be redeemed for.
type CodePurpose string

const (
	CodeLogin  CodePurpose = "login"
	CodeSignup CodePurpose = "signup"
)

// OneTimeCode is a single-use email code; only its hash is stored.
type OneTimeCode struct {
	ID         string      `gorm:"type:uuid;primaryKey"`
	Email      string      `gorm:"size:255;not null;index"`
	CodeHash   string      `gorm:"size:255;not null"`
	Purpose    CodePurpose `gorm:"size:16;not null"`
	ExpiresAt  time.Time   `gorm:"not null"`
	ConsumedAt *time.Time
	// FailedAttempts counts wrong guesses; the code is burned at MaxCodeAttempts.
	FailedAttempts int `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

// MaxCodeAttempts is how many wrong guesses a one-time code tolerates.
const MaxCodeAttempts = 5

func (OneTimeCode) TableName() string { return "one_time_codes" }

func (c *OneTimeCode) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// Usable reports whether the code can still be redeemed at now.
func (c *OneTimeCode) Usable(now time.Time) bool {
	return c.ConsumedAt == nil && c.FailedAttempts < MaxCodeAttempts && now.Before(c.ExpiresAt)
}
