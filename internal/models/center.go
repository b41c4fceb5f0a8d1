package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OpeningHours maps a day label (e.g. "Monday") to an hours string (e.g. "8:00 - 16:00").
type OpeningHours map[string]string

// Center is a blood bank location that owns shortage reports.
type Center struct {
	ID           string       `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string       `gorm:"size:255;not null" json:"name"`
	District     string       `gorm:"size:100;not null;index" json:"district"`
	Address      *string      `gorm:"size:500" json:"address"`
	Phone        *string      `gorm:"size:50" json:"phone"`
	OpeningHours OpeningHours `gorm:"type:text;serializer:json" json:"opening_hours"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Center) TableName() string { return "centers" }

func (c *Center) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// GetCenterID lets centers take part in center-scoped authorization.
func (c *Center) GetCenterID() string { return c.ID }

// CenterSummary is the projection used by filter dropdowns and the audit viewer.
type CenterSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	District string `json:"district"`
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// StringPtr returns nil for an empty string, mirroring nullable form fields.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
