package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditLog is an append-only record of a mutation, written by the store layer.
type AuditLog struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    *string        `gorm:"type:uuid;index" json:"user_id"`
	CenterID  *string        `gorm:"type:uuid;index" json:"center_id"`
	Action    AuditAction    `gorm:"size:16;not null;index" json:"action"`
	Table     string         `gorm:"column:table_name;size:64;not null" json:"table_name"`
	OldData   map[string]any `gorm:"type:text;serializer:json" json:"old_data"`
	NewData   map[string]any `gorm:"type:text;serializer:json" json:"new_data"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
	IPAddress *string        `gorm:"size:64" json:"ip_address"`

	Center *CenterSummary `gorm:"-" json:"centers,omitempty"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	ensureID(&a.ID)
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}

// AuditFilters narrows the audit viewer query. Empty fields do not constrain.
type AuditFilters struct {
	CenterID  string
	Action    string
	StartDate *time.Time
	EndDate   *time.Time
}
