package models

import (
	"time"

	"gorm.io/gorm"
)

// Shortage is a status report for one blood type at one center.
type Shortage struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CenterID  string         `gorm:"type:uuid;not null;index" json:"center_id"`
	BloodType BloodType      `gorm:"size:3;not null;index" json:"blood_type"`
	Status    ShortageStatus `gorm:"size:16;not null;default:normal;index" json:"status"`
	Notes     *string        `gorm:"type:text" json:"notes"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	Center *Center `gorm:"foreignKey:CenterID;constraint:OnDelete:CASCADE" json:"centers,omitempty"`
}

func (Shortage) TableName() string { return "shortages" }

func (s *Shortage) BeforeCreate(_ *gorm.DB) error {
	ensureID(&s.ID)
	if s.Status == "" {
		s.Status = StatusNormal
	}
	return nil
}

func (s *Shortage) GetCenterID() string { return s.CenterID }
