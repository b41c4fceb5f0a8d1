package models

import (
	"time"

	"gorm.io/gorm"
)

// UserCenter binds one user to exactly one center with a role.
// Uniqueness per user is enforced by lookup before insert, not by the schema.
type UserCenter struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	CenterID  string    `gorm:"type:uuid;not null;index" json:"center_id"`
	Role      Role      `gorm:"size:16;not null;default:editor" json:"role"`
	CreatedAt time.Time `json:"created_at"`

	Center *Center `gorm:"foreignKey:CenterID;constraint:OnDelete:CASCADE" json:"centers,omitempty"`
}

func (UserCenter) TableName() string { return "user_centers" }

func (m *UserCenter) BeforeCreate(_ *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

func (m *UserCenter) GetCenterID() string { return m.CenterID }

func (m *UserCenter) IsAdmin() bool { return m != nil && m.Role == RoleAdmin }

// Official is a membership of a center listed for its admins.
type Official struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CenterID  string    `json:"center_id"`
	Role      Role      `json:"role"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
