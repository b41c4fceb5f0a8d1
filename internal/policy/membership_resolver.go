package policy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/internal/models"
)

// MembershipResolver resolves a user id to the profile of its center membership.
type MembershipResolver struct {
	DB *gorm.DB
}

func NewMembershipResolver(db *gorm.DB) *MembershipResolver {
	return &MembershipResolver{DB: db}
}

// Resolve returns nil, nil when the user has no membership.
func (r *MembershipResolver) Resolve(ctx context.Context, userID string) (gate.Profile, error) {
	var m models.UserCenter
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Roles.Profile(m.CenterID, string(m.Role)), nil
}
