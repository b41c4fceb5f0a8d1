package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/db"
	"github.com/diewo77/bloodboard/internal/identity"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/policy"
	"github.com/diewo77/bloodboard/validation"
)

const (
	MsgOnlyAdminsCreateCenters = "Only admins can create centers"
	MsgOnlyAdminsUpdateCenters = "Only admins can update centers"
	MsgOnlyAdminsDeleteCenters = "Only admins can delete centers"
	MsgOnlyAdminsOfficials     = "Only admins can view officials"
	MsgInvalidOpeningHours     = "Opening hours must be a JSON object of day to hours"
	MsgCenterNotFound          = "Center not found"
	msgLoadCentersFailed       = "Failed to load centers"
	msgSaveCenterFailed        = "Failed to save center"
	msgDeleteCenterFailed      = "Failed to delete center"
)

// CenterInput is the center form. OpeningHours is a JSON object such as {"mon":"8-17"}.
type CenterInput struct {
	Name         string `form:"name"`
	District     string `form:"district"`
	Address      string `form:"address"`
	Phone        string `form:"phone" validate:"phone"`
	OpeningHours string `form:"opening_hours"`
}

func (in CenterInput) toCenter() (*models.Center, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.District) == "" {
		return nil, apperrors.Validation(MsgCenterFieldsRequired)
	}
	if validation.Struct(in).Has("phone") {
		return nil, apperrors.Validation(MsgInvalidPhone)
	}
	c := &models.Center{
		Name:     strings.TrimSpace(in.Name),
		District: strings.TrimSpace(in.District),
		Address:  models.StringPtr(in.Address),
		Phone:    models.StringPtr(in.Phone),
	}
	if raw := strings.TrimSpace(in.OpeningHours); raw != "" {
		var hours models.OpeningHours
		if err := json.Unmarshal([]byte(raw), &hours); err != nil || hours == nil {
			return nil, apperrors.Validation(MsgInvalidOpeningHours)
		}
		c.OpeningHours = hours
	}
	return c, nil
}

type CenterService struct {
	db       *gorm.DB
	gate     *policy.AuthGate
	provider identity.Provider
	cache    cache.Store
	log      *zap.Logger
}

func NewCenterService(gdb *gorm.DB, g *policy.AuthGate, provider identity.Provider, store cache.Store, log *zap.Logger) *CenterService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CenterService{db: gdb, gate: g, provider: provider, cache: store, log: log}
}

// GetCenters lists every center by name.
func (s *CenterService) GetCenters(ctx context.Context) ([]models.Center, error) {
	var out []models.Center
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, storeError(msgLoadCentersFailed, err)
	}
	return out, nil
}

// CreateCenter adds a center. The first center may be created by anyone; after
// that only admins may add centers.
func (s *CenterService) CreateCenter(ctx context.Context, in CenterInput) (*models.Center, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Center{}).Limit(1).Count(&count).Error; err != nil {
		return nil, storeError(msgLoadCentersFailed, err)
	}
	if count > 0 {
		if _, err := authorize(ctx, s.gate, gate.ActionCreate, policy.ResourceCenter, nil, sameDenial(MsgOnlyAdminsCreateCenters)); err != nil {
			return nil, err
		}
	}
	c, err := in.toCenter()
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, storeError(msgSaveCenterFailed, err)
	}
	invalidate(ctx, s.cache, s.log, PathHome, PathDashboard, PathSignup)
	return c, nil
}

func (s *CenterService) find(ctx context.Context, id string) (*models.Center, error) {
	var c models.Center
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound(MsgCenterNotFound)
	}
	if err != nil {
		return nil, storeError(msgLoadCentersFailed, err)
	}
	return &c, nil
}

// UpdateCenter replaces the editable fields of the caller's own center.
func (s *CenterService) UpdateCenter(ctx context.Context, id string, in CenterInput) (*models.Center, error) {
	if _, err := authorize(ctx, s.gate, gate.ActionUpdate, policy.ResourceCenter, policy.CenterIDRef(id), sameDenial(MsgOnlyAdminsUpdateCenters)); err != nil {
		return nil, err
	}
	next, err := in.toCenter()
	if err != nil {
		return nil, err
	}
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name, c.District, c.Address, c.Phone, c.OpeningHours = next.Name, next.District, next.Address, next.Phone, next.OpeningHours
	if err := s.db.WithContext(ctx).Model(c).Select("name", "district", "address", "phone", "opening_hours").Updates(c).Error; err != nil {
		return nil, storeError(msgSaveCenterFailed, err)
	}
	invalidate(ctx, s.cache, s.log, PathHome, PathDashboard, PathSignup)
	return c, nil
}

// DeleteCenter removes the caller's own center with its shortages and memberships.
// Dependents are deleted row by row in one transaction so each removal is audited
// and nothing is removed unless the center itself is.
func (s *CenterService) DeleteCenter(ctx context.Context, id string) error {
	if _, err := authorize(ctx, s.gate, gate.ActionDelete, policy.ResourceCenter, policy.CenterIDRef(id), sameDenial(MsgOnlyAdminsDeleteCenters)); err != nil {
		return err
	}
	c, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	err = db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		var shortages []models.Shortage
		if err := tx.Where("center_id = ?", id).Find(&shortages).Error; err != nil {
			return storeError(msgLoadShortagesFailed, err)
		}
		for i := range shortages {
			if err := tx.Delete(&shortages[i]).Error; err != nil {
				return storeError(msgDeleteCenterFailed, err)
			}
		}
		var members []models.UserCenter
		if err := tx.Where("center_id = ?", id).Find(&members).Error; err != nil {
			return storeError(msgSomethingWentWrong, err)
		}
		for i := range members {
			if err := tx.Delete(&members[i]).Error; err != nil {
				return storeError(msgDeleteCenterFailed, err)
			}
		}
		if err := tx.Delete(c).Error; err != nil {
			return storeError(msgDeleteCenterFailed, err)
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to delete center", zap.String("center_id", id), zap.Error(err))
		return err
	}

	s.gate.InvalidateAll()
	invalidate(ctx, s.cache, s.log, PathHome, PathDashboard, PathSignup)
	return nil
}

// GetOfficialsForCenter lists the memberships of a center, newest first, for its admins.
// Emails are filled in when the identity provider knows the user.
func (s *CenterService) GetOfficialsForCenter(ctx context.Context, centerID string) ([]models.Official, error) {
	if _, err := authorize(ctx, s.gate, gate.ActionList, policy.ResourceOfficial, policy.CenterIDRef(centerID), sameDenial(MsgOnlyAdminsOfficials)); err != nil {
		return nil, err
	}
	var members []models.UserCenter
	if err := s.db.WithContext(ctx).Where("center_id = ?", centerID).Order("created_at DESC").Find(&members).Error; err != nil {
		return nil, storeError(msgSomethingWentWrong, err)
	}
	out := make([]models.Official, 0, len(members))
	for _, m := range members {
		o := models.Official{ID: m.ID, UserID: m.UserID, CenterID: m.CenterID, Role: m.Role, CreatedAt: m.CreatedAt}
		if s.provider != nil {
			if u, err := s.provider.GetUser(ctx, m.UserID); err == nil && u != nil {
				o.Email = u.Email
			} else if err != nil {
				s.log.Debug("could not resolve official email", zap.String("user_id", m.UserID), zap.Error(err))
			}
		}
		out = append(out, o)
	}
	return out, nil
}
