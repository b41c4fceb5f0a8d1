package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/policy"
	"github.com/diewo77/bloodboard/validation"
)

const (
	MsgOwnCenterOnly       = "You can only manage shortages of your own center"
	MsgOnlyAdminsDelete    = "Only admins can delete shortages"
	MsgInvalidBloodType    = "Please select a valid blood type"
	MsgInvalidStatus       = "Please select a valid status"
	MsgShortageNotFound    = "Shortage not found"
	msgLoadShortagesFailed = "Failed to load shortages"
	msgSaveShortageFailed  = "Failed to save shortage"
)

// ShortageFilters narrows GetShortages. Empty fields do not constrain.
type ShortageFilters struct {
	BloodType string
	District  string
	Status    string
}

// ShortageInput is the shortage form. Status may be empty on create.
type ShortageInput struct {
	BloodType string `form:"blood_type" validate:"required,oneof=O+ O- A+ A- B+ B- AB+ AB-"`
	Status    string `form:"status" validate:"omitempty,oneof=critical low normal"`
	Notes     string `form:"notes"`
}

func (in ShortageInput) validate(requireStatus bool) error {
	v := validation.Struct(in)
	switch {
	case v.Has("blood_type"):
		return apperrors.Validation(MsgInvalidBloodType)
	case v.Has("status"), requireStatus && in.Status == "":
		return apperrors.Validation(MsgInvalidStatus)
	}
	return nil
}

type ShortageService struct {
	db    *gorm.DB
	gate  *policy.AuthGate
	cache cache.Store
	log   *zap.Logger
}

func NewShortageService(gdb *gorm.DB, g *policy.AuthGate, store cache.Store, log *zap.Logger) *ShortageService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ShortageService{db: gdb, gate: g, cache: store, log: log}
}

// GetShortages lists shortages with their center, newest first.
func (s *ShortageService) GetShortages(ctx context.Context, f ShortageFilters) ([]models.Shortage, error) {
	q := s.db.WithContext(ctx).Preload("Center").Order("created_at DESC")
	if f.BloodType != "" {
		q = q.Where("blood_type = ?", f.BloodType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.District != "" {
		q = q.Where("center_id IN (?)", s.db.Model(&models.Center{}).Select("id").Where("district = ?", f.District))
	}
	var out []models.Shortage
	if err := q.Find(&out).Error; err != nil {
		return nil, storeError(msgLoadShortagesFailed, err)
	}
	return out, nil
}

func (s *ShortageService) GetShortagesByCenter(ctx context.Context, centerID string) ([]models.Shortage, error) {
	var out []models.Shortage
	if err := s.db.WithContext(ctx).Preload("Center").Where("center_id = ?", centerID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, storeError(msgLoadShortagesFailed, err)
	}
	return out, nil
}

// GetUserCenter returns the caller's membership with its center.
func (s *ShortageService) GetUserCenter(ctx context.Context) (*models.UserCenter, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	var m models.UserCenter
	err = s.db.WithContext(ctx).Preload("Center").Where("user_id = ?", userID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound(apperrors.MsgNoCenterAssigned)
	}
	if err != nil {
		return nil, storeError(msgSomethingWentWrong, err)
	}
	return &m, nil
}

// CreateShortage reports a shortage for the caller's center.
func (s *ShortageService) CreateShortage(ctx context.Context, in ShortageInput) (*models.Shortage, error) {
	profile, err := authorize(ctx, s.gate, gate.ActionCreate, policy.ResourceShortage, nil, sameDenial(apperrors.MsgNoCenterShort))
	if err != nil {
		return nil, err
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}
	sh := &models.Shortage{
		CenterID:  profile.CenterID(),
		BloodType: models.BloodType(in.BloodType),
		Status:    models.ShortageStatus(in.Status),
		Notes:     models.StringPtr(in.Notes),
	}
	if err := s.db.WithContext(ctx).Create(sh).Error; err != nil {
		return nil, storeError(msgSaveShortageFailed, err)
	}
	invalidate(ctx, s.cache, s.log, PathHome, PathDashboard)
	return sh, nil
}

func (s *ShortageService) find(ctx context.Context, id string) (*models.Shortage, error) {
	var sh models.Shortage
	err := s.db.WithContext(ctx).First(&sh, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound(MsgShortageNotFound)
	}
	if err != nil {
		return nil, storeError(msgLoadShortagesFailed, err)
	}
	return &sh, nil
}

// UpdateShortage changes a shortage of the caller's own center.
func (s *ShortageService) UpdateShortage(ctx context.Context, id string, in ShortageInput) (*models.Shortage, error) {
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}
	sh, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	d := denials{noProfile: apperrors.MsgNoCenterShort, noPermission: MsgOwnCenterOnly, otherCenter: MsgOwnCenterOnly}
	if _, err := authorize(ctx, s.gate, gate.ActionUpdate, policy.ResourceShortage, sh, d); err != nil {
		return nil, err
	}
	if err := in.validate(true); err != nil {
		return nil, err
	}
	sh.BloodType = models.BloodType(in.BloodType)
	sh.Status = models.ShortageStatus(in.Status)
	sh.Notes = models.StringPtr(in.Notes)
	if err := s.db.WithContext(ctx).Model(sh).Select("blood_type", "status", "notes").Updates(sh).Error; err != nil {
		return nil, storeError(msgSaveShortageFailed, err)
	}
	invalidate(ctx, s.cache, s.log, PathHome, PathDashboard)
	return sh, nil
}

// DeleteShortage removes a shortage. Only admins of the shortage's center may do so.
func (s *ShortageService) DeleteShortage(ctx context.Context, id string) error {
	d := denials{noProfile: MsgOnlyAdminsDelete, noPermission: MsgOnlyAdminsDelete, otherCenter: MsgOwnCenterOnly}
	if _, err := authorize(ctx, s.gate, gate.ActionDelete, policy.ResourceShortage, nil, d); err != nil {
		return err
	}
	sh, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if _, err := authorize(ctx, s.gate, gate.ActionDelete, policy.ResourceShortage, sh, d); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(sh).Error; err != nil {
		return storeError("Failed to delete shortage", err)
	}
	invalidate(ctx, s.cache, s.log, PathHome, PathDashboard)
	return nil
}
