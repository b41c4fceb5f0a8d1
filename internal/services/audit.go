package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/policy"
)

const (
	MsgOnlyAdminsAudit = "Only admins can view audit logs"
	auditLimit         = 100
	msgLoadAuditFailed = "Failed to load audit logs"
)

type AuditService struct {
	db   *gorm.DB
	gate *policy.AuthGate
	log  *zap.Logger
}

func NewAuditService(gdb *gorm.DB, g *policy.AuthGate, log *zap.Logger) *AuditService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditService{db: gdb, gate: g, log: log}
}

// ListAuditLogs returns the latest audit entries matching f, newest first, for admins.
func (s *AuditService) ListAuditLogs(ctx context.Context, f models.AuditFilters) ([]models.AuditLog, error) {
	if _, err := authorize(ctx, s.gate, gate.ActionView, policy.ResourceAudit, nil, sameDenial(MsgOnlyAdminsAudit)); err != nil {
		return nil, err
	}
	return s.query(ctx, f)
}

func (s *AuditService) query(ctx context.Context, f models.AuditFilters) ([]models.AuditLog, error) {
	q := s.db.WithContext(ctx).Order("timestamp DESC").Limit(auditLimit)
	if f.CenterID != "" {
		q = q.Where("center_id = ?", f.CenterID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.StartDate != nil {
		q = q.Where("timestamp >= ?", f.StartDate.UTC())
	}
	if f.EndDate != nil {
		q = q.Where("timestamp <= ?", f.EndDate.UTC())
	}
	var logs []models.AuditLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, storeError(msgLoadAuditFailed, err)
	}
	if err := s.attachCenters(ctx, logs); err != nil {
		return nil, storeError(msgLoadAuditFailed, err)
	}
	return logs, nil
}

// attachCenters joins each entry with its center; entries of deleted centers keep a nil center.
func (s *AuditService) attachCenters(ctx context.Context, logs []models.AuditLog) error {
	ids := make([]string, 0, len(logs))
	seen := map[string]bool{}
	for _, l := range logs {
		if l.CenterID != nil && !seen[*l.CenterID] {
			seen[*l.CenterID] = true
			ids = append(ids, *l.CenterID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	var centers []models.CenterSummary
	if err := s.db.WithContext(ctx).Model(&models.Center{}).Select("id", "name", "district").Where("id IN ?", ids).Find(&centers).Error; err != nil {
		return err
	}
	byID := make(map[string]*models.CenterSummary, len(centers))
	for i := range centers {
		byID[centers[i].ID] = &centers[i]
	}
	for i := range logs {
		if logs[i].CenterID != nil {
			logs[i].Center = byID[*logs[i].CenterID]
		}
	}
	return nil
}

// CentersForAudit lists centers for the audit filter dropdown.
func (s *AuditService) CentersForAudit(ctx context.Context) ([]models.CenterSummary, error) {
	var out []models.CenterSummary
	if err := s.db.WithContext(ctx).Model(&models.Center{}).Select("id", "name", "district").Order("name ASC").Find(&out).Error; err != nil {
		return nil, storeError(msgLoadCentersFailed, err)
	}
	return out, nil
}

// ParseAuditFilters reads the viewer query. Dates are YYYY-MM-DD; the end date is inclusive.
func ParseAuditFilters(centerID, action, start, end string) models.AuditFilters {
	f := models.AuditFilters{CenterID: centerID, Action: action}
	if t, err := time.Parse(time.DateOnly, start); err == nil {
		f.StartDate = &t
	}
	if t, err := time.Parse(time.DateOnly, end); err == nil {
		t = t.Add(24*time.Hour - time.Nanosecond)
		f.EndDate = &t
	}
	return f
}
