package db

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/internal/models"
)

// AuditPlugin appends an AuditLog for every create, update and delete of a tracked
// table. The entry is written in the same transaction as the mutation.
type AuditPlugin struct {
	Logger *zap.Logger
}

func (p *AuditPlugin) Name() string { return "bloodboard:audit" }

func (p *AuditPlugin) Initialize(db *gorm.DB) error {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if err := registerSnapshots(db); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register("bloodboard:audit_create", p.record(models.AuditCreate)); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("bloodboard:audit_update", p.record(models.AuditUpdate)); err != nil {
		return err
	}
	return db.Callback().Delete().After("gorm:delete").Register("bloodboard:audit_delete", p.record(models.AuditDelete))
}

func (p *AuditPlugin) record(action models.AuditAction) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if !tracked(db) || db.Statement.RowsAffected == 0 {
			return
		}
		actor, _ := ActorFromContext(db.Statement.Context)
		for _, c := range changes(db, action != models.AuditDelete) {
			entry := &models.AuditLog{
				UserID:    models.StringPtr(actor.UserID),
				CenterID:  models.StringPtr(c.centerID),
				Action:    action,
				Table:     db.Statement.Table,
				OldData:   c.old,
				NewData:   c.new,
				Timestamp: time.Now().UTC(),
				IPAddress: models.StringPtr(actor.IPAddress),
			}
			if action == models.AuditCreate {
				entry.OldData = nil
			}
			if err := db.Session(&gorm.Session{NewDB: true}).Create(entry).Error; err != nil {
				p.Logger.Error("failed to write audit log",
					zap.String("table", entry.Table), zap.String("action", string(action)), zap.Error(err))
				_ = db.AddError(err)
				return
			}
		}
	}
}

// RecordAudit appends an audit entry for a change made outside the store,
// such as an identity removed from the auth provider.
func RecordAudit(db *gorm.DB, entry *models.AuditLog) error {
	if entry.UserID == nil || entry.IPAddress == nil {
		if actor, ok := ActorFromContext(db.Statement.Context); ok {
			if entry.UserID == nil {
				entry.UserID = models.StringPtr(actor.UserID)
			}
			if entry.IPAddress == nil {
				entry.IPAddress = models.StringPtr(actor.IPAddress)
			}
		}
	}
	return db.Create(entry).Error
}
