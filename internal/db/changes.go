package db

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/internal/realtime"
)

// Publisher receives committed row changes.
type Publisher interface {
	Publish(ctx context.Context, e realtime.Event) error
}

const pendingEventsKey = "bloodboard:pending_events"

// ChangePlugin publishes a realtime event for every committed mutation of a tracked table.
// Events are collected while the statement runs and published after its transaction commits.
type ChangePlugin struct {
	Feed   Publisher
	Logger *zap.Logger
}

func (p *ChangePlugin) Name() string { return "bloodboard:changes" }

func (p *ChangePlugin) Initialize(db *gorm.DB) error {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if err := registerSnapshots(db); err != nil {
		return err
	}
	cb := db.Callback()
	if err := cb.Create().After("gorm:create").Register("bloodboard:collect_create", p.collect(realtime.EventInsert)); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("bloodboard:collect_update", p.collect(realtime.EventUpdate)); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("bloodboard:collect_delete", p.collect(realtime.EventDelete)); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:commit_or_rollback_transaction").Register("bloodboard:publish_create", p.publish); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:commit_or_rollback_transaction").Register("bloodboard:publish_update", p.publish); err != nil {
		return err
	}
	return cb.Delete().After("gorm:commit_or_rollback_transaction").Register("bloodboard:publish_delete", p.publish)
}

func (p *ChangePlugin) collect(t realtime.EventType) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if !tracked(db) || db.Statement.RowsAffected == 0 {
			return
		}
		var events []realtime.Event
		for _, c := range changes(db, t != realtime.EventDelete) {
			events = append(events, realtime.Event{
				Table:     db.Statement.Table,
				Type:      t,
				New:       c.new,
				Old:       c.old,
				Timestamp: time.Now().UTC(),
			})
		}
		db.InstanceSet(pendingEventsKey, events)
	}
}

func (p *ChangePlugin) publish(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	v, ok := db.InstanceGet(pendingEventsKey)
	if !ok {
		return
	}
	events, _ := v.([]realtime.Event)
	ctx := context.WithoutCancel(db.Statement.Context)
	if held, ok := ctx.Value(heldEventsKey{}).(*heldEvents); ok {
		held.add(func() { p.send(ctx, events) })
		return
	}
	p.send(ctx, events)
}

func (p *ChangePlugin) send(ctx context.Context, events []realtime.Event) {
	for _, e := range events {
		if err := p.Feed.Publish(ctx, e); err != nil {
			p.Logger.Warn("failed to publish change", zap.String("table", e.Table), zap.String("type", string(e.Type)), zap.Error(err))
		}
	}
}

type heldEventsKey struct{}

// heldEvents queues the publications of statements running inside an explicit transaction.
type heldEvents struct {
	mu    sync.Mutex
	sends []func()
}

func (h *heldEvents) add(send func()) {
	h.mu.Lock()
	h.sends = append(h.sends, send)
	h.mu.Unlock()
}

func (h *heldEvents) flush() {
	h.mu.Lock()
	sends := h.sends
	h.sends = nil
	h.mu.Unlock()
	for _, send := range sends {
		send()
	}
}

// Transaction runs fn in one transaction. Audit entries written by fn commit or roll back
// with it, and its change events are published only once the transaction has committed.
func Transaction(ctx context.Context, gdb *gorm.DB, fn func(tx *gorm.DB) error) error {
	held := &heldEvents{}
	ctx = context.WithValue(ctx, heldEventsKey{}, held)
	if err := gdb.WithContext(ctx).Transaction(fn); err != nil {
		return err
	}
	held.flush()
	return nil
}

// Install registers the audit and change plugins on db. feed may be nil to disable publishing.
func Install(db *gorm.DB, feed Publisher, log *zap.Logger) error {
	if err := db.Use(&AuditPlugin{Logger: log}); err != nil {
		return err
	}
	if feed == nil {
		return nil
	}
	return db.Use(&ChangePlugin{Feed: feed, Logger: log})
}
