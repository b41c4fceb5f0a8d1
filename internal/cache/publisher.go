package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/diewo77/bloodboard/internal/realtime"
)

type publisher interface {
	Publish(ctx context.Context, e realtime.Event) error
}

// InvalidatingPublisher drops cached views before forwarding a change event, so
// a browser re-fetching on the event never reads a stale entry.
type InvalidatingPublisher struct {
	Store  Store
	Next   publisher
	Paths  []string
	Logger *zap.Logger
}

func (p *InvalidatingPublisher) Publish(ctx context.Context, e realtime.Event) error {
	if err := p.Store.Invalidate(ctx, p.Paths...); err != nil && p.Logger != nil {
		p.Logger.Warn("cache invalidation on change failed", zap.String("table", e.Table), zap.Error(err))
	}
	return p.Next.Publish(ctx, e)
}
