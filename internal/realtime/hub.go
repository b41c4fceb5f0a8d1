package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned when using a closed feed.
var ErrClosed = errors.New("realtime: feed closed")

type hubSub struct {
	sub   *Subscription
	table string
	types []EventType
}

// Hub is an in-process Feed. Slow subscribers lose events rather than block publishers.
type Hub struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[*Subscription]hubSub
	closed bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, subs: make(map[*Subscription]hubSub)}
}

func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for _, hs := range h.subs {
		if !e.matches(hs.table, hs.types) {
			continue
		}
		select {
		case hs.sub.ch <- e:
		default:
			h.logger.Warn("dropping realtime event for slow subscriber",
				zap.String("table", e.Table), zap.String("type", string(e.Type)))
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, table string, types ...EventType) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	var sub *Subscription
	sub = newSubscription(func() { h.remove(sub) })
	h.subs[sub] = hubSub{sub: sub, table: table, types: types}
	closeOnCancel(ctx, sub)
	return sub, nil
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Close releases every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
