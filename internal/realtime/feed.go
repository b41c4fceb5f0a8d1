package realtime

import (
	"context"
	"sync"
)

// Feed publishes change events and hands out per-table subscriptions.
type Feed interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe delivers events of table, optionally restricted to types, until the
	// subscription is closed or ctx is cancelled.
	Subscribe(ctx context.Context, table string, types ...EventType) (*Subscription, error)
	Close() error
}

// Subscription is a live stream of events. C is closed once the subscription is released.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	done    chan struct{}
	once    sync.Once
	release func()
}

const subscriptionBuffer = 32

func newSubscription(release func()) *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	return &Subscription{C: ch, ch: ch, done: make(chan struct{}), release: release}
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
}

// Done is closed when the subscription has been released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// closeOnCancel releases s once ctx is done.
func closeOnCancel(ctx context.Context, s *Subscription) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}
