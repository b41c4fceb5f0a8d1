package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "bloodboard:changes:"

// RedisFeed fans events out through Redis pub/sub, one channel per table,
// so every server instance sees changes committed by the others.
type RedisFeed struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisFeed(client *redis.Client, logger *zap.Logger) *RedisFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFeed{client: client, logger: logger}
}

func channel(table string) string { return channelPrefix + table }

func (f *RedisFeed) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := f.client.Publish(ctx, channel(e.Table), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Table, err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, table string, types ...EventType) (*Subscription, error) {
	ps := f.client.Subscribe(ctx, channel(table))
	// wait for the subscription to be confirmed so no event published afterwards is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	sub := newSubscription(func() { _ = ps.Close() })
	go f.forward(ps, sub, table, types)
	closeOnCancel(ctx, sub)
	return sub, nil
}

func (f *RedisFeed) forward(ps *redis.PubSub, sub *Subscription, table string, types []EventType) {
	defer close(sub.ch)
	msgs := ps.Channel()
	for {
		select {
		case <-sub.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				f.logger.Warn("discarding malformed realtime event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if !e.matches(table, types) {
				continue
			}
			select {
			case sub.ch <- e:
			case <-sub.done:
				return
			default:
				f.logger.Warn("dropping realtime event for slow subscriber", zap.String("table", table))
			}
		}
	}
}

// Close is a no-op: the Redis client is owned by the caller.
func (f *RedisFeed) Close() error { return nil }
