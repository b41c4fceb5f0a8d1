package realtime

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Relay is the websocket endpoint forwarding feed events to browsers.
// GET /realtime?table=shortages
type Relay struct {
	feed           Feed
	logger         *zap.Logger
	tables         []string
	originPatterns []string
}

// NewRelay creates a relay that only accepts subscriptions to tables.
func NewRelay(feed Feed, logger *zap.Logger, tables ...string) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{feed: feed, logger: logger, tables: tables}
}

// AllowOrigins sets the accepted cross-origin host patterns.
func (rl *Relay) AllowOrigins(patterns ...string) { rl.originPatterns = patterns }

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		table = "shortages"
	}
	if !slices.Contains(rl.tables, table) {
		http.Error(w, "unknown table", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: rl.originPatterns})
	if err != nil {
		rl.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := rl.feed.Subscribe(ctx, table)
	if err != nil {
		rl.logger.Error("realtime subscribe failed", zap.String("table", table), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "subscribe_failed")
		return
	}
	defer sub.Close()

	// the client never sends anything; reading detects disconnects
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}
