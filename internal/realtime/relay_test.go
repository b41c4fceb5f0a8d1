package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_ForwardsEvents(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(NewRelay(hub, nil, "shortages", "centers"))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?table=shortages", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, Event{Table: "shortages", Type: EventInsert, New: map[string]any{"blood_type": "O+"}}))

	var got Event
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, "shortages", got.Table)
	assert.Equal(t, EventInsert, got.Type)
	assert.Equal(t, "O+", got.New["blood_type"])
}

func TestRelay_UnsubscribesOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(NewRelay(hub, nil, "shortages"))
	defer srv.Close()

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_RejectsUnknownTable(t *testing.T) {
	srv := httptest.NewServer(NewRelay(NewHub(nil), nil, "shortages", "centers"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?table=audit_logs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
