package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supmap-tracking/internal/navigation"
	"supmap-tracking/internal/tracking"
)

type fakeController struct {
	mu    sync.Mutex
	snap  *tracking.Snapshot
	stops int
}

func (c *fakeController) StartSession(_ context.Context, req tracking.StartRequest) (tracking.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = &tracking.Snapshot{SessionID: "s1", Destination: req.Destination}
	return *c.snap, nil
}

func (c *fakeController) StopSession(context.Context) (tracking.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return tracking.Snapshot{}, navigation.ErrNoSession
}

func (c *fakeController) Snapshot() (tracking.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return tracking.Snapshot{}, navigation.ErrNoSession
	}
	return *c.snap, nil
}

func startTestManager(t *testing.T, controller Controller) (*Manager, string) {
	t.Helper()
	m := NewManager(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), controller)
	go m.Start()
	t.Cleanup(m.Shutdown)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		m.HandleNewConnection(r.URL.Query().Get("client_id"), conn)
	}))
	t.Cleanup(srv.Close)
	return m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestManager_SendsCurrentSnapshotOnConnect(t *testing.T) {
	controller := &fakeController{snap: &tracking.Snapshot{SessionID: "s1"}}
	_, url := startTestManager(t, controller)

	conn := dial(t, url+"?client_id=a")
	msg := read(t, conn)
	assert.Equal(t, "snapshot", msg.Type)

	var snap tracking.Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Equal(t, "s1", snap.SessionID)
}

func TestManager_BroadcastsObservedSnapshots(t *testing.T) {
	m, url := startTestManager(t, &fakeController{})

	a := dial(t, url+"?client_id=a")
	b := dial(t, url+"?client_id=b")
	require.Eventually(t, func() bool { return m.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	m.Observe(tracking.Snapshot{SessionID: "s2", Distance: "4.2 km"})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := read(t, conn)
		assert.Equal(t, "snapshot", msg.Type)
		var snap tracking.Snapshot
		require.NoError(t, json.Unmarshal(msg.Data, &snap))
		assert.Equal(t, "4.2 km", snap.Distance)
	}
}

func TestManager_SkipsUnencodableSnapshots(t *testing.T) {
	bad := tracking.Snapshot{SessionID: "bad", Route: &navigation.Route{Distance: math.NaN()}}
	_, err := snapshotMessage(bad)
	require.Error(t, err)

	m, url := startTestManager(t, &fakeController{})
	conn := dial(t, url+"?client_id=a")
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	m.Observe(bad)
	m.Observe(tracking.Snapshot{SessionID: "good"})

	var snap tracking.Snapshot
	require.NoError(t, json.Unmarshal(read(t, conn).Data, &snap))
	assert.Equal(t, "good", snap.SessionID)
}

func TestClient_ControlMessages(t *testing.T) {
	controller := &fakeController{}
	m, url := startTestManager(t, controller)

	conn := dial(t, url+"?client_id=a")
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"type": "stop"}))
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, string(msg.Data), "no tracking session")

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{
		"type": "start",
		"data": map[string]any{
			"destination":        map[string]float64{"latitude": 16.2253, "longitude": 77.8097},
			"collector_endpoint": "collector.local:3000",
		},
	}))
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"type": "snapshot"}))
	msg = read(t, conn)
	assert.Equal(t, "snapshot", msg.Type)
	var snap tracking.Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Equal(t, navigation.Point{Lat: 16.2253, Lon: 77.8097}, snap.Destination)

	controller.mu.Lock()
	assert.Equal(t, 1, controller.stops)
	controller.mu.Unlock()
}
