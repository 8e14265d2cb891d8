package subscriber

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supmap-tracking/internal/navigation"
	"supmap-tracking/internal/tracking"
)

type fakeController struct {
	starts  chan tracking.StartRequest
	stops   int
	stopErr error
}

func (c *fakeController) StartSession(_ context.Context, req tracking.StartRequest) (tracking.Snapshot, error) {
	c.starts <- req
	return tracking.Snapshot{SessionID: "s1"}, nil
}

func (c *fakeController) StopSession(context.Context) (tracking.Snapshot, error) {
	c.stops++
	return tracking.Snapshot{SessionID: "s1"}, c.stopErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleMessage(t *testing.T) {
	c := &fakeController{starts: make(chan tracking.StartRequest, 1)}
	s := NewSubscriber(discardLogger(), nil, "tracking:control", c)
	ctx := context.Background()

	err := s.handleMessage(ctx, `{"action":"start","data":{"destination":{"latitude":16.2253,"longitude":77.8097},"collector_endpoint":"collector.local:3000"}}`)
	require.NoError(t, err)
	req := <-c.starts
	assert.Equal(t, navigation.Point{Lat: 16.2253, Lon: 77.8097}, req.Destination)
	assert.Equal(t, "collector.local:3000", req.CollectorEndpoint)

	require.NoError(t, s.handleMessage(ctx, `{"action":"stop"}`))
	assert.Equal(t, 1, c.stops)

	c.stopErr = navigation.ErrNoSession
	err = s.handleMessage(ctx, `{"action":"stop"}`)
	assert.True(t, errors.Is(err, navigation.ErrNoSession))

	assert.Error(t, s.handleMessage(ctx, `{"action":"pause"}`))
	assert.Error(t, s.handleMessage(ctx, `{`))
	assert.Error(t, s.handleMessage(ctx, `{"action":"start","data":"nope"}`))
}

func TestStart_ConsumesChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := &fakeController{starts: make(chan tracking.StartRequest, 1)}
	s := NewSubscriber(discardLogger(), client, "tracking:control", c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		return client.Publish(context.Background(), "tracking:control",
			`{"action":"start","data":{"destination":{"latitude":1,"longitude":2},"collector_endpoint":"c.local:1"}}`).Val() > 0
	}, time.Second, 10*time.Millisecond)

	select {
	case req := <-c.starts:
		assert.Equal(t, "c.local:1", req.CollectorEndpoint)
	case <-time.After(time.Second):
		t.Fatal("start request not delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}
