package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supmap-tracking/internal/navigation"
)

type sinkFunc func(ctx context.Context, sample navigation.Sample) error

func (f sinkFunc) Send(ctx context.Context, sample navigation.Sample) error { return f(ctx, sample) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefineOnce(t *testing.T) {
	r := NewRegistry(discardLogger())

	require.NoError(t, r.Define("location", ForwardToSink))
	assert.True(t, r.IsDefined("location"))

	err := r.Define("location", ForwardToSink)
	assert.True(t, errors.Is(err, ErrTaskDefined))
}

func TestDispatchForwardsToBoundSink(t *testing.T) {
	r := NewRegistry(discardLogger())
	require.NoError(t, r.Define("location", ForwardToSink))

	sample := navigation.Sample{Point: navigation.Point{Lat: 1, Lon: 2}, CapturedAt: time.Now()}

	err := r.Dispatch(context.Background(), "location", sample)
	assert.True(t, errors.Is(err, ErrNoSink))

	var got []navigation.Sample
	r.BindSink(sinkFunc(func(_ context.Context, s navigation.Sample) error {
		got = append(got, s)
		return nil
	}))
	require.NoError(t, r.Dispatch(context.Background(), "location", sample))
	assert.Equal(t, []navigation.Sample{sample}, got)

	// A later session rebinds without redefining the task.
	var rebound int
	r.BindSink(sinkFunc(func(_ context.Context, _ navigation.Sample) error {
		rebound++
		return nil
	}))
	require.NoError(t, r.Dispatch(context.Background(), "location", sample))
	assert.Equal(t, 1, rebound)
	assert.Len(t, got, 1)
}

func TestDispatchUnknownTask(t *testing.T) {
	r := NewRegistry(discardLogger())
	err := r.Dispatch(context.Background(), "missing", navigation.Sample{})
	assert.True(t, errors.Is(err, ErrTaskNotDefined))
}

func TestDispatchSinkFailure(t *testing.T) {
	r := NewRegistry(discardLogger())
	require.NoError(t, r.Define("location", ForwardToSink))
	r.BindSink(sinkFunc(func(_ context.Context, _ navigation.Sample) error {
		return navigation.ErrTransport
	}))

	err := r.Dispatch(context.Background(), "location", navigation.Sample{})
	assert.True(t, errors.Is(err, navigation.ErrTransport))
}
