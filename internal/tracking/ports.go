package tracking

import (
	"context"

	"supmap-tracking/internal/background"
	"supmap-tracking/internal/navigation"
)

// PositionSource acquires fixes from the device, in the foreground and in the background.
type PositionSource interface {
	RequestPermissions(ctx context.Context) (navigation.Permissions, error)
	CurrentPosition(ctx context.Context) (navigation.Sample, error)
	SubscribeForeground(thresholds navigation.Thresholds, onSample func(navigation.Sample)) (navigation.Subscription, error)
	StartBackgroundTracking(ctx context.Context, taskID string, thresholds navigation.Thresholds) error
	StopBackgroundTracking(ctx context.Context, taskID string) error
	BackgroundTrackingStarted(taskID string) bool
}

// TelemetryTransport delivers one sample to the remote collector.
type TelemetryTransport interface {
	Send(ctx context.Context, sample navigation.Sample) error
}

// RouteProvider computes a route between two points.
type RouteProvider interface {
	FetchRoute(ctx context.Context, origin, destination navigation.Point) (navigation.Route, error)
}

// SinkBinder is the process-wide background task registry, seen from a session.
type SinkBinder interface {
	BindSink(sink background.Sink)
}
