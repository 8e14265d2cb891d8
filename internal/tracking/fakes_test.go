package tracking

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"supmap-tracking/internal/background"
	"supmap-tracking/internal/navigation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	testOrigin      = navigation.Point{Lat: 16.20, Lon: 77.70}
	testDestination = navigation.Point{Lat: 16.2253, Lon: 77.8097}
)

func sampleAt(p navigation.Point) navigation.Sample {
	return navigation.Sample{Point: p, Accuracy: 5, CapturedAt: time.UnixMilli(1715003456000)}
}

type fakeSubscription struct {
	mu        sync.Mutex
	cancelled int
	onCancel  func()
}

func (s *fakeSubscription) Cancel() {
	s.mu.Lock()
	s.cancelled++
	s.mu.Unlock()
	if s.onCancel != nil {
		s.onCancel()
	}
}

type fakeSource struct {
	mu sync.Mutex

	permissions   navigation.Permissions
	permissionErr error
	current       navigation.Sample
	currentErr    error
	currentFn     func(ctx context.Context) (navigation.Sample, error)
	subscribeErr  error
	bgStartErr    error
	bgStopErr     error

	onSample    func(navigation.Sample)
	sub         *fakeSubscription
	bgStarted   map[string]bool
	calls       []string
	bgStarts    int
	currentCall int
	subscribes  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		permissions: navigation.Permissions{Foreground: true, Background: true},
		current:     sampleAt(testOrigin),
		bgStarted:   make(map[string]bool),
	}
}

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSource) RequestPermissions(context.Context) (navigation.Permissions, error) {
	f.record("permissions")
	return f.permissions, f.permissionErr
}

func (f *fakeSource) CurrentPosition(ctx context.Context) (navigation.Sample, error) {
	f.record("current")
	f.mu.Lock()
	f.currentCall++
	fn := f.currentFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return f.current, f.currentErr
}

func (f *fakeSource) SubscribeForeground(_ navigation.Thresholds, onSample func(navigation.Sample)) (navigation.Subscription, error) {
	f.record("subscribe")
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	f.onSample = onSample
	f.sub = &fakeSubscription{onCancel: func() { f.record("cancel") }}
	return f.sub, nil
}

// emit delivers a foreground sample the way the subscription would.
func (f *fakeSource) emit(sample navigation.Sample) {
	f.mu.Lock()
	fn := f.onSample
	f.mu.Unlock()
	fn(sample)
}

func (f *fakeSource) StartBackgroundTracking(_ context.Context, taskID string, _ navigation.Thresholds) error {
	f.record("bg-start")
	if f.bgStartErr != nil {
		return f.bgStartErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bgStarts++
	f.bgStarted[taskID] = true
	return nil
}

func (f *fakeSource) StopBackgroundTracking(_ context.Context, taskID string) error {
	f.record("bg-stop")
	if f.bgStopErr != nil {
		return f.bgStopErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bgStarted, taskID)
	return nil
}

func (f *fakeSource) BackgroundTrackingStarted(taskID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bgStarted[taskID]
}

func (f *fakeSource) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []navigation.Sample
	err  error
}

func (t *fakeTransport) Send(_ context.Context, sample navigation.Sample) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sample)
	return t.err
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

type fakeRouter struct {
	mu      sync.Mutex
	calls   int
	fetchFn func(ctx context.Context, origin, destination navigation.Point) (navigation.Route, error)
}

func (r *fakeRouter) FetchRoute(ctx context.Context, origin, destination navigation.Point) (navigation.Route, error) {
	r.mu.Lock()
	r.calls++
	fn := r.fetchFn
	r.mu.Unlock()
	return fn(ctx, origin, destination)
}

func (r *fakeRouter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func routeFrom(origin navigation.Point, distance, duration float64) navigation.Route {
	return navigation.Route{
		Polyline: []navigation.Point{origin, testDestination},
		Distance: distance,
		Duration: duration,
	}
}

func staticRouter(distance, duration float64) *fakeRouter {
	return &fakeRouter{fetchFn: func(_ context.Context, origin, _ navigation.Point) (navigation.Route, error) {
		return routeFrom(origin, distance, duration), nil
	}}
}

type fakeBinder struct {
	mu   sync.Mutex
	sink background.Sink
}

func (b *fakeBinder) BindSink(sink background.Sink) {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
}

func (b *fakeBinder) bound() background.Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sink
}
