package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"supmap-tracking/internal/navigation"
)

const (
	// subscriptionBufferSize bounds the number of samples queued per subscription.
	// When full, the oldest queued sample is dropped.
	subscriptionBufferSize = 8
)

// Dispatcher receives samples collected by background tracking tasks.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID string, sample navigation.Sample) error
}

type HubOptions struct {
	Permissions navigation.Permissions
	// MaxAge is how old the latest fix may be to answer CurrentPosition without waiting.
	MaxAge time.Duration
	// AcquireTimeout bounds how long CurrentPosition waits for a fresh fix.
	AcquireTimeout time.Duration
}

func DefaultHubOptions() HubOptions {
	return HubOptions{
		Permissions:    navigation.Permissions{Foreground: true, Background: true},
		MaxAge:         30 * time.Second,
		AcquireTimeout: 15 * time.Second,
	}
}

// Hub is the position source of the process. Fixes are pushed in with
// Publish and fanned out to foreground subscriptions and background tasks.
type Hub struct {
	logger     *slog.Logger
	dispatcher Dispatcher
	opts       HubOptions
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	permissions navigation.Permissions
	latest      *navigation.Sample
	waiters     []chan navigation.Sample
	foreground  map[uint64]*subscription
	background  map[string]*subscription
	nextID      uint64
}

func NewHub(ctx context.Context, logger *slog.Logger, dispatcher Dispatcher, opts HubOptions) *Hub {
	ctx, cancel := context.WithCancel(ctx)
	return &Hub{
		logger:      logger,
		dispatcher:  dispatcher,
		opts:        opts,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		permissions: opts.Permissions,
		foreground:  make(map[uint64]*subscription),
		background:  make(map[string]*subscription),
	}
}

// Publish ingests one fix. Invalid samples are rejected.
func (h *Hub) Publish(sample navigation.Sample) error {
	if err := sample.Validate(); err != nil {
		return fmt.Errorf("rejecting sample: %w", err)
	}

	h.mu.Lock()
	h.latest = &sample
	waiters := h.waiters
	h.waiters = nil
	subs := make([]*subscription, 0, len(h.foreground)+len(h.background))
	for _, s := range h.foreground {
		subs = append(subs, s)
	}
	for _, s := range h.background {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, w := range waiters {
		w <- sample
	}
	for _, s := range subs {
		s.offer(sample)
	}
	return nil
}

func (h *Hub) RequestPermissions(_ context.Context) (navigation.Permissions, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.permissions, nil
}

// SetPermissions changes the consent policy, e.g. when the user revokes access.
func (h *Hub) SetPermissions(p navigation.Permissions) {
	h.mu.Lock()
	h.permissions = p
	h.mu.Unlock()
}

// CurrentPosition returns the latest fix when it is recent enough, otherwise
// it waits for the next one.
func (h *Hub) CurrentPosition(ctx context.Context) (navigation.Sample, error) {
	h.mu.Lock()
	if !h.permissions.Foreground {
		h.mu.Unlock()
		return navigation.Sample{}, fmt.Errorf("%w: %w", navigation.ErrAcquisition, navigation.ErrPermissionDenied)
	}
	if h.latest != nil && h.now().Sub(h.latest.CapturedAt) <= h.opts.MaxAge {
		sample := *h.latest
		h.mu.Unlock()
		return sample, nil
	}
	wait := make(chan navigation.Sample, 1)
	h.waiters = append(h.waiters, wait)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.opts.AcquireTimeout)
	defer cancel()

	select {
	case sample := <-wait:
		return sample, nil
	case <-ctx.Done():
		h.removeWaiter(wait)
		return navigation.Sample{}, fmt.Errorf("%w: no fix: %v", navigation.ErrAcquisition, ctx.Err())
	}
}

func (h *Hub) removeWaiter(wait chan navigation.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, w := range h.waiters {
		if w == wait {
			h.waiters = append(h.waiters[:i], h.waiters[i+1:]...)
			return
		}
	}
}

// SubscribeForeground delivers samples passing thresholds to onSample, one at a
// time and in publish order.
func (h *Hub) SubscribeForeground(thresholds navigation.Thresholds, onSample func(navigation.Sample)) (navigation.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.permissions.Foreground {
		return nil, fmt.Errorf("foreground subscription: %w", navigation.ErrPermissionDenied)
	}

	h.nextID++
	id := h.nextID
	sub := newSubscription(thresholds, onSample, func() {
		h.mu.Lock()
		delete(h.foreground, id)
		h.mu.Unlock()
	})
	h.foreground[id] = sub
	go sub.run(h.ctx)

	h.logger.Debug("foreground subscription started", "subscriptionID", id,
		"minInterval", thresholds.MinInterval, "minDistance", thresholds.MinDistance)
	return sub, nil
}

// StartBackgroundTracking registers the background task taskID. Starting an
// already started task is a no-op.
func (h *Hub) StartBackgroundTracking(_ context.Context, taskID string, thresholds navigation.Thresholds) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.permissions.Background {
		return fmt.Errorf("%w: %q: %w", navigation.ErrBackgroundTask, taskID, navigation.ErrPermissionDenied)
	}
	if _, ok := h.background[taskID]; ok {
		return nil
	}

	sub := newSubscription(thresholds, func(sample navigation.Sample) {
		_ = h.dispatcher.Dispatch(h.ctx, taskID, sample)
	}, func() {
		h.mu.Lock()
		delete(h.background, taskID)
		h.mu.Unlock()
	})
	h.background[taskID] = sub
	go sub.run(h.ctx)

	h.logger.Info("background tracking started", "taskID", taskID)
	return nil
}

// StopBackgroundTracking cancels the background task taskID. Stopping a task
// that is not started is a no-op.
func (h *Hub) StopBackgroundTracking(_ context.Context, taskID string) error {
	h.mu.Lock()
	sub, ok := h.background[taskID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	sub.Cancel()
	h.logger.Info("background tracking stopped", "taskID", taskID)
	return nil
}

func (h *Hub) BackgroundTrackingStarted(taskID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.background[taskID]
	return ok
}

// Close cancels every subscription and background task.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.foreground)+len(h.background))
	for _, s := range h.foreground {
		subs = append(subs, s)
	}
	for _, s := range h.background {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	h.cancel()
}

type subscription struct {
	throttle  *Throttle
	deliver   func(navigation.Sample)
	samples   chan navigation.Sample
	done      chan struct{}
	once      sync.Once
	cancelled atomic.Bool
	onCancel  func()
}

func newSubscription(thresholds navigation.Thresholds, deliver func(navigation.Sample), onCancel func()) *subscription {
	return &subscription{
		throttle: NewThrottle(thresholds),
		deliver:  deliver,
		samples:  make(chan navigation.Sample, subscriptionBufferSize),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		close(s.done)
		s.onCancel()
	})
}

func (s *subscription) offer(sample navigation.Sample) {
	if s.cancelled.Load() {
		return
	}
	select {
	case s.samples <- sample:
		return
	default:
	}
	// Full: drop the oldest queued sample, a fresher one supersedes it.
	select {
	case <-s.samples:
	default:
	}
	select {
	case s.samples <- sample:
	default:
	}
}

func (s *subscription) run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case sample := <-s.samples:
			if s.cancelled.Load() {
				return
			}
			if !s.throttle.Accept(sample) {
				continue
			}
			s.deliver(sample)
		}
	}
}
