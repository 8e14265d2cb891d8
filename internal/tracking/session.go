package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"supmap-tracking/internal/gis"
	"supmap-tracking/internal/navigation"
)

// onRouteTolerance is how far (in meters) the latest position may be from the
// route geometry and still be reported on route.
const onRouteTolerance = 30

type SessionConfig struct {
	Destination      navigation.Destination
	Foreground       navigation.Thresholds
	Background       navigation.Thresholds
	BackgroundTaskID string
}

type Dependencies struct {
	Source     PositionSource
	Transport  TelemetryTransport
	Router     RouteProvider
	Background SinkBinder
	// OnChange receives a snapshot after every published change. Calls are
	// serialized and must not block.
	OnChange func(Snapshot)
}

// Session is one run of continuous tracking towards a fixed destination.
// It owns the lifecycle state and the latest position and route slots.
type Session struct {
	id     string
	cfg    SessionConfig
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time

	// ctx is cancelled once the session leaves Active.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	state        State
	position     *navigation.Sample
	route        *navigation.Route
	sampleSeq    uint64
	routeSeq     uint64
	pendingRoute *routeLookup
	lastErr      error
	updatedAt    time.Time
	sub          navigation.Subscription

	routeWake chan struct{}
	notifyMu  sync.Mutex
	inflight  sync.WaitGroup
}

// routeLookup is the route computation wanted for the position numbered seq.
type routeLookup struct {
	seq    uint64
	origin navigation.Point
}

func NewSession(id string, cfg SessionConfig, deps Dependencies, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		cfg:       cfg,
		deps:      deps,
		logger:    logger.With("sessionID", id),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     State{Phase: PhaseIdle},
		routeWake: make(chan struct{}, 1),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start moves the session from Idle to Active. Only a denied foreground
// permission or a failed foreground subscription fail the session; every other
// failure during start is logged and absorbed. The initial fix is acquired
// asynchronously once the session is Active.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Phase != PhaseIdle {
		phase := s.state.Phase
		s.mu.Unlock()
		return fmt.Errorf("cannot start session in phase %q", phase)
	}
	s.setStateLocked(State{Phase: PhaseAcquiringPermissions})
	s.mu.Unlock()
	s.notify()

	perms, err := s.deps.Source.RequestPermissions(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("requesting permissions: %w", err))
	}
	if !perms.Foreground {
		return s.fail(fmt.Errorf("foreground location: %w", navigation.ErrPermissionDenied))
	}
	if !perms.Background {
		s.logger.Info("background location permission denied, tracking in foreground only")
	}

	s.mu.Lock()
	s.setStateLocked(State{Phase: PhaseActive, Foreground: true, Background: perms.Background})
	s.mu.Unlock()
	s.notify()
	s.logger.Info("tracking session active", "background", perms.Background)

	go s.routeLoop()

	sub, err := s.deps.Source.SubscribeForeground(s.cfg.Foreground, s.handleSample)
	if err != nil {
		return s.fail(fmt.Errorf("subscribing to foreground updates: %w", err))
	}

	s.mu.Lock()
	if s.state.Phase != PhaseActive {
		// Stopped while starting.
		s.mu.Unlock()
		sub.Cancel()
		return nil
	}
	s.sub = sub
	s.inflight.Add(1)
	s.mu.Unlock()

	go s.acquireInitialPosition()

	if perms.Background {
		s.startBackground(ctx)
	}
	return nil
}

func (s *Session) startBackground(ctx context.Context) {
	taskID := s.cfg.BackgroundTaskID
	s.deps.Background.BindSink(s.deps.Transport)

	if s.deps.Source.BackgroundTrackingStarted(taskID) {
		s.logger.Debug("background tracking already running", "taskID", taskID)
		return
	}
	if err := s.deps.Source.StartBackgroundTracking(ctx, taskID, s.cfg.Background); err != nil {
		s.logger.Warn("failed to start background tracking", "taskID", taskID, "error", err)
		s.mu.Lock()
		if s.state.Phase == PhaseActive {
			s.state.Background = false
		}
		s.mu.Unlock()
		s.notify()
	}
}

// Stop cancels the foreground subscription, then the background task when it
// runs, and releases the background sink. In-flight sends are left to
// complete. Route lookups still queued or running are cancelled.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Phase != PhaseActive {
		phase := s.state.Phase
		s.mu.Unlock()
		return fmt.Errorf("%w: phase %q", navigation.ErrSessionNotActive, phase)
	}
	s.setStateLocked(State{Phase: PhaseStopping, Foreground: s.state.Foreground, Background: s.state.Background})
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	s.notify()

	s.cancel()
	if sub != nil {
		sub.Cancel()
	}

	taskID := s.cfg.BackgroundTaskID
	if s.deps.Source.BackgroundTrackingStarted(taskID) {
		if err := s.deps.Source.StopBackgroundTracking(ctx, taskID); err != nil {
			s.logger.Warn("failed to stop background tracking", "taskID", taskID,
				"error", fmt.Errorf("%w: %w", navigation.ErrBackgroundTask, err))
		}
	}
	s.deps.Background.BindSink(nil)

	s.mu.Lock()
	s.setStateLocked(State{Phase: PhaseStopped})
	s.mu.Unlock()
	s.notify()
	s.logger.Info("tracking session stopped")
	return nil
}

// Wait blocks until every send, route lookup and initial fix acquisition
// issued so far has completed or been dropped.
func (s *Session) Wait() {
	s.inflight.Wait()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		SessionID:   s.id,
		State:       s.state,
		Destination: s.cfg.Destination.Point,
		UpdatedAt:   s.updatedAt,
	}
	if s.position != nil {
		p := *s.position
		snap.Position = &p
	}
	if s.route != nil {
		r := s.route.Clone()
		snap.Route = &r
		snap.Distance = navigation.FormatDistance(r.Distance)
		snap.Duration = navigation.FormatDuration(r.Duration)
	}
	if snap.Position != nil && snap.Route != nil {
		snap.OnRoute = gis.IsPointInPolyline(snap.Position.Point, snap.Route.Polyline, onRouteTolerance)
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

func (s *Session) acquireInitialPosition() {
	defer s.inflight.Done()

	sample, err := s.deps.Source.CurrentPosition(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			s.logger.Debug("initial position acquisition cancelled", "error", err)
			return
		}
		s.logger.Warn("initial position unavailable", "error", err)
		return
	}
	s.acceptSample(sample, true)
}

// handleSample is the foreground subscription callback.
func (s *Session) handleSample(sample navigation.Sample) {
	s.acceptSample(sample, false)
}

// acceptSample publishes a displayed position, forwards it to telemetry and
// queues a route recomputation from it. An initial fix never replaces a
// position already delivered by the foreground subscription.
func (s *Session) acceptSample(sample navigation.Sample, initial bool) {
	s.mu.Lock()
	if s.state.Phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	if initial && s.sampleSeq > 0 {
		s.mu.Unlock()
		s.logger.Debug("discarding initial fix older than a foreground update")
		return
	}
	s.sampleSeq++
	seq := s.sampleSeq
	s.position = &sample
	s.updatedAt = s.now()
	s.inflight.Add(1)
	s.queueRouteLocked(routeLookup{seq: seq, origin: sample.Point})
	s.mu.Unlock()
	s.notify()

	s.logger.Debug("position updated", "lat", sample.Point.Lat, "lon", sample.Point.Lon, "seq", seq)

	go s.forward(sample)
}

func (s *Session) forward(sample navigation.Sample) {
	defer s.inflight.Done()
	if err := s.deps.Transport.Send(context.Background(), sample); err != nil {
		s.logger.Debug("telemetry sample dropped", "error", err)
	}
}

// queueRouteLocked replaces the pending lookup with one from the newest
// position. At most one lookup runs and at most one waits.
func (s *Session) queueRouteLocked(lookup routeLookup) {
	if s.pendingRoute == nil {
		s.inflight.Add(1)
	}
	s.pendingRoute = &lookup
	select {
	case s.routeWake <- struct{}{}:
	default:
	}
}

func (s *Session) routeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			if s.pendingRoute != nil {
				s.pendingRoute = nil
				s.inflight.Done()
			}
			s.mu.Unlock()
			return
		case <-s.routeWake:
		}

		s.mu.Lock()
		lookup := s.pendingRoute
		s.pendingRoute = nil
		active := s.state.Phase == PhaseActive
		s.mu.Unlock()
		if lookup == nil {
			continue
		}
		if active {
			s.refreshRoute(*lookup)
		}
		s.inflight.Done()
	}
}

func (s *Session) refreshRoute(lookup routeLookup) {
	seq := lookup.seq
	route, err := s.deps.Router.FetchRoute(s.ctx, lookup.origin, s.cfg.Destination.Point)
	if err != nil {
		if s.ctx.Err() != nil {
			s.logger.Debug("route lookup cancelled", "seq", seq)
			return
		}
		s.logger.Warn("route lookup failed, keeping previous route", "seq", seq, "error", err)
		return
	}

	s.mu.Lock()
	if s.state.Phase != PhaseActive {
		s.mu.Unlock()
		s.logger.Debug("discarding route completed after session ended", "seq", seq)
		return
	}
	if displayed := s.routeSeq; seq < displayed {
		s.mu.Unlock()
		s.logger.Debug("discarding route older than the displayed one", "seq", seq, "displayedSeq", displayed)
		return
	}
	r := route.Clone()
	s.route = &r
	s.routeSeq = seq
	s.updatedAt = s.now()
	s.mu.Unlock()
	s.notify()
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.setStateLocked(State{Phase: PhaseFailed, Reason: err.Error()})
	s.lastErr = err
	s.mu.Unlock()
	s.cancel()
	s.notify()
	s.logger.Error("tracking session failed", "error", err)
	return err
}

func (s *Session) setStateLocked(state State) {
	s.logger.Debug("session state change", "from", s.state.String(), "to", state.String())
	s.state = state
	s.updatedAt = s.now()
}

// notify publishes the current snapshot. Snapshots are taken under notifyMu so
// observers never see an older state after a newer one.
func (s *Session) notify() {
	if s.deps.OnChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.deps.OnChange(s.Snapshot())
}
