package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"supmap-tracking/internal/navigation"
)

var ErrInvalidRequest = errors.New("invalid start request")

// StartRequest carries the external configuration of a session.
type StartRequest struct {
	Destination       navigation.Point `json:"destination"`
	CollectorEndpoint string           `json:"collector_endpoint" validate:"required,hostname_port"`
}

// TransportFactory builds the telemetry transport for a collector endpoint (host:port).
type TransportFactory func(endpoint string) (TelemetryTransport, error)

// Observer receives the snapshots a session publishes, on a goroutine of its
// own. A slow observer may skip intermediate snapshots.
type Observer func(Snapshot)

type ManagerConfig struct {
	Foreground       navigation.Thresholds
	Background       navigation.Thresholds
	BackgroundTaskID string
}

// Manager is the presentation-facing surface: it starts and stops sessions
// and exposes the current session's published state.
type Manager struct {
	cfg          ManagerConfig
	logger       *slog.Logger
	source       PositionSource
	router       RouteProvider
	background   SinkBinder
	newTransport TransportFactory
	validate     *validator.Validate

	// lifecycle serializes StartSession and StopSession.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	current   *Session
	observers []*observerQueue
}

func NewManager(cfg ManagerConfig, logger *slog.Logger, source PositionSource, router RouteProvider,
	background SinkBinder, newTransport TransportFactory) *Manager {
	return &Manager{
		cfg:          cfg,
		logger:       logger,
		source:       source,
		router:       router,
		background:   background,
		newTransport: newTransport,
		validate:     validator.New(),
	}
}

// Observe registers an observer for every snapshot published from now on.
func (m *Manager) Observe(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, newObserverQueue(o))
	m.mu.Unlock()
}

// StartSession creates a fresh session and starts it. It fails with
// navigation.ErrSessionActive while another session has not reached a
// terminal state.
func (m *Manager) StartSession(ctx context.Context, req StartRequest) (Snapshot, error) {
	if err := m.validate.Struct(req); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()
	if current != nil && !current.State().Phase.IsTerminal() {
		return Snapshot{}, navigation.ErrSessionActive
	}

	transport, err := m.newTransport(req.CollectorEndpoint)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	id := uuid.NewString()
	session := NewSession(id, SessionConfig{
		Destination:      navigation.Destination{Point: req.Destination},
		Foreground:       m.cfg.Foreground,
		Background:       m.cfg.Background,
		BackgroundTaskID: m.cfg.BackgroundTaskID,
	}, Dependencies{
		Source:     m.source,
		Transport:  transport,
		Router:     m.router,
		Background: m.background,
		OnChange:   m.publish,
	}, m.logger)

	m.mu.Lock()
	m.current = session
	m.mu.Unlock()

	m.logger.Info("starting tracking session", "sessionID", id,
		"destinationLat", req.Destination.Lat, "destinationLon", req.Destination.Lon)
	err = session.Start(ctx)
	return session.Snapshot(), err
}

func (m *Manager) StopSession(ctx context.Context) (Snapshot, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	session := m.Current()
	if session == nil {
		return Snapshot{}, navigation.ErrNoSession
	}
	err := session.Stop(ctx)
	return session.Snapshot(), err
}

func (m *Manager) Snapshot() (Snapshot, error) {
	session := m.Current()
	if session == nil {
		return Snapshot{}, navigation.ErrNoSession
	}
	return session.Snapshot(), nil
}

func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Shutdown stops the current session if it is active, then waits for the
// observers to receive the last published snapshot or for ctx to be done.
func (m *Manager) Shutdown(ctx context.Context) {
	if _, err := m.StopSession(ctx); err != nil &&
		!errors.Is(err, navigation.ErrNoSession) && !errors.Is(err, navigation.ErrSessionNotActive) {
		m.logger.Warn("failed to stop tracking session on shutdown", "error", err)
	}

	m.mu.Lock()
	observers := m.observers
	m.observers = nil
	m.mu.Unlock()

	for _, q := range observers {
		q.close()
	}
	for _, q := range observers {
		select {
		case <-q.done:
		case <-ctx.Done():
			m.logger.Warn("observers did not drain before shutdown", "error", ctx.Err())
			return
		}
	}
}

func (m *Manager) publish(snap Snapshot) {
	m.mu.RLock()
	observers := m.observers
	m.mu.RUnlock()
	for _, q := range observers {
		q.offer(snap)
	}
}
