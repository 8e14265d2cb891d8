package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"supmap-tracking/internal/config"
	"supmap-tracking/internal/tracking"
)

// SessionController is the presentation-facing surface of the tracking engine.
type SessionController interface {
	StartSession(ctx context.Context, req tracking.StartRequest) (tracking.Snapshot, error)
	StopSession(ctx context.Context) (tracking.Snapshot, error)
	Snapshot() (tracking.Snapshot, error)
}

type SnapshotStore interface {
	GetSnapshot(ctx context.Context, sessionID string) (*tracking.Snapshot, error)
}

type StreamManager interface {
	HandleNewConnection(id string, conn *websocket.Conn)
}

type Server struct {
	Config           *config.Config
	Sessions         SessionController
	Snapshots        SnapshotStore
	WebsocketManager StreamManager
	logger           *slog.Logger
}

func NewServer(config *config.Config, sessions SessionController, snapshots SnapshotStore, wsManager StreamManager, logger *slog.Logger) *Server {
	return &Server{
		Config:           config,
		Sessions:         sessions,
		Snapshots:        snapshots,
		WebsocketManager: wsManager,
		logger:           logger,
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate;")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("API server is started.")); err != nil {
		s.logger.Error(fmt.Sprintf("Error writing response: %v", err))
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /session", s.startSessionHandler())
	mux.HandleFunc("DELETE /session", s.stopSessionHandler())
	mux.HandleFunc("GET /session", s.snapshotHandler())
	mux.HandleFunc("GET /sessions/{id}", s.cachedSnapshotHandler())
	mux.HandleFunc("GET /session/stream", s.wsHandler())
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              net.JoinHostPort(s.Config.APIServerHost, s.Config.APIServerPort),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("API server is running", "port", s.Config.APIServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed to listen and serve", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("API server failed to shutdown", "error", err)
		}
	}()

	wg.Wait()
	return nil
}
