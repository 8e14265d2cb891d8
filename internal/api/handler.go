package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/matheodrd/httphelper/handler"

	"supmap-tracking/internal/cache"
	"supmap-tracking/internal/navigation"
	"supmap-tracking/internal/tracking"
)

func (s *Server) wsHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		clientID := r.URL.Query().Get("client_id")
		if clientID == "" {
			clientID = uuid.NewString()
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, fmt.Errorf("websocket accept: %w", err))
		}

		s.WebsocketManager.HandleNewConnection(clientID, conn)
		return nil
	})
}

func (s *Server) startSessionHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var req tracking.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return handler.NewErrWithStatus(http.StatusBadRequest, fmt.Errorf("decoding start request: %w", err))
		}

		snap, err := s.Sessions.StartSession(r.Context(), req)
		if err != nil {
			return sessionError(err)
		}
		return s.writeJSON(w, http.StatusCreated, snap)
	})
}

func (s *Server) stopSessionHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		snap, err := s.Sessions.StopSession(r.Context())
		if err != nil {
			return sessionError(err)
		}
		return s.writeJSON(w, http.StatusOK, snap)
	})
}

func (s *Server) snapshotHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, _ *http.Request) error {
		snap, err := s.Sessions.Snapshot()
		if err != nil {
			return sessionError(err)
		}
		return s.writeJSON(w, http.StatusOK, snap)
	})
}

func (s *Server) cachedSnapshotHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		id := r.PathValue("id")
		snap, err := s.Snapshots.GetSnapshot(r.Context(), id)
		if errors.Is(err, cache.ErrNotFound) {
			return handler.NewErrWithStatus(http.StatusNotFound, fmt.Errorf("session %q not found", id))
		}
		if err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, err)
		}
		return s.writeJSON(w, http.StatusOK, snap)
	})
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, tracking.ErrInvalidRequest):
		return handler.NewErrWithStatus(http.StatusBadRequest, err)
	case errors.Is(err, navigation.ErrPermissionDenied):
		return handler.NewErrWithStatus(http.StatusForbidden, err)
	case errors.Is(err, navigation.ErrSessionActive), errors.Is(err, navigation.ErrSessionNotActive):
		return handler.NewErrWithStatus(http.StatusConflict, err)
	case errors.Is(err, navigation.ErrNoSession):
		return handler.NewErrWithStatus(http.StatusNotFound, err)
	default:
		return handler.NewErrWithStatus(http.StatusInternalServerError, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
	return nil
}
