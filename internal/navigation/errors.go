package navigation

import "errors"

var (
	ErrInvalidPoint     = errors.New("invalid point")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAcquisition      = errors.New("position acquisition failed")
	ErrTransport        = errors.New("telemetry transport failed")
	ErrRouteLookup      = errors.New("route lookup failed")
	ErrBackgroundTask   = errors.New("background task failed")

	ErrSessionActive    = errors.New("a tracking session is already active")
	ErrNoSession        = errors.New("no tracking session")
	ErrSessionNotActive = errors.New("tracking session is not active")
)
