package tracking

import (
	"fmt"
	"time"

	"supmap-tracking/internal/navigation"
)

type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseAcquiringPermissions Phase = "acquiring_permissions"
	PhaseActive               Phase = "active"
	PhaseStopping             Phase = "stopping"
	PhaseStopped              Phase = "stopped"
	PhaseFailed               Phase = "failed"
)

func (p Phase) IsTerminal() bool {
	return p == PhaseStopped || p == PhaseFailed
}

// State is the lifecycle state of a session. Foreground and Background are
// only meaningful while Active; Reason only when Failed.
type State struct {
	Phase      Phase  `json:"phase"`
	Foreground bool   `json:"foreground"`
	Background bool   `json:"background"`
	Reason     string `json:"reason,omitempty"`
}

func (s State) String() string {
	switch s.Phase {
	case PhaseActive:
		return fmt.Sprintf("active(foreground=%t, background=%t)", s.Foreground, s.Background)
	case PhaseFailed:
		return fmt.Sprintf("failed(%s)", s.Reason)
	default:
		return string(s.Phase)
	}
}

// Snapshot is a read-only copy of what a session publishes.
type Snapshot struct {
	SessionID   string             `json:"session_id"`
	State       State              `json:"state"`
	Destination navigation.Point   `json:"destination"`
	Position    *navigation.Sample `json:"latest_position,omitempty"`
	Route       *navigation.Route  `json:"latest_route,omitempty"`
	Distance    string             `json:"distance,omitempty"`
	Duration    string             `json:"duration,omitempty"`
	OnRoute     bool               `json:"on_route"`
	LastError   string             `json:"last_error,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
