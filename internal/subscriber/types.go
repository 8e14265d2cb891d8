package subscriber

import "encoding/json"

// ControlMessage represents any message received in the control pub/sub channel.
type ControlMessage struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type Action string

const (
	Start Action = "start"
	Stop  Action = "stop"
)

func (a *Action) IsValid() bool {
	switch *a {
	case Start, Stop:
		return true
	}
	return false
}
