package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"supmap-tracking/internal/navigation"
)

const locationEvent = "location"

// Message is one event written to the collector.
type Message struct {
	Type string          `json:"type"`
	Data LocationPayload `json:"data"`
}

type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

func NewLocationMessage(sample navigation.Sample) Message {
	return Message{
		Type: locationEvent,
		Data: LocationPayload{
			Latitude:  sample.Point.Lat,
			Longitude: sample.Point.Lon,
			Accuracy:  sample.Accuracy,
			Timestamp: sample.TimestampMillis(),
		},
	}
}

type TransportOptions struct {
	// Path is appended to the collector endpoint, e.g. "/telemetry".
	Path string
	// Timeout bounds dial + write + close of a single send.
	Timeout time.Duration
}

func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		Path:    "/",
		Timeout: 5 * time.Second,
	}
}

// Transport delivers samples to a collector. Every Send opens its own
// connection, writes one event and closes it. Nothing is retried or queued.
type Transport struct {
	url     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewTransport builds a transport for the collector at endpoint (host:port).
func NewTransport(endpoint string, logger *slog.Logger, options ...TransportOptions) (*Transport, error) {
	opts := DefaultTransportOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	u := url.URL{Scheme: "ws", Host: endpoint, Path: opts.Path}
	if u.Host == "" {
		return nil, fmt.Errorf("missing collector endpoint")
	}

	return &Transport{
		url:     u.String(),
		timeout: opts.Timeout,
		logger:  logger.With("collector", u.String()),
	}, nil
}

func (t *Transport) URL() string {
	return t.url
}

// Send reports whether the sample was delivered. Failures wrap navigation.ErrTransport.
func (t *Transport) Send(ctx context.Context, sample navigation.Sample) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(ctx, t.url, nil)
	if err != nil {
		t.logger.Warn("telemetry sample not delivered", "stage", "dial", "error", err)
		return fmt.Errorf("%w: dial: %v", navigation.ErrTransport, err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, NewLocationMessage(sample)); err != nil {
		t.logger.Warn("telemetry sample not delivered", "stage", "write", "error", err)
		return fmt.Errorf("%w: write: %v", navigation.ErrTransport, err)
	}

	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.logger.Debug("failed to close telemetry connection", "error", err)
	}

	t.logger.Debug("telemetry sample delivered", "timestamp", sample.TimestampMillis())
	return nil
}
