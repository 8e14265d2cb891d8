package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"supmap-tracking/internal/tracking"
)

// Controller starts and stops tracking sessions.
type Controller interface {
	StartSession(ctx context.Context, req tracking.StartRequest) (tracking.Snapshot, error)
	StopSession(ctx context.Context) (tracking.Snapshot, error)
}

type Subscriber struct {
	logger     *slog.Logger
	client     *redis.Client
	topic      string
	controller Controller
}

func NewSubscriber(logger *slog.Logger, client *redis.Client, topic string, controller Controller) *Subscriber {
	return &Subscriber{
		logger:     logger,
		client:     client,
		topic:      topic,
		controller: controller,
	}
}

func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info("Redis subscriber is running", "topic", s.topic)
	pubsub := s.client.Subscribe(ctx, s.topic)
	defer func() {
		if err := pubsub.Close(); err != nil {
			s.logger.Warn("failed to close pubsub", "error", err)
		}
	}()

	msgCh := pubsub.Channel()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				s.logger.Warn("pubsub channel closed by Redis")
				return nil
			}
			if err := s.handleMessage(ctx, msg.Payload); err != nil {
				s.logger.Error("error handling message", "error", err)
			}
		case <-ctx.Done():
			s.logger.Info("shutting down Redis subscriber")
			return nil
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, payload string) error {
	s.logger.Debug("received control message", "payload", payload)

	var msg ControlMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return fmt.Errorf("unmarshalling control message: %w", err)
	}
	if !msg.Action.IsValid() {
		return fmt.Errorf("invalid action %q", msg.Action)
	}

	switch msg.Action {
	case Start:
		var req tracking.StartRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return fmt.Errorf("unmarshalling start request: %w", err)
		}
		snap, err := s.controller.StartSession(ctx, req)
		if err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
		s.logger.Info("session started from control channel", "sessionID", snap.SessionID)
	case Stop:
		snap, err := s.controller.StopSession(ctx)
		if err != nil {
			return fmt.Errorf("stopping session: %w", err)
		}
		s.logger.Info("session stopped from control channel", "sessionID", snap.SessionID)
	}
	return nil
}
