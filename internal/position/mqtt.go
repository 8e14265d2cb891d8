package position

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"supmap-tracking/internal/navigation"
)

// Publisher accepts decoded fixes.
type Publisher interface {
	Publish(sample navigation.Sample) error
}

// fixMessage is the payload published by the GPS producer.
type fixMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

func (m fixMessage) toSample() (navigation.Sample, error) {
	if m.Timestamp <= 0 {
		return navigation.Sample{}, fmt.Errorf("timestamp: must be positive")
	}
	sample := navigation.Sample{
		Point:      navigation.Point{Lat: m.Latitude, Lon: m.Longitude},
		Accuracy:   m.Accuracy,
		CapturedAt: time.UnixMilli(m.Timestamp),
	}
	if err := sample.Validate(); err != nil {
		return navigation.Sample{}, err
	}
	return sample, nil
}

// MQTTFeed subscribes to the GPS fix topic and pushes every valid fix to a Publisher.
type MQTTFeed struct {
	client    mqtt.Client
	topic     string
	publisher Publisher
	logger    *slog.Logger
}

func NewMQTTFeed(client mqtt.Client, topic string, publisher Publisher, logger *slog.Logger) *MQTTFeed {
	return &MQTTFeed{
		client:    client,
		topic:     topic,
		publisher: publisher,
		logger:    logger,
	}
}

func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

func (f *MQTTFeed) Start() error {
	token := f.client.Subscribe(f.topic, 1, f.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %q: %w", f.topic, err)
	}
	f.logger.Info("MQTT position feed is running", "topic", f.topic)
	return nil
}

func (f *MQTTFeed) Stop() {
	token := f.client.Unsubscribe(f.topic)
	token.Wait()
	if err := token.Error(); err != nil {
		f.logger.Warn("failed to unsubscribe from position topic", "topic", f.topic, "error", err)
	}
}

func (f *MQTTFeed) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw fixMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		f.logger.Warn("invalid fix message", "topic", msg.Topic(), "error", err)
		return
	}

	sample, err := raw.toSample()
	if err != nil {
		f.logger.Warn("fix validation error", "topic", msg.Topic(), "error", err)
		return
	}

	if err := f.publisher.Publish(sample); err != nil {
		f.logger.Warn("failed to publish fix", "error", err)
	}
}
