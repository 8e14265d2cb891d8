package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Env string

const (
	EnvProd Env = "prod"
	EnvDev  Env = "dev"
)

func (e Env) IsValid() bool {
	switch e {
	case EnvProd, EnvDev:
		return true
	}
	return false
}

type Config struct {
	APIServerHost string `env:"API_SERVER_HOST"`
	APIServerPort string `env:"API_SERVER_PORT" envDefault:"8080" validate:"required,numeric"`

	RedisHost           string        `env:"REDIS_HOST" envDefault:"localhost" validate:"required"`
	RedisPort           string        `env:"REDIS_PORT" envDefault:"6379" validate:"required,numeric"`
	RedisControlChannel string        `env:"REDIS_CONTROL_CHANNEL" envDefault:"tracking:control" validate:"required"`
	SessionCacheTTL     time.Duration `env:"SESSION_CACHE_TTL" envDefault:"30m" validate:"gt=0"`

	MQTTBroker        string `env:"MQTT_BROKER" envDefault:"tcp://localhost:1883" validate:"required"`
	MQTTClientID      string `env:"MQTT_CLIENT_ID" envDefault:"supmap-tracking" validate:"required"`
	MQTTPositionTopic string `env:"MQTT_POSITION_TOPIC" envDefault:"device/location" validate:"required"`

	RoutingBaseURL   string        `env:"ROUTING_BASE_URL" validate:"required,url"`
	RoutingTimeout   time.Duration `env:"ROUTING_TIMEOUT" envDefault:"7s" validate:"gt=0"`
	RoutingRateLimit float64       `env:"ROUTING_RATE_LIMIT" envDefault:"1" validate:"gte=0"`
	RoutingBurst     int           `env:"ROUTING_BURST" envDefault:"2" validate:"gte=1"`

	TelemetryPath    string        `env:"TELEMETRY_PATH" envDefault:"/"`
	TelemetryTimeout time.Duration `env:"TELEMETRY_TIMEOUT" envDefault:"5s" validate:"gt=0"`

	ForegroundMinInterval time.Duration `env:"FOREGROUND_MIN_INTERVAL" envDefault:"10s" validate:"gte=0"`
	ForegroundMinDistance float64       `env:"FOREGROUND_MIN_DISTANCE" envDefault:"5" validate:"gte=0"`
	BackgroundMinInterval time.Duration `env:"BACKGROUND_MIN_INTERVAL" envDefault:"5s" validate:"gte=0"`
	BackgroundMinDistance float64       `env:"BACKGROUND_MIN_DISTANCE" envDefault:"5" validate:"gte=0"`
	BackgroundTaskID      string        `env:"BACKGROUND_TASK_ID" envDefault:"background-location-task" validate:"required"`

	PermissionForeground bool `env:"PERMISSION_FOREGROUND" envDefault:"true"`
	PermissionBackground bool `env:"PERMISSION_BACKGROUND" envDefault:"true"`

	PositionMaxAge         time.Duration `env:"POSITION_MAX_AGE" envDefault:"30s" validate:"gte=0"`
	PositionAcquireTimeout time.Duration `env:"POSITION_ACQUIRE_TIMEOUT" envDefault:"15s" validate:"gt=0"`

	Env Env `env:"ENV" envDefault:"prod"`
}

func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Env.IsValid() {
		return nil, fmt.Errorf("invalid env variable (must be 'prod' or 'dev')")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
