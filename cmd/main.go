package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"supmap-tracking/internal/api"
	"supmap-tracking/internal/background"
	"supmap-tracking/internal/cache"
	"supmap-tracking/internal/config"
	"supmap-tracking/internal/gis/routing"
	"supmap-tracking/internal/navigation"
	"supmap-tracking/internal/position"
	"supmap-tracking/internal/subscriber"
	"supmap-tracking/internal/telemetry"
	"supmap-tracking/internal/tracking"
	"supmap-tracking/internal/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf, err := config.New()
	if err != nil {
		return err
	}

	var loggerOpts slog.HandlerOptions
	if conf.Env == config.EnvDev {
		loggerOpts = slog.HandlerOptions{Level: slog.LevelDebug}
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &loggerOpts)
	logger := slog.New(jsonHandler)

	// Background tasks are defined once for the whole process; sessions only bind their sink.
	registry := background.NewRegistry(logger)
	if err := registry.Define(conf.BackgroundTaskID, background.ForwardToSink); err != nil {
		return err
	}

	hub := position.NewHub(ctx, logger, registry, position.HubOptions{
		Permissions: navigation.Permissions{
			Foreground: conf.PermissionForeground,
			Background: conf.PermissionBackground,
		},
		MaxAge:         conf.PositionMaxAge,
		AcquireTimeout: conf.PositionAcquireTimeout,
	})
	defer hub.Close()

	mqttClient, err := position.ConnectMQTT(conf.MQTTBroker, conf.MQTTClientID)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect(250)

	feed := position.NewMQTTFeed(mqttClient, conf.MQTTPositionTopic, hub, logger)
	if err := feed.Start(); err != nil {
		return err
	}
	defer feed.Stop()

	routingClient := routing.NewClient(conf.RoutingBaseURL, routing.ClientOptions{
		Timeout:           conf.RoutingTimeout,
		RequestsPerSecond: conf.RoutingRateLimit,
		Burst:             conf.RoutingBurst,
		Costing:           routing.CostingAuto,
	})

	transportOpts := telemetry.TransportOptions{Path: conf.TelemetryPath, Timeout: conf.TelemetryTimeout}
	manager := tracking.NewManager(tracking.ManagerConfig{
		Foreground: navigation.Thresholds{
			MinInterval: conf.ForegroundMinInterval,
			MinDistance: conf.ForegroundMinDistance,
		},
		Background: navigation.Thresholds{
			MinInterval: conf.BackgroundMinInterval,
			MinDistance: conf.BackgroundMinDistance,
		},
		BackgroundTaskID: conf.BackgroundTaskID,
	}, logger, hub, routingClient, registry, func(endpoint string) (tracking.TelemetryTransport, error) {
		return telemetry.NewTransport(endpoint, logger, transportOpts)
	})

	redisClient := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(conf.RedisHost, conf.RedisPort)})
	defer redisClient.Close()

	snapshotCache := cache.NewRedisSnapshotCache(redisClient, conf.SessionCacheTTL, logger)
	manager.Observe(snapshotCache.Observe)

	wsManager := ws.NewManager(ctx, logger, manager)
	go wsManager.Start()
	defer wsManager.Shutdown()
	manager.Observe(wsManager.Observe)

	sub := subscriber.NewSubscriber(logger, redisClient, conf.RedisControlChannel, manager)
	go func() {
		if err := sub.Start(ctx); err != nil {
			logger.Error("subscriber stopped with error", "error", err)
		}
	}()

	// Runs before the Redis client and the stream are torn down.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		manager.Shutdown(shutdownCtx)
	}()

	server := api.NewServer(conf, manager, snapshotCache, wsManager, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	return nil
}
