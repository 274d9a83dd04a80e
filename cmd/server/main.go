package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studyhive/roompresence/config"
	httpDelivery "github.com/studyhive/roompresence/internal/delivery/http"
	"github.com/studyhive/roompresence/internal/delivery/kafka/producer"
	"github.com/studyhive/roompresence/internal/geofence"
	"github.com/studyhive/roompresence/internal/heartbeat"
	"github.com/studyhive/roompresence/internal/infra/redis"
	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/internal/platform"
	repo "github.com/studyhive/roompresence/internal/repository/redis"
	"github.com/studyhive/roompresence/internal/service"
	pkgKafka "github.com/studyhive/roompresence/pkg/kafka"
	pkgLog "github.com/studyhive/roompresence/pkg/logger"
	"github.com/studyhive/roompresence/pkg/push"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	redisCli, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
	}
	defer redis.Disconnect(redisCli)

	userRepo := repo.NewRedisUserRepository(redisCli, l)
	occRepo := repo.NewRedisOccupancyRepository(redisCli, l)

	// Kafka producer (optional)
	var prod producer.Producer
	if cfg.Kafka.Enabled {
		kafkaSyncProd, err := pkgKafka.NewProducer(cfg.Kafka)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod = producer.NewProducer(kafkaSyncProd, l)
		defer prod.Close()
	}

	// Push sender (optional)
	var notifier push.Sender
	if cfg.Push.Enabled {
		notifier = push.NewSender(cfg.Push.Endpoint, cfg.Push.Timeout)
	}

	// Platform primitives
	regionMonitor := platform.NewLocalRegionMonitor(cfg.Geofence.Enabled)
	scheduler := platform.NewTickerScheduler(cfg.Presence.HeartbeatInterval, l)
	defer scheduler.Shutdown()

	monitor := geofence.NewMonitor(regionMonitor, l)
	hb := heartbeat.New(scheduler, userRepo, l)

	homeRegion := models.Region{
		Identifier:   cfg.Geofence.Identifier,
		Latitude:     cfg.Geofence.Latitude,
		Longitude:    cfg.Geofence.Longitude,
		RadiusMeters: cfg.Geofence.RadiusMeters,
	}

	presenceSvc := service.NewPresenceService(
		userRepo, occRepo, monitor, hb, prod, notifier, cfg.Presence, homeRegion, l,
	)

	if err := presenceSvc.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start exit watcher: %v", err)
	}
	defer presenceSvc.Stop()

	// HTTP server
	handler := httpDelivery.NewHTTPHandler(presenceSvc, monitor, l)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		l.Infof(ctx, "HTTP server is listening on port: %d", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatalf(ctx, "Failed to serve HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info(ctx, "Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Errorf(ctx, "HTTP shutdown error: %v", err)
	}

	cancel()

	l.Info(ctx, "Server exited")
}
