package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/studyhive/roompresence/config"
	"github.com/studyhive/roompresence/internal/delivery/kafka/producer"
	"github.com/studyhive/roompresence/internal/infra/redis"
	repo "github.com/studyhive/roompresence/internal/repository/redis"
	"github.com/studyhive/roompresence/internal/service"
	pkgKafka "github.com/studyhive/roompresence/pkg/kafka"
	pkgLog "github.com/studyhive/roompresence/pkg/logger"
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

	var prod producer.Producer
	if cfg.Kafka.Enabled {
		kafkaSyncProd, err := pkgKafka.NewProducer(cfg.Kafka)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod = producer.NewProducer(kafkaSyncProd, l)
		defer prod.Close()
	}

	reaper := service.NewReaper(userRepo, occRepo, prod, cfg.Presence, l)

	if err := reaper.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start reaper: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info(ctx, "Reaper shutting down...")

	if err := reaper.Stop(); err != nil {
		l.Errorf(ctx, "Reaper stop error: %v", err)
	}

	status := reaper.Status()
	l.Infof(ctx, "Reaper exited - total_reclaimed: %d, total_skipped: %d",
		status.TotalReclaimed, status.TotalSkipped)
}
