// Package main provides the entrypoint for the deletion dispatch worker.
//
// The worker claims due deletion jobs from the scheduler store on a cron
// schedule and publishes an executor invocation for each. It also exposes
// health endpoints for Cloud Run.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/michalmalinowski87/photo-sub008/internal/api/handler"
	"github.com/michalmalinowski87/photo-sub008/internal/api/middleware"
	"github.com/michalmalinowski87/photo-sub008/internal/config"
	"github.com/michalmalinowski87/photo-sub008/internal/provider/resilience"
	"github.com/michalmalinowski87/photo-sub008/internal/scheduler"
	"github.com/michalmalinowski87/photo-sub008/internal/telemetry"
	"github.com/michalmalinowski87/photo-sub008/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "gallery-deletion-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting deletion dispatch worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTELEnabled,
		SampleRatio:    cfg.OTELSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	var (
		store  scheduler.Store
		checks []handler.ReadinessCheck
	)
	if cfg.UseMemoryStores {
		store = scheduler.NewInMemoryScheduler()
		log.Warn().Msg("using in-memory scheduler store")
	} else {
		redisClient, err := scheduler.NewRedisClient(ctx, scheduler.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close redis client")
			}
		}()
		redisStore := scheduler.NewRedisScheduler(redisClient)
		store = redisStore
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: redisStore.Ping})
	}

	publisher, err := worker.NewPubSubPublisher(ctx, worker.PubSubConfig{
		ProjectID: cfg.PubSubProjectID,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pubsub publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub publisher")
		}
	}()

	registry := resilience.NewRegistry()

	dispatchCfg := worker.DefaultDispatchConfig()
	dispatchCfg.BatchSize = cfg.DispatchBatchSize
	job := worker.NewDispatchJob(worker.DispatchJobConfig{
		Config:    dispatchCfg,
		Store:     store,
		Publisher: publisher,
		Logger:    log,
		Registry:  registry,
	})

	runner, err := worker.NewRunner(cfg.DispatchSchedule, job, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule dispatch")
	}

	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Checks:    checks,
		Registry:  registry,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Get("/health", ops.HealthCheck)
	r.Get("/ready", ops.ReadinessCheck)
	r.Get("/status", ops.SystemStatus)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	runner.Start()
	log.Info().
		Str("schedule", cfg.DispatchSchedule).
		Int("batch_size", dispatchCfg.BatchSize).
		Msg("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := runner.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dispatch run did not finish before shutdown")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().
		Interface("metrics", job.MetricsSnapshot()).
		Msg("worker stopped")
}
