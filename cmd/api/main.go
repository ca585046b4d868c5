// Package main provides the entrypoint for the gallery account API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/michalmalinowski87/photo-sub008/internal/account"
	"github.com/michalmalinowski87/photo-sub008/internal/api"
	"github.com/michalmalinowski87/photo-sub008/internal/api/handler"
	"github.com/michalmalinowski87/photo-sub008/internal/api/middleware"
	"github.com/michalmalinowski87/photo-sub008/internal/auth"
	"github.com/michalmalinowski87/photo-sub008/internal/config"
	"github.com/michalmalinowski87/photo-sub008/internal/database"
	"github.com/michalmalinowski87/photo-sub008/internal/deletion"
	"github.com/michalmalinowski87/photo-sub008/internal/notification"
	"github.com/michalmalinowski87/photo-sub008/internal/provider/resilience"
	"github.com/michalmalinowski87/photo-sub008/internal/scheduler"
	"github.com/michalmalinowski87/photo-sub008/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "gallery-account-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting gallery account API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.ValidateAPI(); err != nil {
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

	if tp.Enabled() {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	var (
		repo   account.Repository
		store  scheduler.Store
		checks []handler.ReadinessCheck
	)

	if cfg.UseMemoryStores {
		if cfg.IsProduction() {
			log.Fatal().Msg("in-memory stores are not allowed in production")
		}
		repo = account.NewInMemoryRepository()
		store = scheduler.NewInMemoryScheduler()
		log.Warn().Msg("using in-memory account and scheduler stores")
	} else {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")

		redisClient, err := scheduler.NewRedisClient(ctx, scheduler.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer closeRedis(redisClient, log)
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")

		pgRepo := account.NewPostgresRepository(pool)
		redisStore := scheduler.NewRedisScheduler(redisClient)
		repo = pgRepo
		store = redisStore
		checks = []handler.ReadinessCheck{
			{Name: "postgres", Check: pgRepo.Ping},
			{Name: "redis", Check: redisStore.Ping},
		}
	}

	var sender notification.Sender
	if cfg.ResendAPIKey != "" {
		sender = notification.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom, log)
	} else {
		if cfg.IsProduction() {
			log.Fatal().Msg("RESEND_API_KEY is required in production")
		}
		sender = notification.NewNoopSender(log)
		log.Warn().Msg("email provider not configured - emails will be logged only")
	}

	registry := resilience.NewRegistry()

	deletionService, err := deletion.NewService(deletion.Config{
		Repository:        repo,
		Scheduler:         store,
		Notifier:          notification.NewMailer(sender, warsaw(log)),
		Logger:            log,
		GracePeriod:       cfg.GracePeriod,
		UndoBaseURL:       cfg.UndoBaseURL,
		ExecutorTarget:    cfg.ExecutorTopic,
		DeadLetterTarget:  cfg.DeadLetterTopic,
		SideEffectTimeout: cfg.SideEffectTimeout,
		Registry:          registry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize deletion service")
	}
	log.Info().
		Dur("grace_period", cfg.GracePeriod).
		Str("executor_topic", cfg.ExecutorTopic).
		Msg("deletion service initialized")

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.JWTSigningKey,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		Logger:          log,
		Metrics:         metrics,
		RequireTLS:      cfg.IsProduction(),
		TokenValidator:  jwtService,
		DeletionService: deletionService,
		ReadinessChecks: checks,
		Registry:        registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// warsaw returns the zone email dates are shown in, falling back to UTC when
// the tz database is missing from the image.
func warsaw(log zerolog.Logger) *time.Location {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		log.Warn().Err(err).Msg("Europe/Warsaw time zone unavailable, using UTC")
		return time.UTC
	}
	return loc
}

func closeRedis(client *redis.Client, log zerolog.Logger) {
	if err := client.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close redis client")
	}
}
