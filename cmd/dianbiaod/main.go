package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"dianbiao-backend/config"
	"dianbiao-backend/internal/api"
	"dianbiao-backend/internal/auth"
	"dianbiao-backend/internal/backup"
	"dianbiao-backend/internal/collector"
	"dianbiao-backend/internal/db"
	"dianbiao-backend/internal/ingest"
	"dianbiao-backend/internal/jobs"
	"dianbiao-backend/internal/logging"
	"dianbiao-backend/internal/notification"
	"dianbiao-backend/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log)
	log.Info().Str("path", configPath).Msg("configuration loaded")

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc := cfg.Server.Location
	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	// Readings from jobs, the collector and MQTT bypass the HTTP layer, so the store flushes the cache too.
	responseCache := cache.New(cacheTTL, 2*cacheTTL)
	appStore := store.NewGormStore(gormDB, store.Options{
		FallbackPrice:  cfg.Billing.FallbackPrice,
		Location:       loc,
		OnReadingWrite: responseCache.Flush,
	})

	if err := auth.EnsureAdmin(ctx, appStore, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to seed administrator")
	}
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)

	var webpushOptions *webpush.Options
	var alerter jobs.Alerter
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
		alerter = pool
		log.Info().Int("workers", cfg.WorkerPool.Size).Msg("notification worker pool started")
	} else {
		log.Warn().Msg("VAPID keys are not configured; push notifications are disabled")
	}

	uploader, err := backup.New(ctx, cfg.Backup)
	if err != nil {
		log.Fatal().Err(err).Str("target", cfg.Backup.Target).Msg("failed to initialize backup target")
	}

	scheduler := jobs.New(cfg.Jobs, appStore, uploader, alerter, loc)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduled jobs")
	}

	go collector.NewService(cfg.Collector, loc, appStore).Run(ctx)

	go func() {
		if err := ingest.NewSubscriber(cfg.MQTT, appStore, loc).Run(ctx); err != nil {
			log.Error().Err(err).Msg("mqtt ingest stopped")
		}
	}()

	router := api.NewRouter(appStore, issuer, webpushOptions, api.RouterConfig{
		Options: api.Options{
			Location:          loc,
			ReportConcurrency: cfg.Billing.ReportConcurrency,
		},
		RateLimit: rate.Limit(cfg.Server.RateLimitPerSec),
		RateBurst: cfg.Server.RateLimitBurst,
		CacheTTL:  cacheTTL,
		Cache:     responseCache,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server Shutdown")
	}
	scheduler.Stop(shutdownCtx)
	cancel()

	log.Info().Msg("server gracefully stopped")
}
