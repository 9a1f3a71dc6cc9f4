package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"bogofit/internal/adapter/repo"
	"bogofit/internal/domain"
	"bogofit/internal/engines"
	"bogofit/internal/http/handlers"
	httpapi "bogofit/internal/http/httpapi"
	"bogofit/internal/infra"
	"bogofit/internal/infra/credentials"
	"bogofit/internal/infra/geoip"
	"bogofit/internal/intake"
	"bogofit/internal/middleware"
	"bogofit/internal/pipeline"
	"bogofit/internal/productform"
	"bogofit/internal/progress"
	"bogofit/internal/runstore"
	"bogofit/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	// Postgres is optional: it backs stored engine tokens and the outcome ledger.
	var (
		tokens   *credentials.Store
		recorder domain.OutcomeRecorder
		ledger   handlers.LenientReporter
	)
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		runner := infra.NewSQLRunner(dbpool, logger)

		tokens = credentials.NewStore(runner)
		if err := tokens.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare integration tokens")
		}
		runLedger := repo.NewRunLedger(runner)
		if err := runLedger.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare run ledger")
		}
		recorder, ledger = runLedger, runLedger
	} else {
		logger.Warn().Msg("DATABASE_URL not set; outcome ledger disabled")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer redisClient.Close()
	}
	runs := runstore.New(redisClient, runstore.DefaultTTL, &logger)

	artifacts, presigner, err := storage.FromConfig(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise storage")
	}

	registry, err := engines.Build(ctx, engines.Options{
		Config:    cfg,
		Tokens:    tokens,
		Artifacts: artifacts,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure engines")
	}

	pipe, err := pipeline.New(pipeline.Options{
		Engines:       registry,
		Store:         runs,
		Recorder:      recorder,
		Estimator:     progress.Estimator{Interval: progress.DefaultInterval},
		ImageProgress: cfg.ImageProgressDuration,
		VideoProgress: cfg.VideoProgressDuration,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}

	resolver, err := geoip.Open(cfg.GeoIPDBPath, &logger)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.Country
		defer resolver.Close()
	}

	app := &handlers.App{
		Config:    cfg,
		Logger:    logger,
		Pipeline:  pipe,
		Runs:      runs,
		Validator: intake.NewValidator(cfg.MaxUploadBytes),
		Fetcher: intake.NewFetcher(intake.FetcherOptions{
			Allowlist: cfg.ImageSourceAllowlist,
			MaxBytes:  cfg.MaxUploadBytes,
			Logger:    &logger,
		}),
		Artifacts: intake.NewFetcher(intake.FetcherOptions{
			MaxBytes:       200 << 20,
			RequestTimeout: 2 * time.Minute,
			Logger:         &logger,
		}),
		Presigner: presigner,
		Forms:     productform.NewRegistry(&logger),
		Ledger:    ledger,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     middleware.OriginChecker(cfg.CORSAllowedOrigins),
		},
	}
	var staticDir string
	if !cfg.S3Enabled() {
		staticDir = cfg.StoragePath
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   lookup,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       staticDir,
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Strs("engines", registry.Names()).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
