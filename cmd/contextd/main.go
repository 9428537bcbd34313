package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/contextd/internal/aggregator"
	"github.com/p-blackswan/contextd/internal/api"
	"github.com/p-blackswan/contextd/internal/config"
	"github.com/p-blackswan/contextd/internal/contextstore"
	"github.com/p-blackswan/contextd/internal/generator"
	"github.com/p-blackswan/contextd/internal/health"
	"github.com/p-blackswan/contextd/internal/metrics"
	"github.com/p-blackswan/contextd/internal/notify"
	"github.com/p-blackswan/contextd/internal/project"
	"github.com/p-blackswan/contextd/internal/retry"
	"github.com/p-blackswan/contextd/internal/store"
	"github.com/p-blackswan/contextd/internal/trigger"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("store_driver", cfg.StoreDriver).
		Str("auth_mode", cfg.AuthMode).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting contextd")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	checker := health.NewChecker(logger)
	m := metrics.New()

	// Project records
	var projects api.Projects
	var repo project.Repository
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		ds, err := store.New(cfg.DatabasePath, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("failed to open store")
		}
		defer ds.Close()
		checker.Register("sqlite", health.PingCheck(ds))
		s := project.NewStore(ds, logger)
		projects, repo = s, s
	default:
		logger.Warn().Msg("using in-memory project store; data is lost on restart")
		s := project.NewMemoryStore()
		projects, repo = s, s
	}

	// Trigger catalog
	catalog := trigger.Default()
	if cfg.TriggerCatalogPath != "" {
		catalog, err = trigger.LoadFile(cfg.TriggerCatalogPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.TriggerCatalogPath).Msg("failed to load trigger catalog")
		}
	}
	logger.Info().Int("triggers", catalog.Len()).Msg("trigger catalog loaded")

	// Notifications
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.SlackEnabled() {
		notifier = notify.NewSlackNotifierFromToken(cfg.SlackBotToken, cfg.SlackNotifyChannel, logger)
		logger.Info().Str("channel", cfg.SlackNotifyChannel).Msg("slack trigger notifications enabled")
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.ConflictRetries
	contexts := contextstore.New(repo, logger, contextstore.WithRetry(retryCfg))

	agg := aggregator.New(contexts, catalog, logger,
		aggregator.WithNotifier(notifier),
		aggregator.WithMetrics(m),
	)

	var jitter generator.JitterSource = generator.DefaultJitter
	if cfg.ConfidenceJitter == config.JitterRandom {
		jitter = generator.NewSeededJitter(cfg.JitterSeed)
	}
	gen := generator.New(agg, logger,
		generator.WithJitter(jitter),
		generator.WithMetrics(m),
		generator.WithCacheSize(cfg.ArtifactCacheSize),
	)

	server := api.NewServer(api.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		AuthConfig: api.AuthConfig{
			Mode:      cfg.AuthMode,
			APIKey:    cfg.APIKey,
			JWTSecret: cfg.JWTSecret,
			JWTIssuer: cfg.JWTIssuer,
		},
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CORSOrigins: cfg.CORSOriginList(),
		TLSCert:     cfg.TLSCert,
		TLSKey:      cfg.TLSKey,
	}, projects, agg, gen, checker, m, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("API server stopped")
		}
	}

	if err := server.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}
	logger.Info().Msg("contextd stopped")
}
