package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/adrianva1983/whatsApp-bot/internal/api"
	"github.com/adrianva1983/whatsApp-bot/internal/api/middleware"
	"github.com/adrianva1983/whatsApp-bot/internal/bot"
	"github.com/adrianva1983/whatsApp-bot/internal/config"
	"github.com/adrianva1983/whatsApp-bot/internal/handlers"
	"github.com/adrianva1983/whatsApp-bot/internal/metrics"
	"github.com/adrianva1983/whatsApp-bot/internal/models"
	"github.com/adrianva1983/whatsApp-bot/internal/session"
	"github.com/adrianva1983/whatsApp-bot/internal/sse"
	"github.com/adrianva1983/whatsApp-bot/internal/store"
	"github.com/adrianva1983/whatsApp-bot/internal/watcher"
	"github.com/adrianva1983/whatsApp-bot/internal/whatsapp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}
	log.Logger = logger

	ctx := context.Background()
	waLogger := waLog.Zerolog(logger.With().Str("component", "whatsmeow").Logger())

	// Credential store
	var creds store.CredentialStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresCredentials(ctx, cfg.DatabaseURL, waLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		creds = pg
		logger.Info().Msg("credentials stored in PostgreSQL")
	} else {
		lite, err := store.NewSQLiteCredentials(ctx, cfg.AuthDir, waLogger)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.AuthDir).Msg("credential store failed")
		}
		creds = lite
		logger.Info().Str("dir", lite.Dir()).Msg("credentials stored on disk")
	}
	defer creds.Close()

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Reply rules
	rules := bot.DefaultRules()
	if cfg.RepliesFile != "" {
		loaded, err := bot.LoadRules(cfg.RepliesFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.RepliesFile).Msg("loading reply rules failed")
		}
		rules = loaded
	}

	// Session and fan-out
	buffer := store.NewRing[models.BufferEntry](cfg.MaxPerNumber)
	if err := metrics.RegisterBuffer(prometheus.DefaultRegisterer, buffer); err != nil {
		logger.Fatal().Err(err).Msg("registering buffer metrics failed")
	}
	machine := session.New(
		whatsapp.NewFactory(creds, logger),
		logger,
		session.WithQRRenderer(whatsapp.RenderQR),
	)
	defer machine.Close()

	hub := sse.NewHub(machine.State)
	machine.OnStateChange(hub.BroadcastState)

	pipeline := bot.NewPipeline(buffer, hub, machine, bot.NewResponder(rules), logger)
	machine.OnMessage(pipeline.Handle)

	// Restart the session when the credential directory disappears
	if dir := creds.Dir(); dir != "" {
		w, err := watcher.New(dir, func() {
			if err := machine.Restart(context.Background(), "credential directory removed"); err != nil {
				logger.Error().Err(err).Msg("restart after credential removal failed")
			}
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("credential watcher failed")
		}
		if err := w.Start(); err != nil {
			logger.Warn().Err(err).Msg("credential watcher not started")
		} else {
			defer w.Stop()
		}
	}

	// HTTP handlers
	h := handlers.NewHandler(machine, buffer, logger)
	h.AddHealthCheck("credentials", creds)
	var redisClient *redis.Client
	if redisStore != nil {
		h.AddHealthCheck("redis", redisStore)
		redisClient = redisStore.Client()
	}

	if cfg.ControlTokenHash == "" {
		logger.Warn().Msg("CONTROL_TOKEN_HASH not set, control endpoints are open")
	}

	// Create router
	router := api.NewRouter(api.Options{
		Logger:           logger,
		Handler:          h,
		Events:           hub,
		Redis:            redisClient,
		ControlTokenHash: cfg.ControlTokenHash,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
		TrustedProxies: cfg.TrustedProxies,
		StaticDir:      cfg.StaticDir,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting WhatsApp bot")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Start the session
	go func() {
		if err := machine.Connect(ctx); err != nil {
			logger.Error().Err(err).Msg("initial connect failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
