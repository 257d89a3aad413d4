// Command gateway runs the mini-app stylist gateway: it authenticates signed
// mini-app payloads, meters per-identity credits, and brokers calls to the
// image-generation provider.
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

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/glamlab/stylist-gateway/internal/config"
	"github.com/glamlab/stylist-gateway/internal/generation"
	"github.com/glamlab/stylist-gateway/internal/history"
	"github.com/glamlab/stylist-gateway/internal/ledger"
	"github.com/glamlab/stylist-gateway/internal/logging"
	"github.com/glamlab/stylist-gateway/internal/metrics"
	"github.com/glamlab/stylist-gateway/internal/middleware"
	"github.com/glamlab/stylist-gateway/internal/provider/gemini"
	"github.com/glamlab/stylist-gateway/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("stylist-gateway", cfg.Environment)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("gateway exited")
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	m := metrics.New("stylist-gateway")

	creditLedger, historyStore, err := buildStores(cfg, logger)
	if err != nil {
		return err
	}

	generator := gemini.New(gemini.Config{
		APIKey:  cfg.ProviderAPIKey,
		Model:   cfg.ProviderModel,
		Timeout: cfg.ProviderTimeout,
	})

	orchestrator := generation.New(creditLedger, historyStore, generator, m, logger, generation.Config{
		MaxAttempts:    cfg.MaxAttempts,
		AttemptTimeout: cfg.ProviderTimeout,
		ChargeOnEcho:   cfg.ChargeOnEcho,
	})

	var bot *telegram.Client
	if cfg.BotToken != "" {
		bot = telegram.New(telegram.Config{
			BotToken:   cfg.BotToken,
			WebhookURL: cfg.PublicURL + "/webhook/telegram",
			AppURL:     cfg.PublicURL,
		}, logger)
	}

	identity := middleware.NewIdentityMiddleware(cfg.BotToken, []byte(cfg.JWTSecret), cfg.AllowGuests, logger)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.CORSAllowedOrigins)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.MetricsMiddleware(m))

	router.HandleFunc("/health", healthHandler()).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(identity.Handler)
	api.Use(rateLimiter.Handler)
	api.HandleFunc("/auth/session", sessionHandler(cfg)).Methods(http.MethodPost)
	api.HandleFunc("/credits", creditsHandler(creditLedger, cfg)).Methods(http.MethodGet)
	api.HandleFunc("/generate", generateHandler(orchestrator, cfg)).Methods(http.MethodPost)
	api.HandleFunc("/history", historyHandler(historyStore, cfg)).Methods(http.MethodGet)

	if bot != nil {
		router.HandleFunc("/webhook/telegram", webhookHandler(bot, cfg)).Methods(http.MethodPost)
	}

	// Periodic cleanup keeps idle guest limiters from accumulating.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 10m", func() {
		if removed := rateLimiter.Cleanup(time.Hour); removed > 0 {
			logger.WithFields(map[string]interface{}{"removed": removed}).Debug("rate limiter cleanup")
		}
	}); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Webhook registration failure is logged, never fatal: the HTTP API works
	// without the bot layer.
	if bot != nil && cfg.WebhookEnabled && cfg.PublicURL != "" {
		go func() {
			regCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			if err := bot.RegisterWebhook(regCtx); err != nil {
				logger.WithError(err).Error("webhook registration gave up")
			}
		}()
	}

	// CORS wraps the router itself: a preflight OPTIONS matches no method-bound
	// route, so it must be answered before mux route matching.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           corsMiddleware.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"port":        cfg.Port,
			"environment": cfg.Environment,
			"guests":      cfg.AllowGuests,
			"ledger":      cfg.LedgerBackend,
		}).Info("gateway listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	return nil
}

// buildStores selects the ledger and history backends. The call contracts are
// identical between backends; nothing downstream knows which one is active.
func buildStores(cfg *config.Config, logger *logging.Logger) (ledger.Ledger, history.Store, error) {
	if cfg.LedgerBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}

		logger.Info("using redis-backed ledger and history")
		return ledger.NewRedisLedger(client, cfg.DefaultCredits),
			history.NewRedisStore(client, cfg.HistoryLimit), nil
	}

	return ledger.NewMemoryLedger(cfg.DefaultCredits),
		history.NewMemoryStore(cfg.HistoryLimit), nil
}
