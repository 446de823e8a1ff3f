package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dontforget/internal/api"
	"dontforget/internal/backend"
	"dontforget/internal/config"
	"dontforget/internal/drafts"
	"dontforget/internal/events"
	"dontforget/internal/logging"
	"dontforget/internal/metrics"
	"dontforget/internal/notify"
	"dontforget/internal/payments"
	"dontforget/internal/repository"
	"dontforget/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := base.With().Str("component", "api-main").Logger()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	store, storeCloser, err := repository.Open(cfg.Store, cfg.StoreTTL(), redisClient, logging.Component(base, "store"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Store.Driver).Msg("open store")
		return err
	}
	if storeCloser != nil {
		defer (func() { _ = storeCloser.Close() })()
	}
	if cfg.Store.KeyPrefix != "" {
		store = repository.Scoped(store, cfg.Store.KeyPrefix)
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.BackendTimeout(), logging.Component(base, "backend"))
	if redisClient != nil && cfg.CacheTTL() > 0 {
		client.UseRedisCache(redisClient, cfg.CacheTTL())
	}

	registry := payments.NewDefaultRegistry(client, payments.StripeOptions{
		APIURL:     cfg.Payments.StripeAPIURL,
		MaxRetries: cfg.Payments.MaxRetries,
	}, logging.Component(base, "payments"))

	bus := events.NewEventBus()
	subscribeEvents(bus, logging.Component(base, "events"))

	sessions := api.NewSessions(cfg.SessionIdleTTL())
	center := notify.NewCenter(store, loc, logging.Component(base, "notify"))
	watcher := notify.NewWatcher(center, cfg.PollInterval(), cfg.SessionIdleTTL(), logging.Component(base, "notify"))

	httpServer := api.NewHTTPServer(cfg.HTTP, api.Options{
		Backend:  client,
		Store:    store,
		Payments: registry,
		Events:   bus,
		Sessions: sessions,
		Notifier: watcher,
		Center:   center,
		Drafts:   drafts.NewService(store),
		Ready:    readiness(redisClient),
		Logger:   logging.Component(base, "http"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)
	startPollers(ctx, cfg, sessions, watcher, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func readiness(redisClient *redis.Client) func(ctx context.Context) error {
	if redisClient == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return repository.Ping(ctx, redisClient)
	}
}

// subscribeEvents logs every booking and payment event.
func subscribeEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventBookingCreated, func(event *events.Event) error {
		var payload events.BookingEventPayload
		if err := event.Decode(&payload); err != nil {
			return err
		}
		logger.Info().
			Str("booking_id", payload.BookingID).
			Str("user_id", payload.UserID).
			Str("path", payload.Path).
			Str("payment_status", payload.PaymentStatus).
			Msg("booking created")
		return nil
	})
	bus.SubscribeAll(func(event *events.Event) error {
		if event.Type == events.EventBookingCreated {
			return nil
		}
		logger.Warn().Str("type", event.Type).RawJSON("payload", event.Payload).Msg("booking event")
		return nil
	})
}

func startPollers(ctx context.Context, cfg *config.Config, sessions *api.Sessions, watcher *notify.Watcher, logger *zerolog.Logger) {
	janitor := worker.NewPoller("session-janitor", time.Minute, worker.RetryPolicy{}, sessions.Sweep, logger)
	go janitor.Start(ctx)

	refresher := worker.NewPoller("notifications", cfg.PollInterval(), worker.RetryPolicy{
		MaxRetries: cfg.Notifications.MaxRetries,
	}, watcher.Refresh, logger)
	go refresher.Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.HTTP.Port).Str("backend", cfg.Backend.BaseURL).Msg("booking gateway started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("booking gateway stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
