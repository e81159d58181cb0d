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

	"engagement_backend/internal/conversation"
	"engagement_backend/internal/conversation/agent"
	"engagement_backend/internal/conversation/service"
	"engagement_backend/internal/crm"
	"engagement_backend/internal/email"
	"engagement_backend/internal/events"
	apphttp "engagement_backend/internal/http"
	"engagement_backend/internal/http/router"
	"engagement_backend/internal/idempotency"
	"engagement_backend/internal/metrics"
	"engagement_backend/internal/notification"
	"engagement_backend/internal/scheduler"
	"engagement_backend/internal/settings"
	"engagement_backend/platform/ai/openaicompat"
	"engagement_backend/platform/config"
	"engagement_backend/platform/db"
	"engagement_backend/platform/logger"
	"engagement_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		applied, err := db.RunMigrations(ctx, pool)
		if err == nil {
			log.Info("database migrations complete", "applied", applied)
		}
		return err
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	recorder := metrics.NewRecorder(metrics.NewRepository(pool), businessLocation(cfg, log), log)

	retryQueue, closeQueue := initRetryQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.New(email.NewSender(cfg), cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	profiles := settings.NewProvider(
		settings.NewRepository(pool),
		settings.DefaultsFromConfig(cfg),
		cfg.GetSettingsCacheTTL(),
		log,
	)

	llm := openaicompat.NewModel(openaicompat.Config{
		APIKey:      cfg.GetCompletionAPIKey(),
		BaseURL:     cfg.GetCompletionBaseURL(),
		Model:       cfg.GetCompletionModel(),
		HTTPTimeout: cfg.GetReplyTimeout() + 5*time.Second,
	})

	syncer := crm.NewSyncer(crmPusher(cfg, log), retryQueue, cfg.GetCRMTimeout(), log)
	syncer.OnError(recorder.ExternalError)

	deps := service.Deps{
		Classifier:       agent.NewIntentClassifier(llm, cfg.GetClassifyTimeout(), log),
		Generator:        agent.NewReplyGenerator(llm, cfg.GetReplyTimeout(), log),
		Profiles:         profiles,
		Metrics:          recorder,
		CRM:              syncer,
		Bus:              eventBus,
		Log:              log,
		HistoryLimit:     cfg.GetHistoryLimit(),
		DefaultChannel:   cfg.GetDefaultChannel(),
		DedupeDeliveries: cfg.GetWebhookDedupEnabled(),
	}

	readiness := map[string]apphttp.HealthChecker{}
	if cfg.GetWebhookDedupEnabled() {
		rdb, err := idempotency.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to initialize redis client", "error", err)
			panic("failed to initialize redis client: " + err.Error())
		}
		defer func() { _ = rdb.Close() }()
		guard := idempotency.NewGuard(rdb, cfg.GetWebhookDedupTTL())
		deps.Guard = guard
		readiness["redis"] = guard
		log.Info("webhook delivery dedupe enabled", "ttl", cfg.GetWebhookDedupTTL())
	}

	conversationModule := conversation.NewModule(pool, deps, val)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:       cfg,
		Logger:       log,
		Health:       pool,
		Dependencies: readiness,
		Metrics:      recorder.Handler(),
		EventBus:     eventBus,
		Modules: []apphttp.Module{
			conversationModule,
			settings.NewModule(profiles),
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
		syncer.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initRetryQueue connects the CRM retry queue. Without Redis, failed pushes are only logged.
func initRetryQueue(cfg config.SchedulerConfig, log *logger.Logger) (crm.RetryQueue, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; CRM retries disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize retry queue client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func crmPusher(cfg config.CRMConfig, log *logger.Logger) crm.ReplyPusher {
	client := crm.NewClient(cfg, log)
	if client == nil {
		log.Warn("CRM_BASE_URL not configured; replies are not pushed to the CRM")
		return nil
	}
	return client
}

func businessLocation(cfg config.AgentDefaultsConfig, log *logger.Logger) *time.Location {
	loc, err := time.LoadLocation(cfg.GetBusinessTimezone())
	if err != nil {
		log.Warn("unknown business timezone, using UTC", "timezone", cfg.GetBusinessTimezone(), "error", err)
		return time.UTC
	}
	return loc
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
