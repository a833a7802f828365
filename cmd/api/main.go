package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chathive/chathive-platform/internal/api/router"
	appconfig "github.com/chathive/chathive-platform/internal/config"
	"github.com/chathive/chathive-platform/internal/conversation"
	"github.com/chathive/chathive-platform/internal/events"
	"github.com/chathive/chathive-platform/internal/identity"
	"github.com/chathive/chathive-platform/internal/inbox"
	"github.com/chathive/chathive-platform/internal/messages"
	observemetrics "github.com/chathive/chathive-platform/internal/observability/metrics"
	"github.com/chathive/chathive-platform/internal/org"
	"github.com/chathive/chathive-platform/internal/webhook"
	"github.com/chathive/chathive-platform/internal/whatsapp"
	"github.com/chathive/chathive-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting chathive-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	orgRepo := org.NewRepository(pool)
	resolver := identity.NewResolver(pool)
	convStore := conversation.NewStore(pool)
	msgStore := messages.NewStore(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	webhookMetrics := observemetrics.NewWebhookMetrics(registry)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.AMQPURL != "" {
		rmq, err := events.NewRabbitPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		publisher = rmq
		logger.Info("change events enabled", "exchange", cfg.AMQPExchange)
	}
	defer func() { _ = publisher.Close() }()

	var waClient *whatsapp.Client
	if cfg.WhatsAppAccessToken != "" {
		waClient = whatsapp.NewClient(cfg.WhatsAppAPIBaseURL, cfg.WhatsAppAccessToken, 10*time.Second)
	}

	dispatcherCfg := webhook.DispatcherConfig{
		Orgs:          orgRepo,
		Identities:    resolver,
		Conversations: convStore,
		Messages:      msgStore,
		Reconciler:    webhook.NewReconciler(msgStore, logger),
		Publisher:     publisher,
		Logger:        logger,
		Metrics:       webhookMetrics,
		UnitTimeout:   cfg.WebhookUnitTimeout,
	}
	if waClient != nil && cfg.WhatsAppMarkRead {
		dispatcherCfg.Marker = waClient
	}
	dispatcher := webhook.NewDispatcher(dispatcherCfg)

	webhookHandler := webhook.NewHandler(cfg.WhatsAppVerifyToken, cfg.MetaAppSecret, dispatcher, logger, webhookMetrics)

	var inboxHandler *inbox.Handler
	if waClient != nil {
		inboxHandler = inbox.NewHandler(convStore, msgStore, orgRepo, waClient, publisher, logger)
	} else {
		logger.Warn("WHATSAPP_ACCESS_TOKEN not set; outbound send surface disabled")
		inboxHandler = inbox.NewHandler(convStore, msgStore, orgRepo, nil, publisher, logger)
	}

	r := router.New(&router.Config{
		Logger:         logger,
		WebhookHandler: webhookHandler,
		InboxHandler:   inboxHandler,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
