package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coventis/psp-webhooks/internal/config"
	"github.com/coventis/psp-webhooks/internal/handler"
	"github.com/coventis/psp-webhooks/internal/logging"
	"github.com/coventis/psp-webhooks/internal/middleware"
	"github.com/coventis/psp-webhooks/internal/provider"
	"github.com/coventis/psp-webhooks/internal/repository"
	"github.com/coventis/psp-webhooks/internal/secrets"
	"github.com/coventis/psp-webhooks/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("psp-webhooks", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetimeS) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second,
	})
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	codec, err := secrets.NewCodec(cfg.SecretsMasterKey, cfg.SecretsSalt)
	if err != nil {
		slog.Error("failed to initialize secrets codec", "error", err)
		os.Exit(1)
	}

	mux := buildRoutes(db, codec, cfg, logger)

	chain := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chain,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func buildRoutes(db *sql.DB, codec *secrets.Codec, cfg *config.Config, logger *slog.Logger) *http.ServeMux {
	inboxRepo := repository.NewInboxRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	accountRepo := repository.NewAccountRepository(db)

	gcIngestor := service.NewIngestor(provider.NewGoCardless(codec), inboxRepo, eventRepo, accountRepo, logger)
	mspIngestor := service.NewIngestor(provider.NewMultiSafepay(codec), inboxRepo, eventRepo, accountRepo, logger)

	webhooks := handler.NewWebhookHandler(gcIngestor, mspIngestor)
	ops := handler.NewOpsHandler(inboxRepo, eventRepo)
	transitions := handler.NewTransitionHandler()
	health := handler.NewHealthHandler(db)

	authed := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)

	mux.HandleFunc("POST /webhooks/gocardless/{companyId}", webhooks.ReceiveGoCardless)
	mux.HandleFunc("POST /webhooks/multisafepay/{companyId}", webhooks.ReceiveMultiSafepay)

	mux.Handle("GET /internal/inbox/{provider}/{eventId}", authed(http.HandlerFunc(ops.GetInboxEntry)))
	mux.Handle("GET /internal/events", authed(http.HandlerFunc(ops.ListPaymentEvents)))
	mux.Handle("POST /internal/transitions/validate", authed(http.HandlerFunc(transitions.ValidateTransition)))

	return mux
}
