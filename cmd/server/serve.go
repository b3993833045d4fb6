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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/folio/internal"
	"github.com/DukeRupert/folio/internal/domain"
	"github.com/DukeRupert/folio/internal/handler"
	"github.com/DukeRupert/folio/internal/metrics"
	"github.com/DukeRupert/folio/internal/middleware"
	"github.com/DukeRupert/folio/internal/service"
	"github.com/DukeRupert/folio/internal/worker"
)

func newServeCommand() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(shutdownTimeout)
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "Maximum time to wait for graceful shutdown")

	return cmd
}

func serve(shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	logger.Info("Configuration loaded", "config", cfg)

	realIPMw, err := middleware.NewRealIPMiddleware(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	// Attachment storage
	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Mail delivery
	m, err := newMailer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("mailer initialization failed: %w", err)
	}

	// Transport selection runs in the background so the server can accept
	// traffic immediately. Sends before it finishes use the primary.
	if m.selector != nil {
		go func() {
			if err := m.selector.Run(ctx); err != nil {
				logger.Error("No SMTP transport could be verified", "error", err)
			}
		}()
	}

	// Initialize services
	policy := domain.AttachmentPolicy{
		MaxBytes:     cfg.MaxAttachmentSize,
		AllowedTypes: cfg.AllowedMIMETypes,
	}
	contactService := service.NewContactService(m.sender, store, service.ContactConfig{
		From:     cfg.FromAddress(),
		Receiver: cfg.ReceiverAddress(),
		Policy:   policy,
	}, logger)

	// Background tasks
	w, err := worker.New(worker.DefaultConfig(), logger)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	if m.selector != nil {
		w.Register(worker.NewTransportReverifyTask(m.selector), cfg.ReverifyInterval)
	}
	if cfg.AttachmentRetention > 0 {
		w.Register(worker.NewAttachmentCleanupTask(contactService, cfg.AttachmentRetention), cfg.AttachmentCleanupInterval)
	}
	w.Start(ctx)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	corsMw := middleware.NewCORSMiddleware(cfg.CORSAllowedOrigins, logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)
	if !metricsAuthMw.Enabled() {
		logger.Warn("METRICS_USERNAME/METRICS_PASSWORD not set, /metrics is public")
	}
	contactLimiter := middleware.NewRateLimiter(cfg.ContactRateLimit, cfg.ContactRateWindow, logger)
	defer contactLimiter.Close()
	limitMw := middleware.NewRateLimitMiddleware(contactLimiter, logger)

	// Initialize handlers
	var checker handler.TransportChecker
	if m.selector != nil {
		checker = m.selector
	}
	contactHandler := handler.NewContactHandler(contactService, policy, logger)
	healthHandler := handler.NewHealthHandler(m.sender.Name(), checker, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	contactHandler.RegisterRoutes(mux, limitMw.Limit)
	healthHandler.RegisterRoutes(mux)

	// Metrics endpoint (protected with basic auth if configured)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Metrics wraps the mux directly so it sees the matched pattern.
	stack := middleware.Stack(realIPMw.Handler, securityMw.Handler, corsMw.Handler, loggingMw.Handler)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           stack(metrics.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "mail_provider", m.sender.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
		w.Stop()
		return err
	}

	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}
