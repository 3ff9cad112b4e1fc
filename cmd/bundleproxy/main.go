// Bundle Proxy - Storefront-side add-on bundle interception for Shopify.
// Designed for Cloud Run deployment with per-visitor state held in memory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/config"
	"bundle-proxy/internal/handler"
	"bundle-proxy/internal/intercept"
	"bundle-proxy/internal/metafield"
	"bundle-proxy/internal/middleware"
	"bundle-proxy/internal/notify"
	"bundle-proxy/internal/pricing"
	"bundle-proxy/internal/selection"
	"bundle-proxy/internal/sweeper"
	"bundle-proxy/internal/widget"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("merchant_id", cfg.MerchantID),
		slog.String("environment", cfg.Environment),
		slog.String("store_domain", cfg.Merchant.StoreDomain),
		slog.Int("bundles", len(cfg.Merchant.Bundles)),
	)

	// Storefront cart client
	svc, err := cart.New(cart.Config{StoreURL: cfg.Merchant.StoreURL})
	if err != nil {
		return fmt.Errorf("creating cart client: %w", err)
	}

	// Push bundle configuration to the shop metafield so themes can render
	// offers without a round trip to the proxy. Best effort: the proxy serves
	// offers itself either way.
	if cfg.Merchant.MetafieldSyncEnabled() {
		admin := metafield.NewAdminClient(cfg.Merchant.AdminShop, cfg.Merchant.AdminToken)
		syncer := metafield.New(admin.Metafield, logger)
		if err := syncer.Sync(ctx, cfg.Merchant.Bundles); err != nil {
			logger.Warn("metafield sync failed", slog.String("error", err.Error()))
		}
	}

	hub := notify.NewHub()
	store := selection.NewStore(cfg.Merchant.SessionTTL(), logger)
	interceptor := intercept.New(svc, hub, logger)
	pricer := pricing.NewReconciler(svc, logger)
	sw := sweeper.New(svc, hub, cfg.Merchant.SweepSettle(), logger)

	// Create handler wired to the storefront
	h, err := handler.New(svc, &cfg.Merchant, store, interceptor, pricer, sw, hub, logger)
	if err != nil {
		return fmt.Errorf("creating handler: %w", err)
	}

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → logging → widget identification → handler
	// Recovery must be outermost to catch panics from logging middleware
	// Widget identification tags requests; it never rejects, so native
	// storefront traffic passes through untouched
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		widget.Middleware(cfg.Merchant.WidgetMinVersion, logger),
	)(mux)

	// Background reconciliation sweep
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sw.Run(sweepCtx, cfg.Merchant.SweepInterval())

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     httpHandler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		// No WriteTimeout: the event stream endpoint holds its response
		// open for the life of the page.
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stopSweep()

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
