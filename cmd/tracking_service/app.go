package trackingservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"delivery-tracking/internal/general/broker"
	"delivery-tracking/internal/general/clock"
	"delivery-tracking/internal/general/config"
	"delivery-tracking/internal/general/logger"
	"delivery-tracking/internal/general/postgres"
	"delivery-tracking/internal/general/websocket"
	"delivery-tracking/internal/tracking/app"
	"delivery-tracking/internal/tracking/handler"
)

// Run wires the tracking service and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, maxConcurrent int) error {
	// set up a new logger and context with a static request ID for startup logs
	logger := logger.New("tracking-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool (fallback location source)
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()
	locations := postgres.NewPartnerLocationRepo(pool)

	// connect to the broker; the client reconnects itself after this point
	brk, err := broker.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "broker_connection_failed", "Failed to connect to broker", err, nil)
		return err
	}
	defer brk.Close()

	// set up the tracking registry with its fan-out
	fanout := app.NewFanout(logger)
	svc := app.NewService(logger, cfg, clock.Real{}, brk, locations, fanout)
	defer svc.Shutdown(context.WithoutCancel(ctx))

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	bridge := websocket.NewBridge(logger, svc)
	httpHandler := handler.NewTrackingHTTPHandler(svc, logger, bridge)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebSocket.Port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Tracking Service started on port %d", cfg.WebSocket.Port),
		map[string]any{"port": cfg.WebSocket.Port, "max_concurrent": maxConcurrent},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "service_stopping", "Starting graceful shutdown", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.WebSocket.Port})
			return err
		}
		return nil
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
// WebSocket connections hold a slot for their lifetime, so the limit also
// caps concurrent consumers.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
