package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"restopos-backend/internal/config"
)

// Start listens on HTTP_PORT and serves until ctx is cancelled.
func Start(ctx context.Context, cfg config.Config, router http.Handler, log *slog.Logger) error {
	ln, err := net.Listen("tcp", ":"+cfg.HTTPPort)
	if err != nil {
		return fmt.Errorf("listen on :%s: %w", cfg.HTTPPort, err)
	}
	return Serve(ctx, ln, cfg, router, log)
}

// Serve runs the HTTP server on ln. Cancelling ctx stops accepting new
// connections and waits up to ShutdownTimeout for in-flight requests.
func Serve(ctx context.Context, ln net.Listener, cfg config.Config, router http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		started := time.Now()
		log.Info("http server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		log.Info("http server stopped", "drainMs", time.Since(started).Milliseconds())
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
