// central-portal-stub serves an in-memory Publisher Portal for local runs of
// central-publish against --base-url.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"centralpublisher/internal/config"
	"centralpublisher/internal/portal"
	"centralpublisher/internal/portalstub"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Stub failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	addr := config.GetEnv("STUB_ADDR", ":8080")
	username := config.GetEnv("CENTRAL_USERNAME", "")
	password := config.GetEnv("CENTRAL_PASSWORD", "")

	var token string
	if username != "" || password != "" {
		token = portal.Credentials{Username: username, Password: password}.Token()
		slog.Info("Bearer authentication enabled", "username", username)
	} else {
		slog.Warn("Bearer authentication disabled - CENTRAL_USERNAME and CENTRAL_PASSWORD not set")
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      portalstub.NewRouter(portalstub.NewStore(), token),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting portal stub", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	slog.Info("Shutdown complete")
	return nil
}
