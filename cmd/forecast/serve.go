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

	"github.com/spf13/cobra"

	"stock-forecaster/internal/api"
	"stock-forecaster/internal/app"
	"stock-forecaster/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API for triggering runs and reading run history",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (defaults to HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := flagOrDefault(cmd, "addr", cfg.HTTP.Addr)

	ctx := cmd.Context()
	application, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	handler := api.NewHandler(application, cfg)
	router := api.NewRouter(handler, cfg)

	// the router times requests out before the server does
	requestTimeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Info("starting HTTP server", "addr", addr, "url", fmt.Sprintf("http://localhost%s", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	}

	observability.Info("shutting down HTTP server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	observability.Info("HTTP server stopped")
	return nil
}
