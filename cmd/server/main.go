package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/example/command-translator/internal/api"
	"github.com/example/command-translator/internal/app"
	"github.com/example/command-translator/internal/config"
	"github.com/example/command-translator/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		os.Exit(1)
	}
}

// run returns only after every resource it opened has been closed, so main
// can exit without skipping cleanup.
func run(ctx context.Context) error {
	logger := logging.New("translator-server")
	if err := config.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		logger.Error("Failed to load env file: %v", err)
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		return err
	}
	logger = logging.NewWithOptions("translator-server", logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build translator: %v", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close translator: %v", err)
		}
	}()

	var history api.HistoryReader
	if a.History != nil {
		history = a.History
	}

	mux := http.NewServeMux()
	api.NewServer(a.Translator, history, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h2c.NewHandler(api.CORS(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error: %v", err)
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("Graceful shutdown failed: %v", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}
