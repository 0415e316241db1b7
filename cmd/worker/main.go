package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/command-translator/internal/app"
	"github.com/example/command-translator/internal/config"
	"github.com/example/command-translator/internal/logging"
	"github.com/example/command-translator/internal/queue"
)

func main() {
	logger := logging.New("translator-worker")

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	err := run(ctx, logger)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

// run owns every connection it opens; the deferred closes all happen before
// it returns.
func run(ctx context.Context, logger *logging.Logger) error {
	// Load configuration
	if err := config.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		logger.Error("Failed to load env file: %v", err)
		return err
	}
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireQueue()
	}
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		return err
	}
	logger = logging.NewWithOptions("translator-worker", logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build translator: %v", err)
		return err
	}
	defer a.Close()

	pub, err := queue.NewPublisher(cfg.RabbitMQURL, cfg.ResultQueue)
	if err != nil {
		logger.Error("Failed to create publisher: %v", err)
		return err
	}
	defer pub.Close()

	cons, err := queue.NewConsumer(cfg.RabbitMQURL, cfg.RequestQueue, cfg.WorkerPrefetch, logger)
	if err != nil {
		logger.Error("Failed to create consumer: %v", err)
		return err
	}
	defer cons.Close()
	logger.Info("Connected to RabbitMQ")

	h := queue.NewHandler(a.Translator, pub, logger)

	logger.Info("Starting translator worker, replies go to %s", cfg.ResultQueue)
	if err := cons.Start(ctx, h.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer error: %v", err)
		return err
	}

	logger.Info("Translator worker stopped")
	return nil
}
