// Package app wires configuration into a ready Translator for the CLI,
// HTTP server and queue worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/example/command-translator/internal/config"
	"github.com/example/command-translator/internal/history"
	"github.com/example/command-translator/internal/logging"
	"github.com/example/command-translator/internal/prompt"
	"github.com/example/command-translator/internal/providers/llm"
	"github.com/example/command-translator/internal/translator"
)

// App owns everything that needs closing on shutdown.
type App struct {
	Translator *translator.Translator
	// History is nil when HISTORY_DRIVER is unset.
	History *history.Store

	client llm.Client
}

// New builds the translator described by cfg. The caller must Close the
// returned App.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	tpl, err := cfg.Template()
	if err != nil {
		return nil, fmt.Errorf("prompt template: %w", err)
	}
	builder, err := prompt.NewBuilder(tpl)
	if err != nil {
		return nil, fmt.Errorf("prompt template: %w", err)
	}
	sch, err := cfg.Schema()
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	client, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	a := &App{client: client}

	opts := []translator.Option{
		translator.WithSchema(sch),
		translator.WithPolicy(cfg.Retry),
		translator.WithLogger(logger.With("provider", client.Name())),
	}
	if cfg.HistoryDriver != "" {
		store, err := history.Open(ctx, cfg.HistoryDriver, cfg.HistoryDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("history: %w", err)
		}
		a.History = store
		opts = append(opts, translator.WithRecorder(store))
		logger.Info("Recording translation history to %s", cfg.HistoryDriver)
	}

	a.Translator = translator.New(builder, client, opts...)
	logger.Info("Translator ready: provider=%s model=%s template=%s schema=%s",
		client.Name(), cfg.LLM.Model, builder.Version(), sch.Name)
	return a, nil
}

// Close releases the model client and the history store.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.client.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	return errors.Join(errs...)
}
