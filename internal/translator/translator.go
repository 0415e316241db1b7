// Package translator is the public entry point: natural language text in, a
// schema-valid command out.
package translator

import (
	"context"
	"errors"
	"time"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/logging"
	"github.com/example/command-translator/internal/models"
	"github.com/example/command-translator/internal/prompt"
	"github.com/example/command-translator/internal/providers/llm"
	"github.com/example/command-translator/internal/retry"
	"github.com/example/command-translator/internal/schema"
)

const recordTimeout = 5 * time.Second

// Recorder persists completed translations.
type Recorder interface {
	Record(ctx context.Context, e *models.HistoryEntry) error
}

type Result struct {
	Command           models.Command `json:"command"`
	Attempts          int            `json:"attempts"`
	TransportFailures int            `json:"transport_failures"`
	Usage             models.Usage   `json:"usage"`
	Model             string         `json:"model"`
	TemplateVersion   string         `json:"template_version"`
	Duration          time.Duration  `json:"duration_ns"`
}

// Translator holds no per-call state and is safe for concurrent use.
type Translator struct {
	builder  *prompt.Builder
	client   llm.Client
	schema   *schema.Schema
	policy   retry.Policy
	logger   *logging.Logger
	recorder Recorder
	sleep    func(context.Context, time.Duration) error
}

type Option func(*Translator)

func WithSchema(s *schema.Schema) Option { return func(t *Translator) { t.schema = s } }

func WithPolicy(p retry.Policy) Option { return func(t *Translator) { t.policy = p } }

func WithLogger(l *logging.Logger) Option { return func(t *Translator) { t.logger = l } }

// WithRecorder stores every translation that reached the model, failed or not.
func WithRecorder(r Recorder) Option { return func(t *Translator) { t.recorder = r } }

// WithSleep overrides the wait between transport retries.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(t *Translator) { t.sleep = fn }
}

func New(b *prompt.Builder, c llm.Client, opts ...Option) *Translator {
	t := &Translator{
		builder: b,
		client:  c,
		schema:  schema.Default(),
		policy:  retry.DefaultPolicy(),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Schema is the schema Translate validates against.
func (t *Translator) Schema() *schema.Schema { return t.schema }

// Policy is the retry policy Translate uses.
func (t *Translator) Policy() retry.Policy { return t.policy }

// TemplateVersion reports the prompt template in use.
func (t *Translator) TemplateVersion() string { return t.builder.Version() }

// Translate converts text using the configured schema and retry policy.
func (t *Translator) Translate(ctx context.Context, text string) (*Result, error) {
	return t.TranslateWith(ctx, text, t.schema, t.policy)
}

// TranslateWith converts text against sch under policy. Errors are returned
// exactly as the pipeline produced them.
func (t *Translator) TranslateWith(ctx context.Context, text string, sch *schema.Schema, policy retry.Policy) (*Result, error) {
	if sch == nil {
		sch = t.schema
	}
	start := time.Now()

	p, err := t.builder.Build(text)
	if err != nil {
		return nil, err
	}

	ctrl := &retry.Controller{
		Client: t.client,
		Policy: policy,
		Logger: t.logger,
		Sleep:  t.sleep,
		Observer: func(a models.Attempt) {
			if a.Err != nil {
				t.logger.Debug("attempt %d failed: %v (raw %q)", a.Number, a.Err, a.Raw)
				return
			}
			t.logger.Debug("attempt %d ok: %s", a.Number, a.Raw)
		},
	}
	out, err := ctrl.Run(ctx, p, sch)
	elapsed := time.Since(start)
	t.record(ctx, text, p.TemplateVersion, sch.Name, out, err, elapsed)
	if err != nil {
		return nil, err
	}

	t.logger.Info("translated request into %s action %v in %d attempt(s), %s",
		sch.Name, out.Command["action"], len(out.Attempts), elapsed.Round(time.Millisecond))
	return &Result{
		Command:           out.Command,
		Attempts:          len(out.Attempts),
		TransportFailures: out.TransportFailures,
		Usage:             out.Usage,
		Model:             out.Model,
		TemplateVersion:   p.TemplateVersion,
		Duration:          elapsed,
	}, nil
}

func (t *Translator) record(ctx context.Context, text, version, schemaName string, out *retry.Outcome, runErr error, elapsed time.Duration) {
	if t.recorder == nil {
		return
	}
	e := &models.HistoryEntry{
		Text:            text,
		TemplateVersion: version,
		Schema:          schemaName,
		Duration:        elapsed,
		CreatedAt:       time.Now().UTC(),
	}
	if out != nil {
		e.Command = out.Command
		e.Attempts = len(out.Attempts)
		e.TransportFailures = out.TransportFailures
		e.Model = out.Model
		e.TotalTokens = out.Usage.TotalTokens
	}
	if runErr != nil {
		e.ErrorKind = apperr.Kind(runErr)
		e.ErrorMessage = runErr.Error()
		var failed *apperr.TranslationFailedError
		if errors.As(runErr, &failed) {
			e.Attempts = failed.Attempts
			e.TransportFailures = failed.TransportFailures
		}
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := t.recorder.Record(rctx, e); err != nil {
		t.logger.Warn("failed to record translation history: %v", err)
	}
}
