package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/command-translator/internal/prompt"
	"github.com/example/command-translator/internal/providers/llm"
	"github.com/example/command-translator/internal/retry"
	"github.com/example/command-translator/internal/schema"
)

// Config holds the settings shared by the CLI, HTTP server and worker.
type Config struct {
	LLM llm.Options

	TemplateVersion string
	TemplateFile    string
	SchemaFile      string
	// ExtraKeys overrides the schema's policy for undeclared keys when set.
	ExtraKeys schema.ExtraPolicy

	Retry retry.Policy

	HistoryDriver string // postgres or sqlite3; empty disables history
	HistoryDSN    string

	Port string

	RabbitMQURL    string
	RequestQueue   string
	ResultQueue    string
	WorkerPrefetch int

	LogLevel  string
	LogFormat string
}

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables
// that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables. Every malformed value
// is reported, not just the first.
func Load() (*Config, error) {
	var errs []error
	p := parser{errs: &errs}

	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", llm.ProviderGroq))
	cfg := &Config{
		LLM: llm.Options{
			Provider:  provider,
			Model:     getEnvOrDefault("LLM_MODEL", llm.DefaultModel(provider)),
			APIKey:    apiKey(provider),
			BaseURL:   strings.TrimRight(os.Getenv("LLM_BASE_URL"), "/"),
			Timeout:   p.duration("LLM_TIMEOUT", llm.DefaultTimeout),
			MaxTokens: p.integer("LLM_MAX_TOKENS", 512),
			JSONMode:  p.boolean("LLM_JSON_MODE", false),
		},
		TemplateVersion: getEnvOrDefault("TEMPLATE_VERSION", prompt.DefaultVersion),
		TemplateFile:    os.Getenv("TEMPLATE_FILE"),
		SchemaFile:      os.Getenv("SCHEMA_FILE"),
		ExtraKeys:       schema.ExtraPolicy(strings.ToLower(os.Getenv("EXTRA_KEYS"))),
		Retry: retry.Policy{
			MaxAttempts:          p.integer("MAX_ATTEMPTS", 3),
			MaxTransportAttempts: p.integer("MAX_TRANSPORT_ATTEMPTS", 3),
			BaseBackoff:          p.duration("BACKOFF_BASE", 500*time.Millisecond),
			MaxBackoff:           p.duration("BACKOFF_MAX", 8*time.Second),
		},
		HistoryDriver:  strings.ToLower(os.Getenv("HISTORY_DRIVER")),
		HistoryDSN:     os.Getenv("HISTORY_DSN"),
		Port:           getEnvOrDefault("PORT", "8080"),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		RequestQueue:   getEnvOrDefault("REQUEST_QUEUE", "translate.requests"),
		ResultQueue:    getEnvOrDefault("RESULT_QUEUE", "translate.results"),
		WorkerPrefetch: p.integer("WORKER_PREFETCH", 1),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.Retry.BaseBackoff == 0 {
		// an explicit BACKOFF_BASE=0 retries without waiting
		cfg.Retry.BaseBackoff = -1
	}

	if llm.DefaultModel(provider) == "" {
		errs = append(errs, fmt.Errorf("LLM_PROVIDER: unknown provider %q (use %s)", provider, strings.Join(llm.Providers(), ", ")))
	} else if env := llm.KeyEnv(provider); env != "" && cfg.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s environment variable is required for provider %s (or set LLM_API_KEY)", env, provider))
	}
	switch cfg.ExtraKeys {
	case "", schema.ExtraDrop, schema.ExtraReject, schema.ExtraKeep:
	default:
		errs = append(errs, fmt.Errorf("EXTRA_KEYS: must be drop, reject or keep, got %q", cfg.ExtraKeys))
	}
	switch cfg.HistoryDriver {
	case "":
	case "postgres", "sqlite3":
		if cfg.HistoryDSN == "" {
			errs = append(errs, fmt.Errorf("HISTORY_DSN environment variable is required when HISTORY_DRIVER is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("HISTORY_DRIVER: must be postgres or sqlite3, got %q", cfg.HistoryDriver))
	}
	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_ATTEMPTS: must be at least 1"))
	}
	if cfg.Retry.MaxTransportAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_TRANSPORT_ATTEMPTS: must be at least 1"))
	}
	if cfg.WorkerPrefetch < 1 {
		errs = append(errs, fmt.Errorf("WORKER_PREFETCH: must be at least 1"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireQueue checks the settings the worker cannot run without.
func (c *Config) RequireQueue() error {
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL environment variable is required")
	}
	return nil
}

// Schema resolves SCHEMA_FILE (or the builtin default) and applies EXTRA_KEYS.
func (c *Config) Schema() (*schema.Schema, error) {
	var (
		s   *schema.Schema
		err error
	)
	switch {
	case c.SchemaFile == "":
		s = schema.Default()
	case strings.HasPrefix(c.SchemaFile, "builtin:"):
		s, err = schema.Builtin(strings.TrimPrefix(c.SchemaFile, "builtin:"))
	default:
		s, err = schema.Load(c.SchemaFile)
	}
	if err != nil {
		return nil, err
	}
	if c.ExtraKeys != "" {
		s = s.WithExtra(c.ExtraKeys)
	}
	return s, nil
}

// Template resolves TEMPLATE_FILE, falling back to the embedded
// TEMPLATE_VERSION.
func (c *Config) Template() (*prompt.Template, error) {
	if c.TemplateFile != "" {
		return prompt.LoadTemplateFile(c.TemplateFile)
	}
	return prompt.LoadTemplate(c.TemplateVersion)
}

func apiKey(provider string) string {
	if v := strings.TrimSpace(os.Getenv("LLM_API_KEY")); v != "" {
		return v
	}
	if env := llm.KeyEnv(provider); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// parser collects conversion errors so Load can report all of them.
type parser struct {
	errs *[]error
}

func (p parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare numbers are seconds
		if secs, ierr := strconv.Atoi(v); ierr == nil {
			return time.Duration(secs) * time.Second
		}
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	if d < 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: must not be negative", key))
		return def
	}
	return d
}

func (p parser) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}
