package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderGroq       = "groq"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderMock       = "mock"
)

// DefaultTimeout bounds a single Invoke when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Second

type Options struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
	// JSONMode asks OpenAI-compatible backends for response_format json_object.
	JSONMode bool
}

var providers = map[string]struct {
	model   string
	baseURL string
	keyEnv  string
}{
	ProviderGroq:       {model: "llama3-8b-8192", baseURL: "https://api.groq.com/openai/v1", keyEnv: "GROQ_API_KEY"},
	ProviderOpenAI:     {model: "gpt-4o-mini", baseURL: "https://api.openai.com/v1", keyEnv: "OPENAI_API_KEY"},
	ProviderOpenRouter: {model: "openai/gpt-4o-mini", baseURL: "https://openrouter.ai/api/v1", keyEnv: "OPENROUTER_API_KEY"},
	ProviderOllama:     {model: "llama3", baseURL: "http://localhost:11434/v1"},
	ProviderAnthropic:  {model: "claude-3-5-sonnet-latest", baseURL: "https://api.anthropic.com/v1", keyEnv: "ANTHROPIC_API_KEY"},
	ProviderGemini:     {model: "gemini-1.5-flash", keyEnv: "GOOGLE_API_KEY"},
	ProviderMock:       {model: "mock"},
}

// Providers lists the accepted provider names.
func Providers() []string {
	return []string{ProviderGroq, ProviderOpenAI, ProviderOpenRouter, ProviderOllama, ProviderAnthropic, ProviderGemini, ProviderMock}
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string { return providers[provider].model }

// KeyEnv names the provider specific API key variable, or "" when the
// provider needs no key.
func KeyEnv(provider string) string { return providers[provider].keyEnv }

// New builds the client for o.Provider. Only the gemini client uses ctx, to
// set up its SDK connection.
func New(ctx context.Context, o Options) (Client, error) {
	o.Provider = strings.ToLower(strings.TrimSpace(o.Provider))
	def, ok := providers[o.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (use %s)", o.Provider, strings.Join(Providers(), ", "))
	}
	if o.Model == "" {
		o.Model = def.model
	}
	if o.BaseURL == "" {
		o.BaseURL = def.baseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if def.keyEnv != "" && strings.TrimSpace(o.APIKey) == "" {
		return nil, fmt.Errorf("%s: API key is required (set %s or LLM_API_KEY)", o.Provider, def.keyEnv)
	}

	switch o.Provider {
	case ProviderAnthropic:
		return NewAnthropic(o), nil
	case ProviderGemini:
		c, err := NewGemini(ctx, o)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderMock:
		return &MockClient{}, nil
	default:
		return NewOpenAI(o), nil
	}
}
