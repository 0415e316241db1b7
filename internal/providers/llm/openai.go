package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/models"
)

// OpenAIClient speaks the chat-completions wire format shared by OpenAI,
// Groq, OpenRouter and Ollama.
type OpenAIClient struct {
	provider  string
	model     string
	apiKey    string
	maxTokens int
	jsonMode  bool
	timeout   time.Duration
	http      *resty.Client
}

type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []models.Message `json:"messages"`
	Temperature    float64          `json:"temperature"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage models.Usage `json:"usage"`
}

func NewOpenAI(o Options) *OpenAIClient {
	if o.Provider == "" {
		o.Provider = ProviderOpenAI
	}
	if o.BaseURL == "" {
		o.BaseURL = providers[o.Provider].baseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	h := resty.New().
		SetBaseURL(strings.TrimRight(o.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if o.Provider == ProviderOpenRouter {
		h.SetHeader("X-Title", "command-translator")
	}
	return &OpenAIClient{
		provider:  o.Provider,
		model:     o.Model,
		apiKey:    o.APIKey,
		maxTokens: o.MaxTokens,
		jsonMode:  o.JSONMode,
		timeout:   o.Timeout,
		http:      h,
	}
}

func (c *OpenAIClient) Name() string { return c.provider }

func (c *OpenAIClient) Invoke(ctx context.Context, p models.Prompt) (models.RawOutput, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    p.Messages,
		Temperature: 0,
		MaxTokens:   c.maxTokens,
	}
	if c.jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	cctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var resp chatResponse
	req := c.http.R().SetContext(cctx).SetBody(body).SetResult(&resp).ForceContentType("application/json")
	if c.apiKey != "" {
		req.SetAuthToken(c.apiKey)
	}
	r, err := req.Post("/chat/completions")
	if err != nil {
		return models.RawOutput{}, classifyRequestErr(ctx, c.provider, err)
	}
	if r.IsError() {
		return models.RawOutput{}, classifyStatus(c.provider, r.StatusCode(), r.Header(), r.Body())
	}
	if len(resp.Choices) == 0 {
		return models.RawOutput{}, &apperr.TransportError{Provider: c.provider, Status: r.StatusCode(), Message: "response contained no choices", Temporary: true}
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return models.RawOutput{
		Text:         resp.Choices[0].Message.Content,
		Model:        model,
		FinishReason: resp.Choices[0].FinishReason,
		Usage:        resp.Usage,
	}, nil
}
