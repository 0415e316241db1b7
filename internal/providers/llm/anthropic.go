package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/command-translator/internal/models"
)

const anthropicVersion = "2023-06-01"

// Anthropic requires max_tokens on every request.
const anthropicDefaultMaxTokens = 512

type AnthropicClient struct {
	model     string
	maxTokens int
	timeout   time.Duration
	http      *resty.Client
}

type anthropicRequest struct {
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Messages    []models.Message `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func NewAnthropic(o Options) *AnthropicClient {
	if o.BaseURL == "" {
		o.BaseURL = providers[ProviderAnthropic].baseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = anthropicDefaultMaxTokens
	}
	h := resty.New().
		SetBaseURL(strings.TrimRight(o.BaseURL, "/")).
		SetHeader("x-api-key", o.APIKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetHeader("content-type", "application/json")
	return &AnthropicClient{model: o.Model, maxTokens: o.MaxTokens, timeout: o.Timeout, http: h}
}

func (c *AnthropicClient) Name() string { return ProviderAnthropic }

func (c *AnthropicClient) Invoke(ctx context.Context, p models.Prompt) (models.RawOutput, error) {
	body := anthropicRequest{
		Model:       c.model,
		System:      p.System(),
		Messages:    p.Conversation(),
		MaxTokens:   c.maxTokens,
		Temperature: 0,
	}

	cctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var resp anthropicResponse
	r, err := c.http.R().SetContext(cctx).SetBody(body).SetResult(&resp).ForceContentType("application/json").Post("/messages")
	if err != nil {
		return models.RawOutput{}, classifyRequestErr(ctx, ProviderAnthropic, err)
	}
	if r.IsError() {
		return models.RawOutput{}, classifyStatus(ProviderAnthropic, r.StatusCode(), r.Header(), r.Body())
	}

	var text strings.Builder
	for _, part := range resp.Content {
		if part.Type == "text" {
			text.WriteString(part.Text)
		}
	}
	model := resp.Model
	if model == "" {
		model = c.model
	}
	return models.RawOutput{
		Text:         text.String(),
		Model:        model,
		FinishReason: resp.StopReason,
		Usage: models.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
