package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/models"
)

// GeminiClient uses the Gemini SDK. A fresh GenerativeModel is configured for
// every call, so the client is safe for concurrent use.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
	jsonMode  bool
	timeout   time.Duration
}

func NewGemini(ctx context.Context, o Options) (*GeminiClient, error) {
	opts := []option.ClientOption{option.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(o.BaseURL))
	}
	c, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return &GeminiClient{client: c, model: o.Model, maxTokens: o.MaxTokens, jsonMode: o.JSONMode, timeout: o.Timeout}, nil
}

func (c *GeminiClient) Name() string { return ProviderGemini }

// Close releases the SDK connection.
func (c *GeminiClient) Close() error { return c.client.Close() }

func (c *GeminiClient) Invoke(ctx context.Context, p models.Prompt) (models.RawOutput, error) {
	m := c.client.GenerativeModel(c.model)
	m.SetTemperature(0)
	m.SetTopK(1)
	m.SetCandidateCount(1)
	if c.maxTokens > 0 {
		m.SetMaxOutputTokens(int32(c.maxTokens))
	}
	if c.jsonMode {
		m.ResponseMIMEType = "application/json"
	}
	if sys := p.System(); sys != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(sys))
	}

	history, last, err := geminiHistory(p.Conversation())
	if err != nil {
		return models.RawOutput{}, err
	}
	cs := m.StartChat()
	cs.History = history

	cctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := cs.SendMessage(cctx, genai.Text(last))
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return models.RawOutput{}, classifyRequestErr(ctx, ProviderGemini, err)
		}
		return models.RawOutput{}, classifyGeminiErr(err)
	}

	out := models.RawOutput{Model: c.model}
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		out.FinishReason = strings.ToLower(cand.FinishReason.String())
		if cand.Content != nil {
			var text strings.Builder
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
			out.Text = text.String()
		}
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = models.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// geminiHistory splits the conversation into chat history and the final user
// turn. Gemini names the assistant role "model".
func geminiHistory(conv []models.Message) ([]*genai.Content, string, error) {
	if len(conv) == 0 || conv[len(conv)-1].Role != models.RoleUser {
		return nil, "", &apperr.InvalidInputError{Reason: "prompt must end with a user message"}
	}
	history := make([]*genai.Content, 0, len(conv)-1)
	for _, msg := range conv[:len(conv)-1] {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return history, conv[len(conv)-1].Content, nil
}

func classifyGeminiErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = gerr.Body
		}
		return classifyStatus(ProviderGemini, gerr.Code, gerr.Header, []byte(msg))
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &apperr.TransportError{Provider: ProviderGemini, Message: "response blocked by safety settings", Err: err}
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return &apperr.AuthError{Provider: ProviderGemini, Status: http.StatusUnauthorized, Message: st.Message()}
		case codes.ResourceExhausted:
			return &apperr.RateLimitError{Provider: ProviderGemini, Message: st.Message()}
		case codes.Unavailable, codes.Internal, codes.DeadlineExceeded, codes.Aborted:
			return &apperr.TransportError{Provider: ProviderGemini, Message: st.Message(), Temporary: true, Err: err}
		case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.Unimplemented:
			return &apperr.TransportError{Provider: ProviderGemini, Message: st.Message(), Err: err}
		}
	}
	return &apperr.TransportError{Provider: ProviderGemini, Temporary: true, Err: err}
}
