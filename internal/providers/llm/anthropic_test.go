package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/command-translator/internal/apperr"
)

func TestAnthropicInvoke(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("missing anthropic headers: %v", r.Header)
		}
		var body struct {
			System      string `json:"system"`
			MaxTokens   int    `json:"max_tokens"`
			Temperature *float64
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.System != "You translate requests into JSON." {
			t.Errorf("expected system prompt to be lifted, got %q", body.System)
		}
		if body.MaxTokens != anthropicDefaultMaxTokens {
			t.Errorf("expected default max tokens, got %d", body.MaxTokens)
		}
		if body.Temperature == nil || *body.Temperature != 0 {
			t.Errorf("expected temperature 0")
		}
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" {
			t.Errorf("expected only the user turn, got %+v", body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"claude-test","content":[{"type":"text","text":"{\"action\":"},{"type":"text","text":"\"turn_off\"}"}],"stop_reason":"end_turn","usage":{"input_tokens":90,"output_tokens":9}}`))
	}))
	defer server.Close()

	c := NewAnthropic(Options{Model: "claude-test", APIKey: "ak", BaseURL: server.URL + "/v1"})
	out, err := c.Invoke(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Text != `{"action":"turn_off"}` {
		t.Errorf("unexpected text %q", out.Text)
	}
	if out.Usage.PromptTokens != 90 || out.Usage.CompletionTokens != 9 || out.Usage.TotalTokens != 99 {
		t.Errorf("unexpected usage %+v", out.Usage)
	}
	if out.FinishReason != "end_turn" || out.Model != "claude-test" {
		t.Errorf("unexpected output %+v", out)
	}
}

func TestAnthropicOverloadedIsRetryable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	c := NewAnthropic(Options{Model: "m", APIKey: "ak", BaseURL: server.URL})
	_, err := c.Invoke(context.Background(), testPrompt())
	if !apperr.Retryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
