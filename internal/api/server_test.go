package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/models"
	"github.com/example/command-translator/internal/prompt"
	"github.com/example/command-translator/internal/providers/llm"
	"github.com/example/command-translator/internal/retry"
	"github.com/example/command-translator/internal/translator"
)

type stubHistory struct {
	entries []*models.HistoryEntry
	limit   int
	err     error
}

func (s *stubHistory) Recent(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	s.limit = limit
	return s.entries, s.err
}

func newMux(t *testing.T, client llm.Client, history HistoryReader) *http.ServeMux {
	t.Helper()
	tpl, err := prompt.LoadTemplate("v1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := prompt.NewBuilder(tpl)
	if err != nil {
		t.Fatal(err)
	}
	tr := translator.New(b, client,
		translator.WithPolicy(retry.Policy{MaxAttempts: 2, MaxTransportAttempts: 1}),
		translator.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	mux := http.NewServeMux()
	NewServer(tr, history, nil).RegisterRoutes(mux)
	return mux
}

func post(mux http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/translate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	mux := newMux(t, llm.Always("{}"), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestTranslateSuccess(t *testing.T) {
	mux := newMux(t, llm.Always(`{"action":"set_timer","parameters":{"duration_minutes":15}}`), nil)

	rec := post(mux, `{"text":"set a timer for 15 minutes"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Command  map[string]any `json:"command"`
		Attempts int            `json:"attempts"`
		Usage    models.Usage   `json:"usage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Command["action"] != "set_timer" || resp.Attempts != 1 || resp.Usage.TotalTokens != 15 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestTranslateErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
		body   string
		status int
		kind   string
	}{
		{name: "bad json", client: llm.Always("{}"), body: `{"text":`, status: http.StatusBadRequest, kind: apperr.KindInvalidInput},
		{name: "unknown field", client: llm.Always("{}"), body: `{"query":"x"}`, status: http.StatusBadRequest, kind: apperr.KindInvalidInput},
		{name: "empty text", client: llm.Always("{}"), body: `{"text":"  "}`, status: http.StatusBadRequest, kind: apperr.KindInvalidInput},
		{name: "auth", client: llm.NewScripted(llm.Reply{Err: &apperr.AuthError{Provider: "groq", Status: 401}}), body: `{"text":"hi"}`, status: http.StatusBadGateway, kind: apperr.KindAuth},
		{name: "bad request upstream", client: llm.NewScripted(llm.Reply{Err: &apperr.TransportError{Provider: "groq", Status: 400}}), body: `{"text":"hi"}`, status: http.StatusBadGateway, kind: apperr.KindTransport},
		{name: "validation budget", client: llm.Always("no"), body: `{"text":"hi"}`, status: http.StatusUnprocessableEntity, kind: apperr.KindTranslationFailed},
		{name: "transport budget", client: llm.NewScripted(llm.Reply{Err: &apperr.TransportError{Provider: "groq", Status: 503, Temporary: true}}), body: `{"text":"hi"}`, status: http.StatusBadGateway, kind: apperr.KindTranslationFailed},
		{name: "rate limit budget", client: llm.NewScripted(llm.Reply{Err: &apperr.RateLimitError{Provider: "groq"}}), body: `{"text":"hi"}`, status: http.StatusTooManyRequests, kind: apperr.KindTranslationFailed},
		{name: "timeout budget", client: llm.NewScripted(llm.Reply{Err: &apperr.TransportError{Provider: "groq", Temporary: true, Err: context.DeadlineExceeded}}), body: `{"text":"hi"}`, status: http.StatusGatewayTimeout, kind: apperr.KindTranslationFailed},
		{name: "unclassified", client: llm.NewScripted(llm.Reply{Err: errors.New("boom")}), body: `{"text":"hi"}`, status: http.StatusInternalServerError, kind: apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(newMux(t, tt.client, nil), tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error != tt.kind || resp.Message == "" {
				t.Errorf("unexpected error body %+v", resp)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: &apperr.RateLimitError{Provider: "groq"}, status: http.StatusTooManyRequests},
		{err: &apperr.TransportError{Provider: "groq", Temporary: true, Err: context.DeadlineExceeded}, status: http.StatusGatewayTimeout},
		{err: context.Canceled, status: statusClientClosedRequest},
		{err: &apperr.SchemaError{Problems: []string{"x"}}, status: http.StatusUnprocessableEntity},
		{err: &apperr.TranslationFailedError{Attempts: 3, Last: &apperr.ParseError{Reason: "response is empty"}}, status: http.StatusUnprocessableEntity},
		{err: &apperr.TranslationFailedError{TransportFailures: 3, Last: &apperr.RateLimitError{Provider: "groq"}}, status: http.StatusTooManyRequests},
		{err: &apperr.TranslationFailedError{TransportFailures: 3, Last: &apperr.TransportError{Provider: "groq", Temporary: true, Err: context.DeadlineExceeded}}, status: http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.status {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

func TestTranslateRateLimitSetsRetryAfter(t *testing.T) {
	client := llm.NewScripted(llm.Reply{Err: &apperr.RateLimitError{Provider: "groq", RetryAfter: 1500 * time.Millisecond}})
	rec := post(newMux(t, client, nil), `{"text":"hi"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
}

func TestTranslateMethodNotAllowed(t *testing.T) {
	mux := newMux(t, llm.Always("{}"), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/translate", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newMux(t, llm.Always("{}"), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		h := &stubHistory{entries: []*models.HistoryEntry{{ID: 7, Text: "lights off", Command: models.Command{"action": "turn_off"}}}}
		rec := httptest.NewRecorder()
		newMux(t, llm.Always("{}"), h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=5", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if h.limit != 5 {
			t.Errorf("expected limit 5, got %d", h.limit)
		}
		var got []models.HistoryEntry
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 1 || got[0].ID != 7 {
			t.Errorf("unexpected entries %+v", got)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newMux(t, llm.Always("{}"), &stubHistory{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=-1", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newMux(t, llm.Always("{}"), &stubHistory{err: errors.New("db down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})
}

func TestCORS(t *testing.T) {
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/translate", nil))
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight response %d", rec.Code)
	}
}
