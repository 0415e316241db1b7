package llm

import (
	"context"
	"sync"

	"github.com/example/command-translator/internal/models"
)

// Reply is one scripted answer: Text when Err is nil.
type Reply struct {
	Text string
	Err  error
}

// ScriptedClient replays fixed replies in order and records every prompt it
// receives. Once the script runs out the last reply repeats. It is the test
// double used across packages.
type ScriptedClient struct {
	mu      sync.Mutex
	replies []Reply
	prompts []models.Prompt
}

func NewScripted(replies ...Reply) *ScriptedClient {
	return &ScriptedClient{replies: replies}
}

// Always returns a client that answers text on every call.
func Always(text string) *ScriptedClient {
	return NewScripted(Reply{Text: text})
}

func (s *ScriptedClient) Name() string { return "scripted" }

func (s *ScriptedClient) Invoke(ctx context.Context, p models.Prompt) (models.RawOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return models.RawOutput{}, err
	}
	n := len(s.prompts)
	s.prompts = append(s.prompts, p)
	if len(s.replies) == 0 {
		return models.RawOutput{Model: "scripted"}, nil
	}
	if n >= len(s.replies) {
		n = len(s.replies) - 1
	}
	r := s.replies[n]
	if r.Err != nil {
		return models.RawOutput{}, r.Err
	}
	return models.RawOutput{
		Text:  r.Text,
		Model: "scripted",
		Usage: models.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// Calls reports how many times Invoke reached the script.
func (s *ScriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns a copy of the prompts received so far.
func (s *ScriptedClient) Prompts() []models.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Prompt(nil), s.prompts...)
}
