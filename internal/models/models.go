package models

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Example is a few-shot pair embedded in the prompt.
type Example struct {
	Input  string         `json:"input" yaml:"input"`
	Output map[string]any `json:"output" yaml:"output"`
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the full payload sent to a model. It is a value: WithCorrection
// returns a copy and leaves the receiver untouched.
type Prompt struct {
	TemplateVersion string    `json:"template_version"`
	Messages        []Message `json:"messages"`
}

// WithCorrection appends the model's previous answer and a corrective
// instruction as a new conversational turn.
func (p Prompt) WithCorrection(previous, correction string) Prompt {
	msgs := make([]Message, 0, len(p.Messages)+2)
	msgs = append(msgs, p.Messages...)
	msgs = append(msgs,
		Message{Role: RoleAssistant, Content: previous},
		Message{Role: RoleUser, Content: correction},
	)
	return Prompt{TemplateVersion: p.TemplateVersion, Messages: msgs}
}

// System returns the joined content of all system messages.
func (p Prompt) System() string {
	var parts []string
	for _, m := range p.Messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Conversation returns the non-system messages in order.
func (p Prompt) Conversation() []Message {
	out := make([]Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// Text flattens the prompt for backends without chat roles.
func (p Prompt) Text() string {
	var b strings.Builder
	for i, m := range p.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if m.Role == RoleAssistant {
			b.WriteString("Previous response: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// RawOutput is the unvalidated text a model produced.
type RawOutput struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Command is a schema-conformant translation result.
type Command map[string]any

// JSON encodes the command compactly; map keys are sorted by encoding/json.
func (c Command) JSON() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// Attempt records one model invocation inside a single translation.
type Attempt struct {
	Number int
	Raw    string
	Err    error
}

// HistoryEntry is one completed translation as kept by the history store.
// Command is nil and ErrorKind set when the translation failed.
type HistoryEntry struct {
	ID                int64         `json:"id"`
	Text              string        `json:"text"`
	TemplateVersion   string        `json:"template_version"`
	Schema            string        `json:"schema"`
	Command           Command       `json:"command,omitempty"`
	ErrorKind         string        `json:"error_kind,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	Attempts          int           `json:"attempts"`
	TransportFailures int           `json:"transport_failures"`
	Model             string        `json:"model,omitempty"`
	TotalTokens       int           `json:"total_tokens"`
	Duration          time.Duration `json:"duration_ns"`
	CreatedAt         time.Time     `json:"created_at"`
}
