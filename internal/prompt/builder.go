// Package prompt turns a versioned few-shot template and user text into the
// Prompt sent to a model.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/models"
)

const systemLayout = `{{.Role}}
{{range .Instructions}}{{.}}
{{end}}
{{.Constraint}}

---
Here are some examples to guide you:
{{range .Examples}}
{{$.RequestLabel}} {{.Input}}
{{$.AnswerLabel}} {{.Output}}
{{end}}---
{{if .Closing}}
{{.Closing}}{{end}}`

var systemTmpl = template.Must(template.New("system").Parse(systemLayout))

type renderedExample struct {
	Input  string
	Output string
}

// Builder renders its template once; Build only appends the user text, so a
// Builder is safe for concurrent use.
type Builder struct {
	version      string
	system       string
	requestLabel string
	answerLabel  string
}

func NewBuilder(t *Template) (*Builder, error) {
	examples := make([]renderedExample, 0, len(t.Examples))
	for i, ex := range t.Examples {
		b, err := json.Marshal(ex.Output)
		if err != nil {
			return nil, fmt.Errorf("template %s: example %d: %w", t.Version, i+1, err)
		}
		examples = append(examples, renderedExample{Input: strings.TrimSpace(ex.Input), Output: string(b)})
	}
	data := struct {
		*Template
		Examples []renderedExample
	}{Template: t, Examples: examples}

	var buf bytes.Buffer
	if err := systemTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", t.Version, err)
	}
	return &Builder{
		version:      t.Version,
		system:       strings.TrimSpace(buf.String()),
		requestLabel: t.RequestLabel,
		answerLabel:  t.AnswerLabel,
	}, nil
}

// Version reports the template version this builder renders.
func (b *Builder) Version() string { return b.version }

// Build wraps userText in the template. Blank input is rejected before any
// model is involved.
func (b *Builder) Build(userText string) (models.Prompt, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return models.Prompt{}, &apperr.InvalidInputError{Reason: "text is empty"}
	}
	return models.Prompt{
		TemplateVersion: b.version,
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: b.system},
			{Role: models.RoleUser, Content: fmt.Sprintf("%s %s\n%s", b.requestLabel, text, b.answerLabel)},
		},
	}, nil
}
