package prompt

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/command-translator/internal/models"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

// DefaultVersion is the template used when none is configured.
const DefaultVersion = "v1"

// Template is the versioned instruction and example set a Builder renders.
type Template struct {
	Version      string           `yaml:"version"`
	Role         string           `yaml:"role"`
	Instructions []string         `yaml:"instructions"`
	Constraint   string           `yaml:"constraint"`
	Closing      string           `yaml:"closing"`
	RequestLabel string           `yaml:"request_label"`
	AnswerLabel  string           `yaml:"answer_label"`
	Examples     []models.Example `yaml:"examples"`
}

// ParseTemplate decodes a YAML template and fills default labels.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if t.RequestLabel == "" {
		t.RequestLabel = "User Request:"
	}
	if t.AnswerLabel == "" {
		t.AnswerLabel = "JSON Command:"
	}
	if strings.TrimSpace(t.Version) == "" {
		return nil, fmt.Errorf("template has no version")
	}
	if strings.TrimSpace(t.Role) == "" {
		return nil, fmt.Errorf("template %s has no role", t.Version)
	}
	if strings.TrimSpace(t.Constraint) == "" {
		return nil, fmt.Errorf("template %s has no output constraint", t.Version)
	}
	if len(t.Examples) == 0 {
		return nil, fmt.Errorf("template %s has no examples", t.Version)
	}
	for i, ex := range t.Examples {
		if strings.TrimSpace(ex.Input) == "" || len(ex.Output) == 0 {
			return nil, fmt.Errorf("template %s: example %d needs input and output", t.Version, i+1)
		}
	}
	return &t, nil
}

// LoadTemplate returns an embedded template by version.
func LoadTemplate(version string) (*Template, error) {
	if version == "" {
		version = DefaultVersion
	}
	data, err := templatesFS.ReadFile(path.Join("templates", version+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown template version %q (available: %s)", version, strings.Join(Versions(), ", "))
	}
	return ParseTemplate(data)
}

// LoadTemplateFile reads a template from disk.
func LoadTemplateFile(p string) (*Template, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", p, err)
	}
	return ParseTemplate(data)
}

// Versions lists the embedded template versions.
func Versions() []string {
	entries, _ := templatesFS.ReadDir("templates")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(out)
	return out
}
