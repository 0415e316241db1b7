// Package schema declares the shape a translated command must have and
// checks decoded model output against it.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var builtinFS embed.FS

type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeAny     Type = "any"
)

// ExtraPolicy decides what happens to keys the schema does not declare.
type ExtraPolicy string

const (
	ExtraDrop   ExtraPolicy = "drop"
	ExtraReject ExtraPolicy = "reject"
	ExtraKeep   ExtraPolicy = "keep"
)

// DefaultName is the builtin schema used when none is configured.
const DefaultName = "command"

type Field struct {
	Name     string   `yaml:"name" json:"name"`
	Type     Type     `yaml:"type" json:"type"`
	Required bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Enum     []string `yaml:"enum,omitempty" json:"enum,omitempty"`
	Fields   []Field  `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Schema is immutable once parsed; share it freely between goroutines.
type Schema struct {
	Name   string      `yaml:"name" json:"name"`
	Extra  ExtraPolicy `yaml:"extra,omitempty" json:"extra,omitempty"`
	Fields []Field     `yaml:"fields" json:"fields"`
}

// Parse decodes a YAML (or JSON) schema declaration and checks it is usable.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if s.Extra == "" {
		s.Extra = ExtraDrop
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a schema declaration from disk.
func Load(p string) (*Schema, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", p, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", p, err)
	}
	return s, nil
}

// Builtin returns one of the embedded schemas by name.
func Builtin(name string) (*Schema, error) {
	data, err := builtinFS.ReadFile(path.Join("schemas", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown builtin schema %q", name)
	}
	return Parse(data)
}

// Default returns the builtin command schema.
func Default() *Schema {
	s, err := Builtin(DefaultName)
	if err != nil {
		panic(err)
	}
	return s
}

// WithExtra returns a copy of s using policy p for undeclared keys.
func (s *Schema) WithExtra(p ExtraPolicy) *Schema {
	cp := *s
	cp.Extra = p
	return &cp
}

// Required lists the required top-level keys in declaration order.
func (s *Schema) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

func (s *Schema) validate() error {
	switch s.Extra {
	case ExtraDrop, ExtraReject, ExtraKeep:
	default:
		return fmt.Errorf("unknown extra policy %q (use drop, reject or keep)", s.Extra)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema declares no fields")
	}
	return validateFields(s.Fields, "")
}

func validateFields(fields []Field, prefix string) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		name := prefix + f.Name
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("field with empty name under %q", strings.TrimSuffix(prefix, "."))
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray, TypeAny:
		default:
			return fmt.Errorf("field %q has unknown type %q", name, f.Type)
		}
		if len(f.Enum) > 0 && f.Type != TypeString {
			return fmt.Errorf("field %q: enum is only supported for strings", name)
		}
		if len(f.Fields) > 0 {
			if f.Type != TypeObject {
				return fmt.Errorf("field %q: nested fields require type object", name)
			}
			if err := validateFields(f.Fields, name+"."); err != nil {
				return err
			}
		}
	}
	return nil
}

// Check validates obj and returns the cleaned copy that callers may hand out.
// Problems are reported in declaration order followed by undeclared keys in
// lexical order; a nil slice means obj conforms.
func (s *Schema) Check(obj map[string]any) (map[string]any, []string) {
	var problems []string
	out := checkObject(obj, s.Fields, s.Extra, "", &problems)
	return out, problems
}

func checkObject(obj map[string]any, fields []Field, extra ExtraPolicy, prefix string, problems *[]string) map[string]any {
	out := make(map[string]any, len(obj))
	declared := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		declared[f.Name] = struct{}{}
		key := prefix + f.Name
		v, ok := obj[f.Name]
		if !ok || v == nil {
			if f.Required {
				*problems = append(*problems, fmt.Sprintf("missing required key %q", key))
			} else if ok {
				out[f.Name] = nil
			}
			continue
		}
		if !matches(f.Type, v) {
			*problems = append(*problems, fmt.Sprintf("key %q must be %s, got %s", key, article(f.Type), typeOf(v)))
			continue
		}
		if len(f.Enum) > 0 {
			sv := v.(string)
			if !contains(f.Enum, sv) {
				*problems = append(*problems, fmt.Sprintf("key %q must be one of [%s], got %q", key, strings.Join(f.Enum, ", "), sv))
				continue
			}
		}
		if f.Type == TypeObject && len(f.Fields) > 0 {
			v = checkObject(v.(map[string]any), f.Fields, extra, key+".", problems)
		}
		out[f.Name] = v
	}

	var unknown []string
	for k := range obj {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		switch extra {
		case ExtraReject:
			*problems = append(*problems, fmt.Sprintf("unexpected key %q", prefix+k))
		case ExtraKeep:
			out[k] = obj[k]
		}
	}
	return out
}

func matches(t Type, v any) bool {
	switch t {
	case TypeAny:
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeNumber:
		switch v.(type) {
		case json.Number, float64:
			return true
		}
		return false
	case TypeInteger:
		switch n := v.(type) {
		case json.Number:
			if _, err := n.Int64(); err == nil {
				return true
			}
			f, err := n.Float64()
			return err == nil && f == math.Trunc(f)
		case float64:
			return n == math.Trunc(n)
		}
		return false
	}
	return false
}

func typeOf(v any) string {
	switch n := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case float64:
		if n == math.Trunc(n) {
			return "integer"
		}
		return "number"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func article(t Type) string {
	switch t {
	case TypeInteger, TypeObject, TypeArray, TypeAny:
		return "an " + string(t)
	default:
		return "a " + string(t)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
