// Package validator turns raw model text into a schema-conformant Command.
package validator

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/models"
	"github.com/example/command-translator/internal/schema"
)

// Validate accepts raw only when it is a single JSON object, with nothing but
// whitespace around it, that satisfies sch. The returned Command is a fresh
// map with undeclared keys handled per the schema's extra policy.
func Validate(raw string, sch *schema.Schema) (models.Command, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &apperr.ParseError{Reason: "response is empty"}
	}

	start, end, err := locateObject(text)
	if err != nil {
		return nil, err
	}

	obj, err := decodeObject(text[start:end], int64(start))
	if err != nil {
		return nil, err
	}

	surrounding := describeSurrounding(text[:start], text[end:])
	cleaned, problems := sch.Check(obj)
	if len(problems) > 0 {
		if surrounding != "" {
			problems = append(problems, surrounding)
		}
		return nil, &apperr.SchemaError{Schema: sch.Name, Problems: problems}
	}
	if surrounding != "" {
		return nil, &apperr.ParseError{Reason: surrounding}
	}
	return models.Command(cleaned), nil
}

// locateObject finds the first top-level {...} in s, skipping braces inside
// string literals. It returns the half-open range of the object.
func locateObject(s string) (int, int, error) {
	if strings.HasPrefix(s, "[") {
		return 0, 0, &apperr.ParseError{Reason: "response is a JSON array, expected an object"}
	}
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return 0, 0, &apperr.ParseError{Reason: "no JSON object found in response"}
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1, nil
			}
		}
	}
	return 0, 0, &apperr.ParseError{Reason: "unterminated JSON object", Offset: int64(len(s))}
}

func decodeObject(s string, base int64) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return nil, &apperr.ParseError{Reason: syn.Error(), Offset: base + syn.Offset}
		}
		return nil, &apperr.ParseError{Reason: err.Error(), Offset: base}
	}
	return obj, nil
}

// describeSurrounding explains any non-whitespace text around the object, or
// returns "" when there is none.
func describeSurrounding(before, after string) string {
	before = strings.TrimSpace(before)
	after = strings.TrimSpace(after)
	if before == "" && after == "" {
		return ""
	}
	if strings.HasPrefix(before, "```") || strings.HasSuffix(after, "```") {
		return "response is wrapped in a markdown code fence"
	}
	var parts []string
	if before != "" {
		parts = append(parts, "unexpected text before the JSON object")
	}
	if strings.HasPrefix(after, "{") {
		parts = append(parts, "more than one JSON object in response")
	} else if after != "" {
		parts = append(parts, "unexpected text after the JSON object")
	}
	return strings.Join(parts, " and ")
}
