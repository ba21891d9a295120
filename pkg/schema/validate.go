package schema

import (
	"fmt"
	"sort"
)

// Schema is the argument contract of one tool.
type Schema struct {
	Fields   map[string]Type
	Required []string
}

// Compile builds a Schema from a JSON Schema object definition.
// A nil or empty definition compiles to nil, which accepts any arguments.
func Compile(params map[string]any) (*Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	if t, ok := params["type"].(string); ok && t != "object" {
		return nil, fmt.Errorf("tool parameters must be an object schema, got %q", t)
	}

	s := &Schema{Fields: make(map[string]Type)}
	if raw, ok := params["properties"]; ok {
		props, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("properties: expected object, got %T", raw)
		}
		for name, def := range props {
			prop, ok := def.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %s: expected object, got %T", name, def)
			}
			t, err := ParseProperty(prop)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			s.Fields[name] = t
		}
	}
	if raw, ok := params["required"]; ok {
		required, err := stringList(raw)
		if err != nil {
			return nil, fmt.Errorf("required: %w", err)
		}
		s.Required = required
	}
	return s, nil
}

// Validate checks args against the schema and reports every failure.
// Fields the schema does not declare are accepted.
func (s *Schema) Validate(args map[string]any) error {
	if s == nil {
		return nil
	}

	var errs []error
	for _, name := range s.Required {
		if v, ok := args[name]; !ok || v == nil {
			errs = append(errs, &ValidationError{Key: name, Reason: "required"})
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t, ok := s.Fields[name]
		value := args[name]
		if !ok || value == nil {
			continue
		}
		if err := t.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: name, Reason: err.Error(), Value: value})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
