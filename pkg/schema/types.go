package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type defines the contract for argument validation.
type Type interface {
	// Name returns the JSON Schema name of the type (e.g., "string", "integer").
	Name() string
	// Validate checks if a decoded JSON value conforms to this type.
	Validate(value any) error
}

// --- Built-in Type Implementations ---

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

// IntegerType validates integer values.
type IntegerType struct{}

func (t *IntegerType) Name() string { return "integer" }

func (t *IntegerType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		// Accept floats that are whole numbers (from JSON unmarshaling)
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected integer, got float (not a whole number)")
	default:
		return fmt.Errorf("expected integer, got %T", value)
	}
}

// NumberType validates numeric values.
type NumberType struct{}

func (t *NumberType) Name() string { return "number" }

func (t *NumberType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected number, got %T", value)
	}
}

// BooleanType validates boolean values.
type BooleanType struct{}

func (t *BooleanType) Name() string { return "boolean" }

func (t *BooleanType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected boolean, got %T", value)
	}
	return nil
}

// ObjectType validates nested objects without inspecting their fields.
type ObjectType struct{}

func (t *ObjectType) Name() string { return "object" }

func (t *ObjectType) Validate(value any) error {
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("expected object, got %T", value)
	}
	return nil
}

// ArrayType validates arrays of a specific element type.
type ArrayType struct {
	elemType Type
}

func (t *ArrayType) Name() string {
	if t.elemType == nil {
		return "array"
	}
	return fmt.Sprintf("array<%s>", t.elemType.Name())
}

func (t *ArrayType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected array, got %T", value)
	}
	if t.elemType == nil {
		return nil
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elemType.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// EnumType validates strings against a closed set. Matching ignores case.
type EnumType struct {
	values []string
}

func (t *EnumType) Name() string {
	return "enum(" + strings.Join(t.values, "|") + ")"
}

func (t *EnumType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	for _, v := range t.values {
		if strings.EqualFold(v, s) {
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(t.values, ", "))
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// Integer creates an integer type validator.
func Integer() Type { return &IntegerType{} }

// Number creates a number type validator.
func Number() Type { return &NumberType{} }

// Boolean creates a boolean type validator.
func Boolean() Type { return &BooleanType{} }

// Object creates an object type validator.
func Object() Type { return &ObjectType{} }

// Array creates an array validator. A nil elemType accepts any elements.
func Array(elemType Type) Type { return &ArrayType{elemType: elemType} }

// Enum creates a validator for a closed set of strings.
func Enum(values ...string) Type { return &EnumType{values: values} }

// ParseProperty converts one JSON Schema property definition to a Type.
func ParseProperty(prop map[string]any) (Type, error) {
	if enum, ok := prop["enum"]; ok {
		values, err := stringList(enum)
		if err != nil {
			return nil, fmt.Errorf("enum: %w", err)
		}
		return Enum(values...), nil
	}

	typeName, _ := prop["type"].(string)
	switch typeName {
	case "string":
		return String(), nil
	case "integer":
		return Integer(), nil
	case "number":
		return Number(), nil
	case "boolean":
		return Boolean(), nil
	case "object":
		return Object(), nil
	case "array":
		items, ok := prop["items"].(map[string]any)
		if !ok {
			return Array(nil), nil
		}
		elem, err := ParseProperty(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		return Array(elem), nil
	case "":
		return nil, fmt.Errorf("missing type")
	default:
		return nil, fmt.Errorf("unsupported type: %s", typeName)
	}
}

// stringList accepts both []string (Go literals) and []any (decoded JSON or YAML).
func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected string, got %T", i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", v)
	}
}
