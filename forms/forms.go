// Package forms validates request payloads before they are handed to the
// gateway, so schema-level mistakes (missing fields, bad formats) surface
// as local field errors and never cost a round trip.
//
// Rules are declared on the payload structs themselves via jsonschema
// struct tags and compiled once per type through reflection.
package forms

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

// FieldError describes one invalid field.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationError aggregates every failed rule for a payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

var reflector = &jsonschema.Reflector{
	ExpandedStruct: true,
	DoNotReference: true,
}

var schemaCache sync.Map // reflect.Type -> *jsonschema.Schema

func schemaFor(v any) *jsonschema.Schema {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*jsonschema.Schema)
	}
	schema := reflector.ReflectFromType(t)
	schemaCache.Store(t, schema)
	return schema
}

// Validate checks v against its reflected schema. A nil return means the
// payload may be submitted; otherwise the error is a *ValidationError
// listing every failed field.
func Validate(v any) error {
	schema := schemaFor(v)

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("payload must be an object: %w", err)
	}

	var failed []FieldError

	for _, name := range schema.Required {
		if isAbsent(fields[name]) {
			failed = append(failed, FieldError{Field: name, Reason: "is required"})
		}
	}

	if schema.Properties != nil {
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			value, ok := fields[pair.Key]
			if !ok || isAbsent(value) {
				continue
			}
			failed = append(failed, checkProperty(pair.Key, pair.Value, value)...)
		}
	}

	if len(failed) > 0 {
		return &ValidationError{Fields: failed}
	}
	return nil
}

func checkProperty(name string, prop *jsonschema.Schema, value any) []FieldError {
	var failed []FieldError

	if s, ok := value.(string); ok {
		if prop.MinLength != nil && uint64(len(s)) < *prop.MinLength {
			failed = append(failed, FieldError{
				Field:  name,
				Reason: fmt.Sprintf("must be at least %d characters", *prop.MinLength),
			})
		}
		if prop.MaxLength != nil && uint64(len(s)) > *prop.MaxLength {
			failed = append(failed, FieldError{
				Field:  name,
				Reason: fmt.Sprintf("must be at most %d characters", *prop.MaxLength),
			})
		}
		if prop.Format == "email" && !looksLikeEmail(s) {
			failed = append(failed, FieldError{Field: name, Reason: "must be a valid email address"})
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, s) {
			failed = append(failed, FieldError{Field: name, Reason: "is not an allowed value"})
		}
	}

	if n, ok := value.(float64); ok {
		if prop.Minimum != "" {
			if min, err := prop.Minimum.Float64(); err == nil && n < min {
				failed = append(failed, FieldError{
					Field:  name,
					Reason: fmt.Sprintf("must be at least %v", prop.Minimum),
				})
			}
		}
		if prop.Maximum != "" {
			if max, err := prop.Maximum.Float64(); err == nil && n > max {
				failed = append(failed, FieldError{
					Field:  name,
					Reason: fmt.Sprintf("must be at most %v", prop.Maximum),
				})
			}
		}
	}

	return failed
}

func isAbsent(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}

func looksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.Contains(s[at+1:], "@")
}

func enumContains(enum []any, s string) bool {
	for _, e := range enum {
		if fmt.Sprint(e) == s {
			return true
		}
	}
	return false
}
