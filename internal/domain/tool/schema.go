package tool

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

var reflector = &jsonschema.Reflector{
	DoNotReference:             true,
	ExpandedStruct:             true,
	AllowAdditionalProperties:  false,
	RequiredFromJSONSchemaTags: true,
}

// SchemaFor reflects the JSON schema of the argument struct T.
// Fields are optional unless tagged with jsonschema:"required".
func SchemaFor[T any]() map[string]any {
	var zero T
	s := reflector.Reflect(&zero)
	raw, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("tool schema: marshal %T: %v", zero, err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("tool schema: unmarshal %T: %v", zero, err))
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// DeclaresProperty reports whether the schema has a top-level property named name.
func DeclaresProperty(schema map[string]any, name string) bool {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = props[name]
	return ok
}

// Validator checks tool arguments against their schema. Compiled schemas are cached by tool name.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

// NewValidator creates an empty validator cache.
func NewValidator() *Validator {
	return &Validator{schemas: make(map[string]*gojsonschema.Schema)}
}

// Validate returns a descriptive error when args do not satisfy the schema of t.
func (v *Validator) Validate(t Tool, args map[string]any) error {
	schema, err := v.compiled(t)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
}

func (v *Validator) compiled(t Tool) (*gojsonschema.Schema, error) {
	name := t.Name()
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()
	if ok {
		return schema, nil
	}

	raw := t.Schema()
	if len(raw) == 0 {
		v.mu.Lock()
		v.schemas[name] = nil
		v.mu.Unlock()
		return nil, nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	v.mu.Lock()
	v.schemas[name] = compiled
	v.mu.Unlock()
	return compiled, nil
}
