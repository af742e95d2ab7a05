package loader

import (
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/cangen/internal/document"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/message-set-v1.json
var messageSetSchemaJSON string

// Validator checks the shape of message set, mapping and superset
// documents. It does not enforce required fields; the semantic validator
// reports those with better context.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("message-set-v1.json",
		strings.NewReader(messageSetSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("message-set-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

func (v *Validator) ValidateDocument(doc document.Value) error {
	if !doc.IsMapping() {
		return fmt.Errorf("document must be an object, got %s", doc.Kind())
	}

	if err := v.schema.Validate(doc.Interface()); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
