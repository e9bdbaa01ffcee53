package remote

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed definition.schema.json
var definitionSchemaJSON []byte

const definitionSchemaURL = "schema://test-definition.json"

var (
	definitionSchemaOnce sync.Once
	definitionSchema     *jsonschema.Schema
	definitionSchemaErr  error
)

func compiledDefinitionSchema() (*jsonschema.Schema, error) {
	definitionSchemaOnce.Do(func() {
		// The compiler expects a parsed JSON value, not raw bytes.
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(definitionSchemaJSON))
		if err != nil {
			definitionSchemaErr = fmt.Errorf("parse definition schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(definitionSchemaURL, doc); err != nil {
			definitionSchemaErr = fmt.Errorf("add resource: %w", err)
			return
		}
		definitionSchema, definitionSchemaErr = c.Compile(definitionSchemaURL)
	})
	return definitionSchema, definitionSchemaErr
}

// validateDefinition checks a raw definition document before it is decoded.
func validateDefinition(raw json.RawMessage) error {
	schema, err := compiledDefinitionSchema()
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
