package agent

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateArguments validates decoded tool-call arguments against a tool's
// declared JSON-Schema object (§4.6 step 8c: missing required fields and
// type mismatches, including array-vs-scalar, must be caught here).
func ValidateArguments(paramSchema map[string]any, args map[string]any) error {
	raw, err := json.Marshal(paramSchema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool-params.json", bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("tool-params.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	payload := args
	if payload == nil {
		payload = map[string]any{}
	}
	normalized, err := jsonRoundTrip(payload)
	if err != nil {
		return err
	}
	if err := schema.Validate(normalized); err != nil {
		return err
	}
	return nil
}

// jsonRoundTrip forces Go's json package to produce the same value shapes
// jsonschema expects (numbers as float64, nested maps as map[string]any).
func jsonRoundTrip(v map[string]any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal arguments: %w", err)
	}
	return out, nil
}
