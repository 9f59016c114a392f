package model

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a structured-output JSON schema from a Go type's
// struct tags, in the shape GenerateConfig.ResponseSchema expects.
// Strict-mode providers require additionalProperties to be false, so it
// is forced here.
func SchemaFor[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	delete(result, "$schema")
	delete(result, "$id")
	result["additionalProperties"] = false
	return result, nil
}
