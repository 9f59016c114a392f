package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Config names a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required). The model reads
	// it to decide when to call the tool.
	Description string
}

// New creates a Tool from a typed function. The argument schema is derived
// from Args's json and jsonschema struct tags, and incoming arguments are
// checked against it before fn runs, so fn never sees a payload missing a
// required field or carrying an unknown one.
//
//	type LookupArgs struct {
//	    PONumber string `json:"poNumber" jsonschema:"required,description=Purchase order number"`
//	}
//
//	lookup, err := tool.New(
//	    tool.Config{Name: "lookup_po", Description: "Fetch a purchase order"},
//	    func(ctx context.Context, args LookupArgs) (map[string]any, error) { ... },
//	)
func New[Args any](cfg Config, fn func(context.Context, Args) (map[string]any, error)) (Tool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("tool %s: description is required", cfg.Name)
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("generating schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{cfg: cfg, fn: fn, schema: schema}, nil
}

type functionTool[Args any] struct {
	cfg    Config
	fn     func(context.Context, Args) (map[string]any, error)
	schema map[string]any
}

func (t *functionTool[Args]) Name() string           { return t.cfg.Name }
func (t *functionTool[Args]) Description() string    { return t.cfg.Description }
func (t *functionTool[Args]) Schema() map[string]any { return t.schema }

func (t *functionTool[Args]) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := validateArgs(t.schema, args); err != nil {
		return nil, fmt.Errorf("tool %s: %w", t.cfg.Name, err)
	}

	// Round-trip through JSON to get the typed arguments.
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: encoding arguments: %w", t.cfg.Name, err)
	}
	var typed Args
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("tool %s: invalid arguments: %w", t.cfg.Name, err)
	}

	return t.fn(ctx, typed)
}

// generateSchema builds a JSON schema from a Go type's struct tags.
//
// Supported tags:
//   - json:"name"                     parameter name
//   - json:",omitempty"               optional parameter
//   - jsonschema:"required"           explicitly required
//   - jsonschema:"description=..."    parameter description
//   - jsonschema:"enum=a|b"           allowed values
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	// ExpandedStruct looks the root schema up by type name; anonymous
	// argument structs have none, so give the root one.
	root := reflect.TypeOf((*T)(nil)).Elem()
	if root.Kind() == reflect.Struct && root.Name() == "" {
		reflector.Namer = func(t reflect.Type) string {
			if t == root {
				return "ToolArguments"
			}
			return ""
		}
	}

	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}

// validateArgs checks args against an object schema: every required field
// present, no properties outside the schema.
func validateArgs(schema, args map[string]any) error {
	if schema == nil {
		if len(args) > 0 {
			return fmt.Errorf("unexpected arguments for tool without parameters")
		}
		return nil
	}

	props, _ := schema["properties"].(map[string]any)
	for name := range args {
		if _, ok := props[name]; !ok {
			return fmt.Errorf("unknown argument %q", name)
		}
	}

	required, _ := schema["required"].([]any)
	for _, r := range required {
		name, _ := r.(string)
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}
	return nil
}
