package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupArgs struct {
	PONumber string `json:"poNumber" jsonschema:"required,description=Purchase order number"`
	Verbose  bool   `json:"verbose,omitempty"`
}

func newLookupTool(t *testing.T) Tool {
	t.Helper()
	tl, err := New(
		Config{Name: "lookup_po", Description: "Fetch a purchase order by number"},
		func(ctx context.Context, args lookupArgs) (map[string]any, error) {
			return map[string]any{"poNumber": args.PONumber, "found": true}, nil
		},
	)
	require.NoError(t, err)
	return tl
}

func TestNewRequiresNameAndDescription(t *testing.T) {
	fn := func(ctx context.Context, args lookupArgs) (map[string]any, error) { return nil, nil }

	_, err := New(Config{Description: "d"}, fn)
	assert.ErrorContains(t, err, "name is required")

	_, err = New(Config{Name: "x"}, fn)
	assert.ErrorContains(t, err, "description is required")
}

func TestSchemaFromStructTags(t *testing.T) {
	tl := newLookupTool(t)
	schema := tl.Schema()

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "poNumber")
	assert.Contains(t, props, "verbose")

	required, _ := schema["required"].([]any)
	assert.Contains(t, required, "poNumber")
	assert.NotContains(t, required, "verbose")
}

func TestSchemaFromAnonymousStruct(t *testing.T) {
	tl, err := New(
		Config{Name: "ping", Description: "No-argument tool"},
		func(ctx context.Context, _ struct{}) (map[string]any, error) {
			return map[string]any{"pong": true}, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "object", tl.Schema()["type"])

	out, err := tl.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["pong"])

	inline, err := New(
		Config{Name: "tag", Description: "Inline argument struct"},
		func(ctx context.Context, args struct {
			Label string `json:"label" jsonschema:"required"`
		}) (map[string]any, error) {
			return map[string]any{"label": args.Label}, nil
		},
	)
	require.NoError(t, err)

	props, ok := inline.Schema()["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "label")

	out, err = inline.Call(context.Background(), map[string]any{"label": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", out["label"])
}

func TestCallValidatesArgs(t *testing.T) {
	tl := newLookupTool(t)
	ctx := context.Background()

	out, err := tl.Call(ctx, map[string]any{"poNumber": "PO-1"})
	require.NoError(t, err)
	assert.Equal(t, "PO-1", out["poNumber"])

	_, err = tl.Call(ctx, map[string]any{})
	assert.ErrorContains(t, err, `missing required argument "poNumber"`)

	_, err = tl.Call(ctx, map[string]any{"poNumber": "PO-1", "extra": 1})
	assert.ErrorContains(t, err, `unknown argument "extra"`)
}

func TestRegistryInvoke(t *testing.T) {
	reg := NewRegistry(newLookupTool(t))
	ctx := context.Background()

	res := reg.Invoke(ctx, ToolCall{ID: "c1", Name: "lookup_po", Args: map[string]any{"poNumber": "PO-9"}})
	assert.Empty(t, res.Error)
	assert.Equal(t, "c1", res.ToolCallID)
	assert.Equal(t, "PO-9", res.Content["poNumber"])

	res = reg.Invoke(ctx, ToolCall{ID: "c2", Name: "nope"})
	assert.Contains(t, res.Error, `unknown tool "nope"`)
	assert.Nil(t, res.Content)
}

func TestRegistryInvokeSurfacesToolError(t *testing.T) {
	failing, err := New(
		Config{Name: "flaky", Description: "always fails"},
		func(ctx context.Context, args struct{}) (map[string]any, error) {
			return nil, errors.New("backend offline")
		},
	)
	require.NoError(t, err)

	res := NewRegistry(failing).Invoke(context.Background(), ToolCall{Name: "flaky"})
	assert.Contains(t, res.Error, "backend offline")
}

func TestDefinitionsSortedByName(t *testing.T) {
	b, err := New(Config{Name: "bravo", Description: "b"}, func(ctx context.Context, _ struct{}) (map[string]any, error) { return nil, nil })
	require.NoError(t, err)
	a, err := New(Config{Name: "alpha", Description: "a"}, func(ctx context.Context, _ struct{}) (map[string]any, error) { return nil, nil })
	require.NoError(t, err)

	defs := NewRegistry(b, a).Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "bravo", defs[1].Name)
}
