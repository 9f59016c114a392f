// Package model defines the language model abstraction the agent runtime
// calls into, plus the OpenAI-compatible provider implementation.
package model

import (
	"context"

	"github.com/ordermesh/ordermesh/pkg/a2a"
	"github.com/ordermesh/ordermesh/pkg/tool"
)

// LLM is the language model interface. One Complete call is one model
// turn: the full conversation goes in, one response comes out.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Complete produces a response for the given request.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Close releases any resources held by the model.
	Close() error
}

// Request is the input for a model call.
type Request struct {
	// Messages is the conversation so far, oldest first.
	Messages []a2a.Message

	// Tools the model may call this turn.
	Tools []tool.Definition

	// SystemInstruction is prepended to the conversation.
	SystemInstruction string

	// Config tunes generation; nil means provider defaults.
	Config *GenerateConfig
}

// GenerateConfig tunes a model call.
type GenerateConfig struct {
	// Temperature controls randomness (0-2).
	Temperature *float64

	// MaxTokens limits the response length.
	MaxTokens *int

	// ResponseSchema constrains output to a JSON schema when set.
	ResponseSchema map[string]any

	// ResponseSchemaName names the schema for providers that require it.
	// Defaults to "response".
	ResponseSchemaName string
}

// Clone deep-copies the config so callers can tweak a request without
// sharing state.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Temperature != nil {
		t := *c.Temperature
		clone.Temperature = &t
	}
	if c.MaxTokens != nil {
		m := *c.MaxTokens
		clone.MaxTokens = &m
	}
	if c.ResponseSchema != nil {
		clone.ResponseSchema = deepCopyMap(c.ResponseSchema)
	}
	return &clone
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			result[k] = deepCopyMap(val)
		case []any:
			result[k] = deepCopySlice(val)
		default:
			result[k] = v
		}
	}
	return result
}

func deepCopySlice(s []any) []any {
	if s == nil {
		return nil
	}
	result := make([]any, len(s))
	for i, v := range s {
		switch val := v.(type) {
		case map[string]any:
			result[i] = deepCopyMap(val)
		case []any:
			result[i] = deepCopySlice(val)
		default:
			result[i] = v
		}
	}
	return result
}

// Response is the outcome of a model call.
type Response struct {
	// Text is the generated text content, if any.
	Text string

	// ToolCalls requested by the model. Non-empty means the turn is not
	// finished: the runtime runs the tools and calls Complete again.
	ToolCalls []tool.ToolCall

	// FinishReason says why generation stopped.
	FinishReason FinishReason

	// Usage holds token accounting when the provider reports it.
	Usage *Usage
}

// HasToolCalls reports whether the model asked for tools this turn.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Usage is token usage for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishReason says why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonFilter    FinishReason = "content_filter"
)
