// Package agent provides the agent runtime: a capability card, a model,
// and a tool registry driven through a bounded tool-call loop, one turn
// at a time.
package agent

import (
	"context"

	"github.com/ordermesh/ordermesh/pkg/a2a"
)

// Agent is anything the pipeline can hand a message to: a local runtime
// or a resolved remote peer.
type Agent interface {
	// Card returns the agent's capability card.
	Card() *a2a.AgentCard

	// Execute runs one turn for a task and returns the agent's reply.
	Execute(ctx context.Context, t *a2a.Task, msg a2a.Message) (a2a.Message, error)
}

// TurnObserver receives progress callbacks during a turn. All methods are
// called from the turn's goroutine; implementations must not block.
type TurnObserver interface {
	// OnText is called with the model's text output for the turn.
	OnText(text string)

	// OnToolCall is called before a tool runs.
	OnToolCall(name string, args map[string]any)

	// OnToolResult is called after a tool returns.
	OnToolResult(name string, result map[string]any, errText string)
}

// nopObserver is used when the caller passes no observer.
type nopObserver struct{}

func (nopObserver) OnText(string)                               {}
func (nopObserver) OnToolCall(string, map[string]any)           {}
func (nopObserver) OnToolResult(string, map[string]any, string) {}
