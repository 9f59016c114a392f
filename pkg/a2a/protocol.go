// Package a2a implements the Agent-to-Agent (A2A) protocol used by the
// ordermesh pipeline: capability discovery via agent cards, the task
// lifecycle state machine, and the HTTP+JSON transport for submitting
// messages to agents.
package a2a

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// ProtocolVersion is the A2A protocol version ordermesh speaks.
	ProtocolVersion = "1.0"

	// WellKnownCardPath is the discovery path every agent serves its card at.
	WellKnownCardPath = "/.well-known/agent.json"
)

// ============================================================================
// AGENT CARD - Agent Discovery & Capability Advertisement
// ============================================================================

// AgentCard describes an agent's identity, modes, and skills.
// It is produced once at agent startup and read-only thereafter, so it is
// safe for unsynchronized concurrent reads and re-fetchable at any time.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Version            string            `json:"version"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	Authentication     Authentication    `json:"authentication"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Skills             []AgentSkill      `json:"skills"`
}

// AgentCapabilities describes optional protocol features an agent supports.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// Authentication describes the authentication schemes an agent accepts.
type Authentication struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"`
}

// AgentSkill describes a specific skill the agent advertises.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// ============================================================================
// MESSAGE & PART - One turn's payload
// ============================================================================

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// Message is a single turn's payload: a role plus an ordered sequence of
// parts, optionally grouped into a conversation by ContextID.
type Message struct {
	Role      MessageRole `json:"role"`
	Parts     []Part      `json:"parts"`
	ContextID string      `json:"contextId,omitempty"`
	MessageID string      `json:"messageId,omitempty"`
}

// Validate checks the message invariant: at least one part an agent can
// process. Function call and result parts are runtime bookkeeping, not
// input, so a message made only of those is no more usable than an empty
// one.
func (m Message) Validate() error {
	if len(m.Parts) == 0 {
		return NewError(CodeValidation, "message must contain at least one part")
	}
	if !m.HasProcessablePart() {
		return NewError(CodeValidation, "message must contain a text or data part")
	}
	return nil
}

// HasProcessablePart reports whether the message carries any text or data
// content.
func (m Message) HasProcessablePart() bool {
	for _, p := range m.Parts {
		if p.Type == PartTypeText || p.Type == PartTypeData {
			return true
		}
	}
	return false
}

// PartType discriminates the Part union.
type PartType string

const (
	PartTypeText           PartType = "text"
	PartTypeData           PartType = "data"
	PartTypeFunctionCall   PartType = "function_call"
	PartTypeFunctionResult PartType = "function_result"
)

// Part is a closed tagged union over the content variants a message may
// carry. Exactly one variant is populated, selected by Type; consumers
// switch exhaustively on Type rather than inspecting fields.
type Part struct {
	Type PartType

	// Text part.
	Text string

	// Data part: raw bytes plus their MIME type.
	Data     []byte
	MimeType string

	// Function call part: the model asking a named tool to run.
	Call *FunctionCall

	// Function result part: what the tool returned.
	Result *FunctionResult
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// DataPart builds a data part carrying raw bytes with their MIME type.
func DataPart(data []byte, mimeType string) Part {
	return Part{Type: PartTypeData, Data: data, MimeType: mimeType}
}

// JSONPart marshals v and wraps it in a data part with an
// application/json MIME type.
func JSONPart(v any) (Part, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Part{}, fmt.Errorf("encoding json part: %w", err)
	}
	return DataPart(raw, "application/json"), nil
}

// FunctionCall records a model-requested tool invocation.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResult records the outcome of a tool invocation.
type FunctionResult struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name"`
	Result map[string]any `json:"result"`
}

// partWire is the JSON encoding of Part. Data travels base64-encoded.
type partWire struct {
	Type     PartType        `json:"type"`
	Text     string          `json:"text,omitempty"`
	Data     string          `json:"data,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Call     *FunctionCall   `json:"functionCall,omitempty"`
	Result   *FunctionResult `json:"functionResult,omitempty"`
}

// MarshalJSON encodes the populated variant only.
func (p Part) MarshalJSON() ([]byte, error) {
	w := partWire{Type: p.Type}
	switch p.Type {
	case PartTypeText:
		w.Text = p.Text
	case PartTypeData:
		w.Data = base64.StdEncoding.EncodeToString(p.Data)
		w.MimeType = p.MimeType
	case PartTypeFunctionCall:
		w.Call = p.Call
	case PartTypeFunctionResult:
		w.Result = p.Result
	default:
		return nil, fmt.Errorf("unknown part type: %q", p.Type)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a part, rejecting unknown discriminators.
func (p *Part) UnmarshalJSON(data []byte) error {
	var w partWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Part{Type: w.Type}
	switch w.Type {
	case PartTypeText:
		p.Text = w.Text
	case PartTypeData:
		raw, err := base64.StdEncoding.DecodeString(w.Data)
		if err != nil {
			return fmt.Errorf("invalid data part encoding: %w", err)
		}
		p.Data = raw
		p.MimeType = w.MimeType
	case PartTypeFunctionCall:
		if w.Call == nil {
			return fmt.Errorf("function_call part missing functionCall body")
		}
		p.Call = w.Call
	case PartTypeFunctionResult:
		if w.Result == nil {
			return fmt.Errorf("function_result part missing functionResult body")
		}
		p.Result = w.Result
	default:
		return fmt.Errorf("unknown part type: %q", w.Type)
	}
	return nil
}

// ============================================================================
// TASK - Unit of Work
// ============================================================================

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input_required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCancelled     TaskState = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> next is legal.
//
//	submitted      -> working | cancelled
//	working        -> input_required | completed | failed | cancelled
//	input_required -> working | cancelled
//	terminal       -> (none)
func (s TaskState) CanTransitionTo(next TaskState) bool {
	switch s {
	case TaskStateSubmitted:
		return next == TaskStateWorking || next == TaskStateCancelled
	case TaskStateWorking:
		switch next {
		case TaskStateInputRequired, TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
			return true
		}
	case TaskStateInputRequired:
		return next == TaskStateWorking || next == TaskStateCancelled
	}
	return false
}

// TaskStatus is the current state of a task plus when it was entered.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// Task is a tracked unit of submitted work. History records every message
// exchanged in order; artifacts accumulate agent outputs.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status"`
	History   []Message  `json:"history,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Artifact is output produced by an agent for a task. Artifacts are
// appended, never mutated in place.
type Artifact struct {
	Name  string `json:"name,omitempty"`
	Parts []Part `json:"parts"`
	Index int    `json:"index"`
}

// ============================================================================
// RPC PAYLOADS
// ============================================================================

// SendParams is the body of a message submission (POST /).
type SendParams struct {
	Message Message `json:"message"`
}

// CancelParams is the body of a cancel request.
type CancelParams struct {
	Reason string `json:"reason,omitempty"`
}

// ============================================================================
// HANDLER CONTRACT
// ============================================================================

// Handler is what the transport dispatches inbound protocol requests to.
// The task manager implements it.
type Handler interface {
	// Card returns the process-wide immutable capability card.
	Card() *AgentCard

	// OnMessage submits a message and drives it to a terminal task state.
	OnMessage(ctx context.Context, msg Message) (*Task, error)

	// GetTask looks up a task; unknown ids fail with a not-found error.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// CancelTask requests cancellation; idempotent on terminal tasks.
	CancelTask(ctx context.Context, taskID string, reason string) (*Task, error)
}
