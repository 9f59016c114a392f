package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/ordermesh/ordermesh/pkg/a2a"
	"github.com/ordermesh/ordermesh/pkg/logger"
	"github.com/ordermesh/ordermesh/pkg/model"
	"github.com/ordermesh/ordermesh/pkg/telemetry"
	"github.com/ordermesh/ordermesh/pkg/tool"
)

// RuntimeConfig configures a model-backed agent.
type RuntimeConfig struct {
	// Card is the agent's capability card (required).
	Card *a2a.AgentCard

	// Instruction is the system prompt.
	Instruction string

	// Generate tunes model calls; nil means provider defaults.
	Generate *model.GenerateConfig

	// MaxToolRounds bounds the tool-call loop. Zero means 8.
	MaxToolRounds int
}

// Runtime is a model-backed agent. Each Execute call is one turn: the
// model may request tools; the runtime runs them and feeds results back
// until the model answers in text or the round budget runs out.
type Runtime struct {
	cfg   RuntimeConfig
	llm   model.LLM
	tools *tool.Registry

	mu       sync.Mutex
	inflight map[string]bool
}

// NewRuntime builds a runtime. A nil registry means the agent has no
// tools.
func NewRuntime(cfg RuntimeConfig, llm model.LLM, tools *tool.Registry) (*Runtime, error) {
	if cfg.Card == nil {
		return nil, fmt.Errorf("agent runtime requires a card")
	}
	if llm == nil {
		return nil, fmt.Errorf("agent %s: runtime requires a model", cfg.Card.Name)
	}
	if cfg.MaxToolRounds == 0 {
		cfg.MaxToolRounds = 8
	}
	if tools == nil {
		tools = tool.NewRegistry()
	}
	return &Runtime{
		cfg:      cfg,
		llm:      llm,
		tools:    tools,
		inflight: make(map[string]bool),
	}, nil
}

// Card returns the agent's capability card.
func (r *Runtime) Card() *a2a.AgentCard { return r.cfg.Card }

// Execute runs one turn. At most one turn may be in flight per task: a
// second Execute for the same task while one is running is an error, not
// a queue.
func (r *Runtime) Execute(ctx context.Context, t *a2a.Task, msg a2a.Message) (a2a.Message, error) {
	return r.ExecuteObserved(ctx, t, msg, nil)
}

// ExecuteObserved is Execute with progress callbacks.
func (r *Runtime) ExecuteObserved(ctx context.Context, t *a2a.Task, msg a2a.Message, obs TurnObserver) (a2a.Message, error) {
	if obs == nil {
		obs = nopObserver{}
	}

	r.mu.Lock()
	if r.inflight[t.ID] {
		r.mu.Unlock()
		return a2a.Message{}, a2a.NewError(a2a.CodeValidation, "agent %s: turn already in flight for task %s", r.cfg.Card.Name, t.ID)
	}
	r.inflight[t.ID] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, t.ID)
		r.mu.Unlock()
	}()

	log := logger.GetLogger().With("agent", r.cfg.Card.Name, "task", t.ID)

	// The conversation: prior task history, then the incoming message if
	// the history does not already end with it.
	messages := make([]a2a.Message, 0, len(t.History)+1)
	messages = append(messages, t.History...)
	if len(messages) == 0 || messages[len(messages)-1].MessageID != msg.MessageID {
		messages = append(messages, msg)
	}

	// Parts accumulated for the reply: tool activity plus final text.
	var replyParts []a2a.Part

	for round := 0; round < r.cfg.MaxToolRounds; round++ {
		resp, err := r.llm.Complete(ctx, &model.Request{
			Messages:          messages,
			Tools:             r.tools.Definitions(),
			SystemInstruction: r.cfg.Instruction,
			Config:            r.cfg.Generate,
		})
		if err != nil {
			return a2a.Message{}, err
		}

		if !resp.HasToolCalls() {
			obs.OnText(resp.Text)
			replyParts = append(replyParts, a2a.TextPart(resp.Text))
			reply := a2a.NewAgentMessage(replyParts...)
			reply.ContextID = msg.ContextID
			return reply, nil
		}

		// The model wants tools. Record the calls, run them, and feed
		// the results back as the next model input.
		var callParts, resultParts []a2a.Part
		for _, call := range resp.ToolCalls {
			obs.OnToolCall(call.Name, call.Args)
			log.Debug("tool call", "tool", call.Name, "round", round)

			res := r.tools.Invoke(ctx, call)
			outcome := "ok"
			if res.Error != "" {
				outcome = "error"
				log.Warn("tool failed", "tool", call.Name, "error", res.Error)
			}
			telemetry.Metrics.ToolCallsTotal.WithLabelValues(call.Name, outcome).Inc()
			obs.OnToolResult(call.Name, res.Content, res.Error)

			callParts = append(callParts, a2a.Part{
				Type: a2a.PartTypeFunctionCall,
				Call: &a2a.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args},
			})
			resultContent := res.Content
			if res.Error != "" {
				resultContent = map[string]any{"error": res.Error}
			}
			resultParts = append(resultParts, a2a.Part{
				Type:   a2a.PartTypeFunctionResult,
				Result: &a2a.FunctionResult{ID: call.ID, Name: call.Name, Result: resultContent},
			})
		}

		callMsg := a2a.NewAgentMessage(callParts...)
		callMsg.ContextID = msg.ContextID
		resultMsg := a2a.Message{Role: a2a.MessageRoleUser, Parts: resultParts, ContextID: msg.ContextID}
		messages = append(messages, callMsg, resultMsg)
		replyParts = append(replyParts, callParts...)
		replyParts = append(replyParts, resultParts...)
	}

	return a2a.Message{}, a2a.NewError(a2a.CodeRuntime,
		"agent %s: tool loop exceeded %d rounds", r.cfg.Card.Name, r.cfg.MaxToolRounds)
}
