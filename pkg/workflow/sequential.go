// Package workflow chains agents into pipelines. A Sequential workflow
// feeds each stage's reply to the next stage and publishes progress on a
// live event stream.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ordermesh/ordermesh/pkg/a2a"
	ag "github.com/ordermesh/ordermesh/pkg/agent"
	"github.com/ordermesh/ordermesh/pkg/logger"
)

// EventKind discriminates workflow events.
type EventKind string

const (
	// EventAgentDelta carries a stage's text output.
	EventAgentDelta EventKind = "agent_delta"
	// EventToolCall reports a tool invocation inside a stage.
	EventToolCall EventKind = "tool_call"
	// EventStageComplete marks a stage handing off to the next.
	EventStageComplete EventKind = "stage_complete"
	// EventFailed reports a stage failure; it is terminal.
	EventFailed EventKind = "failed"
	// EventOutput carries the pipeline's final message; it is terminal.
	EventOutput EventKind = "output"
)

// Event is one entry on the workflow's event stream. Exactly one terminal
// event (output or failed) is published, after which the stream closes.
type Event struct {
	Kind      EventKind
	Stage     string
	Text      string
	Tool      string
	Args      map[string]any
	Message   *a2a.Message
	Err       string
	Timestamp time.Time
}

const (
	inboxCapacity = 16
	eventCapacity = 64
)

// Sequential runs its stages in order: the caller posts input messages,
// then signals the turn; the first stage consumes the posted messages and
// every later stage consumes its predecessor's reply. A stage failure
// aborts the remaining stages.
type Sequential struct {
	stages    []ag.Agent
	contextID string

	inbox  chan a2a.Message
	turn   chan struct{}
	events chan Event

	closeOnce  sync.Once
	signalOnce sync.Once
}

// NewSequential builds a pipeline over the given stages, in run order. A
// pipeline chains at least two stages.
func NewSequential(stages ...ag.Agent) (*Sequential, error) {
	if len(stages) < 2 {
		return nil, a2a.NewError(a2a.CodeValidation, "a sequential workflow needs at least 2 stages, got %d", len(stages))
	}
	return &Sequential{
		stages:    stages,
		contextID: uuid.NewString(),
		inbox:     make(chan a2a.Message, inboxCapacity),
		turn:      make(chan struct{}),
		events:    make(chan Event, eventCapacity),
	}, nil
}

// Post buffers an input message for the first stage. Posting after Signal
// or beyond the inbox capacity is an error.
func (s *Sequential) Post(msg a2a.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	msg.ContextID = s.contextID
	select {
	case s.inbox <- msg:
		return nil
	default:
		return a2a.NewError(a2a.CodeValidation, "workflow inbox is full")
	}
}

// Signal closes the turn: the posted messages form the complete input and
// the pipeline may run. Calling Signal more than once is harmless.
func (s *Sequential) Signal() {
	s.signalOnce.Do(func() { close(s.turn) })
}

// Events returns the live event stream. The channel closes exactly once,
// right after the terminal output or failed event.
func (s *Sequential) Events() <-chan Event {
	return s.events
}

// Run waits for the turn signal, drives the stages, and closes the event
// stream. It returns the final message, or the error of the stage that
// failed.
func (s *Sequential) Run(ctx context.Context) (*a2a.Message, error) {
	defer s.close()

	select {
	case <-ctx.Done():
		s.fail("", ctx.Err().Error())
		return nil, a2a.WrapError(a2a.CodeRuntime, ctx.Err(), "workflow aborted before start")
	case <-s.turn:
	}

	// Drain the inbox into the first stage's input.
	var inputs []a2a.Message
	for {
		select {
		case msg := <-s.inbox:
			inputs = append(inputs, msg)
			continue
		default:
		}
		break
	}
	if len(inputs) == 0 {
		s.fail("", "no input posted before signal")
		return nil, a2a.NewError(a2a.CodeValidation, "workflow signalled with no input")
	}

	log := logger.GetLogger()

	// Multiple posted messages collapse into one: all parts, in post
	// order.
	current := inputs[0]
	for _, extra := range inputs[1:] {
		current.Parts = append(current.Parts, extra.Parts...)
	}

	for _, stage := range s.stages {
		name := stage.Card().Name
		log.Info("workflow stage starting", "stage", name)

		stageTask := &a2a.Task{
			ID:        uuid.NewString(),
			ContextID: s.contextID,
			Status: a2a.TaskStatus{
				State:     a2a.TaskStateWorking,
				Timestamp: time.Now().UTC(),
			},
		}

		reply, err := s.executeStage(ctx, stage, stageTask, current)
		if err != nil {
			log.Warn("workflow stage failed", "stage", name, "error", err)
			s.fail(name, err.Error())
			return nil, err
		}

		s.publish(Event{Kind: EventStageComplete, Stage: name, Timestamp: time.Now().UTC()})
		current = reply
	}

	final := current
	s.publish(Event{Kind: EventOutput, Message: &final, Timestamp: time.Now().UTC()})
	return &final, nil
}

// executeStage runs one stage, forwarding its progress to the event
// stream when the stage supports observation.
func (s *Sequential) executeStage(ctx context.Context, stage ag.Agent, t *a2a.Task, msg a2a.Message) (a2a.Message, error) {
	obs := &stageObserver{workflow: s, stage: stage.Card().Name}
	if observed, ok := stage.(interface {
		ExecuteObserved(context.Context, *a2a.Task, a2a.Message, ag.TurnObserver) (a2a.Message, error)
	}); ok {
		return observed.ExecuteObserved(ctx, t, msg, obs)
	}
	reply, err := stage.Execute(ctx, t, msg)
	if err == nil {
		obs.OnText(a2a.ExtractAllText(reply))
	}
	return reply, err
}

func (s *Sequential) fail(stage, errText string) {
	s.publish(Event{Kind: EventFailed, Stage: stage, Err: errText, Timestamp: time.Now().UTC()})
}

// publish delivers an event. Terminal events (output, failed) always land
// on the stream before it closes; progress events are dropped if the
// subscriber has fallen far behind, rather than wedging the pipeline.
func (s *Sequential) publish(ev Event) {
	if ev.Kind == EventOutput || ev.Kind == EventFailed {
		s.events <- ev
		return
	}
	select {
	case s.events <- ev:
	default:
		logger.GetLogger().Debug("dropping workflow event", "kind", string(ev.Kind), "stage", ev.Stage)
	}
}

func (s *Sequential) close() {
	s.closeOnce.Do(func() { close(s.events) })
}

// stageObserver maps agent turn callbacks onto workflow events.
type stageObserver struct {
	workflow *Sequential
	stage    string
}

func (o *stageObserver) OnText(text string) {
	o.workflow.publish(Event{Kind: EventAgentDelta, Stage: o.stage, Text: text, Timestamp: time.Now().UTC()})
}

func (o *stageObserver) OnToolCall(name string, args map[string]any) {
	o.workflow.publish(Event{Kind: EventToolCall, Stage: o.stage, Tool: name, Args: args, Timestamp: time.Now().UTC()})
}

func (o *stageObserver) OnToolResult(string, map[string]any, string) {}
