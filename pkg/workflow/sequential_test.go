package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordermesh/ordermesh/pkg/a2a"
)

// fakeStage appends its name to the text flowing through the pipeline.
type fakeStage struct {
	name string
	fail bool
}

func (f *fakeStage) Card() *a2a.AgentCard {
	return &a2a.AgentCard{Name: f.name}
}

func (f *fakeStage) Execute(ctx context.Context, t *a2a.Task, msg a2a.Message) (a2a.Message, error) {
	if f.fail {
		return a2a.Message{}, a2a.NewError(a2a.CodeRuntime, "stage %s broke", f.name)
	}
	reply := a2a.NewAgentMessage(a2a.TextPart(a2a.ExtractText(msg) + "|" + f.name))
	reply.ContextID = msg.ContextID
	return reply, nil
}

func collectEvents(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestSequentialRunsStagesInOrder(t *testing.T) {
	wf, err := NewSequential(
		&fakeStage{name: "intake"},
		&fakeStage{name: "processing"},
		&fakeStage{name: "data"},
	)
	require.NoError(t, err)

	require.NoError(t, wf.Post(a2a.NewUserMessage("start")))
	wf.Signal()

	eventsDone := make(chan []Event, 1)
	go func() { eventsDone <- collectEvents(wf.Events()) }()

	final, err := wf.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "start|intake|processing|data", a2a.ExtractText(*final))

	events := <-eventsDone

	// Exactly one terminal event, and it is the last one before close.
	var terminals []Event
	for _, ev := range events {
		if ev.Kind == EventOutput || ev.Kind == EventFailed {
			terminals = append(terminals, ev)
		}
	}
	require.Len(t, terminals, 1)
	assert.Equal(t, EventOutput, terminals[0].Kind)
	assert.Equal(t, terminals[0], events[len(events)-1])

	// Stage completion events arrive in pipeline order.
	var stages []string
	for _, ev := range events {
		if ev.Kind == EventStageComplete {
			stages = append(stages, ev.Stage)
		}
	}
	assert.Equal(t, []string{"intake", "processing", "data"}, stages)
}

func TestSequentialStageFailureAbortsPipeline(t *testing.T) {
	third := &fakeStage{name: "data"}
	wf, err := NewSequential(
		&fakeStage{name: "intake"},
		&fakeStage{name: "processing", fail: true},
		third,
	)
	require.NoError(t, err)

	require.NoError(t, wf.Post(a2a.NewUserMessage("start")))
	wf.Signal()

	eventsDone := make(chan []Event, 1)
	go func() { eventsDone <- collectEvents(wf.Events()) }()

	_, err = wf.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, a2a.ErrRuntime)

	events := <-eventsDone
	last := events[len(events)-1]
	assert.Equal(t, EventFailed, last.Kind)
	assert.Equal(t, "processing", last.Stage)
	assert.Contains(t, last.Err, "stage processing broke")

	// The stage after the failure never ran.
	for _, ev := range events {
		assert.NotEqual(t, "data", ev.Stage)
	}
}

func TestSequentialCollapsesMultipleInputs(t *testing.T) {
	wf, err := NewSequential(&fakeStage{name: "alpha"}, &fakeStage{name: "omega"})
	require.NoError(t, err)

	require.NoError(t, wf.Post(a2a.NewUserMessage("first")))
	require.NoError(t, wf.Post(a2a.NewUserMessage("second")))
	wf.Signal()

	go func() { collectEvents(wf.Events()) }()

	final, err := wf.Run(context.Background())
	require.NoError(t, err)
	// The first stage sees all posted parts as one message; the fake echoes
	// the first text part.
	assert.Equal(t, "first|alpha|omega", a2a.ExtractText(*final))
}

func TestSequentialSignalWithoutInputFails(t *testing.T) {
	wf, err := NewSequential(&fakeStage{name: "alpha"}, &fakeStage{name: "omega"})
	require.NoError(t, err)
	wf.Signal()

	eventsDone := make(chan []Event, 1)
	go func() { eventsDone <- collectEvents(wf.Events()) }()

	_, err = wf.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, a2a.ErrValidation)

	events := <-eventsDone
	require.NotEmpty(t, events)
	assert.Equal(t, EventFailed, events[len(events)-1].Kind)
}

func TestSequentialPostRejectsEmptyMessage(t *testing.T) {
	wf, err := NewSequential(&fakeStage{name: "alpha"}, &fakeStage{name: "omega"})
	require.NoError(t, err)
	err = wf.Post(a2a.Message{Role: a2a.MessageRoleUser})
	assert.ErrorIs(t, err, a2a.ErrValidation)
}

func TestSequentialRequiresTwoStages(t *testing.T) {
	_, err := NewSequential(&fakeStage{name: "alpha"})
	assert.ErrorIs(t, err, a2a.ErrValidation)

	_, err = NewSequential()
	assert.ErrorIs(t, err, a2a.ErrValidation)
}

// captureStage records the context id of the message it receives.
type captureStage struct {
	seen string
}

func (c *captureStage) Card() *a2a.AgentCard { return &a2a.AgentCard{Name: "capture"} }

func (c *captureStage) Execute(ctx context.Context, t *a2a.Task, msg a2a.Message) (a2a.Message, error) {
	c.seen = msg.ContextID
	return a2a.NewAgentMessage(a2a.TextPart("ok")), nil
}

func TestSequentialPostAssignsContext(t *testing.T) {
	capture := &captureStage{}
	wf, err := NewSequential(capture, &fakeStage{name: "relay"})
	require.NoError(t, err)
	require.NoError(t, wf.Post(a2a.NewUserMessage("x")))
	wf.Signal()
	go func() { collectEvents(wf.Events()) }()

	_, err = wf.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, capture.seen)
}

func TestSequentialContextCancelledBeforeSignal(t *testing.T) {
	wf, err := NewSequential(&fakeStage{name: "alpha"}, &fakeStage{name: "omega"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eventsDone := make(chan []Event, 1)
	go func() { eventsDone <- collectEvents(wf.Events()) }()

	_, err = wf.Run(ctx)
	require.Error(t, err)

	events := <-eventsDone
	require.NotEmpty(t, events)
	assert.Equal(t, EventFailed, events[len(events)-1].Kind)
}
