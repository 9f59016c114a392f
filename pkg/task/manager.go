package task

import (
	"context"
	"errors"
	"time"

	"github.com/ordermesh/ordermesh/pkg/a2a"
	"github.com/ordermesh/ordermesh/pkg/logger"
	"github.com/ordermesh/ordermesh/pkg/telemetry"
)

// Executor produces the agent's reply for one submitted message. The task
// snapshot carries prior history when a conversation is being resumed.
// Returning an error wrapping ErrInputNeeded parks the task in the
// input_required state with the reply as the prompt.
type Executor interface {
	Execute(ctx context.Context, t *a2a.Task, msg a2a.Message) (a2a.Message, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, t *a2a.Task, msg a2a.Message) (a2a.Message, error)

func (f ExecutorFunc) Execute(ctx context.Context, t *a2a.Task, msg a2a.Message) (a2a.Message, error) {
	return f(ctx, t, msg)
}

// ErrInputNeeded signals that the executor cannot finish without more
// input from the caller.
var ErrInputNeeded = errors.New("input needed")

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// ExecTimeout bounds a single execution. Zero means 5 minutes.
	ExecTimeout time.Duration
}

// Manager is the protocol handler: it owns the task lifecycle and drives
// the executor. Cancellation is sticky: once a task is cancelled, a late
// executor result is discarded rather than resurrecting the task.
type Manager struct {
	card  *a2a.AgentCard
	store Store
	exec  Executor
	cfg   ManagerConfig
}

// NewManager builds a Manager serving the given card.
func NewManager(card *a2a.AgentCard, store Store, exec Executor, cfg ManagerConfig) *Manager {
	if cfg.ExecTimeout == 0 {
		cfg.ExecTimeout = 5 * time.Minute
	}
	return &Manager{card: card, store: store, exec: exec, cfg: cfg}
}

// Card returns the agent's capability card.
func (m *Manager) Card() *a2a.AgentCard { return m.card }

// OnMessage runs a message through the lifecycle: create (or resume) the
// task, move it to working, execute, and record the terminal outcome. The
// returned task is a snapshot in its resting state.
func (m *Manager) OnMessage(ctx context.Context, msg a2a.Message) (*a2a.Task, error) {
	if err := msg.Validate(); err != nil {
		return m.rejectMessage(ctx, msg, err)
	}

	t, err := m.taskFor(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := m.store.AppendMessage(ctx, t.ID, msg); err != nil {
		return nil, err
	}
	t, err = m.store.Transition(ctx, t.ID, a2a.TaskStateWorking, "", nil)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, m.cfg.ExecTimeout)
	defer cancel()

	start := time.Now()
	reply, execErr := m.exec.Execute(execCtx, t, msg)
	telemetry.Metrics.TurnDuration.WithLabelValues(m.card.Name).Observe(time.Since(start).Seconds())

	return m.settle(ctx, t.ID, reply, execErr)
}

// rejectMessage settles an unprocessable message as a terminal task
// carrying a textual error artifact. The caller always receives a
// well-formed task, never a protocol fault.
func (m *Manager) rejectMessage(ctx context.Context, msg a2a.Message, cause error) (*a2a.Task, error) {
	t, err := m.store.Create(ctx, msg.ContextID)
	if err != nil {
		return nil, err
	}
	if _, err := m.store.Transition(ctx, t.ID, a2a.TaskStateWorking, "", nil); err != nil {
		return nil, err
	}
	t, err = m.store.Transition(ctx, t.ID, a2a.TaskStateCompleted, "validation_error", func(t *a2a.Task) {
		t.Artifacts = append(t.Artifacts, a2a.Artifact{
			Name:  "error",
			Parts: []a2a.Part{a2a.TextPart(cause.Error())},
			Index: len(t.Artifacts),
		})
	})
	if err != nil {
		return nil, err
	}

	telemetry.Metrics.TasksTotal.WithLabelValues(m.card.Name, string(a2a.TaskStateCompleted)).Inc()
	logger.GetLogger().Warn("rejected unprocessable message", "task", t.ID, "reason", cause.Error())
	return t, nil
}

// taskFor creates a fresh task, or resumes the context's parked
// input_required task when the message continues a known conversation.
func (m *Manager) taskFor(ctx context.Context, msg a2a.Message) (*a2a.Task, error) {
	if msg.ContextID != "" {
		existing, err := m.store.List(ctx, msg.ContextID)
		if err != nil {
			return nil, err
		}
		for _, t := range existing {
			if t.Status.State == a2a.TaskStateInputRequired {
				return t, nil
			}
		}
	}
	return m.store.Create(ctx, msg.ContextID)
}

// settle records the execution outcome, honoring sticky cancellation: if
// the task reached a terminal state while the executor ran (a racing
// cancel), the late result is dropped and the terminal task returned as-is.
func (m *Manager) settle(ctx context.Context, taskID string, reply a2a.Message, execErr error) (*a2a.Task, error) {
	log := logger.GetLogger()

	var (
		next   a2a.TaskState
		reason string
	)
	switch {
	case execErr == nil:
		next = a2a.TaskStateCompleted
	case errors.Is(execErr, ErrInputNeeded):
		next = a2a.TaskStateInputRequired
		reason = "awaiting input"
	case errors.Is(execErr, context.DeadlineExceeded):
		next = a2a.TaskStateFailed
		reason = "execution timed out"
	default:
		next = a2a.TaskStateFailed
		reason = execErr.Error()
	}

	t, err := m.store.Transition(ctx, taskID, next, reason, func(t *a2a.Task) {
		if len(reply.Parts) == 0 {
			return
		}
		t.History = append(t.History, reply)
		if next == a2a.TaskStateCompleted {
			t.Artifacts = append(t.Artifacts, a2a.Artifact{
				Name:  "result",
				Parts: reply.Parts,
				Index: len(t.Artifacts),
			})
		}
	})
	if errors.Is(err, ErrTerminal) {
		// Cancelled (or otherwise finished) underneath us; discard.
		log.Debug("discarding late execution result", "task", taskID)
		return m.store.Get(ctx, taskID)
	}
	if err != nil {
		return nil, err
	}

	telemetry.Metrics.TasksTotal.WithLabelValues(m.card.Name, string(next)).Inc()
	if next == a2a.TaskStateFailed {
		log.Warn("task failed", "task", taskID, "reason", reason)
	} else {
		log.Debug("task settled", "task", taskID, "state", string(next))
	}

	// A failed execution still yields a well-formed terminal task; the
	// failure is recorded in the status reason, not surfaced as a
	// protocol error.
	return t, nil
}

// GetTask returns a snapshot of a task.
func (m *Manager) GetTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	return m.store.Get(ctx, taskID)
}

// CancelTask moves a task to cancelled. Cancelling an already-terminal
// task is a no-op returning the task unchanged.
func (m *Manager) CancelTask(ctx context.Context, taskID string, reason string) (*a2a.Task, error) {
	if reason == "" {
		reason = "cancelled by caller"
	}
	t, err := m.store.Transition(ctx, taskID, a2a.TaskStateCancelled, reason, nil)
	if errors.Is(err, ErrTerminal) {
		return m.store.Get(ctx, taskID)
	}
	if err != nil {
		return nil, err
	}
	telemetry.Metrics.TasksTotal.WithLabelValues(m.card.Name, string(a2a.TaskStateCancelled)).Inc()
	return t, nil
}
