package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordermesh/ordermesh/pkg/a2a"
)

func managerCard() *a2a.AgentCard {
	return &a2a.AgentCard{Name: "test-agent", Version: "0.0.1"}
}

func TestManagerCompletesTask(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, tk *a2a.Task, msg a2a.Message) (a2a.Message, error) {
		return a2a.NewAgentMessage(a2a.TextPart("done")), nil
	})
	mgr := NewManager(managerCard(), NewMemoryStore(), exec, ManagerConfig{})

	got, err := mgr.OnMessage(context.Background(), a2a.NewUserMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
	assert.Equal(t, "done", a2a.TaskOutput(got))

	// Completion captures the reply as the result artifact.
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, "result", got.Artifacts[0].Name)
	assert.Equal(t, 0, got.Artifacts[0].Index)
	assert.Equal(t, "done", a2a.ExtractText(a2a.Message{Parts: got.Artifacts[0].Parts}))
}

func TestManagerExecutorFailure(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, tk *a2a.Task, msg a2a.Message) (a2a.Message, error) {
		return a2a.Message{}, a2a.NewError(a2a.CodeRuntime, "model quota exhausted")
	})
	mgr := NewManager(managerCard(), NewMemoryStore(), exec, ManagerConfig{})

	got, err := mgr.OnMessage(context.Background(), a2a.NewUserMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateFailed, got.Status.State)
	assert.Contains(t, got.Status.Reason, "model quota exhausted")
}

func TestManagerExecutionTimeout(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, tk *a2a.Task, msg a2a.Message) (a2a.Message, error) {
		<-ctx.Done()
		return a2a.Message{}, ctx.Err()
	})
	mgr := NewManager(managerCard(), NewMemoryStore(), exec, ManagerConfig{ExecTimeout: 20 * time.Millisecond})

	got, err := mgr.OnMessage(context.Background(), a2a.NewUserMessage("slow"))
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateFailed, got.Status.State)
	assert.Equal(t, "execution timed out", got.Status.Reason)
}

func TestManagerInputRequiredAndResume(t *testing.T) {
	calls := 0
	exec := ExecutorFunc(func(ctx context.Context, tk *a2a.Task, msg a2a.Message) (a2a.Message, error) {
		calls++
		if calls == 1 {
			return a2a.NewAgentMessage(a2a.TextPart("which department?")), ErrInputNeeded
		}
		return a2a.NewAgentMessage(a2a.TextPart("all set")), nil
	})
	mgr := NewManager(managerCard(), NewMemoryStore(), exec, ManagerConfig{})

	first := a2a.NewUserMessage("create an order")
	first.ContextID = "conv-1"
	parked, err := mgr.OnMessage(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateInputRequired, parked.Status.State)
	assert.Equal(t, "awaiting input", parked.Status.Reason)

	// The follow-up in the same context resumes the parked task rather
	// than opening a new one.
	second := a2a.NewUserMessage("Marketing")
	second.ContextID = "conv-1"
	resumed, err := mgr.OnMessage(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, parked.ID, resumed.ID)
	assert.Equal(t, a2a.TaskStateCompleted, resumed.Status.State)
	assert.Equal(t, "all set", a2a.TaskOutput(resumed))
}

func TestManagerStickyCancellation(t *testing.T) {
	started := make(chan string)
	release := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, tk *a2a.Task, msg a2a.Message) (a2a.Message, error) {
		started <- tk.ID
		<-release
		return a2a.NewAgentMessage(a2a.TextPart("too late")), nil
	})
	mgr := NewManager(managerCard(), NewMemoryStore(), exec, ManagerConfig{})

	type result struct {
		task *a2a.Task
		err  error
	}
	done := make(chan result, 1)
	go func() {
		tk, err := mgr.OnMessage(context.Background(), a2a.NewUserMessage("go"))
		done <- result{tk, err}
	}()

	taskID := <-started
	cancelled, err := mgr.CancelTask(context.Background(), taskID, "operator abort")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCancelled, cancelled.Status.State)
	assert.Equal(t, "operator abort", cancelled.Status.Reason)

	// Release the executor; its late result must be discarded, not allowed
	// to resurrect the cancelled task.
	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, a2a.TaskStateCancelled, res.task.Status.State)
	assert.Equal(t, "operator abort", res.task.Status.Reason)
	assert.Empty(t, a2a.TaskOutput(res.task))
}

func TestManagerCancelIdempotentOnTerminal(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, tk *a2a.Task, msg a2a.Message) (a2a.Message, error) {
		return a2a.NewAgentMessage(a2a.TextPart("ok")), nil
	})
	mgr := NewManager(managerCard(), NewMemoryStore(), exec, ManagerConfig{})

	finished, err := mgr.OnMessage(context.Background(), a2a.NewUserMessage("go"))
	require.NoError(t, err)
	require.Equal(t, a2a.TaskStateCompleted, finished.Status.State)

	got, err := mgr.CancelTask(context.Background(), finished.ID, "")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
}

func TestManagerRejectsEmptyMessage(t *testing.T) {
	mgr := NewManager(managerCard(), NewMemoryStore(), ExecutorFunc(nil), ManagerConfig{})

	tk, err := mgr.OnMessage(context.Background(), a2a.Message{Role: a2a.MessageRoleUser})
	require.NoError(t, err)

	// An unprocessable message still yields a well-formed terminal task,
	// with the complaint delivered as a textual artifact.
	assert.Equal(t, a2a.TaskStateCompleted, tk.Status.State)
	assert.Equal(t, "validation_error", tk.Status.Reason)
	require.Len(t, tk.Artifacts, 1)
	assert.Contains(t, a2a.ExtractText(a2a.Message{Parts: tk.Artifacts[0].Parts}), "at least one part")
}

func TestManagerRejectsFunctionOnlyMessage(t *testing.T) {
	executed := false
	exec := ExecutorFunc(func(ctx context.Context, tk *a2a.Task, msg a2a.Message) (a2a.Message, error) {
		executed = true
		return a2a.NewAgentMessage(a2a.TextPart("ok")), nil
	})
	mgr := NewManager(managerCard(), NewMemoryStore(), exec, ManagerConfig{})

	msg := a2a.Message{Role: a2a.MessageRoleUser, Parts: []a2a.Part{{
		Type:   a2a.PartTypeFunctionResult,
		Result: &a2a.FunctionResult{ID: "c1", Name: "lookup"},
	}}}
	tk, err := mgr.OnMessage(context.Background(), msg)
	require.NoError(t, err)

	// No text or data to process: the message is settled as a terminal
	// task without ever reaching the executor.
	assert.False(t, executed)
	assert.Equal(t, a2a.TaskStateCompleted, tk.Status.State)
	assert.Equal(t, "validation_error", tk.Status.Reason)
	require.Len(t, tk.Artifacts, 1)
	assert.Contains(t, a2a.ExtractText(a2a.Message{Parts: tk.Artifacts[0].Parts}), "text or data part")
}
