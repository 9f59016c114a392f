package agent

import (
	"context"

	"github.com/ordermesh/ordermesh/pkg/a2a"
)

// Remote adapts a resolved A2A peer to the Agent interface, so workflows
// can mix in-process and networked agents freely.
type Remote struct {
	peer *a2a.RemoteAgent
}

// NewRemote resolves the agent at baseURL and returns a proxy bound to
// the URL its card advertises.
func NewRemote(ctx context.Context, client *a2a.Client, baseURL string) (*Remote, error) {
	peer, err := client.Resolve(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	return &Remote{peer: peer}, nil
}

// Card returns the card fetched at resolution time.
func (r *Remote) Card() *a2a.AgentCard { return r.peer.Card() }

// Execute submits the message to the remote agent and unwraps the reply
// from the returned task.
func (r *Remote) Execute(ctx context.Context, _ *a2a.Task, msg a2a.Message) (a2a.Message, error) {
	task, err := r.peer.Send(ctx, msg)
	if err != nil {
		return a2a.Message{}, err
	}

	switch task.Status.State {
	case a2a.TaskStateFailed:
		return a2a.Message{}, a2a.NewError(a2a.CodeRuntime,
			"remote agent %s failed: %s", r.peer.Card().Name, task.Status.Reason)
	case a2a.TaskStateCancelled:
		return a2a.Message{}, a2a.NewError(a2a.CodeRuntime,
			"remote agent %s cancelled the task", r.peer.Card().Name)
	}

	reply, ok := a2a.LastAgentMessage(task.History)
	if !ok {
		return a2a.Message{}, a2a.NewError(a2a.CodeDecode,
			"remote agent %s returned no reply", r.peer.Card().Name)
	}
	return reply, nil
}
