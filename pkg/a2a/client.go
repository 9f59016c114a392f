package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ============================================================================
// A2A CLIENT - HTTP+JSON Transport Client
// ============================================================================

// Client talks the A2A HTTP+JSON transport to a remote agent.
type Client struct {
	httpClient *http.Client
}

// ClientConfig configures the A2A client.
type ClientConfig struct {
	Timeout time.Duration
}

// NewClient creates an A2A protocol client. A zero config gets a 60s
// request timeout.
func NewClient(cfg *ClientConfig) *Client {
	timeout := 60 * time.Second
	if cfg != nil && cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ============================================================================
// DISCOVERY
// ============================================================================

// ResolveCard fetches an agent's capability card from its well-known
// discovery path. baseURL is the agent's root URL without the path.
func (c *Client) ResolveCard(ctx context.Context, baseURL string) (*AgentCard, error) {
	cardURL := strings.TrimRight(baseURL, "/") + WellKnownCardPath

	var card AgentCard
	if err := c.getJSON(ctx, cardURL, &card); err != nil {
		return nil, err
	}
	if card.URL == "" {
		card.URL = strings.TrimRight(baseURL, "/")
	}
	return &card, nil
}

// Resolve fetches an agent's card and returns a proxy bound to the URL the
// card advertises.
func (c *Client) Resolve(ctx context.Context, baseURL string) (*RemoteAgent, error) {
	card, err := c.ResolveCard(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	return &RemoteAgent{client: c, card: card}, nil
}

// ============================================================================
// MESSAGE SENDING
// ============================================================================

// SendMessage submits a message to the agent at agentURL and returns the
// resulting task. The server drives the task to a terminal state before
// responding, so no polling is needed on the happy path.
func (c *Client) SendMessage(ctx context.Context, agentURL string, msg Message) (*Task, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var task Task
	if err := c.postJSON(ctx, strings.TrimRight(agentURL, "/")+"/", SendParams{Message: msg}, &task); err != nil {
		return nil, err
	}

	// A non-terminal response means the peer went async anyway; poll.
	if !task.Status.State.IsTerminal() && task.Status.State != TaskStateInputRequired {
		return c.waitForTask(ctx, agentURL, task.ID)
	}
	return &task, nil
}

// SendText submits a single text part as a user message.
func (c *Client) SendText(ctx context.Context, agentURL string, text string) (*Task, error) {
	return c.SendMessage(ctx, agentURL, NewUserMessage(text))
}

// ============================================================================
// TASK OPERATIONS
// ============================================================================

// GetTask fetches the current state of a task.
func (c *Client) GetTask(ctx context.Context, agentURL string, taskID string) (*Task, error) {
	var task Task
	url := fmt.Sprintf("%s/tasks/%s", strings.TrimRight(agentURL, "/"), taskID)
	if err := c.getJSON(ctx, url, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask asks the agent to cancel a task. Cancelling a task already in
// a terminal state returns the task unchanged.
func (c *Client) CancelTask(ctx context.Context, agentURL string, taskID string, reason string) (*Task, error) {
	var task Task
	url := fmt.Sprintf("%s/tasks/%s/cancel", strings.TrimRight(agentURL, "/"), taskID)
	if err := c.postJSON(ctx, url, CancelParams{Reason: reason}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// waitForTask polls until the task reaches a resting state.
func (c *Client) waitForTask(ctx context.Context, agentURL string, taskID string) (*Task, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	deadline := time.After(5 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return nil, classifyTransportError(ctx.Err())
		case <-deadline:
			return nil, NewError(CodeTimeout, "task %s did not reach a terminal state", taskID)
		case <-ticker.C:
			task, err := c.GetTask(ctx, agentURL, taskID)
			if err != nil {
				return nil, err
			}
			if task.Status.State.IsTerminal() || task.Status.State == TaskStateInputRequired {
				return task, nil
			}
		}
	}
}

// ============================================================================
// TRANSPORT PLUMBING
// ============================================================================

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapError(CodeRuntime, err, "building request")
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return WrapError(CodeRuntime, err, "encoding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return WrapError(CodeRuntime, err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(CodeDecode, err, "decoding response from %s", req.URL.Host)
	}
	return nil
}

// classifyTransportError maps network failures onto the protocol's error
// codes: deadline overruns become timeouts, everything else unreachable.
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(CodeTimeout, err, "request deadline exceeded")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return WrapError(CodeTimeout, err, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return WrapError(CodeRuntime, err, "request cancelled")
	}
	return WrapError(CodeUnreachable, err, "agent unreachable")
}

// errorFromResponse reconstructs a protocol error from a non-2xx response.
// Peers respond with the {code, message} envelope; anything else becomes a
// runtime error carrying the status line.
func errorFromResponse(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var envelope struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Code != "" {
		return &Error{Code: envelope.Code, Message: envelope.Message}
	}

	code := CodeRuntime
	switch resp.StatusCode {
	case http.StatusBadRequest:
		code = CodeValidation
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusGatewayTimeout:
		code = CodeTimeout
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		code = CodeUnreachable
	}
	return NewError(code, "%s: %s", resp.Status, strings.TrimSpace(string(raw)))
}

// ============================================================================
// REMOTE AGENT PROXY
// ============================================================================

// RemoteAgent is a resolved peer: its card plus a client bound to the URL
// the card advertises.
type RemoteAgent struct {
	client *Client
	card   *AgentCard
}

// Card returns the card fetched at resolution time.
func (r *RemoteAgent) Card() *AgentCard { return r.card }

// Send submits a message to the remote agent.
func (r *RemoteAgent) Send(ctx context.Context, msg Message) (*Task, error) {
	return r.client.SendMessage(ctx, r.card.URL, msg)
}

// Cancel requests cancellation of a task on the remote agent.
func (r *RemoteAgent) Cancel(ctx context.Context, taskID string, reason string) (*Task, error) {
	return r.client.CancelTask(ctx, r.card.URL, taskID, reason)
}
