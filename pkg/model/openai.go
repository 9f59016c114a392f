package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ordermesh/ordermesh/pkg/a2a"
	"github.com/ordermesh/ordermesh/pkg/httpclient"
	"github.com/ordermesh/ordermesh/pkg/tool"
)

// OpenAIConfig configures the OpenAI-compatible chat completions provider.
// Setting APIVersion and Deployment switches to Azure OpenAI URL and
// header conventions.
type OpenAIConfig struct {
	// BaseURL is the API root, e.g. https://api.openai.com/v1 or an Azure
	// resource endpoint.
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model is the model name (ignored by Azure, which routes by
	// deployment).
	Model string

	// Deployment is the Azure deployment name.
	Deployment string

	// APIVersion is the Azure api-version query parameter.
	APIVersion string
}

func (c OpenAIConfig) azure() bool { return c.APIVersion != "" }

// OpenAI is an LLM backed by an OpenAI-compatible chat completions API.
type OpenAI struct {
	cfg    OpenAIConfig
	client *httpclient.Client
}

// NewOpenAI builds the provider. Rate limits and transient upstream
// errors are retried by the underlying client.
func NewOpenAI(cfg OpenAIConfig, opts ...httpclient.Option) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.azure() && cfg.Deployment == "" {
		return nil, fmt.Errorf("openai: azure mode requires a deployment name")
	}
	if !cfg.azure() && cfg.Model == "" {
		return nil, fmt.Errorf("openai: model name is required")
	}
	return &OpenAI{cfg: cfg, client: httpclient.New(opts...)}, nil
}

func (o *OpenAI) Name() string {
	if o.cfg.azure() {
		return o.cfg.Deployment
	}
	return o.cfg.Model
}

func (o *OpenAI) Close() error { return nil }

// ============================================================================
// WIRE TYPES
// ============================================================================

type chatRequest struct {
	Model          string         `json:"model,omitempty"`
	Messages       []chatMessage  `json:"messages"`
	Tools          []chatTool     `json:"tools,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      *int           `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

// chatMessage's content is either a plain string or, when a message
// carries images, an array of chatContentPart.
type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ============================================================================
// COMPLETE
// ============================================================================

// Complete runs one chat completion call.
func (o *OpenAI) Complete(ctx context.Context, req *Request) (*Response, error) {
	body := chatRequest{
		Messages: buildChatMessages(req),
	}
	if !o.cfg.azure() {
		body.Model = o.cfg.Model
	}
	for _, def := range req.Tools {
		body.Tools = append(body.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	if cfg := req.Config; cfg != nil {
		body.Temperature = cfg.Temperature
		body.MaxTokens = cfg.MaxTokens
		if cfg.ResponseSchema != nil {
			name := cfg.ResponseSchemaName
			if name == "" {
				name = "response"
			}
			body.ResponseFormat = map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   name,
					"strict": true,
					"schema": cfg.ResponseSchema,
				},
			}
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint(), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("openai: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.cfg.azure() {
		httpReq.Header.Set("api-key", o.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, a2a.WrapError(a2a.CodeUnreachable, err, "model endpoint unreachable")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, a2a.WrapError(a2a.CodeDecode, err, "reading model response")
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, a2a.WrapError(a2a.CodeDecode, err, "decoding model response")
	}
	if parsed.Error != nil {
		return nil, a2a.NewError(a2a.CodeRuntime, "model error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return nil, a2a.NewError(a2a.CodeRuntime, "model returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if len(parsed.Choices) == 0 {
		return nil, a2a.NewError(a2a.CodeDecode, "model response has no choices")
	}

	choice := parsed.Choices[0]
	out := &Response{
		Text:         choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, a2a.WrapError(a2a.CodeDecode, err, "decoding tool call arguments for %s", tc.Function.Name)
			}
		}
		out.ToolCalls = append(out.ToolCalls, tool.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	if parsed.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return out, nil
}

func (o *OpenAI) endpoint() string {
	base := strings.TrimRight(o.cfg.BaseURL, "/")
	if o.cfg.azure() {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			base, o.cfg.Deployment, o.cfg.APIVersion)
	}
	return base + "/chat/completions"
}

// buildChatMessages flattens A2A messages onto the chat completions wire
// shape. Function calls become assistant tool_calls; function results
// become role=tool messages.
func buildChatMessages(req *Request) []chatMessage {
	var out []chatMessage
	if req.SystemInstruction != "" {
		out = append(out, chatMessage{Role: "system", Content: req.SystemInstruction})
	}

	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == a2a.MessageRoleAgent {
			role = "assistant"
		}

		var (
			text      strings.Builder
			images    []chatContentPart
			toolCalls []chatToolCall
			results   []chatMessage
		)
		for _, part := range msg.Parts {
			switch part.Type {
			case a2a.PartTypeText:
				text.WriteString(part.Text)
			case a2a.PartTypeData:
				switch {
				case strings.HasPrefix(part.MimeType, "image/"):
					images = append(images, chatContentPart{
						Type: "image_url",
						ImageURL: &chatImageURL{
							URL: fmt.Sprintf("data:%s;base64,%s",
								part.MimeType, base64.StdEncoding.EncodeToString(part.Data)),
						},
					})
				case part.MimeType == "" || part.MimeType == "application/json" ||
					strings.HasPrefix(part.MimeType, "text/"):
					// Inline structured payloads as text for the model.
					text.WriteString(string(part.Data))
				default:
					fmt.Fprintf(&text, "[%s data, base64]\n%s",
						part.MimeType, base64.StdEncoding.EncodeToString(part.Data))
				}
			case a2a.PartTypeFunctionCall:
				args, _ := json.Marshal(part.Call.Args)
				tc := chatToolCall{ID: part.Call.ID, Type: "function"}
				tc.Function.Name = part.Call.Name
				tc.Function.Arguments = string(args)
				toolCalls = append(toolCalls, tc)
			case a2a.PartTypeFunctionResult:
				content, _ := json.Marshal(part.Result.Result)
				results = append(results, chatMessage{
					Role:       "tool",
					Content:    string(content),
					ToolCallID: part.Result.ID,
				})
			}
		}

		if text.Len() > 0 || len(images) > 0 || len(toolCalls) > 0 {
			m := chatMessage{Role: role, ToolCalls: toolCalls}
			switch {
			case len(images) > 0:
				parts := make([]chatContentPart, 0, len(images)+1)
				if text.Len() > 0 {
					parts = append(parts, chatContentPart{Type: "text", Text: text.String()})
				}
				m.Content = append(parts, images...)
			case text.Len() > 0:
				m.Content = text.String()
			}
			out = append(out, m)
		}
		out = append(out, results...)
	}
	return out
}

func mapFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishReasonStop
	case "length":
		return FinishReasonLength
	case "tool_calls":
		return FinishReasonToolCalls
	case "content_filter":
		return FinishReasonFilter
	default:
		return FinishReasonStop
	}
}
