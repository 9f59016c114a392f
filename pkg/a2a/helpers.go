package a2a

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// NewUserMessage builds a user-role message carrying a single text part.
func NewUserMessage(text string) Message {
	return Message{
		Role:      MessageRoleUser,
		Parts:     []Part{TextPart(text)},
		MessageID: uuid.NewString(),
	}
}

// NewAgentMessage builds an agent-role message from the given parts.
func NewAgentMessage(parts ...Part) Message {
	return Message{
		Role:      MessageRoleAgent,
		Parts:     parts,
		MessageID: uuid.NewString(),
	}
}

// ExtractText returns the first text part of a message, or "".
func ExtractText(msg Message) string {
	for _, part := range msg.Parts {
		if part.Type == PartTypeText {
			return part.Text
		}
	}
	return ""
}

// ExtractAllText concatenates every text part with newlines.
func ExtractAllText(msg Message) string {
	var texts []string
	for _, part := range msg.Parts {
		if part.Type == PartTypeText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ExtractData returns the first data part matching mimeType, or nil. An
// empty mimeType matches any data part.
func ExtractData(msg Message, mimeType string) []byte {
	for _, part := range msg.Parts {
		if part.Type == PartTypeData && (mimeType == "" || part.MimeType == mimeType) {
			return part.Data
		}
	}
	return nil
}

// DecodeDataPart unmarshals the first application/json data part into v.
func DecodeDataPart(msg Message, v any) error {
	raw := ExtractData(msg, "application/json")
	if raw == nil {
		return NewError(CodeValidation, "message has no application/json data part")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return WrapError(CodeDecode, err, "decoding data part")
	}
	return nil
}

// LastAgentMessage returns the most recent agent-role message in history.
func LastAgentMessage(history []Message) (Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == MessageRoleAgent {
			return history[i], true
		}
	}
	return Message{}, false
}

// TaskOutput extracts the final textual output of a terminal task: the
// text parts of its last artifact, falling back to the last agent message
// in history.
func TaskOutput(t *Task) string {
	if t == nil {
		return ""
	}
	if n := len(t.Artifacts); n > 0 {
		if out := ExtractAllText(Message{Parts: t.Artifacts[n-1].Parts}); out != "" {
			return out
		}
	}
	if msg, ok := LastAgentMessage(t.History); ok {
		return ExtractAllText(msg)
	}
	return ""
}
