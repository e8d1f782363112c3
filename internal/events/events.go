// Package events defines the turn event trace: a closed set of tagged event
// types, an ordered recorder, and the tagged-JSON codec shared by history
// snapshots, buffered responses, and the SSE/WebSocket encoders.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/jetlinks-ai/aistaff/internal/capability"
	"github.com/jetlinks-ai/aistaff/pkg/protocol"
)

// Event is the sealed interface over all trace event variants.
type Event interface {
	Type() string
}

type SecurityProfile struct {
	Preset    string         `json:"preset"`
	Requested capability.Set `json:"requested"`
	Effective capability.Set `json:"effective"`
}

func (SecurityProfile) Type() string { return protocol.EventSecurityProfile }

type ProviderStart struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (ProviderStart) Type() string { return protocol.EventProviderStart }

type ProviderFallback struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Requested []string `json:"requested"`
}

func (ProviderFallback) Type() string { return protocol.EventProviderFallback }

type ProviderDone struct {
	ElapsedMS int64 `json:"elapsed_ms"`
}

func (ProviderDone) Type() string { return protocol.EventProviderDone }

type ToolCall struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

func (ToolCall) Type() string { return protocol.EventToolCall }

type ToolResult struct {
	Tool   string          `json:"tool"`
	Result json.RawMessage `json:"result"`

	// Error mirrors the error string inside Result for callers that need it
	// without re-parsing; it is not serialized separately.
	Error string `json:"-"`
}

func (ToolResult) Type() string { return protocol.EventToolResult }

// NewToolResult builds a success tool_result event from any serializable value.
func NewToolResult(tool string, v any) ToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"error":%q}`, "unserializable tool result"))
	}
	return ToolResult{Tool: tool, Result: b}
}

// NewToolError builds a failed tool_result event. Tool failures are events,
// never transport errors.
func NewToolError(tool, msg string) ToolResult {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return ToolResult{Tool: tool, Result: b, Error: msg}
}

type TaskArtifact struct {
	Path   string `json:"path"`
	TaskID string `json:"task_id"`
	FileID string `json:"file_id,omitempty"`
	URL    string `json:"url,omitempty"`
}

func (TaskArtifact) Type() string { return protocol.EventTaskArtifact }

type ContextTrim struct {
	DroppedMessages int `json:"dropped_messages"`
	DroppedChars    int `json:"dropped_chars"`
}

func (ContextTrim) Type() string { return protocol.EventContextTrim }

type AssistantMessage struct {
	Content string `json:"content"`
}

func (AssistantMessage) Type() string { return protocol.EventAssistantMessage }

type Permission struct {
	Capability string `json:"capability"`
	Granted    bool   `json:"granted"`
	Reason     string `json:"reason,omitempty"`
}

func (Permission) Type() string { return protocol.EventPermission }

type Error struct {
	Message string `json:"message"`
}

func (Error) Type() string { return protocol.EventError }

// Marshal serializes an event as a tagged object {"type":"...",...}.
func Marshal(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	tag := fmt.Sprintf(`{"type":%q`, e.Type())
	if len(body) <= 2 { // "{}"
		return []byte(tag + "}"), nil
	}
	return append([]byte(tag+","), body[1:]...), nil
}

// MarshalAll serializes an event list as a JSON array of tagged objects.
// This is the representation stored in chat_messages.events_json and returned
// from POST /chat.
func MarshalAll(evts []Event) ([]byte, error) {
	buf := []byte{'['}
	for i, e := range evts {
		b, err := Marshal(e)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, b...)
	}
	return append(buf, ']'), nil
}

// Unmarshal decodes one tagged event object.
func Unmarshal(data []byte) (Event, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decode event tag: %w", err)
	}
	decode := func(dst Event) (Event, error) {
		if err := json.Unmarshal(data, dst); err != nil {
			return nil, fmt.Errorf("decode %s event: %w", tag.Type, err)
		}
		return dst, nil
	}
	switch tag.Type {
	case protocol.EventSecurityProfile:
		e, err := decode(&SecurityProfile{})
		return deref(e), err
	case protocol.EventProviderStart:
		e, err := decode(&ProviderStart{})
		return deref(e), err
	case protocol.EventProviderFallback:
		e, err := decode(&ProviderFallback{})
		return deref(e), err
	case protocol.EventProviderDone:
		e, err := decode(&ProviderDone{})
		return deref(e), err
	case protocol.EventToolCall:
		e, err := decode(&ToolCall{})
		return deref(e), err
	case protocol.EventToolResult:
		e, err := decode(&ToolResult{})
		return deref(e), err
	case protocol.EventTaskArtifact:
		e, err := decode(&TaskArtifact{})
		return deref(e), err
	case protocol.EventContextTrim:
		e, err := decode(&ContextTrim{})
		return deref(e), err
	case protocol.EventAssistantMessage:
		e, err := decode(&AssistantMessage{})
		return deref(e), err
	case protocol.EventPermission:
		e, err := decode(&Permission{})
		return deref(e), err
	case protocol.EventError:
		e, err := decode(&Error{})
		return deref(e), err
	default:
		return nil, fmt.Errorf("unknown event type %q", tag.Type)
	}
}

// deref unwraps the pointer decode targets so variants stay comparable values.
func deref(e Event) Event {
	switch v := e.(type) {
	case *SecurityProfile:
		return *v
	case *ProviderStart:
		return *v
	case *ProviderFallback:
		return *v
	case *ProviderDone:
		return *v
	case *ToolCall:
		return *v
	case *ToolResult:
		return *v
	case *TaskArtifact:
		return *v
	case *ContextTrim:
		return *v
	case *AssistantMessage:
		return *v
	case *Permission:
		return *v
	case *Error:
		return *v
	default:
		return e
	}
}

// UnmarshalAll decodes an events_json array.
func UnmarshalAll(data []byte) ([]Event, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode event array: %w", err)
	}
	out := make([]Event, 0, len(raws))
	for _, r := range raws {
		e, err := Unmarshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
