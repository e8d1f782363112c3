// Package protocol defines the wire-level names shared between the server
// and its clients (SSE consumers, the WebSocket event feed, webhook adapters).
package protocol

// ProtocolVersion is bumped when the event wire format changes incompatibly.
const ProtocolVersion = 1

// Turn event types. Each event in a turn's trace is a tagged JSON object
// `{"type":"<name>",...}`; over SSE the same objects are framed as
// `event: <name>\ndata: <json>\n\n`.
const (
	EventSecurityProfile  = "security_profile"
	EventProviderStart    = "provider_start"
	EventProviderFallback = "provider_fallback"
	EventProviderDone     = "provider_done"
	EventToolCall         = "tool_call"
	EventToolResult       = "tool_result"
	EventTaskArtifact     = "task_artifact"
	EventContextTrim      = "context_trim"
	EventAssistantMessage = "assistant_message"
	EventPermission       = "permission"
	EventError            = "error"

	// EventDone is the SSE terminal frame; it never appears in persisted traces.
	EventDone = "done"
)

// Capability bit names used in security_profile payloads and request toggles.
const (
	CapShell     = "shell"
	CapWrite     = "write"
	CapBrowser   = "browser"
	CapDangerous = "dangerous"
)

// Security presets accepted by POST /chat.
const (
	PresetSafe     = "safe"
	PresetStandard = "standard"
	PresetPower    = "power"
	PresetCustom   = "custom"
)
