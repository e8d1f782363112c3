package events

import (
	"encoding/json"
	"testing"

	"github.com/jetlinks-ai/aistaff/internal/capability"
)

func TestMarshalTagged(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  map[string]any
	}{
		{
			name:  "provider_start",
			event: ProviderStart{Provider: "native", Model: "gpt-4o"},
			want:  map[string]any{"type": "provider_start", "provider": "native", "model": "gpt-4o"},
		},
		{
			name:  "provider_fallback",
			event: ProviderFallback{From: "opencode", To: "native", Requested: []string{"docs"}},
			want:  map[string]any{"type": "provider_fallback", "from": "opencode", "to": "native"},
		},
		{
			name:  "error",
			event: Error{Message: "boom"},
			want:  map[string]any{"type": "error", "message": "boom"},
		},
		{
			name:  "tool error result",
			event: NewToolError("fs_write", "disabled"),
			want:  map[string]any{"type": "tool_result", "tool": "fs_write"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.event)
			if err != nil {
				t.Fatal(err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("tagged output is not valid JSON: %v\n%s", err, data)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("field %q = %v, want %v (full: %s)", k, got[k], v, data)
				}
			}
		})
	}
}

func TestToolErrorShape(t *testing.T) {
	data, err := Marshal(NewToolError("fs_write", "disabled"))
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Result struct {
			Error string `json:"error"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Result.Error != "disabled" {
		t.Fatalf("tool_result error = %q, want disabled (full: %s)", got.Result.Error, data)
	}
}

func TestRoundTrip(t *testing.T) {
	evts := []Event{
		SecurityProfile{
			Preset:    "safe",
			Requested: capability.Set{Write: true},
			Effective: capability.Set{},
		},
		ProviderStart{Provider: "native", Model: "m"},
		ToolCall{Tool: "fs_read", Args: json.RawMessage(`{"path":"a.txt"}`)},
		NewToolResult("fs_read", map[string]string{"text": "hi"}),
		ContextTrim{DroppedMessages: 3, DroppedChars: 900},
		TaskArtifact{Path: "quote.xlsx", TaskID: "sess", FileID: "abc.xlsx"},
		AssistantMessage{Content: "done"},
		ProviderDone{ElapsedMS: 42},
	}

	data, err := MarshalAll(evts)
	if err != nil {
		t.Fatal(err)
	}

	back, err := UnmarshalAll(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != len(evts) {
		t.Fatalf("round trip length %d, want %d", len(back), len(evts))
	}
	for i := range evts {
		if back[i].Type() != evts[i].Type() {
			t.Fatalf("event %d type %q, want %q (order must survive)", i, back[i].Type(), evts[i].Type())
		}
	}

	sp, ok := back[0].(SecurityProfile)
	if !ok {
		t.Fatalf("event 0 decoded as %T", back[0])
	}
	if !sp.Requested.Write || sp.Effective.Write {
		t.Fatalf("capability sets did not survive: %+v", sp)
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"type":"mystery"}`)); err == nil {
		t.Fatal("unknown event types must fail loudly")
	}
}

func TestTraceOrderAndSink(t *testing.T) {
	var seen []string
	tr := NewTrace(func(e Event) { seen = append(seen, e.Type()) })

	tr.Emit(ProviderStart{Provider: "native"})
	tr.Emit(AssistantMessage{Content: "x"})
	tr.Emit(ProviderDone{ElapsedMS: 1})

	got := tr.Events()
	if len(got) != 3 || tr.Len() != 3 {
		t.Fatalf("trace holds %d events", len(got))
	}
	for i, want := range []string{"provider_start", "assistant_message", "provider_done"} {
		if got[i].Type() != want || seen[i] != want {
			t.Fatalf("position %d: trace %q sink %q want %q", i, got[i].Type(), seen[i], want)
		}
	}
}
