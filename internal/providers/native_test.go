package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNativeComplete(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("auth header = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "fs_read", "arguments": "{\"path\":\"a.txt\"}"}}]
			}, "finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p := NewNative(srv.URL, "key-123", "gpt-test")
	resp, err := p.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "read a.txt"}},
		Tools: []ToolDefinition{{
			Name:        "fs_read",
			Description: "read a file",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "fs_read" {
		t.Fatalf("normalized call = %+v", tc)
	}
	var args map[string]string
	if err := json.Unmarshal(tc.Args, &args); err != nil || args["path"] != "a.txt" {
		t.Fatalf("args = %s", tc.Args)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Fatalf("usage = %+v", resp.Usage)
	}

	// Default model fills in, tools ride as function descriptors.
	if captured["model"] != "gpt-test" {
		t.Fatalf("request model = %v", captured["model"])
	}
	toolsSent, _ := captured["tools"].([]any)
	if len(toolsSent) != 1 {
		t.Fatalf("tools sent = %v", captured["tools"])
	}
}

func TestNativeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "auth"}}`))
	}))
	defer srv.Close()

	p := NewNative(srv.URL, "nope", "m")
	if _, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "x"}}}); err == nil {
		t.Fatal("api error must surface")
	}
}

func TestNativeInvalidArgsNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"tool_calls":[
			{"id":"c","type":"function","function":{"name":"t","arguments":"not json"}}
		]}}]}`))
	}))
	defer srv.Close()

	p := NewNative(srv.URL, "", "m")
	resp, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "x"}}})
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.ToolCalls[0].Args) != "{}" {
		t.Fatalf("malformed args must normalize to {}, got %s", resp.ToolCalls[0].Args)
	}
}

func TestSetSelection(t *testing.T) {
	native := NewMock().WithName("native", Capabilities{Docs: true, Attachments: true})
	codex := NewCodex("codex", nil, "")
	set := NewSet("native", native, codex)

	if p, err := set.Get(""); err != nil || p.Name() != "native" {
		t.Fatalf("default selection = %v, %v", p, err)
	}
	if p, err := set.Get("codex"); err != nil || p.Name() != "codex" {
		t.Fatalf("codex selection = %v, %v", p, err)
	}
	if !codex.Capabilities().Unsandboxed {
		t.Fatal("codex must declare it can run unsandboxed")
	}
	if native.Capabilities().Unsandboxed {
		t.Fatal("native must not declare unsandboxed")
	}
	if _, err := set.Get("mystery"); err == nil {
		t.Fatal("unknown provider accepted")
	}
}
