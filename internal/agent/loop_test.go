package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/artifacts"
	"github.com/jetlinks-ai/aistaff/internal/capability"
	"github.com/jetlinks-ai/aistaff/internal/docgen"
	"github.com/jetlinks-ai/aistaff/internal/events"
	"github.com/jetlinks-ai/aistaff/internal/providers"
	"github.com/jetlinks-ai/aistaff/internal/tools"
	"github.com/jetlinks-ai/aistaff/pkg/protocol"
)

type memIndex struct {
	mu   sync.Mutex
	recs map[string]*artifacts.Record
}

func newMemIndex() *memIndex { return &memIndex{recs: make(map[string]*artifacts.Record)} }

func (m *memIndex) InsertFile(ctx context.Context, rec *artifacts.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.recs[rec.FileID] = &cp
	return nil
}

func (m *memIndex) GetFile(ctx context.Context, fileID string) (*artifacts.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[fileID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memIndex) DeleteFile(ctx context.Context, fileID string) error { return nil }

func (m *memIndex) ListFileIDs(ctx context.Context) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func testToolCtx(t *testing.T, caps capability.Set) (*tools.Context, *memIndex) {
	t.Helper()
	idx := newMemIndex()
	st, err := artifacts.New(t.TempDir(), idx, artifacts.NewTokenSigner([]byte("s")))
	if err != nil {
		t.Fatal(err)
	}
	return &tools.Context{
		TeamID:             "team-1",
		SessionID:          "sess-1",
		Root:               t.TempDir(),
		Caps:               caps,
		Artifacts:          st,
		Renderer:           docgen.NewOOXML(),
		MaxFileReadChars:   10_000,
		MaxToolOutputChars: 10_000,
	}, idx
}

func newLoop(mock *providers.Mock, others ...providers.Provider) *Loop {
	return &Loop{
		Providers: providers.NewSet("native", mock.WithName("native", providers.Capabilities{Docs: true, Attachments: true}), others...),
		Registry:  tools.NewCatalog(),
		MaxSteps:  6,
	}
}

func userTurn(tc *tools.Context, profile capability.Profile) *Turn {
	return &Turn{
		SessionID: "sess-1",
		Messages: []providers.Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "hi"},
		},
		ToolCtx: tc,
		Profile: profile,
	}
}

func eventTypes(tr *events.Trace) []string {
	var out []string
	for _, e := range tr.Events() {
		out = append(out, e.Type())
	}
	return out
}

func TestRunPlainAnswer(t *testing.T) {
	mock := providers.NewMock(&providers.Response{Content: "hello there"})
	loop := newLoop(mock)
	tc, _ := testToolCtx(t, capability.Set{})
	tr := events.NewTrace(nil)

	out, err := loop.Run(context.Background(), userTurn(tc, capability.Profile{Preset: protocol.PresetSafe}), tr)
	if err != nil {
		t.Fatal(err)
	}
	if out.AssistantText != "hello there" || out.Steps != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	want := []string{"security_profile", "provider_start", "assistant_message", "provider_done"}
	got := eventTypes(tr)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if len(out.NewMessages) != 1 || out.NewMessages[0].Role != "assistant" {
		t.Fatalf("new messages = %+v", out.NewMessages)
	}
}

// Scenario: safe preset with a full ceiling — a model-initiated fs_write
// comes back as a disabled tool_result, the loop continues, no artifact
// appears.
func TestRunSafePresetDisablesWrite(t *testing.T) {
	writeArgs, _ := json.Marshal(map[string]string{"path": "x.txt", "content": "data"})
	mock := providers.NewMock(
		&providers.Response{ToolCalls: []providers.ToolCall{{ID: "c1", Name: "fs_write", Args: writeArgs}}},
		&providers.Response{Content: "could not write"},
	)
	loop := newLoop(mock)
	tc, idx := testToolCtx(t, capability.Set{}) // effective empty
	tr := events.NewTrace(nil)

	out, err := loop.Run(context.Background(), userTurn(tc, capability.Profile{Preset: protocol.PresetSafe}), tr)
	if err != nil {
		t.Fatal(err)
	}
	if out.AssistantText != "could not write" {
		t.Fatalf("assistant = %q", out.AssistantText)
	}

	var sawDisabled bool
	for _, e := range tr.Events() {
		if res, ok := e.(events.ToolResult); ok && res.Tool == "fs_write" {
			if res.Error != "disabled" {
				t.Fatalf("tool_result error = %q, want disabled", res.Error)
			}
			sawDisabled = true
		}
	}
	if !sawDisabled {
		t.Fatal("no tool_result for the disabled fs_write")
	}
	if _, err := os.Stat(filepath.Join(tc.Root, "x.txt")); !os.IsNotExist(err) {
		t.Fatal("file written despite empty capability set")
	}
	if len(idx.recs) != 0 {
		t.Fatal("attachment row inserted despite empty capability set")
	}
	// The model saw the error as a tool message and recovered.
	second := mock.Calls[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" {
		t.Fatalf("tool message not fed back: %+v", last)
	}
}

// Scenario: provider=opencode with a docs-needing toolset falls back to
// native once, at the start of the turn.
func TestRunProviderFallback(t *testing.T) {
	mock := providers.NewMock(&providers.Response{Content: "native answered"})
	opencode := providers.NewMock(&providers.Response{Content: "should not run"}).
		WithName("opencode", providers.Capabilities{})
	loop := newLoop(mock, opencode)
	tc, _ := testToolCtx(t, capability.Set{})
	tr := events.NewTrace(nil)

	turn := userTurn(tc, capability.Profile{Preset: protocol.PresetStandard})
	turn.Provider = "opencode"
	out, err := loop.Run(context.Background(), turn, tr)
	if err != nil {
		t.Fatal(err)
	}
	if out.AssistantText != "native answered" {
		t.Fatalf("assistant = %q (fallback did not route to native)", out.AssistantText)
	}

	var fb *events.ProviderFallback
	for _, e := range tr.Events() {
		if f, ok := e.(events.ProviderFallback); ok {
			fb = &f
		}
		if ps, ok := e.(events.ProviderStart); ok && ps.Provider != "native" {
			t.Fatalf("provider_start names %q after fallback", ps.Provider)
		}
	}
	if fb == nil || fb.From != "opencode" || fb.To != "native" {
		t.Fatalf("fallback event = %+v", fb)
	}
	found := false
	for _, r := range fb.Requested {
		if r == "docs" {
			found = true
		}
	}
	if !found {
		t.Fatalf("fallback requested = %v, want docs", fb.Requested)
	}
}

func TestRunGeneratorProducesArtifact(t *testing.T) {
	quoteArgs, _ := json.Marshal(map[string]any{
		"seller": "ACME", "buyer": "Globex", "currency": "CNY",
		"items": []map[string]any{{"name": "x", "quantity": 2, "unit_price": 10}},
	})
	mock := providers.NewMock(
		&providers.Response{ToolCalls: []providers.ToolCall{{ID: "c1", Name: "doc_quote_xlsx_create", Args: quoteArgs}}},
		&providers.Response{Content: "here is your quote"},
	)
	loop := newLoop(mock)
	tc, idx := testToolCtx(t, capability.Set{}) // generators need no write bit
	tr := events.NewTrace(nil)

	out, err := loop.Run(context.Background(), userTurn(tc, capability.Profile{Preset: protocol.PresetSafe}), tr)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(out.Artifacts))
	}
	if len(idx.recs) != 1 {
		t.Fatal("artifact row missing")
	}

	var sawArtifactEvent bool
	for _, e := range tr.Events() {
		if ta, ok := e.(events.TaskArtifact); ok {
			if ta.FileID != out.Artifacts[0].FileID {
				t.Fatalf("task_artifact file id %q != %q", ta.FileID, out.Artifacts[0].FileID)
			}
			sawArtifactEvent = true
		}
	}
	if !sawArtifactEvent {
		t.Fatal("no task_artifact event emitted")
	}
}

func TestRunUnknownTool(t *testing.T) {
	mock := providers.NewMock(
		&providers.Response{ToolCalls: []providers.ToolCall{{ID: "c1", Name: "fabricated_tool", Args: json.RawMessage(`{}`)}}},
		&providers.Response{Content: "ok"},
	)
	loop := newLoop(mock)
	tc, _ := testToolCtx(t, capability.Set{})
	tr := events.NewTrace(nil)

	if _, err := loop.Run(context.Background(), userTurn(tc, capability.Profile{Preset: protocol.PresetSafe}), tr); err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, e := range tr.Events() {
		if res, ok := e.(events.ToolResult); ok && res.Tool == "fabricated_tool" {
			if res.Error != "unknown tool" {
				t.Fatalf("error = %q", res.Error)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("unknown tool did not produce a tool_result")
	}
}

func TestRunMaxSteps(t *testing.T) {
	listArgs, _ := json.Marshal(map[string]any{"path": "."})
	// Always asks for another tool round.
	mock := providers.NewMock(&providers.Response{
		ToolCalls: []providers.ToolCall{{ID: "c", Name: "fs_list", Args: listArgs}},
	})
	loop := newLoop(mock)
	loop.MaxSteps = 3
	tc, _ := testToolCtx(t, capability.Set{})
	tr := events.NewTrace(nil)

	out, err := loop.Run(context.Background(), userTurn(tc, capability.Profile{Preset: protocol.PresetSafe}), tr)
	if err != nil {
		t.Fatal(err)
	}
	if out.Steps != 3 {
		t.Fatalf("steps = %d, want 3", out.Steps)
	}
	var sawStop bool
	for _, e := range tr.Events() {
		if ev, ok := e.(events.Error); ok && strings.Contains(ev.Message, "stopped after 3 steps") {
			sawStop = true
		}
	}
	if !sawStop {
		t.Fatal("missing stopped-after-max-steps error event")
	}
	if out.AssistantText == "" {
		t.Fatal("a stop message must still be synthesized")
	}
}

func TestRunProviderFailure(t *testing.T) {
	mock := providers.NewMock()
	mock.Err = errors.New("upstream 500")
	loop := newLoop(mock)
	tc, _ := testToolCtx(t, capability.Set{})
	tr := events.NewTrace(nil)

	_, err := loop.Run(context.Background(), userTurn(tc, capability.Profile{Preset: protocol.PresetSafe}), tr)
	if err == nil {
		t.Fatal("provider failure must abort the turn")
	}
	if apierr.KindOf(err) != apierr.KindProviderFailure {
		t.Fatalf("kind = %v", apierr.KindOf(err))
	}
	var sawError bool
	for _, e := range tr.Events() {
		if _, ok := e.(events.Error); ok {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("provider failure must emit an error event")
	}
}

func TestRunCancelled(t *testing.T) {
	mock := providers.NewMock(&providers.Response{Content: "never"})
	loop := newLoop(mock)
	tc, _ := testToolCtx(t, capability.Set{})
	tr := events.NewTrace(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loop.Run(ctx, userTurn(tc, capability.Profile{Preset: protocol.PresetSafe}), tr)
	if apierr.KindOf(err) != apierr.KindCancelled {
		t.Fatalf("kind = %v, want cancelled", apierr.KindOf(err))
	}
}
