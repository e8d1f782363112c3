package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jetlinks-ai/aistaff/internal/artifacts"
	"github.com/jetlinks-ai/aistaff/internal/capability"
	"github.com/jetlinks-ai/aistaff/internal/docgen"
)

// memIndex is an in-memory artifacts.Index for tool tests.
type memIndex struct {
	mu   sync.Mutex
	recs map[string]*artifacts.Record
	fail bool
}

func newMemIndex() *memIndex { return &memIndex{recs: make(map[string]*artifacts.Record)} }

func (m *memIndex) InsertFile(ctx context.Context, rec *artifacts.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return os.ErrPermission
	}
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

func (m *memIndex) DeleteFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, fileID)
	return nil
}

func (m *memIndex) ListFileIDs(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.recs))
	for id := range m.recs {
		out[id] = true
	}
	return out, nil
}

func testContext(t *testing.T, caps capability.Set) (*Context, *memIndex) {
	t.Helper()
	idx := newMemIndex()
	st, err := artifacts.New(t.TempDir(), idx, artifacts.NewTokenSigner([]byte("test-secret")))
	if err != nil {
		t.Fatal(err)
	}
	return &Context{
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

func TestDispatchUnknownTool(t *testing.T) {
	r := NewCatalog()
	tc, _ := testContext(t, capability.Set{})
	res := r.Dispatch(context.Background(), tc, "nope", nil)
	if !res.IsError || res.Err != "unknown tool" {
		t.Fatalf("got %+v, want unknown tool error", res)
	}
}

func TestDispatchSchemaValidation(t *testing.T) {
	r := NewCatalog()
	tc, _ := testContext(t, capability.Set{Write: true})

	tests := []struct {
		name string
		tool string
		args string
	}{
		{"missing required", "fs_read", `{}`},
		{"wrong type", "fs_read", `{"path": 42}`},
		{"timeout_ms zero", "shell_run", `{"command":"true","timeout_ms":0}`},
		{"timeout_ms over cap", "shell_run", `{"command":"true","timeout_ms":900000}`},
		{"bad json", "fs_read", `{"path":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Dispatch(context.Background(), tc, tt.tool, json.RawMessage(tt.args))
			if !res.IsError {
				t.Fatalf("invalid args accepted: %+v", res)
			}
			if !strings.Contains(res.Err, "invalid arguments") {
				t.Fatalf("error = %q, want a validation error", res.Err)
			}
		})
	}
}

func TestDispatchDisabledBeforeSideEffect(t *testing.T) {
	r := NewCatalog()
	tc, _ := testContext(t, capability.Set{}) // empty effective set

	args, _ := json.Marshal(map[string]string{"path": "out.txt", "content": "boom"})
	res := r.Dispatch(context.Background(), tc, "fs_write", args)
	if !res.IsError || res.Err != "disabled" {
		t.Fatalf("got %+v, want disabled", res)
	}
	if _, err := os.Stat(filepath.Join(tc.Root, "out.txt")); !os.IsNotExist(err) {
		t.Fatal("disabled tool still wrote a file")
	}
}

func TestDispatchRiskMapping(t *testing.T) {
	r := NewCatalog()
	tests := []struct {
		tool    string
		args    string
		caps    capability.Set
		allowed bool
	}{
		{"fs_write", `{"path":"a.txt","content":"x"}`, capability.Set{Write: true}, true},
		{"fs_write", `{"path":"a.txt","content":"x"}`, capability.Set{Shell: true}, false},
		{"shell_run", `{"command":"true"}`, capability.Set{Shell: true}, true},
		{"shell_run", `{"command":"true"}`, capability.Set{Write: true}, false},
		{"fs_list", `{}`, capability.Set{}, true},  // reader: always
		{"fs_read", `{"path":"a.txt"}`, capability.Set{}, true}, // reader: always (fails later on IO, not policy)
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			tc, _ := testContext(t, tt.caps)
			res := r.Dispatch(context.Background(), tc, tt.tool, json.RawMessage(tt.args))
			disabled := res.IsError && res.Err == "disabled"
			if tt.allowed && disabled {
				t.Fatalf("%s unexpectedly disabled under %+v", tt.tool, tt.caps)
			}
			if !tt.allowed && !disabled {
				t.Fatalf("%s not disabled under %+v: %+v", tt.tool, tt.caps, res)
			}
		})
	}
}

// Invariant 5: generator tools produce artifacts without the write capability.
func TestGeneratorWithoutWrite(t *testing.T) {
	r := NewCatalog()
	tc, idx := testContext(t, capability.Set{}) // no write

	args, _ := json.Marshal(map[string]any{
		"seller": "ACME", "buyer": "Globex", "currency": "CNY",
		"items": []map[string]any{{"name": "x", "quantity": 2, "unit_price": 10}},
	})
	res := r.Dispatch(context.Background(), tc, "doc_quote_xlsx_create", args)
	if res.IsError {
		t.Fatalf("generator failed without write: %s", res.Err)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(res.Artifacts))
	}
	if len(idx.recs) != 1 {
		t.Fatal("artifact row not indexed")
	}
}

func TestTruncateBoundary(t *testing.T) {
	exact := strings.Repeat("a", 100)
	if got := Truncate(exact, 100); got != exact {
		t.Fatal("string of exactly max chars must pass untouched")
	}
	over := exact + "b"
	got := Truncate(over, 100)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatalf("truncated string needs the marker, got %q", got[90:])
	}
	if !strings.HasPrefix(got, exact) {
		t.Fatal("truncation must keep the prefix")
	}
}

func TestDispatchTruncatesOutput(t *testing.T) {
	r := NewCatalog()
	tc, _ := testContext(t, capability.Set{})
	tc.MaxToolOutputChars = 50

	if err := os.WriteFile(filepath.Join(tc.Root, "big.txt"), []byte(strings.Repeat("z", 500)), 0o644); err != nil {
		t.Fatal(err)
	}
	args, _ := json.Marshal(map[string]string{"path": "big.txt"})
	res := r.Dispatch(context.Background(), tc, "fs_read", args)
	if res.IsError {
		t.Fatalf("fs_read failed: %s", res.Err)
	}
	if len(res.ForLLM) != 50+len(TruncationMarker) {
		t.Fatalf("ForLLM length = %d, want %d", len(res.ForLLM), 50+len(TruncationMarker))
	}
}
