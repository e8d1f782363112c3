package sessions

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/jetlinks-ai/aistaff/internal/providers"
)

func msg(role, content string) providers.Message {
	return providers.Message{Role: role, Content: content}
}

func system() providers.Message { return msg("system", "you are helpful") }

func TestBudgetMessageCountBoundary(t *testing.T) {
	lim := Limits{MaxSessionMessages: 4, MaxContextChars: 1 << 20}

	history := []providers.Message{
		msg("user", "a"), msg("assistant", "b"),
		msg("user", "c"), msg("assistant", "d"),
	}

	// Exactly at the limit: kept intact, no trim event.
	out, trim := Budget(system(), history, lim)
	if trim != nil {
		t.Fatalf("no trim expected at the boundary, got %+v", trim)
	}
	if len(out) != 5 { // system + 4
		t.Fatalf("got %d messages, want 5", len(out))
	}

	// One more: oldest non-system message drops.
	history = append(history, msg("user", "e"))
	out, trim = Budget(system(), history, lim)
	if trim == nil || trim.DroppedMessages != 1 {
		t.Fatalf("trim = %+v, want 1 dropped", trim)
	}
	if out[0].Role != "system" {
		t.Fatal("system message must stay first")
	}
	if out[1].Content != "b" {
		t.Fatalf("oldest survivor = %q, want %q", out[1].Content, "b")
	}
}

func TestBudgetCharBudgetDropsGroups(t *testing.T) {
	big := strings.Repeat("x", 400)
	args, _ := json.Marshal(map[string]string{"path": "a.txt"})
	history := []providers.Message{
		{Role: "assistant", Content: big, ToolCalls: []providers.ToolCall{{ID: "1", Name: "fs_read", Args: args}}},
		{Role: "tool", Content: big, ToolCallID: "1"},
		msg("user", "recent question"),
		msg("assistant", "recent answer"),
	}
	lim := Limits{MaxSessionMessages: 100, MaxContextChars: len("you are helpful") + 120}

	out, trim := Budget(system(), history, lim)
	if trim == nil {
		t.Fatal("expected a trim event")
	}
	// The assistant+tool pair drops as one group.
	if trim.DroppedMessages != 2 {
		t.Fatalf("dropped %d messages, want 2 (grouped)", trim.DroppedMessages)
	}
	for _, m := range out {
		if m.Role == "tool" {
			t.Fatal("orphaned tool message survived the trim")
		}
	}
}

func TestBudgetSystemAlwaysKept(t *testing.T) {
	var history []providers.Message
	for i := 0; i < 50; i++ {
		history = append(history, msg("user", fmt.Sprintf("message %d", i)))
	}
	out, _ := Budget(system(), history, Limits{MaxSessionMessages: 10, MaxContextChars: 50})
	if len(out) == 0 || out[0].Role != "system" {
		t.Fatal("system message must survive any budget")
	}
}

func TestBudgetOversizedSystemTruncated(t *testing.T) {
	sys := msg("system", strings.Repeat("s", 500))
	out, trim := Budget(sys, nil, Limits{MaxSessionMessages: 10, MaxContextChars: 100})
	if trim == nil {
		t.Fatal("expected trim diagnostics for an oversized system prompt")
	}
	if !strings.HasSuffix(out[0].Content, "…(system prompt truncated)") {
		t.Fatalf("truncated system prompt needs an explicit marker, got %q", out[0].Content[len(out[0].Content)-40:])
	}
}

func TestBudgetDeterministic(t *testing.T) {
	history := []providers.Message{
		msg("user", strings.Repeat("a", 100)),
		msg("assistant", strings.Repeat("b", 100)),
		msg("user", "q"), msg("assistant", "r"),
	}
	lim := Limits{MaxSessionMessages: 3, MaxContextChars: 10_000}
	first, _ := Budget(system(), history, lim)
	second, _ := Budget(system(), history, lim)
	if len(first) != len(second) {
		t.Fatal("budget must be deterministic")
	}
	for i := range first {
		if first[i].Content != second[i].Content {
			t.Fatalf("message %d differs between runs", i)
		}
	}
}
