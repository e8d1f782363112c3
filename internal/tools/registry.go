// Package tools declares the provider-agnostic tool catalog: typed input
// schemas, risk classes, and handlers. Dispatch validates arguments,
// enforces the capability policy before any side effect, applies per-tool
// timeouts, and truncates results to the configured budget.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jetlinks-ai/aistaff/internal/capability"
	"github.com/jetlinks-ai/aistaff/internal/providers"
)

// Risk classifies a tool for capability enforcement.
type Risk string

const (
	RiskSafe      Risk = "safe"
	RiskShell     Risk = "dangerous-shell"
	RiskWrite     Risk = "dangerous-write"
	RiskBrowser   Risk = "dangerous-browser"
	RiskGenerator Risk = "generator"
	RiskReader    Risk = "reader"
)

// TruncationMarker terminates any tool output cut to the budget.
const TruncationMarker = "…(truncated)"

// Handler executes one validated tool call.
type Handler func(ctx context.Context, tc *Context, args json.RawMessage) (any, error)

// Tool is one catalog entry.
type Tool struct {
	Name        string
	Description string
	Risk        Risk
	InputSchema json.RawMessage
	Timeout     time.Duration // 0 = default
	Handler     Handler

	compiled *jsonschema.Schema
}

const defaultToolTimeout = 60 * time.Second

// Registry is the closed catalog of callable tools.
type Registry struct {
	tools map[string]*Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register compiles the tool's input schema and adds it to the catalog.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("tool needs a name and a handler")
	}
	if _, dup := r.tools[t.Name]; dup {
		return fmt.Errorf("duplicate tool %q", t.Name)
	}
	compiler := jsonschema.NewCompiler()
	url := t.Name + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(t.InputSchema)); err != nil {
		return fmt.Errorf("tool %s: add schema: %w", t.Name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", t.Name, err)
	}
	t.compiled = compiled
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister panics on registration failure; catalog wiring is static.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names lists tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Defs returns the provider-facing catalog as function descriptors.
func (r *Registry) Defs() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return defs
}

// HasRisk reports whether any registered tool carries the given risk class.
func (r *Registry) HasRisk(risk Risk) bool {
	for _, t := range r.tools {
		if t.Risk == risk {
			return true
		}
	}
	return false
}

// permitted checks a risk class against the effective capability set.
// safe, reader, and generator tools are always permitted: invariant 5 —
// generator artifacts do not require the write capability.
func permitted(risk Risk, caps capability.Set) bool {
	switch risk {
	case RiskShell:
		return caps.Shell
	case RiskWrite:
		return caps.Write
	case RiskBrowser:
		return caps.Browser
	default:
		return true
	}
}

// Dispatch runs one tool call end to end. All failures come back as a
// structured error Result, never as a Go error: tool failures live inside
// the event stream, and the loop continues.
func (r *Registry) Dispatch(ctx context.Context, tc *Context, name string, args json.RawMessage) *Result {
	t, ok := r.tools[name]
	if !ok {
		return errorResult(name, "unknown tool")
	}

	var decoded any
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return errorResult(name, fmt.Sprintf("invalid arguments: %v", err))
	}
	if err := t.compiled.Validate(decoded); err != nil {
		return errorResult(name, fmt.Sprintf("invalid arguments: %v", err))
	}

	// Capability enforcement precedes every side effect.
	if !permitted(t.Risk, tc.Caps) {
		return errorResult(name, "disabled")
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	payload, err := t.Handler(callCtx, tc, args)
	elapsed := time.Since(started)

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			slog.Warn("tool timeout", "tool", name, "elapsed", elapsed)
			return errorResult(name, "tool timed out")
		}
		slog.Warn("tool error", "tool", name, "error", err)
		return errorResult(name, err.Error())
	}

	res := &Result{Tool: name, Payload: payload}
	if carrier, ok := payload.(artifactCarrier); ok {
		res.Artifacts = carrier.artifactRecords()
	}

	res.ForLLM = Truncate(stringify(payload), tc.MaxToolOutputChars)
	slog.Debug("tool done", "tool", name, "elapsed", elapsed, "output_len", len(res.ForLLM))
	return res
}

// Truncate cuts s to at most max characters, appending the marker. A string
// of exactly max characters passes through untouched.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + TruncationMarker
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "ok"
	case string:
		return x
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
