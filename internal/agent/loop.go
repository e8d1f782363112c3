// Package agent drives the assistant↔tool loop: up to max_steps provider
// rounds, capability-checked tool dispatch, and a strictly ordered event
// trace. The loop is transport-free — it neither knows nor cares whether
// its events are buffered into a JSON array or streamed over SSE.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/artifacts"
	"github.com/jetlinks-ai/aistaff/internal/capability"
	"github.com/jetlinks-ai/aistaff/internal/events"
	"github.com/jetlinks-ai/aistaff/internal/providers"
	"github.com/jetlinks-ai/aistaff/internal/tools"
)

var tracer = otel.Tracer("aistaff/agent")

// Loop orchestrates turns. One Loop serves all sessions; per-turn state
// lives in Turn.
type Loop struct {
	Providers       *providers.Set
	Registry        *tools.Registry
	MaxSteps        int
	ProviderTimeout time.Duration
	MaxTokens       int
}

// Turn is the input for one user message.
type Turn struct {
	SessionID string
	Provider  string // requested provider name ("" = default)
	Model     string
	Messages  []providers.Message // budgeted prompt including the system message
	ToolCtx   *tools.Context
	Profile   capability.Profile

	// Trim carries the budgeter's diagnostic; it is emitted right after
	// security_profile so that event stays first in every turn.
	Trim *events.ContextTrim
}

// Outcome is the result of a completed turn.
type Outcome struct {
	AssistantText string
	// NewMessages are the assistant and tool messages produced this turn,
	// in emission order (the terminal assistant message included).
	NewMessages []providers.Message
	Artifacts   []*artifacts.Record
	Usage       providers.Usage
	Steps       int
}

// Run executes the loop for one turn. Tool failures stay inside the trace;
// provider failures abort the turn with an error event first. Cancellation
// is honored between steps.
func (l *Loop) Run(ctx context.Context, turn *Turn, trace *events.Trace) (*Outcome, error) {
	trace.Emit(events.SecurityProfile{
		Preset:    turn.Profile.Preset,
		Requested: turn.Profile.Requested,
		Effective: turn.Profile.Effective,
	})
	if turn.Trim != nil {
		trace.Emit(*turn.Trim)
	}

	prov, err := l.Providers.Get(turn.Provider)
	if err != nil {
		trace.Emit(events.Error{Message: err.Error()})
		return nil, apierr.Wrap(apierr.KindValidation, "select provider", err)
	}
	prov = l.applyFallback(prov, trace)

	trace.Emit(events.ProviderStart{Provider: prov.Name(), Model: turn.Model})
	turnStart := time.Now()

	maxSteps := l.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 12
	}

	messages := turn.Messages
	out := &Outcome{}

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return out, apierr.Wrap(apierr.KindCancelled, "turn cancelled", err)
		}
		out.Steps = step

		resp, err := l.complete(ctx, prov, providers.Request{
			Model:     turn.Model,
			Messages:  messages,
			Tools:     l.Registry.Defs(),
			MaxTokens: l.MaxTokens,
		})
		if err != nil {
			kind := apierr.KindProviderFailure
			if errors.Is(err, providers.ErrTimeout) {
				kind = apierr.KindProviderTimeout
				trace.Emit(events.Error{Message: "provider timeout"})
			} else if ctx.Err() != nil {
				return out, apierr.Wrap(apierr.KindCancelled, "turn cancelled", ctx.Err())
			} else {
				trace.Emit(events.Error{Message: err.Error()})
			}
			return out, apierr.Wrap(kind, "provider call failed", err)
		}
		out.Usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			out.AssistantText = resp.Content
			trace.Emit(events.AssistantMessage{Content: resp.Content})
			trace.Emit(events.ProviderDone{ElapsedMS: time.Since(turnStart).Milliseconds()})
			out.NewMessages = append(out.NewMessages, providers.Message{
				Role:    "assistant",
				Content: resp.Content,
			})
			return out, nil
		}

		assistantMsg := providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistantMsg)
		out.NewMessages = append(out.NewMessages, assistantMsg)

		for _, tc := range resp.ToolCalls {
			trace.Emit(events.ToolCall{Tool: tc.Name, Args: tc.Args})

			result := l.dispatch(ctx, turn.ToolCtx, tc)

			if result.IsError {
				trace.Emit(events.NewToolError(tc.Name, result.Err))
			} else {
				trace.Emit(events.NewToolResult(tc.Name, toolEventPayload(result)))
				for _, rec := range result.Artifacts {
					trace.Emit(events.TaskArtifact{
						Path:   rec.Filename,
						TaskID: turn.SessionID,
						FileID: rec.FileID,
					})
					out.Artifacts = append(out.Artifacts, rec)
				}
			}

			toolMsg := providers.Message{
				Role:       "tool",
				Content:    result.ForLLM,
				ToolCallID: tc.ID,
			}
			messages = append(messages, toolMsg)
			out.NewMessages = append(out.NewMessages, toolMsg)
		}
	}

	trace.Emit(events.Error{Message: fmt.Sprintf("stopped after %d steps", maxSteps)})
	out.AssistantText = "I could not finish within the allowed number of steps."
	trace.Emit(events.ProviderDone{ElapsedMS: time.Since(turnStart).Milliseconds()})
	out.NewMessages = append(out.NewMessages, providers.Message{
		Role:    "assistant",
		Content: out.AssistantText,
	})
	return out, nil
}

// applyFallback routes the turn to the native provider when the selected
// variant cannot serve the registered generator or attachment tools. The
// decision is made once per turn from the static capability declaration.
func (l *Loop) applyFallback(selected providers.Provider, trace *events.Trace) providers.Provider {
	native := l.Providers.Native()
	if selected.Name() == native.Name() {
		return selected
	}
	caps := selected.Capabilities()
	var missing []string
	if l.Registry.HasRisk(tools.RiskGenerator) && !caps.Docs {
		missing = append(missing, "docs")
	}
	if _, ok := l.Registry.Get("attachment_read"); ok && !caps.Attachments {
		missing = append(missing, "attachments")
	}
	if len(missing) == 0 {
		return selected
	}
	trace.Emit(events.ProviderFallback{
		From:      selected.Name(),
		To:        native.Name(),
		Requested: missing,
	})
	slog.Info("provider fallback", "from", selected.Name(), "to", native.Name(), "requested", missing)
	return native
}

// complete runs one provider call under the configured budget and an otel
// span.
func (l *Loop) complete(ctx context.Context, prov providers.Provider, req providers.Request) (*providers.Response, error) {
	budget := l.ProviderTimeout
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	callCtx, span := tracer.Start(callCtx, "provider.complete")
	span.SetAttributes(
		attribute.String("provider", prov.Name()),
		attribute.String("model", req.Model),
		attribute.Int("messages", len(req.Messages)),
	)
	defer span.End()

	resp, err := prov.Complete(callCtx, req)
	if err != nil {
		span.RecordError(err)
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", providers.ErrTimeout, err)
		}
		return nil, err
	}
	return resp, nil
}

func (l *Loop) dispatch(ctx context.Context, tc *tools.Context, call providers.ToolCall) *tools.Result {
	ctx, span := tracer.Start(ctx, "tool.dispatch")
	span.SetAttributes(attribute.String("tool", call.Name))
	defer span.End()
	return l.Registry.Dispatch(ctx, tc, call.Name, call.Args)
}

// toolEventPayload selects what goes into the tool_result event: the typed
// payload when the LLM string was not truncated, else the truncated text.
func toolEventPayload(r *tools.Result) any {
	if _, ok := r.Payload.(string); ok {
		return map[string]string{"text": r.ForLLM}
	}
	if b, err := json.Marshal(r.Payload); err == nil && string(b) == r.ForLLM {
		return r.Payload
	}
	return map[string]string{"text": r.ForLLM}
}
