package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jetlinks-ai/aistaff/internal/agent"
	"github.com/jetlinks-ai/aistaff/internal/auth"
	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/capability"
	"github.com/jetlinks-ai/aistaff/internal/events"
	"github.com/jetlinks-ai/aistaff/internal/providers"
	"github.com/jetlinks-ai/aistaff/internal/sessions"
	"github.com/jetlinks-ai/aistaff/internal/store"
	"github.com/jetlinks-ai/aistaff/internal/tools"
	"github.com/jetlinks-ai/aistaff/pkg/protocol"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message        string   `json:"message"`
	SessionID      string   `json:"session_id,omitempty"`
	Role           string   `json:"role,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	Model          string   `json:"model,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
	SecurityPreset string   `json:"security_preset,omitempty"`
	EnableShell    bool     `json:"enable_shell,omitempty"`
	EnableWrite    bool     `json:"enable_write,omitempty"`
	EnableBrowser  bool     `json:"enable_browser,omitempty"`
	EnableDangerous bool    `json:"enable_dangerous,omitempty"`
	ShowReasoning  bool     `json:"show_reasoning,omitempty"`
	Attachments    []string `json:"attachments,omitempty"` // input file ids
}

// ChatResponse is the buffered response of POST /chat.
type ChatResponse struct {
	SessionID string          `json:"session_id"`
	Assistant string          `json:"assistant"`
	Events    json.RawMessage `json:"events"`
}

// Chat is the request lifecycle of §4.11: authorize, resolve workspace,
// derive capability, pull session, assemble + budget, run the loop, commit,
// respond. With Accept: text/event-stream (or ?stream=1) the same event
// stream is flushed as SSE frames instead of buffered.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var req ChatRequest
	if err := decodeBody(r, &req, 4<<20); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, apierr.New(apierr.KindValidation, "message is required"))
		return
	}
	if req.SecurityPreset == "" {
		req.SecurityPreset = protocol.PresetStandard
	}

	streaming := r.URL.Query().Get("stream") == "1" ||
		strings.Contains(r.Header.Get("Accept"), "text/event-stream")

	if streaming {
		h.chatStream(w, r, p, &req)
		return
	}

	resp, err := h.runChat(r.Context(), p, &req, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) chatStream(w http.ResponseWriter, r *http.Request, p *auth.Principal, req *ChatRequest) {
	enc, err := newSSEEncoder(w)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.runChat(r.Context(), p, req, enc.emit); err != nil {
		// The error event precedes done; the transport stays 200.
		enc.emit(events.Error{Message: err.Error()})
		enc.done(false)
		return
	}
	enc.done(true)
}

// runChat executes one turn. sink, when set, receives each event as it is
// emitted (SSE); the buffered response still carries the full array.
func (h *Handlers) runChat(ctx context.Context, p *auth.Principal, req *ChatRequest, sink func(events.Event)) (*ChatResponse, error) {
	// Workspace root (project > team > server default).
	root, err := h.resolveRoot(ctx, p.TeamID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	// Capability derivation. Only an explicit dangerous ask that the server
	// ceiling forbids is a hard 403; lesser denials clear silently.
	selected, err := h.Loop.Providers.Get(req.Provider)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, "unknown provider", err)
	}
	capIn := capability.Input{
		Ceiling: capability.Set{
			Shell:     h.Cfg.Security.EnableShell,
			Write:     h.Cfg.Security.EnableWrite,
			Browser:   h.Cfg.Security.EnableBrowser,
			Dangerous: h.Cfg.Security.AllowDangerous,
		},
		Preset: req.SecurityPreset,
		Toggles: capability.Set{
			Shell:     req.EnableShell,
			Write:     req.EnableWrite,
			Browser:   req.EnableBrowser,
			Dangerous: req.EnableDangerous,
		},
		Role:     p.Role,
		Provider: capability.ProviderCaps{Unsandboxed: selected.Capabilities().Unsandboxed},
	}
	if capability.ExplicitlyDenied(capIn) {
		return nil, apierr.New(apierr.KindPermissionDenied, "dangerous mode is not allowed on this server")
	}
	profile := capability.Derive(capIn)

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.Must(uuid.NewV7()).String()
	}

	// Serialize the turn against concurrent turns of the same session.
	unlock := h.Sessions.Lock(sessionID)
	defer unlock()

	sess, err := h.Sessions.GetOrCreate(ctx, p.TeamID, sessionID)
	if err != nil {
		return nil, err
	}
	preTurn := sess.Snapshot()
	sess.Role = req.Role
	sess.ProjectID = req.ProjectID
	sess.Provider = req.Provider
	sess.Model = req.Model

	// Rebuild the system prompt; it is transient and never persisted.
	skills, err := h.teamSkills(ctx, p.TeamID)
	if err != nil {
		return nil, err
	}
	system := h.Assembler.Build(req.Role, skills, h.Loop.Registry.Names(), root)

	trace := events.NewTrace(h.traceSink(p.TeamID, sink))

	budgeted, trim := sessions.Budget(system, preTurn, sessions.Limits{
		MaxSessionMessages: h.Cfg.Sessions.MaxSessionMessages,
		MaxContextChars:    h.Cfg.Sessions.MaxContextChars,
	})

	userMsg := providers.Message{Role: "user", Content: req.Message}
	budgeted = append(budgeted, userMsg)

	toolCtx := &tools.Context{
		TeamID:             p.TeamID,
		ProjectID:          req.ProjectID,
		SessionID:          sessionID,
		Root:               root,
		Caps:               profile.Effective,
		Artifacts:          h.Artifacts,
		Browser:            h.Browser,
		Renderer:           h.Renderer,
		BaseURL:            h.Cfg.Server.PublicBaseURL,
		DownloadTTL:        24 * time.Hour,
		MaxFileReadChars:   h.Cfg.Limits.MaxFileReadChars,
		MaxToolOutputChars: h.Cfg.Limits.MaxToolOutputChars,
	}

	out, runErr := h.Loop.Run(ctx, &agent.Turn{
		SessionID: sessionID,
		Provider:  req.Provider,
		Model:     req.Model,
		Messages:  budgeted,
		ToolCtx:   toolCtx,
		Profile:   profile,
		Trim:      trim,
	}, trace)

	if runErr != nil {
		h.commitPartial(p.TeamID, sess, userMsg, req, out, runErr)
		return nil, runErr
	}

	eventsJSON, err := events.MarshalAll(trace.Events())
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}

	commit := &store.TurnCommit{
		Session: store.SessionRow{
			SessionID: sessionID,
			TeamID:    p.TeamID,
			ProjectID: req.ProjectID,
			Role:      req.Role,
			Provider:  req.Provider,
			Model:     req.Model,
		},
		UserMessage:  userMsg,
		LoopMessages: out.NewMessages,
		EventsJSON:   eventsJSON,
		InputFiles:   req.Attachments,
	}
	for _, rec := range out.Artifacts {
		commit.OutputFiles = append(commit.OutputFiles, rec.FileID)
	}
	if err := h.Store.CommitTurn(ctx, commit); err != nil {
		h.Sessions.Restore(sessionID, preTurn)
		return nil, fmt.Errorf("commit turn: %w", err)
	}

	// Mirror in-memory state and the JSON snapshot after the durable commit.
	h.Sessions.Append(sessionID, append([]providers.Message{userMsg}, out.NewMessages...)...)
	h.writeSnapshot(p.TeamID, sessionID)

	return &ChatResponse{
		SessionID: sessionID,
		Assistant: out.AssistantText,
		Events:    eventsJSON,
	}, nil
}

// commitPartial persists what the failure semantics allow: on cancellation
// only the user message; on provider failure the user message plus messages
// emitted before the failure. Uses a background context — the request
// context is typically dead here.
func (h *Handlers) commitPartial(teamID string, sess *sessions.Session, userMsg providers.Message, req *ChatRequest, out *agent.Outcome, runErr error) {
	kind := apierr.KindOf(runErr)
	if kind != apierr.KindCancelled && kind != apierr.KindProviderFailure && kind != apierr.KindProviderTimeout {
		return
	}
	commit := &store.TurnCommit{
		Session: store.SessionRow{
			SessionID: sess.ID,
			TeamID:    teamID,
			ProjectID: req.ProjectID,
			Role:      req.Role,
			Provider:  req.Provider,
			Model:     req.Model,
		},
		UserMessage: userMsg,
		InputFiles:  req.Attachments,
	}
	if kind != apierr.KindCancelled && out != nil {
		commit.LoopMessages = completeMessages(out.NewMessages)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Store.CommitTurn(ctx, commit); err != nil {
		slog.Warn("partial commit failed", "session", sess.ID, "error", err)
		return
	}
	h.Sessions.Append(sess.ID, append([]providers.Message{userMsg}, commit.LoopMessages...)...)
	h.writeSnapshot(teamID, sess.ID)
}

// completeMessages drops a trailing assistant message whose tool calls have
// no paired results — never persist partial assistant state.
func completeMessages(msgs []providers.Message) []providers.Message {
	for len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		if last.Role == "assistant" && len(last.ToolCalls) > 0 {
			msgs = msgs[:len(msgs)-1]
			continue
		}
		break
	}
	return msgs
}

func (h *Handlers) teamSkills(ctx context.Context, teamID string) ([]agent.Skill, error) {
	rows, err := h.Store.ListEnabledSkills(ctx, teamID)
	if err != nil {
		return nil, err
	}
	out := make([]agent.Skill, 0, len(rows))
	for _, r := range rows {
		out = append(out, agent.Skill{ID: r.ID, Name: r.Name, Content: r.Content})
	}
	return out, nil
}

// traceSink fans events out to the SSE sink and the WS broadcast.
func (h *Handlers) traceSink(teamID string, sink func(events.Event)) func(events.Event) {
	if sink == nil && h.Broadcast == nil {
		return nil
	}
	return func(e events.Event) {
		if sink != nil {
			sink(e)
		}
		if h.Broadcast != nil {
			h.Broadcast(teamID, e)
		}
	}
}

func (h *Handlers) writeSnapshot(teamID, sessionID string) {
	rows, err := h.Store.ListMessages(context.Background(), teamID, sessionID, 0)
	if err != nil {
		slog.Debug("snapshot read failed", "session", sessionID, "error", err)
		return
	}
	if err := h.Snapshots.Write(teamID, sessionID, rows); err != nil {
		slog.Debug("snapshot write failed", "session", sessionID, "error", err)
	}
}
