package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jetlinks-ai/aistaff/internal/providers"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrSessionOwned marks a session id collision across teams.
	ErrSessionOwned = errors.New("session id belongs to another team")
)

// SessionRow is the durable chat_sessions row.
type SessionRow struct {
	SessionID   string    `json:"session_id"`
	TeamID      string    `json:"team_id"`
	ProjectID   string    `json:"project_id,omitempty"`
	Role        string    `json:"role,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	LastSummary string    `json:"last_summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	MessageCount int `json:"message_count,omitempty"`
}

// MessageRow is the durable chat_messages row.
type MessageRow struct {
	ID         string               `json:"id"`
	SessionID  string               `json:"session_id"`
	Ordinal    int                  `json:"ordinal"`
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []providers.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	EventsJSON json.RawMessage      `json:"events_json,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// ToMessage converts a row to the provider-neutral message shape.
func (r *MessageRow) ToMessage() providers.Message {
	return providers.Message{
		Role:       r.Role,
		Content:    r.Content,
		ToolCalls:  r.ToolCalls,
		ToolCallID: r.ToolCallID,
	}
}

// TurnCommit is everything one committed turn persists atomically: the
// session upsert, the user message, the loop messages (events_json attached
// to the terminal assistant message), and the output attachment links.
// Attachment rows themselves are inserted at registration time (§4.2
// atomicity; aborted turns keep already-registered artifacts).
type TurnCommit struct {
	Session      SessionRow
	UserMessage  providers.Message
	LoopMessages []providers.Message
	EventsJSON   json.RawMessage
	OutputFiles  []string // file ids linked to the terminal assistant message
	InputFiles   []string // file ids linked to the user message
}

// CommitTurn runs the four persistence steps in one transaction.
func (s *SQLStore) CommitTurn(ctx context.Context, in *TurnCommit) error {
	now := encodeTime(time.Now())
	return s.tx(ctx, func(tx *sqlTx) error {
		// 1. Upsert session (create-if-absent, touch updated_at). session_id
		// is globally unique: an id already owned by another team is a
		// conflict, never a cross-team append.
		var existingTeam string
		err := tx.queryRow(ctx,
			`SELECT team_id FROM chat_sessions WHERE session_id = ?`,
			in.Session.SessionID).Scan(&existingTeam)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.exec(ctx, `
				INSERT INTO chat_sessions (session_id, team_id, project_id, role, provider, model, last_summary, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				in.Session.SessionID, in.Session.TeamID, in.Session.ProjectID,
				in.Session.Role, in.Session.Provider, in.Session.Model,
				in.Session.LastSummary, now, now)
			if err != nil {
				return fmt.Errorf("insert session: %w", err)
			}
		case err != nil:
			return fmt.Errorf("check session owner: %w", err)
		case existingTeam != in.Session.TeamID:
			return ErrSessionOwned
		default:
			_, err = tx.exec(ctx, `
				UPDATE chat_sessions SET project_id = ?, role = ?, provider = ?, model = ?, updated_at = ?
				WHERE session_id = ?`,
				in.Session.ProjectID, in.Session.Role, in.Session.Provider,
				in.Session.Model, now, in.Session.SessionID)
			if err != nil {
				return fmt.Errorf("touch session: %w", err)
			}
		}

		var next int
		if err := tx.queryRow(ctx,
			`SELECT COALESCE(MAX(ordinal), 0) + 1 FROM chat_messages WHERE session_id = ?`,
			in.Session.SessionID).Scan(&next); err != nil {
			return fmt.Errorf("next ordinal: %w", err)
		}

		insert := func(m providers.Message, eventsJSON json.RawMessage) (string, error) {
			id := uuid.Must(uuid.NewV7()).String()
			var toolCalls any
			if len(m.ToolCalls) > 0 {
				b, err := json.Marshal(m.ToolCalls)
				if err != nil {
					return "", fmt.Errorf("encode tool calls: %w", err)
				}
				toolCalls = string(b)
			}
			var ev any
			if len(eventsJSON) > 0 {
				ev = string(eventsJSON)
			}
			_, err := tx.exec(ctx, `
				INSERT INTO chat_messages (id, session_id, ordinal, role, content, tool_calls, tool_call_id, events_json, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, in.Session.SessionID, next, m.Role, m.Content, toolCalls, nullable(m.ToolCallID), ev, now)
			if err != nil {
				return "", fmt.Errorf("insert message (ordinal %d): %w", next, err)
			}
			next++
			return id, nil
		}

		// 2. The user message.
		userID, err := insert(in.UserMessage, nil)
		if err != nil {
			return err
		}

		// 3. Loop messages in order; events_json rides the terminal assistant message.
		var lastAssistantID string
		for i, m := range in.LoopMessages {
			var ev json.RawMessage
			if i == len(in.LoopMessages)-1 && m.Role == "assistant" {
				ev = in.EventsJSON
			}
			id, err := insert(m, ev)
			if err != nil {
				return err
			}
			if m.Role == "assistant" {
				lastAssistantID = id
			}
		}

		// 4. Attachment links.
		for _, fid := range in.InputFiles {
			if _, err := tx.exec(ctx,
				`INSERT INTO message_attachments (message_id, file_id, direction) VALUES (?, ?, ?)`,
				userID, fid, "input"); err != nil {
				return fmt.Errorf("link input file: %w", err)
			}
		}
		if lastAssistantID != "" {
			for _, fid := range in.OutputFiles {
				if _, err := tx.exec(ctx,
					`INSERT INTO message_attachments (message_id, file_id, direction) VALUES (?, ?, ?)`,
					lastAssistantID, fid, "output"); err != nil {
					return fmt.Errorf("link output file: %w", err)
				}
			}
		}
		return nil
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SessionExists reports whether durable rows exist for (team, session).
func (s *SQLStore) SessionExists(ctx context.Context, teamID, sessionID string) (bool, error) {
	var one int
	err := s.queryRow(ctx,
		`SELECT 1 FROM chat_sessions WHERE session_id = ? AND team_id = ?`,
		sessionID, teamID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return true, nil
}

// LastMessages returns up to n most recent messages in ordinal order.
func (s *SQLStore) LastMessages(ctx context.Context, teamID, sessionID string, n int) ([]providers.Message, error) {
	rows, err := s.ListMessages(ctx, teamID, sessionID, n)
	if err != nil {
		return nil, err
	}
	out := make([]providers.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToMessage())
	}
	return out, nil
}

// ListMessages returns the last n message rows (all when n <= 0) in ordinal
// order, enforcing team scope.
func (s *SQLStore) ListMessages(ctx context.Context, teamID, sessionID string, n int) ([]*MessageRow, error) {
	ok, err := s.SessionExists(ctx, teamID, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	query := `SELECT id, session_id, ordinal, role, content, tool_calls, tool_call_id, events_json, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY ordinal DESC`
	args := []any{sessionID}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*MessageRow
	for rows.Next() {
		var m MessageRow
		var toolCalls, toolCallID, eventsJSON sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Ordinal, &m.Role, &m.Content,
			&toolCalls, &toolCallID, &eventsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		m.ToolCallID = toolCallID.String
		if eventsJSON.Valid {
			m.EventsJSON = json.RawMessage(eventsJSON.String)
		}
		m.CreatedAt = decodeTime(createdAt)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to ordinal order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetSession fetches a session row, team-scoped.
func (s *SQLStore) GetSession(ctx context.Context, teamID, sessionID string) (*SessionRow, error) {
	var r SessionRow
	var created, updated string
	err := s.queryRow(ctx, `
		SELECT session_id, team_id, COALESCE(project_id, ''), role, provider, model, last_summary, created_at, updated_at
		FROM chat_sessions WHERE session_id = ? AND team_id = ?`,
		sessionID, teamID).
		Scan(&r.SessionID, &r.TeamID, &r.ProjectID, &r.Role, &r.Provider, &r.Model, &r.LastSummary, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	r.CreatedAt = decodeTime(created)
	r.UpdatedAt = decodeTime(updated)
	return &r, nil
}

// ListSessions returns a team's sessions, most recent first.
func (s *SQLStore) ListSessions(ctx context.Context, teamID string, limit int) ([]*SessionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx, `
		SELECT cs.session_id, cs.team_id, COALESCE(cs.project_id, ''), cs.role, cs.provider, cs.model, cs.last_summary, cs.created_at, cs.updated_at,
			(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = cs.session_id)
		FROM chat_sessions cs WHERE cs.team_id = ?
		ORDER BY cs.updated_at DESC LIMIT ?`, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRow
	for rows.Next() {
		var r SessionRow
		var created, updated string
		if err := rows.Scan(&r.SessionID, &r.TeamID, &r.ProjectID, &r.Role, &r.Provider, &r.Model,
			&r.LastSummary, &created, &updated, &r.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.CreatedAt = decodeTime(created)
		r.UpdatedAt = decodeTime(updated)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its messages and attachment links.
func (s *SQLStore) DeleteSession(ctx context.Context, teamID, sessionID string) error {
	ok, err := s.SessionExists(ctx, teamID, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.tx(ctx, func(tx *sqlTx) error {
		if _, err := tx.exec(ctx, `
			DELETE FROM message_attachments WHERE message_id IN
			(SELECT id FROM chat_messages WHERE session_id = ?)`, sessionID); err != nil {
			return fmt.Errorf("delete attachment links: %w", err)
		}
		if _, err := tx.exec(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.exec(ctx, `DELETE FROM chat_sessions WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}
