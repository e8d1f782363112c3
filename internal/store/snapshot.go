package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Snapshots mirror committed sessions as JSON files under
// <dir>/<team_id>/<session_id>.json for grep-style history search. Writes
// are best-effort: a failed snapshot never fails a turn.
type Snapshots struct {
	dir string
}

func NewSnapshots(dir string) *Snapshots { return &Snapshots{dir: dir} }

type snapshotDoc struct {
	SessionID string        `json:"session_id"`
	TeamID    string        `json:"team_id"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []*MessageRow `json:"messages"`
}

// Write mirrors one session. Errors are returned for logging only.
func (s *Snapshots) Write(teamID, sessionID string, messages []*MessageRow) error {
	if s == nil || s.dir == "" {
		return nil
	}
	teamDir := filepath.Join(s.dir, teamID)
	if err := os.MkdirAll(teamDir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	doc := snapshotDoc{
		SessionID: sessionID,
		TeamID:    teamID,
		UpdatedAt: time.Now().UTC(),
		Messages:  messages,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := filepath.Join(teamDir, "."+sessionID+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, filepath.Join(teamDir, sessionID+".json"))
}

// Delete removes a session's snapshot.
func (s *Snapshots) Delete(teamID, sessionID string) {
	if s == nil || s.dir == "" {
		return
	}
	os.Remove(filepath.Join(s.dir, teamID, sessionID+".json"))
}

// SearchHit is one matching message from a snapshot.
type SearchHit struct {
	SessionID string `json:"session_id"`
	Ordinal   int    `json:"ordinal"`
	Role      string `json:"role"`
	Excerpt   string `json:"excerpt"`
}

// Search greps a team's snapshots for q (case-insensitive substring).
func (s *Snapshots) Search(ctx context.Context, teamID, q string, limit int) ([]SearchHit, error) {
	if s == nil || s.dir == "" || q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(q)
	teamDir := filepath.Join(s.dir, teamID)
	entries, err := os.ReadDir(teamDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var hits []SearchHit
	for _, ent := range entries {
		if ctx.Err() != nil {
			return hits, ctx.Err()
		}
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(teamDir, ent.Name()))
		if err != nil {
			continue
		}
		var doc snapshotDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		for _, m := range doc.Messages {
			if !strings.Contains(strings.ToLower(m.Content), needle) {
				continue
			}
			hits = append(hits, SearchHit{
				SessionID: doc.SessionID,
				Ordinal:   m.Ordinal,
				Role:      m.Role,
				Excerpt:   excerpt(m.Content, needle),
			})
			if len(hits) >= limit {
				return hits, nil
			}
		}
	}
	return hits, nil
}

// excerpt returns a window of text around the first match.
func excerpt(content, needle string) string {
	idx := strings.Index(strings.ToLower(content), needle)
	if idx < 0 {
		idx = 0
	}
	start := idx - 60
	if start < 0 {
		start = 0
	}
	end := idx + len(needle) + 60
	if end > len(content) {
		end = len(content)
	}
	out := content[start:end]
	if start > 0 {
		out = "…" + out
	}
	if end < len(content) {
		out += "…"
	}
	return out
}
