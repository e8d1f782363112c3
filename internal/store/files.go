package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jetlinks-ai/aistaff/internal/artifacts"
)

// The SQLStore doubles as the artifacts.Index.

func (s *SQLStore) InsertFile(ctx context.Context, rec *artifacts.Record) error {
	_, err := s.exec(ctx, `
		INSERT INTO file_records (file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FileID, rec.Kind, rec.Filename, rec.ContentType, rec.SizeBytes,
		rec.TeamID, nullable(rec.ProjectID), nullable(rec.SessionID), encodeTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

func (s *SQLStore) GetFile(ctx context.Context, fileID string) (*artifacts.Record, error) {
	var rec artifacts.Record
	var projectID, sessionID sql.NullString
	var created string
	err := s.queryRow(ctx, `
		SELECT file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, created_at
		FROM file_records WHERE file_id = ?`, fileID).
		Scan(&rec.FileID, &rec.Kind, &rec.Filename, &rec.ContentType, &rec.SizeBytes,
			&rec.TeamID, &projectID, &sessionID, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file record: %w", err)
	}
	rec.ProjectID = projectID.String
	rec.SessionID = sessionID.String
	rec.CreatedAt = decodeTime(created)
	return &rec, nil
}

func (s *SQLStore) DeleteFile(ctx context.Context, fileID string) error {
	return s.tx(ctx, func(tx *sqlTx) error {
		if _, err := tx.exec(ctx, `DELETE FROM message_attachments WHERE file_id = ?`, fileID); err != nil {
			return fmt.Errorf("delete attachment links: %w", err)
		}
		if _, err := tx.exec(ctx, `DELETE FROM file_records WHERE file_id = ?`, fileID); err != nil {
			return fmt.Errorf("delete file record: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) ListFileIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.query(ctx, `SELECT file_id FROM file_records`)
	if err != nil {
		return nil, fmt.Errorf("list file ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ListFiles returns a team's file records, most recent first.
func (s *SQLStore) ListFiles(ctx context.Context, teamID string, limit int) ([]*artifacts.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx, `
		SELECT file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, created_at
		FROM file_records WHERE team_id = ?
		ORDER BY created_at DESC LIMIT ?`, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []*artifacts.Record
	for rows.Next() {
		var rec artifacts.Record
		var projectID, sessionID sql.NullString
		var created string
		if err := rows.Scan(&rec.FileID, &rec.Kind, &rec.Filename, &rec.ContentType, &rec.SizeBytes,
			&rec.TeamID, &projectID, &sessionID, &created); err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		rec.ProjectID = projectID.String
		rec.SessionID = sessionID.String
		rec.CreatedAt = decodeTime(created)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// FileReferenced reports whether any message still links the file.
// SweepExpiredFiles applies the same check in its query.
func (s *SQLStore) FileReferenced(ctx context.Context, fileID string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM message_attachments WHERE file_id = ? LIMIT 1`, fileID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("file referenced: %w", err)
	}
	return true, nil
}

// SweepExpiredFiles deletes unreferenced file rows older than ttl and
// returns their ids so the artifact store can unlink the objects.
func (s *SQLStore) SweepExpiredFiles(ctx context.Context, ttl time.Duration) ([]string, error) {
	cutoff := encodeTime(time.Now().Add(-ttl))
	rows, err := s.query(ctx, `
		SELECT file_id FROM file_records
		WHERE created_at < ? AND file_id NOT IN (SELECT file_id FROM message_attachments)`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("sweep expired files: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := s.DeleteFile(ctx, id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
