// Package artifacts owns the durable file objects produced by uploads and
// tools. Files live under a single artifact root keyed by opaque file ids;
// rows in the relational index hold the metadata. API responses never carry
// raw paths — only file ids and tokenized download URLs.
package artifacts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrAuth     = errors.New("artifact auth failed")
	ErrNotFound = errors.New("artifact not found")
)

// Kind classifies how an artifact came to exist.
const (
	KindImage     = "image"
	KindFile      = "file"
	KindGenerated = "generated"
)

// Record is the metadata row for one stored file.
type Record struct {
	FileID      string    `json:"file_id"`
	Kind        string    `json:"kind"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	TeamID      string    `json:"team_id"`
	ProjectID   string    `json:"project_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	SourcePath  string    `json:"-"` // absolute path under the artifact root
}

// Index is the relational side of the store, implemented by internal/store.
type Index interface {
	InsertFile(ctx context.Context, rec *Record) error
	GetFile(ctx context.Context, fileID string) (*Record, error)
	DeleteFile(ctx context.Context, fileID string) error
	// ListFileIDs returns every live file id (for the GC sweep).
	ListFileIDs(ctx context.Context) (map[string]bool, error)
}

// Store registers, indexes, and serves artifact files.
type Store struct {
	root   string
	index  Index
	signer *TokenSigner
}

func New(root string, index Index, signer *TokenSigner) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{root: root, index: index, signer: signer}, nil
}

// Root returns the artifact root directory.
func (s *Store) Root() string { return s.root }

const fileIDLen = 22

const base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewFileID produces a URL-safe base62 token of at least 128 bits of entropy
// followed by the original filename extension, e.g. "a1B2...xY.pptx".
func NewFileID(filename string) string {
	buf := make([]byte, fileIDLen)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	for i, b := range buf {
		buf[i] = base62[int(b)%len(base62)]
	}
	return string(buf) + strings.ToLower(filepath.Ext(filename))
}

// Register stores data under a fresh file id and inserts the index row.
// The operation is atomic: on row failure the file is unlinked and no
// record exists.
func (s *Store) Register(ctx context.Context, kind, filename string, data []byte, teamID, projectID, sessionID string) (*Record, error) {
	fileID := NewFileID(filename)
	abs := filepath.Join(s.root, fileID)

	tmp, err := os.CreateTemp(s.root, ".reg-*")
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("place artifact: %w", err)
	}

	rec := &Record{
		FileID:      fileID,
		Kind:        kind,
		Filename:    filename,
		ContentType: contentTypeFor(filename),
		SizeBytes:   int64(len(data)),
		TeamID:      teamID,
		ProjectID:   projectID,
		SessionID:   sessionID,
		CreatedAt:   time.Now().UTC(),
		SourcePath:  abs,
	}
	if err := s.index.InsertFile(ctx, rec); err != nil {
		os.Remove(abs)
		return nil, fmt.Errorf("index artifact: %w", err)
	}
	return rec, nil
}

// RegisterPath registers an already-written file by copying it into the root.
func (s *Store) RegisterPath(ctx context.Context, kind, srcPath, teamID, projectID, sessionID string) (*Record, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return s.Register(ctx, kind, filepath.Base(srcPath), data, teamID, projectID, sessionID)
}

// Get returns the record for fileID, scoped to teamID. A mismatched team is
// reported as not-found, never as a different team's row.
func (s *Store) Get(ctx context.Context, fileID, teamID string) (*Record, error) {
	rec, err := s.index.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.TeamID != teamID {
		return nil, ErrNotFound
	}
	rec.SourcePath = filepath.Join(s.root, rec.FileID)
	return rec, nil
}

// Open reads the file bytes for a record previously fetched with Get.
func (s *Store) Open(rec *Record) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, rec.FileID))
}

// Delete removes the record first, then unlinks the file. Record deletion
// preceding the unlink keeps invariant 2: no dangling rows.
func (s *Store) Delete(ctx context.Context, fileID, teamID string) error {
	if _, err := s.Get(ctx, fileID, teamID); err != nil {
		return err
	}
	if err := s.index.DeleteFile(ctx, fileID); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, fileID)); err != nil && !os.IsNotExist(err) {
		slog.Warn("artifact unlink failed", "file_id", fileID, "error", err)
	}
	return nil
}

// IssueDownloadToken produces a short-lived signed token bound to
// (file_id, team_id).
func (s *Store) IssueDownloadToken(fileID, teamID string, ttl time.Duration) (string, error) {
	return s.signer.Sign(fileID, teamID, ttl)
}

// ResolveForDownload validates the token and returns what the file endpoint
// needs to serve the bytes. Invalid, expired, or team-mismatched tokens fail
// with ErrAuth.
func (s *Store) ResolveForDownload(ctx context.Context, fileID, token string) (absPath, contentType, filename string, err error) {
	teamID, err := s.signer.Verify(fileID, token)
	if err != nil {
		return "", "", "", ErrAuth
	}
	rec, err := s.Get(ctx, fileID, teamID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", "", "", ErrAuth
		}
		return "", "", "", err
	}
	return rec.SourcePath, rec.ContentType, rec.Filename, nil
}

// DownloadURL builds the absolute (when baseURL is set) download URL for a
// record, minting a token with the given ttl.
func (s *Store) DownloadURL(baseURL, fileID, teamID string, ttl time.Duration) (string, error) {
	token, err := s.IssueDownloadToken(fileID, teamID, ttl)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(baseURL, "/") + "/files/" + fileID + "?token=" + token, nil
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
