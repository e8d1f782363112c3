package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

type memIndex struct {
	mu   sync.Mutex
	recs map[string]*Record
	fail bool
}

func newMemIndex() *memIndex { return &memIndex{recs: make(map[string]*Record)} }

func (m *memIndex) InsertFile(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("index down")
	}
	cp := *rec
	m.recs[rec.FileID] = &cp
	return nil
}

func (m *memIndex) GetFile(ctx context.Context, fileID string) (*Record, error) {
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

func newTestStore(t *testing.T) (*Store, *memIndex, string) {
	t.Helper()
	idx := newMemIndex()
	root := t.TempDir()
	st, err := New(root, idx, NewTokenSigner([]byte("secret")))
	if err != nil {
		t.Fatal(err)
	}
	return st, idx, root
}

var fileIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{22}(\.[a-z0-9]+)?$`)

func TestFileIDFormat(t *testing.T) {
	id := NewFileID("report.PPTX")
	if !fileIDPattern.MatchString(id) {
		t.Fatalf("file id %q does not match the expected format", id)
	}
	if !strings.HasSuffix(id, ".pptx") {
		t.Fatalf("file id %q must keep the lowercased extension", id)
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	st, idx, root := newTestStore(t)
	ctx := context.Background()

	rec, err := st.Register(ctx, KindGenerated, "a.txt", []byte("hello"), "team-1", "", "sess")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, rec.FileID)); err != nil {
		t.Fatalf("file object missing: %v", err)
	}
	if idx.recs[rec.FileID] == nil {
		t.Fatal("index row missing")
	}

	got, err := st.Get(ctx, rec.FileID, "team-1")
	if err != nil {
		t.Fatal(err)
	}
	data, err := st.Open(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q", data)
	}
}

func TestRegisterNoDedup(t *testing.T) {
	st, _, _ := newTestStore(t)
	ctx := context.Background()
	a, _ := st.Register(ctx, KindFile, "same.txt", []byte("bytes"), "t", "", "")
	b, _ := st.Register(ctx, KindFile, "same.txt", []byte("bytes"), "t", "", "")
	if a.FileID == b.FileID {
		t.Fatal("identical bytes must still get distinct file ids")
	}
}

func TestRegisterAtomicOnIndexFailure(t *testing.T) {
	st, idx, root := newTestStore(t)
	idx.fail = true

	if _, err := st.Register(context.Background(), KindFile, "x.bin", []byte("data"), "t", "", ""); err == nil {
		t.Fatal("expected registration failure")
	}
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			t.Fatalf("orphan file left behind: %s", e.Name())
		}
	}
}

func TestTeamScoping(t *testing.T) {
	st, _, _ := newTestStore(t)
	ctx := context.Background()
	rec, _ := st.Register(ctx, KindFile, "x.txt", []byte("x"), "team-a", "", "")

	if _, err := st.Get(ctx, rec.FileID, "team-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-team get: err = %v, want ErrNotFound", err)
	}
}

func TestDownloadToken(t *testing.T) {
	st, _, _ := newTestStore(t)
	ctx := context.Background()
	rec, _ := st.Register(ctx, KindFile, "doc.txt", []byte("contents"), "team-a", "", "")

	token, err := st.IssueDownloadToken(rec.FileID, "team-a", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	abs, contentType, filename, err := st.ResolveForDownload(ctx, rec.FileID, token)
	if err != nil {
		t.Fatal(err)
	}
	if filename != "doc.txt" || !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("resolved %q %q", filename, contentType)
	}
	if _, err := os.Stat(abs); err != nil {
		t.Fatal(err)
	}

	// Sibling team's token fails auth.
	wrongTeam, _ := st.IssueDownloadToken(rec.FileID, "team-b", time.Minute)
	if _, _, _, err := st.ResolveForDownload(ctx, rec.FileID, wrongTeam); !errors.Is(err, ErrAuth) {
		t.Fatalf("sibling team token: err = %v, want ErrAuth", err)
	}

	// Token for one file doesn't unlock another.
	other, _ := st.Register(ctx, KindFile, "other.txt", []byte("y"), "team-a", "", "")
	if _, _, _, err := st.ResolveForDownload(ctx, other.FileID, token); !errors.Is(err, ErrAuth) {
		t.Fatalf("cross-file token: err = %v, want ErrAuth", err)
	}

	// Expired token fails.
	expired, _ := st.IssueDownloadToken(rec.FileID, "team-a", -time.Minute)
	if _, _, _, err := st.ResolveForDownload(ctx, rec.FileID, expired); !errors.Is(err, ErrAuth) {
		t.Fatalf("expired token: err = %v, want ErrAuth", err)
	}

	// Garbage token fails.
	if _, _, _, err := st.ResolveForDownload(ctx, rec.FileID, "garbage"); !errors.Is(err, ErrAuth) {
		t.Fatalf("garbage token: err = %v, want ErrAuth", err)
	}
}

func TestDeleteRemovesRowFirst(t *testing.T) {
	st, idx, root := newTestStore(t)
	ctx := context.Background()
	rec, _ := st.Register(ctx, KindFile, "gone.txt", []byte("x"), "t", "", "")

	if err := st.Delete(ctx, rec.FileID, "t"); err != nil {
		t.Fatal(err)
	}
	if idx.recs[rec.FileID] != nil {
		t.Fatal("row still present")
	}
	if _, err := os.Stat(filepath.Join(root, rec.FileID)); !os.IsNotExist(err) {
		t.Fatal("object still present")
	}
}

func TestGCSweepSkipsLiveRows(t *testing.T) {
	st, idx, root := newTestStore(t)
	ctx := context.Background()

	live, _ := st.Register(ctx, KindFile, "live.txt", []byte("live"), "t", "", "")

	// Orphan: object without a row, old mtime.
	orphan := filepath.Join(root, NewFileID("orphan.txt"))
	os.WriteFile(orphan, []byte("orphan"), 0o644)
	past := time.Now().Add(-48 * time.Hour)
	os.Chtimes(orphan, past, past)

	// Fresh orphan: too young to sweep.
	fresh := filepath.Join(root, NewFileID("fresh.txt"))
	os.WriteFile(fresh, []byte("fresh"), 0o644)

	gc := NewGC(st, 24*time.Hour, "* * * * *")
	n, err := gc.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("swept %d files, want 1", n)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatal("old orphan survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh orphan must survive")
	}
	if _, err := os.Stat(filepath.Join(root, live.FileID)); err != nil {
		t.Fatal("live object must never be swept")
	}
	if idx.recs[live.FileID] == nil {
		t.Fatal("live row must never be swept")
	}
}
