package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jetlinks-ai/aistaff/internal/providers"
)

// fakeDurable is an in-memory Rehydrator.
type fakeDurable struct {
	mu       sync.Mutex
	sessions map[string]string // sessionID → teamID
	messages map[string][]providers.Message
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		sessions: make(map[string]string),
		messages: make(map[string][]providers.Message),
	}
}

func (f *fakeDurable) SessionExists(ctx context.Context, teamID, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[sessionID] == teamID, nil
}

func (f *fakeDurable) LastMessages(ctx context.Context, teamID, sessionID string, n int) ([]providers.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[sessionID]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func TestGetOrCreateTeamMismatch(t *testing.T) {
	s := NewStore(Config{MaxSessions: 10, MaxSessionMessages: 10, TTL: time.Minute}, nil)
	defer s.Close()

	ctx := context.Background()
	if _, err := s.GetOrCreate(ctx, "team-a", "sess-1"); err != nil {
		t.Fatal(err)
	}
	// Same session id from another team reads as not-found.
	if _, err := s.GetOrCreate(ctx, "team-b", "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-team get: err = %v, want ErrNotFound", err)
	}
}

func TestRehydration(t *testing.T) {
	durable := newFakeDurable()
	durable.sessions["sess-r"] = "team-a"
	for i := 1; i <= 300; i++ {
		durable.messages["sess-r"] = append(durable.messages["sess-r"],
			providers.Message{Role: "user", Content: fmt.Sprintf("m%d", i)})
	}

	s := NewStore(Config{MaxSessions: 10, MaxSessionMessages: 120, TTL: time.Minute}, durable)
	defer s.Close()

	sess, err := s.GetOrCreate(context.Background(), "team-a", "sess-r")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != 120 {
		t.Fatalf("rehydrated %d messages, want 120", len(sess.Messages))
	}
	if sess.Messages[0].Content != "m181" {
		t.Fatalf("first rehydrated message = %q, want m181", sess.Messages[0].Content)
	}
	if sess.Messages[119].Content != "m300" {
		t.Fatalf("last rehydrated message = %q, want m300", sess.Messages[119].Content)
	}
}

func TestLRUEviction(t *testing.T) {
	s := NewStore(Config{MaxSessions: 3, MaxSessionMessages: 10, TTL: time.Hour}, nil)
	defer s.Close()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if _, err := s.GetOrCreate(ctx, "t", fmt.Sprintf("s%d", i)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond) // distinct updated_at
	}
	// Touch s1 so s2 becomes LRU.
	if _, err := s.GetOrCreate(ctx, "t", "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetOrCreate(ctx, "t", "s4"); err != nil {
		t.Fatal(err)
	}

	if s.Len() != 3 {
		t.Fatalf("store holds %d sessions, want 3", s.Len())
	}
	if s.Peek("t", "s2") != nil {
		t.Fatal("s2 should have been evicted (LRU)")
	}
	if s.Peek("t", "s1") == nil || s.Peek("t", "s4") == nil {
		t.Fatal("recently used sessions must survive")
	}
}

func TestAppendCapsWindow(t *testing.T) {
	s := NewStore(Config{MaxSessions: 10, MaxSessionMessages: 5, TTL: time.Hour}, nil)
	defer s.Close()

	ctx := context.Background()
	if _, err := s.GetOrCreate(ctx, "t", "s"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		s.Append("s", providers.Message{Role: "user", Content: fmt.Sprintf("%d", i)})
	}
	sess := s.Peek("t", "s")
	if len(sess.Messages) != 5 {
		t.Fatalf("window holds %d messages, want 5", len(sess.Messages))
	}
	if sess.Messages[0].Content != "4" {
		t.Fatalf("oldest kept = %q, want 4", sess.Messages[0].Content)
	}
}

func TestRestore(t *testing.T) {
	s := NewStore(Config{MaxSessions: 10, MaxSessionMessages: 10, TTL: time.Hour}, nil)
	defer s.Close()

	ctx := context.Background()
	sess, _ := s.GetOrCreate(ctx, "t", "s")
	s.Append("s", providers.Message{Role: "user", Content: "committed"})
	snapshot := sess.Snapshot()

	s.Append("s", providers.Message{Role: "user", Content: "doomed"})
	s.Restore("s", snapshot)

	got := s.Peek("t", "s").Messages
	if len(got) != 1 || got[0].Content != "committed" {
		t.Fatalf("restore left %+v", got)
	}
}

func TestKeyedMutexSerializes(t *testing.T) {
	km := NewKeyedMutex()
	var inside, maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same")
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
	km.Cleanup()
	if km.Len() != 0 {
		t.Fatalf("cleanup left %d locks", km.Len())
	}
}
