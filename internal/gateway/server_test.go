package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jetlinks-ai/aistaff/internal/auth"
	"github.com/jetlinks-ai/aistaff/internal/capability"
	"github.com/jetlinks-ai/aistaff/internal/httpapi"
)

func TestAuthMiddleware(t *testing.T) {
	resolver := auth.NewJWTResolver([]byte("secret"))
	s := NewServer("127.0.0.1:0", &httpapi.Handlers{}, resolver, 0)

	var gotPrincipal *auth.Principal
	handler := s.authed(func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	// No token.
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status %d", w.Code)
	}

	// Garbage token.
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status %d", w.Code)
	}

	// Valid token.
	token, err := resolver.Mint("user-9", "team-7", capability.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("valid token status %d: %s", w.Code, w.Body.String())
	}
	if gotPrincipal == nil || gotPrincipal.UserID != "user-9" || gotPrincipal.TeamID != "team-7" {
		t.Fatalf("principal = %+v", gotPrincipal)
	}

	// Expired token.
	expired, _ := resolver.Mint("user-9", "team-7", capability.RoleAdmin, -time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status %d", w.Code)
	}

	// Query-string token (WS path).
	req = httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("query token status %d", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1) // 1 rps, burst 2
	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.Allow("u") {
			allowed++
		}
	}
	if allowed == 0 || allowed == 10 {
		t.Fatalf("allowed %d of 10, want throttling", allowed)
	}
	// A different principal has its own bucket.
	if !rl.Allow("other") {
		t.Fatal("fresh principal must pass")
	}

	unlimited := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !unlimited.Allow("u") {
			t.Fatal("disabled limiter must always allow")
		}
	}
}
