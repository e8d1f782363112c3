// Package gateway wires the HTTP surface: routing, bearer auth, per-user
// rate limiting, and the WebSocket event feed for UI clients.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/auth"
	"github.com/jetlinks-ai/aistaff/internal/httpapi"
)

// Server is the HTTP server hosting the API and the WS hub.
type Server struct {
	addr     string
	handlers *httpapi.Handlers
	resolver auth.Resolver
	limiter  *RateLimiter
	hub      *Hub

	httpServer *http.Server
}

func NewServer(addr string, handlers *httpapi.Handlers, resolver auth.Resolver, rps float64) *Server {
	s := &Server{
		addr:     addr,
		handlers: handlers,
		resolver: resolver,
		limiter:  NewRateLimiter(rps),
		hub:      NewHub(),
	}
	handlers.Broadcast = s.hub.Broadcast
	return s
}

// Hub exposes the WS hub (the chat path broadcasts through it).
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	h := s.handlers

	// /healthz is open and download is token-authenticated (shareable
	// links); everything else requires a bearer principal.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/files/preview/", s.authed(h.Preview))
	mux.HandleFunc("/files/upload-image", s.authed(h.UploadImage))
	mux.HandleFunc("/files/upload-file", s.authed(h.UploadFile))
	mux.HandleFunc("/files/", h.Download)

	mux.HandleFunc("/chat", s.authed(h.Chat))

	mux.HandleFunc("/history/sessions", s.authed(h.ListSessions))
	mux.HandleFunc("/history/sessions/", s.authed(h.SessionDetail))
	mux.HandleFunc("/history/files", s.authed(h.ListFiles))
	mux.HandleFunc("/history/search", s.authed(h.Search))

	mux.HandleFunc("/docs/ppt", s.authed(h.DocPPT))
	mux.HandleFunc("/docs/quote", s.authed(h.DocQuote))
	mux.HandleFunc("/docs/quote-xlsx", s.authed(h.DocQuoteXlsx))
	mux.HandleFunc("/docs/inspection", s.authed(h.DocInspection))
	mux.HandleFunc("/docs/inspection-xlsx", s.authed(h.DocInspectionXlsx))
	mux.HandleFunc("/prototype/generate", s.authed(h.PrototypeGenerate))

	mux.HandleFunc("/browser/start", s.authed(h.BrowserStart))
	mux.HandleFunc("/browser/navigate", s.authed(h.BrowserNavigate))
	mux.HandleFunc("/browser/screenshot", s.authed(h.BrowserScreenshot))

	mux.HandleFunc("/teams", s.authed(h.Teams))
	mux.HandleFunc("/teams/", s.authed(h.TeamSub))
	mux.HandleFunc("/requirements/", s.authed(h.RequirementAction))

	mux.HandleFunc("/ws", s.authed(s.hub.Serve))

	return mux
}

// authed resolves the bearer token, applies the rate limit, and attaches the
// principal to the request context.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeAuthError(w, apierr.New(apierr.KindAuth, "missing bearer token"))
			return
		}
		p, err := s.resolver.Resolve(r.Context(), token)
		if err != nil {
			writeAuthError(w, apierr.Wrap(apierr.KindAuth, "invalid bearer token", err))
			return
		}
		if !s.limiter.Allow(p.UserID) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
			return
		}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// WS clients can't set headers from the browser; accept ?token=.
	return r.URL.Query().Get("token")
}

func writeAuthError(w http.ResponseWriter, err error) {
	var ae *apierr.Error
	msg := "unauthorized"
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	http.Error(w, `{"error":"`+msg+`"}`, apierr.HTTPStatus(err))
}

// Start serves until ctx is cancelled, then drains.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
