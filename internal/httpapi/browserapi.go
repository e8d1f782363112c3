package httpapi

import (
	"net/http"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/artifacts"
)

// Browser endpoints are session-scoped and require the server's browser
// switch and an owner or admin role, the same role gate that clears the
// browser_* tools for members; no security preset is consulted.

type browserRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url,omitempty"`
}

func (h *Handlers) browserAuth(r *http.Request, req *browserRequest) error {
	p, err := principal(r.Context())
	if err != nil {
		return err
	}
	if !h.Cfg.Security.EnableBrowser {
		return apierr.New(apierr.KindPermissionDenied, "browser is disabled on this server")
	}
	if !p.Role.IsAdmin() {
		return apierr.New(apierr.KindPermissionDenied, "browser requires an owner or admin role")
	}
	if err := decodeBody(r, req, 1<<20); err != nil {
		return err
	}
	if req.SessionID == "" {
		return apierr.New(apierr.KindValidation, "session_id is required")
	}
	return nil
}

func (h *Handlers) BrowserStart(w http.ResponseWriter, r *http.Request) {
	var req browserRequest
	if err := h.browserAuth(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Browser.Start(r.Context(), req.SessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) BrowserNavigate(w http.ResponseWriter, r *http.Request) {
	var req browserRequest
	if err := h.browserAuth(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.URL == "" {
		writeError(w, apierr.New(apierr.KindValidation, "url is required"))
		return
	}
	if err := h.Browser.Navigate(r.Context(), req.SessionID, req.URL); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) BrowserScreenshot(w http.ResponseWriter, r *http.Request) {
	var req browserRequest
	if err := h.browserAuth(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, _ := principal(r.Context())
	png, err := h.Browser.Screenshot(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondArtifactKind(w, r, p.TeamID, req.SessionID, artifacts.KindImage, "screenshot.png", png)
}

func (h *Handlers) respondArtifactKind(w http.ResponseWriter, r *http.Request, teamID, sessionID, kind, filename string, data []byte) {
	rec, err := h.Artifacts.Register(r.Context(), kind, filename, data, teamID, "", sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	url, err := h.Artifacts.DownloadURL(h.Cfg.Server.PublicBaseURL, rec.FileID, teamID, h.Cfg.Outputs.TTL.Std())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": rec, "url": url})
}
