package httpapi

import (
	"net/http"
	"strconv"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
)

// ListSessions handles GET /history/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.Store.ListSessions(r.Context(), p.TeamID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": rows})
}

// SessionDetail handles GET and DELETE /history/sessions/{id}.
func (h *Handlers) SessionDetail(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	id := pathParam(r.URL.Path, "/history/sessions/")
	if id == "" {
		writeError(w, apierr.New(apierr.KindValidation, "session id is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, err := h.Store.GetSession(r.Context(), p.TeamID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		msgs, err := h.Store.ListMessages(r.Context(), p.TeamID, id, 0)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess, "messages": msgs})
	case http.MethodDelete:
		if err := h.Store.DeleteSession(r.Context(), p.TeamID, id); err != nil {
			writeError(w, err)
			return
		}
		h.Sessions.Evict(id)
		h.Snapshots.Delete(p.TeamID, id)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ListFiles handles GET /history/files.
func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.Store.ListFiles(r.Context(), p.TeamID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": recs})
}

// Search handles GET /history/search: grep over the JSON snapshot mirror,
// optionally including workspace file names.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, apierr.New(apierr.KindValidation, "q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	includeHistory := r.URL.Query().Get("include_history") != "0"
	result := map[string]any{}
	if includeHistory {
		hits, err := h.Snapshots.Search(r.Context(), p.TeamID, q, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		result["history"] = hits
	}
	if r.URL.Query().Get("include_workspace") == "1" {
		names, err := h.searchWorkspace(r.Context(), p.TeamID,
			r.URL.Query().Get("project_id"), r.URL.Query().Get("sub_path"), q, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		result["workspace"] = names
	}
	writeJSON(w, http.StatusOK, result)
}
