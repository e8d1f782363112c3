// Package httpapi implements the HTTP surface: the chat entry point,
// history, files, direct document generators, browser control, and team
// administration. Handlers speak the apierr taxonomy; transport mapping
// happens here and nowhere deeper.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/artifacts"
	"github.com/jetlinks-ai/aistaff/internal/sessions"
	"github.com/jetlinks-ai/aistaff/internal/store"
	"github.com/jetlinks-ai/aistaff/internal/workspace"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response failed", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps domain errors onto HTTP statuses. Sentinels from deeper
// packages are normalized into the apierr taxonomy first.
func writeError(w http.ResponseWriter, err error) {
	err = normalize(err)
	status := apierr.HTTPStatus(err)
	msg := err.Error()
	var ae *apierr.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if status >= 500 {
		slog.Error("request failed", "status", status, "error", err)
	} else {
		slog.Debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: string(apierr.KindOf(err))})
}

func normalize(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sessions.ErrNotFound),
		errors.Is(err, artifacts.ErrNotFound):
		return apierr.Wrap(apierr.KindNotFound, "not found", err)
	case errors.Is(err, store.ErrSessionOwned):
		return apierr.Wrap(apierr.KindConflict, "session id is taken", err)
	case errors.Is(err, artifacts.ErrAuth):
		return apierr.Wrap(apierr.KindAuth, "invalid or expired token", err)
	case errors.Is(err, workspace.ErrPathEscape):
		return apierr.Wrap(apierr.KindPathEscape, err.Error(), err)
	case errors.Is(err, workspace.ErrSensitivePath):
		return apierr.Wrap(apierr.KindSensitivePath, err.Error(), err)
	}
	return err
}

func decodeBody(r *http.Request, dst any, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBytes))
	if err := dec.Decode(dst); err != nil {
		return apierr.Wrap(apierr.KindValidation, "malformed request body", err)
	}
	return nil
}
