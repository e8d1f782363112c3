package httpapi

import (
	"archive/zip"
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/artifacts"
)

const maxUploadBytes = 32 << 20

// UploadImage handles POST /files/upload-image (multipart field "file").
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, artifacts.KindImage, func(filename, contentType string) error {
		if !strings.HasPrefix(contentType, "image/") && !hasImageExt(filename) {
			return apierr.New(apierr.KindValidation, "not an image")
		}
		return nil
	})
}

// UploadFile handles POST /files/upload-file.
func (h *Handlers) UploadFile(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, artifacts.KindFile, nil)
}

func hasImageExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".svg":
		return true
	}
	return false
}

func (h *Handlers) upload(w http.ResponseWriter, r *http.Request, kind string, check func(filename, contentType string) error) {
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidation, "missing file field", err))
		return
	}
	defer file.Close()

	if check != nil {
		if err := check(header.Filename, header.Header.Get("Content-Type")); err != nil {
			writeError(w, err)
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidation, "read upload", err))
		return
	}

	rec, err := h.Artifacts.Register(r.Context(), kind, filepath.Base(header.Filename), data,
		p.TeamID, r.FormValue("project_id"), r.FormValue("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	url, err := h.Artifacts.DownloadURL(h.Cfg.Server.PublicBaseURL, rec.FileID, p.TeamID, h.Cfg.Outputs.TTL.Std())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": rec, "url": url})
}

// Download handles GET /files/{file_id}?token=... — token-authenticated, no
// bearer required, so links are shareable within their TTL.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	fileID := pathParam(r.URL.Path, "/files/")
	if fileID == "" || strings.Contains(fileID, "/") {
		writeError(w, apierr.New(apierr.KindValidation, "file id is required"))
		return
	}
	token := r.URL.Query().Get("token")
	abs, contentType, filename, err := h.Artifacts.ResolveForDownload(r.Context(), fileID, token)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, abs)
}

// Preview handles GET /files/preview/{file_id}[/inner-path]: serves a
// prototype bundle's index.html (or a named member) straight out of the zip,
// and other artifacts inline. Preview is bearer-authenticated and
// team-scoped.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	rest := pathParam(r.URL.Path, "/files/preview/")
	fileID, inner, _ := strings.Cut(rest, "/")
	if fileID == "" {
		writeError(w, apierr.New(apierr.KindValidation, "file id is required"))
		return
	}

	rec, err := h.Artifacts.Get(r.Context(), fileID, p.TeamID)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := h.Artifacts.Open(rec)
	if err != nil {
		writeError(w, err)
		return
	}

	if strings.HasSuffix(rec.FileID, ".zip") {
		if inner == "" {
			inner = "index.html"
		}
		member, err := zipMember(data, inner)
		if err != nil {
			writeError(w, apierr.Wrap(apierr.KindNotFound, "bundle member not found", err))
			return
		}
		w.Header().Set("Content-Type", contentTypeByName(inner))
		w.Write(member)
		return
	}

	w.Header().Set("Content-Type", rec.ContentType)
	w.Write(data)
}

func zipMember(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBytes))
}

func contentTypeByName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".png":
		return "image/png"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
