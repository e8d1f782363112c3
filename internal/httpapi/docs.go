package httpapi

import (
	"net/http"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/artifacts"
	"github.com/jetlinks-ai/aistaff/internal/auth"
	"github.com/jetlinks-ai/aistaff/internal/docgen"
)

// Direct generator endpoints bypass the model but still produce attachments
// through the artifact store, like the matching tools.

func (h *Handlers) DocPPT(w http.ResponseWriter, r *http.Request) {
	var payload docgen.PresentationPayload
	h.renderDoc(w, r, &payload, func() ([]byte, string, error) {
		data, err := h.Renderer.RenderPresentation(&payload)
		return data, payload.Title + ".pptx", err
	})
}

func (h *Handlers) DocQuote(w http.ResponseWriter, r *http.Request) {
	var payload docgen.QuotePayload
	h.renderDoc(w, r, &payload, func() ([]byte, string, error) {
		data, err := h.Renderer.RenderQuoteDocx(&payload)
		return data, docName(payload.Title, "quote") + ".docx", err
	})
}

func (h *Handlers) DocQuoteXlsx(w http.ResponseWriter, r *http.Request) {
	var payload docgen.QuotePayload
	h.renderDoc(w, r, &payload, func() ([]byte, string, error) {
		data, err := h.Renderer.RenderQuoteXlsx(&payload)
		return data, docName(payload.Title, "quote") + ".xlsx", err
	})
}

func (h *Handlers) DocInspection(w http.ResponseWriter, r *http.Request) {
	var payload docgen.InspectionPayload
	h.renderDoc(w, r, &payload, func() ([]byte, string, error) {
		data, err := h.Renderer.RenderInspectionDocx(&payload)
		return data, docName(payload.Title, "inspection") + ".docx", err
	})
}

func (h *Handlers) DocInspectionXlsx(w http.ResponseWriter, r *http.Request) {
	var payload docgen.InspectionPayload
	h.renderDoc(w, r, &payload, func() ([]byte, string, error) {
		data, err := h.Renderer.RenderInspectionXlsx(&payload)
		return data, docName(payload.Title, "inspection") + ".xlsx", err
	})
}

func (h *Handlers) PrototypeGenerate(w http.ResponseWriter, r *http.Request) {
	var payload docgen.ProtoPayload
	h.renderDoc(w, r, &payload, func() ([]byte, string, error) {
		data, err := h.Renderer.RenderPrototype(&payload)
		return data, docName(payload.ProjectName, "prototype") + ".zip", err
	})
}

func docName(title, fallback string) string {
	if title == "" {
		return fallback
	}
	return title
}

func (h *Handlers) renderDoc(w http.ResponseWriter, r *http.Request, payload any, render func() ([]byte, string, error)) {
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := decodeBody(r, payload, 4<<20); err != nil {
		writeError(w, err)
		return
	}
	data, filename, err := render()
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidation, err.Error(), err))
		return
	}
	h.respondArtifact(w, r, p, filename, data)
}

func (h *Handlers) respondArtifact(w http.ResponseWriter, r *http.Request, p *auth.Principal, filename string, data []byte) {
	rec, err := h.Artifacts.Register(r.Context(), artifacts.KindGenerated, filename, data, p.TeamID, "", "")
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
