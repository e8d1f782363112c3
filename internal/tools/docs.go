package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jetlinks-ai/aistaff/internal/artifacts"
	"github.com/jetlinks-ai/aistaff/internal/docgen"
)

// docResult is the common result of every generator tool.
type docResult struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`

	// PreviewURL is set for prototype bundles only.
	PreviewURL string `json:"preview_url,omitempty"`

	rec *artifacts.Record
}

func (r *docResult) artifactRecords() []*artifacts.Record {
	return []*artifacts.Record{r.rec}
}

// registerDoc registers rendered bytes and builds the tool result.
func registerDoc(ctx context.Context, tc *Context, filename string, data []byte) (*docResult, error) {
	rec, err := tc.Artifacts.Register(ctx, artifacts.KindGenerated, filename, data, tc.TeamID, tc.ProjectID, tc.SessionID)
	if err != nil {
		return nil, err
	}
	url, err := tc.downloadURL(rec.FileID)
	if err != nil {
		return nil, err
	}
	return &docResult{FileID: rec.FileID, Filename: filename, URL: url, rec: rec}, nil
}

// slugify makes a payload title safe for use in a filename.
func slugify(s, fallback string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return fallback
	}
	if len(out) > 48 {
		out = out[:48]
	}
	return out
}

var quoteSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"seller": {"type": "string"},
		"buyer": {"type": "string"},
		"currency": {"type": "string"},
		"items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"spec": {"type": "string"},
					"unit": {"type": "string"},
					"quantity": {"type": "number"},
					"unit_price": {"type": "number"}
				},
				"required": ["name", "quantity", "unit_price"]
			}
		},
		"notes": {"type": "string"}
	},
	"required": ["seller", "buyer", "currency", "items"]
}`)

var presentationSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"subtitle": {"type": "string"},
		"slides": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"bullets": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["title"]
			}
		}
	},
	"required": ["title"]
}`)

var inspectionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"site": {"type": "string"},
		"inspector": {"type": "string"},
		"date": {"type": "string"},
		"items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"item": {"type": "string"},
					"standard": {"type": "string"},
					"result": {"type": "string"},
					"conclusion": {"type": "string"}
				},
				"required": ["item", "result"]
			}
		},
		"summary": {"type": "string"}
	},
	"required": ["title", "items"]
}`)

var protoSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"project_name": {"type": "string"},
		"pages": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"description": {"type": "string"},
					"sections": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["name"]
			}
		}
	},
	"required": ["project_name", "pages"]
}`)

func docPptxHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var p docgen.PresentationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	data, err := tc.Renderer.RenderPresentation(&p)
	if err != nil {
		return nil, fmt.Errorf("render presentation: %w", err)
	}
	return registerDoc(ctx, tc, slugify(p.Title, "presentation")+".pptx", data)
}

func docQuoteDocxHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var p docgen.QuotePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	data, err := tc.Renderer.RenderQuoteDocx(&p)
	if err != nil {
		return nil, fmt.Errorf("render quote: %w", err)
	}
	return registerDoc(ctx, tc, slugify(p.Title, "quote")+".docx", data)
}

func docQuoteXlsxHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var p docgen.QuotePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	data, err := tc.Renderer.RenderQuoteXlsx(&p)
	if err != nil {
		return nil, fmt.Errorf("render quote sheet: %w", err)
	}
	return registerDoc(ctx, tc, slugify(p.Title, "quote")+".xlsx", data)
}

func docInspectionDocxHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var p docgen.InspectionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	data, err := tc.Renderer.RenderInspectionDocx(&p)
	if err != nil {
		return nil, fmt.Errorf("render inspection report: %w", err)
	}
	return registerDoc(ctx, tc, slugify(p.Title, "inspection")+".docx", data)
}

func docInspectionXlsxHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var p docgen.InspectionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	data, err := tc.Renderer.RenderInspectionXlsx(&p)
	if err != nil {
		return nil, fmt.Errorf("render inspection sheet: %w", err)
	}
	return registerDoc(ctx, tc, slugify(p.Title, "inspection")+".xlsx", data)
}

func protoGenerateHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var p docgen.ProtoPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	data, err := tc.Renderer.RenderPrototype(&p)
	if err != nil {
		return nil, fmt.Errorf("render prototype: %w", err)
	}
	res, err := registerDoc(ctx, tc, slugify(p.ProjectName, "prototype")+".zip", data)
	if err != nil {
		return nil, err
	}
	res.PreviewURL = strings.TrimRight(tc.BaseURL, "/") + "/files/preview/" + res.FileID
	return res, nil
}
