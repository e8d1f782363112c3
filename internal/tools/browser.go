package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jetlinks-ai/aistaff/internal/artifacts"
)

var emptyObjectSchema = json.RawMessage(`{"type": "object", "properties": {}}`)

var browserNavigateSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "URL to load"}
	},
	"required": ["url"]
}`)

func browserStartHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	if tc.Browser == nil {
		return nil, fmt.Errorf("browser support not configured")
	}
	if err := tc.Browser.Start(ctx, tc.SessionID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func browserNavigateHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	if tc.Browser == nil {
		return nil, fmt.Errorf("browser support not configured")
	}
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if err := tc.Browser.Navigate(ctx, tc.SessionID, args.URL); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "url": args.URL}, nil
}

// screenshotResult carries the registered screenshot artifact.
type screenshotResult struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`

	rec *artifacts.Record
}

func (r *screenshotResult) artifactRecords() []*artifacts.Record {
	return []*artifacts.Record{r.rec}
}

func browserScreenshotHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	if tc.Browser == nil {
		return nil, fmt.Errorf("browser support not configured")
	}
	png, err := tc.Browser.Screenshot(ctx, tc.SessionID)
	if err != nil {
		return nil, err
	}
	rec, err := tc.Artifacts.Register(ctx, artifacts.KindGenerated, "screenshot.png", png, tc.TeamID, tc.ProjectID, tc.SessionID)
	if err != nil {
		return nil, err
	}
	url, err := tc.downloadURL(rec.FileID)
	if err != nil {
		return nil, err
	}
	return &screenshotResult{FileID: rec.FileID, URL: url, rec: rec}, nil
}
