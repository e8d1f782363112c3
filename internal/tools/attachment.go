package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

var attachmentReadSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"file_id": {"type": "string", "description": "Opaque id of a prior artifact in this team"}
	},
	"required": ["file_id"]
}`)

// attachmentReadResult is text for textual content types, base64 otherwise.
type attachmentReadResult struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Encoding    string `json:"encoding"` // "text" or "base64"
	Content     string `json:"content"`
}

func attachmentReadHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var args struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	rec, err := tc.Artifacts.Get(ctx, args.FileID, tc.TeamID)
	if err != nil {
		return nil, err
	}
	data, err := tc.Artifacts.Open(rec)
	if err != nil {
		return nil, err
	}

	res := &attachmentReadResult{
		FileID:      rec.FileID,
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
	}
	if isTextual(rec.ContentType) && utf8.Valid(data) {
		res.Encoding = "text"
		content := string(data)
		if tc.MaxFileReadChars > 0 && len(content) > tc.MaxFileReadChars {
			content = content[:tc.MaxFileReadChars] + TruncationMarker
		}
		res.Content = content
	} else {
		res.Encoding = "base64"
		res.Content = base64.StdEncoding.EncodeToString(data)
	}
	return res, nil
}

func isTextual(contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	switch {
	case strings.Contains(contentType, "json"),
		strings.Contains(contentType, "xml"),
		strings.Contains(contentType, "javascript"),
		strings.Contains(contentType, "yaml"):
		return true
	}
	return false
}
