package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jetlinks-ai/aistaff/internal/workspace"
)

const (
	maxListDepth   = 5
	maxListEntries = 5000
)

var fsListSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Directory path relative to the workspace root"},
		"depth": {"type": "integer", "minimum": 1, "maximum": 5, "description": "Recursion depth (default 2)"},
		"max_entries": {"type": "integer", "minimum": 1, "maximum": 5000}
	}
}`)

type fsListArgs struct {
	Path       string `json:"path"`
	Depth      int    `json:"depth"`
	MaxEntries int    `json:"max_entries"`
}

func fsListHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var args fsListArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		args.Path = "."
	}
	if args.Depth <= 0 {
		args.Depth = 2
	}
	if args.Depth > maxListDepth {
		args.Depth = maxListDepth
	}
	if args.MaxEntries <= 0 || args.MaxEntries > maxListEntries {
		args.MaxEntries = maxListEntries
	}

	root, err := workspace.Resolve(tc.Root, args.Path)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	entries := 0
	var walk func(dir string, depth int, prefix string) error
	walk = func(dir string, depth int, prefix string) error {
		if depth > args.Depth || entries >= args.MaxEntries {
			return nil
		}
		items, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, item := range items {
			if entries >= args.MaxEntries {
				sb.WriteString(prefix + "...\n")
				return nil
			}
			entries++
			name := item.Name()
			if item.IsDir() {
				sb.WriteString(prefix + name + "/\n")
				if err := walk(filepath.Join(dir, name), depth+1, prefix+"  "); err != nil {
					return err
				}
			} else {
				info, err := item.Info()
				size := int64(0)
				if err == nil {
					size = info.Size()
				}
				fmt.Fprintf(&sb, "%s%s (%d bytes)\n", prefix, name, size)
			}
		}
		return nil
	}
	if err := walk(root, 1, ""); err != nil {
		return nil, err
	}
	if sb.Len() == 0 {
		return "(empty directory)", nil
	}
	return sb.String(), nil
}

var fsReadSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "File path relative to the workspace root"}
	},
	"required": ["path"]
}`)

type fsReadArgs struct {
	Path string `json:"path"`
}

func fsReadHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var args fsReadArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	abs, err := workspace.Resolve(tc.Root, args.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if tc.MaxFileReadChars > 0 && len(content) > tc.MaxFileReadChars {
		content = content[:tc.MaxFileReadChars] + TruncationMarker
	}
	return content, nil
}

var fsWriteSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "File path relative to the workspace root"},
		"content": {"type": "string"},
		"mode": {"type": "string", "enum": ["overwrite", "append"], "description": "Write mode (default overwrite)"}
	},
	"required": ["path", "content"]
}`)

type fsWriteArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

func fsWriteHandler(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
	var args fsWriteArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	abs, err := workspace.Resolve(tc.Root, args.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create parent dirs: %w", err)
	}

	switch args.Mode {
	case "", "overwrite":
		if err := os.WriteFile(abs, []byte(args.Content), 0o644); err != nil {
			return nil, fmt.Errorf("write file: %w", err)
		}
	case "append":
		f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(args.Content); err != nil {
			return nil, fmt.Errorf("append file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", args.Mode)
	}

	return map[string]any{"ok": true, "path": args.Path, "bytes": len(args.Content)}, nil
}
