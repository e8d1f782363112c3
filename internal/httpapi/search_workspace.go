package httpapi

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/jetlinks-ai/aistaff/internal/workspace"
)

// searchWorkspace matches file names under the request's workspace root
// (optionally narrowed to sub_path) against q.
func (h *Handlers) searchWorkspace(ctx context.Context, teamID, projectID, subPath, q string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	root, err := h.resolveRoot(ctx, teamID, projectID)
	if err != nil {
		return nil, err
	}
	start := root
	if subPath != "" {
		start, err = workspace.Resolve(root, subPath)
		if err != nil {
			return nil, err
		}
	}

	needle := strings.ToLower(q)
	var hits []string
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(hits) >= limit {
			return fs.SkipAll
		}
		if d.IsDir() {
			return nil
		}
		if strings.Contains(strings.ToLower(d.Name()), needle) {
			if rel, relErr := workspace.RelativeTo(root, path); relErr == nil {
				hits = append(hits, rel)
			}
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return nil, err
	}
	return hits, nil
}
