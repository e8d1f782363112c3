// Package workspace translates tool-supplied relative paths into absolute
// paths rooted at a team- or project-scoped directory, and refuses paths
// that escape the root or touch sensitive names.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscape    = errors.New("path escapes workspace root")
	ErrSensitivePath = errors.New("path touches a sensitive file")
)

// Segments that must never be traversed from within a workspace.
var sensitiveSegments = map[string]bool{
	".aistaff":    true,
	".jetlinks-ai": true,
}

// Env sample files that stay readable; any other .env* basename is refused.
var envSamples = map[string]bool{
	".env.example":  true,
	".env.sample":   true,
	".env.template": true,
}

// Resolve turns rel into an absolute path under root. It follows symlinks in
// every existing ancestor so a link pointing outside the root fails with
// ErrPathEscape rather than silently escaping.
func Resolve(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("empty workspace root")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	rootReal, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		// Root not created yet; compare against the lexical form.
		rootReal = absRoot
	}

	var candidate string
	if filepath.IsAbs(rel) {
		candidate = filepath.Clean(rel)
	} else {
		candidate = filepath.Clean(filepath.Join(rootReal, rel))
	}

	real, err := evalExisting(candidate)
	if err != nil {
		return "", err
	}
	if !isInside(real, rootReal) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	if err := checkSensitive(real, rootReal); err != nil {
		return "", err
	}
	return real, nil
}

// RelativeTo inverts Resolve: abs under root → the root-relative path.
func RelativeTo(root, abs string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	rootReal, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		rootReal = absRoot
	}
	rel, err := filepath.Rel(rootReal, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, abs)
	}
	return rel, nil
}

// evalExisting resolves symlinks through the deepest existing ancestor,
// then rejoins the non-existent tail lexically.
func evalExisting(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	dir, base := filepath.Split(filepath.Clean(path))
	dir = strings.TrimSuffix(dir, string(filepath.Separator))
	if dir == "" || dir == path {
		return filepath.Clean(path), nil
	}
	parent, err := evalExisting(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}

func isInside(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// checkSensitive refuses .env-family basenames and traversal of reserved
// dot-directories anywhere below the root.
func checkSensitive(abs, root string) error {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return nil
	}
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		if sensitiveSegments[seg] {
			return fmt.Errorf("%w: %s", ErrSensitivePath, seg)
		}
	}
	base := filepath.Base(abs)
	if base == ".env" || (strings.HasPrefix(base, ".env.") && !envSamples[base]) {
		return fmt.Errorf("%w: %s", ErrSensitivePath, base)
	}
	return nil
}
