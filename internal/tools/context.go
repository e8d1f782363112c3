package tools

import (
	"time"

	"github.com/jetlinks-ai/aistaff/internal/artifacts"
	"github.com/jetlinks-ai/aistaff/internal/browser"
	"github.com/jetlinks-ai/aistaff/internal/capability"
	"github.com/jetlinks-ai/aistaff/internal/docgen"
)

// Context carries the per-turn request scope into tool handlers: tenant
// identity, the resolved workspace root, the effective capability set,
// budgets, and the shared service handles. Turns are serialized per session,
// so handlers see a stable Context for the duration of a dispatch.
type Context struct {
	TeamID    string
	ProjectID string
	SessionID string

	// Root bounds every filesystem operation of this turn.
	Root string

	Caps capability.Set

	Artifacts *artifacts.Store
	Browser   *browser.Manager
	Renderer  docgen.Renderer

	// BaseURL prefixes download URLs in tool results ("" = relative URLs).
	BaseURL     string
	DownloadTTL time.Duration

	MaxFileReadChars   int
	MaxToolOutputChars int
}

// downloadURL mints a tokenized URL for a registered artifact.
func (c *Context) downloadURL(fileID string) (string, error) {
	ttl := c.DownloadTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return c.Artifacts.DownloadURL(c.BaseURL, fileID, c.TeamID, ttl)
}
