package httpapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jetlinks-ai/aistaff/internal/agent"
	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/artifacts"
	"github.com/jetlinks-ai/aistaff/internal/auth"
	"github.com/jetlinks-ai/aistaff/internal/browser"
	"github.com/jetlinks-ai/aistaff/internal/config"
	"github.com/jetlinks-ai/aistaff/internal/docgen"
	"github.com/jetlinks-ai/aistaff/internal/events"
	"github.com/jetlinks-ai/aistaff/internal/sessions"
	"github.com/jetlinks-ai/aistaff/internal/store"
)

// Handlers bundles the request handlers and their dependencies.
type Handlers struct {
	Cfg       *config.Config
	Store     *store.SQLStore
	Snapshots *store.Snapshots
	Sessions  *sessions.Store
	Loop      *agent.Loop
	Assembler *agent.Assembler
	Artifacts *artifacts.Store
	Browser   *browser.Manager
	Renderer  docgen.Renderer

	// Broadcast forwards turn events to WebSocket clients; may be nil.
	Broadcast func(teamID string, e events.Event)
}

// principal extracts the authenticated caller, set by the gateway middleware.
func principal(ctx context.Context) (*auth.Principal, error) {
	p := auth.FromContext(ctx)
	if p == nil {
		return nil, apierr.New(apierr.KindAuth, "missing principal")
	}
	return p, nil
}

// resolveRoot picks the workspace root for a request:
// explicit project (enabled, in team, under the allow-list) → team workspace
// → server default. The directory is created on first use.
func (h *Handlers) resolveRoot(ctx context.Context, teamID, projectID string) (string, error) {
	var root string
	switch {
	case projectID != "":
		proj, err := h.Store.GetProject(ctx, teamID, projectID)
		if err != nil {
			return "", err
		}
		if !proj.Enabled {
			return "", apierr.Newf(apierr.KindNotFound, "project %s is disabled", projectID)
		}
		root = proj.Path
	default:
		team, err := h.Store.GetTeam(ctx, teamID)
		if err != nil {
			return "", err
		}
		if team.WorkspacePath != "" {
			root = team.WorkspacePath
		} else {
			root = filepath.Join(h.Cfg.Workspace.Default, teamID)
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create workspace root: %w", err)
	}
	return abs, nil
}

// pathParam extracts the trailing path element after prefix.
func pathParam(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	return strings.Trim(rest, "/")
}
