package artifacts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// GC sweeps the artifact root for orphaned files: objects older than the
// configured TTL whose index row has been removed. Live rows are never
// touched.
type GC struct {
	store *Store
	ttl   time.Duration
	cron  string
}

func NewGC(store *Store, ttl time.Duration, cronExpr string) *GC {
	if cronExpr == "" {
		cronExpr = "*/30 * * * *"
	}
	return &GC{store: store, ttl: ttl, cron: cronExpr}
}

// Run blocks until ctx is done, sweeping whenever the cron expression is due.
func (g *GC) Run(ctx context.Context) {
	gron := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := gron.IsDue(g.cron, time.Now())
			if err != nil {
				slog.Warn("artifact gc: bad cron expression", "cron", g.cron, "error", err)
				return
			}
			if due {
				if n, err := g.Sweep(ctx); err != nil {
					slog.Warn("artifact gc sweep failed", "error", err)
				} else if n > 0 {
					slog.Info("artifact gc sweep", "removed", n)
				}
			}
		}
	}
}

// Sweep removes orphaned files past the TTL. Returns the number removed.
func (g *GC) Sweep(ctx context.Context) (int, error) {
	live, err := g.store.index.ListFileIDs(ctx)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(g.store.root)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-g.ttl)
	removed := 0
	for _, ent := range entries {
		if ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		if live[ent.Name()] {
			continue
		}
		info, err := ent.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(g.store.root, ent.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
