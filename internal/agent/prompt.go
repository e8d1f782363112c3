package agent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jetlinks-ai/aistaff/internal/providers"
)

// Skill is an enabled team skill injected into the system prompt, ordered
// by id.
type Skill struct {
	ID      int64
	Name    string
	Content string
}

const defaultRoleTemplate = `You are a capable AI staff member working inside a shared team workspace.
Be direct and practical. Use the available tools to inspect files, produce
documents, and complete the user's request. Report results concisely.`

// Assembler composes the per-turn system prompt from a role template, the
// team's enabled skills, and the tool contract boilerplate. Role templates
// live as roles/<name>.md files and hot-reload on change.
type Assembler struct {
	rolesDir string

	mu        sync.RWMutex
	templates map[string]string

	watcher *fsnotify.Watcher
}

func NewAssembler(rolesDir string) *Assembler {
	a := &Assembler{rolesDir: rolesDir, templates: make(map[string]string)}
	a.loadAll()

	if rolesDir != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("roles watcher unavailable", "error", err)
			return a
		}
		if err := w.Add(rolesDir); err != nil {
			slog.Debug("roles dir not watched", "dir", rolesDir, "error", err)
			w.Close()
			return a
		}
		a.watcher = w
		go a.watchLoop()
	}
	return a
}

// Close stops the template watcher.
func (a *Assembler) Close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
}

func (a *Assembler) loadAll() {
	if a.rolesDir == "" {
		return
	}
	entries, err := os.ReadDir(a.rolesDir)
	if err != nil {
		return
	}
	loaded := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.rolesDir, e.Name()))
		if err != nil {
			continue
		}
		loaded[strings.TrimSuffix(e.Name(), ".md")] = string(data)
	}
	a.mu.Lock()
	a.templates = loaded
	a.mu.Unlock()
}

func (a *Assembler) watchLoop() {
	for {
		select {
		case ev, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				a.loadAll()
				slog.Debug("role templates reloaded", "trigger", ev.Name)
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("roles watcher error", "error", err)
		}
	}
}

// roleTemplate returns the template for role, or the built-in default.
func (a *Assembler) roleTemplate(role string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if t, ok := a.templates[role]; ok && strings.TrimSpace(t) != "" {
		return t
	}
	return defaultRoleTemplate
}

// Build composes the system message. The result is transient: it is
// re-synthesized on every request and never persisted in role=system form.
func (a *Assembler) Build(role string, skills []Skill, toolNames []string, workspaceHint string) providers.Message {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(a.roleTemplate(role)))
	sb.WriteString("\n")

	if workspaceHint != "" {
		fmt.Fprintf(&sb, "\nYour workspace root is %s. All file paths are relative to it.\n", workspaceHint)
	}

	if len(toolNames) > 0 {
		sb.WriteString("\n## Tools\n")
		sb.WriteString("Call tools when they help. Tool errors come back as results; adjust and retry or explain. ")
		sb.WriteString("Available: " + strings.Join(toolNames, ", ") + ".\n")
		sb.WriteString("Generated documents are returned to the user as download links — share the URL from the tool result.\n")
	}

	if len(skills) > 0 {
		ordered := make([]Skill, len(skills))
		copy(ordered, skills)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
		sb.WriteString("\n## Team skills\n")
		for _, s := range ordered {
			fmt.Fprintf(&sb, "### %s\n%s\n", s.Name, strings.TrimSpace(s.Content))
		}
	}

	return providers.Message{Role: "system", Content: sb.String()}
}
