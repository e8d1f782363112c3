// Package browser manages session-scoped headless browser instances for the
// browser_* tools and the /browser endpoints. One browser per chat session,
// closed on idle timeout.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var ErrNotStarted = errors.New("browser not started for session")

// maxScreenshotWidth bounds registered screenshots; wider captures are
// downscaled before registration.
const maxScreenshotWidth = 1600

const idleTimeout = 10 * time.Minute

type instance struct {
	browser  *rod.Browser
	page     *rod.Page
	lastUsed time.Time
	cleanup  func()
}

// Manager holds at most one live browser per session id.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*instance
	headless  bool
}

func NewManager(headless bool) *Manager {
	m := &Manager{instances: make(map[string]*instance), headless: headless}
	go m.reapLoop()
	return m
}

// Start launches a browser for the session, replacing any existing one.
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.instances[sessionID]; ok {
		old.close()
	}

	l := launcher.New().Headless(m.headless)
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect browser: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.Close()
		l.Cleanup()
		return fmt.Errorf("open page: %w", err)
	}

	m.instances[sessionID] = &instance{
		browser:  b,
		page:     page,
		lastUsed: time.Now(),
		cleanup:  l.Cleanup,
	}
	return nil
}

// Navigate loads url in the session's page and waits for the load event.
func (m *Manager) Navigate(ctx context.Context, sessionID, url string) error {
	inst, err := m.get(sessionID)
	if err != nil {
		return err
	}
	page := inst.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

// Screenshot captures the session's current page as PNG, downscaled when
// wider than maxScreenshotWidth.
func (m *Manager) Screenshot(ctx context.Context, sessionID string) ([]byte, error) {
	inst, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := inst.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return downscale(raw)
}

// Stop closes the session's browser if one is running.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[sessionID]; ok {
		inst.close()
		delete(m.instances, sessionID)
	}
}

// CloseAll tears down every live browser (server shutdown).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, inst := range m.instances {
		inst.close()
		delete(m.instances, id)
	}
}

func (m *Manager) get(sessionID string) (*instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[sessionID]
	if !ok {
		return nil, ErrNotStarted
	}
	inst.lastUsed = time.Now()
	return inst, nil
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		for id, inst := range m.instances {
			if time.Since(inst.lastUsed) > idleTimeout {
				inst.close()
				delete(m.instances, id)
				slog.Info("browser reaped", "session", id)
			}
		}
		m.mu.Unlock()
	}
}

func (i *instance) close() {
	if i.browser != nil {
		_ = i.browser.Close()
	}
	if i.cleanup != nil {
		i.cleanup()
	}
}

func downscale(png []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		// Undecodable capture: return as-is rather than failing the tool.
		return png, nil
	}
	if img.Bounds().Dx() <= maxScreenshotWidth {
		return png, nil
	}
	resized := imaging.Resize(img, maxScreenshotWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return png, nil
	}
	return buf.Bytes(), nil
}
