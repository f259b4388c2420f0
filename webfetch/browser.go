package webfetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures the headless renderer.
type BrowserConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// NavigateTimeout bounds page navigation and load. Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserRenderer renders pages through headless Chrome with stealth
// patches applied, for registries that serve their content via scripts.
// Chrome is launched lazily on the first Render call.
type BrowserRenderer struct {
	cfg BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowserRenderer creates a renderer. Call Close when done.
func NewBrowserRenderer(cfg BrowserConfig) *BrowserRenderer {
	cfg.defaults()
	return &BrowserRenderer{cfg: cfg}
}

// Render loads url in a stealth page and returns the settled DOM as HTML.
func (r *BrowserRenderer) Render(ctx context.Context, url string) (string, error) {
	b, err := r.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return "", fmt.Errorf("webfetch: create stealth page: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return "", fmt.Errorf("webfetch: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		r.cfg.Logger.Warn("webfetch: wait load timeout", "url", url, "error", err)
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("webfetch: read DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close shuts Chrome down. The renderer cannot be reused afterwards.
func (r *BrowserRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			r.cfg.Logger.Warn("webfetch: browser close", "error", err)
		}
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
		r.lnch = nil
	}
	return nil
}

func (r *BrowserRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	wsURL := r.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("webfetch: launch chrome: %w", err)
		}
		wsURL = u
		r.lnch = l
		r.cfg.Logger.Info("webfetch: launched local chrome", "url", wsURL)
	} else {
		r.cfg.Logger.Info("webfetch: connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("webfetch: connect chrome: %w", err)
	}
	r.browser = b
	return b, nil
}
