// Package webfetch retrieves registry and sponsor web pages and turns them
// into documents trialkit can parse. Static HTTP is tried first; when a page
// comes back empty (script-rendered registries do this) an optional headless
// browser renders it. The HTML is sanitized, converted to markdown, and
// handed to docpipe.
package webfetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/veskar/trialkit/docpipe"
	"github.com/veskar/trialkit/guard"
)

// Config configures a Fetcher.
type Config struct {
	Timeout   time.Duration // HTTP timeout. Default: 30s.
	MaxBytes  int64         // Max response body size. Default: guard.MaxBody.
	UserAgent string        // Default: "trialkit/1.0".

	// URLCheck validates URLs before fetching and on every redirect.
	// Default: guard.CheckURL.
	URLCheck func(string) error

	// Renderer renders script-heavy pages when the static fetch yields no
	// usable content. Nil disables browser rendering.
	Renderer Renderer

	// MinStaticText is the minimum visible text length (in bytes, after
	// sanitization) below which the static result is considered empty and
	// the renderer is consulted. Default: 200.
	MinStaticText int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = guard.MaxBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "trialkit/1.0"
	}
	if c.URLCheck == nil {
		c.URLCheck = guard.CheckURL
	}
	if c.MinStaticText <= 0 {
		c.MinStaticText = 200
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer loads a page in a real browser and returns the final DOM as HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Page is the outcome of a fetch: the sanitized HTML, its markdown
// rendition, and whether a browser render was needed.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	StatusCode int    `json:"status_code"`
	HTML       string `json:"-"`
	Markdown   string `json:"markdown"`
	Rendered   bool   `json:"rendered"` // true if the browser path was used
}

// Fetcher retrieves and converts web pages.
type Fetcher struct {
	cfg       Config
	client    *http.Client
	sanitizer *bluemonday.Policy
	md        *converter.Converter
}

// New creates a Fetcher. Redirects are re-validated against the URL check
// so a public host cannot bounce the request to an internal address.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	check := cfg.URLCheck
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := check(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		sanitizer: bluemonday.UGCPolicy().AllowElements("table", "thead", "tbody", "tr", "th", "td", "caption", "title"),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Fetch retrieves url, sanitizes the HTML, and converts it to markdown.
// When the static fetch yields less visible text than MinStaticText and a
// Renderer is configured, the page is re-fetched through the browser.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := f.cfg.URLCheck(url); err != nil {
		return nil, fmt.Errorf("URL blocked: %w", err)
	}

	rawHTML, status, err := f.fetchStatic(ctx, url)
	if err != nil {
		return nil, err
	}

	page := f.convert(url, rawHTML)
	page.StatusCode = status

	if f.cfg.Renderer != nil && len(strings.TrimSpace(page.Markdown)) < f.cfg.MinStaticText {
		f.cfg.Logger.Debug("webfetch: static fetch too thin, rendering", "url", url, "static_len", len(page.Markdown))
		rendered, rerr := f.cfg.Renderer.Render(ctx, url)
		if rerr != nil {
			f.cfg.Logger.Warn("webfetch: browser render failed, keeping static result", "url", url, "error", rerr)
			return page, nil
		}
		page = f.convert(url, rendered)
		page.StatusCode = status
		page.Rendered = true
	}

	return page, nil
}

// Document fetches url and parses the markdown rendition into a structured
// document, ready for the CRF and protocol scanners.
func (f *Fetcher) Document(ctx context.Context, url string) (*docpipe.Document, *Page, error) {
	page, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	doc := docpipe.ParseMarkdown(url, []byte(page.Markdown))
	if doc.Title == "" {
		doc.Title = page.Title
	}
	return doc, page, nil
}

func (f *Fetcher) fetchStatic(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("http get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", resp.StatusCode, fmt.Errorf("http %d fetching %s", resp.StatusCode, url)
	}

	body, err := guard.ReadAtMost(resp.Body, f.cfg.MaxBytes)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return string(body), resp.StatusCode, nil
}

// convert sanitizes HTML and produces the markdown rendition. A conversion
// failure falls back to the sanitized text stripped of tags.
func (f *Fetcher) convert(url, rawHTML string) *Page {
	clean := f.sanitizer.Sanitize(rawHTML)

	md, err := f.md.ConvertString(clean, converter.WithDomain(url))
	if err != nil || strings.TrimSpace(md) == "" {
		f.cfg.Logger.Debug("webfetch: markdown conversion fell back to stripped text", "url", url, "error", err)
		md = bluemonday.StrictPolicy().Sanitize(rawHTML)
	}

	title, _, terr := docpipe.ExtractHTML([]byte(rawHTML))
	if terr != nil {
		title = ""
	}

	return &Page{
		URL:      url,
		Title:    title,
		HTML:     clean,
		Markdown: strings.TrimSpace(md),
	}
}
