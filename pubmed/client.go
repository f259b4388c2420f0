package pubmed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultBaseURL is the NCBI E-utilities endpoint.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"

// NCBI allows 3 requests per second without an api key and 10 with one.
const (
	intervalNoKey   = time.Second / 3
	intervalWithKey = time.Second / 10
)

// Config configures a Client.
type Config struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Email    string        `yaml:"email"` // NCBI asks for a contact address on heavy use
	Timeout  time.Duration `yaml:"timeout"`
	CacheDir string        `yaml:"cache_dir"` // empty disables the response cache
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Logger   *slog.Logger  `yaml:"-"`
}

// Client talks to the E-utilities API.
type Client struct {
	baseURL string
	apiKey  string
	email   string
	http    *http.Client
	cache   *diskCache
	logger  *slog.Logger

	mu       sync.Mutex
	nextCall time.Time
	interval time.Duration
}

// NewClient creates a Client. The zero Config gives an uncached client
// against the public endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	interval := intervalNoKey
	if cfg.APIKey != "" {
		interval = intervalWithKey
	}

	c := &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		email:    cfg.Email,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
		interval: interval,
	}

	if cfg.CacheDir != "" {
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		cache, err := newDiskCache(cfg.CacheDir, ttl)
		if err != nil {
			return nil, fmt.Errorf("pubmed cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// doGet performs one rate-limited GET against an E-utilities endpoint,
// consulting the cache first.
func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	fullURL := c.baseURL + endpoint + "?" + params.Encode()

	if c.cache != nil {
		if data, ok := c.cache.get(fullURL); ok {
			c.logger.Debug("pubmed cache hit", "endpoint", endpoint)
			return data, nil
		}
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s returned %s: %s", endpoint, resp.Status, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.put(fullURL, data); err != nil {
			c.logger.Warn("pubmed cache write failed", "error", err)
		}
	}
	return data, nil
}

// throttle blocks until the next request slot, or the context is done.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	wait := c.nextCall.Sub(now)
	if wait < 0 {
		wait = 0
	}
	c.nextCall = now.Add(wait + c.interval)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
