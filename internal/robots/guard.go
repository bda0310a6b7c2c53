package robots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultUserAgent = "SeedPriceBot"
	maxRobotsBytes   = 512 * 1024
)

// Guard answers whether a path may be crawled according to the host's
// robots.txt. Rules are fetched once per host and kept for the lifetime of
// the process. Fetch failures fail open.
type Guard struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.Group
	group singleflight.Group
}

type Options struct {
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

func NewGuard(opts Options, logger *slog.Logger) *Guard {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Guard{
		client:    client,
		userAgent: opts.UserAgent,
		logger:    logger.With("component", "robots"),
		cache:     make(map[string]*robotstxt.Group),
	}
}

// IsAllowed reports whether path on baseURL may be fetched by our user agent.
func (g *Guard) IsAllowed(ctx context.Context, baseURL, path string) bool {
	host, err := hostKey(baseURL)
	if err != nil {
		g.logger.Warn("invalid base url, allowing", "base_url", baseURL, "error", err)
		return true
	}

	group := g.rules(ctx, host)
	if group == nil {
		return true
	}

	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// rules returns the cached group for host, fetching it on first use.
// A nil group means "no restrictions".
func (g *Guard) rules(ctx context.Context, host string) *robotstxt.Group {
	g.mu.RLock()
	group, ok := g.cache[host]
	g.mu.RUnlock()
	if ok {
		return group
	}

	v, _, _ := g.group.Do(host, func() (interface{}, error) {
		g.mu.RLock()
		cached, ok := g.cache[host]
		g.mu.RUnlock()
		if ok {
			return cached, nil
		}

		fetched := g.fetch(ctx, host)

		// Cut short by the caller: leave it for the next caller to retry.
		if ctx.Err() != nil {
			return fetched, nil
		}

		g.mu.Lock()
		g.cache[host] = fetched
		g.mu.Unlock()

		return fetched, nil
	})

	return v.(*robotstxt.Group)
}

func (g *Guard) fetch(ctx context.Context, host string) *robotstxt.Group {
	robotsURL := host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		g.logger.Warn("failed to build robots request, allowing", "url", robotsURL, "error", err)
		return nil
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("failed to fetch robots.txt, allowing", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		g.logger.Debug("no robots.txt, allowing all", "url", robotsURL)
		return nil
	default:
		g.logger.Warn("unexpected robots.txt status, allowing", "url", robotsURL, "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		g.logger.Warn("failed to read robots.txt, allowing", "url", robotsURL, "error", err)
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		g.logger.Warn("failed to parse robots.txt, allowing", "url", robotsURL, "error", err)
		return nil
	}

	g.logger.Info("loaded robots.txt", "url", robotsURL)
	return data.FindGroup(g.userAgent)
}

// Forget drops the cached rules for baseURL so the next check refetches them.
func (g *Guard) Forget(baseURL string) {
	host, err := hostKey(baseURL)
	if err != nil {
		return
	}
	g.mu.Lock()
	delete(g.cache, host)
	g.mu.Unlock()
}

func hostKey(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q has no scheme or host", baseURL)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}
