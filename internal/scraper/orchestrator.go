package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/seed-price-scraper/internal/browser"
	"github.com/maltedev/seed-price-scraper/internal/ratelimit"
)

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateNavigating
	StateExtracting
	StateCaptchaAborted
	StateNavigationFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateNavigating:
		return "navigating"
	case StateExtracting:
		return "extracting"
	case StateCaptchaAborted:
		return "captcha_aborted"
	case StateNavigationFailed:
		return "navigation_failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultCaptchaMarkers match the bot walls commonly put in front of shop pages.
var DefaultCaptchaMarkers = []string{
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	"iframe[src*='challenges.cloudflare.com']",
	".g-recaptcha",
	".h-captcha",
	".cf-turnstile",
	"#challenge-form",
	"#cf-challenge-running",
	"form[action*='captcha']",
}

var errDisallowed = errors.New("disallowed by robots.txt")

type Options struct {
	NavigationTimeout time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	ProgressEvery     int
	// CategoryPaths overrides the adapter's category paths when non-empty.
	CategoryPaths []string
}

func DefaultOptions() Options {
	return Options{
		NavigationTimeout: 30 * time.Second,
		MaxRetries:        3,
		RetryBackoff:      3 * time.Second,
		ProgressEvery:     10,
	}
}

type RunStats struct {
	Seedbank       string    `json:"seedbank"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	URLsDiscovered int       `json:"urls_discovered"`
	Scraped        int       `json:"scraped"`
	Recorded       int       `json:"recorded"`
	Skipped        int       `json:"skipped"`
	Failed         int       `json:"failed"`
	Interrupted    bool      `json:"interrupted"`
}

func (s *RunStats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Orchestrator drives one SiteAdapter through a scraping run. It owns one
// browsing session and one rate limiter and is not safe for concurrent runs.
type Orchestrator struct {
	adapter  SiteAdapter
	launcher browser.Launcher
	guard    PolitenessGuard
	limiter  ratelimit.RateLimiter
	opts     Options
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	state   State
	session browser.Session
}

func NewOrchestrator(adapter SiteAdapter, launcher browser.Launcher, guard PolitenessGuard, limiter ratelimit.RateLimiter, opts Options, logger *slog.Logger) *Orchestrator {
	defaults := DefaultOptions()
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = defaults.NavigationTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaults.MaxRetries
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = defaults.RetryBackoff
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = defaults.ProgressEvery
	}
	if limiter == nil {
		limiter = ratelimit.NewSimpleRateLimiter(ratelimit.DefaultInterval, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		adapter:  adapter,
		launcher: launcher,
		guard:    guard,
		limiter:  limiter,
		opts:     opts,
		logger:   logger.With("component", "scraper", "seedbank", adapter.Seedbank().Slug),
		sleep:    sleepContext,
	}
}

func (o *Orchestrator) Adapter() SiteAdapter {
	return o.adapter
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateClosed {
		return
	}
	o.state = s
}

// Initialize acquires the browsing session. Calling it again is a no-op;
// calling it after Cleanup returns ErrClosed.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateClosed:
		return ErrClosed
	case StateUninitialized:
	default:
		return nil
	}

	session, err := o.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("failed to launch browsing session: %w", err)
	}

	o.session = session
	o.state = StateReady
	o.logger.Info("scraper initialized")
	return nil
}

// Cleanup releases the browsing session. Safe to call more than once.
func (o *Orchestrator) Cleanup() error {
	o.mu.Lock()
	if o.state == StateClosed {
		o.mu.Unlock()
		return nil
	}
	o.state = StateClosed
	session := o.session
	o.session = nil
	o.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close browsing session: %w", err)
	}
	o.logger.Info("scraper closed")
	return nil
}

func (o *Orchestrator) activeSession() (browser.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateClosed:
		return nil, ErrClosed
	case StateUninitialized:
		return nil, fmt.Errorf("scraper not initialized")
	}
	return o.session, nil
}

func (o *Orchestrator) categoryPaths() []string {
	if len(o.opts.CategoryPaths) > 0 {
		return o.opts.CategoryPaths
	}
	return o.adapter.CategoryPaths()
}

// DiscoverProductURLs walks every category page and returns the product links
// found, de-duplicated in discovery order. Categories that are disallowed,
// unreachable or behind a CAPTCHA are skipped.
func (o *Orchestrator) DiscoverProductURLs(ctx context.Context) ([]string, error) {
	if err := o.Initialize(ctx); err != nil {
		return nil, err
	}

	base, err := url.Parse(o.adapter.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", o.adapter.BaseURL(), err)
	}

	seen := make(map[string]struct{})
	var urls []string

	for _, path := range o.categoryPaths() {
		if err := ctx.Err(); err != nil {
			return urls, err
		}

		ref, err := url.Parse(path)
		if err != nil {
			o.logger.Warn("invalid category path", "path", path, "error", err)
			continue
		}
		categoryURL := base.ResolveReference(ref)

		links, err := o.collectLinks(ctx, categoryURL)
		if err != nil {
			if ctx.Err() != nil {
				return urls, ctx.Err()
			}
			if errors.Is(err, ErrClosed) {
				return urls, err
			}
			continue
		}

		added := 0
		for _, link := range links {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			urls = append(urls, link)
			added++
		}

		o.logger.Info("category discovered", "url", categoryURL.String(), "links", len(links), "new", added)
	}

	o.logger.Info("discovery completed", "product_urls", len(urls))
	return urls, nil
}

func (o *Orchestrator) collectLinks(ctx context.Context, categoryURL *url.URL) ([]string, error) {
	page, err := o.visit(ctx, categoryURL.String())
	if err != nil {
		return nil, err
	}
	defer page.Close()

	hrefs, err := page.Attributes(o.adapter.ProductLinkSelector(), "href")
	if err != nil {
		o.logger.Warn("failed to collect product links", "url", categoryURL.String(), "error", err)
		return nil, err
	}

	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		if link, ok := resolveLink(categoryURL, href); ok {
			links = append(links, link)
		}
	}
	return links, nil
}

// ScrapeProduct visits one product page and extracts it through the adapter.
// It returns nil without error when robots.txt disallows the page, a CAPTCHA
// blocks it, or the page lacks a name or price.
func (o *Orchestrator) ScrapeProduct(ctx context.Context, productURL string) (*ScrapedProduct, error) {
	page, err := o.visit(ctx, productURL)
	switch {
	case errors.Is(err, errDisallowed), errors.Is(err, ErrCaptcha):
		return nil, nil
	case err != nil:
		return nil, err
	}
	defer page.Close()

	o.setState(StateExtracting)
	defer o.setState(StateReady)

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	product, err := o.adapter.Extract(doc, productURL)
	if err != nil {
		o.logger.Warn("extraction failed", "url", productURL, "error", err)
		return nil, nil
	}
	if !product.Complete() {
		o.logger.Debug("product missing required fields", "url", productURL)
		return nil, nil
	}

	if product.URL == "" {
		product.URL = productURL
	}
	if product.SeedCount < 1 {
		product.SeedCount = 1
	}
	return product, nil
}

// visit runs the politeness, pacing, navigation and CAPTCHA discipline for
// target and returns the open page. The caller closes it.
func (o *Orchestrator) visit(ctx context.Context, target string) (browser.Page, error) {
	session, err := o.activeSession()
	if err != nil {
		return nil, err
	}

	base, path, err := splitTarget(target)
	if err != nil {
		o.logger.Warn("invalid url", "url", target, "error", err)
		return nil, err
	}

	if o.guard != nil && !o.guard.IsAllowed(ctx, base, path) {
		o.logger.Warn("skipping url disallowed by robots.txt", "url", target)
		return nil, errDisallowed
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	page, err := session.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := o.navigateWithRetry(ctx, page, target); err != nil {
		page.Close()
		o.setState(StateNavigationFailed)
		o.logger.Warn("giving up on url", "url", target, "error", err)
		o.setState(StateReady)
		return nil, err
	}

	if marker, found := o.detectCaptcha(page); found {
		page.Close()
		o.setState(StateCaptchaAborted)
		o.logger.Warn("captcha detected, aborting page", "url", target, "marker", marker)
		o.setState(StateReady)
		return nil, ErrCaptcha
	}

	o.setState(StateReady)
	return page, nil
}

// navigateWithRetry waits RetryBackoff*n after failed attempt n, except after
// the last one.
func (o *Orchestrator) navigateWithRetry(ctx context.Context, page browser.Page, target string) error {
	var lastErr error

	for attempt := 1; attempt <= o.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		o.setState(StateNavigating)
		err := page.Goto(target, o.opts.NavigationTimeout)
		if err == nil {
			return nil
		}
		lastErr = err

		o.logger.Warn("navigation attempt failed",
			"url", target,
			"attempt", attempt,
			"max_attempts", o.opts.MaxRetries,
			"error", err,
		)

		if attempt < o.opts.MaxRetries {
			if err := o.sleep(ctx, o.opts.RetryBackoff*time.Duration(attempt)); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %v", ErrNavigationFailed, target, o.opts.MaxRetries, lastErr)
}

func (o *Orchestrator) captchaMarkers() []string {
	markers := DefaultCaptchaMarkers
	if cm, ok := o.adapter.(CaptchaMarker); ok {
		extra := cm.CaptchaMarkers()
		markers = make([]string, 0, len(DefaultCaptchaMarkers)+len(extra))
		markers = append(markers, DefaultCaptchaMarkers...)
		markers = append(markers, extra...)
	}
	return markers
}

func (o *Orchestrator) detectCaptcha(page browser.Page) (string, bool) {
	for _, selector := range o.captchaMarkers() {
		found, err := page.Exists(selector)
		if err != nil {
			o.logger.Debug("captcha probe failed", "selector", selector, "error", err)
			continue
		}
		if found {
			return selector, true
		}
	}
	return "", false
}

// ScrapeAll runs initialize, discovery and product scraping, handing each
// product to sink. The session is always released before returning. A
// cancelled context stops the run after the current product.
func (o *Orchestrator) ScrapeAll(ctx context.Context, sink ProductSink) (stats *RunStats, err error) {
	seedbank := o.adapter.Seedbank()
	stats = &RunStats{
		Seedbank:  seedbank.Slug,
		StartedAt: time.Now(),
	}

	defer func() {
		if cerr := o.Cleanup(); cerr != nil {
			o.logger.Warn("cleanup failed", "error", cerr)
		}
		stats.FinishedAt = time.Now()
	}()

	if err := o.Initialize(ctx); err != nil {
		o.logger.Error("scraper initialization failed", "error", err)
		return stats, err
	}

	urls, err := o.DiscoverProductURLs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			stats.Interrupted = true
			o.logger.Warn("run interrupted during discovery", "product_urls", len(urls))
			return stats, nil
		}
		return stats, err
	}
	stats.URLsDiscovered = len(urls)

	for i, productURL := range urls {
		if ctx.Err() != nil {
			stats.Interrupted = true
			o.logger.Warn("run interrupted", "processed", i, "total", len(urls))
			break
		}

		product, err := o.ScrapeProduct(ctx, productURL)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				stats.Interrupted = true
				break
			}
			stats.Failed++
			o.logger.Warn("product scrape failed", "url", productURL, "error", err)
		case product == nil:
			stats.Skipped++
		default:
			stats.Scraped++
			if sink == nil {
				break
			}
			// The current product is finished even when shutdown was requested meanwhile.
			if err := sink.Record(context.WithoutCancel(ctx), seedbank, product); err != nil {
				stats.Failed++
				o.logger.Warn("failed to record product", "url", productURL, "error", err)
			} else {
				stats.Recorded++
			}
		}

		if (i+1)%o.opts.ProgressEvery == 0 {
			o.logger.Info("scrape progress",
				"processed", i+1,
				"total", len(urls),
				"scraped", stats.Scraped,
				"failed", stats.Failed,
			)
		}
	}

	o.logger.Info("scrape run completed",
		"urls", stats.URLsDiscovered,
		"scraped", stats.Scraped,
		"recorded", stats.Recorded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"interrupted", stats.Interrupted,
	)
	return stats, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func splitTarget(target string) (base, path string, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("url %q is not absolute", target)
	}
	return u.Scheme + "://" + u.Host, u.RequestURI(), nil
}

func resolveLink(page *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := page.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
