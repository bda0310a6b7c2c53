package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/seed-price-scraper/internal/browser"
	"github.com/maltedev/seed-price-scraper/internal/ratelimit"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
	"github.com/maltedev/seed-price-scraper/internal/sites"
	"golang.org/x/sync/errgroup"
)

const (
	RunStatusPending     = "pending"
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
	RunStatusInterrupted = "interrupted"
	RunStatusSkipped     = "skipped"

	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
	TriggerCLI      = "cli"

	DefaultHistorySize = 50
	DefaultMaxParallel = 3
	queueSize          = 64
)

var (
	ErrUnknownSeedbank = errors.New("unknown seedbank")
	ErrQueueFull       = errors.New("run queue is full")
	ErrRunNotFound     = errors.New("run not found")
)

// Run is one scraper execution for one seedbank.
type Run struct {
	ID          string            `json:"id"`
	Seedbank    string            `json:"seedbank"`
	Trigger     string            `json:"trigger"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Stats       *scraper.RunStats `json:"stats,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// AlertChecker is implemented by *alerts.Engine.
type AlertChecker interface {
	CheckAlerts(ctx context.Context) (int, error)
	Sweep(ctx context.Context) (int64, error)
}

type Config struct {
	MaxParallel     int
	RateLimit       time.Duration
	RateLimitJitter time.Duration
	Scraper         scraper.Options
	// CategoryOverrides replaces an adapter's category paths, keyed by slug.
	CategoryOverrides map[string][]string
	ScrapeInterval    time.Duration
	SweepInterval     time.Duration
	HistorySize       int
	// CheckAlertsAfterRun runs an alert check whenever a run recorded prices.
	CheckAlertsAfterRun bool
}

// Manager runs scrapers, one orchestrator per seedbank, and keeps a bounded
// history of runs in memory.
type Manager struct {
	registry *sites.Registry
	launcher browser.Launcher
	guard    scraper.PolitenessGuard
	sink     scraper.ProductSink
	alerts   AlertChecker
	cfg      Config
	logger   *slog.Logger

	pending chan *Run

	mu      sync.Mutex
	history []*Run
	active  map[string]bool
}

func NewManager(registry *sites.Registry, launcher browser.Launcher, guard scraper.PolitenessGuard,
	sink scraper.ProductSink, checker AlertChecker, cfg Config, logger *slog.Logger) *Manager {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = ratelimit.DefaultInterval
	}

	return &Manager{
		registry: registry,
		launcher: launcher,
		guard:    guard,
		sink:     sink,
		alerts:   checker,
		cfg:      cfg,
		logger:   logger.With("component", "job_manager"),
		pending:  make(chan *Run, queueSize),
		active:   make(map[string]bool),
	}
}

func (m *Manager) Seedbanks() []scraper.Seedbank {
	return m.registry.Seedbanks()
}

// resolve maps slugs to adapters; no slugs means every registered seedbank.
func (m *Manager) resolve(slugs []string) ([]scraper.SiteAdapter, error) {
	if len(slugs) == 0 {
		return m.registry.All(), nil
	}

	adapters := make([]scraper.SiteAdapter, 0, len(slugs))
	for _, slug := range slugs {
		adapter, ok := m.registry.Get(slug)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSeedbank, slug)
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

func (m *Manager) newRun(slug, trigger string) *Run {
	run := &Run{
		ID:        uuid.New().String(),
		Seedbank:  slug,
		Trigger:   trigger,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append([]*Run{run}, m.history...)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[:m.cfg.HistorySize]
	}
	return run
}

// Enqueue schedules runs for the worker and returns them in pending state.
func (m *Manager) Enqueue(slugs []string, trigger string) ([]Run, error) {
	adapters, err := m.resolve(slugs)
	if err != nil {
		return nil, err
	}

	queued := make([]Run, 0, len(adapters))
	for _, adapter := range adapters {
		run := m.newRun(adapter.Seedbank().Slug, trigger)
		select {
		case m.pending <- run:
		default:
			m.finish(run, RunStatusSkipped, nil, ErrQueueFull)
			return queued, ErrQueueFull
		}
		queued = append(queued, m.snapshot(run))
	}

	m.logger.Info("runs enqueued", "count", len(queued), "trigger", trigger)
	return queued, nil
}

// RunScrapers runs the given seedbanks now, at most MaxParallel at a time,
// and waits for all of them. Failed runs are reported in the returned runs.
func (m *Manager) RunScrapers(ctx context.Context, slugs []string, trigger string) ([]Run, error) {
	adapters, err := m.resolve(slugs)
	if err != nil {
		return nil, err
	}

	runs := make([]*Run, len(adapters))
	for i, adapter := range adapters {
		runs[i] = m.newRun(adapter.Seedbank().Slug, trigger)
	}

	g := new(errgroup.Group)
	g.SetLimit(m.cfg.MaxParallel)
	for i, adapter := range adapters {
		g.Go(func() error {
			m.execute(ctx, adapter, runs[i])
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Run, len(runs))
	for i, run := range runs {
		out[i] = m.snapshot(run)
	}
	return out, ctx.Err()
}

// execute runs one orchestrator to completion and records the outcome.
func (m *Manager) execute(ctx context.Context, adapter scraper.SiteAdapter, run *Run) {
	slug := adapter.Seedbank().Slug
	logger := m.logger.With("run_id", run.ID, "seedbank", slug)

	if !m.claim(slug) {
		logger.Warn("seedbank already running, skipping")
		m.finish(run, RunStatusSkipped, nil, errors.New("another run is in progress"))
		return
	}
	defer m.release(slug)

	m.start(run)
	logger.Info("run started", "trigger", run.Trigger)

	opts := m.cfg.Scraper
	if paths, ok := m.cfg.CategoryOverrides[slug]; ok && len(paths) > 0 {
		opts.CategoryPaths = paths
	}
	limiter := ratelimit.NewSimpleRateLimiter(m.cfg.RateLimit, m.cfg.RateLimitJitter)
	orch := scraper.NewOrchestrator(adapter, m.launcher, m.guard, limiter, opts, m.logger)

	stats, err := orch.ScrapeAll(ctx, m.sink)
	switch {
	case err != nil:
		logger.Error("run failed", "error", err)
		m.finish(run, RunStatusFailed, stats, err)
		return
	case stats.Interrupted:
		m.finish(run, RunStatusInterrupted, stats, nil)
	default:
		m.finish(run, RunStatusCompleted, stats, nil)
	}

	logger.Info("run finished",
		"status", run.Status,
		"recorded", stats.Recorded,
		"duration", stats.Duration())

	if m.cfg.CheckAlertsAfterRun && stats.Recorded > 0 && ctx.Err() == nil {
		m.CheckAlerts(ctx)
	}
}

// CheckAlerts runs one alert check.
func (m *Manager) CheckAlerts(ctx context.Context) (int, error) {
	if m.alerts == nil {
		return 0, nil
	}

	triggered, err := m.alerts.CheckAlerts(ctx)
	if err != nil {
		m.logger.Error("alert check failed", "error", err)
	}
	return triggered, err
}

func (m *Manager) SweepAlerts(ctx context.Context) (int64, error) {
	if m.alerts == nil {
		return 0, nil
	}

	deleted, err := m.alerts.Sweep(ctx)
	if err != nil {
		m.logger.Error("alert sweep failed", "error", err)
	}
	return deleted, err
}

func (m *Manager) claim(slug string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[slug] {
		return false
	}
	m.active[slug] = true
	return true
}

func (m *Manager) release(slug string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, slug)
}

func (m *Manager) start(run *Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	run.Status = RunStatusRunning
	run.StartedAt = &now
}

func (m *Manager) finish(run *Run, status string, stats *scraper.RunStats, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	run.Stats = stats
	if err != nil {
		run.Error = err.Error()
	}
}

func (m *Manager) snapshot(run *Run) Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *run
	if run.Stats != nil {
		stats := *run.Stats
		out.Stats = &stats
	}
	return out
}

// ListRuns returns the run history, newest first.
func (m *Manager) ListRuns() []Run {
	m.mu.Lock()
	history := make([]*Run, len(m.history))
	copy(history, m.history)
	m.mu.Unlock()

	out := make([]Run, len(history))
	for i, run := range history {
		out[i] = m.snapshot(run)
	}
	return out
}

func (m *Manager) GetRun(id string) (Run, error) {
	m.mu.Lock()
	var found *Run
	for _, run := range m.history {
		if run.ID == id {
			found = run
			break
		}
	}
	m.mu.Unlock()

	if found == nil {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return m.snapshot(found), nil
}

// Running reports the seedbanks with a run in progress.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for slug := range m.active {
		out = append(out, slug)
	}
	return out
}
