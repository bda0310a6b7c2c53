package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/seed-price-scraper/internal/browser/browsertest"
	"github.com/maltedev/seed-price-scraper/internal/normalize"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
	"github.com/maltedev/seed-price-scraper/internal/sites"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type shopAdapter struct {
	slug string
}

func (a shopAdapter) Seedbank() scraper.Seedbank {
	return scraper.Seedbank{Name: strings.ToUpper(a.slug), Slug: a.slug, Reliability: 0.9}
}

func (a shopAdapter) BaseURL() string             { return "https://" + a.slug + ".test" }
func (a shopAdapter) CategoryPaths() []string     { return []string{"/samen"} }
func (a shopAdapter) ProductLinkSelector() string { return "a.product" }

func (a shopAdapter) Extract(doc *goquery.Document, pageURL string) (*scraper.ScrapedProduct, error) {
	p := &scraper.ScrapedProduct{
		Name:      strings.TrimSpace(doc.Find("h1").Text()),
		InStock:   true,
		SeedCount: 3,
		PackSize:  "3 Samen",
	}
	if v, ok := normalize.Price(doc.Find(".price").Text()); ok {
		p.Price = &v
	}
	return p, nil
}

func serveShop(l *browsertest.Launcher, a shopAdapter, products int) {
	var links strings.Builder
	for i := 1; i <= products; i++ {
		productURL := fmt.Sprintf("%s/p/%d", a.BaseURL(), i)
		fmt.Fprintf(&links, `<a class="product" href="/p/%d">p</a>`, i)
		l.ServeHTML(productURL, fmt.Sprintf(`<h1>Strain %d</h1><span class="price">%d,99 €</span>`, i, 20+i))
	}
	l.ServeHTML(a.BaseURL()+"/samen", "<html><body>"+links.String()+"</body></html>")
}

type recordingSink struct {
	mu       sync.Mutex
	products map[string]int
	// hold, when set, blocks records of that seedbank until release closes.
	hold    string
	release chan struct{}
}

func (s *recordingSink) Record(_ context.Context, bank scraper.Seedbank, _ *scraper.ScrapedProduct) error {
	if bank.Slug == s.hold {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[bank.Slug]++
	return nil
}

func (s *recordingSink) count(slug string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[slug]
}

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) CheckAlerts(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockChecker) Sweep(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type harness struct {
	launcher *browsertest.Launcher
	sink     *recordingSink
	manager  *Manager
}

func newHarness(t *testing.T, checker AlertChecker, cfg Config) *harness {
	t.Helper()

	alpha, beta := shopAdapter{slug: "alpha"}, shopAdapter{slug: "beta"}
	registry, err := sites.NewRegistry(alpha, beta)
	require.NoError(t, err)

	launcher := browsertest.NewLauncher()
	serveShop(launcher, alpha, 2)
	serveShop(launcher, beta, 3)

	cfg.RateLimit = time.Millisecond
	cfg.Scraper = scraper.Options{MaxRetries: 1, RetryBackoff: 0}

	sink := &recordingSink{products: make(map[string]int)}
	return &harness{
		launcher: launcher,
		sink:     sink,
		manager:  NewManager(registry, launcher, nil, sink, checker, cfg, slog.Default()),
	}
}

func TestRunScrapers_AllSeedbanks(t *testing.T) {
	h := newHarness(t, nil, Config{MaxParallel: 2})

	runs, err := h.manager.RunScrapers(context.Background(), nil, TriggerCLI)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	for _, run := range runs {
		assert.Equal(t, RunStatusCompleted, run.Status, run.Seedbank)
		assert.Equal(t, TriggerCLI, run.Trigger)
		require.NotNil(t, run.Stats)
		require.NotNil(t, run.CompletedAt)
	}

	assert.Equal(t, 2, runs[0].Stats.Recorded)
	assert.Equal(t, 3, runs[1].Stats.Recorded)
	assert.Equal(t, 2, h.sink.count("alpha"))
	assert.Equal(t, 3, h.sink.count("beta"))
	assert.Equal(t, 2, h.launcher.Launches(), "one session per seedbank")
	assert.Empty(t, h.manager.Running())
}

func TestRunScrapers_UnknownSeedbank(t *testing.T) {
	h := newHarness(t, nil, Config{})

	_, err := h.manager.RunScrapers(context.Background(), []string{"alpha", "nope"}, TriggerCLI)
	assert.ErrorIs(t, err, ErrUnknownSeedbank)
	assert.Empty(t, h.manager.ListRuns())
}

func TestRunScrapers_LaunchFailure(t *testing.T) {
	h := newHarness(t, nil, Config{})
	h.launcher.LaunchErr = errors.New("chromium missing")

	runs, err := h.manager.RunScrapers(context.Background(), []string{"alpha"}, TriggerAPI)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "chromium missing")
}

func TestRunScrapers_CategoryOverride(t *testing.T) {
	h := newHarness(t, nil, Config{CategoryOverrides: map[string][]string{"alpha": {"/sale"}}})
	h.launcher.ServeHTML("https://alpha.test/sale", `<a class="product" href="/p/1">p</a>`)

	runs, err := h.manager.RunScrapers(context.Background(), []string{"alpha"}, TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, 1, runs[0].Stats.Recorded)
	assert.Zero(t, h.launcher.Gotos("https://alpha.test/samen"))
}

func TestRunScrapers_ChecksAlertsAfterRecording(t *testing.T) {
	checker := new(mockChecker)
	checker.On("CheckAlerts", mock.Anything).Return(1, nil)
	h := newHarness(t, checker, Config{CheckAlertsAfterRun: true})

	_, err := h.manager.RunScrapers(context.Background(), []string{"beta"}, TriggerCLI)
	require.NoError(t, err)

	checker.AssertNumberOfCalls(t, "CheckAlerts", 1)
}

func TestHistory_IsBoundedNewestFirst(t *testing.T) {
	h := newHarness(t, nil, Config{HistorySize: 3})
	ctx := context.Background()

	var last Run
	for range 4 {
		runs, err := h.manager.RunScrapers(ctx, []string{"alpha"}, TriggerCLI)
		require.NoError(t, err)
		last = runs[0]
	}

	history := h.manager.ListRuns()
	require.Len(t, history, 3)
	assert.Equal(t, last.ID, history[0].ID)

	got, err := h.manager.GetRun(last.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)

	_, err = h.manager.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestClaim_OneRunPerSeedbank(t *testing.T) {
	h := newHarness(t, nil, Config{})

	assert.True(t, h.manager.claim("alpha"))
	assert.False(t, h.manager.claim("alpha"))
	assert.True(t, h.manager.claim("beta"))
	assert.ElementsMatch(t, []string{"alpha", "beta"}, h.manager.Running())

	h.manager.release("alpha")
	assert.True(t, h.manager.claim("alpha"))
}

func TestStartWorker_ProcessesQueue(t *testing.T) {
	checker := new(mockChecker)
	checker.On("Sweep", mock.Anything).Return(int64(0), nil).Maybe()
	h := newHarness(t, checker, Config{SweepInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.manager.StartWorker(ctx)
		close(done)
	}()

	queued, err := h.manager.Enqueue([]string{"beta"}, TriggerAPI)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, RunStatusPending, queued[0].Status)

	require.Eventually(t, func() bool {
		run, err := h.manager.GetRun(queued[0].ID)
		return err == nil && run.Status == RunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, h.sink.count("beta"))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestStartWorker_ServesTicksWhileSlotsAreBusy(t *testing.T) {
	var sweeps atomic.Int32
	checker := new(mockChecker)
	checker.On("Sweep", mock.Anything).Return(int64(0), nil).Run(func(mock.Arguments) { sweeps.Add(1) })
	h := newHarness(t, checker, Config{MaxParallel: 1, SweepInterval: 10 * time.Millisecond})
	h.sink.hold = "alpha"
	h.sink.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.manager.StartWorker(ctx)
		close(done)
	}()

	queued, err := h.manager.Enqueue([]string{"alpha", "beta"}, TriggerAPI)
	require.NoError(t, err)
	require.Len(t, queued, 2)

	require.Eventually(t, func() bool {
		run, err := h.manager.GetRun(queued[0].ID)
		return err == nil && run.Status == RunStatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	before := sweeps.Load()
	require.Eventually(t, func() bool { return sweeps.Load() >= before+2 }, 2*time.Second, 10*time.Millisecond,
		"sweep ticks must fire while the only slot is taken")

	waiting, err := h.manager.GetRun(queued[1].ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, waiting.Status)

	cancel()
	close(h.sink.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestEnqueue_UnknownSeedbank(t *testing.T) {
	h := newHarness(t, nil, Config{})

	_, err := h.manager.Enqueue([]string{"nope"}, TriggerAPI)
	assert.ErrorIs(t, err, ErrUnknownSeedbank)
}
