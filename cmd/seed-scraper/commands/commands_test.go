package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/maltedev/seed-price-scraper/internal/browser"
	"github.com/maltedev/seed-price-scraper/internal/config"
	"github.com/maltedev/seed-price-scraper/internal/jobs"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
)

func TestBrowserOptions(t *testing.T) {
	defaults := browser.DefaultOptions()

	opts := browserOptions(config.BrowserConfig{
		Headless:    false,
		Timeout:     45 * time.Second,
		ProxyServer: "http://proxy:3128",
	})

	assert.False(t, opts.Headless)
	assert.Equal(t, 45*time.Second, opts.Timeout)
	assert.Equal(t, "http://proxy:3128", opts.ProxyServer)
	assert.Equal(t, defaults.UserAgent, opts.UserAgent)
	assert.Equal(t, defaults.ViewportWidth, opts.ViewportWidth)
	assert.Equal(t, defaults.Locale, opts.Locale)
	assert.NotEmpty(t, opts.InitScripts)

	opts = browserOptions(config.BrowserConfig{UserAgent: "custom", Locale: "en-GB", ViewportWidth: 1280, ViewportHeight: 720})
	assert.Equal(t, "custom", opts.UserAgent)
	assert.Equal(t, "en-GB", opts.Locale)
	assert.Equal(t, 1280, opts.ViewportWidth)
	assert.Equal(t, 720, opts.ViewportHeight)
}

func TestPrintRuns(t *testing.T) {
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	runs := []jobs.Run{
		{
			Seedbank: "zamnesia",
			Status:   jobs.RunStatusCompleted,
			Stats: &scraper.RunStats{
				StartedAt:      started,
				FinishedAt:     started.Add(90 * time.Second),
				URLsDiscovered: 12,
				Scraped:        11,
				Recorded:       10,
				Failed:         1,
			},
		},
		{Seedbank: "sensi-seeds", Status: jobs.RunStatusFailed, Error: "launch failed"},
	}

	var buf bytes.Buffer
	printRuns(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "SEEDBANK")
	assert.Regexp(t, `zamnesia\s+completed\s+12\s+11\s+10\s+0\s+1\s+1m30s`, out)
	assert.Regexp(t, `sensi-seeds\s+failed\s+-`, out)
}
