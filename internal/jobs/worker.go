package jobs

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// StartWorker processes enqueued runs and fires the scrape and sweep
// schedules until ctx is cancelled. In-flight runs are waited for; their
// orchestrators stop after the current product.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started",
		"max_parallel", m.cfg.MaxParallel,
		"scrape_interval", m.cfg.ScrapeInterval,
		"sweep_interval", m.cfg.SweepInterval)

	// Runs take a slot inside their goroutine; the loop itself never blocks.
	var g errgroup.Group
	slots := make(chan struct{}, m.cfg.MaxParallel)

	scrapeTick, stopScrape := schedule(m.cfg.ScrapeInterval)
	defer stopScrape()
	sweepTick, stopSweep := schedule(m.cfg.SweepInterval)
	defer stopSweep()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping, waiting for active runs", "active", m.Running())
			_ = g.Wait()
			m.logger.Info("job worker stopped")
			return

		case run := <-m.pending:
			adapter, ok := m.registry.Get(run.Seedbank)
			if !ok {
				m.finish(run, RunStatusFailed, nil, ErrUnknownSeedbank)
				continue
			}
			g.Go(func() error {
				select {
				case slots <- struct{}{}:
				case <-ctx.Done():
					m.finish(run, RunStatusInterrupted, nil, nil)
					return nil
				}
				defer func() { <-slots }()

				m.execute(ctx, adapter, run)
				return nil
			})

		case <-scrapeTick:
			if _, err := m.Enqueue(nil, TriggerSchedule); err != nil {
				m.logger.Warn("failed to enqueue scheduled runs", "error", err)
			}

		case <-sweepTick:
			m.SweepAlerts(ctx)
		}
	}
}

// schedule returns a channel ticking every interval, or a nil channel that
// is never ready when interval is not positive.
func schedule(interval time.Duration) (<-chan time.Time, func()) {
	if interval <= 0 {
		return nil, func() {}
	}
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}
