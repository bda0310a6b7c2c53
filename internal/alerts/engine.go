// Package alerts matches fresh prices against users' price targets.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/seed-price-scraper/internal/events"
	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/repository"
)

const (
	DefaultAntiSpamWindow    = 24 * time.Hour
	DefaultDiscountThreshold = 20.0
	DefaultRetention         = 90 * 24 * time.Hour
	DefaultCheckInterval     = 5 * time.Minute
)

// Store is the slice of repository.PriceRepository the engine reads and
// updates.
type Store interface {
	repository.AlertStore
	repository.PriceStore
	GetSeed(ctx context.Context, id uuid.UUID) (*models.Seed, error)
}

type Options struct {
	// AntiSpamWindow is the minimum gap between two notifications of one alert.
	AntiSpamWindow time.Duration
	// DiscountThreshold is in percentage points; discounts strictly above it
	// trigger alerts with NotifyOnDiscount. Zero means any discount.
	DiscountThreshold float64
	// Retention is how long inactive alerts are kept before Sweep deletes them.
	Retention     time.Duration
	CheckInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		AntiSpamWindow:    DefaultAntiSpamWindow,
		DiscountThreshold: DefaultDiscountThreshold,
		Retention:         DefaultRetention,
		CheckInterval:     DefaultCheckInterval,
	}
}

type Engine struct {
	store    Store
	notifier events.Notifier
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	// mu serializes checks so one alert is never notified twice by
	// overlapping calls.
	mu sync.Mutex
}

func NewEngine(store Store, notifier events.Notifier, opts Options, logger *slog.Logger) *Engine {
	defaults := DefaultOptions()
	if opts.AntiSpamWindow <= 0 {
		opts.AntiSpamWindow = defaults.AntiSpamWindow
	}
	if opts.DiscountThreshold < 0 {
		opts.DiscountThreshold = defaults.DiscountThreshold
	}
	if opts.Retention <= 0 {
		opts.Retention = defaults.Retention
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaults.CheckInterval
	}

	logger = logger.With("component", "alerts")
	if notifier == nil {
		notifier = events.NewLogNotifier(logger)
	}

	return &Engine{
		store:    store,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate returns the trigger reason for alert against the cheapest
// matching offer, or "" when the alert does not fire.
func Evaluate(alert *models.PriceAlert, cheapest *models.Price, discountThreshold float64) string {
	if cheapest == nil {
		return ""
	}
	if cheapest.Price <= alert.TargetPrice {
		return events.ReasonTargetPrice
	}
	if alert.NotifyOnDiscount && cheapest.Discount > discountThreshold {
		return events.ReasonDiscount
	}
	return ""
}

// CheckAlerts evaluates every active alert once and returns how many fired.
// Only a failure to load the alerts is returned; per-alert failures are
// logged and the batch continues.
func (e *Engine) CheckAlerts(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alerts, err := e.store.FindActiveAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active alerts: %w", err)
	}

	now := e.now()
	triggered := 0

	for _, alert := range alerts {
		if ctx.Err() != nil {
			e.logger.Warn("alert check interrupted", "triggered", triggered, "total", len(alerts))
			break
		}

		fired, err := e.checkAlert(ctx, alert, now)
		if err != nil {
			e.logger.Error("failed to check alert",
				"alert_id", alert.ID,
				"user_id", alert.UserID,
				"error", err)
			continue
		}
		if fired {
			triggered++
		}
	}

	e.logger.Info("alert check completed",
		"active", len(alerts),
		"triggered", triggered)

	return triggered, nil
}

func (e *Engine) checkAlert(ctx context.Context, alert *models.PriceAlert, now time.Time) (bool, error) {
	prices, err := e.store.FindPrices(ctx, repository.PriceQuery{
		SeedID:      alert.SeedID,
		Currency:    alert.Currency,
		Seedbanks:   alert.Seedbanks,
		PackSize:    alert.PackSize,
		InStockOnly: true,
		ValidAt:     now,
		Limit:       1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to query prices: %w", err)
	}
	if len(prices) == 0 {
		return false, nil
	}

	cheapest := prices[0]
	reason := Evaluate(alert, cheapest, e.opts.DiscountThreshold)
	if reason == "" {
		return false, nil
	}

	if alert.NotifiedWithin(e.opts.AntiSpamWindow, now) {
		e.logger.Debug("alert suppressed",
			"alert_id", alert.ID,
			"last_notified", alert.LastNotified)
		return false, nil
	}

	alert.RecordTrigger(cheapest.Price, cheapest.SeedbankSlug, now)
	if err := e.store.SaveAlert(ctx, alert); err != nil {
		return false, fmt.Errorf("failed to save triggered alert: %w", err)
	}

	event := &events.PriceAlertEvent{
		AlertID:      alert.ID,
		UserID:       alert.UserID,
		SeedID:       alert.SeedID,
		TargetPrice:  alert.TargetPrice,
		CurrentPrice: cheapest.Price,
		Currency:     cheapest.Currency,
		Discount:     cheapest.Discount,
		Seedbank:     cheapest.Seedbank,
		SeedbankSlug: cheapest.SeedbankSlug,
		PackSize:     cheapest.PackSize,
		URL:          cheapest.URL,
		Reason:       reason,
		Timestamp:    now,
	}
	if seed, err := e.store.GetSeed(ctx, alert.SeedID); err == nil {
		event.SeedName = seed.Name
		event.SeedSlug = seed.Slug
	} else {
		e.logger.Warn("failed to load seed for alert event", "seed_id", alert.SeedID, "error", err)
	}

	if err := e.notifier.PublishPriceAlert(ctx, event); err != nil {
		e.logger.Error("failed to publish price alert",
			"alert_id", alert.ID,
			"error", err)
	}

	e.logger.Info("alert triggered",
		"alert_id", alert.ID,
		"user_id", alert.UserID,
		"reason", reason,
		"price", cheapest.Price,
		"target_price", alert.TargetPrice,
		"seedbank", cheapest.SeedbankSlug)

	return true, nil
}

// Sweep deletes inactive alerts untouched for longer than the retention.
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	cutoff := e.now().Add(-e.opts.Retention)

	deleted, err := e.store.DeleteInactiveAlerts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep alerts: %w", err)
	}

	e.logger.Info("inactive alerts swept", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}

// Run checks alerts immediately and then on every tick until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting alert engine", "interval", e.opts.CheckInterval)

	ticker := time.NewTicker(e.opts.CheckInterval)
	defer ticker.Stop()

	for {
		if _, err := e.CheckAlerts(ctx); err != nil {
			e.logger.Error("alert check failed", "error", err)
		}

		select {
		case <-ctx.Done():
			e.logger.Info("alert engine stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
