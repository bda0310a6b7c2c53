// Package ingest turns scraped products into persisted seeds and prices.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/seed-price-scraper/internal/events"
	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/normalize"
	"github.com/maltedev/seed-price-scraper/internal/repository"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
)

const (
	DefaultPriceTTL = 24 * time.Hour
	DefaultCurrency = "EUR"
)

var ErrIncompleteProduct = errors.New("product is missing name or price")

// Store is the slice of repository.PriceRepository the recorder writes to.
type Store interface {
	repository.SeedStore
	repository.PriceStore
}

type Options struct {
	// PriceTTL is how long a scraped offer stays valid for matching.
	PriceTTL        time.Duration
	DefaultCurrency string
	// InstanceID is prefixed to every price's scraper id.
	InstanceID string
}

// Recorder is the scraper.ProductSink used by scheduled runs.
type Recorder struct {
	store    Store
	realtime events.RealtimePublisher
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

var _ scraper.ProductSink = (*Recorder)(nil)

func NewRecorder(store Store, realtime events.RealtimePublisher, opts Options, logger *slog.Logger) *Recorder {
	if opts.PriceTTL <= 0 {
		opts.PriceTTL = DefaultPriceTTL
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = DefaultCurrency
	}
	if opts.InstanceID == "" {
		opts.InstanceID = "local"
	}
	if realtime == nil {
		realtime = events.NopRealtimePublisher{}
	}

	return &Recorder{
		store:    store,
		realtime: realtime,
		opts:     opts,
		logger:   logger.With("component", "ingest"),
		now:      time.Now,
	}
}

// Record upserts the product's seed, appends a price row and refreshes the
// seed rollups. Rollup and realtime failures are logged, not returned.
func (r *Recorder) Record(ctx context.Context, seedbank scraper.Seedbank, product *scraper.ScrapedProduct) error {
	if !product.Complete() {
		return ErrIncompleteProduct
	}

	seed, err := r.store.UpsertSeed(ctx, seedFromProduct(product))
	if err != nil {
		return fmt.Errorf("failed to upsert seed: %w", err)
	}

	now := r.now()
	price := r.priceFromProduct(seed, seedbank, product, now)
	if err := r.store.InsertPrice(ctx, price); err != nil {
		return fmt.Errorf("failed to insert price for %s: %w", seed.Slug, err)
	}

	if err := r.store.RefreshSeedStats(ctx, seed.ID, now); err != nil {
		r.logger.Warn("failed to refresh seed stats", "seed", seed.Slug, "error", err)
	}

	event := &events.PriceUpdatedEvent{
		SeedID:        seed.ID,
		SeedSlug:      seed.Slug,
		Seedbank:      price.Seedbank,
		SeedbankSlug:  price.SeedbankSlug,
		Price:         price.Price,
		Currency:      price.Currency,
		OriginalPrice: price.OriginalPrice,
		Discount:      price.Discount,
		InStock:       price.InStock,
		PackSize:      price.PackSize,
		SeedCount:     price.SeedCount,
		URL:           price.URL,
	}
	if err := r.realtime.PublishPriceUpdated(ctx, event); err != nil {
		r.logger.Warn("failed to publish price update", "seed", seed.Slug, "error", err)
	}

	r.logger.Debug("price recorded",
		"seed", seed.Slug,
		"seedbank", seedbank.Slug,
		"price", price.Price,
		"currency", price.Currency,
		"pack_size", price.PackSize)

	return nil
}

func seedFromProduct(p *scraper.ScrapedProduct) *models.Seed {
	seedType := p.Type
	if !seedType.IsValid() {
		seedType = models.SeedTypeFeminized
	}
	return &models.Seed{
		Name:          p.Name,
		Slug:          normalize.Slug(p.Name),
		Breeder:       p.Breeder,
		Type:          seedType,
		Genetics:      p.Genetics,
		THC:           p.THC,
		CBD:           p.CBD,
		FloweringTime: p.FloweringTime,
		ImageURL:      p.ImageURL,
	}
}

func (r *Recorder) priceFromProduct(seed *models.Seed, bank scraper.Seedbank, p *scraper.ScrapedProduct, now time.Time) *models.Price {
	currency := p.Currency
	if currency == "" {
		currency = r.opts.DefaultCurrency
	}

	var discount float64
	var original *float64
	if p.OriginalPrice != nil && *p.OriginalPrice > *p.Price {
		v := *p.OriginalPrice
		original = &v
		discount = normalize.Discount(*p.Price, v)
	}

	return &models.Price{
		SeedID:        seed.ID,
		Seedbank:      bank.Name,
		SeedbankSlug:  bank.Slug,
		Price:         *p.Price,
		Currency:      currency,
		OriginalPrice: original,
		Discount:      discount,
		InStock:       p.InStock,
		StockLevel:    p.StockLevel,
		PackSize:      p.PackSize,
		SeedCount:     max(p.SeedCount, 1),
		URL:           p.URL,
		ScrapedAt:     now,
		ValidUntil:    now.Add(r.opts.PriceTTL),
		ScraperID:     r.opts.InstanceID + "/" + bank.Slug,
		Reliability:   min(max(bank.Reliability, 0), 1),
	}
}
