// Package repository defines the persistence boundary shared by the scrapers
// and the alert engine. internal/database and internal/storage implement it.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/seed-price-scraper/internal/models"
)

var ErrNotFound = errors.New("not found")

// PriceQuery selects offers for alert matching. Results are sorted by price
// ascending. Zero values disable a filter.
type PriceQuery struct {
	SeedID   uuid.UUID
	Currency string
	// Seedbanks restricts results to these seedbank slugs.
	Seedbanks   []string
	PackSize    string
	InStockOnly bool
	// ValidAt keeps only rows with ValidUntil after it.
	ValidAt time.Time
	Limit   int
}

type SeedStore interface {
	// UpsertSeed inserts the seed or, when its slug exists, refreshes the
	// descriptive fields. The stored seed is returned with its ID.
	UpsertSeed(ctx context.Context, seed *models.Seed) (*models.Seed, error)
	GetSeed(ctx context.Context, id uuid.UUID) (*models.Seed, error)
	GetSeedBySlug(ctx context.Context, slug string) (*models.Seed, error)
	// RefreshSeedStats recomputes the rollups from offers still valid at now.
	RefreshSeedStats(ctx context.Context, seedID uuid.UUID, now time.Time) error
}

type PriceStore interface {
	InsertPrice(ctx context.Context, price *models.Price) error
	FindPrices(ctx context.Context, q PriceQuery) ([]*models.Price, error)
}

type AlertStore interface {
	FindActiveAlerts(ctx context.Context) ([]*models.PriceAlert, error)
	SaveAlert(ctx context.Context, alert *models.PriceAlert) error
	// UpsertAlert updates the active alert of (UserID, SeedID) if one exists,
	// otherwise inserts alert.
	UpsertAlert(ctx context.Context, alert *models.PriceAlert) (*models.PriceAlert, error)
	// DeleteInactiveAlerts removes inactive alerts last updated before cutoff.
	DeleteInactiveAlerts(ctx context.Context, cutoff time.Time) (int64, error)
}

type PriceRepository interface {
	SeedStore
	PriceStore
	AlertStore
	Ping(ctx context.Context) error
}
