//go:build integration

package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertOffer(t *testing.T, repo *Repository, seedID uuid.UUID, slug string, price float64, inStock bool, validFor time.Duration) {
	t.Helper()
	now := time.Now()
	require.NoError(t, repo.InsertPrice(context.Background(), &models.Price{
		SeedID:       seedID,
		Seedbank:     slug,
		SeedbankSlug: slug,
		Price:        price,
		Currency:     "EUR",
		InStock:      inStock,
		PackSize:     "5 Samen",
		SeedCount:    5,
		URL:          "https://example.com/" + slug,
		ScrapedAt:    now.Add(-time.Minute),
		ValidUntil:   now.Add(validFor),
		ScraperID:    slug + "-scraper",
		Reliability:  0.9,
	}))
}

func TestRepository_Seeds(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	first, err := repo.UpsertSeed(ctx, &models.Seed{
		Name: "Amnesia Haze", Slug: "amnesia-haze", Type: models.SeedTypeFeminized,
		Breeder: "Royal Queen Seeds", THC: "22%",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)

	second, err := repo.UpsertSeed(ctx, &models.Seed{
		Name: "Amnesia Haze", Slug: "amnesia-haze", Type: models.SeedTypeFeminized,
		Genetics: "Sativa dominant",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Royal Queen Seeds", second.Breeder)
	assert.Equal(t, "22%", second.THC)
	assert.Equal(t, "Sativa dominant", second.Genetics)

	bySlug, err := repo.GetSeedBySlug(ctx, "amnesia-haze")
	require.NoError(t, err)
	assert.Equal(t, first.ID, bySlug.ID)

	_, err = repo.GetSeed(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	insertOffer(t, repo, first.ID, "zamnesia", 30, true, time.Hour)
	insertOffer(t, repo, first.ID, "sensi-seeds", 20, true, time.Hour)

	require.NoError(t, repo.RefreshSeedStats(ctx, first.ID, time.Now()))

	refreshed, err := repo.GetSeed(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.PriceCount)
	require.NotNil(t, refreshed.LowestPrice)
	assert.InDelta(t, 20, *refreshed.LowestPrice, 0.001)
	require.NotNil(t, refreshed.AvgPrice)
	assert.InDelta(t, 25, *refreshed.AvgPrice, 0.001)
}

func TestRepository_FindPrices(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	seed, err := repo.UpsertSeed(ctx, &models.Seed{Name: "OG Kush", Slug: "og-kush", Type: models.SeedTypeFeminized})
	require.NoError(t, err)

	insertOffer(t, repo, seed.ID, "zamnesia", 31, true, time.Hour)
	insertOffer(t, repo, seed.ID, "sensi-seeds", 27, true, time.Hour)
	insertOffer(t, repo, seed.ID, "royal-queen-seeds", 19, false, time.Hour)
	insertOffer(t, repo, seed.ID, "seedsman", 10, true, time.Second)

	time.Sleep(1100 * time.Millisecond)

	prices, err := repo.FindPrices(ctx, repository.PriceQuery{
		SeedID:      seed.ID,
		Currency:    "EUR",
		InStockOnly: true,
		ValidAt:     time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, 27.0, prices[0].Price)
	assert.Equal(t, 31.0, prices[1].Price)

	prices, err = repo.FindPrices(ctx, repository.PriceQuery{
		SeedID:    seed.ID,
		Seedbanks: []string{"zamnesia"},
		ValidAt:   time.Now(),
		Limit:     1,
	})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "zamnesia", prices[0].SeedbankSlug)
}

func TestRepository_InsertPriceSupersedes(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	seed, err := repo.UpsertSeed(ctx, &models.Seed{Name: "Amnesia Haze", Slug: "amnesia-haze", Type: models.SeedTypeFeminized})
	require.NoError(t, err)

	now := time.Now().Truncate(time.Millisecond)
	for i, o := range []struct {
		price   float64
		inStock bool
	}{{28, true}, {35, true}, {35, false}} {
		scraped := now.Add(time.Duration(i-3) * 6 * time.Hour)
		require.NoError(t, repo.InsertPrice(ctx, &models.Price{
			SeedID: seed.ID, Seedbank: "Zamnesia", SeedbankSlug: "zamnesia",
			Price: o.price, Currency: "EUR", InStock: o.inStock, PackSize: "5 Samen", SeedCount: 5,
			URL: "https://example.com/zamnesia", ScrapedAt: scraped, ValidUntil: scraped.Add(24 * time.Hour),
			ScraperID: "zamnesia-scraper", Reliability: 0.9,
		}))
	}

	prices, err := repo.FindPrices(ctx, repository.PriceQuery{SeedID: seed.ID, InStockOnly: true, ValidAt: now})
	require.NoError(t, err)
	assert.Empty(t, prices)

	prices, err = repo.FindPrices(ctx, repository.PriceQuery{SeedID: seed.ID, ValidAt: now})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.False(t, prices[0].InStock)

	require.NoError(t, repo.RefreshSeedStats(ctx, seed.ID, now))
	refreshed, err := repo.GetSeed(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.PriceCount)
	require.NotNil(t, refreshed.AvgPrice)
	assert.InDelta(t, 35, *refreshed.AvgPrice, 0.001)
}

func TestRepository_Alerts(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	seed, err := repo.UpsertSeed(ctx, &models.Seed{Name: "Northern Lights", Slug: "northern-lights", Type: models.SeedTypeAutoflower})
	require.NoError(t, err)

	alert, err := repo.UpsertAlert(ctx, &models.PriceAlert{
		UserID: "user-1", SeedID: seed.ID, TargetPrice: 30, Currency: "EUR", IsActive: true,
	})
	require.NoError(t, err)

	again, err := repo.UpsertAlert(ctx, &models.PriceAlert{
		UserID: "user-1", SeedID: seed.ID, TargetPrice: 25, Currency: "EUR", IsActive: true,
		Seedbanks: []string{"zamnesia"},
	})
	require.NoError(t, err)
	assert.Equal(t, alert.ID, again.ID)
	assert.Equal(t, 25.0, again.TargetPrice)
	assert.Equal(t, []string{"zamnesia"}, again.Seedbanks)

	active, err := repo.FindActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	now := time.Now()
	active[0].RecordTrigger(24, "Zamnesia", now)
	active[0].IsActive = false
	require.NoError(t, repo.SaveAlert(ctx, active[0]))

	active, err = repo.FindActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = repo.SaveAlert(ctx, &models.PriceAlert{ID: uuid.New()})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	deleted, err := repo.DeleteInactiveAlerts(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeleteInactiveAlerts(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
