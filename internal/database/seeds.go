package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/repository"
)

// Repository is the PostgreSQL implementation of repository.PriceRepository.
type Repository struct {
	db *DB
}

var _ repository.PriceRepository = (*Repository)(nil)

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

const seedColumns = `id, name, slug, breeder, type, genetics, thc, cbd, flowering_time,
	image_url, avg_price, lowest_price, price_count, archived_at, created_at, updated_at`

func scanSeed(row pgx.Row) (*models.Seed, error) {
	s := &models.Seed{}
	err := row.Scan(
		&s.ID, &s.Name, &s.Slug, &s.Breeder, &s.Type, &s.Genetics, &s.THC, &s.CBD, &s.FloweringTime,
		&s.ImageURL, &s.AvgPrice, &s.LowestPrice, &s.PriceCount, &s.ArchivedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repository) UpsertSeed(ctx context.Context, seed *models.Seed) (*models.Seed, error) {
	if err := seed.Validate(); err != nil {
		return nil, err
	}

	id := seed.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	// Empty descriptive fields keep what an earlier scrape found.
	query := `
		INSERT INTO seeds (id, name, slug, breeder, type, genetics, thc, cbd, flowering_time, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (slug) DO UPDATE SET
			name           = EXCLUDED.name,
			type           = EXCLUDED.type,
			breeder        = COALESCE(NULLIF(EXCLUDED.breeder, ''), seeds.breeder),
			genetics       = COALESCE(NULLIF(EXCLUDED.genetics, ''), seeds.genetics),
			thc            = COALESCE(NULLIF(EXCLUDED.thc, ''), seeds.thc),
			cbd            = COALESCE(NULLIF(EXCLUDED.cbd, ''), seeds.cbd),
			flowering_time = COALESCE(NULLIF(EXCLUDED.flowering_time, ''), seeds.flowering_time),
			image_url      = COALESCE(NULLIF(EXCLUDED.image_url, ''), seeds.image_url),
			updated_at     = NOW()
		RETURNING ` + seedColumns

	stored, err := scanSeed(r.db.pool.QueryRow(ctx, query,
		id, seed.Name, seed.Slug, seed.Breeder, seed.Type, seed.Genetics,
		seed.THC, seed.CBD, seed.FloweringTime, seed.ImageURL,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert seed %s: %w", seed.Slug, err)
	}

	return stored, nil
}

func (r *Repository) GetSeed(ctx context.Context, id uuid.UUID) (*models.Seed, error) {
	seed, err := scanSeed(r.db.pool.QueryRow(ctx, `SELECT `+seedColumns+` FROM seeds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("seed %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seed: %w", err)
	}
	return seed, nil
}

func (r *Repository) GetSeedBySlug(ctx context.Context, slug string) (*models.Seed, error) {
	seed, err := scanSeed(r.db.pool.QueryRow(ctx, `SELECT `+seedColumns+` FROM seeds WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("seed %q: %w", slug, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seed: %w", err)
	}
	return seed, nil
}

func (r *Repository) RefreshSeedStats(ctx context.Context, seedID uuid.UUID, now time.Time) error {
	query := `
		UPDATE seeds s SET
			avg_price    = stats.avg_price,
			lowest_price = stats.lowest_price,
			price_count  = stats.price_count,
			updated_at   = NOW()
		FROM (
			SELECT AVG(price) AS avg_price, MIN(price) AS lowest_price, COUNT(*)::int AS price_count
			FROM prices
			WHERE seed_id = $1 AND valid_until > $2
		) stats
		WHERE s.id = $1`

	result, err := r.db.pool.Exec(ctx, query, seedID, now)
	if err != nil {
		return fmt.Errorf("failed to refresh seed stats: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("seed %s: %w", seedID, repository.ErrNotFound)
	}
	return nil
}
