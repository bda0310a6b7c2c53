package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/repository"
)

const priceColumns = `id, seed_id, seedbank, seedbank_slug, price, currency, original_price, discount,
	in_stock, stock_level, pack_size, seed_count, url, scraped_at, valid_until, scraper_id, reliability`

// InsertPrice stores price as the current offer of its (seed, seedbank,
// pack size) tuple. Earlier rows of the tuple stop being valid at
// price.ScrapedAt; a scrape older than the stored one is capped the same way.
func (r *Repository) InsertPrice(ctx context.Context, price *models.Price) error {
	if err := price.Validate(); err != nil {
		return err
	}
	if price.ID == uuid.Nil {
		price.ID = uuid.New()
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		key := []any{price.SeedID, price.SeedbankSlug, price.PackSize, price.ScrapedAt}

		_, err := tx.Exec(ctx, `DELETE FROM prices
			WHERE seed_id = $1 AND seedbank_slug = $2 AND pack_size = $3 AND scraped_at = $4`, key...)
		if err != nil {
			return fmt.Errorf("failed to replace price: %w", err)
		}

		_, err = tx.Exec(ctx, `UPDATE prices SET valid_until = $4
			WHERE seed_id = $1 AND seedbank_slug = $2 AND pack_size = $3
			  AND scraped_at < $4 AND valid_until > $4`, key...)
		if err != nil {
			return fmt.Errorf("failed to supersede prices: %w", err)
		}

		var next *time.Time
		err = tx.QueryRow(ctx, `SELECT MIN(scraped_at) FROM prices
			WHERE seed_id = $1 AND seedbank_slug = $2 AND pack_size = $3 AND scraped_at > $4`, key...).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to look up newer price: %w", err)
		}
		if next != nil && next.Before(price.ValidUntil) {
			price.ValidUntil = *next
		}

		query := `INSERT INTO prices (` + priceColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

		_, err = tx.Exec(ctx, query,
			price.ID, price.SeedID, price.Seedbank, price.SeedbankSlug, price.Price, price.Currency,
			price.OriginalPrice, price.Discount, price.InStock, price.StockLevel, price.PackSize,
			price.SeedCount, price.URL, price.ScrapedAt, price.ValidUntil, price.ScraperID, price.Reliability,
		)
		if err != nil {
			return fmt.Errorf("failed to insert price: %w", err)
		}
		return nil
	})
}

// buildPriceQuery turns q into a WHERE clause with positional arguments.
func buildPriceQuery(q repository.PriceQuery) (string, []any) {
	var where []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if q.SeedID != uuid.Nil {
		add("seed_id = $%d", q.SeedID)
	}
	if q.Currency != "" {
		add("currency = $%d", q.Currency)
	}
	if len(q.Seedbanks) > 0 {
		add("seedbank_slug = ANY($%d)", q.Seedbanks)
	}
	if q.PackSize != "" {
		add("pack_size = $%d", q.PackSize)
	}
	if !q.ValidAt.IsZero() {
		add("valid_until > $%d", q.ValidAt)
	}
	if q.InStockOnly {
		where = append(where, "in_stock")
	}

	sql := `SELECT ` + priceColumns + ` FROM prices`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY price ASC, scraped_at DESC`

	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return sql, args
}

func (r *Repository) FindPrices(ctx context.Context, q repository.PriceQuery) ([]*models.Price, error) {
	sql, args := buildPriceQuery(q)

	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}

	prices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Price, error) {
		p := &models.Price{}
		err := row.Scan(
			&p.ID, &p.SeedID, &p.Seedbank, &p.SeedbankSlug, &p.Price, &p.Currency, &p.OriginalPrice, &p.Discount,
			&p.InStock, &p.StockLevel, &p.PackSize, &p.SeedCount, &p.URL, &p.ScrapedAt, &p.ValidUntil,
			&p.ScraperID, &p.Reliability,
		)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan prices: %w", err)
	}

	return prices, nil
}
