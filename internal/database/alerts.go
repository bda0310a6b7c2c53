package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/repository"
)

const alertColumns = `id, user_id, seed_id, target_price, currency, seedbanks, pack_size,
	notify_on_discount, notify_on_restock, is_active, triggered_at, triggered_price,
	triggered_seedbank, last_notified, notification_count, created_at, updated_at`

func scanAlert(row pgx.Row) (*models.PriceAlert, error) {
	a := &models.PriceAlert{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.SeedID, &a.TargetPrice, &a.Currency, &a.Seedbanks, &a.PackSize,
		&a.NotifyOnDiscount, &a.NotifyOnRestock, &a.IsActive, &a.TriggeredAt, &a.TriggeredPrice,
		&a.TriggeredSeedbank, &a.LastNotified, &a.NotificationCount, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Repository) FindActiveAlerts(ctx context.Context) ([]*models.PriceAlert, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM price_alerts WHERE is_active ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}

	alerts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.PriceAlert, error) {
		return scanAlert(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan alerts: %w", err)
	}

	return alerts, nil
}

// SaveAlert persists the mutable state of an existing alert.
func (r *Repository) SaveAlert(ctx context.Context, alert *models.PriceAlert) error {
	query := `
		UPDATE price_alerts SET
			target_price       = $2,
			currency           = $3,
			seedbanks          = $4,
			pack_size          = $5,
			notify_on_discount = $6,
			notify_on_restock  = $7,
			is_active          = $8,
			triggered_at       = $9,
			triggered_price    = $10,
			triggered_seedbank = $11,
			last_notified      = $12,
			notification_count = $13,
			updated_at         = NOW()
		WHERE id = $1`

	result, err := r.db.pool.Exec(ctx, query,
		alert.ID, alert.TargetPrice, alert.Currency, nonNil(alert.Seedbanks), alert.PackSize,
		alert.NotifyOnDiscount, alert.NotifyOnRestock, alert.IsActive, alert.TriggeredAt,
		alert.TriggeredPrice, alert.TriggeredSeedbank, alert.LastNotified, alert.NotificationCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", alert.ID, repository.ErrNotFound)
	}

	return nil
}

func (r *Repository) UpsertAlert(ctx context.Context, alert *models.PriceAlert) (*models.PriceAlert, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}

	id := alert.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	// The partial unique index only covers active alerts, so inactive ones
	// never conflict.
	query := `
		INSERT INTO price_alerts (
			id, user_id, seed_id, target_price, currency, seedbanks, pack_size,
			notify_on_discount, notify_on_restock, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, seed_id) WHERE is_active DO UPDATE SET
			target_price       = EXCLUDED.target_price,
			currency           = EXCLUDED.currency,
			seedbanks          = EXCLUDED.seedbanks,
			pack_size          = EXCLUDED.pack_size,
			notify_on_discount = EXCLUDED.notify_on_discount,
			notify_on_restock  = EXCLUDED.notify_on_restock,
			updated_at         = NOW()
		RETURNING ` + alertColumns

	stored, err := scanAlert(r.db.pool.QueryRow(ctx, query,
		id, alert.UserID, alert.SeedID, alert.TargetPrice, alert.Currency, nonNil(alert.Seedbanks),
		alert.PackSize, alert.NotifyOnDiscount, alert.NotifyOnRestock, alert.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert alert: %w", err)
	}

	return stored, nil
}

func (r *Repository) DeleteInactiveAlerts(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx,
		`DELETE FROM price_alerts WHERE NOT is_active AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive alerts: %w", err)
	}
	return result.RowsAffected(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
