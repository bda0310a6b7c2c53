package models

import (
	"time"

	"github.com/google/uuid"
)

// PriceAlert is a user's standing instruction to be notified when a seed
// drops to TargetPrice or, with NotifyOnDiscount, when a large discount appears.
// At most one active alert exists per (UserID, SeedID).
type PriceAlert struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            string     `json:"user_id" db:"user_id"`
	SeedID            uuid.UUID  `json:"seed_id" db:"seed_id"`
	TargetPrice       float64    `json:"target_price" db:"target_price"`
	Currency          string     `json:"currency" db:"currency"`
	Seedbanks         []string   `json:"seedbanks,omitempty" db:"seedbanks"`
	PackSize          string     `json:"pack_size,omitempty" db:"pack_size"`
	NotifyOnDiscount  bool       `json:"notify_on_discount" db:"notify_on_discount"`
	NotifyOnRestock   bool       `json:"notify_on_restock" db:"notify_on_restock"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	TriggeredAt       *time.Time `json:"triggered_at,omitempty" db:"triggered_at"`
	TriggeredPrice    *float64   `json:"triggered_price,omitempty" db:"triggered_price"`
	TriggeredSeedbank string     `json:"triggered_seedbank,omitempty" db:"triggered_seedbank"`
	LastNotified      *time.Time `json:"last_notified,omitempty" db:"last_notified"`
	NotificationCount int        `json:"notification_count" db:"notification_count"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

func (a *PriceAlert) Validate() error {
	if a.UserID == "" {
		return ErrMissingUser
	}
	if a.SeedID == uuid.Nil {
		return ErrMissingSeed
	}
	if a.TargetPrice < 0 {
		return ErrNegativePrice
	}
	if a.Currency == "" {
		return ErrMissingCurrency
	}
	return nil
}

// NotifiedWithin reports whether the last notification is younger than window at now.
func (a *PriceAlert) NotifiedWithin(window time.Duration, now time.Time) bool {
	if a.LastNotified == nil {
		return false
	}
	return now.Sub(*a.LastNotified) < window
}

// RecordTrigger stamps the trigger snapshot and the anti-spam clock.
func (a *PriceAlert) RecordTrigger(price float64, seedbank string, at time.Time) {
	a.TriggeredAt = &at
	a.TriggeredPrice = &price
	a.TriggeredSeedbank = seedbank
	a.LastNotified = &at
	a.NotificationCount++
	a.UpdatedAt = at
}
