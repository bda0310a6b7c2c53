// Package events delivers price_alert notifications and price:updated
// realtime messages. Delivery is fire-and-forget for callers: an error is
// returned for logging, never to undo the state change that caused it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePriceAlert   = "price_alert"
	EventTypePriceUpdated = "price_updated"

	AggregatePriceAlert = "price_alert"

	// PriceUpdatedChannel is the pub/sub channel realtime consumers subscribe to.
	PriceUpdatedChannel = "price:updated"

	eventSource = "seed-price-scraper"
)

// Trigger reasons.
const (
	ReasonTargetPrice = "target_price"
	ReasonDiscount    = "discount"
)

type PriceAlertEvent struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	AlertID      uuid.UUID `json:"alert_id"`
	UserID       string    `json:"user_id"`
	SeedID       uuid.UUID `json:"seed_id"`
	SeedName     string    `json:"seed_name,omitempty"`
	SeedSlug     string    `json:"seed_slug,omitempty"`
	TargetPrice  float64   `json:"target_price"`
	CurrentPrice float64   `json:"current_price"`
	Currency     string    `json:"currency"`
	Discount     float64   `json:"discount,omitempty"`
	Seedbank     string    `json:"seedbank"`
	SeedbankSlug string    `json:"seedbank_slug"`
	PackSize     string    `json:"pack_size,omitempty"`
	URL          string    `json:"url"`
	Reason       string    `json:"reason"`
	Source       string    `json:"source"`
}

func (e *PriceAlertEvent) prepare(now time.Time) {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.EventType == "" {
		e.EventType = EventTypePriceAlert
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Source == "" {
		e.Source = eventSource
	}
}

type PriceUpdatedEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	SeedID        uuid.UUID `json:"seed_id"`
	SeedSlug      string    `json:"seed_slug"`
	Seedbank      string    `json:"seedbank"`
	SeedbankSlug  string    `json:"seedbank_slug"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	OriginalPrice *float64  `json:"original_price,omitempty"`
	Discount      float64   `json:"discount"`
	InStock       bool      `json:"in_stock"`
	PackSize      string    `json:"pack_size"`
	SeedCount     int       `json:"seed_count"`
	URL           string    `json:"url"`
}

func (e *PriceUpdatedEvent) prepare(now time.Time) {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.EventType == "" {
		e.EventType = EventTypePriceUpdated
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
}

// Notifier emits price_alert events for triggered alerts.
type Notifier interface {
	PublishPriceAlert(ctx context.Context, event *PriceAlertEvent) error
}

// RealtimePublisher broadcasts freshly scraped prices.
type RealtimePublisher interface {
	PublishPriceUpdated(ctx context.Context, event *PriceUpdatedEvent) error
}
