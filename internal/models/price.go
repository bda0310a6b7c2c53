package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingName        = errors.New("name is required")
	ErrMissingSlug        = errors.New("slug is required")
	ErrInvalidSeedType    = errors.New("invalid seed type")
	ErrMissingSeed        = errors.New("seed id is required")
	ErrNegativePrice      = errors.New("price must not be negative")
	ErrInvalidSeedCount   = errors.New("seed count must be at least 1")
	ErrInvalidValidity    = errors.New("valid_until must be after scraped_at")
	ErrInvalidReliability = errors.New("reliability must be between 0 and 1")
	ErrMissingCurrency    = errors.New("currency is required")
	ErrMissingUser        = errors.New("user id is required")
)

// Price is one seedbank's offer for one seed and pack size at scrape time.
// Rows are append-only; a newer scrape of the same tuple supersedes older ones
// by freshness, so readers must filter on ValidUntil.
type Price struct {
	ID            uuid.UUID `json:"id" db:"id"`
	SeedID        uuid.UUID `json:"seed_id" db:"seed_id"`
	Seedbank      string    `json:"seedbank" db:"seedbank"`
	SeedbankSlug  string    `json:"seedbank_slug" db:"seedbank_slug"`
	Price         float64   `json:"price" db:"price"`
	Currency      string    `json:"currency" db:"currency"`
	OriginalPrice *float64  `json:"original_price,omitempty" db:"original_price"`
	Discount      float64   `json:"discount" db:"discount"`
	InStock       bool      `json:"in_stock" db:"in_stock"`
	StockLevel    string    `json:"stock_level,omitempty" db:"stock_level"`
	PackSize      string    `json:"pack_size" db:"pack_size"`
	SeedCount     int       `json:"seed_count" db:"seed_count"`
	URL           string    `json:"url" db:"url"`
	ScrapedAt     time.Time `json:"scraped_at" db:"scraped_at"`
	ValidUntil    time.Time `json:"valid_until" db:"valid_until"`
	ScraperID     string    `json:"scraper_id" db:"scraper_id"`
	Reliability   float64   `json:"reliability" db:"reliability"`
}

func (p *Price) Validate() error {
	if p.SeedID == uuid.Nil {
		return ErrMissingSeed
	}
	if p.Price < 0 {
		return ErrNegativePrice
	}
	if p.SeedCount < 1 {
		return ErrInvalidSeedCount
	}
	if !p.ValidUntil.After(p.ScrapedAt) {
		return ErrInvalidValidity
	}
	if p.Reliability < 0 || p.Reliability > 1 {
		return ErrInvalidReliability
	}
	if p.Currency == "" {
		return ErrMissingCurrency
	}
	return nil
}

// IsFresh reports whether the offer may still be used for matching at t.
func (p *Price) IsFresh(t time.Time) bool {
	return p.ValidUntil.After(t)
}

// PricePerSeed is used to compare offers across pack sizes.
func (p *Price) PricePerSeed() float64 {
	if p.SeedCount < 1 {
		return p.Price
	}
	return p.Price / float64(p.SeedCount)
}
