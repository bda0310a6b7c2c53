package models

import (
	"time"

	"github.com/google/uuid"
)

type SeedType string

const (
	SeedTypeFeminized  SeedType = "feminized"
	SeedTypeAutoflower SeedType = "autoflower"
	SeedTypeRegular    SeedType = "regular"
)

func (t SeedType) IsValid() bool {
	switch t {
	case SeedTypeFeminized, SeedTypeAutoflower, SeedTypeRegular:
		return true
	}
	return false
}

// Seed is the canonical strain identity shared by all seedbanks selling it.
// The rollup fields are maintained by the repository, never by scrapers.
type Seed struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Slug          string     `json:"slug" db:"slug"`
	Breeder       string     `json:"breeder" db:"breeder"`
	Type          SeedType   `json:"type" db:"type"`
	Genetics      string     `json:"genetics,omitempty" db:"genetics"`
	THC           string     `json:"thc,omitempty" db:"thc"`
	CBD           string     `json:"cbd,omitempty" db:"cbd"`
	FloweringTime string     `json:"flowering_time,omitempty" db:"flowering_time"`
	ImageURL      string     `json:"image_url,omitempty" db:"image_url"`
	AvgPrice      *float64   `json:"avg_price,omitempty" db:"avg_price"`
	LowestPrice   *float64   `json:"lowest_price,omitempty" db:"lowest_price"`
	PriceCount    int        `json:"price_count" db:"price_count"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

func (s *Seed) Validate() error {
	if s.Name == "" {
		return ErrMissingName
	}
	if s.Slug == "" {
		return ErrMissingSlug
	}
	if !s.Type.IsValid() {
		return ErrInvalidSeedType
	}
	return nil
}
