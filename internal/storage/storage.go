// Package storage is an in-memory repository.PriceRepository with an optional
// JSON snapshot file, for local runs without PostgreSQL.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/repository"
)

type snapshot struct {
	Seeds  []*models.Seed       `json:"seeds"`
	Prices []*models.Price      `json:"prices"`
	Alerts []*models.PriceAlert `json:"alerts"`
}

type Store struct {
	mu       sync.RWMutex
	seeds    map[uuid.UUID]*models.Seed
	slugs    map[string]uuid.UUID
	prices   []*models.Price
	alerts   map[uuid.UUID]*models.PriceAlert
	filename string
	now      func() time.Time
}

var _ repository.PriceRepository = (*Store)(nil)

// NewStore returns an empty store. When filename is set, existing data is
// loaded from it and every write is persisted back.
func NewStore(filename string) (*Store, error) {
	s := &Store{
		seeds:    make(map[uuid.UUID]*models.Seed),
		slugs:    make(map[string]uuid.UUID),
		alerts:   make(map[uuid.UUID]*models.PriceAlert),
		filename: filename,
		now:      time.Now,
	}

	if filename == "" {
		return s, nil
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) UpsertSeed(ctx context.Context, seed *models.Seed) (*models.Seed, error) {
	if err := seed.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if id, ok := s.slugs[seed.Slug]; ok {
		existing := s.seeds[id]
		existing.Name = seed.Name
		existing.Type = seed.Type
		mergeString(&existing.Breeder, seed.Breeder)
		mergeString(&existing.Genetics, seed.Genetics)
		mergeString(&existing.THC, seed.THC)
		mergeString(&existing.CBD, seed.CBD)
		mergeString(&existing.FloweringTime, seed.FloweringTime)
		mergeString(&existing.ImageURL, seed.ImageURL)
		existing.UpdatedAt = now
		return cloneSeed(existing), s.save()
	}

	stored := cloneSeed(seed)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.AvgPrice, stored.LowestPrice, stored.PriceCount = nil, nil, 0
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.seeds[stored.ID] = stored
	s.slugs[stored.Slug] = stored.ID

	return cloneSeed(stored), s.save()
}

func (s *Store) GetSeed(ctx context.Context, id uuid.UUID) (*models.Seed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seed, ok := s.seeds[id]
	if !ok {
		return nil, fmt.Errorf("seed %s: %w", id, repository.ErrNotFound)
	}
	return cloneSeed(seed), nil
}

func (s *Store) GetSeedBySlug(ctx context.Context, slug string) (*models.Seed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.slugs[slug]
	if !ok {
		return nil, fmt.Errorf("seed %q: %w", slug, repository.ErrNotFound)
	}
	return cloneSeed(s.seeds[id]), nil
}

func (s *Store) RefreshSeedStats(ctx context.Context, seedID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seed, ok := s.seeds[seedID]
	if !ok {
		return fmt.Errorf("seed %s: %w", seedID, repository.ErrNotFound)
	}

	var sum float64
	var lowest *float64
	count := 0
	for _, p := range s.prices {
		if p.SeedID != seedID || !p.IsFresh(now) {
			continue
		}
		sum += p.Price
		count++
		if lowest == nil || p.Price < *lowest {
			v := p.Price
			lowest = &v
		}
	}

	seed.PriceCount = count
	seed.LowestPrice = lowest
	seed.AvgPrice = nil
	if count > 0 {
		avg := sum / float64(count)
		seed.AvgPrice = &avg
	}
	seed.UpdatedAt = s.now()

	return s.save()
}

func (s *Store) InsertPrice(ctx context.Context, price *models.Price) error {
	if err := price.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seeds[price.SeedID]; !ok {
		return fmt.Errorf("seed %s: %w", price.SeedID, repository.ErrNotFound)
	}

	if price.ID == uuid.Nil {
		price.ID = uuid.New()
	}

	// Only the latest scrape of a (seed, seedbank, pack size) offer is kept.
	// Rows that expired before this scrape are dropped on the way.
	kept := s.prices[:0]
	superseded := false
	for _, p := range s.prices {
		if sameOffer(p, price) {
			if p.ScrapedAt.After(price.ScrapedAt) {
				superseded = true
				kept = append(kept, p)
			}
			continue
		}
		if p.IsFresh(price.ScrapedAt) {
			kept = append(kept, p)
		}
	}
	clear(s.prices[len(kept):])
	s.prices = kept

	if !superseded {
		s.prices = append(s.prices, clonePrice(price))
	}

	return s.save()
}

func sameOffer(a, b *models.Price) bool {
	return a.SeedID == b.SeedID && a.SeedbankSlug == b.SeedbankSlug && a.PackSize == b.PackSize
}

func (s *Store) FindPrices(ctx context.Context, q repository.PriceQuery) ([]*models.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Price
	for _, p := range s.prices {
		if matches(p, q) {
			out = append(out, clonePrice(p))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].ScrapedAt.After(out[j].ScrapedAt)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(p *models.Price, q repository.PriceQuery) bool {
	if q.SeedID != uuid.Nil && p.SeedID != q.SeedID {
		return false
	}
	if q.Currency != "" && p.Currency != q.Currency {
		return false
	}
	if len(q.Seedbanks) > 0 && !slices.Contains(q.Seedbanks, p.SeedbankSlug) {
		return false
	}
	if q.PackSize != "" && p.PackSize != q.PackSize {
		return false
	}
	if q.InStockOnly && !p.InStock {
		return false
	}
	if !q.ValidAt.IsZero() && !p.IsFresh(q.ValidAt) {
		return false
	}
	return true
}

func (s *Store) FindActiveAlerts(ctx context.Context) ([]*models.PriceAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PriceAlert
	for _, a := range s.alerts {
		if a.IsActive {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SaveAlert(ctx context.Context, alert *models.PriceAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[alert.ID]; !ok {
		return fmt.Errorf("alert %s: %w", alert.ID, repository.ErrNotFound)
	}

	stored := cloneAlert(alert)
	stored.UpdatedAt = s.now()
	s.alerts[alert.ID] = stored

	return s.save()
}

func (s *Store) UpsertAlert(ctx context.Context, alert *models.PriceAlert) (*models.PriceAlert, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if alert.IsActive {
		for _, existing := range s.alerts {
			if existing.IsActive && existing.UserID == alert.UserID && existing.SeedID == alert.SeedID {
				existing.TargetPrice = alert.TargetPrice
				existing.Currency = alert.Currency
				existing.Seedbanks = slices.Clone(alert.Seedbanks)
				existing.PackSize = alert.PackSize
				existing.NotifyOnDiscount = alert.NotifyOnDiscount
				existing.NotifyOnRestock = alert.NotifyOnRestock
				existing.UpdatedAt = now
				return cloneAlert(existing), s.save()
			}
		}
	}

	stored := cloneAlert(alert)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.alerts[stored.ID] = stored

	return cloneAlert(stored), s.save()
}

func (s *Store) DeleteInactiveAlerts(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, a := range s.alerts {
		if !a.IsActive && a.UpdatedAt.Before(cutoff) {
			delete(s.alerts, id)
			deleted++
		}
	}

	if deleted == 0 {
		return 0, nil
	}
	return deleted, s.save()
}

// Stats reports row counts for the health endpoint.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, a := range s.alerts {
		if a.IsActive {
			active++
		}
	}

	return map[string]int{
		"seeds":         len(s.seeds),
		"prices":        len(s.prices),
		"alerts":        len(s.alerts),
		"active_alerts": active,
	}
}

func (s *Store) save() error {
	if s.filename == "" {
		return nil
	}

	snap := snapshot{
		Seeds:  make([]*models.Seed, 0, len(s.seeds)),
		Prices: s.prices,
		Alerts: make([]*models.PriceAlert, 0, len(s.alerts)),
	}
	for _, seed := range s.seeds {
		snap.Seeds = append(snap.Seeds, seed)
	}
	for _, a := range s.alerts {
		snap.Alerts = append(snap.Alerts, a)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, s.filename)
}

func (s *Store) Load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", s.filename, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seed := range snap.Seeds {
		s.seeds[seed.ID] = seed
		s.slugs[seed.Slug] = seed.ID
	}
	s.prices = snap.Prices
	for _, a := range snap.Alerts {
		s.alerts[a.ID] = a
	}
	return nil
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func cloneSeed(s *models.Seed) *models.Seed {
	c := *s
	c.AvgPrice = cloneFloat(s.AvgPrice)
	c.LowestPrice = cloneFloat(s.LowestPrice)
	c.ArchivedAt = cloneTime(s.ArchivedAt)
	return &c
}

func clonePrice(p *models.Price) *models.Price {
	c := *p
	c.OriginalPrice = cloneFloat(p.OriginalPrice)
	return &c
}

func cloneAlert(a *models.PriceAlert) *models.PriceAlert {
	c := *a
	c.Seedbanks = slices.Clone(a.Seedbanks)
	c.TriggeredAt = cloneTime(a.TriggeredAt)
	c.TriggeredPrice = cloneFloat(a.TriggeredPrice)
	c.LastNotified = cloneTime(a.LastNotified)
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
