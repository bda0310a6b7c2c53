package scraper

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/seed-price-scraper/internal/models"
)

var (
	ErrNavigationFailed = errors.New("navigation failed")
	ErrClosed           = errors.New("scraper closed")
	ErrCaptcha          = errors.New("captcha detected")
)

// Seedbank identifies the retailer an adapter scrapes.
type Seedbank struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Reliability float64 `json:"reliability"`
}

// SiteAdapter is the per-retailer strategy plugged into an Orchestrator.
// Adapters only know markup; politeness, pacing, retries and CAPTCHA handling
// belong to the orchestrator.
type SiteAdapter interface {
	Seedbank() Seedbank
	BaseURL() string
	CategoryPaths() []string
	ProductLinkSelector() string
	// Extract maps a product page to a ScrapedProduct. Missing name or price
	// is reported by leaving the field empty, not by returning an error.
	Extract(doc *goquery.Document, pageURL string) (*ScrapedProduct, error)
}

// CaptchaMarker is implemented by adapters that know extra bot-wall selectors.
type CaptchaMarker interface {
	CaptchaMarkers() []string
}

type ScrapedProduct struct {
	Name          string          `json:"name"`
	Breeder       string          `json:"breeder"`
	Type          models.SeedType `json:"type"`
	Price         *float64        `json:"price"`
	OriginalPrice *float64        `json:"original_price,omitempty"`
	Currency      string          `json:"currency"`
	InStock       bool            `json:"in_stock"`
	StockLevel    string          `json:"stock_level,omitempty"`
	PackSize      string          `json:"pack_size"`
	SeedCount     int             `json:"seed_count"`
	URL           string          `json:"url"`
	Genetics      string          `json:"genetics,omitempty"`
	THC           string          `json:"thc,omitempty"`
	CBD           string          `json:"cbd,omitempty"`
	FloweringTime string          `json:"flowering_time,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
}

// Complete reports whether the product carries the fields required to be persisted.
func (p *ScrapedProduct) Complete() bool {
	return p != nil && p.Name != "" && p.Price != nil
}

// ProductSink receives every product a run harvests.
type ProductSink interface {
	Record(ctx context.Context, seedbank Seedbank, product *ScrapedProduct) error
}

type ProductSinkFunc func(ctx context.Context, seedbank Seedbank, product *ScrapedProduct) error

func (f ProductSinkFunc) Record(ctx context.Context, seedbank Seedbank, product *ScrapedProduct) error {
	return f(ctx, seedbank, product)
}

type PolitenessGuard interface {
	IsAllowed(ctx context.Context, baseURL, path string) bool
}
