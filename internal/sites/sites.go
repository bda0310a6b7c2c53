// Package sites holds one scraper.SiteAdapter per seedbank.
package sites

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/seed-price-scraper/internal/normalize"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
)

var ErrDuplicateSeedbank = errors.New("seedbank already registered")

// Registry looks adapters up by seedbank slug and keeps registration order.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]scraper.SiteAdapter
	order    []string
}

func NewRegistry(adapters ...scraper.SiteAdapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]scraper.SiteAdapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry contains every adapter shipped with the scraper.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(NewSensiSeeds(), NewZamnesia(), NewRoyalQueenSeeds())
	return r
}

func (r *Registry) Register(a scraper.SiteAdapter) error {
	slug := a.Seedbank().Slug

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.adapters[slug]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSeedbank, slug)
	}
	r.adapters[slug] = a
	r.order = append(r.order, slug)
	return nil
}

func (r *Registry) Get(slug string) (scraper.SiteAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[slug]
	return a, ok
}

func (r *Registry) All() []scraper.SiteAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]scraper.SiteAdapter, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.adapters[slug])
	}
	return out
}

func (r *Registry) Seedbanks() []scraper.Seedbank {
	adapters := r.All()
	out := make([]scraper.Seedbank, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, a.Seedbank())
	}
	return out
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstText returns the text of the first selector that yields non-empty text.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := cleanText(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(doc *goquery.Document, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	if v, ok := normalize.Price(text); ok {
		return &v
	}
	return nil
}

// specRows reads a two-column attribute table into a map keyed by the
// lowercased label without a trailing colon.
func specRows(doc *goquery.Document, rowSelector, labelSelector, valueSelector string) map[string]string {
	specs := make(map[string]string)
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		label := strings.ToLower(strings.TrimSuffix(cleanText(row.Find(labelSelector).First().Text()), ":"))
		value := cleanText(row.Find(valueSelector).First().Text())
		if label != "" && value != "" {
			specs[label] = value
		}
	})
	return specs
}

// lookup returns the first attribute matching one of keys, exact labels first.
func lookup(specs map[string]string, keys ...string) string {
	for _, key := range keys {
		if v, ok := specs[key]; ok {
			return v
		}
	}
	for _, key := range keys {
		for label, v := range specs {
			if strings.Contains(label, key) {
				return v
			}
		}
	}
	return ""
}

func absoluteURL(pageURL, ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
