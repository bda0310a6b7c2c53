package normalize

import (
	"strings"

	"github.com/maltedev/seed-price-scraper/internal/models"
)

// TypeMarkers are the substrings a seedbank uses to flag autoflowering and
// regular seeds in its URLs and product names.
type TypeMarkers struct {
	Autoflower []string
	Regular    []string
}

// DefaultTypeMarkers covers the spellings seen on most German shops.
var DefaultTypeMarkers = TypeMarkers{
	Autoflower: []string{"autoflower", "auto-flower", "automatic", "-auto"},
	Regular:    []string{"/regular", "regulaer", "regulär"},
}

// InferSeedType guesses the seed type from URL and product name. This is a
// best-effort heuristic with known false positives (e.g. strain names that
// contain "auto"); callers should treat the result as a hint.
func InferSeedType(url, name string, markers TypeMarkers) models.SeedType {
	u := strings.ToLower(url)
	n := strings.ToLower(name)

	for _, m := range markers.Autoflower {
		if strings.Contains(u, m) || strings.Contains(n, m) {
			return models.SeedTypeAutoflower
		}
	}

	for _, m := range markers.Regular {
		if strings.Contains(u, m) {
			return models.SeedTypeRegular
		}
	}

	return models.SeedTypeFeminized
}
