package sites

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/seed-price-scraper/internal/normalize"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
)

const royalQueenSeedsBaseURL = "https://www.royalqueenseeds.de"

type RoyalQueenSeeds struct {
	baseURL string
	markers normalize.TypeMarkers
}

func NewRoyalQueenSeeds() *RoyalQueenSeeds {
	return &RoyalQueenSeeds{
		baseURL: royalQueenSeedsBaseURL,
		markers: normalize.TypeMarkers{
			// RQS names its autos "<strain> Auto" and files them under /autoflower-...
			Autoflower: []string{"autoflower", " auto", "-auto"},
			Regular:    []string{"regulare-hanfsamen"},
		},
	}
}

func (r *RoyalQueenSeeds) Seedbank() scraper.Seedbank {
	return scraper.Seedbank{Name: "Royal Queen Seeds", Slug: "royal-queen-seeds", Reliability: 0.9}
}

func (r *RoyalQueenSeeds) BaseURL() string { return r.baseURL }

func (r *RoyalQueenSeeds) CategoryPaths() []string {
	return []string{
		"/feminisierte-hanfsamen/",
		"/autoflower-hanfsamen/",
		"/regulare-hanfsamen/",
	}
}

func (r *RoyalQueenSeeds) ProductLinkSelector() string {
	return ".product_list .product-container a.product-name"
}

func (r *RoyalQueenSeeds) Extract(doc *goquery.Document, pageURL string) (*scraper.ScrapedProduct, error) {
	name := firstText(doc, "h1[itemprop='name']", ".pb-center-column h1", "h1")

	priceText := firstText(doc, "#our_price_display", ".content_prices .price")

	p := &scraper.ScrapedProduct{
		Name:     name,
		Breeder:  "Royal Queen Seeds",
		Type:     normalize.InferSeedType(pageURL, name, r.markers),
		Price:    parsePrice(priceText),
		Currency: normalize.Currency(priceText, "EUR"),
		URL:      pageURL,
		ImageURL: absoluteURL(pageURL, firstAttr(doc, "src", "#bigpic", ".product-image img")),
	}

	if p.Price != nil {
		p.OriginalPrice = parsePrice(firstText(doc, "#old_price_display"))
	}

	pack := normalize.PackSize(firstText(doc,
		"#attributes select option[selected]",
		"#attributes .attribute_list li.selected",
		".pack-selector .active",
	))
	p.PackSize, p.SeedCount = pack.PackSize, pack.SeedCount

	p.StockLevel = firstText(doc, "#availability_value", "#availability_statut")
	p.InStock = doc.Find("#add_to_cart").Length() > 0 &&
		!strings.Contains(strings.ToLower(p.StockLevel), "nicht")

	specs := specRows(doc, ".table-data-sheet tr", "td:first-child", "td:last-child")
	p.Genetics = lookup(specs, "genetischer hintergrund", "genetik")
	p.THC = lookup(specs, "thc")
	p.CBD = lookup(specs, "cbd")
	p.FloweringTime = lookup(specs, "blütezeit")

	return p, nil
}
