package sites

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/normalize"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
)

const sensiSeedsBaseURL = "https://sensiseeds.com"

// SensiSeeds scrapes the German storefront of sensiseeds.com (Magento).
type SensiSeeds struct {
	baseURL string
	markers normalize.TypeMarkers
}

func NewSensiSeeds() *SensiSeeds {
	return &SensiSeeds{
		baseURL: sensiSeedsBaseURL,
		markers: normalize.TypeMarkers{
			Autoflower: []string{"autoflowering", "-auto", " auto"},
			Regular:    []string{"regulare-samen", "regular"},
		},
	}
}

func (s *SensiSeeds) Seedbank() scraper.Seedbank {
	return scraper.Seedbank{Name: "Sensi Seeds", Slug: "sensi-seeds", Reliability: 0.95}
}

func (s *SensiSeeds) BaseURL() string { return s.baseURL }

func (s *SensiSeeds) CategoryPaths() []string {
	return []string{
		"/de/cannabis-samen/feminisierte-samen",
		"/de/cannabis-samen/autoflowering-samen",
		"/de/cannabis-samen/regulare-samen",
	}
}

func (s *SensiSeeds) ProductLinkSelector() string {
	return "li.product-item a.product-item-link"
}

func (s *SensiSeeds) Extract(doc *goquery.Document, pageURL string) (*scraper.ScrapedProduct, error) {
	name := firstText(doc, "h1.page-title span", "h1.page-title", "h1")

	priceText := firstText(doc,
		".product-info-main .special-price .price",
		".product-info-main .price-box .price",
	)

	p := &scraper.ScrapedProduct{
		Name:     name,
		Breeder:  "Sensi Seeds",
		Type:     normalize.InferSeedType(pageURL, name, s.markers),
		Price:    parsePrice(priceText),
		Currency: normalize.Currency(priceText, "EUR"),
		URL:      pageURL,
		ImageURL: absoluteURL(pageURL, firstAttr(doc, "content", `meta[property="og:image"]`)),
	}

	if p.Price != nil {
		p.OriginalPrice = parsePrice(firstText(doc, ".product-info-main .old-price .price"))
	}

	pack := normalize.PackSize(firstText(doc,
		"#pack-size option[selected]",
		".swatch-option.selected",
		".product-options-wrapper .pack-size",
	))
	p.PackSize, p.SeedCount = pack.PackSize, pack.SeedCount

	stock := doc.Find(".product-info-stock-sku .stock").First()
	p.InStock = stock.HasClass("available")
	p.StockLevel = cleanText(stock.Text())

	specs := specRows(doc, "#product-attribute-specs-table tr", "th", "td")
	p.Genetics = lookup(specs, "genetik", "genetics")
	p.THC = lookup(specs, "thc")
	p.CBD = lookup(specs, "cbd")
	p.FloweringTime = lookup(specs, "blütezeit", "flowering time")

	// The attribute table names the type explicitly for regular strains.
	if strings.EqualFold(specs["typ"], "regulär") {
		p.Type = models.SeedTypeRegular
	}

	return p, nil
}
