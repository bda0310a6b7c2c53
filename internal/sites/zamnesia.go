package sites

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/seed-price-scraper/internal/normalize"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
)

const zamnesiaBaseURL = "https://www.zamnesia.com"

// Zamnesia lists seeds from many breeders, so the breeder is read from the page.
type Zamnesia struct {
	baseURL string
	markers normalize.TypeMarkers
}

func NewZamnesia() *Zamnesia {
	return &Zamnesia{
		baseURL: zamnesiaBaseURL,
		markers: normalize.TypeMarkers{
			Autoflower: []string{"autoflowering", "automatic", "-auto-"},
			Regular:    []string{"/regulare-", "regular-cannabis"},
		},
	}
}

func (z *Zamnesia) Seedbank() scraper.Seedbank {
	return scraper.Seedbank{Name: "Zamnesia", Slug: "zamnesia", Reliability: 0.85}
}

func (z *Zamnesia) BaseURL() string { return z.baseURL }

func (z *Zamnesia) CategoryPaths() []string {
	return []string{
		"/de/33-feminisierte-cannabissamen",
		"/de/34-autoflowering-cannabissamen",
		"/de/36-regulare-cannabissamen",
	}
}

func (z *Zamnesia) ProductLinkSelector() string {
	return ".product-list .product-miniature a.product-thumbnail"
}

// CaptchaMarkers covers the DataDome wall Zamnesia serves to suspected bots.
func (z *Zamnesia) CaptchaMarkers() []string {
	return []string{
		"iframe[src*='captcha-delivery.com']",
		"#ddv1-captcha-container",
	}
}

func (z *Zamnesia) Extract(doc *goquery.Document, pageURL string) (*scraper.ScrapedProduct, error) {
	name := firstText(doc, "h1.product-title", "h1[itemprop='name']", "h1")

	// itemprop content is a plain decimal.
	priceText := firstAttr(doc, "content", ".product-prices [itemprop='price']")
	if priceText == "" {
		priceText = firstText(doc, ".product-prices .current-price span", ".product-prices .price")
	}
	currency := firstAttr(doc, "content", ".product-prices [itemprop='priceCurrency']")
	if currency == "" {
		currency = normalize.Currency(priceText, "EUR")
	}

	p := &scraper.ScrapedProduct{
		Name:     name,
		Breeder:  firstText(doc, ".product-manufacturer a", "[itemprop='brand'] [itemprop='name']"),
		Type:     normalize.InferSeedType(pageURL, name, z.markers),
		Price:    parsePrice(priceText),
		Currency: strings.ToUpper(currency),
		URL:      pageURL,
		ImageURL: absoluteURL(pageURL, firstAttr(doc, "src", ".product-cover img", "img.js-qv-product-cover")),
	}

	if p.Price != nil {
		p.OriginalPrice = parsePrice(firstText(doc, ".product-prices .regular-price"))
	}

	pack := normalize.PackSize(firstText(doc,
		".product-variants .input-container input:checked + span",
		".product-variants select option[selected]",
		".product-variants .radio-label",
	))
	p.PackSize, p.SeedCount = pack.PackSize, pack.SeedCount

	availability := doc.Find("#product-availability").First()
	p.StockLevel = cleanText(availability.Text())
	p.InStock = availability.Length() > 0 &&
		!availability.HasClass("product-unavailable") &&
		!strings.Contains(strings.ToLower(p.StockLevel), "ausverkauft")

	specs := specRows(doc, ".product-features dl.data-sheet > div, .product-features .feature", "dt", "dd")
	if len(specs) == 0 {
		specs = pairedDefinitions(doc, ".product-features dl.data-sheet")
	}
	p.Genetics = lookup(specs, "genetik", "genetics")
	p.THC = lookup(specs, "thc")
	p.CBD = lookup(specs, "cbd")
	p.FloweringTime = lookup(specs, "blütezeit", "flowering")

	return p, nil
}

// pairedDefinitions reads a flat <dl> where each <dt> is followed by its <dd>.
func pairedDefinitions(doc *goquery.Document, selector string) map[string]string {
	specs := make(map[string]string)
	doc.Find(selector).Find("dt").Each(func(_ int, dt *goquery.Selection) {
		label := strings.ToLower(strings.TrimSuffix(cleanText(dt.Text()), ":"))
		value := cleanText(dt.NextFiltered("dd").Text())
		if label != "" && value != "" {
			specs[label] = value
		}
	})
	return specs
}
