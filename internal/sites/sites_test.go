package sites

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/seed-price-scraper/internal/browser/browsertest"
	"github.com/maltedev/seed-price-scraper/internal/models"
	"github.com/maltedev/seed-price-scraper/internal/ratelimit"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sensiProductHTML = `<html><head>
<meta property="og:image" content="/media/catalog/product/skunk-1.jpg">
</head><body>
<div class="product-info-main">
  <h1 class="page-title"><span>Skunk #1®</span></h1>
  <div class="price-box">
    <span class="special-price"><span class="price">25,60 €</span></span>
    <span class="old-price"><span class="price">32,00 €</span></span>
  </div>
  <div class="product-info-stock-sku"><div class="stock available"><span>Auf Lager</span></div></div>
  <select id="pack-size"><option value="3">3 Samen</option><option value="5" selected>5 Samen</option></select>
</div>
<table id="product-attribute-specs-table">
  <tr><th>Genetik</th><td>Afghani x Acapulco Gold x Colombian Gold</td></tr>
  <tr><th>THC</th><td>Hoch</td></tr>
  <tr><th>Blütezeit:</th><td>45 - 50 Tage</td></tr>
</table>
</body></html>`

const zamnesiaProductHTML = `<html><body>
<h1 class="product-title">Amnesia Haze Automatic</h1>
<div class="product-manufacturer"><a href="/de/brand/zamnesia-seeds">Zamnesia Seeds</a></div>
<div class="product-prices">
  <span class="regular-price">42,00 €</span>
  <div class="current-price"><span itemprop="price" content="33.60">33,60 €</span></div>
  <meta itemprop="priceCurrency" content="EUR">
</div>
<div class="product-variants"><select><option>3 Seeds</option><option selected>5 Seeds</option></select></div>
<span id="product-availability">Auf Lager</span>
<div class="product-cover"><img src="/img/p/amnesia-auto.jpg"></div>
<section class="product-features"><dl class="data-sheet">
  <dt class="name">Genetik</dt><dd class="value">Amnesia Haze x Ruderalis</dd>
  <dt class="name">THC</dt><dd class="value">18%</dd>
  <dt class="name">Blütezeit</dt><dd class="value">10 Wochen</dd>
</dl></section>
</body></html>`

const rqsProductHTML = `<html><body>
<div class="pb-center-column"><h1 itemprop="name">Northern Light Auto</h1></div>
<div class="content_prices"><span id="our_price_display">17,00 €</span><span id="old_price_display"></span></div>
<div id="attributes"><select><option>1 Samen</option><option selected>3 Samen</option></select></div>
<span id="availability_value">Auf Lager</span>
<p id="add_to_cart"><button>In den Warenkorb</button></p>
<img id="bigpic" src="https://www.royalqueenseeds.de/img/nl-auto.jpg">
<table class="table-data-sheet">
  <tr><td>Genetischer Hintergrund</td><td>Northern Light x Ruderalis</td></tr>
  <tr><td>THC</td><td>18%</td></tr>
</table>
</body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestSensiSeedsExtract(t *testing.T) {
	adapter := NewSensiSeeds()
	pageURL := "https://sensiseeds.com/de/cannabis-samen/feminisierte-samen/skunk-1"

	p, err := adapter.Extract(mustDoc(t, sensiProductHTML), pageURL)
	require.NoError(t, err)

	assert.Equal(t, "Skunk #1®", p.Name)
	assert.Equal(t, "Sensi Seeds", p.Breeder)
	assert.Equal(t, models.SeedTypeFeminized, p.Type)
	require.NotNil(t, p.Price)
	assert.Equal(t, 25.6, *p.Price)
	require.NotNil(t, p.OriginalPrice)
	assert.Equal(t, 32.0, *p.OriginalPrice)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, "5 Samen", p.PackSize)
	assert.Equal(t, 5, p.SeedCount)
	assert.True(t, p.InStock)
	assert.Equal(t, "Auf Lager", p.StockLevel)
	assert.Equal(t, "Afghani x Acapulco Gold x Colombian Gold", p.Genetics)
	assert.Equal(t, "Hoch", p.THC)
	assert.Equal(t, "45 - 50 Tage", p.FloweringTime)
	assert.Equal(t, "https://sensiseeds.com/media/catalog/product/skunk-1.jpg", p.ImageURL)
	assert.True(t, p.Complete())
}

func TestSensiSeedsTypeInference(t *testing.T) {
	adapter := NewSensiSeeds()
	doc := func() *goquery.Document { return mustDoc(t, `<h1 class="page-title"><span>X</span></h1>`) }

	p, _ := adapter.Extract(doc(), "https://sensiseeds.com/de/cannabis-samen/autoflowering-samen/northern-lights-auto")
	assert.Equal(t, models.SeedTypeAutoflower, p.Type)

	p, _ = adapter.Extract(doc(), "https://sensiseeds.com/de/cannabis-samen/regulare-samen/hindu-kush")
	assert.Equal(t, models.SeedTypeRegular, p.Type)
}

func TestSensiSeedsOutOfStockWithoutPrice(t *testing.T) {
	html := `<div class="product-info-main"><h1 class="page-title"><span>Jack Herer</span></h1>
<div class="product-info-stock-sku"><div class="stock unavailable"><span>Nicht vorrätig</span></div></div></div>`

	p, err := NewSensiSeeds().Extract(mustDoc(t, html), "https://sensiseeds.com/de/jack-herer")
	require.NoError(t, err)

	assert.False(t, p.InStock)
	assert.Nil(t, p.Price)
	assert.Equal(t, 1, p.SeedCount)
	assert.False(t, p.Complete())
}

func TestZamnesiaExtract(t *testing.T) {
	adapter := NewZamnesia()
	pageURL := "https://www.zamnesia.com/de/cannabissamen/1234-zamnesia-seeds-amnesia-haze-automatic.html"

	p, err := adapter.Extract(mustDoc(t, zamnesiaProductHTML), pageURL)
	require.NoError(t, err)

	assert.Equal(t, "Amnesia Haze Automatic", p.Name)
	assert.Equal(t, "Zamnesia Seeds", p.Breeder)
	assert.Equal(t, models.SeedTypeAutoflower, p.Type)
	require.NotNil(t, p.Price)
	assert.Equal(t, 33.6, *p.Price)
	require.NotNil(t, p.OriginalPrice)
	assert.Equal(t, 42.0, *p.OriginalPrice)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, 5, p.SeedCount)
	assert.True(t, p.InStock)
	assert.Equal(t, "Amnesia Haze x Ruderalis", p.Genetics)
	assert.Equal(t, "18%", p.THC)
	assert.Equal(t, "10 Wochen", p.FloweringTime)
	assert.Equal(t, "https://www.zamnesia.com/img/p/amnesia-auto.jpg", p.ImageURL)
}

func TestZamnesiaSoldOut(t *testing.T) {
	html := `<h1 class="product-title">Gorilla Glue</h1>
<div class="product-prices"><span class="price">29,95 €</span></div>
<span id="product-availability" class="product-unavailable">Ausverkauft</span>`

	p, err := NewZamnesia().Extract(mustDoc(t, html), "https://www.zamnesia.com/de/cannabissamen/99-gorilla-glue.html")
	require.NoError(t, err)

	require.NotNil(t, p.Price)
	assert.Equal(t, 29.95, *p.Price)
	assert.Nil(t, p.OriginalPrice)
	assert.False(t, p.InStock)
	assert.Equal(t, models.SeedTypeFeminized, p.Type)
}

func TestZamnesiaCaptchaMarkers(t *testing.T) {
	var adapter scraper.SiteAdapter = NewZamnesia()
	cm, ok := adapter.(scraper.CaptchaMarker)
	require.True(t, ok)
	assert.NotEmpty(t, cm.CaptchaMarkers())
}

func TestRoyalQueenSeedsExtract(t *testing.T) {
	adapter := NewRoyalQueenSeeds()
	pageURL := "https://www.royalqueenseeds.de/autoflower-hanfsamen/21-northern-light-auto.html"

	p, err := adapter.Extract(mustDoc(t, rqsProductHTML), pageURL)
	require.NoError(t, err)

	assert.Equal(t, "Northern Light Auto", p.Name)
	assert.Equal(t, "Royal Queen Seeds", p.Breeder)
	assert.Equal(t, models.SeedTypeAutoflower, p.Type)
	require.NotNil(t, p.Price)
	assert.Equal(t, 17.0, *p.Price)
	assert.Nil(t, p.OriginalPrice)
	assert.Equal(t, "3 Samen", p.PackSize)
	assert.Equal(t, 3, p.SeedCount)
	assert.True(t, p.InStock)
	assert.Equal(t, "Northern Light x Ruderalis", p.Genetics)
	assert.Equal(t, "18%", p.THC)
	assert.Equal(t, "https://www.royalqueenseeds.de/img/nl-auto.jpg", p.ImageURL)
}

func TestRoyalQueenSeedsRegularFromURL(t *testing.T) {
	html := `<h1 itemprop="name">Shining Silver Haze</h1><span id="our_price_display">24,00 €</span>`

	p, err := NewRoyalQueenSeeds().Extract(mustDoc(t, html), "https://www.royalqueenseeds.de/regulare-hanfsamen/60-shining-silver-haze.html")
	require.NoError(t, err)

	assert.Equal(t, models.SeedTypeRegular, p.Type)
	assert.False(t, p.InStock)
}

func TestAdaptersDeclareDistinctSeedbanks(t *testing.T) {
	r := DefaultRegistry()

	slugs := make(map[string]bool)
	for _, a := range r.All() {
		sb := a.Seedbank()
		assert.NotEmpty(t, sb.Name)
		assert.False(t, slugs[sb.Slug], "duplicate slug %s", sb.Slug)
		slugs[sb.Slug] = true
		assert.Greater(t, sb.Reliability, 0.0)
		assert.LessOrEqual(t, sb.Reliability, 1.0)
		assert.NotEmpty(t, a.CategoryPaths())
		assert.NotEmpty(t, a.ProductLinkSelector())
		assert.True(t, strings.HasPrefix(a.BaseURL(), "https://"))
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	require.Len(t, r.All(), 3)
	assert.Equal(t, "sensi-seeds", r.All()[0].Seedbank().Slug)

	a, ok := r.Get("zamnesia")
	require.True(t, ok)
	assert.Equal(t, "Zamnesia", a.Seedbank().Name)

	_, ok = r.Get("unknown")
	assert.False(t, ok)

	err := r.Register(NewZamnesia())
	assert.ErrorIs(t, err, ErrDuplicateSeedbank)
	assert.Len(t, r.Seedbanks(), 3)
}

func TestZamnesiaThroughOrchestrator(t *testing.T) {
	adapter := NewZamnesia()
	category := "/de/33-feminisierte-cannabissamen"
	productURL := "https://www.zamnesia.com/de/cannabissamen/1234-zamnesia-seeds-amnesia-haze-automatic.html"

	launcher := browsertest.NewLauncher().
		ServeHTML(zamnesiaBaseURL+category, `<div class="product-list">
<article class="product-miniature"><a class="product-thumbnail" href="/de/cannabissamen/1234-zamnesia-seeds-amnesia-haze-automatic.html"><img></a></article>
<article class="product-miniature"><a class="product-thumbnail" href="/de/cannabissamen/1234-zamnesia-seeds-amnesia-haze-automatic.html#reviews"><img></a></article>
</div>`).
		ServeHTML(productURL, zamnesiaProductHTML)

	opts := scraper.DefaultOptions()
	opts.CategoryPaths = []string{category}
	orch := scraper.NewOrchestrator(adapter, launcher, nil, ratelimit.NewSimpleRateLimiter(time.Millisecond, 0), opts, nil)

	var recorded []*scraper.ScrapedProduct
	sink := scraper.ProductSinkFunc(func(_ context.Context, sb scraper.Seedbank, p *scraper.ScrapedProduct) error {
		assert.Equal(t, "zamnesia", sb.Slug)
		recorded = append(recorded, p)
		return nil
	})

	stats, err := orch.ScrapeAll(context.Background(), sink)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.URLsDiscovered)
	assert.Equal(t, 1, stats.Recorded)
	require.Len(t, recorded, 1)
	assert.Equal(t, "Amnesia Haze Automatic", recorded[0].Name)
	assert.Equal(t, productURL, recorded[0].URL)
}
