package extract

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchwatch/crawler/internal/merch"
)

const detailPage = `<html><body>
<div id="wayfinding-breadcrumbs_feature_div">Clothing, Shoes &amp; Jewelry › Novelty &amp; More</div>
<span id="productTitle"> Funny Cat Dad  Vintage T-Shirt </span>
<div id="bylineInfo_feature_div"><a id="bylineInfo">Brand: CatCo Merch on Demand</a></div>
<span class="a-price"><span class="a-offscreen">$19.99</span></span>
<span id="acrPopover" title="4.7 out of 5 stars"></span>
<span id="acrCustomerReviewText">321 ratings</span>
<img id="landingImage" src="https://img.example/cat.jpg"/>
<div id="feature-bullets"><ul>
  <li><span class="a-list-item">About this item</span></li>
  <li><span class="a-list-item">Lightweight, Classic fit</span></li>
  <li><span class="a-list-item">Lightweight, Classic fit</span></li>
  <li><span class="a-list-item">Double-needle sleeve and bottom hem</span></li>
</ul></div>
<div id="detailBullets_feature_div">
  <li>Best Sellers Rank: #1,234 in Clothing, Shoes &amp; Jewelry (See Top 100) #56 in Men's T-Shirts</li>
</div>
<ul><li data-defaultasin="B0VARIANT1"></li><li data-dp-url="/dp/B0VARIANT2/ref=twister"></li></ul>
<script>var state = {"asin":"B0VARIANT3","parent":"B0EXAMPLE9"};</script>
<input type="hidden" id="ASIN" name="ASIN" value="B0EXAMPLE9"/>
</body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	require.NoError(t, err)
	return doc
}

func TestExtractMerchDetailPage(t *testing.T) {
	e := New(nil)
	result, err := e.Extract([]byte(detailPage), "https://www.amazon.com/dp/B0EXAMPLE9", "https://www.amazon.com/dp/B0EXAMPLE9")
	require.NoError(t, err)
	require.NotNil(t, result.Product)

	p := result.Product
	assert.Equal(t, "B0EXAMPLE9", p.ASIN)
	assert.Equal(t, "Funny Cat Dad Vintage T-Shirt", p.Title)
	assert.Equal(t, merch.MerchSourceBadge, p.MerchSource)
	require.NotNil(t, p.BSR)
	assert.Equal(t, 1234, *p.BSR)
	assert.Equal(t, "Clothing, Shoes & Jewelry", p.BSRCategory)
	require.NotNil(t, p.PriceCents)
	assert.Equal(t, 1999, *p.PriceCents)
	require.NotNil(t, p.Rating)
	assert.InDelta(t, 4.7, *p.Rating, 0.001)
	require.NotNil(t, p.ReviewCount)
	assert.Equal(t, 321, *p.ReviewCount)
	assert.Equal(t, "Lightweight, Classic fit", p.Bullet1)
	assert.Equal(t, "Double-needle sleeve and bottom hem", p.Bullet2)
	assert.Equal(t, merch.ProductTypeTShirt, p.ProductType)

	assert.ElementsMatch(t, []string{"B0VARIANT1", "B0VARIANT2", "B0VARIANT3"}, result.VariantASINs)
}

func TestExtractRequiresFashionContext(t *testing.T) {
	// Same merch byline, but the breadcrumb puts the item outside apparel.
	page := `<html><body>
<div id="wayfinding-breadcrumbs_feature_div">Cell Phones &amp; Accessories</div>
<a id="bylineInfo">Brand: CaseCo Merch on Demand</a>
<input type="hidden" name="ASIN" value="B0CASECASE"/>
</body></html>`

	e := New(nil)
	result, err := e.Extract([]byte(page), "https://www.amazon.com/dp/B0CASECASE", "")
	require.NoError(t, err)
	assert.Nil(t, result.Product)
}

func TestExtractContextWithoutSignalIsDiscarded(t *testing.T) {
	page := `<html><body>
<div id="wayfinding-breadcrumbs_feature_div">Clothing, Shoes &amp; Jewelry</div>
<a id="bylineInfo">Brand: GenericThreads</a>
<input type="hidden" name="ASIN" value="B0PLAINTEE"/>
</body></html>`

	e := New(nil)
	result, err := e.Extract([]byte(page), "https://www.amazon.com/dp/B0PLAINTEE", "")
	require.NoError(t, err)
	assert.Nil(t, result.Product)
}

func TestExtractNoASIN(t *testing.T) {
	e := New(nil)
	result, err := e.Extract([]byte("<html><body><p>hello</p></body></html>"), "https://www.amazon.com/gp/help", "")
	require.NoError(t, err)
	assert.Nil(t, result.Product)
	assert.Empty(t, result.VariantASINs)
}

func TestDetectMerchSignalPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		html       string
		wantMerch  bool
		wantSource merch.MerchSource
	}{
		{
			name: "logo outranks byline",
			html: `<div id="wayfinding-breadcrumbs_feature_div">Clothing</div>
<img alt="Amazon Merch on Demand logo" src="x.png"/>
<a id="bylineInfo">Merch on Demand</a>`,
			wantMerch:  true,
			wantSource: merch.MerchSourceLogo,
		},
		{
			name: "byline",
			html: `<div id="wayfinding-breadcrumbs_feature_div">Clothing</div>
<a id="bylineInfo">Brand Merch on Demand</a>`,
			wantMerch:  true,
			wantSource: merch.MerchSourceBadge,
		},
		{
			name: "seller",
			html: `<div id="wayfinding-breadcrumbs_feature_div">Fashion</div>
<div id="merchant-info">Ships from and sold by Amazon Merch on Demand.</div>`,
			wantMerch:  true,
			wantSource: merch.MerchSourceSeller,
		},
		{
			name: "manufacturer row",
			html: `<div id="wayfinding-breadcrumbs_feature_div">Clothing</div>
<table id="productDetails_techSpec_section_1"><tr><th>Manufacturer</th><td>Merch on Demand</td></tr></table>`,
			wantMerch:  true,
			wantSource: merch.MerchSourceManufacturer,
		},
		{
			name: "jsonld brand",
			html: `<div id="wayfinding-breadcrumbs_feature_div">Apparel</div>
<script type="application/ld+json">{"brand":{"name":"Merch on Demand"}}</script>`,
			wantMerch:  true,
			wantSource: merch.MerchSourceJSONLD,
		},
		{
			name:      "no context",
			html:      `<img alt="Merch on Demand"/>`,
			wantMerch: false,
		},
		{
			name:      "context without signal",
			html:      `<div id="wayfinding-breadcrumbs_feature_div">Clothing</div>`,
			wantMerch: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustDoc(t, fmt.Sprintf("<html><body>%s</body></html>", tc.html))
			isMerch, source := DetectMerch(doc)
			assert.Equal(t, tc.wantMerch, isMerch)
			assert.Equal(t, tc.wantSource, source)
		})
	}
}

func TestResolveASINPriority(t *testing.T) {
	doc := mustDoc(t, `<html><body><input name="ASIN" value="B0FORMASIN"/></body></html>`)

	// Final URL wins.
	assert.Equal(t, "B0FINALURL",
		ResolveASIN("https://www.amazon.com/dp/B0FINALURL?ref=x", doc, "https://www.amazon.com/dp/B0SOURCEUR"))
	// Then the hidden form field.
	assert.Equal(t, "B0FORMASIN",
		ResolveASIN("https://www.amazon.com/gp/help", doc, "https://www.amazon.com/dp/B0SOURCEUR"))
	// Then the original URL.
	empty := mustDoc(t, "<html></html>")
	assert.Equal(t, "B0SOURCEUR",
		ResolveASIN("https://www.amazon.com/gp/help", empty, "https://www.amazon.com/dp/B0SOURCEUR"))
	// Nothing resolvable.
	assert.Empty(t, ResolveASIN("https://www.amazon.com/gp/help", empty, ""))
}
