// Package extract turns fetched product-page HTML into structured records.
// All markup-shape assumptions live here; the rest of the system depends
// only on the structured output types.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/merch"
)

// maxScriptScanBytes caps the per-script regex scan so pathological
// documents cannot stall extraction.
const maxScriptScanBytes = 256 * 1024

var (
	urlASINPattern    = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})(?:[/?]|$)`)
	strictASIN        = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	embeddedASINs     = regexp.MustCompile(`"asin"\s*:\s*"([A-Z0-9]{10})"`)
	bulletBoilerplate = map[string]bool{
		"about this item": true,
		"from the brand":  true,
	}
)

// Result is the structured output of a single product-page extraction.
// Product is nil when the page is not a savable merch listing.
type Result struct {
	Product      *merch.Product
	VariantASINs []string
}

// Extractor parses fetched HTML documents. It performs no network or
// storage access.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses a fetched document. finalURL is the post-redirect URL,
// sourceURL the one originally requested. A missing ASIN or a failed
// merch gate yields a nil Product, never an error; errors are reserved
// for HTML that cannot be parsed at all.
func (e *Extractor) Extract(body []byte, finalURL, sourceURL string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}

	asin := ResolveASIN(finalURL, doc, sourceURL)
	if asin == "" {
		e.logger.Debug("no asin resolvable", zap.String("url", finalURL))
		return Result{}, nil
	}

	variants := e.harvestVariantASINs(doc, asin)

	isMerch, source := DetectMerch(doc)
	if !isMerch {
		return Result{VariantASINs: variants}, nil
	}

	bullets := e.featureBullets(doc)
	breadcrumbs := doc.Find("#wayfinding-breadcrumbs_feature_div").Text()
	variationLabels := doc.Find("#variation_style_name, .twisterTextDiv").Text()
	title := normalizeSpace(doc.Find("#productTitle").Text())

	bsr, bsrCategory := findBSR(doc)

	product := merch.Product{
		ASIN:        asin,
		Title:       title,
		Brand:       extractBrand(doc),
		PriceCents:  MoneyToCents(doc.Find(".a-price .a-offscreen, #priceblock_ourprice").First().Text()),
		Rating:      extractRating(doc),
		ReviewCount: parseCount(doc.Find("#acrCustomerReviewText").First().Text()),
		BSR:         bsr,
		BSRCategory: bsrCategory,
		URL:         finalURL,
		ImageURL:    doc.Find("#landingImage, #imgBlkFront").First().AttrOr("src", ""),
		MerchSource: source,
		ProductType: ClassifyProductType(title, strings.Join(bullets, " "), breadcrumbs, variationLabels),
	}
	if len(bullets) > 0 {
		product.Bullet1 = bullets[0]
	}
	if len(bullets) > 1 {
		product.Bullet2 = bullets[1]
	}

	return Result{Product: &product, VariantASINs: variants}, nil
}

// ResolveASIN extracts the 10-character identifier, preferring the final
// URL, then a hidden form field, then the original URL.
func ResolveASIN(finalURL string, doc *goquery.Document, sourceURL string) string {
	if m := urlASINPattern.FindStringSubmatch(finalURL); m != nil {
		return m[1]
	}
	if doc != nil {
		value := strings.TrimSpace(doc.Find(`input#ASIN, input[name="ASIN"]`).First().AttrOr("value", ""))
		if strictASIN.MatchString(value) {
			return value
		}
	}
	if m := urlASINPattern.FindStringSubmatch(sourceURL); m != nil {
		return m[1]
	}
	return ""
}

// ASINFromURL returns the identifier embedded in a detail-page URL, or
// the empty string when the URL is not a detail page.
func ASINFromURL(rawURL string) string {
	if m := urlASINPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

// findBSR checks detail regions in fixed order and falls back to the
// whole document.
func findBSR(doc *goquery.Document) (*int, string) {
	regions := []string{
		"#productDetails_detailBullets_sections1",
		"#detailBulletsWrapper_feature_div",
		"#detailBullets_feature_div",
		"#prodDetails",
	}
	for _, sel := range regions {
		if rank, cat := ParseBSR(doc.Find(sel).Text()); rank != nil {
			return rank, cat
		}
	}
	return ParseBSR(doc.Text())
}

func (e *Extractor) featureBullets(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var bullets []string
	doc.Find("#feature-bullets li span.a-list-item, #feature-bullets li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := normalizeSpace(s.Text())
		if text == "" || bulletBoilerplate[strings.ToLower(text)] {
			return true
		}
		if seen[text] {
			return true
		}
		seen[text] = true
		bullets = append(bullets, text)
		return len(bullets) < 2
	})
	return bullets
}

func extractRating(doc *goquery.Document) *float64 {
	if rating := parseRating(doc.Find("#acrPopover").First().AttrOr("title", "")); rating != nil {
		return rating
	}
	return parseRating(doc.Find("span.a-icon-alt").First().Text())
}

func extractBrand(doc *goquery.Document) string {
	brand := normalizeSpace(doc.Find("#bylineInfo").First().Text())
	brand = strings.TrimPrefix(brand, "Brand:")
	brand = strings.TrimPrefix(brand, "Visit the")
	brand = strings.TrimSuffix(brand, "Store")
	return strings.TrimSpace(brand)
}

// harvestVariantASINs collects candidate sibling ASINs from structural
// attributes and embedded JSON blobs, excluding the base ASIN.
func (e *Extractor) harvestVariantASINs(doc *goquery.Document, baseASIN string) []string {
	seen := map[string]bool{baseASIN: true}
	var variants []string
	add := func(candidate string) {
		candidate = strings.ToUpper(strings.TrimSpace(candidate))
		if !strictASIN.MatchString(candidate) || seen[candidate] {
			return
		}
		seen[candidate] = true
		variants = append(variants, candidate)
	}

	doc.Find("[data-defaultasin], [data-csa-c-item-id], li[data-dp-url]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("data-defaultasin", ""))
		if m := urlASINPattern.FindStringSubmatch(s.AttrOr("data-dp-url", "")); m != nil {
			add(m[1])
		}
		if m := strictASIN.FindString(lastToken(s.AttrOr("data-csa-c-item-id", ""), '.')); m != "" {
			add(m)
		}
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if len(text) > maxScriptScanBytes {
			text = text[:maxScriptScanBytes]
		}
		for _, m := range embeddedASINs.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	})

	return variants
}

func lastToken(s string, sep byte) string {
	if idx := strings.LastIndexByte(s, sep); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
