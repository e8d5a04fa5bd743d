package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/merchwatch/crawler/internal/merch"
)

const merchToken = "merch on demand"

// fashionContextKeywords gate merch detection to apparel categories.
// Without the gate, merch-themed accessories (phone cases, stickers)
// outside clothing produce false positives.
var fashionContextKeywords = []string{
	"clothing",
	"shoes & jewelry",
	"fashion",
	"apparel",
	"novelty",
	"t-shirt",
}

// merchSignal is one named detection predicate. Signals run in priority
// order; the first match supplies the provenance tag.
type merchSignal struct {
	Source merch.MerchSource
	Match  func(doc *goquery.Document) bool
}

var merchSignals = []merchSignal{
	{merch.MerchSourceLogo, matchLogoSignal},
	{merch.MerchSourceBadge, matchBadgeSignal},
	{merch.MerchSourceSeller, matchSellerSignal},
	{merch.MerchSourceManufacturer, matchManufacturerSignal},
	{merch.MerchSourceJSONLD, matchJSONLDSignal},
}

// DetectMerch applies the fashion-context gate and the ordered signal
// table. Both must hold for a listing to count as Merch on Demand; the
// returned source identifies the first matching signal.
func DetectMerch(doc *goquery.Document) (bool, merch.MerchSource) {
	if !hasFashionContext(doc) {
		return false, ""
	}
	for _, signal := range merchSignals {
		if signal.Match(doc) {
			return true, signal.Source
		}
	}
	return false, ""
}

func hasFashionContext(doc *goquery.Document) bool {
	var parts []string
	doc.Find("#wayfinding-breadcrumbs_feature_div, #nav-subnav, .a-breadcrumb").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	doc.Find("#productDetails_detailBullets_sections1, #detailBulletsWrapper_feature_div").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	haystack := strings.ToLower(strings.Join(parts, " "))
	for _, kw := range fashionContextKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func matchLogoSignal(doc *goquery.Document) bool {
	found := false
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		alt := strings.ToLower(s.AttrOr("alt", ""))
		src := strings.ToLower(s.AttrOr("src", ""))
		if strings.Contains(alt, merchToken) || strings.Contains(src, "merch-on-demand") {
			found = true
			return false
		}
		return true
	})
	return found
}

func matchBadgeSignal(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Find("#bylineInfo, #bylineInfo_feature_div, .badge-wrapper").Text())
	return strings.Contains(text, merchToken)
}

func matchSellerSignal(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Find("#merchant-info, #sellerProfileTriggerId, #tabular-buybox").Text())
	return strings.Contains(text, merchToken) || strings.Contains(text, "amazon merch")
}

func matchManufacturerSignal(doc *goquery.Document) bool {
	found := false
	doc.Find("#productDetails_techSpec_section_1 tr, #productDetails_detailBullets_sections1 tr, #detailBullets_feature_div li").
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			row := strings.ToLower(s.Text())
			if !strings.Contains(row, "manufacturer") && !strings.Contains(row, "brand") {
				return true
			}
			if strings.Contains(row, merchToken) {
				found = true
				return false
			}
			return true
		})
	return found
}

func matchJSONLDSignal(doc *goquery.Document) bool {
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload struct {
			Brand        any `json:"brand"`
			Manufacturer any `json:"manufacturer"`
		}
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if jsonValueContains(payload.Brand, merchToken) || jsonValueContains(payload.Manufacturer, merchToken) {
			found = true
			return false
		}
		return true
	})
	return found
}

// jsonValueContains handles the two shapes ld+json brand fields take:
// a bare string or an object with a "name" property.
func jsonValueContains(v any, token string) bool {
	switch t := v.(type) {
	case string:
		return strings.Contains(strings.ToLower(t), token)
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			return strings.Contains(strings.ToLower(name), token)
		}
	}
	return false
}
