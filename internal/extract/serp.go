package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/merchwatch/crawler/internal/merch"
)

// SearchResult is one result card lifted from a search results page.
type SearchResult struct {
	ASIN        string
	Title       string
	Brand       string
	PriceCents  *int
	Rating      *float64
	ReviewCount *int
	IsMerch     bool
	ProductType merch.ProductType
}

// ParseSearchResults extracts result cards in page order. Sponsored rows
// and cards without an ASIN are skipped.
func ParseSearchResults(body []byte) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse serp html: %w", err)
	}

	var results []SearchResult
	seen := make(map[string]bool)
	doc.Find(`div[data-component-type="s-search-result"], div.s-result-item[data-asin]`).Each(func(_ int, card *goquery.Selection) {
		asin := strings.ToUpper(strings.TrimSpace(card.AttrOr("data-asin", "")))
		if !strictASIN.MatchString(asin) || seen[asin] {
			return
		}
		cardText := card.Text()
		if strings.Contains(strings.ToLower(card.AttrOr("class", "")), "adholder") {
			return
		}
		seen[asin] = true

		title := normalizeSpace(card.Find("h2 span").First().Text())
		if title == "" {
			title = normalizeSpace(card.Find("h2").First().Text())
		}
		results = append(results, SearchResult{
			ASIN:        asin,
			Title:       title,
			Brand:       normalizeSpace(card.Find("h5, span.a-size-base-plus.a-color-base").First().Text()),
			PriceCents:  MoneyToCents(card.Find(".a-price .a-offscreen").First().Text()),
			Rating:      parseRating(card.Find("span.a-icon-alt").First().Text()),
			ReviewCount: parseCount(card.Find("span.a-size-base.s-underline-text, span[aria-label$='ratings'], span[aria-label$='rating']").First().Text()),
			IsMerch:     strings.Contains(strings.ToLower(cardText), merchToken),
			ProductType: ClassifyProductType(title),
		})
	})
	return results, nil
}

// DetailLinks extracts outbound product-detail hrefs from any listing
// page (best-seller categories, search results). Callers canonicalize
// and deduplicate.
func DetailLinks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if urlASINPattern.MatchString(href) {
			links = append(links, href)
		}
	})
	return links, nil
}
