package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/merchwatch/crawler/internal/merch"
)

var (
	bsrPattern    = regexp.MustCompile(`(?i)Best\s+Sellers?\s+Rank[:\s]*[^#]*#([\d,]+)\s+in\s+([^#(]+)`)
	moneyStripper = regexp.MustCompile(`[^0-9.]`)
	ratingPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s+out\s+of\s+5`)
	digitsPattern = regexp.MustCompile(`[\d,]+`)
)

// ParseBSR scans free text for a "Best Sellers Rank ... #<rank> in <category>"
// marker. The category is the text before any second rank marker or
// parenthetical. Absence of the pattern yields (nil, "").
func ParseBSR(text string) (*int, string) {
	m := bsrPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, ""
	}
	rank, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || rank <= 0 {
		return nil, ""
	}
	category := strings.TrimSpace(m[2])
	// Stray "See Top 100" link text rides along in some layouts.
	if idx := strings.Index(category, "See Top"); idx >= 0 {
		category = strings.TrimSpace(category[:idx])
	}
	category = strings.Trim(category, " \t\n)")
	return &rank, category
}

// MoneyToCents parses a currency display string into integer minor units.
// Returns nil on empty or unparseable input.
func MoneyToCents(raw string) *int {
	cleaned := moneyStripper.ReplaceAllString(raw, "")
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	cents := int(math.Round(value * 100))
	return &cents
}

// parseRating extracts a 0-5 star rating from alt text like
// "4.6 out of 5 stars".
func parseRating(text string) *float64 {
	m := ratingPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value < 0 || value > 5 {
		return nil
	}
	return &value
}

// parseCount extracts the first integer (commas allowed) from text like
// "1,234 ratings".
func parseCount(text string) *int {
	m := digitsPattern.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return nil
	}
	return &n
}

// productTypeRules map keywords to types, checked in priority order. The
// first match wins; nothing matching falls back to tshirt.
var productTypeRules = []struct {
	Type     merch.ProductType
	Keywords []string
}{
	{merch.ProductTypeHoodie, []string{"hoodie", "hooded"}},
	{merch.ProductTypeSweatshirt, []string{"sweatshirt", "crewneck"}},
	{merch.ProductTypeLongSleeve, []string{"long sleeve", "long-sleeve", "longsleeve"}},
	{merch.ProductTypeRaglan, []string{"raglan", "baseball tee"}},
	{merch.ProductTypeVNeck, []string{"v-neck", "v neck", "vneck"}},
	{merch.ProductTypeTankTop, []string{"tank top", "tank-top", "sleeveless"}},
	{merch.ProductTypeTShirt, []string{"t-shirt", "tshirt", "tee", "shirt"}},
}

// ClassifyProductType matches title, bullets, breadcrumbs and variation
// labels against the priority-ordered keyword table.
func ClassifyProductType(texts ...string) merch.ProductType {
	haystack := strings.ToLower(strings.Join(texts, " "))
	for _, rule := range productTypeRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(haystack, kw) {
				return rule.Type
			}
		}
	}
	return merch.ProductTypeTShirt
}

// normalizeSpace collapses runs of whitespace into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
