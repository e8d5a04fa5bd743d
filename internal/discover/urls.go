// Package discover finds candidate product listings through best-seller
// sweeps and seeded search queries.
package discover

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/merchwatch/crawler/internal/extract"
)

// Canonicalize resolves href against base and rewrites it to the bare
// detail-page form {base}/dp/{ASIN}. It returns the canonical URL and
// the ASIN, or an error for cross-domain or ASIN-less links.
func Canonicalize(base, href string) (string, string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", "", fmt.Errorf("parse href: %w", err)
	}
	resolved := baseURL.ResolveReference(ref)
	if !strings.EqualFold(resolved.Hostname(), baseURL.Hostname()) {
		return "", "", fmt.Errorf("cross-domain link %q", resolved.Hostname())
	}
	asin := extract.ASINFromURL(resolved.Path)
	if asin == "" {
		return "", "", fmt.Errorf("no asin in %q", resolved.Path)
	}
	return strings.TrimRight(base, "/") + "/dp/" + asin, asin, nil
}

// ListingPageURL appends the page selector to a best-seller listing path.
func ListingPageURL(base, path string, page int) string {
	full := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if page <= 1 {
		return full
	}
	sep := "?"
	if strings.Contains(full, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spg=%d", full, sep, page)
}

// SearchQuery holds the knobs for a seeded search sweep.
type SearchQuery struct {
	Keyword  string
	Category string
	Sort     string
	Filter   string
	Include  []string
	Exclude  []string
}

// SearchPageURL builds a search results URL. Include terms are forced
// into the query via hidden-keywords, exclude terms are negated there.
func SearchPageURL(base string, q SearchQuery, page int) string {
	values := url.Values{}
	values.Set("k", q.Keyword)
	if q.Category != "" {
		values.Set("i", q.Category)
	}
	if q.Sort != "" {
		values.Set("s", q.Sort)
	}
	if q.Filter != "" {
		values.Set("rh", q.Filter)
	}
	if hidden := hiddenKeywords(q.Include, q.Exclude); hidden != "" {
		values.Set("hidden-keywords", hidden)
	}
	if page > 1 {
		values.Set("page", fmt.Sprintf("%d", page))
	}
	return strings.TrimRight(base, "/") + "/s?" + values.Encode()
}

func hiddenKeywords(include, exclude []string) string {
	var parts []string
	for _, term := range include {
		if term = strings.TrimSpace(term); term != "" {
			parts = append(parts, term)
		}
	}
	for _, term := range exclude {
		if term = strings.TrimSpace(term); term != "" {
			parts = append(parts, "-"+term)
		}
	}
	return strings.Join(parts, " ")
}
