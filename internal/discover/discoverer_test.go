package discover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchwatch/crawler/internal/merch"
)

const base = "https://www.amazon.com"

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		wantURL  string
		wantASIN string
		wantErr  bool
	}{
		{"relative dp link", "/dp/B0EXAMPLE9?ref=sr_1_1", base + "/dp/B0EXAMPLE9", "B0EXAMPLE9", false},
		{"gp product form", "/gp/product/B0EXAMPLE9/ref=foo", base + "/dp/B0EXAMPLE9", "B0EXAMPLE9", false},
		{"absolute same host", base + "/dp/B0EXAMPLE9", base + "/dp/B0EXAMPLE9", "B0EXAMPLE9", false},
		{"cross domain", "https://evil.example.com/dp/B0EXAMPLE9", "", "", true},
		{"no asin", "/gp/bestsellers/fashion", "", "", true},
		{"lowercase asin rejected", "/dp/b0example9", "", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotURL, gotASIN, err := Canonicalize(base, tc.href)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantURL, gotURL)
			assert.Equal(t, tc.wantASIN, gotASIN)
		})
	}
}

func TestListingPageURL(t *testing.T) {
	assert.Equal(t, base+"/gp/bestsellers/fashion", ListingPageURL(base, "gp/bestsellers/fashion", 1))
	assert.Equal(t, base+"/gp/bestsellers/fashion?pg=2", ListingPageURL(base, "/gp/bestsellers/fashion", 2))
	assert.Equal(t, base+"/gp/bestsellers/fashion?ie=UTF8&pg=3", ListingPageURL(base, "gp/bestsellers/fashion?ie=UTF8", 3))
}

func TestSearchPageURL(t *testing.T) {
	q := SearchQuery{
		Keyword: "funny cat shirt",
		Sort:    "date-desc-rank",
		Include: []string{"solid colors"},
		Exclude: []string{"pack", "bundle"},
	}
	got := SearchPageURL(base, q, 2)
	assert.Contains(t, got, base+"/s?")
	assert.Contains(t, got, "k=funny+cat+shirt")
	assert.Contains(t, got, "s=date-desc-rank")
	assert.Contains(t, got, "page=2")
	assert.Contains(t, got, "hidden-keywords=solid+colors+-pack+-bundle")

	first := SearchPageURL(base, SearchQuery{Keyword: "x"}, 1)
	assert.NotContains(t, first, "page=")
	assert.NotContains(t, first, "hidden-keywords")
}

type stubFetcher struct {
	pages map[string]string
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, req merch.FetchRequest) (merch.FetchResponse, error) {
	f.calls = append(f.calls, req.URL)
	body, ok := f.pages[req.URL]
	if !ok {
		return merch.FetchResponse{}, errors.New("fetch failed")
	}
	return merch.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

func listingHTML(hrefs ...string) string {
	out := "<html><body>"
	for _, href := range hrefs {
		out += `<a href="` + href + `">item</a>`
	}
	return out + "</body></html>"
}

func TestDiscovererRunSweepsAndDedupes(t *testing.T) {
	settings := merch.DefaultSettings()
	settings.ListingPaths = []string{"gp/bestsellers/fashion"}
	settings.SearchKeywords = []string{"cat shirt"}
	settings.ListingPageBudget = 2
	settings.SearchPageBudget = 1

	searchURL := SearchPageURL(base, SearchQuery{Keyword: "cat shirt"}, 1)
	fetcher := &stubFetcher{pages: map[string]string{
		ListingPageURL(base, "gp/bestsellers/fashion", 1): listingHTML(
			"/dp/B0AAAAAAA1?ref=zg", "/dp/B0AAAAAAA2", "https://evil.example.com/dp/B0AAAAAAA3"),
		ListingPageURL(base, "gp/bestsellers/fashion", 2): listingHTML(
			"/dp/B0AAAAAAA1", "/gp/product/B0AAAAAAA4/ref=zg"),
		searchURL: listingHTML("/dp/B0AAAAAAA2", "/dp/B0BBBBBBB1"),
	}}

	d := New(fetcher, nil, nil, nil, settings, base, nil)
	got, err := d.Run(context.Background())
	require.NoError(t, err)

	var asins []string
	for _, c := range got {
		asins = append(asins, c.ASIN)
	}
	assert.Equal(t, []string{"B0AAAAAAA1", "B0AAAAAAA2", "B0AAAAAAA4", "B0BBBBBBB1"}, asins)
	assert.Equal(t, base+"/dp/B0AAAAAAA1", got[0].URL)
	assert.Equal(t, SourceListing, got[0].Source)
	assert.Equal(t, SourceSearch, got[3].Source)
}

func TestDiscovererStopsPagingOnEmptyPage(t *testing.T) {
	settings := merch.DefaultSettings()
	settings.DiscoverSearch = false
	settings.ListingPaths = []string{"gp/bestsellers/fashion"}
	settings.ListingPageBudget = 3

	fetcher := &stubFetcher{pages: map[string]string{
		ListingPageURL(base, "gp/bestsellers/fashion", 1): listingHTML("/dp/B0AAAAAAA1"),
		ListingPageURL(base, "gp/bestsellers/fashion", 2): listingHTML(),
		ListingPageURL(base, "gp/bestsellers/fashion", 3): listingHTML("/dp/B0AAAAAAA9"),
	}}

	d := New(fetcher, nil, nil, nil, settings, base, nil)
	got, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, fetcher.calls, 2, "page 3 is never requested after an empty page")
}

func TestDiscovererToleratesPageFailures(t *testing.T) {
	settings := merch.DefaultSettings()
	settings.DiscoverSearch = false
	settings.ListingPaths = []string{"gp/bestsellers/broken", "gp/bestsellers/fashion"}
	settings.ListingPageBudget = 1

	fetcher := &stubFetcher{pages: map[string]string{
		ListingPageURL(base, "gp/bestsellers/fashion", 1): listingHTML("/dp/B0AAAAAAA1"),
	}}

	d := New(fetcher, nil, nil, nil, settings, base, nil)
	got, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B0AAAAAAA1", got[0].ASIN)
}

func TestDiscovererSkipsFailedPageAndKeepsPaging(t *testing.T) {
	settings := merch.DefaultSettings()
	settings.DiscoverSearch = false
	settings.ListingPaths = []string{"gp/bestsellers/fashion"}
	settings.ListingPageBudget = 2

	// Page 1 has no stub entry, so the fetch fails; page 2 still yields.
	fetcher := &stubFetcher{pages: map[string]string{
		ListingPageURL(base, "gp/bestsellers/fashion", 2): listingHTML("/dp/B0AAAAAAA7"),
	}}

	d := New(fetcher, nil, nil, nil, settings, base, nil)
	got, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B0AAAAAAA7", got[0].ASIN)
	assert.Len(t, fetcher.calls, 2)
}

func TestDiscovererStopsFetchingOnceFull(t *testing.T) {
	settings := merch.DefaultSettings()
	settings.ListingPaths = []string{"gp/bestsellers/fashion", "gp/bestsellers/novelty"}
	settings.SearchKeywords = []string{"cat shirt"}
	settings.ListingPageBudget = 3
	settings.SearchPageBudget = 3
	settings.MaxItemsPerRun = 1

	fetcher := &stubFetcher{pages: map[string]string{
		ListingPageURL(base, "gp/bestsellers/fashion", 1): listingHTML(
			"/dp/B0AAAAAAA1", "/dp/B0AAAAAAA2"),
	}}

	d := New(fetcher, nil, nil, nil, settings, base, nil)
	got, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, fetcher.calls, 1, "remaining pages, paths and keywords are never fetched")
}

func TestDiscovererCapsAtMaxItems(t *testing.T) {
	settings := merch.DefaultSettings()
	settings.DiscoverSearch = false
	settings.ListingPaths = []string{"gp/bestsellers/fashion"}
	settings.ListingPageBudget = 1
	settings.MaxItemsPerRun = 2

	fetcher := &stubFetcher{pages: map[string]string{
		ListingPageURL(base, "gp/bestsellers/fashion", 1): listingHTML(
			"/dp/B0AAAAAAA1", "/dp/B0AAAAAAA2", "/dp/B0AAAAAAA3", "/dp/B0AAAAAAA4"),
	}}

	d := New(fetcher, nil, nil, nil, settings, base, nil)
	got, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
