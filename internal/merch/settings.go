package merch

// Settings is the canonical keyword/discovery configuration, stored as a
// singleton row and optionally overridden field-by-field from the
// environment. The merged result plus the override map is what the
// pipeline consumes.
type Settings struct {
	DiscoverBestSellers bool     `json:"discover_best_sellers"`
	DiscoverSearch      bool     `json:"discover_search"`
	ListingPaths        []string `json:"listing_paths"`
	ListingPageBudget   int      `json:"listing_page_budget"`
	SearchKeywords      []string `json:"search_keywords"`
	SearchCategory      string   `json:"search_category"`
	SearchSort          string   `json:"search_sort"`
	SearchFilter        string   `json:"search_filter"`
	SearchPageBudget    int      `json:"search_page_budget"`
	IncludeKeywords     []string `json:"include_keywords"`
	ExcludeKeywords     []string `json:"exclude_keywords"`
	MaxItemsPerRun      int      `json:"max_items_per_run"`
	RecrawlHoursByTier  []int    `json:"recrawl_hours_by_tier"`
	MinDelayMillis      int      `json:"min_delay_millis"`
	MaxDelayMillis      int      `json:"max_delay_millis"`
	MarketplaceID       string   `json:"marketplace_id"`
	SerpPages           int      `json:"serp_pages"`
	SerpTopN            int      `json:"serp_top_n"`
	SerpBatchSize       int      `json:"serp_batch_size"`
	Weights             Weights  `json:"weights"`
}

// Weights are the competition scoring weights. They must sum to ~1 but the
// engine does not enforce that; operators own the tradeoff.
type Weights struct {
	Reviews   float64 `json:"reviews"`
	BSR       float64 `json:"bsr"`
	Merch     float64 `json:"merch"`
	Rating    float64 `json:"rating"`
	Diversity float64 `json:"diversity"`
}

// DefaultSettings returns the baseline configuration used when the stored
// singleton row is absent.
func DefaultSettings() Settings {
	return Settings{
		DiscoverBestSellers: true,
		DiscoverSearch:      true,
		ListingPageBudget:   2,
		SearchPageBudget:    2,
		MaxItemsPerRun:      200,
		RecrawlHoursByTier:  []int{6, 24, 72, 168},
		MinDelayMillis:      1500,
		MaxDelayMillis:      4000,
		MarketplaceID:       "ATVPDKIKX0DER",
		SerpPages:           2,
		SerpTopN:            48,
		SerpBatchSize:       10,
		Weights:             DefaultWeights(),
	}
}

// DefaultWeights returns the stock competition weights.
func DefaultWeights() Weights {
	return Weights{
		Reviews:   0.35,
		BSR:       0.25,
		Merch:     0.20,
		Rating:    0.10,
		Diversity: 0.10,
	}
}
