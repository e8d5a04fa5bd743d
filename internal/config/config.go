// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/merchwatch/crawler/internal/merch"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs discovery and recrawl behavior.
type CrawlerConfig struct {
	BaseURL            string  `mapstructure:"base_url"`
	Alias              string  `mapstructure:"alias"`
	RatePerHost        float64 `mapstructure:"rate_per_host"`
	RateBurst          int     `mapstructure:"rate_burst"`
	UnchangedThreshold int     `mapstructure:"unchanged_threshold"`
	MaxFailures        int     `mapstructure:"max_failures"`
}

// FetchConfig configures the HTTP fetch layer.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	AcceptLanguage string `mapstructure:"accept_language"`
}

// StorageConfig sets the raw HTML archive destination. GCS wins when a
// bucket is configured; LocalDir is the development fallback; with
// neither set, pages are not archived.
type StorageConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for discovery notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ScheduleConfig holds cron expressions for the serve loop.
type ScheduleConfig struct {
	Crawl   string `mapstructure:"crawl"`
	Serp    string `mapstructure:"serp"`
	Metrics string `mapstructure:"metrics"`
}

// FetchTimeout returns the configured fetch timeout as a duration.
func (c FetchConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load builds a Config from disk/environment. Every key can be set via
// MERCHWATCH_SECTION_KEY environment variables.
func Load(path string) (Config, *viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("MERCHWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindSettingsKeys(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.base_url", "https://www.amazon.com")
	v.SetDefault("crawler.alias", "com")
	v.SetDefault("crawler.rate_per_host", 0.5)
	v.SetDefault("crawler.rate_burst", 1)
	v.SetDefault("crawler.unchanged_threshold", 3)
	v.SetDefault("crawler.max_failures", 5)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.accept_language", "en-US,en;q=0.9")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("logging.development", false)
	v.SetDefault("schedule.crawl", "0 */6 * * *")
	v.SetDefault("schedule.serp", "30 */6 * * *")
	v.SetDefault("schedule.metrics", "15 3 * * *")
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url is required")
	}
	if !strings.HasPrefix(c.Crawler.BaseURL, "http") {
		return fmt.Errorf("crawler.base_url %q is not a URL", c.Crawler.BaseURL)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be positive")
	}
	return nil
}

// settingsKeys are the stored-settings fields that may be overridden
// from the environment, e.g. MERCHWATCH_SETTINGS_MAX_ITEMS_PER_RUN.
var settingsKeys = []string{
	"discover_best_sellers",
	"discover_search",
	"listing_paths",
	"listing_page_budget",
	"search_keywords",
	"search_category",
	"search_sort",
	"search_filter",
	"search_page_budget",
	"include_keywords",
	"exclude_keywords",
	"max_items_per_run",
	"recrawl_hours_by_tier",
	"min_delay_millis",
	"max_delay_millis",
	"marketplace_id",
	"serp_pages",
	"serp_top_n",
	"serp_batch_size",
}

func bindSettingsKeys(v *viper.Viper) {
	for _, key := range settingsKeys {
		// BindEnv error only fires on empty input.
		_ = v.BindEnv("settings." + key)
	}
}

// MergeSettings lays environment overrides over the stored settings row
// and reports which fields were overridden, so operators can tell a
// stored value from a forced one.
func MergeSettings(v *viper.Viper, stored merch.Settings) (merch.Settings, map[string]bool) {
	merged := stored
	overridden := make(map[string]bool)
	apply := func(key string, fn func(string)) {
		full := "settings." + key
		if v.IsSet(full) {
			fn(full)
			overridden[key] = true
		}
	}

	apply("discover_best_sellers", func(k string) { merged.DiscoverBestSellers = v.GetBool(k) })
	apply("discover_search", func(k string) { merged.DiscoverSearch = v.GetBool(k) })
	apply("listing_paths", func(k string) { merged.ListingPaths = csv(v.GetString(k)) })
	apply("listing_page_budget", func(k string) { merged.ListingPageBudget = v.GetInt(k) })
	apply("search_keywords", func(k string) { merged.SearchKeywords = csv(v.GetString(k)) })
	apply("search_category", func(k string) { merged.SearchCategory = v.GetString(k) })
	apply("search_sort", func(k string) { merged.SearchSort = v.GetString(k) })
	apply("search_filter", func(k string) { merged.SearchFilter = v.GetString(k) })
	apply("search_page_budget", func(k string) { merged.SearchPageBudget = v.GetInt(k) })
	apply("include_keywords", func(k string) { merged.IncludeKeywords = csv(v.GetString(k)) })
	apply("exclude_keywords", func(k string) { merged.ExcludeKeywords = csv(v.GetString(k)) })
	apply("max_items_per_run", func(k string) { merged.MaxItemsPerRun = v.GetInt(k) })
	apply("recrawl_hours_by_tier", func(k string) {
		if tiers := csvInts(v.GetString(k)); len(tiers) > 0 {
			merged.RecrawlHoursByTier = tiers
		}
	})
	apply("min_delay_millis", func(k string) { merged.MinDelayMillis = v.GetInt(k) })
	apply("max_delay_millis", func(k string) { merged.MaxDelayMillis = v.GetInt(k) })
	apply("marketplace_id", func(k string) { merged.MarketplaceID = v.GetString(k) })
	apply("serp_pages", func(k string) { merged.SerpPages = v.GetInt(k) })
	apply("serp_top_n", func(k string) { merged.SerpTopN = v.GetInt(k) })
	apply("serp_batch_size", func(k string) { merged.SerpBatchSize = v.GetInt(k) })

	return merged, overridden
}

// csv splits a comma-separated env value into trimmed parts.
func csv(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func csvInts(s string) []int {
	var out []int
	for _, part := range csv(s) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}
