package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchwatch/crawler/internal/merch"
)

func TestLoadDefaults(t *testing.T) {
	cfg, v, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://www.amazon.com", cfg.Crawler.BaseURL)
	assert.Equal(t, "com", cfg.Crawler.Alias)
	assert.Equal(t, 15, cfg.Fetch.TimeoutSeconds)
	assert.Equal(t, "pages", cfg.Storage.Prefix)
	assert.Equal(t, "0 */6 * * *", cfg.Schedule.Crawl)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
crawler:
  base_url: https://www.amazon.co.uk
  alias: co.uk
db:
  dsn: postgres://localhost/merchwatch
logging:
  development: true
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://www.amazon.co.uk", cfg.Crawler.BaseURL)
	assert.Equal(t, "co.uk", cfg.Crawler.Alias)
	assert.Equal(t, "postgres://localhost/merchwatch", cfg.DB.DSN)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MERCHWATCH_SERVER_PORT", "7777")
	cfg, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, _, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Server.Port = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Crawler.BaseURL = "not a url"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Fetch.TimeoutSeconds = 0
	assert.Error(t, bad.Validate())
}

func TestMergeSettingsAppliesOverrides(t *testing.T) {
	v := viper.New()
	v.Set("settings.max_items_per_run", 50)
	v.Set("settings.search_keywords", "cat shirt, dog shirt")
	v.Set("settings.recrawl_hours_by_tier", "4,12,48,120")
	v.Set("settings.discover_search", false)

	stored := merch.DefaultSettings()
	merged, overridden := MergeSettings(v, stored)

	assert.Equal(t, 50, merged.MaxItemsPerRun)
	assert.Equal(t, []string{"cat shirt", "dog shirt"}, merged.SearchKeywords)
	assert.Equal(t, []int{4, 12, 48, 120}, merged.RecrawlHoursByTier)
	assert.False(t, merged.DiscoverSearch)

	assert.True(t, overridden["max_items_per_run"])
	assert.True(t, overridden["discover_search"])
	assert.False(t, overridden["serp_pages"], "untouched fields are not flagged")
	assert.Equal(t, stored.SerpPages, merged.SerpPages)
}

func TestMergeSettingsEnvOverride(t *testing.T) {
	t.Setenv("MERCHWATCH_SETTINGS_MAX_ITEMS_PER_RUN", "25")
	_, v, err := Load("")
	require.NoError(t, err)

	merged, overridden := MergeSettings(v, merch.DefaultSettings())
	assert.Equal(t, 25, merged.MaxItemsPerRun)
	assert.True(t, overridden["max_items_per_run"])
}

func TestMergeSettingsNoOverrides(t *testing.T) {
	v := viper.New()
	stored := merch.DefaultSettings()
	merged, overridden := MergeSettings(v, stored)
	assert.Equal(t, stored, merged)
	assert.Empty(t, overridden)
}
