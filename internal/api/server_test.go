package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchwatch/crawler/internal/api"
	"github.com/merchwatch/crawler/internal/merch"
	"github.com/merchwatch/crawler/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T) (*api.Server, *memory.ProductStore, *memory.SerpStore, *memory.MetricsStore) {
	t.Helper()
	products := memory.NewProductStore()
	serp := memory.NewSerpStore()
	metrics := memory.NewMetricsStore()
	clock := fixedClock{time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
	return api.NewServer(products, serp, metrics, clock, nil), products, serp, metrics
}

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGetProduct(t *testing.T) {
	server, products, _, _ := newTestServer(t)
	bsr := 1234
	_, err := products.UpsertProduct(context.Background(), merch.Product{
		ASIN:        "B0MERCHTEE",
		Title:       "Funny Cat Dad T-Shirt",
		BSR:         &bsr,
		MerchSource: merch.MerchSourceBadge,
		LastSeen:    time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rec := doGet(t, server.Handler(), "/products/B0MERCHTEE")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got merch.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Funny Cat Dad T-Shirt", got.Title)
	require.NotNil(t, got.BSR)
	assert.Equal(t, 1234, *got.BSR)
}

func TestGetProductNotFound(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	rec := doGet(t, server.Handler(), "/products/B0MISSING1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProductHistoryWindow(t *testing.T) {
	server, products, _, _ := newTestServer(t)
	old := 5000
	recent := 1234
	_, err := products.UpsertProduct(context.Background(), merch.Product{
		ASIN: "B0MERCHTEE", BSR: &old,
		LastSeen: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = products.UpsertProduct(context.Background(), merch.Product{
		ASIN: "B0MERCHTEE", BSR: &recent,
		LastSeen: time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rec := doGet(t, server.Handler(), "/products/B0MERCHTEE/history?days=7")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		History []merch.HistorySnapshot `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.History, 1, "row outside the 7-day window excluded")
	require.NotNil(t, payload.History[0].BSR)
	assert.Equal(t, 1234, *payload.History[0].BSR)
}

func TestGetSerpSnapshot(t *testing.T) {
	server, _, serp, _ := newTestServer(t)
	require.NoError(t, serp.ReplaceSnapshot(context.Background(), "cat shirt", "com", []merch.SerpSnapshot{
		{Keyword: "cat shirt", Alias: "com", Page: 1, RankPosition: 2, ASIN: "B0AAAAAAA2"},
		{Keyword: "cat shirt", Alias: "com", Page: 1, RankPosition: 1, ASIN: "B0AAAAAAA1"},
	}))

	rec := doGet(t, server.Handler(), "/keywords/cat%20shirt/serp")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Results []merch.SerpSnapshot `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Results, 2)
	assert.Equal(t, "B0AAAAAAA1", payload.Results[0].ASIN, "ordered by rank")
}

func TestGetSerpSnapshotMissingKeyword(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	rec := doGet(t, server.Handler(), "/keywords/nothing/serp")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetKeywordMetricsAliasFilter(t *testing.T) {
	server, _, _, metrics := newTestServer(t)
	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	require.NoError(t, metrics.UpsertDaily(context.Background(), merch.KeywordMetricsDaily{
		Keyword: "cat shirt", Alias: "de", Day: day, Difficulty: 40,
	}))
	require.NoError(t, metrics.UpsertDaily(context.Background(), merch.KeywordMetricsDaily{
		Keyword: "cat shirt", Alias: "com", Day: day, Difficulty: 75,
	}))

	rec := doGet(t, server.Handler(), "/keywords/cat%20shirt/metrics?alias=de")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Days []merch.KeywordMetricsDaily `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Days, 1)
	assert.Equal(t, 40, payload.Days[0].Difficulty)
}
