// Package api exposes a read-only HTTP interface over the collected
// product, SERP and metrics data. Mounted by the serve command.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/merch"
)

const (
	defaultHistoryDays = 30
	defaultAlias       = "com"
)

// Server wires HTTP handlers to the stores. All endpoints are reads;
// writes happen only through the pipeline.
type Server struct {
	router   chi.Router
	products merch.ProductStore
	serp     merch.SerpStore
	metrics  merch.MetricsStore
	clock    merch.Clock
	logger   *zap.Logger
}

// NewServer constructs a Server with its routes.
func NewServer(
	products merch.ProductStore,
	serp merch.SerpStore,
	metrics merch.MetricsStore,
	clock merch.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		products: products,
		serp:     serp,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Get("/products/{asin}", s.getProduct)
	r.Get("/products/{asin}/history", s.getProductHistory)
	r.Get("/keywords/{keyword}/serp", s.getSerpSnapshot)
	r.Get("/keywords/{keyword}/metrics", s.getKeywordMetrics)
	s.router = r
	return s
}

// Handler returns the router for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	product, err := s.products.GetProduct(r.Context(), asin)
	if errors.Is(err, merch.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		s.logger.Error("product read failed", zap.String("asin", asin), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, product)
}

func (s *Server) getProductHistory(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	since := s.clock.Now().Add(-time.Duration(queryDays(r)) * 24 * time.Hour)
	history, err := s.products.History(r.Context(), asin, since)
	if err != nil {
		s.logger.Error("history read failed", zap.String("asin", asin), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"asin": asin, "history": history})
}

func (s *Server) getSerpSnapshot(w http.ResponseWriter, r *http.Request) {
	keyword := chi.URLParam(r, "keyword")
	alias := queryAlias(r)
	rows, err := s.serp.LatestSnapshot(r.Context(), keyword, alias)
	if err != nil {
		s.logger.Error("serp read failed", zap.String("keyword", keyword), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	if len(rows) == 0 {
		s.writeError(w, http.StatusNotFound, "no snapshot for keyword")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"keyword": keyword,
		"alias":   alias,
		"results": rows,
	})
}

func (s *Server) getKeywordMetrics(w http.ResponseWriter, r *http.Request) {
	keyword := chi.URLParam(r, "keyword")
	alias := queryAlias(r)
	now := s.clock.Now()
	from := now.Add(-time.Duration(queryDays(r)) * 24 * time.Hour)
	rows, err := s.metrics.DailyRange(r.Context(), keyword, alias, from, now)
	if err != nil {
		s.logger.Error("metrics read failed", zap.String("keyword", keyword), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	if len(rows) == 0 {
		s.writeError(w, http.StatusNotFound, "no metrics for keyword")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"keyword": keyword,
		"alias":   alias,
		"days":    rows,
	})
}

// queryDays parses the ?days= window, defaulting and clamping so a bad
// value never produces an unbounded scan.
func queryDays(r *http.Request) int {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		return defaultHistoryDays
	}
	if days > 365 {
		return 365
	}
	return days
}

func queryAlias(r *http.Request) string {
	if alias := r.URL.Query().Get("alias"); alias != "" {
		return alias
	}
	return defaultAlias
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
