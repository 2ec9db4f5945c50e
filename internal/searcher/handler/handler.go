package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/daqol/information-retrieval/internal/analytics"
	"github.com/daqol/information-retrieval/internal/searcher/cache"
	"github.com/daqol/information-retrieval/internal/searcher/executor"
	"github.com/daqol/information-retrieval/internal/searcher/ranker"
	apperrors "github.com/daqol/information-retrieval/pkg/errors"
	"github.com/daqol/information-retrieval/pkg/logger"
)

type SearchExecutor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
}

type Handler struct {
	executor SearchExecutor
	cache    *cache.QueryCache
	events   *analytics.Collector
	defaults ranker.Options
	logger   *slog.Logger
}

// New builds the search API. queryCache and events may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, events *analytics.Collector, defaults ranker.Options) *Handler {
	return &Handler{
		executor: exec,
		cache:    queryCache,
		events:   events,
		defaults: defaults,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes mounts the API under the returned router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/search", h.Search)
	r.Get("/cache/stats", h.CacheStats)
	r.Post("/cache/invalidate", h.CacheInvalidate)
	return r
}

// Search serves GET ?q=&model=&above=&top=. model defaults to vector;
// above and top default to the configured search options.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := h.parseRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var result *executor.SearchResult
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, req, func(ctx context.Context) (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, req)
		})
	} else {
		result, err = h.executor.Execute(ctx, req)
	}
	latencyMs := time.Since(start).Milliseconds()

	event := analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     req.Query,
		Model:     req.Model,
		LatencyMs: latencyMs,
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	}
	if err != nil {
		log.Error("search failed", "query", req.Query, "model", req.Model, "error", err)
		event.Type = analytics.EventSearchFailed
		event.Error = err.Error()
		h.events.Track(req.Model, event)
		h.writeError(w, err)
		return
	}
	event.TotalHits = result.TotalHits
	h.events.Track(req.Model, event)

	log.Info("search completed",
		"query", req.Query,
		"model", req.Model,
		"total_hits", result.TotalHits,
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) parseRequest(r *http.Request) (executor.Request, error) {
	q := r.URL.Query()
	req := executor.Request{
		Query:   q.Get("q"),
		Model:   q.Get("model"),
		Options: h.defaults,
	}
	if req.Model == "" {
		req.Model = executor.ModelVector
	}
	if req.Model != executor.ModelBoolean && req.Model != executor.ModelVector {
		return req, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"model must be %q or %q", executor.ModelBoolean, executor.ModelVector)
	}
	if s := q.Get("above"); s != "" {
		above, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "above must be a number")
		}
		req.Options.Above = above
	}
	if s := q.Get("top"); s != "" {
		top, err := strconv.Atoi(s)
		if err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "top must be an integer")
		}
		req.Options.Top = top
	}
	return req, nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": err.Error()})
}
