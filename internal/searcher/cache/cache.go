// Package cache stores finished search results in Redis. Concurrent misses
// for the same key are collapsed into a single computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/daqol/information-retrieval/internal/indexer/tokenizer"
	"github.com/daqol/information-retrieval/internal/searcher/executor"
	"github.com/daqol/information-retrieval/internal/searcher/parser"
	"github.com/daqol/information-retrieval/pkg/metrics"
)

const keyPrefix = "inforet:search:"

// Backend is the key/value store behind the cache; *redis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get looks req up. Backend failures are logged and treated as misses.
func (c *QueryCache) Get(ctx context.Context, req executor.Request) (*executor.SearchResult, bool) {
	key, ok := BuildKey(req)
	if !ok {
		return nil, false
	}
	return c.get(ctx, key)
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	data, found, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if err != nil || !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for req, or runs compute once for
// all concurrent callers sharing the key and stores its result. Errors are
// never cached. Requests that cannot be keyed (malformed boolean queries)
// go straight to compute.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req executor.Request,
	compute func(context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key, ok := BuildKey(req)
	if !ok {
		result, err := compute(ctx)
		return result, false, err
	}
	if result, ok := c.get(ctx, key); ok {
		return c.relabel(result, req), true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return c.relabel(val.(*executor.SearchResult), req), false, nil
}

// relabel copies result with the caller's own query text, since equivalent
// queries share an entry.
func (c *QueryCache) relabel(result *executor.SearchResult, req executor.Request) *executor.SearchResult {
	out := *result
	out.Query = req.Query
	return &out
}

// Invalidate drops every cached result. Call it after the index changes.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BuildKey derives the cache key of req from its model, options and the
// canonical form of its query, so that equivalent queries share an entry.
// ok is false when the query cannot be parsed.
func BuildKey(req executor.Request) (key string, ok bool) {
	canonical, ok := canonicalQuery(req.Model, req.Query)
	if !ok {
		return "", false
	}
	raw := fmt.Sprintf("%s|above=%g|top=%d|%s", req.Model, req.Options.Above, req.Options.Top, canonical)
	if req.Model == executor.ModelBoolean {
		// options do not affect boolean results
		raw = fmt.Sprintf("%s|%s", req.Model, canonical)
	}
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16]), true
}

func canonicalQuery(model, query string) (string, bool) {
	if model == executor.ModelBoolean {
		node, err := parser.Parse(query)
		if err != nil {
			return "", false
		}
		if node == nil {
			return "", true
		}
		return node.String(), true
	}
	// term order does not change a vector score, multiplicity does
	terms := tokenizer.Normalize(query)
	sort.Strings(terms)
	return strings.Join(terms, " "), true
}
