package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/daqol/information-retrieval/internal/indexer/tokenizer"
	"github.com/daqol/information-retrieval/internal/searcher/merger"
	"github.com/daqol/information-retrieval/internal/searcher/parser"
	"github.com/daqol/information-retrieval/internal/searcher/ranker"
	apperrors "github.com/daqol/information-retrieval/pkg/errors"
	"github.com/daqol/information-retrieval/pkg/logger"
	"github.com/daqol/information-retrieval/pkg/metrics"
	"github.com/daqol/information-retrieval/pkg/resilience"
	"github.com/daqol/information-retrieval/pkg/tracing"
)

const (
	ModelBoolean = "boolean"
	ModelVector  = "vector"
)

// Source is the read side of the collection.
type Source interface {
	ranker.Source
	DocumentsExcluding(ctx context.Context, exclude map[string]struct{}) (map[string]struct{}, error)
}

type Request struct {
	Query   string         `json:"query"`
	Model   string         `json:"model"`
	Options ranker.Options `json:"options"`
}

type SearchResult struct {
	Query     string             `json:"query"`
	Model     string             `json:"model"`
	TotalHits int                `json:"total_hits"`
	Locations []string           `json:"locations,omitempty"`
	Results   []ranker.ScoredDoc `json:"results,omitempty"`
}

type Executor struct {
	src     Source
	metrics *metrics.Metrics
	timeout time.Duration
	trace   bool
	logger  *slog.Logger
}

// New returns an executor over src. A zero timeout disables the deadline.
func New(src Source, m *metrics.Metrics, timeout time.Duration) *Executor {
	return &Executor{
		src:     src,
		metrics: m,
		timeout: timeout,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// EnableTracing makes Execute log the span tree of every query.
func (e *Executor) EnableTracing() {
	e.trace = true
}

// Execute runs req under the configured timeout and records its outcome.
func (e *Executor) Execute(ctx context.Context, req Request) (*SearchResult, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	span.SetAttr("model", req.Model)
	defer func() {
		span.End()
		if e.trace {
			span.Log(e.logger)
		}
	}()

	var result *SearchResult
	err := resilience.WithTimeout(ctx, e.timeout, "search", func(ctx context.Context) error {
		var err error
		switch req.Model {
		case ModelBoolean:
			var locs []string
			locs, err = e.Boolean(ctx, req.Query)
			result = &SearchResult{Locations: locs, TotalHits: len(locs)}
		case ModelVector:
			var docs []ranker.ScoredDoc
			docs, err = e.Vector(ctx, req.Query, req.Options)
			result = &SearchResult{Results: docs, TotalHits: len(docs)}
		default:
			err = apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown model %q", req.Model)
		}
		return err
	})
	e.observe(req.Model, start, result, err)
	if err != nil {
		return nil, err
	}
	result.Query = req.Query
	result.Model = req.Model
	e.logger.Info("query executed",
		"query", req.Query,
		"model", req.Model,
		"hits", result.TotalHits,
		"duration", time.Since(start),
	)
	return result, nil
}

func (e *Executor) observe(model string, start time.Time, result *SearchResult, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "hit"
	switch {
	case err != nil:
		outcome = "error"
	case result.TotalHits == 0:
		outcome = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(model, outcome).Inc()
	e.metrics.SearchLatency.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err == nil {
		e.metrics.SearchResultsCount.WithLabelValues(model).Observe(float64(result.TotalHits))
	}
}

// Boolean returns the sorted locations matching the boolean query. A query
// that names no index term, blank or only stopwords, matches nothing, even
// under NOT.
func (e *Executor) Boolean(ctx context.Context, query string) ([]string, error) {
	node, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}
	if node == nil || len(parser.Terms(node)) == 0 {
		return []string{}, nil
	}
	ctx, span := tracing.StartChildSpan(ctx, "boolean-eval")
	defer span.End()

	set, err := e.eval(ctx, node)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for doc := range set {
		out = append(out, doc)
	}
	sort.Strings(out)
	span.SetAttr("matches", len(out))
	return out, nil
}

// Vector ranks documents against the free-text query.
func (e *Executor) Vector(ctx context.Context, query string, opts ranker.Options) ([]ranker.ScoredDoc, error) {
	terms := tokenizer.Normalize(query)
	ctx, span := tracing.StartChildSpan(ctx, "vector-score")
	span.SetAttr("terms", len(terms))
	scored, err := ranker.Score(ctx, e.src, terms, opts.Above)
	span.End()
	if err != nil {
		return nil, err
	}
	_, span = tracing.StartChildSpan(ctx, "top-k")
	defer span.End()
	return merger.TopK(scored, opts.Top), nil
}

func (e *Executor) eval(ctx context.Context, n parser.Node) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch v := n.(type) {
	case parser.Term:
		if v.Value == "" {
			return map[string]struct{}{}, nil
		}
		docs, err := e.src.DocumentsForTerm(ctx, v.Value)
		if err != nil {
			return nil, fmt.Errorf("postings of %q: %w", v.Value, err)
		}
		set := make(map[string]struct{}, len(docs))
		for doc := range docs {
			set[doc] = struct{}{}
		}
		return set, nil
	case parser.Not:
		inner, err := e.eval(ctx, v.Operand)
		if err != nil {
			return nil, err
		}
		return e.src.DocumentsExcluding(ctx, inner)
	case parser.And:
		return e.evalAnd(ctx, v.Operands)
	case parser.Or:
		result := make(map[string]struct{})
		for _, o := range v.Operands {
			set, err := e.eval(ctx, o)
			if err != nil {
				return nil, err
			}
			for doc := range set {
				result[doc] = struct{}{}
			}
		}
		return result, nil
	}
	return nil, fmt.Errorf("unexpected node %T", n)
}

// evalAnd intersects the positive operands and subtracts the negated ones,
// so the complement of a NOT is only materialized when every operand is
// negated.
func (e *Executor) evalAnd(ctx context.Context, operands []parser.Node) (map[string]struct{}, error) {
	var sets []map[string]struct{}
	excluded := make(map[string]struct{})
	for _, o := range operands {
		if not, ok := o.(parser.Not); ok {
			set, err := e.eval(ctx, not.Operand)
			if err != nil {
				return nil, err
			}
			for doc := range set {
				excluded[doc] = struct{}{}
			}
			continue
		}
		set, err := e.eval(ctx, o)
		if err != nil {
			return nil, err
		}
		if len(set) == 0 {
			return set, nil
		}
		sets = append(sets, set)
	}
	if len(sets) == 0 {
		return e.src.DocumentsExcluding(ctx, excluded)
	}
	candidates := intersect(sets)
	for doc := range excluded {
		delete(candidates, doc)
	}
	return candidates, nil
}

// intersect starts from the smallest set and drops every candidate missing
// from another one.
func intersect(sets []map[string]struct{}) map[string]struct{} {
	shortest := 0
	for i, s := range sets {
		if len(s) < len(sets[shortest]) {
			shortest = i
		}
	}
	candidates := make(map[string]struct{}, len(sets[shortest]))
	for doc := range sets[shortest] {
		candidates[doc] = struct{}{}
	}
	for i, s := range sets {
		if i == shortest {
			continue
		}
		for doc := range candidates {
			if _, ok := s[doc]; !ok {
				delete(candidates, doc)
			}
		}
	}
	return candidates
}
