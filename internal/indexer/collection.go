package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daqol/information-retrieval/internal/document"
	"github.com/daqol/information-retrieval/internal/indexer/index"
	"github.com/daqol/information-retrieval/internal/store"
	"github.com/daqol/information-retrieval/pkg/config"
	apperrors "github.com/daqol/information-retrieval/pkg/errors"
	"github.com/daqol/information-retrieval/pkg/metrics"
	"github.com/daqol/information-retrieval/pkg/resilience"
)

// Collection is the indexed corpus: a bounded in-memory index backed by a
// persistent store. Reads see the union of both, so a flush never changes
// query results.
type Collection struct {
	// mu serialises ingestion and flushes against readers.
	mu       sync.RWMutex
	memIndex *index.MemoryIndex
	store    store.Store
	cfg      config.IndexerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	flushes  int
}

// Stats describes the resident part of the collection.
type Stats struct {
	ResidentDocuments int `json:"resident_documents"`
	ResidentTerms     int `json:"resident_terms"`
	Flushes           int `json:"flushes"`
}

func NewCollection(st store.Store, cfg config.IndexerConfig, m *metrics.Metrics) *Collection {
	return &Collection{
		memIndex: index.NewMemoryIndex(),
		store:    st,
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "collection"),
	}
}

// Ingest adds d to the collection. Documents already resident or already
// persisted are skipped. When the number of distinct resident terms reaches
// the flush threshold the resident index is flushed.
func (c *Collection) Ingest(ctx context.Context, d document.Document) error {
	requested := d.Location()
	known, err := c.known(ctx, requested)
	if err != nil {
		return err
	}
	if known {
		c.logger.Debug("document already indexed", "doc", requested)
		return nil
	}

	counts, err := d.Tokenize(ctx)
	if err != nil {
		return fmt.Errorf("tokenizing %s: %w", d.Location(), err)
	}
	// remote documents settle on their final URL while tokenizing
	loc := d.Location()

	c.mu.Lock()
	defer c.mu.Unlock()
	// checked again under the write lock: a flush may have persisted loc
	// since the first check.
	_, found, err := c.store.FindNormForDocument(ctx, loc)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	if !c.memIndex.AddDocument(loc, counts, d.Norm()) {
		return nil
	}
	c.metrics.DocsIndexedTotal.Inc()
	c.updateGauges()
	c.logger.Debug("document indexed in memory",
		"doc", loc,
		"terms", len(counts),
		"resident_terms", c.memIndex.TermCount(),
	)

	if c.memIndex.TermCount() >= c.cfg.FlushThreshold {
		c.logger.Info("memory index reached flush threshold",
			"terms", c.memIndex.TermCount(),
			"threshold", c.cfg.FlushThreshold,
		)
		if err := c.flushLocked(ctx); err != nil {
			return fmt.Errorf("flushing after %s: %w", loc, err)
		}
	}
	return nil
}

func (c *Collection) known(ctx context.Context, doc string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.memIndex.Contains(doc) {
		return true, nil
	}
	_, found, err := c.store.FindNormForDocument(ctx, doc)
	return found, err
}

// Flush writes every resident posting and norm to the store and clears
// memory. On failure memory is left as it was and the call can be retried.
func (c *Collection) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(ctx)
}

// FlushWithRetry retries Flush with exponential backoff.
func (c *Collection) FlushWithRetry(ctx context.Context) error {
	r := c.cfg.FlushRetry
	return resilience.Retry(ctx, "collection-flush", resilience.RetryConfig{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
	}, func() error {
		return c.Flush(ctx)
	})
}

func (c *Collection) flushLocked(ctx context.Context) error {
	entries, norms := c.memIndex.Snapshot()
	if len(entries) == 0 && len(norms) == 0 {
		return nil
	}
	start := time.Now()
	postings := index.Flatten(entries)
	if err := c.store.Flush(ctx, postings, norms); err != nil {
		c.metrics.IndexFlushesTotal.WithLabelValues("error").Inc()
		c.logger.Error("flush failed, keeping memory index", "error", err, "terms", len(entries))
		return err
	}
	c.memIndex.Reset()
	c.flushes++
	c.metrics.IndexFlushesTotal.WithLabelValues("ok").Inc()
	c.updateGauges()
	c.logger.Info("memory index flushed",
		"terms", len(entries),
		"postings", len(postings),
		"documents", len(norms),
		"duration", time.Since(start),
	)
	return nil
}

// DocumentsForTerm returns frequency by document for term across memory and
// the store. Unseen terms yield an empty map.
func (c *Collection) DocumentsForTerm(ctx context.Context, term string) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs := c.memIndex.Search(term)
	persisted, err := c.store.FindPostingsForTerm(ctx, term)
	if err != nil {
		return nil, err
	}
	for _, p := range persisted {
		if _, resident := docs[p.Doc]; !resident {
			docs[p.Doc] = p.Frequency
		}
	}
	return docs, nil
}

// DocumentsExcluding returns every indexed document not in exclude.
func (c *Collection) DocumentsExcluding(ctx context.Context, exclude map[string]struct{}) (map[string]struct{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]struct{})
	for _, doc := range c.memIndex.Documents() {
		if _, skip := exclude[doc]; !skip {
			out[doc] = struct{}{}
		}
	}
	persisted, err := c.store.FindDocumentsExcluding(ctx, exclude)
	if err != nil {
		return nil, err
	}
	for _, doc := range persisted {
		out[doc] = struct{}{}
	}
	return out, nil
}

// NormOf returns the norm of doc, or an error wrapping ErrNotFound.
func (c *Collection) NormOf(ctx context.Context, doc string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n, ok := c.memIndex.Norm(doc); ok {
		return n, nil
	}
	n, found, err := c.store.FindNormForDocument(ctx, doc)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("norm of %s: %w", doc, apperrors.ErrNotFound)
	}
	return n, nil
}

// TotalDocumentCount is the number of distinct indexed documents.
func (c *Collection) TotalDocumentCount(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, err := c.store.CountDocuments(ctx)
	if err != nil {
		return 0, err
	}
	return n + c.memIndex.DocCount(), nil
}

// CreateIndexes asks the store to build its secondary indexes.
func (c *Collection) CreateIndexes(ctx context.Context) error {
	return c.store.CreateIndexes(ctx)
}

func (c *Collection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		ResidentDocuments: c.memIndex.DocCount(),
		ResidentTerms:     c.memIndex.TermCount(),
		Flushes:           c.flushes,
	}
}

func (c *Collection) updateGauges() {
	c.metrics.ResidentTerms.Set(float64(c.memIndex.TermCount()))
	c.metrics.ResidentDocuments.Set(float64(c.memIndex.DocCount()))
}

// Close flushes what is left in memory.
func (c *Collection) Close(ctx context.Context) error {
	if err := c.FlushWithRetry(ctx); err != nil {
		c.logger.Error("final flush on close failed", "error", err)
		return err
	}
	return nil
}
