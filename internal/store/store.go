// Package store persists flushed postings and document norms. Two backends
// are provided: PostgreSQL through lib/pq and an embedded BoltDB file.
package store

import (
	"context"
	"fmt"

	"github.com/daqol/information-retrieval/internal/indexer/index"
	"github.com/daqol/information-retrieval/pkg/config"
	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

// Store is the durable side of a collection. Every error it returns wraps
// errors.ErrStore.
type Store interface {
	// Flush merges postings into the per-term lists and records norms, as a
	// single atomic batch.
	Flush(ctx context.Context, postings index.PostingList, norms []index.DocNorm) error
	CountDocuments(ctx context.Context) (int, error)
	FindPostingsForTerm(ctx context.Context, term string) (index.PostingList, error)
	FindNormForDocument(ctx context.Context, doc string) (float64, bool, error)
	FindDocumentsExcluding(ctx context.Context, exclude map[string]struct{}) ([]string, error)
	CreateIndexes(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg)
	case "bolt":
		return OpenBolt(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported store driver %q", apperrors.ErrStore, cfg.Driver)
	}
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", apperrors.ErrStore, op, err)
}
