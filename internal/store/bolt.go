package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/boltdb/bolt"

	"github.com/daqol/information-retrieval/internal/indexer/index"
	"github.com/daqol/information-retrieval/pkg/config"
)

// Bolt stores postings as one nested bucket per term (doc -> uvarint
// frequency) and norms in a flat bucket (doc -> float64 bits).
type Bolt struct {
	db       *bolt.DB
	indexKey []byte
	docsKey  []byte
	logger   *slog.Logger
}

func OpenBolt(cfg config.StoreConfig) (*Bolt, error) {
	db, err := bolt.Open(cfg.Bolt.Path, 0o600, &bolt.Options{Timeout: cfg.Bolt.Timeout})
	if err != nil {
		return nil, wrap("opening bolt store", err)
	}
	s := &Bolt{
		db:       db,
		indexKey: []byte(cfg.IndexTable),
		docsKey:  []byte(cfg.DocumentsTable),
		logger:   slog.Default().With("component", "bolt-store", "path", cfg.Bolt.Path),
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.indexKey); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(s.docsKey)
		return err
	})
	if err != nil {
		db.Close()
		return nil, wrap("creating buckets", err)
	}
	return s, nil
}

func (s *Bolt) Flush(_ context.Context, postings index.PostingList, norms []index.DocNorm) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(s.indexKey)
		for _, p := range postings {
			tb, err := idx.CreateBucketIfNotExists([]byte(p.Term))
			if err != nil {
				return fmt.Errorf("term bucket %q: %w", p.Term, err)
			}
			if err := tb.Put([]byte(p.Doc), binary.AppendUvarint(nil, uint64(p.Frequency))); err != nil {
				return fmt.Errorf("posting %q/%q: %w", p.Term, p.Doc, err)
			}
		}
		docs := tx.Bucket(s.docsKey)
		for _, n := range norms {
			if err := docs.Put([]byte(n.Doc), encodeNorm(n.Norm)); err != nil {
				return fmt.Errorf("norm %q: %w", n.Doc, err)
			}
		}
		return nil
	})
	if err != nil {
		return wrap("flushing batch", err)
	}
	s.logger.Debug("batch written", "postings", len(postings), "documents", len(norms))
	return nil
}

func (s *Bolt) CountDocuments(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(s.docsKey).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, wrap("counting documents", err)
	}
	return n, nil
}

func (s *Bolt) FindPostingsForTerm(_ context.Context, term string) (index.PostingList, error) {
	var out index.PostingList
	err := s.db.View(func(tx *bolt.Tx) error {
		tb := tx.Bucket(s.indexKey).Bucket([]byte(term))
		if tb == nil {
			return nil
		}
		return tb.ForEach(func(k, v []byte) error {
			freq, n := binary.Uvarint(v)
			if n <= 0 {
				return fmt.Errorf("corrupt frequency for %q/%q", term, k)
			}
			out = append(out, index.Posting{Term: term, Doc: string(k), Frequency: int(freq)})
			return nil
		})
	})
	if err != nil {
		return nil, wrap("finding postings", err)
	}
	return out, nil
}

func (s *Bolt) FindNormForDocument(_ context.Context, doc string) (float64, bool, error) {
	var (
		norm  float64
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.docsKey).Get([]byte(doc))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("corrupt norm for %q", doc)
		}
		norm, found = decodeNorm(v), true
		return nil
	})
	if err != nil {
		return 0, false, wrap("finding norm", err)
	}
	return norm, found, nil
}

func (s *Bolt) FindDocumentsExcluding(_ context.Context, exclude map[string]struct{}) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.docsKey).ForEach(func(k, _ []byte) error {
			doc := string(k)
			if _, skip := exclude[doc]; !skip {
				out = append(out, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrap("finding documents", err)
	}
	return out, nil
}

// CreateIndexes is a no-op: bolt keys are already ordered B+tree indexes.
func (s *Bolt) CreateIndexes(_ context.Context) error {
	s.logger.Debug("bolt buckets are key-indexed, nothing to create")
	return nil
}

func (s *Bolt) Ping(_ context.Context) error {
	if err := s.db.View(func(*bolt.Tx) error { return nil }); err != nil {
		return wrap("ping", err)
	}
	return nil
}

func (s *Bolt) Close() error {
	return s.db.Close()
}

func encodeNorm(n float64) []byte {
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(n))
}

func decodeNorm(b []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}
