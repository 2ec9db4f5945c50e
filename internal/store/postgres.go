package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/lib/pq"

	"github.com/daqol/information-retrieval/internal/indexer/index"
	"github.com/daqol/information-retrieval/pkg/config"
	"github.com/daqol/information-retrieval/pkg/postgres"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Postgres keeps postings in one table keyed by (term, doc) and norms in a
// second table keyed by doc.
type Postgres struct {
	client    *postgres.Client
	indexTbl  string
	docsTbl   string
	indexName string
	docsName  string
	logger    *slog.Logger
}

func OpenPostgres(ctx context.Context, cfg config.StoreConfig) (*Postgres, error) {
	for _, name := range []string{cfg.IndexTable, cfg.DocumentsTable} {
		if !identPattern.MatchString(name) {
			return nil, wrap("opening postgres store", fmt.Errorf("invalid table name %q", name))
		}
	}
	client, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, wrap("opening postgres store", err)
	}
	s := &Postgres{
		client:    client,
		indexTbl:  pq.QuoteIdentifier(cfg.IndexTable),
		docsTbl:   pq.QuoteIdentifier(cfg.DocumentsTable),
		indexName: cfg.IndexTable,
		docsName:  cfg.DocumentsTable,
		logger:    slog.Default().With("component", "postgres-store"),
	}
	if err := s.migrate(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			term      TEXT    NOT NULL,
			doc       TEXT    NOT NULL,
			frequency INTEGER NOT NULL CHECK (frequency > 0),
			PRIMARY KEY (term, doc)
		)`, s.indexTbl),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			doc  TEXT             PRIMARY KEY,
			norm DOUBLE PRECISION NOT NULL
		)`, s.docsTbl),
	}
	for _, stmt := range stmts {
		if _, err := s.client.DB.ExecContext(ctx, stmt); err != nil {
			return wrap("creating tables", err)
		}
	}
	return nil
}

func (s *Postgres) Flush(ctx context.Context, postings index.PostingList, norms []index.DocNorm) error {
	terms := make(pq.StringArray, len(postings))
	docs := make(pq.StringArray, len(postings))
	freqs := make(pq.Int64Array, len(postings))
	for i, p := range postings {
		terms[i], docs[i], freqs[i] = p.Term, p.Doc, int64(p.Frequency)
	}
	normDocs := make(pq.StringArray, len(norms))
	normVals := make(pq.Float64Array, len(norms))
	for i, n := range norms {
		normDocs[i], normVals[i] = n.Doc, n.Norm
	}

	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		if len(postings) > 0 {
			q := fmt.Sprintf(`INSERT INTO %s (term, doc, frequency)
				SELECT * FROM unnest($1::text[], $2::text[], $3::integer[])
				ON CONFLICT (term, doc) DO UPDATE SET frequency = EXCLUDED.frequency`, s.indexTbl)
			if _, err := tx.ExecContext(ctx, q, terms, docs, freqs); err != nil {
				return fmt.Errorf("merging postings: %w", err)
			}
		}
		if len(norms) > 0 {
			q := fmt.Sprintf(`INSERT INTO %s (doc, norm)
				SELECT * FROM unnest($1::text[], $2::double precision[])
				ON CONFLICT (doc) DO UPDATE SET norm = EXCLUDED.norm`, s.docsTbl)
			if _, err := tx.ExecContext(ctx, q, normDocs, normVals); err != nil {
				return fmt.Errorf("inserting norms: %w", err)
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

func (s *Postgres) CountDocuments(ctx context.Context) (int, error) {
	var n int
	q := fmt.Sprintf(`SELECT count(*) FROM %s`, s.docsTbl)
	if err := s.client.DB.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, wrap("counting documents", err)
	}
	return n, nil
}

func (s *Postgres) FindPostingsForTerm(ctx context.Context, term string) (index.PostingList, error) {
	q := fmt.Sprintf(`SELECT doc, frequency FROM %s WHERE term = $1`, s.indexTbl)
	rows, err := s.client.DB.QueryContext(ctx, q, term)
	if err != nil {
		return nil, wrap("finding postings", err)
	}
	defer rows.Close()
	var out index.PostingList
	for rows.Next() {
		p := index.Posting{Term: term}
		if err := rows.Scan(&p.Doc, &p.Frequency); err != nil {
			return nil, wrap("scanning posting", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterating postings", err)
	}
	return out, nil
}

func (s *Postgres) FindNormForDocument(ctx context.Context, doc string) (float64, bool, error) {
	var norm float64
	q := fmt.Sprintf(`SELECT norm FROM %s WHERE doc = $1`, s.docsTbl)
	err := s.client.DB.QueryRowContext(ctx, q, doc).Scan(&norm)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap("finding norm", err)
	}
	return norm, true, nil
}

func (s *Postgres) FindDocumentsExcluding(ctx context.Context, exclude map[string]struct{}) ([]string, error) {
	excluded := make(pq.StringArray, 0, len(exclude))
	for doc := range exclude {
		excluded = append(excluded, doc)
	}
	sort.Strings(excluded)
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE NOT (doc = ANY($1))`, s.docsTbl)
	rows, err := s.client.DB.QueryContext(ctx, q, excluded)
	if err != nil {
		return nil, wrap("finding documents", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, wrap("scanning document", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterating documents", err)
	}
	return out, nil
}

// CreateIndexes adds hash indexes for the equality lookups on term and doc.
func (s *Postgres) CreateIndexes(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hash (term)`,
			pq.QuoteIdentifier(s.indexName+"_term_hash"), s.indexTbl),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hash (doc)`,
			pq.QuoteIdentifier(s.docsName+"_doc_hash"), s.docsTbl),
	}
	for _, stmt := range stmts {
		if _, err := s.client.DB.ExecContext(ctx, stmt); err != nil {
			return wrap("creating indexes", err)
		}
	}
	s.logger.Info("secondary indexes ready", "index_table", s.indexName, "documents_table", s.docsName)
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return wrap("ping", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	return s.client.Close()
}
