package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daqol/information-retrieval/internal/indexer/index"
	"github.com/daqol/information-retrieval/pkg/config"
	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

func boltConfig(t *testing.T) config.StoreConfig {
	t.Helper()
	cfg := config.Default().Store
	cfg.Driver = "bolt"
	cfg.Bolt.Path = filepath.Join(t.TempDir(), "index.db")
	cfg.Bolt.Timeout = time.Second
	return cfg
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	stores := make(map[string]Store)

	b, err := Open(ctx, boltConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	stores["bolt"] = b

	if os.Getenv("IR_TEST_POSTGRES") != "" {
		cfg := config.Default().Store
		cfg.IndexTable = "test_index"
		cfg.DocumentsTable = "test_documents"
		pg, err := OpenPostgres(ctx, cfg)
		require.NoError(t, err)
		_, err = pg.client.DB.ExecContext(ctx, `TRUNCATE test_index, test_documents`)
		require.NoError(t, err)
		t.Cleanup(func() { pg.Close() })
		stores["postgres"] = pg
	}
	return stores
}

func docsOf(pl index.PostingList) map[string]int {
	out := make(map[string]int, len(pl))
	for _, p := range pl {
		out[p.Doc] = p.Frequency
	}
	return out
}

func TestStoreFlushMergesPostings(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Flush(ctx,
				index.PostingList{{Term: "cat", Doc: "d1", Frequency: 2}, {Term: "dog", Doc: "d1", Frequency: 1}},
				[]index.DocNorm{{Doc: "d1", Norm: 1.5}},
			))
			require.NoError(t, s.Flush(ctx,
				index.PostingList{{Term: "cat", Doc: "d2", Frequency: 5}},
				[]index.DocNorm{{Doc: "d2", Norm: 2.5}},
			))

			cat, err := s.FindPostingsForTerm(ctx, "cat")
			require.NoError(t, err)
			assert.Equal(t, map[string]int{"d1": 2, "d2": 5}, docsOf(cat))

			none, err := s.FindPostingsForTerm(ctx, "bird")
			require.NoError(t, err)
			assert.Empty(t, none)

			n, err := s.CountDocuments(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			norm, ok, err := s.FindNormForDocument(ctx, "d2")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 2.5, norm)

			_, ok, err = s.FindNormForDocument(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			rest, err := s.FindDocumentsExcluding(ctx, map[string]struct{}{"d1": {}})
			require.NoError(t, err)
			assert.Equal(t, []string{"d2"}, rest)

			all, err := s.FindDocumentsExcluding(ctx, nil)
			require.NoError(t, err)
			sort.Strings(all)
			assert.Equal(t, []string{"d1", "d2"}, all)

			assert.NoError(t, s.CreateIndexes(ctx))
			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestBoltReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	cfg := boltConfig(t)

	s, err := OpenBolt(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx, index.PostingList{{Term: "a", Doc: "d", Frequency: 3}}, []index.DocNorm{{Doc: "d", Norm: 2}}))
	require.NoError(t, s.Close())

	s, err = OpenBolt(cfg)
	require.NoError(t, err)
	defer s.Close()
	pl, err := s.FindPostingsForTerm(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{Term: "a", Doc: "d", Frequency: 3}}, pl)
}

func TestBoltClosedStoreReportsStoreError(t *testing.T) {
	s, err := OpenBolt(boltConfig(t))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Flush(context.Background(), index.PostingList{{Term: "a", Doc: "d", Frequency: 1}}, nil)
	assert.ErrorIs(t, err, apperrors.ErrStore)
	assert.ErrorIs(t, s.Ping(context.Background()), apperrors.ErrStore)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"})
	assert.ErrorIs(t, err, apperrors.ErrStore)
}

func TestOpenPostgresRejectsBadTableName(t *testing.T) {
	cfg := config.Default().Store
	cfg.IndexTable = "index; DROP TABLE x"
	_, err := OpenPostgres(context.Background(), cfg)
	assert.ErrorIs(t, err, apperrors.ErrStore)
}
