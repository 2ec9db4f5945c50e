package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daqol/information-retrieval/internal/searcher/executor"
	"github.com/daqol/information-retrieval/pkg/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// corpus writes two small documents and returns their paths.
func corpus(t *testing.T) (dir, pets, cats string) {
	t.Helper()
	dir = t.TempDir()
	pets = filepath.Join(dir, "pets.txt")
	cats = filepath.Join(dir, "cats.txt")
	require.NoError(t, os.WriteFile(pets, []byte("Cats and dogs, https://example.com/pets"), 0o644))
	require.NoError(t, os.WriteFile(cats, []byte("A cat."), 0o644))
	return dir, pets, cats
}

func storeFlags(t *testing.T) []string {
	return []string{"--store", "bolt", "--bolt-path", filepath.Join(t.TempDir(), "index.db")}
}

func TestIndexLocalThenSearch(t *testing.T) {
	dir, pets, cats := corpus(t)
	flags := storeFlags(t)

	out, err := run(t, append([]string{"index-local", "-D", dir}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "indexed 2 documents, skipped 0\n", out)

	out, err = run(t, append([]string{"search", "-m", "boolean", "cat"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, []string{cats, pets}, lines(out))

	out, err = run(t, append([]string{"search", "-m", "boolean", "cat AND NOT dog"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, []string{cats}, lines(out))

	out, err = run(t, append([]string{"search", "-m", "vector", "--above", "0", "cats"}, flags...)...)
	require.NoError(t, err)
	got := lines(out)
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[0], cats+","), got[0])
	assert.True(t, strings.HasPrefix(got[1], pets+","), got[1])

	out, err = run(t, append([]string{"search", "-m", "vector", "--top", "1", "--above", "0", "cats"}, flags...)...)
	require.NoError(t, err)
	assert.Len(t, lines(out), 1)
}

func TestIndexLocalIsIdempotent(t *testing.T) {
	dir, _, _ := corpus(t)
	flags := storeFlags(t)

	_, err := run(t, append([]string{"index-local", "-D", dir}, flags...)...)
	require.NoError(t, err)
	_, err = run(t, append([]string{"index-local", "-D", dir}, flags...)...)
	require.NoError(t, err)

	out, err := run(t, append([]string{"search", "-m", "vector", "--above", "0", "dog"}, flags...)...)
	require.NoError(t, err)
	assert.Len(t, lines(out), 1)
}

func TestIndexLocalMissingDirectory(t *testing.T) {
	_, err := run(t, append([]string{"index-local", "-D", filepath.Join(t.TempDir(), "nope")}, storeFlags(t)...)...)
	require.Error(t, err)
}

func TestSearchRequiresModel(t *testing.T) {
	_, err := run(t, append([]string{"search", "cat"}, storeFlags(t)...)...)
	require.Error(t, err)

	_, err = run(t, append([]string{"search", "-m", "fuzzy", "cat"}, storeFlags(t)...)...)
	require.Error(t, err)
}

func TestSearchParseError(t *testing.T) {
	_, err := run(t, append([]string{"search", "-m", "boolean", "cat AND"}, storeFlags(t)...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 7")
}

func TestUnknownStore(t *testing.T) {
	_, err := run(t, "search", "-m", "vector", "--store", "mongo", "cat")
	require.Error(t, err)
}

func TestRouter(t *testing.T) {
	dir, _, cats := corpus(t)
	flags := storeFlags(t)
	_, err := run(t, append([]string{"index-local", "-D", dir}, flags...)...)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Store.Driver = "bolt"
	cfg.Store.Bolt.Path = flags[3]

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())
	srv := httptest.NewServer(newRouter(a, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/search?model=boolean&q=cat+AND+NOT+dog")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var result executor.SearchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, []string{cats}, result.Locations)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "http_requests_total")
}

func lines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
