package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daqol/information-retrieval/internal/document"
	"github.com/daqol/information-retrieval/internal/indexer"
	"github.com/daqol/information-retrieval/internal/store"
	"github.com/daqol/information-retrieval/pkg/config"
	"github.com/daqol/information-retrieval/pkg/metrics"
)

type recorder struct {
	mu   sync.Mutex
	docs []string
}

func (r *recorder) Ingest(_ context.Context, d document.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, d.Location())
	return nil
}

func (r *recorder) locations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.docs...)
	sort.Strings(out)
	return out
}

type site struct {
	*httptest.Server
	hits sync.Map
}

func (s *site) count(path string) int32 {
	v, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int32).Load()
}

// newSite serves:
//
//	/         -> /a?x=1, /a#top, /a, /missing, /doc.pdf, mailto:
//	/a        -> /b, /
//	/b        -> /old
//	/old      -> redirect to /c
//	/c        -> /c?again
func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{}
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, "<html><body>%s</body></html>", body)
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", html(`<p>home page</p>
<a href="/a?x=1">one</a><a href="/a#top">two</a><a href="a">three</a>
<a href="/missing">gone</a><a href="/doc.pdf">pdf</a><a href="mailto:cat@example.com">mail</a>`))
	mux.HandleFunc("/a", html(`<p>cats chase mice</p><a href="/b">b</a><a href="/">home</a>`))
	mux.HandleFunc("/b", html(`<p>dogs chase cats</p><a href="/old">old</a>`))
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c", http.StatusFound)
	})
	mux.HandleFunc("/c", html(`<p>birds</p><a href="c?again=1">self</a>`))
	mux.HandleFunc("/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4")
	})
	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := s.hits.LoadOrStore(r.URL.Path, new(atomic.Int32))
		v.(*atomic.Int32).Add(1)
		mux.ServeHTTP(w, r)
	})
	s.Server = httptest.NewServer(counting)
	t.Cleanup(s.Close)
	return s
}

func crawlerConfig(maxDepth, maxFetches int) config.CrawlerConfig {
	cfg := config.Default().Crawler
	cfg.MaxDepth = maxDepth
	cfg.MaxFetches = maxFetches
	cfg.Workers = 4
	cfg.Timeout = 5 * time.Second
	cfg.RespectRobots = false
	return cfg
}

func newCrawler(s *site, cfg config.CrawlerConfig, ing Ingester) *Crawler {
	return New([]string{s.URL + "/"}, document.NewFetcher(cfg), ing, cfg, metrics.New(), nil)
}

func TestCrawlWholeSite(t *testing.T) {
	s := newSite(t)
	rec := &recorder{}
	c := newCrawler(s, crawlerConfig(-1, 0), rec)

	summary, err := c.Crawl(context.Background())
	require.NoError(t, err)

	f := c.Frontier()
	for path, want := range map[string]State{
		"/":        Visited,
		"/a":       Visited,
		"/b":       Visited,
		"/old":     Visited,
		"/c":       Visited,
		"/missing": Bad,
		"/doc.pdf": Bad,
	} {
		got, ok := f.State(s.URL + path)
		require.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}
	_, known := f.State("mailto:cat@example.com")
	assert.False(t, known)

	assert.Equal(t, int32(1), s.count("/a"), "query and fragment variants are one page")
	assert.Equal(t, int32(1), s.count("/c"), "redirect target is not fetched again")
	assert.Equal(t, int32(1), s.count("/"))

	assert.Equal(t, 0, summary.Unvisited)
	assert.Equal(t, 2, summary.Bad)
	assert.Equal(t, 6, summary.Fetches)
	assert.Equal(t, 3, summary.Depth)

	assert.Equal(t, []string{s.URL + "/", s.URL + "/a", s.URL + "/b", s.URL + "/c"}, rec.locations())
}

func TestCrawlIsolatesFailures(t *testing.T) {
	s := newSite(t)
	cfg := crawlerConfig(1, 0)
	m := metrics.New()
	c := New([]string{s.URL + "/missing", s.URL + "/"}, document.NewFetcher(cfg), nil, cfg, m, nil)

	_, err := c.Crawl(context.Background())
	require.NoError(t, err)

	st, _ := c.Frontier().State(s.URL + "/missing")
	assert.Equal(t, Bad, st)
	st, _ = c.Frontier().State(s.URL + "/a")
	assert.Equal(t, Visited, st)
	assert.Equal(t, int32(1), s.count("/missing"), "bad links are never retried")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CrawlFetchesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CrawlFetchesTotal.WithLabelValues("non_html")))
}

func TestCrawlStopsAtMaxDepth(t *testing.T) {
	s := newSite(t)
	c := newCrawler(s, crawlerConfig(0, 0), nil)
	summary, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Depth)
	assert.Equal(t, 1, summary.Fetches)
	assert.Equal(t, int32(0), s.count("/a"))
	assert.Equal(t, []string{s.URL + "/a", s.URL + "/doc.pdf", s.URL + "/missing"}, c.Frontier().Unvisited())

	c = newCrawler(s, crawlerConfig(1, 0), nil)
	summary, err = c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Depth)
	st, _ := c.Frontier().State(s.URL + "/b")
	assert.Equal(t, Unvisited, st)
}

func TestCrawlRespectsFetchCap(t *testing.T) {
	s := newSite(t)
	c := newCrawler(s, crawlerConfig(-1, 2), nil)
	summary, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Fetches)
	assert.Positive(t, summary.Unvisited)
}

func TestCrawlHonoursCancellation(t *testing.T) {
	s := newSite(t)
	c := newCrawler(s, crawlerConfig(-1, 0), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := c.Crawl(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Fetches)
	assert.Equal(t, 1, summary.Unvisited)
}

func TestCrawlIntoCollection(t *testing.T) {
	s := newSite(t)
	cfg := config.Default()
	cfg.Store.Driver = "bolt"
	cfg.Store.Bolt.Path = filepath.Join(t.TempDir(), "crawl.db")
	st, err := store.Open(context.Background(), cfg.Store)
	require.NoError(t, err)
	defer st.Close()
	m := metrics.New()
	coll := indexer.NewCollection(st, cfg.Indexer, m)

	crawlCfg := crawlerConfig(-1, 0)
	c := New([]string{s.URL + "/"}, document.NewFetcher(crawlCfg), coll, crawlCfg, m, nil)
	_, err = c.Crawl(context.Background())
	require.NoError(t, err)

	cats, err := coll.DocumentsForTerm(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{s.URL + "/a": 1, s.URL + "/b": 1}, cats)
	total, err := coll.TotalDocumentCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestResolve(t *testing.T) {
	base, _ := url.Parse("http://example.com/dir/page.html")
	cases := []struct {
		href string
		want string
		ok   bool
	}{
		{"other.html", "http://example.com/dir/other.html", true},
		{"/root?q=1", "http://example.com/root", true},
		{"#frag", "http://example.com/dir/page.html", true},
		{"https://x.org/p#a", "https://x.org/p", true},
		{"  ../up  ", "http://example.com/up", true},
		{"mailto:a@b.c", "", false},
		{"javascript:void(0)", "", false},
		{"ftp://example.com/f", "", false},
	}
	for _, tc := range cases {
		got, ok := Resolve(base, tc.href)
		assert.Equal(t, tc.ok, ok, tc.href)
		assert.Equal(t, tc.want, got, tc.href)
	}
}

func TestCrawlSkipsLinkReachedByRedirectInSameLayer(t *testing.T) {
	var hits sync.Map
	mux := http.NewServeMux()
	mux.HandleFunc("/a-old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/z-new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/z-new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>moved here</body></html>")
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := hits.LoadOrStore(r.URL.Path, new(atomic.Int32))
		v.(*atomic.Int32).Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := crawlerConfig(0, 0)
	cfg.Workers = 1
	rec := &recorder{}
	c := New([]string{srv.URL + "/a-old", srv.URL + "/z-new"}, document.NewFetcher(cfg), rec, cfg, metrics.New(), nil)

	summary, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fetches)
	v, _ := hits.Load("/z-new")
	assert.Equal(t, int32(1), v.(*atomic.Int32).Load())
	st, _ := c.Frontier().State(srv.URL + "/z-new")
	assert.Equal(t, Visited, st)
	assert.Len(t, rec.locations(), 1)
}
