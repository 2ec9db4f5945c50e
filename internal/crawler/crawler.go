// Package crawler walks the web breadth first from a set of seed links,
// one depth layer at a time, and feeds every HTML page it reaches to an
// Ingester.
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/daqol/information-retrieval/internal/analytics"
	"github.com/daqol/information-retrieval/internal/document"
	"github.com/daqol/information-retrieval/pkg/config"
	"github.com/daqol/information-retrieval/pkg/metrics"
)

// Ingester receives every successfully crawled HTML page.
// *indexer.Collection satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, d document.Document) error
}

type Summary struct {
	RunID     string `json:"run_id"`
	Visited   int    `json:"visited"`
	Bad       int    `json:"bad"`
	Unvisited int    `json:"unvisited"`
	Fetches   int    `json:"fetches"`
	Depth     int    `json:"depth"`
}

type Crawler struct {
	fetcher  *document.Fetcher
	frontier *Frontier
	ingester Ingester
	events   *analytics.Collector
	metrics  *metrics.Metrics
	cfg      config.CrawlerConfig
	runID    string
	fetches  atomic.Int64
	logger   *slog.Logger
}

// New prepares a crawl from seeds. ingester and events may be nil.
func New(
	seeds []string,
	fetcher *document.Fetcher,
	ingester Ingester,
	cfg config.CrawlerConfig,
	m *metrics.Metrics,
	events *analytics.Collector,
) *Crawler {
	runID := uuid.NewString()
	c := &Crawler{
		fetcher:  fetcher,
		frontier: NewFrontier(),
		ingester: ingester,
		events:   events,
		metrics:  m,
		cfg:      cfg,
		runID:    runID,
		logger:   slog.Default().With("component", "crawler", "run_id", runID),
	}
	for _, s := range seeds {
		c.frontier.Add(s)
	}
	return c
}

func (c *Crawler) Frontier() *Frontier {
	return c.frontier
}

// Crawl fetches layer after layer until no unvisited links remain, the
// layer at MaxDepth is done (negative means unlimited), MaxFetches
// attempts are used (0 means unlimited) or ctx is cancelled. A failing
// link only marks that link bad. On cancellation in-flight fetches finish
// and the summary is returned with ctx's error.
func (c *Crawler) Crawl(ctx context.Context) (Summary, error) {
	start := time.Now()
	depth := 0
	lastDepth := -1
	for {
		if ctx.Err() != nil || c.capReached() {
			break
		}
		if c.cfg.MaxDepth >= 0 && depth > c.cfg.MaxDepth {
			break
		}
		layer := c.frontier.Unvisited()
		if len(layer) == 0 {
			break
		}
		c.logger.Info("crawling layer", "depth", depth, "links", len(layer))
		c.metrics.CrawlDepth.Set(float64(depth))
		c.crawlLayer(ctx, layer, depth)
		c.updateGauges()
		lastDepth = depth
		depth++
	}

	summary := c.summary(lastDepth)
	c.events.Track(c.runID, analytics.CrawlEvent{
		Type:      analytics.EventCrawlDone,
		RunID:     c.runID,
		Depth:     summary.Depth,
		Timestamp: time.Now().UTC(),
	})
	c.logger.Info("crawl finished",
		"visited", summary.Visited,
		"bad", summary.Bad,
		"unvisited", summary.Unvisited,
		"fetches", summary.Fetches,
		"depth", summary.Depth,
		"duration", time.Since(start),
	)
	return summary, ctx.Err()
}

// crawlLayer fetches layer with at most Workers concurrent fetches. Pages
// are handed to a single ingesting goroutine.
func (c *Crawler) crawlLayer(ctx context.Context, layer []string, depth int) {
	pages := make(chan *document.RemoteDocument)
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		// pages already fetched are kept even if the crawl is cancelled
		ictx := context.WithoutCancel(ctx)
		for doc := range pages {
			c.ingest(ictx, doc)
		}
	}()

	var g errgroup.Group
	g.SetLimit(max(c.cfg.Workers, 1))
	for _, link := range layer {
		if ctx.Err() != nil || !c.reserveFetch() {
			break
		}
		g.Go(func() error {
			// An earlier redirect in this layer may already have reached
			// link. Fetches running concurrently can still overlap; ingest
			// is idempotent so that only costs a fetch.
			if st, _ := c.frontier.State(link); st != Unvisited {
				c.fetches.Add(-1)
				return nil
			}
			if doc := c.visit(ctx, link, depth); doc != nil {
				pages <- doc
			}
			return nil
		})
	}
	g.Wait()
	close(pages)
	<-ingestDone
}

// visit fetches one link and records its outcome. It returns the document
// when it is an HTML page.
func (c *Crawler) visit(ctx context.Context, link string, depth int) *document.RemoteDocument {
	doc := document.NewRemote(link, c.fetcher)
	if err := doc.Load(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// left unvisited; the crawl is stopping
			return nil
		}
		c.frontier.MarkBad(link)
		c.metrics.CrawlFetchesTotal.WithLabelValues("failed").Inc()
		c.logger.Warn("fetch failed", "link", link, "depth", depth, "error", err)
		c.track(analytics.EventPageFailed, link, "", depth, 0, err)
		return nil
	}

	final := Canonicalize(doc.Location())
	if !doc.IsHTML() {
		c.frontier.MarkBad(link)
		c.frontier.MarkBad(final)
		c.metrics.CrawlFetchesTotal.WithLabelValues("non_html").Inc()
		c.logger.Debug("not an html page", "link", link, "content_type", doc.ContentType())
		c.track(analytics.EventPageNonHTML, link, final, depth, 0, nil)
		return nil
	}

	base, err := url.Parse(doc.Location())
	if err != nil {
		c.frontier.MarkBad(link)
		c.metrics.CrawlFetchesTotal.WithLabelValues("failed").Inc()
		c.logger.Warn("unusable final url", "link", link, "final", doc.Location(), "error", err)
		return nil
	}
	added := 0
	for _, href := range doc.Links() {
		if abs, ok := Resolve(base, href); ok && c.frontier.Add(abs) {
			added++
		}
	}
	c.frontier.MarkVisited(link)
	c.frontier.MarkVisited(final)
	c.metrics.CrawlFetchesTotal.WithLabelValues("visited").Inc()
	c.logger.Debug("page visited", "link", link, "final", final, "new_links", added)
	c.track(analytics.EventPageVisited, link, final, depth, added, nil)
	return doc
}

func (c *Crawler) ingest(ctx context.Context, doc *document.RemoteDocument) {
	if c.ingester == nil {
		return
	}
	if err := c.ingester.Ingest(ctx, doc); err != nil {
		c.logger.Error("ingesting page failed", "link", doc.Location(), "error", err)
	}
}

func (c *Crawler) track(t analytics.EventType, link, final string, depth, links int, err error) {
	ev := analytics.CrawlEvent{
		Type:      t,
		RunID:     c.runID,
		URL:       link,
		FinalURL:  final,
		Depth:     depth,
		Links:     links,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.events.Track(c.runID, ev)
}

func (c *Crawler) reserveFetch() bool {
	limit := int64(c.cfg.MaxFetches)
	if limit <= 0 {
		c.fetches.Add(1)
		return true
	}
	if c.fetches.Add(1) > limit {
		c.fetches.Add(-1)
		return false
	}
	return true
}

func (c *Crawler) capReached() bool {
	return c.cfg.MaxFetches > 0 && c.fetches.Load() >= int64(c.cfg.MaxFetches)
}

func (c *Crawler) updateGauges() {
	unvisited, visited, bad := c.frontier.Counts()
	c.metrics.FrontierLinks.WithLabelValues(Unvisited.String()).Set(float64(unvisited))
	c.metrics.FrontierLinks.WithLabelValues(Visited.String()).Set(float64(visited))
	c.metrics.FrontierLinks.WithLabelValues(Bad.String()).Set(float64(bad))
	c.metrics.OpenHostBreakers.Set(float64(len(c.fetcher.OpenHosts())))
}

func (c *Crawler) summary(depth int) Summary {
	unvisited, visited, bad := c.frontier.Counts()
	return Summary{
		RunID:     c.runID,
		Visited:   visited,
		Bad:       bad,
		Unvisited: unvisited,
		Fetches:   int(c.fetches.Load()),
		Depth:     depth,
	}
}
