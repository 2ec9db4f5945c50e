package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/daqol/information-retrieval/internal/analytics"
	"github.com/daqol/information-retrieval/internal/indexer"
	"github.com/daqol/information-retrieval/internal/searcher/cache"
	"github.com/daqol/information-retrieval/internal/searcher/executor"
	"github.com/daqol/information-retrieval/internal/store"
	"github.com/daqol/information-retrieval/pkg/config"
	"github.com/daqol/information-retrieval/pkg/kafka"
	"github.com/daqol/information-retrieval/pkg/metrics"
	pkgredis "github.com/daqol/information-retrieval/pkg/redis"
)

// app holds the components a command runs against. Optional components
// (cache, event collectors) stay nil when disabled or unreachable.
type app struct {
	cfg        *config.Config
	store      store.Store
	collection *indexer.Collection
	metrics    *metrics.Metrics

	redis        *pkgredis.Client
	cache        *cache.QueryCache
	producers    []*kafka.Producer
	crawlEvents  *analytics.Collector
	searchEvents *analytics.Collector

	stopMetrics func(context.Context) error
}

// newApp connects to the store. A store that cannot be reached is the one
// fatal setup error.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	a := &app{
		cfg:        cfg,
		store:      st,
		collection: indexer.NewCollection(st, cfg.Indexer, m),
		metrics:    m,
	}
	if cfg.Metrics.Enabled {
		a.stopMetrics = m.StartServer(cfg.Metrics.Port)
	}
	return a, nil
}

// withCache connects to Redis when enabled. Failures only disable caching.
func (a *app) withCache(ctx context.Context) {
	if !a.cfg.Redis.Enabled {
		return
	}
	client, err := pkgredis.NewClient(ctx, a.cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, query caching disabled", "error", err)
		return
	}
	a.redis = client
	a.cache = cache.New(client, a.cfg.Redis.CacheTTL, a.metrics)
	slog.Info("query cache enabled", "addr", a.cfg.Redis.Addr, "ttl", a.cfg.Redis.CacheTTL)
}

// withEvents starts the Kafka event collectors when enabled.
func (a *app) withEvents() {
	if !a.cfg.Kafka.Enabled {
		return
	}
	crawl := kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.Topics.CrawlEvents)
	search := kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.Topics.SearchEvents)
	a.producers = append(a.producers, crawl, search)
	a.crawlEvents = analytics.NewCollector(crawl, 0, 0, 0)
	a.searchEvents = analytics.NewCollector(search, 0, 0, 0)
	slog.Info("event publishing enabled", "brokers", a.cfg.Kafka.Brokers)
}

func (a *app) executor() *executor.Executor {
	e := executor.New(a.collection, a.metrics, a.cfg.Search.Timeout)
	if a.cfg.Tracing.Enabled {
		e.EnableTracing()
	}
	return e
}

// finishIndexing persists what is left in memory, builds store indexes when
// asked and drops cached results made stale by the new documents.
func (a *app) finishIndexing(ctx context.Context) error {
	if err := a.collection.Close(ctx); err != nil {
		return err
	}
	if a.cfg.Store.CreateIndexes {
		if err := a.collection.CreateIndexes(ctx); err != nil {
			return err
		}
		slog.Info("store indexes created")
	}
	if a.cache != nil {
		if err := a.cache.Invalidate(ctx); err != nil {
			slog.Warn("could not invalidate query cache", "error", err)
		}
	}
	return nil
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	a.crawlEvents.Close()
	a.searchEvents.Close()
	for _, p := range a.producers {
		errs = append(errs, p.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.stopMetrics != nil {
		errs = append(errs, a.stopMetrics(ctx))
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
