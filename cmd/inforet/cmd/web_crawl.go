package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/daqol/information-retrieval/internal/crawler"
	"github.com/daqol/information-retrieval/internal/document"
	"github.com/daqol/information-retrieval/pkg/config"
)

func newWebCrawlCmd(opts *globalOptions) *cobra.Command {
	var (
		seeds      []string
		maxDepth   int
		maxFetches int
		workers    int
	)
	defaults := config.Default().Crawler
	cmd := &cobra.Command{
		Use:   "web-crawl -s <seed>...",
		Short: "Crawl the web breadth first from seed links and index every HTML page",
		Long: `Crawl the web breadth first from the seed links. Seeds are at depth 0,
the links they contain at depth 1 and so on. Query strings and fragments
are ignored when deciding whether a page was already seen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("max-depth") {
				cfg.Crawler.MaxDepth = maxDepth
			}
			if cmd.Flags().Changed("max-fetches") {
				cfg.Crawler.MaxFetches = maxFetches
			}
			if cmd.Flags().Changed("workers") {
				cfg.Crawler.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runWebCrawl(cmd.Context(), cfg, cmd.OutOrStdout(), seeds)
		},
	}
	cmd.Flags().StringSliceVarP(&seeds, "seed", "s", nil, "initial link(s); repeat or separate with commas")
	cmd.Flags().IntVarP(&maxDepth, "max-depth", "m", defaults.MaxDepth, "deepest layer to crawl, -1 for unlimited")
	cmd.Flags().IntVar(&maxFetches, "max-fetches", defaults.MaxFetches, "stop after this many fetch attempts, 0 for unlimited")
	cmd.Flags().IntVar(&workers, "workers", defaults.Workers, "concurrent fetches per layer")
	cmd.MarkFlagRequired("seed")
	return cmd
}

func runWebCrawl(ctx context.Context, cfg *config.Config, out io.Writer, seeds []string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	a.withCache(ctx)
	a.withEvents()

	c := crawler.New(seeds, document.NewFetcher(cfg.Crawler), a.collection, cfg.Crawler, a.metrics, a.crawlEvents)
	summary, crawlErr := c.Crawl(ctx)
	if errors.Is(crawlErr, context.Canceled) {
		slog.Warn("crawl interrupted, keeping pages fetched so far")
		crawlErr = nil
	}
	if err := errors.Join(crawlErr, a.finishIndexing(context.WithoutCancel(ctx))); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "visited %d, bad %d, unvisited %d, fetches %d, depth %d\n",
		summary.Visited, summary.Bad, summary.Unvisited, summary.Fetches, summary.Depth)
	return err
}
