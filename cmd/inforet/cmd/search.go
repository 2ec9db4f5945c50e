package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/daqol/information-retrieval/internal/analytics"
	"github.com/daqol/information-retrieval/internal/searcher/executor"
	"github.com/daqol/information-retrieval/internal/searcher/ranker"
	"github.com/daqol/information-retrieval/pkg/config"
)

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		model string
		above float64
		top   int
	)
	defaults := config.Default().Search

	cmd := &cobra.Command{
		Use:   "search -m {boolean|vector} <query>",
		Short: "Query the index",
		Long: `Query the index with the boolean model (AND, OR, NOT and parentheses;
prints matching locations one per line) or the vector model (free text;
prints "location,score" ordered by descending score).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if model != executor.ModelBoolean && model != executor.ModelVector {
				return fmt.Errorf("--model must be %q or %q", executor.ModelBoolean, executor.ModelVector)
			}
			if cmd.Flags().Changed("above") {
				opts.cfg.Search.Above = above
			}
			if cmd.Flags().Changed("top") {
				opts.cfg.Search.Top = top
			}
			return runSearch(cmd.Context(), opts.cfg, cmd.OutOrStdout(), executor.Request{
				Query:   strings.Join(args, " "),
				Model:   model,
				Options: ranker.Options{Above: opts.cfg.Search.Above, Top: opts.cfg.Search.Top},
			})
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "query model: boolean or vector")
	cmd.Flags().Float64Var(&above, "above", defaults.Above, "vector model: minimum similarity to report")
	cmd.Flags().IntVar(&top, "top", defaults.Top, "vector model: report at most this many documents, -1 for all")
	cmd.MarkFlagRequired("model")
	return cmd
}

func runSearch(ctx context.Context, cfg *config.Config, out io.Writer, req executor.Request) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	a.withCache(ctx)
	a.withEvents()

	start := time.Now()
	exec := a.executor()
	var result *executor.SearchResult
	cacheHit := false
	if a.cache != nil {
		result, cacheHit, err = a.cache.GetOrCompute(ctx, req, func(ctx context.Context) (*executor.SearchResult, error) {
			return exec.Execute(ctx, req)
		})
	} else {
		result, err = exec.Execute(ctx, req)
	}

	event := analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     req.Query,
		Model:     req.Model,
		LatencyMs: time.Since(start).Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		event.Type = analytics.EventSearchFailed
		event.Error = err.Error()
		a.searchEvents.Track(req.Model, event)
		return err
	}
	event.TotalHits = result.TotalHits
	a.searchEvents.Track(req.Model, event)
	return printResult(out, result)
}

func printResult(out io.Writer, result *executor.SearchResult) error {
	if result.Model == executor.ModelBoolean {
		for _, loc := range result.Locations {
			if _, err := fmt.Fprintln(out, loc); err != nil {
				return err
			}
		}
		return nil
	}
	for _, d := range result.Results {
		if _, err := fmt.Fprintf(out, "%s,%.2f\n", d.Location, d.Score); err != nil {
			return err
		}
	}
	return nil
}
