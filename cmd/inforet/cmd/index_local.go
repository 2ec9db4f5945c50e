package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/daqol/information-retrieval/internal/analytics"
	"github.com/daqol/information-retrieval/internal/document"
	"github.com/daqol/information-retrieval/pkg/config"
	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

func newIndexLocalCmd(opts *globalOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "index-local",
		Short: "Index every file under a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndexLocal(cmd.Context(), opts.cfg, cmd.OutOrStdout(), dir)
		},
	}
	cmd.Flags().StringVarP(&dir, "directory", "D", "documents", "directory of documents to index")
	return cmd
}

type indexSummary struct {
	Indexed int
	Skipped int
}

func runIndexLocal(ctx context.Context, cfg *config.Config, out io.Writer, dir string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	a.withCache(ctx)
	a.withEvents()

	start := time.Now()
	runID := uuid.NewString()
	var sum indexSummary
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("%w: %w", apperrors.ErrIO, err)
			}
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			sum.Skipped++
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		doc := document.NewLocal(path)
		if err := a.collection.Ingest(ctx, doc); err != nil {
			if errors.Is(err, apperrors.ErrIO) {
				slog.Warn("skipping unreadable document", "path", path, "error", err)
				sum.Skipped++
				return nil
			}
			return err
		}
		sum.Indexed++
		a.crawlEvents.Track(runID, analytics.CrawlEvent{
			Type:      analytics.EventIndexDoc,
			RunID:     runID,
			URL:       path,
			Timestamp: time.Now().UTC(),
		})
		return nil
	})

	// whatever was ingested before a failure is still persisted
	flushErr := a.finishIndexing(context.WithoutCancel(ctx))
	if err := errors.Join(walkErr, flushErr); err != nil {
		return err
	}
	slog.Info("local indexing finished",
		"directory", dir,
		"indexed", sum.Indexed,
		"skipped", sum.Skipped,
		"duration", time.Since(start),
	)
	_, err = fmt.Fprintf(out, "indexed %d documents, skipped %d\n", sum.Indexed, sum.Skipped)
	return err
}
