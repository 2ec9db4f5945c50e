package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateIndexesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create-indexes",
		Short: "Build the store's secondary indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			if err := a.collection.CreateIndexes(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexes created on %s and %s\n",
				opts.cfg.Store.IndexTable, opts.cfg.Store.DocumentsTable)
			return err
		},
	}
}
