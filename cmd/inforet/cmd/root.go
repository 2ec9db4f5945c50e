// Package cmd holds the inforet command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daqol/information-retrieval/pkg/config"
	"github.com/daqol/information-retrieval/pkg/logger"
)

// globalOptions are the persistent flags shared by every command. Set
// flags override the configuration file and environment.
type globalOptions struct {
	configPath     string
	driver         string
	pgHost         string
	pgPort         int
	pgDatabase     string
	indexTable     string
	documentsTable string
	boltPath       string
	createIndexes  bool
	logLevel       string
	logFormat      string

	cfg *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "inforet",
		Short: "Boolean and vector search over local files and crawled web pages",
		Long: `inforet indexes local documents or pages reached by a breadth-first web
crawl into an inverted index kept in PostgreSQL or BoltDB, and answers
boolean (AND, OR, NOT, parentheses) and tf-idf vector queries against it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	f.StringVar(&opts.driver, "store", defaults.Store.Driver, "store backend: postgres or bolt")
	f.StringVarP(&opts.pgHost, "pg-host", "H", defaults.Store.Postgres.Host, "PostgreSQL host")
	f.IntVarP(&opts.pgPort, "pg-port", "p", defaults.Store.Postgres.Port, "PostgreSQL port")
	f.StringVarP(&opts.pgDatabase, "pg-database", "d", defaults.Store.Postgres.Database, "PostgreSQL database")
	f.StringVarP(&opts.indexTable, "index-table", "i", defaults.Store.IndexTable, "table (or bucket) holding the inverted index")
	f.StringVarP(&opts.documentsTable, "documents-table", "l", defaults.Store.DocumentsTable, "table (or bucket) holding document norms")
	f.StringVar(&opts.boltPath, "bolt-path", defaults.Store.Bolt.Path, "BoltDB file for the bolt store")
	f.BoolVarP(&opts.createIndexes, "create-indexes", "I", false, "build store indexes after index-local or web-crawl")
	f.StringVar(&opts.logLevel, "log-level", defaults.Logging.Level, "debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", defaults.Logging.Format, "text or json")

	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newIndexLocalCmd(opts))
	cmd.AddCommand(newWebCrawlCmd(opts))
	cmd.AddCommand(newCreateIndexesCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// load reads the configuration and applies every flag the user set.
func (o *globalOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Driver = o.driver
	}
	if flags.Changed("pg-host") {
		cfg.Store.Postgres.Host = o.pgHost
	}
	if flags.Changed("pg-port") {
		cfg.Store.Postgres.Port = o.pgPort
	}
	if flags.Changed("pg-database") {
		cfg.Store.Postgres.Database = o.pgDatabase
	}
	if flags.Changed("index-table") {
		cfg.Store.IndexTable = o.indexTable
	}
	if flags.Changed("documents-table") {
		cfg.Store.DocumentsTable = o.documentsTable
	}
	if flags.Changed("bolt-path") {
		cfg.Store.Bolt.Path = o.boltPath
	}
	if flags.Changed("create-indexes") {
		cfg.Store.CreateIndexes = o.createIndexes
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	o.cfg = cfg
	return nil
}
