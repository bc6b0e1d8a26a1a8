package main

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/spf13/cobra"
)

// rootOptions are shared by every subcommand.
type rootOptions struct {
	verbose     bool
	envFiles    []string
	catalogPath string
	dataDir     string

	catalog *config.Catalog
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{dataDir: config.DefaultConfig().DataDir}

	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Crawls Octopart capacitor and inductor listings and loads them into a database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, level := newLogger(opts.verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())

			if err := config.LoadDotEnv(opts.envFiles...); err != nil {
				return err
			}
			if v, ok := config.EnvString("SCRAPER_DATA_DIR"); ok && !cmd.Flags().Changed("data-dir") {
				opts.dataDir = v
			}

			var err error
			if opts.catalogPath != "" {
				opts.catalog, err = config.LoadCatalog(opts.catalogPath)
			} else {
				opts.catalog, err = config.DefaultCatalog()
			}
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "Dotenv files to load (default .env)")
	flags.StringVar(&opts.catalogPath, "catalog", "", "Category/attribute catalog YAML (default embedded)")
	flags.StringVar(&opts.dataDir, "data-dir", opts.dataDir, "Directory holding raw results and resume markers")

	cmd.AddCommand(
		newCrawlCmd(opts),
		newNormalizeCmd(opts),
		newLoadCmd(opts),
		newStatusCmd(opts),
		newCatalogCmd(opts),
	)
	return cmd
}
