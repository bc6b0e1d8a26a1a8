package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/pipeline"
	"github.com/aluiziolira/go-scrape-parts/state"
	"github.com/spf13/cobra"
)

func newNormalizeCmd(root *rootOptions) *cobra.Command {
	cfg := config.DefaultNormalizeConfig()
	var categories []string

	cmd := &cobra.Command{
		Use:   "normalize [--input <raw.json>...] [--category <name>...] --output <file>",
		Short: "Derives the engineering table from raw crawl output.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range categories {
				store, err := state.NewStore(root.dataDir, c)
				if err != nil {
					return err
				}
				cfg.Inputs = append(cfg.Inputs, store.FinalPath())
			}
			cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
			if cfg.OutputFormat == "xlsx" && !cmd.Flags().Changed("output") {
				cfg.OutputFile = strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile)) + ".xlsx"
			}
			if root.verbose {
				cfg.ReportInterval = 10 * time.Second
			}

			result, err := pipeline.Normalize(cmd.Context(), cfg, root.catalog)
			if err != nil {
				return fmt.Errorf("normalize: %w", err)
			}
			printNormalizeSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&cfg.Inputs, "input", "i", nil, "Raw results file, repeatable")
	flags.StringArrayVarP(&categories, "category", "c", nil, "Normalize the final output of a crawled category, repeatable")
	flags.StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Output file")
	flags.StringVarP(&cfg.OutputFormat, "format", "f", cfg.OutputFormat, "Output format: csv, json, dual, or xlsx")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "Normalization workers; more than one does not keep input order")
	flags.IntVar(&cfg.Year, "year", cfg.Year, "Year stamped on every row")
	return cmd
}
