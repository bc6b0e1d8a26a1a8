package main

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/loader"
	"github.com/spf13/cobra"
)

func newLoadCmd(root *rootOptions) *cobra.Command {
	cfg := config.DefaultLoaderConfig()
	var csvPath string

	cmd := &cobra.Command{
		Use:   "load --csv <file> --table <name> --dsn <dsn> --driver postgres|mysql|sqlite",
		Short: "Loads a normalized CSV into a database table.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromFlags := *cfg
			if err := cfg.ApplyEnv(); err != nil {
				return fmt.Errorf("invalid environment: %w", err)
			}
			if cmd.Flags().Changed("dsn") {
				cfg.DSN = fromFlags.DSN
			}
			if cmd.Flags().Changed("driver") {
				cfg.Driver = fromFlags.Driver
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = fromFlags.BatchSize
			}
			cfg.Driver = strings.ToLower(cfg.Driver)

			l, err := loader.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer l.Close()

			result, err := l.LoadCSV(cmd.Context(), csvPath, cfg.Table)
			if err != nil {
				return fmt.Errorf("load %s: %w", csvPath, err)
			}
			printLoadSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&csvPath, "csv", config.DefaultNormalizeConfig().OutputFile, "Normalized CSV to load")
	flags.StringVar(&cfg.Table, "table", cfg.Table, "Destination table")
	flags.StringVar(&cfg.DSN, "dsn", "", "Database connection string (default $DATABASE_URL)")
	flags.StringVar(&cfg.Driver, "driver", cfg.Driver, "Database driver: postgres, mysql, or sqlite")
	flags.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per INSERT statement")
	flags.BoolVar(&cfg.CreateTable, "create", cfg.CreateTable, "Create the table when missing")
	flags.BoolVar(&cfg.Truncate, "truncate", cfg.Truncate, "Empty the table before loading")
	return cmd
}
