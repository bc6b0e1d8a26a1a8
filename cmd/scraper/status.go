package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/aluiziolira/go-scrape-parts/state"
	"github.com/spf13/cobra"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	category := config.DefaultConfig().Category

	cmd := &cobra.Command{
		Use:   "status -c <category>",
		Short: "Shows the resume marker and saved results of a category.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := root.catalog.CategoryID(category); err != nil {
				return fmt.Errorf("%w (run `scraper catalog` for valid names)", err)
			}
			store, err := state.NewStore(root.dataDir, category)
			if err != nil {
				return err
			}

			var marker *models.ResumeMarker
			marker, err = store.LoadMarker()
			if errors.Is(err, state.ErrNoMarker) {
				marker, err = nil, nil
			}
			if err != nil {
				return err
			}

			intermediate, err := store.IntermediateCount()
			if err != nil {
				return err
			}
			_, statErr := os.Stat(store.FinalPath())

			printStatus(cmd.OutOrStdout(), category, marker, intermediate, store.FinalPath(), statErr == nil)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", category, "Category name")
	return cmd
}

func newCatalogCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Lists the known categories and attributes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printCatalog(cmd.OutOrStdout(), root.catalog)
			return nil
		},
	}
}
