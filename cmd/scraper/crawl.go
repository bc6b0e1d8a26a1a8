package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/scraper"
	"github.com/aluiziolira/go-scrape-parts/state"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newCrawlCmd(root *rootOptions) *cobra.Command {
	cfg := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "crawl -c <category> -a <attribute> [-a <attribute>...]",
		Short: "Crawls every bucket combination of a category, resuming an interrupted crawl.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyCrawlEnv(cmd, cfg); err != nil {
				return err
			}
			cfg.DataDir = root.dataDir
			cfg.Verbose = root.verbose
			return runCrawl(cmd.Context(), cmd, cfg, root.catalog)
		},
	}

	bindCrawlFlags(cmd, cfg)
	return cmd
}

func bindCrawlFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.StringVarP(&cfg.Category, "category", "c", cfg.Category, "Category name, see `scraper catalog`")
	flags.StringArrayVarP(&cfg.Attributes, "attribute", "a", cfg.Attributes, "Attribute to enumerate buckets of, repeatable")
	flags.StringVar(&cfg.PerimeterXKey, "px", "", "PerimeterX _px cookie value")
	flags.StringVarP(&cfg.UserAgent, "user-agent", "u", cfg.UserAgent, "User agent sent with every request")
	flags.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Search API endpoint")
	flags.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "Results per page")
	flags.IntVar(&cfg.MaxPageOffset, "max-offset", cfg.MaxPageOffset, "Result offset the API stops serving at")
	flags.Float64Var(&cfg.RequestsPerSecond, "rps", cfg.RequestsPerSecond, "Request rate limit, 0 disables")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retries for transient network errors")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Request timeout")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVar(&cfg.NonInteractive, "non-interactive", false, "Stop at the first anti-bot block instead of prompting")
}

// applyCrawlEnv overlays environment variables on cfg without overriding flags that were
// set explicitly.
func applyCrawlEnv(cmd *cobra.Command, cfg *config.Config) error {
	fromFlags := *cfg
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	restore := map[string]func(){
		"px":           func() { cfg.PerimeterXKey = fromFlags.PerimeterXKey },
		"user-agent":   func() { cfg.UserAgent = fromFlags.UserAgent },
		"endpoint":     func() { cfg.Endpoint = fromFlags.Endpoint },
		"rps":          func() { cfg.RequestsPerSecond = fromFlags.RequestsPerSecond },
		"max-retries":  func() { cfg.MaxRetries = fromFlags.MaxRetries },
		"timeout":      func() { cfg.Timeout = fromFlags.Timeout },
		"metrics-addr": func() { cfg.MetricsAddr = fromFlags.MetricsAddr },
	}
	for name, fn := range restore {
		if cmd.Flags().Changed(name) {
			fn()
		}
	}
	return nil
}

func runCrawl(ctx context.Context, cmd *cobra.Command, cfg *config.Config, catalog *config.Catalog) error {
	out := cmd.OutOrStdout()
	var prompt *prompter
	if !cfg.NonInteractive {
		prompt = newPrompter(cmd.InOrStdin(), out)
		if cmd.InOrStdin() == os.Stdin && !isTerminal(os.Stdin) {
			slog.Warn("stdin is not a terminal, prompts will read piped input")
		}
	}

	if prompt != nil {
		if err := promptMissing(ctx, cmd, cfg, prompt); err != nil {
			return err
		}
	}
	if _, _, err := catalog.Resolve(cfg.Category, cfg.Attributes); err != nil {
		return fmt.Errorf("%w (run `scraper catalog` for valid names)", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := state.NewStore(cfg.DataDir, cfg.Category)
	if err != nil {
		return err
	}
	var provider scraper.CredentialProvider = scraper.NoRenewal{}
	if prompt != nil {
		provider = prompt.renewer()
	}

	s, err := scraper.NewScraper(cfg, catalog, store, provider)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	printCrawlHeader(out, cfg, catalog)
	if store.HasMarker() {
		slog.Info("resuming interrupted crawl", slog.String("marker", store.MarkerPath()))
	}

	stopMetrics := serveMetrics(cfg.MetricsAddr, s.Metrics)
	defer stopMetrics()

	result, err := s.Run(ctx)
	if result != nil {
		printCrawlSummary(out, result)
	}
	if err != nil {
		switch {
		case errors.Is(err, scraper.ErrCredentialsUnavailable), scraper.IsAntiBotBlock(err):
			fmt.Fprintf(out, "Blocked by the anti-bot check. Progress is saved in %s; rerun with a new --px to resume.\n", store.MarkerPath())
		case errors.Is(err, context.Canceled):
			fmt.Fprintf(out, "Interrupted. Progress is saved in %s; rerun to resume.\n", store.MarkerPath())
		}
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}

// promptMissing asks for the settings not given on the command line. Category and
// attributes are only asked for on a terminal; their defaults are kept otherwise.
func promptMissing(ctx context.Context, cmd *cobra.Command, cfg *config.Config, prompt *prompter) error {
	if cfg.PerimeterXKey == "" {
		px, err := prompt.ask(ctx, "PerimeterX key", "")
		if err != nil {
			return fmt.Errorf("read perimeterx key: %w", err)
		}
		cfg.PerimeterXKey = px
	}
	if cmd.InOrStdin() != os.Stdin || !isTerminal(os.Stdin) {
		return nil
	}

	if !cmd.Flags().Changed("category") {
		category, err := prompt.ask(ctx, "Category", cfg.Category)
		if err != nil {
			return fmt.Errorf("read category: %w", err)
		}
		cfg.Category = category
	}
	if !cmd.Flags().Changed("attribute") {
		fmt.Fprintf(cmd.OutOrStdout(), "Attributes default to %s.\n", strings.Join(cfg.Attributes, ", "))
		attrs, err := prompt.askList(ctx, "Attribute")
		if err != nil {
			return fmt.Errorf("read attributes: %w", err)
		}
		if len(attrs) > 0 {
			cfg.Attributes = attrs
		}
	}
	return nil
}

// serveMetrics exposes m on addr until the returned function is called. An empty addr
// disables the server.
func serveMetrics(addr string, m *scraper.Metrics) func() {
	if addr == "" || m == nil {
		return func() {}
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}
