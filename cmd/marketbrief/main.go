package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deusflow/marketbrief/internal/brief"
	"github.com/deusflow/marketbrief/internal/config"
	"github.com/deusflow/marketbrief/internal/feed"
	"github.com/deusflow/marketbrief/internal/gemini"
	"github.com/deusflow/marketbrief/internal/logger"
	"github.com/deusflow/marketbrief/internal/retry"
	"github.com/deusflow/marketbrief/internal/scraper"
	"github.com/deusflow/marketbrief/internal/store"
	"github.com/deusflow/marketbrief/internal/telegram"
)

var cfgPath string

func main() {
	logger.Init()

	root := &cobra.Command{
		Use:           "marketbrief",
		Short:         "Daily finance and geopolitics brief generator",
		Long:          "marketbrief ingests RSS feeds, dedupes and persists items, clusters and ranks recent news and writes a markdown daily brief.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yaml", "path to the YAML config file")
	root.AddCommand(newRunCmd(), newIngestCmd(), newServeCmd())

	ctx, stop := signalContext()
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline once: ingest, cluster, rank, draft, render",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, cleanup, err := buildPipeline(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := p.Run(ctx)
			if err != nil {
				return err
			}
			if res.StubWritten {
				fmt.Fprintf(cmd.OutOrStdout(), "stub brief written: %s\n", res.BriefPath)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "brief written: %s (run %s, %d new records)\n",
				res.BriefPath, res.RunID, res.Ingest.Inserted)
			return nil
		},
	}
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch, normalize and persist all configured feeds without drafting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, cleanup, err := buildPipeline(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := p.Ingest(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d new records (%d entries seen, %d duplicates, %d malformed)\n",
				stats.Inserted, stats.TotalFetched, stats.Duplicates, stats.Skipped)
			return nil
		},
	}
}

// buildPipeline wires the collaborators. withLLM controls whether the Gemini
// client is constructed, so ingest-only runs work without a credential.
func buildPipeline(ctx context.Context, cfg *config.Config, withLLM bool) (*brief.Pipeline, func(), error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	articles := scraper.New(cfg.ArticleTimeout, cfg.InsecureSkipTLS)
	normalizer := feed.NewNormalizer(cfg.FeedTimeout, articles)

	var (
		clusterer brief.Clusterer
		drafter   brief.Drafter
	)
	cleanup := func() { st.Close() }
	if withLLM {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMTimeout, retry.Config{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       cfg.RetryDelay(),
			Backoff:     true,
		})
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		clusterer, drafter = client, client
		cleanup = func() {
			client.Close()
			st.Close()
		}
	}

	var notifier brief.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifier = telegram.New(cfg.TelegramToken, cfg.TelegramChatID)
	}

	p, err := brief.New(cfg, st, normalizer, clusterer, drafter, notifier)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
