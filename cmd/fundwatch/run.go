package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/fundwatch/internal/cli"
	"github.com/Veraticus/fundwatch/internal/engine"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch sources, classify articles and update the fund directory",
		Long: `Run the discovery pipeline once: fetch every enabled feed and the search
queries, drop obviously irrelevant articles, ask the language model which of
the rest announce a fund, extract those funds and merge them into the
directory. The directory is written only when the run completes.`,
		RunE: runPipeline,
	}

	cmd.Flags().Bool("skip-search", false, "Skip the news-search queries")
	cmd.Flags().Bool("skip-api", false, "Stop after the pre-filter without calling the language model")
	cmd.Flags().Bool("dry-run", false, "Run every stage but write nothing")
	cmd.Flags().Int("concurrency", 1, "Concurrent language-model calls")
	cmd.Flags().CountP("verbose", "v", "Increase log verbosity (-v info, -vv debug)")

	_ = viper.BindPFlag("run.skip_search", cmd.Flags().Lookup("skip-search"))
	_ = viper.BindPFlag("run.skip_api", cmd.Flags().Lookup("skip-api"))
	_ = viper.BindPFlag("run.dry_run", cmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("llm.concurrency", cmd.Flags().Lookup("concurrency"))

	return cmd
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	if err := applyVerbosity(cmd); err != nil {
		return err
	}

	opts := engineOptions()
	opts.SkipSearch = viper.GetBool("run.skip_search")
	opts.SkipAPI = viper.GetBool("run.skip_api")
	opts.DryRun = viper.GetBool("run.dry_run")
	opts.Progress = cmd.ErrOrStderr()

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx, stop := handler.HandleInterrupts(cmd.Context(), "The previous directory is unchanged.")
	defer stop()

	report, err := runOnce(ctx, opts)
	if err != nil {
		if handler.WasInterrupted() && errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return cli.RunSummary(cmd.OutOrStdout(), report)
}

func runOnce(ctx context.Context, opts engine.Options) (*engine.Report, error) {
	p, err := buildPipeline(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Close() }()

	report, err := p.engine.Run(ctx)
	if err != nil {
		return nil, err
	}
	p.prune(ctx, report.FinishedAt)
	return report, nil
}

// applyVerbosity raises the log level for each -v given.
func applyVerbosity(cmd *cobra.Command) error {
	count, err := cmd.Flags().GetCount("verbose")
	if err != nil || count == 0 {
		return nil //nolint:nilerr // flag not defined on this command
	}
	level := "info"
	if count > 1 {
		level = "debug"
	}
	return setupLogging(level)
}

// prune drops ledger entries untouched for longer than ledger.retention.
func (p *pipeline) prune(ctx context.Context, now time.Time) {
	retention := viper.GetDuration("ledger.retention")
	if p.ledger == nil || retention <= 0 {
		return
	}
	removed, err := p.ledger.Prune(ctx, now.Add(-retention))
	if err != nil {
		slog.Warn("Failed to prune article ledger", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Pruned article ledger", "removed", removed, "retention", retention)
	}
}
