package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/fundwatch/internal/cli"
	"github.com/Veraticus/fundwatch/internal/config"
	"github.com/Veraticus/fundwatch/internal/coverage"
	"github.com/Veraticus/fundwatch/internal/directory"
	"github.com/Veraticus/fundwatch/internal/health"
	"github.com/Veraticus/fundwatch/internal/model"
)

func loadDirectory() (*directory.Store, *model.FundDirectory, error) {
	store := directory.NewStore(directoryPath())
	dir, err := store.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load directory: %w", err)
	}
	return store, dir, nil
}

func candidatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List recent funds not yet covered",
		Long: `List uncovered funds announced within the window, largest first.
With --mark-covered the listed funds are appended to the covered ledger and the
directory is re-synced.`,
		RunE: runCandidates,
	}

	cmd.Flags().Int("days", 7, "Look-back window in days")
	cmd.Flags().Bool("mark-covered", false, "Record the listed funds as covered today")

	_ = viper.BindPFlag("candidates.days", cmd.Flags().Lookup("days"))
	_ = viper.BindPFlag("candidates.mark_covered", cmd.Flags().Lookup("mark-covered"))

	return cmd
}

func runCandidates(cmd *cobra.Command, _ []string) error {
	store, dir, err := loadDirectory()
	if err != nil {
		return err
	}

	now := time.Now()
	days := viper.GetInt("candidates.days")
	funds := coverage.Candidates(dir, now, days)
	if err := cli.CandidatesReport(cmd.OutOrStdout(), funds, days); err != nil {
		return err
	}

	if !viper.GetBool("candidates.mark_covered") || len(funds) == 0 {
		return nil
	}

	syncer, err := newSyncer()
	if err != nil {
		return err
	}
	added, err := markCovered(syncer, store, dir, funds, now)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Marked %d funds covered", added)))
	return err
}

// markCovered appends funds to the covered ledger dated today, then syncs
// and saves the directory.
func markCovered(syncer *coverage.Syncer, store *directory.Store, dir *model.FundDirectory, funds []model.Fund, now time.Time) (int, error) {
	path := coveredPath()
	ledger, err := coverage.LoadLedger(path)
	if err != nil {
		return 0, err
	}

	added := syncer.MarkCovered(ledger, funds, now.Format(model.DateLayout))
	if err := coverage.SaveLedger(path, ledger, now); err != nil {
		return 0, err
	}

	syncer.Sync(dir, ledger)
	if err := store.Save(dir, now); err != nil {
		return 0, err
	}
	return added, nil
}

func newSyncer() (*coverage.Syncer, error) {
	deduper, err := newDeduper(config.DefaultTables())
	if err != nil {
		return nil, err
	}
	return coverage.NewSyncer(deduper, slog.Default()), nil
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Mark directory funds that appear in the covered ledger",
		RunE:  runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	store, dir, err := loadDirectory()
	if err != nil {
		return err
	}
	syncer, err := newSyncer()
	if err != nil {
		return err
	}

	changed, err := syncCovered(syncer, store, dir, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%d funds newly marked covered", changed)))
	return err
}

// syncCovered applies the covered ledger and saves the directory when
// anything changed.
func syncCovered(syncer *coverage.Syncer, store *directory.Store, dir *model.FundDirectory, now time.Time) (int, error) {
	ledger, err := coverage.LoadLedger(coveredPath())
	if err != nil {
		return 0, err
	}
	changed := syncer.Sync(dir, ledger)
	if changed == 0 {
		return 0, nil
	}
	return changed, store.Save(dir, now)
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show per-source fetch health and recent runs",
		RunE:  runHealth,
	}
	cmd.Flags().Int("runs", 10, "Number of recent runs to show")
	_ = viper.BindPFlag("report.runs", cmd.Flags().Lookup("runs"))
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	_, dir, err := loadDirectory()
	if err != nil {
		return err
	}
	cfg, err := healthConfig()
	if err != nil {
		return err
	}

	now := time.Now()
	tracker := health.NewTracker(dir.FeedHealth, cfg, health.WithClock(func() time.Time { return now }))
	if err := cli.HealthReport(cmd.OutOrStdout(), tracker.Snapshot(), tracker.Warnings(), now); err != nil {
		return err
	}

	path := ledgerPath()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil //nolint:nilerr // no ledger yet
	}

	ledger, err := openLedger(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	counts, err := ledger.Counts(cmd.Context())
	if err != nil {
		return err
	}
	runs, err := ledger.RecentRuns(cmd.Context(), viper.GetInt("report.runs"))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("Ledger: %d articles judged, %d confirmed, %d extracted",
		counts.Articles, counts.Confirmed, counts.Funds)))
	return cli.RunsReport(cmd.OutOrStdout(), runs)
}

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "List fund pairs that may be duplicates",
		Long: `List directory funds that resemble each other on several signals but
were not merged automatically. Nothing is changed.`,
		RunE: runReview,
	}
}

func runReview(cmd *cobra.Command, _ []string) error {
	_, dir, err := loadDirectory()
	if err != nil {
		return err
	}
	deduper, err := newDeduper(config.DefaultTables())
	if err != nil {
		return err
	}
	return cli.ReviewReport(cmd.OutOrStdout(), deduper.Review(dir.Funds))
}
