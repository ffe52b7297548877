package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/fundwatch/internal/cli"
	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/feeds"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the pipeline repeatedly on a cron schedule",
		Long: `Run the pipeline at every time matched by a cron expression until
interrupted. A failed run is logged and the schedule continues, except
for missing or invalid configuration, which stops the watch.`,
		RunE: runWatch,
	}

	cmd.Flags().String("cron", "0 */6 * * *", "Cron expression (5 fields, or @hourly, @daily)")
	cmd.Flags().Bool("now", false, "Run once immediately before waiting for the schedule")
	cmd.Flags().Bool("skip-search", false, "Skip the news-search queries")

	_ = viper.BindPFlag("watch.cron", cmd.Flags().Lookup("cron"))
	_ = viper.BindPFlag("watch.now", cmd.Flags().Lookup("now"))
	_ = viper.BindPFlag("watch.skip_search", cmd.Flags().Lookup("skip-search"))

	return cmd
}

func parseSchedule(spec string) (*cronexpr.Expression, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: cron expression %q: %w", common.ErrInvalidConfig, spec, err)
	}
	if expr.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("%w: cron expression %q never fires", common.ErrInvalidConfig, spec)
	}
	return expr, nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	spec := viper.GetString("watch.cron")
	expr, err := parseSchedule(spec)
	if err != nil {
		return err
	}

	opts := engineOptions()
	opts.SkipSearch = viper.GetBool("watch.skip_search")

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx, stop := handler.HandleInterrupts(cmd.Context(), "Watch stopped. A run in progress was not saved.")
	defer stop()

	out := cmd.OutOrStdout()
	runNow := viper.GetBool("watch.now")
	for {
		if !runNow {
			next := expr.Next(time.Now())
			slog.Info("Next run scheduled", "at", next, "cron", spec)
			fmt.Fprintln(out, cli.FormatInfo("Next run at "+next.Local().Format("2006-01-02 15:04 MST")))
			if err := feeds.Wait(ctx, time.Until(next)); err != nil {
				return nil
			}
		}
		runNow = false

		report, err := runOnce(ctx, opts)
		if ctx.Err() != nil {
			return nil
		}
		if fatalRunError(err) {
			return err
		}
		if err != nil {
			slog.Error("Scheduled run failed", "error", err)
			fmt.Fprintln(out, cli.FormatError("Run failed: "+err.Error()))
			continue
		}
		if err := cli.RunSummary(out, report); err != nil {
			return err
		}
	}
}

// fatalRunError reports whether err cannot clear up by the next scheduled run.
func fatalRunError(err error) bool {
	return errors.Is(err, common.ErrMissingConfig) || errors.Is(err, common.ErrInvalidConfig)
}
