package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/fundwatch/internal/dedupe"
	"github.com/Veraticus/fundwatch/internal/engine"
	"github.com/Veraticus/fundwatch/internal/feeds"
	"github.com/Veraticus/fundwatch/internal/health"
	"github.com/Veraticus/fundwatch/internal/model"
	"github.com/Veraticus/fundwatch/internal/normalize"
	"github.com/Veraticus/fundwatch/internal/storage"
)

const maxErrorWidth = 48

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Headers(headers...)
}

// RunSummary writes the end-of-run report.
func RunSummary(w io.Writer, r *engine.Report) error {
	title := "Run complete"
	if r.DryRun {
		title = "Dry run complete (nothing written)"
	}

	lines := []string{
		fmt.Sprintf("Fetched:     %d articles from %d sources", r.Fetched, len(r.Outcomes)),
		fmt.Sprintf("Pre-filter:  %d kept, %d excluded, %d without signal",
			r.Prefilter.Kept, r.Prefilter.Excluded, r.Prefilter.NoSignal),
		fmt.Sprintf("Model:       %d confirmed, %d extracted, %d from ledger", r.Confirmed, r.Extracted, r.Cached),
		fmt.Sprintf("Merge:       %d added, %d updated, %d duplicates in batch",
			r.Merge.Added, r.Merge.Updated, len(r.Duplicates)),
	}
	if r.CoveredChanged > 0 {
		lines = append(lines, fmt.Sprintf("Coverage:    %d funds newly marked covered", r.CoveredChanged))
	}
	if r.Directory != nil {
		s := r.Directory.Stats
		lines = append(lines, fmt.Sprintf("Directory:   %d funds, %s reported AUM, %d uncovered",
			s.TotalFunds, normalize.FormatUSD(s.TotalAUMUSDMillions), s.UncoveredFunds))
	}
	lines = append(lines, SubtleStyle.Render(fmt.Sprintf("run %s in %s", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))))

	var b strings.Builder
	b.WriteString(RenderBox(title, strings.Join(lines, "\n")))
	b.WriteString("\n")

	for _, name := range r.Skipped {
		b.WriteString(FormatInfo("Skipped disabled source " + name))
		b.WriteString("\n")
	}
	for _, warning := range r.Warnings {
		b.WriteString(FormatWarning(warning.Name + ": " + warning.Reason))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// HealthReport writes one row per tracked source followed by any warnings.
func HealthReport(w io.Writer, records []model.FeedHealth, warnings []health.Warning, now time.Time) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No sources have been fetched yet."))
		return err
	}

	t := newTable("Source", "Status", "Errors", "Last success", "Articles", "Last error")
	for _, r := range records {
		status := SuccessStyle.Render("enabled")
		if !r.Enabled {
			status = ErrorStyle.Render("disabled")
		}
		t.Row(
			r.Name,
			status,
			strconv.Itoa(r.ErrorCount),
			ago(now, r.LastSuccess),
			strconv.Itoa(r.LastArticleCount),
			feeds.Truncate(r.LastError, maxErrorWidth),
		)
	}

	var b strings.Builder
	b.WriteString(FormatTitle("Source health"))
	b.WriteString("\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	for _, warning := range warnings {
		b.WriteString(FormatWarning(warning.Name + ": " + warning.Reason))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// CandidatesReport lists uncovered funds in the order given.
func CandidatesReport(w io.Writer, funds []model.Fund, windowDays int) error {
	if len(funds) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo(fmt.Sprintf("No uncovered funds announced in the last %d days.", windowDays)))
		return err
	}

	t := newTable("Announced", "Fund", "Firm", "Amount", "Category", "Stage")
	for _, f := range funds {
		t.Row(f.AnnouncementDate, f.FundName, f.FirmName, amount(f.ExtractedFund), string(f.Category), string(f.Stage))
	}

	title := FormatTitle(fmt.Sprintf("%d coverage candidates (last %d days)", len(funds), windowDays))
	_, err := fmt.Fprintf(w, "%s\n%s\n", title, t.String())
	return err
}

// ReviewReport lists fund pairs flagged for manual duplicate review.
func ReviewReport(w io.Writer, pairs []dedupe.ReviewPair) error {
	if len(pairs) == 0 {
		_, err := fmt.Fprintln(w, FormatSuccess("No likely duplicates found."))
		return err
	}

	t := newTable("Fund A", "Fund B", "Firm", "Name", "Signals")
	for _, p := range pairs {
		t.Row(
			p.AName,
			p.BName,
			strconv.FormatFloat(p.FirmSimilarity, 'f', 2, 64),
			strconv.FormatFloat(p.NameSimilarity, 'f', 2, 64),
			strings.Join(p.Signals, ", "),
		)
	}

	title := FormatTitle(fmt.Sprintf("%d pairs to review", len(pairs)))
	_, err := fmt.Fprintf(w, "%s\n%s\n", title, t.String())
	return err
}

// RunsReport lists recorded runs, newest first.
func RunsReport(w io.Writer, runs []storage.Run) error {
	if len(runs) == 0 {
		return nil
	}

	t := newTable("Started", "Duration", "Fetched", "Kept", "Confirmed", "Extracted", "Added", "Updated")
	for _, r := range runs {
		t.Row(
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Prefiltered),
			strconv.Itoa(r.Confirmed),
			strconv.Itoa(r.Extracted),
			strconv.Itoa(r.Added),
			strconv.Itoa(r.Updated),
		)
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n", FormatTitle("Recent runs"), t.String())
	return err
}

func amount(f model.ExtractedFund) string {
	if f.AmountUSDMillions == nil {
		return "undisclosed"
	}
	return normalize.FormatUSD(*f.AmountUSDMillions)
}

func ago(now time.Time, t *time.Time) string {
	if t == nil {
		return "never"
	}
	d := now.Sub(*t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
