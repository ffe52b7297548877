package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fundwatch/internal/dedupe"
	"github.com/Veraticus/fundwatch/internal/directory"
	"github.com/Veraticus/fundwatch/internal/engine"
	"github.com/Veraticus/fundwatch/internal/feeds"
	"github.com/Veraticus/fundwatch/internal/health"
	"github.com/Veraticus/fundwatch/internal/model"
	"github.com/Veraticus/fundwatch/internal/prefilter"
	"github.com/Veraticus/fundwatch/internal/storage"
)

var reportNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func millions(v float64) *float64 {
	return &v
}

func TestRunSummary(t *testing.T) {
	dir := &model.FundDirectory{Funds: []model.Fund{
		{ExtractedFund: model.ExtractedFund{FundName: "Acme Capital Fund III", AmountUSDMillions: millions(2500)}},
	}}
	directory.RecomputeStats(dir)

	report := &engine.Report{
		RunID:      "run-1",
		StartedAt:  reportNow,
		FinishedAt: reportNow.Add(3 * time.Second),
		Directory:  dir,
		Outcomes:   []feeds.Outcome{{Success: true}, {Err: errors.New("boom")}},
		Skipped:    []string{"wire"},
		Warnings:   []health.Warning{{Name: "deals", Reason: "never fetched successfully"}},
		Prefilter:  prefilter.Stats{Kept: 4, Excluded: 2, NoSignal: 9},
		Merge:      directory.MergeResult{Added: 1},
		Fetched:    15,
		Confirmed:  2,
		Extracted:  1,
		DryRun:     true,
	}

	var out bytes.Buffer
	require.NoError(t, RunSummary(&out, report))

	text := out.String()
	assert.Contains(t, text, "Dry run complete")
	assert.Contains(t, text, "15 articles from 2 sources")
	assert.Contains(t, text, "4 kept, 2 excluded, 9 without signal")
	assert.Contains(t, text, "1 added, 0 updated")
	assert.Contains(t, text, "$2.5B")
	assert.Contains(t, text, "Skipped disabled source wire")
	assert.Contains(t, text, "deals: never fetched successfully")
}

func TestHealthReport(t *testing.T) {
	lastSuccess := reportNow.Add(-3 * time.Hour)
	records := []model.FeedHealth{
		{Name: "deals", Enabled: true, LastSuccess: &lastSuccess, LastArticleCount: 12},
		{Name: "wire", Enabled: false, ErrorCount: 5, LastError: "status 503"},
	}

	var out bytes.Buffer
	require.NoError(t, HealthReport(&out, records, []health.Warning{{Name: "wire", Reason: "disabled"}}, reportNow))

	text := out.String()
	assert.Contains(t, text, "deals")
	assert.Contains(t, text, "3h ago")
	assert.Contains(t, text, "never")
	assert.Contains(t, text, "disabled")
	assert.Contains(t, text, "status 503")

	out.Reset()
	require.NoError(t, HealthReport(&out, nil, nil, reportNow))
	assert.Contains(t, out.String(), "No sources")
}

func TestCandidatesReport(t *testing.T) {
	funds := []model.Fund{
		{ExtractedFund: model.ExtractedFund{
			FundName: "Acme Capital Fund III", FirmName: "Acme Capital", AmountUSDMillions: millions(500),
			Category: model.CategoryVentureCapital, Stage: model.StageFinalClose, AnnouncementDate: "2025-01-08",
		}},
		{ExtractedFund: model.ExtractedFund{FundName: "Zenith Growth Fund", FirmName: "Zenith", AnnouncementDate: "2025-01-09"}},
	}

	var out bytes.Buffer
	require.NoError(t, CandidatesReport(&out, funds, 7))

	text := out.String()
	assert.Contains(t, text, "2 coverage candidates (last 7 days)")
	assert.Contains(t, text, "$500M")
	assert.Contains(t, text, "undisclosed")
	assert.Contains(t, text, "Venture Capital")

	out.Reset()
	require.NoError(t, CandidatesReport(&out, nil, 14))
	assert.Contains(t, out.String(), "last 14 days")
}

func TestReviewReport(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ReviewReport(&out, []dedupe.ReviewPair{{
		AName: "Acme Fund III", BName: "Acme Capital Fund 3",
		FirmSimilarity: 0.91, NameSimilarity: 0.7, Signals: []string{"amount", "category", "date"},
	}}))

	text := out.String()
	assert.Contains(t, text, "1 pairs to review")
	assert.Contains(t, text, "0.91")
	assert.Contains(t, text, "amount, category, date")

	out.Reset()
	require.NoError(t, ReviewReport(&out, nil))
	assert.Contains(t, out.String(), "No likely duplicates")
}

func TestRunsReport(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, RunsReport(&out, nil))
	assert.Empty(t, out.String())

	require.NoError(t, RunsReport(&out, []storage.Run{{
		ID: "a", StartedAt: reportNow, FinishedAt: reportNow.Add(90 * time.Second),
		Fetched: 120, Prefiltered: 14, Confirmed: 6, Extracted: 5, Added: 3, Updated: 1,
	}}))
	assert.Contains(t, out.String(), "Recent runs")
	assert.Contains(t, out.String(), "1m30s")
	assert.Contains(t, out.String(), "120")
}

func TestAgo(t *testing.T) {
	at := func(d time.Duration) *time.Time {
		v := reportNow.Add(-d)
		return &v
	}
	assert.Equal(t, "never", ago(reportNow, nil))
	assert.Equal(t, "just now", ago(reportNow, at(10*time.Second)))
	assert.Equal(t, "5m ago", ago(reportNow, at(5*time.Minute)))
	assert.Equal(t, "30h ago", ago(reportNow, at(30*time.Hour)))
	assert.Equal(t, "3d ago", ago(reportNow, at(72*time.Hour)))
}
