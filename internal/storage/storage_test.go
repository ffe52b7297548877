package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/model"
)

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func createTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	require.NoError(t, ledger.Migrate(context.Background()))
	return ledger
}

func verdict(url string, fund bool, confidence float64) model.FilteredArticle {
	return model.FilteredArticle{
		RawArticle: model.RawArticle{URL: url, Title: "Title for " + url, SourceName: "PE Hub"},
		IsFundNews: fund,
		Confidence: confidence,
		Reason:     "because",
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	ledger := createTestLedger(t)

	version, err := ledger.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Re-running is a no-op.
	require.NoError(t, ledger.Migrate(ctx))
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	require.ErrorIs(t, err, ErrEmptyString)
}

func TestLedger_VerdictAndExtraction(t *testing.T) {
	ctx := context.Background()
	ledger := createTestLedger(t)

	_, err := ledger.Lookup(ctx, "https://example.com/a")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, ledger.RecordVerdict(ctx, verdict("https://example.com/a", true, 0.9), now))

	entry, err := ledger.Lookup(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, entry.IsFundNews)
	assert.InDelta(t, 0.9, entry.Confidence, 0.0001)
	assert.Equal(t, "PE Hub", entry.Source)
	assert.Equal(t, "because", entry.Reason)
	assert.False(t, entry.Extracted)
	assert.Nil(t, entry.Fund)
	assert.True(t, now.Equal(entry.FirstSeen))

	amount := 500.0
	fund := &model.ExtractedFund{
		FundName:          "Acme Capital Fund III",
		FirmName:          "Acme Capital",
		AmountUSDMillions: &amount,
		Category:          model.CategoryVentureCapital,
		Stage:             model.StageFinalClose,
		AnnouncementDate:  "2025-01-08",
	}
	later := now.Add(time.Hour)
	require.NoError(t, ledger.RecordExtraction(ctx, "https://example.com/a", fund, later))

	entry, err = ledger.Lookup(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, entry.Extracted)
	require.NotNil(t, entry.Fund)
	assert.Equal(t, *fund, *entry.Fund)
	assert.True(t, later.Equal(entry.UpdatedAt))
	assert.True(t, now.Equal(entry.FirstSeen))

	raw := model.RawArticle{URL: "https://example.com/a", Title: "fresh title"}
	v := entry.Verdict(raw)
	assert.Equal(t, raw, v.RawArticle)
	assert.True(t, v.IsFundNews)
}

func TestLedger_NoFundExtraction(t *testing.T) {
	ctx := context.Background()
	ledger := createTestLedger(t)

	require.NoError(t, ledger.RecordVerdict(ctx, verdict("https://example.com/b", true, 0.7), now))
	require.NoError(t, ledger.RecordExtraction(ctx, "https://example.com/b", nil, now))

	entry, err := ledger.Lookup(ctx, "https://example.com/b")
	require.NoError(t, err)
	assert.True(t, entry.Extracted)
	assert.Nil(t, entry.Fund)

	err = ledger.RecordExtraction(ctx, "https://example.com/missing", nil, now)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestLedger_VerdictUpsert(t *testing.T) {
	ctx := context.Background()
	ledger := createTestLedger(t)

	require.NoError(t, ledger.RecordVerdict(ctx, verdict("https://example.com/c", false, 0.2), now))
	require.NoError(t, ledger.RecordVerdict(ctx, verdict("https://example.com/c", true, 0.8), now.Add(time.Minute)))

	entry, err := ledger.Lookup(ctx, "https://example.com/c")
	require.NoError(t, err)
	assert.True(t, entry.IsFundNews)
	assert.True(t, now.Equal(entry.FirstSeen))
	assert.True(t, now.Add(time.Minute).Equal(entry.UpdatedAt))

	counts, err := ledger.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Articles: 1, Confirmed: 1}, counts)
}

func TestLedger_Prune(t *testing.T) {
	ctx := context.Background()
	ledger := createTestLedger(t)

	require.NoError(t, ledger.RecordVerdict(ctx, verdict("https://example.com/old", false, 0), now.AddDate(0, 0, -40)))
	require.NoError(t, ledger.RecordVerdict(ctx, verdict("https://example.com/new", true, 1), now))
	require.NoError(t, ledger.RecordExtraction(ctx, "https://example.com/new", &model.ExtractedFund{FundName: "F", FirmName: "G"}, now))

	removed, err := ledger.Prune(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	counts, err := ledger.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Articles: 1, Confirmed: 1, Funds: 1}, counts)
}

func TestLedger_Runs(t *testing.T) {
	ctx := context.Background()
	ledger := createTestLedger(t)

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		start := now.Add(time.Duration(i) * time.Hour)
		require.NoError(t, ledger.RecordRun(ctx, Run{
			ID:         id,
			StartedAt:  start,
			FinishedAt: start.Add(5 * time.Minute),
			Fetched:    100 + i,
			Added:      i,
			DryRun:     i == 1,
		}))
	}

	runs, err := ledger.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, 102, runs[0].Fetched)
	assert.Equal(t, 2, runs[0].Added)
	assert.Equal(t, "run-2", runs[1].ID)
	assert.True(t, runs[1].DryRun)
	assert.True(t, now.Add(time.Hour+5*time.Minute).Equal(runs[1].FinishedAt))

	require.ErrorIs(t, ledger.RecordRun(ctx, Run{}), ErrEmptyString)
}
