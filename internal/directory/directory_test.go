package directory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/config"
	"github.com/Veraticus/fundwatch/internal/dedupe"
	"github.com/Veraticus/fundwatch/internal/model"
)

var runTime = time.Date(2025, 1, 12, 8, 0, 0, 0, time.UTC)

func newMerger() *Merger {
	return NewMerger(dedupe.New(dedupe.DefaultConfig(), config.DefaultTables()), nil)
}

func usd(v float64) *float64 {
	return &v
}

func extracted(name, firm string, amount *float64, date, url string, category model.Category) model.ExtractedFund {
	return model.ExtractedFund{
		FundName:          name,
		FirmName:          firm,
		AmountUSDMillions: amount,
		Amount:            "reported",
		AnnouncementDate:  date,
		SourceURL:         url,
		SourceName:        "Wire",
		SourceTitle:       name + " closes",
		Category:          category,
		Stage:             model.StageFinalClose,
	}
}

func emptyDirectory() *model.FundDirectory {
	return &model.FundDirectory{Funds: []model.Fund{}, FeedHealth: []model.FeedHealth{}}
}

func TestMerge_AcmeReportedTwice(t *testing.T) {
	m := newMerger()
	dir := emptyDirectory()

	result := m.Merge(dir, []model.ExtractedFund{
		extracted("Acme Capital Fund III", "Acme Capital", usd(500), "2025-01-07", "https://a.example.com/1", model.CategoryPrivateEquity),
		extracted("Acme Fund III", "Acme", usd(505), "2025-01-10", "https://b.example.com/2", model.CategoryPrivateEquity),
	}, runTime)

	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, dir.Funds, 1)

	fund := dir.Funds[0]
	assert.Equal(t, "acme-3", fund.DedupeKey)
	assert.Equal(t, "acme-capital", fund.FirmSlug)
	assert.Equal(t, "2025-01-10", fund.AnnouncementDate)
	assert.InDelta(t, 505, *fund.AmountUSDMillions, 0.001)
	require.Len(t, fund.Articles, 2)
	assert.Equal(t, "https://a.example.com/1", fund.Articles[0].URL)
	assert.Equal(t, "https://b.example.com/2", fund.Articles[1].URL)
	assert.Equal(t, runTime.Format(time.RFC3339), fund.DateAdded)
}

func TestMerge_OlderDateLeavesFundUntouched(t *testing.T) {
	m := newMerger()
	dir := emptyDirectory()

	m.Merge(dir, []model.ExtractedFund{
		extracted("Acme Fund III", "Acme", usd(505), "2025-01-10", "https://b.example.com/2", model.CategoryPrivateEquity),
	}, runTime)
	result := m.Merge(dir, []model.ExtractedFund{
		extracted("Acme Fund III", "Acme", usd(400), "2025-01-10", "https://b.example.com/2", model.CategoryPrivateEquity),
		extracted("Acme Fund III", "Acme", usd(300), "2025-01-02", "https://b.example.com/2", model.CategoryPrivateEquity),
	}, runTime)

	assert.Equal(t, 2, result.Unchanged)
	require.Len(t, dir.Funds, 1)
	assert.InDelta(t, 505, *dir.Funds[0].AmountUSDMillions, 0.001)
	assert.Len(t, dir.Funds[0].Articles, 1)
}

func TestMerge_NewcoIncrementsTotals(t *testing.T) {
	m := newMerger()
	dir := emptyDirectory()
	m.Merge(dir, []model.ExtractedFund{
		extracted("Acme Fund III", "Acme", usd(500), "2025-01-07", "https://a.example.com/1", model.CategoryPrivateEquity),
	}, runTime)
	before := dir.Stats

	result := m.Merge(dir, []model.ExtractedFund{
		extracted("Newco Seed Fund", "Newco Partners", nil, "2025-01-11", "https://n.example.com/1", model.CategoryVentureCapital),
	}, runTime)

	assert.Equal(t, 1, result.Added)
	assert.Equal(t, []string{"newco"}, result.AddedKeys)
	assert.Equal(t, before.TotalFunds+1, dir.Stats.TotalFunds)
	assert.Equal(t, before.ByCategory[model.CategoryVentureCapital]+1, dir.Stats.ByCategory[model.CategoryVentureCapital])
	assert.Equal(t, before.ByCategory[model.CategoryPrivateEquity], dir.Stats.ByCategory[model.CategoryPrivateEquity])
}

func TestMerge_OlderReportAddsArticleOnly(t *testing.T) {
	m := newMerger()
	dir := emptyDirectory()
	m.Merge(dir, []model.ExtractedFund{
		extracted("Acme Fund III", "Acme", usd(505), "2025-01-10", "https://b.example.com/2", model.CategoryPrivateEquity),
	}, runTime)

	older := extracted("Acme Capital Fund III", "Acme Capital", usd(500), "2025-01-07", "https://a.example.com/1", model.CategoryPrivateEquity)
	older.SourceName = "Other Wire"
	sameDay := extracted("Acme Fund III", "Acme", usd(505), "2025-01-10", "https://c.example.com/9", model.CategoryPrivateEquity)

	result := m.Merge(dir, []model.ExtractedFund{older, sameDay}, runTime)

	assert.Zero(t, result.Added)
	assert.Equal(t, 2, result.Updated)
	require.Len(t, dir.Funds, 1)
	got := dir.Funds[0]
	assert.Equal(t, "2025-01-10", got.AnnouncementDate)
	assert.Equal(t, "https://b.example.com/2", got.SourceURL)
	assert.InDelta(t, 505, *got.AmountUSDMillions, 1e-9)
	require.Len(t, got.Articles, 3)
	assert.Equal(t, "https://a.example.com/1", got.Articles[1].URL)
	assert.Equal(t, "Other Wire", got.Articles[1].Source)
	assert.Equal(t, "https://c.example.com/9", got.Articles[2].URL)

	again := m.Merge(dir, []model.ExtractedFund{older, sameDay}, runTime)
	assert.Zero(t, again.Updated)
	assert.Equal(t, 2, again.Unchanged)
	assert.Len(t, dir.Funds[0].Articles, 3)
}

func TestMerge_IdempotentAndDistinctKeys(t *testing.T) {
	m := newMerger()
	dir := emptyDirectory()
	batch := []model.ExtractedFund{
		extracted("Acme Capital Fund III", "Acme Capital", usd(500), "2025-01-07", "https://a.example.com/1", model.CategoryPrivateEquity),
		extracted("Acme Fund III", "Acme", usd(505), "2025-01-10", "https://b.example.com/2", model.CategoryPrivateEquity),
		extracted("Vertex Fund IV", "Vertex Partners", usd(900), "2025-01-09", "https://v.example.com/3", model.CategoryPrivateEquity),
		extracted("Zenith Credit Fund II", "Zenith Lending", usd(250), "2025-01-08", "https://z.example.com/1", model.CategoryPrivateCredit),
		extracted("Orbit Ventures Fund I", "Orbit Ventures", nil, "2025-01-08", "https://o.example.com/1", model.CategoryVentureCapital),
	}

	m.Merge(dir, batch, runTime)
	first, err := json.Marshal(dir)
	require.NoError(t, err)

	result := m.Merge(dir, batch, runTime.Add(24*time.Hour))
	second, err := json.Marshal(dir)
	require.NoError(t, err)

	assert.Zero(t, result.Added)
	assert.Zero(t, result.Updated)
	assert.JSONEq(t, string(first), string(second))

	seen := make(map[string]bool)
	for _, f := range dir.Funds {
		assert.False(t, seen[f.DedupeKey], "duplicate key %s", f.DedupeKey)
		seen[f.DedupeKey] = true
	}
	assert.Len(t, dir.Funds, 4)
}

func TestSort(t *testing.T) {
	funds := []model.Fund{
		{ExtractedFund: model.ExtractedFund{FundName: "B", AnnouncementDate: "2025-01-05"}},
		{ExtractedFund: model.ExtractedFund{FundName: "A", AnnouncementDate: "2025-01-05"}},
		{ExtractedFund: model.ExtractedFund{FundName: "C", AnnouncementDate: "2025-01-05", AmountUSDMillions: usd(10)}},
		{ExtractedFund: model.ExtractedFund{FundName: "D", AnnouncementDate: "2025-01-05", AmountUSDMillions: usd(100)}},
		{ExtractedFund: model.ExtractedFund{FundName: "E", AnnouncementDate: "2025-01-09"}},
	}

	Sort(funds)

	names := make([]string, len(funds))
	for i, f := range funds {
		names[i] = f.FundName
	}
	assert.Equal(t, []string{"E", "D", "C", "A", "B"}, names)
}

func TestRecomputeStats(t *testing.T) {
	dir := &model.FundDirectory{
		Funds: []model.Fund{
			{ExtractedFund: model.ExtractedFund{Category: model.CategoryPrivateEquity, Stage: model.StageFinalClose, AmountUSDMillions: usd(100.5)}, IsCovered: true},
			{ExtractedFund: model.ExtractedFund{Category: model.CategoryRealEstate, Stage: model.StageLaunch, AmountUSDMillions: usd(200.25)}},
			{ExtractedFund: model.ExtractedFund{Category: model.CategoryRealEstate, Stage: model.StageOther}},
		},
		FeedHealth: []model.FeedHealth{{Name: "a", Enabled: true}, {Name: "b", Enabled: false}},
	}

	RecomputeStats(dir)

	assert.Equal(t, 3, dir.Stats.TotalFunds)
	assert.InDelta(t, 300.75, dir.Stats.TotalAUMUSDMillions, 0.001)
	assert.Equal(t, 1, dir.Stats.CoveredFunds)
	assert.Equal(t, 2, dir.Stats.UncoveredFunds)
	assert.Equal(t, 2, dir.Stats.FeedsTotal)
	assert.Equal(t, 1, dir.Stats.FeedsEnabled)
	assert.Equal(t, 1, dir.Stats.FeedsDisabled)
	assert.Equal(t, 2, dir.Stats.ByCategory[model.CategoryRealEstate])
	assert.Equal(t, 0, dir.Stats.ByCategory[model.CategoryHedgeFund])

	sumCategories, sumStages := 0, 0
	for _, n := range dir.Stats.ByCategory {
		sumCategories += n
	}
	for _, n := range dir.Stats.ByStage {
		sumStages += n
	}
	assert.Equal(t, dir.Stats.TotalFunds, sumCategories)
	assert.Equal(t, dir.Stats.TotalFunds, sumStages)
}

func TestStore(t *testing.T) {
	t.Run("missing file yields empty directory", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "funds.json"))
		dir, err := store.Load()
		require.NoError(t, err)
		assert.Empty(t, dir.Funds)
		assert.NotNil(t, dir.Funds)
		assert.Equal(t, 0, dir.Stats.TotalFunds)
	})

	t.Run("save then load", func(t *testing.T) {
		root := t.TempDir()
		store := NewStore(filepath.Join(root, "data", "funds.json"))
		dir := emptyDirectory()
		newMerger().Merge(dir, []model.ExtractedFund{
			extracted("Acme Fund III", "Acme", usd(500), "2025-01-07", "https://a.example.com/1", model.CategoryPrivateEquity),
		}, runTime)

		require.NoError(t, store.Save(dir, runTime))

		loaded, err := store.Load()
		require.NoError(t, err)
		assert.True(t, runTime.Equal(loaded.GeneratedAt))
		require.Len(t, loaded.Funds, 1)
		assert.Equal(t, "acme-3", loaded.Funds[0].DedupeKey)
		assert.Equal(t, 1, loaded.Stats.TotalFunds)

		entries, err := os.ReadDir(filepath.Join(root, "data"))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files must not be left behind")
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "funds.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		_, err := NewStore(path).Load()
		require.ErrorIs(t, err, common.ErrCorruptDocument)
	})
}
