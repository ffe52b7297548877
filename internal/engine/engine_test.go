package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/config"
	"github.com/Veraticus/fundwatch/internal/coverage"
	"github.com/Veraticus/fundwatch/internal/dedupe"
	"github.com/Veraticus/fundwatch/internal/directory"
	"github.com/Veraticus/fundwatch/internal/feeds"
	"github.com/Veraticus/fundwatch/internal/model"
	"github.com/Veraticus/fundwatch/internal/prefilter"
	"github.com/Veraticus/fundwatch/internal/storage"
)

var runTime = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	articles map[string][]model.RawArticle
	failing  map[string]bool
	calls    []string
	mu       sync.Mutex
}

func (f *fakeFetcher) Fetch(_ context.Context, src feeds.Source) ([]model.RawArticle, feeds.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, src.Name)
	if f.failing[src.Name] {
		return nil, feeds.Outcome{Source: src, Err: errors.New("status 503")}
	}
	found := f.articles[src.Name]
	return found, feeds.Outcome{Source: src, Success: true, ArticleCount: len(found)}
}

type fakeSearcher struct {
	articles []model.RawArticle
	queries  []string
}

func (f *fakeSearcher) Fetch(_ context.Context, queries []string) ([]model.RawArticle, []feeds.Outcome) {
	f.queries = append(f.queries, queries...)
	outcomes := make([]feeds.Outcome, len(queries))
	for i, q := range queries {
		outcomes[i] = feeds.Outcome{Source: feeds.Source{Name: "search:" + q}, Success: true, ArticleCount: len(f.articles)}
	}
	return f.articles, outcomes
}

type fakeModel struct {
	funds     map[string]model.ExtractedFund
	rejected  map[string]bool
	filtered  []string
	extracted []string
	mu        sync.Mutex
}

func (m *fakeModel) Evaluate(_ context.Context, a model.RawArticle) (model.FilteredArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filtered = append(m.filtered, a.URL)
	if m.rejected[a.URL] {
		return model.FilteredArticle{RawArticle: a, IsFundNews: false, Confidence: 0.9, Reason: "not a fund"}, nil
	}
	return model.FilteredArticle{RawArticle: a, IsFundNews: true, Confidence: 0.9, Reason: "fund close"}, nil
}

func (m *fakeModel) TryExtract(_ context.Context, a model.RawArticle) (*model.ExtractedFund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extracted = append(m.extracted, a.URL)
	f, ok := m.funds[a.URL]
	if !ok {
		return nil, common.ErrMalformedReply
	}
	return &f, nil
}

func (m *fakeModel) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filtered), len(m.extracted)
}

func usd(v float64) *float64 {
	return &v
}

var (
	acmeArticle = model.RawArticle{
		Title: "Acme Capital closes Fund III at $500M", URL: "https://wire.example.com/acme",
		SourceName: "Wire", FeedName: "wire", Published: runTime.Add(-48 * time.Hour),
	}
	zenithArticle = model.RawArticle{
		Title: "Zenith update", Snippet: "Zenith holds first close on its growth fund", URL: "https://deals.example.com/zenith",
		SourceName: "Deals", FeedName: "deals", Published: runTime.Add(-24 * time.Hour),
	}
	startupArticle = model.RawArticle{
		Title: "Startup Foo raises $20M Series A round", URL: "https://wire.example.com/foo", FeedName: "wire",
	}
	orbitArticle = model.RawArticle{
		Title: "Orbit hits hard cap on debut vehicle", URL: "https://search.example.com/orbit", FeedName: "search:fund close",
	}
)

func fundFor(a model.RawArticle, name, firm string, amount *float64, category model.Category, stage model.Stage) model.ExtractedFund {
	return model.ExtractedFund{
		FundName:          name,
		FirmName:          firm,
		AmountUSDMillions: amount,
		Amount:            "reported",
		Category:          category,
		Stage:             stage,
		AnnouncementDate:  a.Published.Format(model.DateLayout),
		SourceURL:         a.URL,
		SourceName:        a.SourceName,
		SourceTitle:       a.Title,
	}
}

type fixture struct {
	fetcher  *fakeFetcher
	searcher *fakeSearcher
	model    *fakeModel
	deps     Deps
	dirPath  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tables := config.DefaultTables()
	pf, err := prefilter.New(tables, nil)
	require.NoError(t, err)
	d := dedupe.New(dedupe.DefaultConfig(), tables)

	fx := &fixture{
		fetcher: &fakeFetcher{articles: map[string][]model.RawArticle{
			"wire":  {acmeArticle, startupArticle},
			"deals": {zenithArticle, acmeArticle},
		}},
		searcher: &fakeSearcher{articles: []model.RawArticle{orbitArticle}},
		model: &fakeModel{funds: map[string]model.ExtractedFund{
			acmeArticle.URL:   fundFor(acmeArticle, "Acme Capital Fund III", "Acme Capital", usd(500), model.CategoryVentureCapital, model.StageFinalClose),
			zenithArticle.URL: fundFor(zenithArticle, "Zenith Growth Fund", "Zenith Partners", nil, model.CategoryPrivateEquity, model.StageFirstClose),
		}},
		dirPath: filepath.Join(t.TempDir(), "data", "funds.json"),
	}
	fx.deps = Deps{
		RSS:       fx.fetcher,
		Search:    fx.searcher,
		Filter:    fx.model,
		Extractor: fx.model,
		Prefilter: pf,
		Deduper:   d,
		Merger:    directory.NewMerger(d, nil),
		Store:     directory.NewStore(fx.dirPath),
		Syncer:    coverage.NewSyncer(d, nil),
		Now:       func() time.Time { return runTime },
		Feeds: []feeds.Source{
			{Name: "wire", URL: "https://wire.example.com/rss", Enabled: true},
			{Name: "deals", URL: "https://deals.example.com/rss", Enabled: true},
			{Name: "retired", URL: "https://old.example.com/rss", Enabled: false},
		},
		Queries: []string{"fund close"},
	}
	return fx
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.FeedDelay = 0
	return opts
}

func (fx *fixture) run(t *testing.T, opts Options) *Report {
	t.Helper()
	e, err := New(fx.deps, opts)
	require.NoError(t, err)
	report, err := e.Run(context.Background())
	require.NoError(t, err)
	return report
}

func TestNew_RequiresModelUnlessSkipped(t *testing.T) {
	fx := newFixture(t)
	fx.deps.Filter = nil
	fx.deps.Extractor = nil

	_, err := New(fx.deps, testOptions())
	require.ErrorIs(t, err, common.ErrMissingConfig)

	opts := testOptions()
	opts.SkipAPI = true
	_, err = New(fx.deps, opts)
	require.NoError(t, err)

	fx.deps.Store = nil
	_, err = New(fx.deps, opts)
	require.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestRun_EndToEnd(t *testing.T) {
	fx := newFixture(t)
	opts := testOptions()
	opts.Progress = io.Discard

	report := fx.run(t, opts)

	assert.Equal(t, []string{"wire", "deals"}, fx.fetcher.calls)
	assert.Equal(t, []string{"fund close"}, fx.searcher.queries)
	assert.Equal(t, 4, report.Fetched, "acme is fetched twice but counted once")
	assert.Equal(t, prefilter.Stats{Kept: 3, Excluded: 1}, report.Prefilter)
	assert.Equal(t, 3, report.Confirmed)
	assert.Equal(t, 2, report.Extracted)
	assert.Equal(t, 2, report.Merge.Added)
	assert.NotEmpty(t, report.RunID)

	filtered, extracted := fx.model.counts()
	assert.Equal(t, 3, filtered)
	assert.Equal(t, 3, extracted)

	saved, err := directory.NewStore(fx.dirPath).Load()
	require.NoError(t, err)
	require.Len(t, saved.Funds, 2)
	assert.Equal(t, "Zenith Growth Fund", saved.Funds[0].FundName, "newest announcement first")
	assert.Equal(t, "Acme Capital Fund III", saved.Funds[1].FundName)
	assert.Equal(t, 2, saved.Stats.TotalFunds)
	assert.Equal(t, 1, saved.Stats.ByCategory[model.CategoryVentureCapital])
	assert.True(t, runTime.Equal(saved.GeneratedAt))

	names := make([]string, 0, len(saved.FeedHealth))
	for _, h := range saved.FeedHealth {
		names = append(names, h.Name)
		assert.True(t, h.Enabled)
	}
	assert.Equal(t, []string{"deals", "search:fund close", "wire"}, names)
	assert.Equal(t, 3, saved.Stats.FeedsTotal)
}

func TestRun_IdempotentRerun(t *testing.T) {
	fx := newFixture(t)
	first := fx.run(t, testOptions())
	second := fx.run(t, testOptions())

	assert.Equal(t, 2, first.Merge.Added)
	assert.Zero(t, second.Merge.Added)
	assert.Zero(t, second.Merge.Updated)
	assert.Equal(t, 2, second.Directory.Stats.TotalFunds)
}

func TestRun_SkipSearchAndAPI(t *testing.T) {
	fx := newFixture(t)
	fx.deps.Filter = nil
	fx.deps.Extractor = nil
	opts := testOptions()
	opts.SkipAPI = true
	opts.SkipSearch = true

	report := fx.run(t, opts)

	assert.Empty(t, fx.searcher.queries)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 2, report.Prefilter.Kept)
	assert.Zero(t, report.Extracted)

	saved, err := directory.NewStore(fx.dirPath).Load()
	require.NoError(t, err)
	assert.Empty(t, saved.Funds)
	assert.Len(t, saved.FeedHealth, 2)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	fx := newFixture(t)
	ledger := openLedger(t)
	fx.deps.Ledger = ledger
	opts := testOptions()
	opts.DryRun = true
	opts.MetricsPath = filepath.Join(t.TempDir(), "fundwatch.prom")

	report := fx.run(t, opts)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Merge.Added)
	assert.Equal(t, 2, report.Directory.Stats.TotalFunds)

	_, err := os.Stat(fx.dirPath)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(opts.MetricsPath)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	counts, err := ledger.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Articles)
}

func openLedger(t *testing.T) *storage.Ledger {
	t.Helper()
	ledger, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	require.NoError(t, ledger.Migrate(context.Background()))
	return ledger
}

func TestRun_LedgerAvoidsRepeatCalls(t *testing.T) {
	fx := newFixture(t)
	ledger := openLedger(t)
	fx.deps.Ledger = ledger
	fx.model.rejected = map[string]bool{orbitArticle.URL: true}
	opts := testOptions()
	opts.MetricsPath = filepath.Join(t.TempDir(), "metrics", "fundwatch.prom")

	first := fx.run(t, opts)
	filtered, extracted := fx.model.counts()
	assert.Equal(t, 3, filtered)
	assert.Equal(t, 2, extracted)
	assert.Zero(t, first.Cached)

	fx.deps.Now = func() time.Time { return runTime.Add(time.Hour) }
	second := fx.run(t, opts)
	filtered, extracted = fx.model.counts()
	assert.Equal(t, 3, filtered, "verdicts come from the ledger")
	assert.Equal(t, 2, extracted, "extractions come from the ledger")
	assert.Equal(t, 3, second.Cached)
	assert.Equal(t, 2, second.Extracted)
	assert.Zero(t, second.Merge.Added)

	runs, err := ledger.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[1].Added)

	data, err := os.ReadFile(opts.MetricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `fundwatch_llm_calls_total{kind="filter",result="cached"} 3`)
}

func TestRun_FailedExtractionIsRetriedNextRun(t *testing.T) {
	fx := newFixture(t)
	fx.deps.Ledger = openLedger(t)

	fx.run(t, testOptions())
	filtered, extracted := fx.model.counts()
	assert.Equal(t, 3, filtered)
	assert.Equal(t, 3, extracted, "orbit extraction fails")

	report := fx.run(t, testOptions())
	filtered, extracted = fx.model.counts()
	assert.Equal(t, 3, filtered)
	assert.Equal(t, 4, extracted, "only the failed extraction is attempted again")
	assert.Equal(t, 2, report.Extracted)
}

func TestRun_DisabledSourceSkipped(t *testing.T) {
	fx := newFixture(t)
	disabledAt := runTime.Add(-time.Hour)
	require.NoError(t, directory.NewStore(fx.dirPath).Save(&model.FundDirectory{
		Funds: []model.Fund{},
		FeedHealth: []model.FeedHealth{
			{Name: "wire", Enabled: false, ErrorCount: 5, LastError: "timeout", DisabledAt: &disabledAt},
		},
	}, runTime.Add(-time.Hour)))

	report := fx.run(t, testOptions())

	assert.Equal(t, []string{"deals"}, fx.fetcher.calls)
	assert.Equal(t, []string{"wire"}, report.Skipped)
	require.NotEmpty(t, report.Warnings)
	assert.Equal(t, "wire", report.Warnings[len(report.Warnings)-1].Name)
}

func TestRun_FailingSourceRecorded(t *testing.T) {
	fx := newFixture(t)
	fx.fetcher.failing = map[string]bool{"deals": true}

	report := fx.run(t, testOptions())

	var deals *model.FeedHealth
	for i := range report.Directory.FeedHealth {
		if report.Directory.FeedHealth[i].Name == "deals" {
			deals = &report.Directory.FeedHealth[i]
		}
	}
	require.NotNil(t, deals)
	assert.Equal(t, 1, deals.ErrorCount)
	assert.Equal(t, "status 503", deals.LastError)
	assert.True(t, deals.Enabled)
	assert.Equal(t, 1, report.Merge.Added)
}

func TestRun_ConcurrentModelStageKeepsOrder(t *testing.T) {
	sequential := newFixture(t)
	seqReport := sequential.run(t, testOptions())

	parallel := newFixture(t)
	opts := testOptions()
	opts.Concurrency = 4
	parReport := parallel.run(t, opts)

	require.Len(t, parReport.Directory.Funds, len(seqReport.Directory.Funds))
	for i := range seqReport.Directory.Funds {
		assert.Equal(t, seqReport.Directory.Funds[i].DedupeKey, parReport.Directory.Funds[i].DedupeKey)
	}
	assert.Equal(t, seqReport.Merge.AddedKeys, parReport.Merge.AddedKeys)
}

func TestRun_CoveredSync(t *testing.T) {
	fx := newFixture(t)
	fx.deps.CoveredPath = filepath.Join(t.TempDir(), "covered.json")
	require.NoError(t, coverage.SaveLedger(fx.deps.CoveredPath, &model.CoveredLedger{Funds: []model.CoveredFund{
		{FundName: "Acme Capital Fund III", Firm: "Acme Capital", DateCovered: "2025-01-10"},
	}}, runTime))

	report := fx.run(t, testOptions())

	assert.Equal(t, 1, report.CoveredChanged)
	assert.Equal(t, 1, report.Directory.Stats.CoveredFunds)
	for _, f := range report.Directory.Funds {
		if f.FundName == "Acme Capital Fund III" {
			assert.True(t, f.IsCovered)
			require.NotNil(t, f.CoveredDate)
			assert.Equal(t, "2025-01-10", *f.CoveredDate)
		}
	}
}

func TestRun_CorruptDirectoryAborts(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(fx.dirPath), 0o750))
	require.NoError(t, os.WriteFile(fx.dirPath, []byte("{broken"), 0o600))

	e, err := New(fx.deps, testOptions())
	require.NoError(t, err)
	_, err = e.Run(context.Background())

	require.ErrorIs(t, err, common.ErrCorruptDocument)
	assert.Empty(t, fx.fetcher.calls)
	data, readErr := os.ReadFile(fx.dirPath)
	require.NoError(t, readErr)
	assert.Equal(t, "{broken", string(data))
}
