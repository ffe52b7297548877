// Package engine runs the discovery pipeline: fetch, pre-filter, classify,
// extract, de-duplicate, merge and persist.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/coverage"
	"github.com/Veraticus/fundwatch/internal/dedupe"
	"github.com/Veraticus/fundwatch/internal/directory"
	"github.com/Veraticus/fundwatch/internal/feeds"
	"github.com/Veraticus/fundwatch/internal/health"
	"github.com/Veraticus/fundwatch/internal/metrics"
	"github.com/Veraticus/fundwatch/internal/model"
	"github.com/Veraticus/fundwatch/internal/prefilter"
	"github.com/Veraticus/fundwatch/internal/service"
	"github.com/Veraticus/fundwatch/internal/storage"
)

// Options are the per-run switches.
type Options struct {
	// Progress receives a progress bar for the model stage when set.
	Progress      io.Writer
	MetricsPath   string
	FeedDelay     time.Duration
	Concurrency   int
	MinConfidence float64
	SkipSearch    bool
	// SkipAPI stops after the pre-filter without calling the model.
	SkipAPI bool
	// DryRun runs every stage but writes nothing.
	DryRun bool
}

// DefaultOptions returns sequential model calls and a 0.5 confidence floor.
func DefaultOptions() Options {
	return Options{
		FeedDelay:     time.Second,
		Concurrency:   1,
		MinConfidence: 0.5,
	}
}

// Deps are the collaborators of a run. Filter and Extractor may be nil only
// when SkipAPI is set; Search, Enricher, Ledger, Syncer and Metrics are optional.
type Deps struct {
	RSS       service.FeedFetcher
	Search    service.NewsSearcher
	Filter    service.ArticleClassifier
	Extractor service.FundExtractor
	Enricher  service.ArticleEnricher
	Ledger    service.ArticleLedger
	Prefilter *prefilter.Filter
	Deduper   *dedupe.Deduper
	Merger    *directory.Merger
	Store     *directory.Store
	Syncer    *coverage.Syncer
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
	Now       func() time.Time
	// CoveredPath is the covered-funds ledger; empty skips the sync.
	CoveredPath string
	Feeds       []feeds.Source
	Queries     []string
	Health      health.Config
}

// Engine orchestrates one pipeline run at a time.
type Engine struct {
	deps Deps
	opts Options
}

// New validates deps against opts.
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.RSS == nil || deps.Prefilter == nil || deps.Deduper == nil || deps.Merger == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: engine requires fetcher, prefilter, deduper, merger and store", common.ErrInvalidConfig)
	}
	if !opts.SkipAPI && (deps.Filter == nil || deps.Extractor == nil) {
		return nil, fmt.Errorf("%w: language-model credentials are required unless --skip-api is set", common.ErrMissingConfig)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.DryRun {
		deps.Ledger = nil
	}
	return &Engine{deps: deps, opts: opts}, nil
}

// Report summarizes a run.
type Report struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	Directory      *model.FundDirectory
	RunID          string
	Outcomes       []feeds.Outcome
	Skipped        []string
	Warnings       []health.Warning
	Duplicates     []dedupe.Duplicate
	Merge          directory.MergeResult
	Prefilter      prefilter.Stats
	Fetched        int
	Confirmed      int
	Extracted      int
	Cached         int
	CoveredChanged int
	DryRun         bool
}

// Run executes the pipeline once. The directory is written only at the end,
// so a failed or canceled run leaves the previous document in place.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	now := e.deps.Now()
	report := &Report{RunID: uuid.NewString(), StartedAt: now, DryRun: e.opts.DryRun}
	logger := e.deps.Logger.With("run_id", report.RunID)
	logger.Info("Starting run",
		"feeds", len(e.deps.Feeds),
		"queries", len(e.deps.Queries),
		"skip_search", e.opts.SkipSearch,
		"skip_api", e.opts.SkipAPI,
		"dry_run", e.opts.DryRun)

	dir, err := e.deps.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load directory: %w", err)
	}

	tracker := health.NewTracker(dir.FeedHealth, e.deps.Health,
		health.WithClock(e.deps.Now),
		health.WithLogger(logger))

	articles := e.fetch(ctx, tracker, report, logger)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Fetched = len(articles)
	e.deps.Metrics.Articles(metrics.StageFetched, len(articles))

	candidates, stats := e.deps.Prefilter.Filter(articles)
	report.Prefilter = stats
	e.deps.Metrics.Articles(metrics.StagePrefiltered, len(candidates))

	var extracted []model.ExtractedFund
	if e.opts.SkipAPI {
		logger.Info("Skipping model calls", "candidates", len(candidates))
	} else {
		extracted = e.analyze(ctx, candidates, report, logger)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	unique, duplicates := e.deps.Deduper.Batch(extracted)
	report.Duplicates = duplicates
	for _, d := range duplicates {
		logger.Info("Duplicate in batch",
			"fund", d.Fund.FundName,
			"kept_as", d.KeptAs,
			"rule", d.Rule.String())
	}

	report.Merge = e.deps.Merger.Merge(dir, unique, now)
	e.deps.Metrics.Funds(report.Merge.Added, report.Merge.Updated, len(duplicates))

	if e.deps.Syncer != nil && e.deps.CoveredPath != "" {
		ledger, err := coverage.LoadLedger(e.deps.CoveredPath)
		if err != nil {
			logger.Warn("Covered ledger unreadable, skipping sync", "path", e.deps.CoveredPath, "error", err)
		} else {
			report.CoveredChanged = e.deps.Syncer.Sync(dir, ledger)
		}
	}

	dir.FeedHealth = tracker.Snapshot()
	directory.RecomputeStats(dir)
	report.Warnings = tracker.Warnings()
	for _, w := range report.Warnings {
		logger.Warn("Source needs attention", "source", w.Name, "reason", w.Reason)
	}

	report.Directory = dir
	report.FinishedAt = e.deps.Now()

	if e.opts.DryRun {
		logger.Info("Dry run, directory not written",
			"added", report.Merge.Added,
			"updated", report.Merge.Updated)
		return report, nil
	}

	if err := e.deps.Store.Save(dir, report.FinishedAt); err != nil {
		return nil, fmt.Errorf("failed to save directory: %w", err)
	}
	e.finish(ctx, report, logger)

	logger.Info("Run complete",
		"fetched", report.Fetched,
		"prefiltered", report.Prefilter.Kept,
		"confirmed", report.Confirmed,
		"extracted", report.Extracted,
		"added", report.Merge.Added,
		"updated", report.Merge.Updated,
		"total_funds", dir.Stats.TotalFunds)
	return report, nil
}

// finish records the run in the ledger and exports metrics. Failures here are
// logged; the directory is already saved.
func (e *Engine) finish(ctx context.Context, report *Report, logger *slog.Logger) {
	if e.deps.Ledger != nil {
		err := e.deps.Ledger.RecordRun(ctx, storage.Run{
			ID:          report.RunID,
			StartedAt:   report.StartedAt,
			FinishedAt:  report.FinishedAt,
			Fetched:     report.Fetched,
			Prefiltered: report.Prefilter.Kept,
			Confirmed:   report.Confirmed,
			Extracted:   report.Extracted,
			Added:       report.Merge.Added,
			Updated:     report.Merge.Updated,
		})
		if err != nil {
			logger.Warn("Failed to record run", "error", err)
		}
	}

	e.deps.Metrics.Finish(report.Directory.Stats.TotalFunds, report.Directory.Stats.FeedsDisabled,
		report.FinishedAt.Sub(report.StartedAt), report.FinishedAt)
	if e.opts.MetricsPath != "" {
		if err := e.deps.Metrics.WriteTextfile(e.opts.MetricsPath); err != nil {
			logger.Warn("Failed to write metrics", "path", e.opts.MetricsPath, "error", err)
		}
	}
}

// fetch pulls every enabled feed one at a time, then the search queries.
// Articles are de-duplicated by URL across sources, first source wins.
func (e *Engine) fetch(ctx context.Context, tracker *health.Tracker, report *Report, logger *slog.Logger) []model.RawArticle {
	var (
		articles []model.RawArticle
		seen     = make(map[string]bool)
	)
	collect := func(found []model.RawArticle) {
		for _, a := range found {
			if seen[a.URL] {
				continue
			}
			seen[a.URL] = true
			articles = append(articles, a)
		}
	}
	record := func(outcome feeds.Outcome) {
		tracker.Record(outcome)
		report.Outcomes = append(report.Outcomes, outcome)
		e.deps.Metrics.SourceFetch(outcome.Success)
	}

	fetched := 0
	for _, src := range e.deps.Feeds {
		if !src.Enabled {
			continue
		}
		if !tracker.ShouldFetch(src.Name) {
			report.Skipped = append(report.Skipped, src.Name)
			logger.Info("Skipping disabled source", "source", src.Name)
			continue
		}
		if fetched > 0 {
			if err := feeds.Wait(ctx, e.opts.FeedDelay); err != nil {
				return articles
			}
		}
		fetched++

		found, outcome := e.deps.RSS.Fetch(ctx, src)
		record(outcome)
		collect(found)
	}

	if e.opts.SkipSearch || e.deps.Search == nil || len(e.deps.Queries) == 0 {
		return articles
	}

	var queries []string
	for _, q := range e.deps.Queries {
		if name := "search:" + q; !tracker.ShouldFetch(name) {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return articles
	}

	found, outcomes := e.deps.Search.Fetch(ctx, queries)
	for _, o := range outcomes {
		record(o)
	}
	collect(found)
	return articles
}

type analysis struct {
	fund          *model.ExtractedFund
	verdict       model.FilteredArticle
	filterCached  bool
	extractCached bool
}

// analyze classifies and extracts every candidate on a bounded worker pool.
// Results are gathered by index so the output order matches the input order.
func (e *Engine) analyze(ctx context.Context, candidates []model.RawArticle, report *Report, logger *slog.Logger) []model.ExtractedFund {
	if len(candidates) == 0 {
		return nil
	}

	var bar *progressbar.ProgressBar
	if e.opts.Progress != nil {
		bar = newProgressBar(e.opts.Progress, len(candidates))
	}

	results := make([]analysis, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, article := range candidates {
		g.Go(func() error {
			results[i] = e.analyzeOne(gctx, article, logger)
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	var funds []model.ExtractedFund
	for _, r := range results {
		if r.filterCached || r.extractCached {
			report.Cached++
		}
		if e.accepted(r.verdict) {
			report.Confirmed++
		}
		if r.fund != nil {
			report.Extracted++
			funds = append(funds, *r.fund)
		}
	}
	e.deps.Metrics.Articles(metrics.StageConfirmed, report.Confirmed)
	e.deps.Metrics.Articles(metrics.StageExtracted, report.Extracted)

	logger.Info("Model stage complete",
		"candidates", len(candidates),
		"confirmed", report.Confirmed,
		"extracted", report.Extracted,
		"cached", report.Cached)
	return funds
}

func (e *Engine) accepted(v model.FilteredArticle) bool {
	return v.IsFundNews && v.Confidence >= e.opts.MinConfidence
}

func (e *Engine) analyzeOne(ctx context.Context, article model.RawArticle, logger *slog.Logger) analysis {
	var (
		r     analysis
		entry *storage.Entry
	)

	if e.deps.Ledger != nil {
		cached, err := e.deps.Ledger.Lookup(ctx, article.URL)
		switch {
		case err == nil:
			entry = cached
		case !errors.Is(err, common.ErrNotFound):
			logger.Warn("Ledger lookup failed", "url", article.URL, "error", err)
		}
	}

	if entry != nil {
		r.verdict = entry.Verdict(article)
		r.filterCached = true
		e.deps.Metrics.LLMCall("filter", true, true)
	} else {
		verdict, err := e.deps.Filter.Evaluate(ctx, article)
		r.verdict = verdict
		e.deps.Metrics.LLMCall("filter", err == nil, false)
		if err == nil {
			e.remember(ctx, logger, func() error {
				return e.deps.Ledger.RecordVerdict(ctx, verdict, e.deps.Now())
			})
		}
	}

	if !e.accepted(r.verdict) {
		return r
	}

	if entry != nil && entry.Extracted {
		r.fund = entry.Fund
		r.extractCached = true
		e.deps.Metrics.LLMCall("extract", true, true)
		return r
	}

	if e.deps.Enricher != nil {
		article = e.deps.Enricher.Enrich(ctx, article)
	}

	fund, err := e.deps.Extractor.TryExtract(ctx, article)
	e.deps.Metrics.LLMCall("extract", err == nil, false)
	if err != nil {
		return r
	}
	r.fund = fund
	e.remember(ctx, logger, func() error {
		return e.deps.Ledger.RecordExtraction(ctx, article.URL, fund, e.deps.Now())
	})
	return r
}

// remember writes to the ledger when one is configured.
func (e *Engine) remember(ctx context.Context, logger *slog.Logger, write func() error) {
	if e.deps.Ledger == nil || ctx.Err() != nil {
		return
	}
	if err := write(); err != nil {
		logger.Warn("Failed to update article ledger", "error", err)
	}
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Analyzing articles...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}
