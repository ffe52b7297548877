// Package directory maintains the persisted fund directory: merging new
// extractions, ordering, statistics and the JSON document on disk.
package directory

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Veraticus/fundwatch/internal/dedupe"
	"github.com/Veraticus/fundwatch/internal/model"
	"github.com/Veraticus/fundwatch/internal/normalize"
)

// MergeResult summarizes one merge.
type MergeResult struct {
	AddedKeys   []string
	UpdatedKeys []string
	Added       int
	Updated     int
	Unchanged   int
}

// Merger folds extracted funds into a directory.
type Merger struct {
	dedupe *dedupe.Deduper
	logger *slog.Logger
}

// NewMerger creates a merger that matches funds with d.
func NewMerger(d *dedupe.Deduper, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{dedupe: d, logger: logger.With("component", "merger")}
}

// Merge adds unmatched funds and refreshes matched ones whose announcement
// date is strictly newer. A matched fund that is not newer only gains the
// article when its URL is unseen. The directory is then sorted and its stats
// recomputed.
// Merging the same batch twice leaves the directory unchanged.
func (m *Merger) Merge(dir *model.FundDirectory, batch []model.ExtractedFund, now time.Time) MergeResult {
	var result MergeResult
	idx := m.dedupe.NewIndex(dir.Funds)

	for _, f := range batch {
		pos, rule, ok := idx.Find(f)
		if !ok {
			fund := newFund(f, m.dedupe.FundKey(f), now)
			dir.Funds = append(dir.Funds, fund)
			idx.Add(fund)
			result.Added++
			result.AddedKeys = append(result.AddedKeys, fund.DedupeKey)
			m.logger.Debug("Added fund", "key", fund.DedupeKey, "fund", fund.FundName)
			continue
		}

		existing := &dir.Funds[pos]
		if !refresh(existing, f) && !addArticle(existing, f) {
			result.Unchanged++
			m.logger.Debug("Matched existing fund",
				"key", existing.DedupeKey,
				"rule", rule.String(),
				"candidate", f.FundName)
			continue
		}

		idx.Update(pos, *existing)
		result.Updated++
		result.UpdatedKeys = append(result.UpdatedKeys, existing.DedupeKey)
		m.logger.Debug("Refreshed fund", "key", existing.DedupeKey, "rule", rule.String())
	}

	Sort(dir.Funds)
	RecomputeStats(dir)
	return result
}

func newFund(f model.ExtractedFund, key string, now time.Time) model.Fund {
	fund := model.Fund{
		ExtractedFund: f,
		FirmSlug:      normalize.FirmSlug(f.FirmName),
		DedupeKey:     key,
		DateAdded:     now.UTC().Format(time.RFC3339),
		Articles:      []model.ArticleRef{},
	}
	if f.SourceURL != "" {
		fund.Articles = append(fund.Articles, articleRef(f))
	}
	return fund
}

// refresh applies f to existing when f is strictly newer. It reports whether
// anything was changed.
func refresh(existing *model.Fund, f model.ExtractedFund) bool {
	current, okCurrent := existing.Announced()
	incoming, okIncoming := f.Announced()
	if !okIncoming || (okCurrent && !incoming.After(current)) {
		return false
	}

	existing.Amount = f.Amount
	existing.AmountUSDMillions = f.AmountUSDMillions
	existing.Stage = f.Stage
	existing.Description = f.Description
	existing.SourceURL = f.SourceURL
	existing.SourceName = f.SourceName
	existing.SourceTitle = f.SourceTitle
	existing.AnnouncementDate = f.AnnouncementDate
	if f.Location != (model.Location{}) {
		existing.Location = f.Location
	}
	if f.FirmWebsite != nil {
		existing.FirmWebsite = f.FirmWebsite
	}
	if f.Strategy != "" {
		existing.Strategy = f.Strategy
	}
	if f.TargetGeography != "" {
		existing.TargetGeography = f.TargetGeography
	}

	addArticle(existing, f)
	return true
}

// addArticle records f's article on existing unless its URL is already listed.
func addArticle(existing *model.Fund, f model.ExtractedFund) bool {
	if f.SourceURL == "" || existing.HasArticle(f.SourceURL) {
		return false
	}
	existing.Articles = append(existing.Articles, articleRef(f))
	return true
}

func articleRef(f model.ExtractedFund) model.ArticleRef {
	return model.ArticleRef{
		Title:         f.SourceTitle,
		URL:           f.SourceURL,
		Source:        f.SourceName,
		PublishedDate: f.AnnouncementDate,
	}
}

// Sort orders funds by announcement date descending, then amount descending
// with unknown amounts last, then fund name and key ascending.
func Sort(funds []model.Fund) {
	sort.SliceStable(funds, func(i, j int) bool {
		a, b := funds[i], funds[j]
		if a.AnnouncementDate != b.AnnouncementDate {
			return a.AnnouncementDate > b.AnnouncementDate
		}
		switch {
		case a.AmountUSDMillions != nil && b.AmountUSDMillions == nil:
			return true
		case a.AmountUSDMillions == nil && b.AmountUSDMillions != nil:
			return false
		case a.AmountUSDMillions != nil && *a.AmountUSDMillions != *b.AmountUSDMillions:
			return *a.AmountUSDMillions > *b.AmountUSDMillions
		}
		if a.FundName != b.FundName {
			return a.FundName < b.FundName
		}
		return a.DedupeKey < b.DedupeKey
	})
}

// RecomputeStats rebuilds dir.Stats from its funds and feed health.
func RecomputeStats(dir *model.FundDirectory) {
	stats := model.Stats{
		ByCategory: make(map[model.Category]int, len(model.Categories())),
		ByStage:    make(map[model.Stage]int, len(model.Stages())),
		TotalFunds: len(dir.Funds),
	}
	for _, c := range model.Categories() {
		stats.ByCategory[c] = 0
	}
	for _, s := range model.Stages() {
		stats.ByStage[s] = 0
	}

	var aum float64
	for _, f := range dir.Funds {
		stats.ByCategory[f.Category]++
		stats.ByStage[f.Stage]++
		if f.AmountUSDMillions != nil {
			aum += *f.AmountUSDMillions
		}
		if f.IsCovered {
			stats.CoveredFunds++
		} else {
			stats.UncoveredFunds++
		}
	}
	stats.TotalAUMUSDMillions = math.Round(aum*100) / 100

	stats.FeedsTotal = len(dir.FeedHealth)
	for _, h := range dir.FeedHealth {
		if h.Enabled {
			stats.FeedsEnabled++
		} else {
			stats.FeedsDisabled++
		}
	}

	dir.Stats = stats
}
