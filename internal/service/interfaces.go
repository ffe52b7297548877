// Package service defines the contracts between the pipeline and its stages.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/fundwatch/internal/feeds"
	"github.com/Veraticus/fundwatch/internal/model"
	"github.com/Veraticus/fundwatch/internal/storage"
)

// FeedFetcher pulls one RSS/Atom source.
type FeedFetcher interface {
	Fetch(ctx context.Context, src feeds.Source) ([]model.RawArticle, feeds.Outcome)
}

// NewsSearcher runs canned queries against a news-search endpoint.
type NewsSearcher interface {
	Fetch(ctx context.Context, queries []string) ([]model.RawArticle, []feeds.Outcome)
}

// ArticleClassifier decides whether an article announces a fund. The verdict
// is always usable; the error reports whether it was degraded.
type ArticleClassifier interface {
	Evaluate(ctx context.Context, article model.RawArticle) (model.FilteredArticle, error)
}

// FundExtractor turns a confirmed article into a fund record.
type FundExtractor interface {
	TryExtract(ctx context.Context, article model.RawArticle) (*model.ExtractedFund, error)
}

// ArticleEnricher replaces thin snippets with fuller article text.
type ArticleEnricher interface {
	Enrich(ctx context.Context, article model.RawArticle) model.RawArticle
}

// ArticleLedger remembers model answers across runs.
type ArticleLedger interface {
	Lookup(ctx context.Context, url string) (*storage.Entry, error)
	RecordVerdict(ctx context.Context, verdict model.FilteredArticle, now time.Time) error
	RecordExtraction(ctx context.Context, url string, fund *model.ExtractedFund, now time.Time) error
	RecordRun(ctx context.Context, run storage.Run) error
}
