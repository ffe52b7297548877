package feeds

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Veraticus/fundwatch/internal/model"
)

// SourceNamer maps an article domain to a display name, "" when unknown.
type SourceNamer interface {
	SourceName(domain string) string
}

// RSSFetcher downloads and parses RSS/Atom feeds.
type RSSFetcher struct {
	names  SourceNamer
	logger *slog.Logger
	now    func() time.Time
	opts   Options
}

// NewRSSFetcher creates a fetcher. names may be nil.
func NewRSSFetcher(opts Options, names SourceNamer) *RSSFetcher {
	opts = opts.withDefaults()
	return &RSSFetcher{
		opts:   opts,
		names:  names,
		logger: opts.Logger.With("component", "rss"),
		now:    time.Now,
	}
}

// Fetch downloads one feed. Failures produce an empty list and a failed Outcome.
func (f *RSSFetcher) Fetch(ctx context.Context, src Source) ([]model.RawArticle, Outcome) {
	outcome := Outcome{Source: src}

	body, err := get(ctx, f.opts, src.URL)
	if err != nil {
		outcome.Err = err
		f.logger.Warn("Feed fetch failed", "feed", src.Name, "error", err)
		return nil, outcome
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		outcome.Err = fmt.Errorf("failed to parse feed %s: %w", src.Name, err)
		f.logger.Warn("Feed parse failed", "feed", src.Name, "error", err)
		return nil, outcome
	}

	articles := make([]model.RawArticle, 0, len(feed.Items))
	seen := make(map[string]bool, len(feed.Items))
	for _, item := range feed.Items {
		article, ok := f.mapItem(src, item)
		if !ok || seen[article.URL] {
			continue
		}
		seen[article.URL] = true
		articles = append(articles, article)
	}

	outcome.Success = true
	outcome.ArticleCount = len(articles)
	f.logger.Debug("Fetched feed", "feed", src.Name, "items", len(feed.Items), "articles", len(articles))
	return articles, outcome
}

func (f *RSSFetcher) mapItem(src Source, item *gofeed.Item) (model.RawArticle, bool) {
	if item == nil {
		return model.RawArticle{}, false
	}

	link := item.Link
	if link == "" && len(item.Links) > 0 {
		link = item.Links[0]
	}
	canonical, err := CanonicalURL(link)
	if err != nil {
		return model.RawArticle{}, false
	}

	title := collapse(HTMLToText(item.Title))
	if title == "" {
		return model.RawArticle{}, false
	}

	published := itemTime(item)
	if f.opts.MaxAge > 0 && !published.IsZero() && f.now().Sub(published) > f.opts.MaxAge {
		return model.RawArticle{}, false
	}

	content := item.Description
	if content == "" {
		content = item.Content
	}

	domain := Domain(canonical)
	sourceName := src.Name
	if f.names != nil {
		if name := f.names.SourceName(domain); name != "" {
			sourceName = name
		}
	}

	return model.RawArticle{
		Title:        title,
		URL:          canonical,
		Published:    published,
		Snippet:      Truncate(HTMLToText(content), f.opts.MaxSnippet),
		SourceName:   sourceName,
		SourceDomain: domain,
		FeedName:     src.Name,
	}, true
}

func itemTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}
