package feeds

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Veraticus/fundwatch/internal/model"
)

// SearchFetcher issues canned queries against a news-search RSS endpoint.
type SearchFetcher struct {
	names    SourceNamer
	logger   *slog.Logger
	endpoint string
	recency  string
	opts     Options
}

// NewSearchFetcher creates a search fetcher. endpoint must contain one %s,
// which receives the escaped query.
func NewSearchFetcher(opts Options, endpoint, recency string, names SourceNamer) *SearchFetcher {
	opts = opts.withDefaults()
	return &SearchFetcher{
		opts:     opts,
		names:    names,
		endpoint: endpoint,
		recency:  recency,
		logger:   opts.Logger.With("component", "search"),
	}
}

// QueryURL returns the request URL for a query.
func (s *SearchFetcher) QueryURL(query string) string {
	q := query
	if s.recency != "" {
		q += " when:" + s.recency
	}
	return fmt.Sprintf(s.endpoint, url.QueryEscape(q))
}

// Fetch runs every query in order, pausing between requests. Articles are
// de-duplicated by normalized title within and across queries.
func (s *SearchFetcher) Fetch(ctx context.Context, queries []string) ([]model.RawArticle, []Outcome) {
	var (
		articles []model.RawArticle
		outcomes = make([]Outcome, 0, len(queries))
		seen     = make(map[string]bool)
	)

	for i, query := range queries {
		if i > 0 {
			if err := Wait(ctx, s.opts.Delay); err != nil {
				break
			}
		}

		found, outcome := s.fetchQuery(ctx, query, seen)
		articles = append(articles, found...)
		outcomes = append(outcomes, outcome)
	}

	return articles, outcomes
}

func (s *SearchFetcher) fetchQuery(ctx context.Context, query string, seen map[string]bool) ([]model.RawArticle, Outcome) {
	link := s.QueryURL(query)
	outcome := Outcome{Source: Source{Name: "search:" + query, URL: link, Enabled: true}}

	body, err := get(ctx, s.opts, link)
	if err != nil {
		outcome.Err = err
		s.logger.Warn("Search query failed", "query", query, "error", err)
		return nil, outcome
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		outcome.Err = fmt.Errorf("failed to parse search results for %q: %w", query, err)
		s.logger.Warn("Search parse failed", "query", query, "error", err)
		return nil, outcome
	}

	var articles []model.RawArticle
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title, source := SplitTitle(HTMLToText(item.Title))
		key := TitleKey(title)
		if key == "" || seen[key] {
			continue
		}

		canonical, err := CanonicalURL(item.Link)
		if err != nil {
			continue
		}
		seen[key] = true

		domain := Domain(canonical)
		if source == "" && s.names != nil {
			source = s.names.SourceName(domain)
		}
		if source == "" {
			source = "News Search"
		}

		var published time.Time
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		}

		articles = append(articles, model.RawArticle{
			Title:        title,
			URL:          canonical,
			Published:    published,
			Snippet:      Truncate(HTMLToText(item.Description), s.opts.MaxSnippet),
			SourceName:   source,
			SourceDomain: domain,
			FeedName:     outcome.Source.Name,
		})
	}

	outcome.Success = true
	outcome.ArticleCount = len(articles)
	s.logger.Debug("Search query done", "query", query, "articles", len(articles))
	return articles, outcome
}

// SplitTitle splits "Headline - Outlet" (or an em-dash separator) on the last
// separator into the headline and the outlet.
func SplitTitle(title string) (string, string) {
	title = strings.TrimSpace(title)
	best := -1
	sepLen := 0
	for _, sep := range []string{" - ", " — "} {
		if idx := strings.LastIndex(title, sep); idx > best {
			best = idx
			sepLen = len(sep)
		}
	}
	if best <= 0 {
		return title, ""
	}
	return strings.TrimSpace(title[:best]), strings.TrimSpace(title[best+sepLen:])
}

// TitleKey normalizes a headline for duplicate detection.
func TitleKey(title string) string {
	var b strings.Builder
	for _, word := range strings.Fields(strings.ToLower(title)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 0x7f)
		})
		if word == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	return b.String()
}
