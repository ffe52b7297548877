// Package model defines the core domain models used throughout the application.
package model

import "time"

// RawArticle is a single item pulled from a feed or news search.
type RawArticle struct {
	Published    time.Time `json:"published"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Snippet      string    `json:"snippet"`
	SourceName   string    `json:"source_name"`
	SourceDomain string    `json:"source_domain"`
	FeedName     string    `json:"feed_name"`
}

// Text returns the title and snippet joined for pattern matching.
func (a RawArticle) Text() string {
	if a.Snippet == "" {
		return a.Title
	}
	return a.Title + "\n" + a.Snippet
}

// FilteredArticle is a RawArticle with the model's fund/not-fund verdict.
type FilteredArticle struct {
	RawArticle
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	IsFundNews bool    `json:"is_fund_news"`
}

// ArticleRef is one source article attached to a persisted fund.
type ArticleRef struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Source        string `json:"source"`
	PublishedDate string `json:"published_date"`
}
