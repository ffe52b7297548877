package model

import (
	"strings"
	"time"
)

// DateLayout is the layout of every calendar date stored in the directory.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date. Longer RFC 3339 strings are truncated first.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Location is where the managing firm is based.
type Location struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// String joins the non-empty parts with commas.
func (l Location) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.State, l.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// ExtractedFund is the normalized output of the extractor for one article.
type ExtractedFund struct {
	FirmWebsite       *string   `json:"firm_website"`
	AmountUSDMillions *float64  `json:"amount_usd_millions"`
	FundName          string    `json:"fund_name"`
	FirmName          string    `json:"firm_name"`
	Amount            string    `json:"amount"`
	Category          Category  `json:"category"`
	Stage             Stage     `json:"stage"`
	AnnouncementDate  string    `json:"announcement_date"`
	SourceURL         string    `json:"source_url"`
	SourceName        string    `json:"source_name"`
	Description       string    `json:"description"`
	Strategy          Strategy  `json:"strategy,omitempty"`
	TargetGeography   Geography `json:"target_geography,omitempty"`
	SourceTitle       string    `json:"source_title,omitempty"`
	Location          Location  `json:"location"`
}

// Fund is a persisted directory entry. Its identity is DedupeKey.
type Fund struct {
	ExtractedFund
	CoveredDate *string      `json:"covered_date"`
	FirmSlug    string       `json:"firm_slug"`
	DedupeKey   string       `json:"dedupe_key"`
	DateAdded   string       `json:"date_added"`
	Articles    []ArticleRef `json:"articles"`
	IsCovered   bool         `json:"is_covered"`
}

// HasArticle reports whether url is already attached to the fund.
func (f *Fund) HasArticle(url string) bool {
	for _, a := range f.Articles {
		if a.URL == url {
			return true
		}
	}
	return false
}

// Announced returns the parsed announcement date.
func (f ExtractedFund) Announced() (time.Time, bool) {
	return ParseDate(f.AnnouncementDate)
}
