package model

import "time"

// FeedHealth is the circuit-breaker state of one upstream source.
type FeedHealth struct {
	FirstSeen        *time.Time `json:"first_seen,omitempty"`
	LastFetch        *time.Time `json:"last_fetch"`
	LastSuccess      *time.Time `json:"last_success"`
	DisabledAt       *time.Time `json:"disabled_at,omitempty"`
	Name             string     `json:"name"`
	URL              string     `json:"url,omitempty"`
	LastError        string     `json:"last_error"`
	ErrorCount       int        `json:"error_count"`
	LastArticleCount int        `json:"last_article_count"`
	Enabled          bool       `json:"enabled"`
}

// CoveredFund is one entry in the already-published ledger.
type CoveredFund struct {
	FundName         string `json:"fund_name"`
	Firm             string `json:"firm"`
	Amount           string `json:"amount"`
	Category         string `json:"category"`
	Location         string `json:"location"`
	Stage            string `json:"stage"`
	DateCovered      string `json:"date_covered"`
	AnnouncementDate string `json:"announcement_date"`
	SourceURL        string `json:"source_url"`
}

// CoveredLedger is the on-disk shape of the covered-funds file.
type CoveredLedger struct {
	UpdatedAt time.Time     `json:"updated_at"`
	Funds     []CoveredFund `json:"funds"`
}
