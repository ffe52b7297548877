package model

import "time"

// Stats is a view over a directory. It is always recomputed, never edited.
type Stats struct {
	ByCategory          map[Category]int `json:"by_category"`
	ByStage             map[Stage]int    `json:"by_stage"`
	TotalFunds          int              `json:"total_funds"`
	TotalAUMUSDMillions float64          `json:"total_aum_usd_millions"`
	CoveredFunds        int              `json:"covered_funds"`
	UncoveredFunds      int              `json:"uncovered_funds"`
	FeedsTotal          int              `json:"feeds_total"`
	FeedsEnabled        int              `json:"feeds_enabled"`
	FeedsDisabled       int              `json:"feeds_disabled"`
}

// FundDirectory is the aggregate root persisted as a single JSON document.
type FundDirectory struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Funds       []Fund       `json:"funds"`
	FeedHealth  []FeedHealth `json:"feed_health"`
	Stats       Stats        `json:"stats"`
}
