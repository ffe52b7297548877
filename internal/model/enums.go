package model

import "strings"

// Category is the closed set of fund categories.
type Category string

// Fund categories.
const (
	CategoryPrivateEquity  Category = "Private Equity"
	CategoryVentureCapital Category = "Venture Capital"
	CategoryPrivateCredit  Category = "Private Credit"
	CategoryRealEstate     Category = "Real Estate"
	CategoryInfrastructure Category = "Infrastructure"
	CategoryHedgeFund      Category = "Hedge Fund"
)

// DefaultCategory is used when nothing more specific matches.
const DefaultCategory = CategoryPrivateEquity

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryPrivateEquity,
		CategoryVentureCapital,
		CategoryPrivateCredit,
		CategoryRealEstate,
		CategoryInfrastructure,
		CategoryHedgeFund,
	}
}

// Stage is the fundraising milestone an announcement describes.
type Stage string

// Fundraising stages.
const (
	StageFinalClose   Stage = "Final Close"
	StageFirstClose   Stage = "First Close"
	StageInterimClose Stage = "Interim Close"
	StageLaunch       Stage = "Launch"
	StageOther        Stage = "Other"
)

// Stages lists every stage in display order.
func Stages() []Stage {
	return []Stage{StageFinalClose, StageFirstClose, StageInterimClose, StageLaunch, StageOther}
}

// Strategy is an optional investment strategy inferred from text.
type Strategy string

// Strategies.
const (
	StrategyBuyout        Strategy = "Buyout"
	StrategyGrowthEquity  Strategy = "Growth Equity"
	StrategyEarlyStage    Strategy = "Early Stage"
	StrategyLateStage     Strategy = "Late Stage"
	StrategySecondaries   Strategy = "Secondaries"
	StrategyFundOfFunds   Strategy = "Fund of Funds"
	StrategyDirectLending Strategy = "Direct Lending"
	StrategyDistressed    Strategy = "Distressed"
	StrategyMezzanine     Strategy = "Mezzanine"
	StrategyCoInvestment  Strategy = "Co-Investment"
	StrategyImpact        Strategy = "Impact"
)

// Geography is an optional target region inferred from text.
type Geography string

// Target geographies.
const (
	GeographyNorthAmerica Geography = "North America"
	GeographyEurope       Geography = "Europe"
	GeographyAsiaPacific  Geography = "Asia Pacific"
	GeographyLatinAmerica Geography = "Latin America"
	GeographyMiddleEast   Geography = "Middle East & Africa"
	GeographyGlobal       Geography = "Global"
)

// ParseCategory matches a canonical category name case-insensitively.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// ParseStage matches a canonical stage name case-insensitively.
func ParseStage(s string) (Stage, bool) {
	s = strings.TrimSpace(s)
	for _, st := range Stages() {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}
