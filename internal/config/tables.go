package config

import (
	"fmt"
	"strings"

	"github.com/Veraticus/fundwatch/internal/model"
)

// KeywordRule maps a category to the words that suggest it.
type KeywordRule struct {
	Category model.Category
	Keywords []string
}

// StagePattern maps a regex over announcement text to a stage. Lower ranks
// are tried first; within a rank the match that starts earliest wins.
type StagePattern struct {
	Stage model.Stage
	Regex string
	Rank  int
}

// StrategyRule maps a strategy to the words that suggest it.
type StrategyRule struct {
	Strategy model.Strategy
	Keywords []string
}

// GeographyRule maps a target region to the words that suggest it.
type GeographyRule struct {
	Geography model.Geography
	Keywords  []string
}

// AmountPattern is one magnitude/currency pattern. Regex must capture the number
// in its first group; the parsed number is multiplied by Multiplier (to millions)
// and by the currency's FX rate.
type AmountPattern struct {
	Name       string
	Regex      string
	Currency   string
	Multiplier float64
}

// Tables holds every static dictionary the pipeline consults. Build it once with
// DefaultTables and pass the value into the components that need it.
type Tables struct {
	SourceNames       map[string]string
	CategoryAliases   map[string]model.Category
	FXRates           map[string]float64
	FirmDomains       map[string]string
	CategoryKeywords  []KeywordRule
	StagePatterns     []StagePattern
	AmountPatterns    []AmountPattern
	StrategyKeywords  []StrategyRule
	GeographyKeywords []GeographyRule
	IncludePatterns   []string
	ExcludePatterns   []string
	UndisclosedWords  []string
	FirmStopwords     []string
	FundNameStopwords []string
}

// SourceName returns the display name for a domain, or "" when unknown.
// Subdomains fall back to their parent ("feeds.reuters.com" -> "reuters.com").
func (t Tables) SourceName(domain string) string {
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	for domain != "" {
		if name, ok := t.SourceNames[domain]; ok {
			return name
		}
		idx := strings.IndexByte(domain, '.')
		if idx < 0 {
			break
		}
		domain = domain[idx+1:]
	}
	return ""
}

// DefaultTables returns the built-in dictionaries.
func DefaultTables() Tables {
	return Tables{
		SourceNames: map[string]string{
			"pehub.com":                       "PE Hub",
			"privateequitywire.co.uk":         "Private Equity Wire",
			"privateequityinternational.com":  "Private Equity International",
			"venturecapitaljournal.com":       "Venture Capital Journal",
			"buyoutsinsider.com":              "Buyouts",
			"infrastructureinvestor.com":      "Infrastructure Investor",
			"perenews.com":                    "PERE",
			"privatedebtinvestor.com":         "Private Debt Investor",
			"news.crunchbase.com":             "Crunchbase News",
			"techcrunch.com":                  "TechCrunch",
			"prnewswire.com":                  "PR Newswire",
			"businesswire.com":                "Business Wire",
			"globenewswire.com":               "GlobeNewswire",
			"reuters.com":                     "Reuters",
			"bloomberg.com":                   "Bloomberg",
			"ft.com":                          "Financial Times",
			"wsj.com":                         "The Wall Street Journal",
			"institutionalinvestor.com":       "Institutional Investor",
			"pitchbook.com":                   "PitchBook",
			"axios.com":                       "Axios",
			"hedgeweek.com":                   "Hedgeweek",
			"news.google.com":                 "Google News",
			"altassets.net":                   "AltAssets",
			"realassets.ipe.com":              "IPE Real Assets",
			"secondariesinvestor.com":         "Secondaries Investor",
			"newprivatemarkets.com":           "New Private Markets",
			"privatefundscfo.com":             "Private Funds CFO",
			"finsmes.com":                     "FinSMEs",
			"alternativeswatch.com":           "Alternatives Watch",
			"citywire.com":                    "Citywire",
			"globalcapital.com":               "GlobalCapital",
			"eu-startups.com":                 "EU-Startups",
			"sifted.eu":                       "Sifted",
			"dealstreetasia.com":              "DealStreetAsia",
			"avcj.com":                        "AVCJ",
			"peprofessional.com":              "Private Equity Professional",
			"privateequityprofessional.com":   "Private Equity Professional",
			"realestatealert.com":             "Real Estate Alert",
			"commercialobserver.com":          "Commercial Observer",
			"pionline.com":                    "Pensions & Investments",
			"investmentnews.com":              "InvestmentNews",
			"fundfire.com":                    "FundFire",
			"wealthmanagement.com":            "WealthManagement.com",
			"privatemarketsmagazine.com":      "Private Markets Magazine",
			"institutionalrealestate.com":     "Institutional Real Estate",
			"infrastructureinvestor.net":      "Infrastructure Investor",
			"privateequitynews.com":           "Private Equity News",
			"penews.com":                      "Private Equity News",
			"fnlondon.com":                    "Financial News",
			"venturebeat.com":                 "VentureBeat",
			"fortune.com":                     "Fortune",
			"cnbc.com":                        "CNBC",
			"marketwatch.com":                 "MarketWatch",
			"yahoo.com":                       "Yahoo Finance",
			"finance.yahoo.com":               "Yahoo Finance",
			"forbes.com":                      "Forbes",
			"businessinsider.com":             "Business Insider",
			"privateequitycareers.com":        "Private Equity Careers",
			"privatecreditnews.com":           "Private Credit News",
			"creditflux.com":                  "Creditflux",
			"9fin.com":                        "9fin",
			"asianinvestor.net":               "AsianInvestor",
			"lavca.org":                       "LAVCA",
			"magnitt.com":                     "MAGNiTT",
			"wamda.com":                       "Wamda",
			"techinasia.com":                  "Tech in Asia",
			"inc42.com":                       "Inc42",
			"entrackr.com":                    "Entrackr",
			"vccircle.com":                    "VCCircle",
			"economictimes.indiatimes.com":    "The Economic Times",
			"thinkadvisor.com":                "ThinkAdvisor",
			"preqin.com":                      "Preqin",
			"wealthprofessional.ca":           "Wealth Professional",
			"bnnbloomberg.ca":                 "BNN Bloomberg",
			"theglobeandmail.com":             "The Globe and Mail",
			"afr.com":                         "Australian Financial Review",
			"scmp.com":                        "South China Morning Post",
			"nikkei.com":                      "Nikkei",
			"asia.nikkei.com":                 "Nikkei Asia",
			"handelsblatt.com":                "Handelsblatt",
			"lesechos.fr":                     "Les Echos",
			"unquote.com":                     "Unquote",
			"realdeals.eu.com":                "Real Deals",
			"privateequityinsights.com":       "Private Equity Insights",
			"privateequitypeople.com":         "Private Equity People",
			"infralogic.com":                  "Inframation",
			"ijglobal.com":                    "IJGlobal",
		},
		CategoryAliases: map[string]model.Category{
			"pe":                     model.CategoryPrivateEquity,
			"private equity fund":    model.CategoryPrivateEquity,
			"buyout":                 model.CategoryPrivateEquity,
			"buyout fund":            model.CategoryPrivateEquity,
			"growth equity":          model.CategoryPrivateEquity,
			"vc":                     model.CategoryVentureCapital,
			"vc fund":                model.CategoryVentureCapital,
			"venture":                model.CategoryVentureCapital,
			"venture fund":           model.CategoryVentureCapital,
			"venture capital fund":   model.CategoryVentureCapital,
			"credit":                 model.CategoryPrivateCredit,
			"private debt":           model.CategoryPrivateCredit,
			"private credit fund":    model.CategoryPrivateCredit,
			"direct lending":         model.CategoryPrivateCredit,
			"debt fund":              model.CategoryPrivateCredit,
			"real estate fund":       model.CategoryRealEstate,
			"property":               model.CategoryRealEstate,
			"real assets":            model.CategoryRealEstate,
			"infra":                  model.CategoryInfrastructure,
			"infrastructure fund":    model.CategoryInfrastructure,
			"hedge":                  model.CategoryHedgeFund,
			"hedge funds":            model.CategoryHedgeFund,
			"multi-strategy":         model.CategoryHedgeFund,
		},
		FXRates: map[string]float64{
			"USD": 1.0,
			"EUR": 1.10,
			"GBP": 1.27,
			"CHF": 1.13,
			"JPY": 0.0067,
			"CNY": 0.14,
			"INR": 0.012,
			"CAD": 0.74,
			"AUD": 0.66,
			"SEK": 0.095,
			"SGD": 0.74,
			"HKD": 0.13,
		},
		FirmDomains: map[string]string{
			"blackstone":            "blackstone.com",
			"kkr":                   "kkr.com",
			"carlyle":               "carlyle.com",
			"apollo":                "apollo.com",
			"tpg":                   "tpg.com",
			"bain":                  "baincapital.com",
			"warburg pincus":        "warburgpincus.com",
			"eqt":                   "eqtgroup.com",
			"cvc":                   "cvc.com",
			"ares":                  "aresmgmt.com",
			"brookfield":            "brookfield.com",
			"general atlantic":      "generalatlantic.com",
			"thoma bravo":           "thomabravo.com",
			"vista equity":          "vistaequitypartners.com",
			"insight":               "insightpartners.com",
			"sequoia":               "sequoiacap.com",
			"andreessen horowitz":   "a16z.com",
			"a16z":                  "a16z.com",
			"accel":                 "accel.com",
			"lightspeed":            "lsvp.com",
			"index ventures":        "indexventures.com",
			"permira":               "permira.com",
			"advent":                "adventinternational.com",
			"hellman friedman":      "hf.com",
			"silver lake":           "silverlake.com",
			"blue owl":              "blueowl.com",
			"hg":                    "hgcapital.com",
			"cinven":                "cinven.com",
			"ardian":                "ardian.com",
			"partners group":        "partnersgroup.com",
			"stepstone":             "stepstonegroup.com",
			"hamilton lane":         "hamiltonlane.com",
			"oaktree":               "oaktreecapital.com",
			"golub":                 "golubcapital.com",
			"hps":                   "hpspartners.com",
			"sixth street":          "sixthstreet.com",
			"global infrastructure": "global-infra.com",
			"stonepeak":             "stonepeak.com",
			"macquarie":             "macquarie.com",
			"greylock":              "greylock.com",
			"benchmark":             "benchmark.com",
			"kleiner perkins":       "kleinerperkins.com",
			"general catalyst":      "generalcatalyst.com",
			"founders":              "foundersfund.com",
			"tiger global":          "tigerglobal.com",
			"coatue":                "coatue.com",
			"clearlake":             "clearlake.com",
			"leonard green":         "leonardgreen.com",
			"veritas":               "veritascapital.com",
			"genstar":               "gencap.com",
		},
		CategoryKeywords: []KeywordRule{
			{Category: model.CategoryVentureCapital, Keywords: []string{"venture capital", "venture fund", "seed fund", "early-stage", "early stage", "startups", "vc fund", "series a", "pre-seed"}},
			{Category: model.CategoryPrivateCredit, Keywords: []string{"private credit", "direct lending", "private debt", "credit fund", "debt fund", "mezzanine", "lending fund", "special situations credit"}},
			{Category: model.CategoryRealEstate, Keywords: []string{"real estate", "property fund", "multifamily", "industrial properties", "logistics properties", "housing fund", "reits"}},
			{Category: model.CategoryInfrastructure, Keywords: []string{"infrastructure", "energy transition", "renewable", "digital infrastructure", "data centers", "data centres", "transport assets", "utilities"}},
			{Category: model.CategoryHedgeFund, Keywords: []string{"hedge fund", "multi-strategy", "long/short", "macro fund", "quant fund", "market-neutral"}},
			{Category: model.CategoryPrivateEquity, Keywords: []string{"private equity", "buyout", "growth equity", "lower middle market", "middle market", "mid-market", "control investments"}},
		},
		StagePatterns: []StagePattern{
			{Stage: model.StageFinalClose, Regex: `\b(final(ly)?\s+clos(e|ed|es|ing)|hard[-\s]cap|closes?\s+oversubscribed|completes?\s+fundrais(e|ing)|wraps?\s+up\s+fundrais(e|ing)|held\s+(its\s+)?final\s+close)\b`},
			{Stage: model.StageFirstClose, Regex: `\b(first\s+clos(e|ed|es|ing)|initial\s+clos(e|ed|es|ing))\b`},
			{Stage: model.StageInterimClose, Regex: `\b(interim\s+clos(e|ed|es|ing)|second\s+clos(e|ed|es|ing)|third\s+clos(e|ed|es|ing))\b`},
			{Stage: model.StageLaunch, Rank: 1, Regex: `\b(launch(es|ed|ing)?|unveil(s|ed)?|debut(s|ed)?|introduc(es|ed)|begins?\s+(raising|fundraising)|kicks?\s+off\s+fundraising|target(s|ing)?\s+\$)`},
			{Stage: model.StageFinalClose, Rank: 2, Regex: `\b(clos(es|ed)\s+(its\s+)?(\w+\s+){0,4}fund|raises?\s+\$|raised\s+\$)`},
		},
		AmountPatterns: buildAmountPatterns(),
		StrategyKeywords: []StrategyRule{
			{Strategy: model.StrategySecondaries, Keywords: []string{"secondaries", "secondary fund", "gp-led", "continuation fund", "lp stakes"}},
			{Strategy: model.StrategyFundOfFunds, Keywords: []string{"fund of funds", "fund-of-funds", "multi-manager"}},
			{Strategy: model.StrategyCoInvestment, Keywords: []string{"co-investment", "co-invest", "coinvestment"}},
			{Strategy: model.StrategyDirectLending, Keywords: []string{"direct lending", "senior secured", "unitranche"}},
			{Strategy: model.StrategyDistressed, Keywords: []string{"distressed", "special situations", "turnaround"}},
			{Strategy: model.StrategyMezzanine, Keywords: []string{"mezzanine", "junior capital"}},
			{Strategy: model.StrategyImpact, Keywords: []string{"impact", "climate", "sustainab", "esg", "decarbon"}},
			{Strategy: model.StrategyEarlyStage, Keywords: []string{"seed", "pre-seed", "early-stage", "early stage", "series a"}},
			{Strategy: model.StrategyLateStage, Keywords: []string{"late-stage", "late stage", "pre-ipo", "series c", "series d"}},
			{Strategy: model.StrategyGrowthEquity, Keywords: []string{"growth equity", "growth fund", "growth-stage", "expansion capital"}},
			{Strategy: model.StrategyBuyout, Keywords: []string{"buyout", "control investments", "leveraged"}},
		},
		GeographyKeywords: []GeographyRule{
			{Geography: model.GeographyGlobal, Keywords: []string{"global", "worldwide", "international"}},
			{Geography: model.GeographyNorthAmerica, Keywords: []string{"north america", "united states", "u.s.", "us-based", "canada", "canadian"}},
			{Geography: model.GeographyEurope, Keywords: []string{"europe", "european", "nordic", "dach", "uk ", "united kingdom", "germany", "france", "benelux", "iberia"}},
			{Geography: model.GeographyAsiaPacific, Keywords: []string{"asia", "apac", "china", "india", "japan", "southeast asia", "australia", "korea"}},
			{Geography: model.GeographyLatinAmerica, Keywords: []string{"latin america", "latam", "brazil", "mexico", "colombia", "chile"}},
			{Geography: model.GeographyMiddleEast, Keywords: []string{"middle east", "mena", "africa", "gulf", "saudi", "uae", "israel"}},
		},
		IncludePatterns: []string{
			`[$€£¥]\s?\d[\d,.]*\s?(billion|bn|million|mn|m|b)\b.{0,80}\bfunds?\b`,
			`\bfunds?\b.{0,80}[$€£¥]\s?\d[\d,.]*\s?(billion|bn|million|mn|m|b)\b`,
			`\b(final|first|interim|second|initial)\s+clos(e|ed|es|ing)\b`,
			`\bhard[-\s]cap\b`,
			`\bclos(es|ed|ing)\s+(its\s+)?(\w+\s+){0,5}fund\b`,
			`\b(launch(es|ed)?|unveil(s|ed)?|debut(s|ed)?)\s+(a\s+|its\s+|new\s+|first\s+|debut\s+)*(\w+\s+){0,4}fund\b`,
			`\bfund\s+(i{1,3}|iv|v|vi{0,3}|ix|x|\d{1,2})\b`,
			`\b(oversubscribed|fundrais(e|ing))\b`,
			`\b(venture|private equity|private credit|infrastructure|real estate|secondaries|growth|buyout|credit|debt)\s+(fund|vehicle)\b`,
			`\bcapital\s+commitments?\b`,
		},
		ExcludePatterns: []string{
			`\b(series\s+[a-f]|seed|pre-seed)\s+(round|funding|financing)\b`,
			`\braises?\s+[$€£]\s?\d[\d,.]*\s?(million|m|mn)\s+(in\s+)?(series|seed|funding round)\b`,
			`\b(startup|start-up)\s+raises\b`,
			`\b(earnings|quarterly results|q[1-4]\s+results|eps|revenue\s+guidance|dividend)\b`,
			`\b(shares?|stock)\s+(rose|fell|jumped|slid|surged|plunged|gained|dropped)\b`,
			`\b(etf|exchange[-\s]traded\s+fund|mutual\s+funds?|index\s+fund|money\s+market\s+fund)\b`,
			`\b(ipo|initial\s+public\s+offering)\s+(priced|prices|pricing)\b`,
		},
		UndisclosedWords: []string{"undisclosed", "not disclosed", "unknown", "n/a", "na", "none", "tbd", "unspecified"},
		FirmStopwords: []string{
			"partners", "partner", "capital", "fund", "funds", "management", "managers", "group",
			"advisors", "advisers", "investments", "investment", "holdings", "ventures", "equity",
			"asset", "assets", "global", "the", "and", "co", "company",
			"llc", "lp", "llp", "ltd", "limited", "inc", "incorporated", "plc", "sa", "ag", "gmbh", "corp", "corporation",
		},
		FundNameStopwords: []string{
			"fund", "funds", "opportunities", "opportunity", "global", "partners", "capital",
			"strategic", "strategy", "strategies", "investors", "investment", "investments",
			"lp", "llc", "scsp", "the", "and", "of", "co", "vehicle", "program",
			"management", "group", "holdings", "advisors", "equity", "ventures",
		},
	}
}

type currencyDef struct {
	code   string
	prefix string
}

var currencies = []currencyDef{
	{code: "USD", prefix: `(?:us\$|\$|usd\s?)`},
	{code: "EUR", prefix: `(?:€|eur\s?|euro\s?)`},
	{code: "GBP", prefix: `(?:£|gbp\s?)`},
	{code: "JPY", prefix: `(?:¥|jpy\s?|yen\s?)`},
	{code: "CHF", prefix: `(?:chf\s?)`},
	{code: "CAD", prefix: `(?:\bc\$|cad\s?)`},
	{code: "AUD", prefix: `(?:\ba\$|aud\s?)`},
	{code: "SEK", prefix: `(?:sek\s?)`},
	{code: "INR", prefix: `(?:₹|inr\s?|\brs\.?\s?)`},
	{code: "CNY", prefix: `(?:cny\s?|rmb\s?)`},
	{code: "SGD", prefix: `(?:\bs\$|sgd\s?)`},
	{code: "HKD", prefix: `(?:\bhk\$|hkd\s?)`},
}

const amountNumber = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`

// buildAmountPatterns produces the prioritized amount patterns: prefixed
// currencies with a magnitude first (specific currency symbols before "$"),
// then suffixed currency words, then bare magnitudes assumed to be USD.
func buildAmountPatterns() []AmountPattern {
	magnitudes := []struct {
		name  string
		regex string
		mult  float64
	}{
		{name: "trillion", regex: `(?:trillion|tn)`, mult: 1_000_000},
		{name: "billion", regex: `(?:billion|bn|b)`, mult: 1000},
		{name: "million", regex: `(?:million|mln|mn|mm|m)`, mult: 1},
	}

	// Multi-character prefixes such as "hk$" must be tried before "$".
	ordered := make([]currencyDef, 0, len(currencies))
	for _, c := range currencies {
		if c.code != "USD" {
			ordered = append(ordered, c)
		}
	}
	ordered = append(ordered, currencies[0])

	var patterns []AmountPattern
	for _, c := range ordered {
		for _, m := range magnitudes {
			patterns = append(patterns, AmountPattern{
				Name:       fmt.Sprintf("%s-%s", strings.ToLower(c.code), m.name),
				Regex:      c.prefix + `\s?` + amountNumber + `\s?` + m.regex + `\b`,
				Currency:   c.code,
				Multiplier: m.mult,
			})
		}
	}

	suffixed := []struct {
		code  string
		regex string
	}{
		{code: "EUR", regex: `(?:euros?|eur)`},
		{code: "GBP", regex: `(?:pounds?|gbp|sterling)`},
		{code: "USD", regex: `(?:dollars?|usd)`},
	}
	for _, s := range suffixed {
		for _, m := range magnitudes {
			patterns = append(patterns, AmountPattern{
				Name:       fmt.Sprintf("%s-%s-suffix", strings.ToLower(s.code), m.name),
				Regex:      amountNumber + `\s?` + m.regex + `\s+` + s.regex + `\b`,
				Currency:   s.code,
				Multiplier: m.mult,
			})
		}
	}

	for _, m := range magnitudes[:2] {
		patterns = append(patterns, AmountPattern{
			Name:       "bare-" + m.name,
			Regex:      amountNumber + `\s?` + m.regex + `\b`,
			Currency:   "USD",
			Multiplier: m.mult,
		})
	}

	// Spelled-out dollar figures such as "$750,000,000".
	patterns = append(patterns, AmountPattern{
		Name:       "usd-units",
		Regex:      `(?:us\$|\$|usd\s?)\s?(\d{1,3}(?:,\d{3}){2,})\b`,
		Currency:   "USD",
		Multiplier: 0.000001,
	})

	return patterns
}
