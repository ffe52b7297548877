// Package dedupe identifies fund records that describe the same fund.
//
// Two records are the same fund when their dedupe keys are equal, or when any
// one of five fuzzy rules holds. The rules are deliberately permissive; a
// separate review pass surfaces borderline pairs for a human.
package dedupe

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/Veraticus/fundwatch/internal/config"
	"github.com/Veraticus/fundwatch/internal/model"
)

// Config holds the matching thresholds.
type Config struct {
	NameThreshold       float64 `mapstructure:"name_threshold"`
	AmountVariance      float64 `mapstructure:"amount_variance"`
	TightAmountVariance float64 `mapstructure:"tight_amount_variance"`
	CoreNameThreshold   float64 `mapstructure:"core_name_threshold"`
	ReviewFloor         float64 `mapstructure:"review_floor"`
	DateWindowDays      int     `mapstructure:"date_window_days"`
	ReviewMinSignals    int     `mapstructure:"review_min_signals"`
	FirmKeyLength       int     `mapstructure:"firm_key_length"`
	// SequelGuard stops the fuzzy rules from merging two records whose fund
	// sequence numbers are both known and differ (Fund III vs Fund IV).
	SequelGuard bool `mapstructure:"sequel_guard"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		NameThreshold:       0.85,
		AmountVariance:      0.10,
		TightAmountVariance: 0.01,
		CoreNameThreshold:   0.70,
		ReviewFloor:         0.5,
		DateWindowDays:      3,
		ReviewMinSignals:    3,
		FirmKeyLength:       15,
		SequelGuard:         false,
	}
}

// Rule names the reason two records were judged duplicates.
type Rule int

// Match rules, in evaluation order.
const (
	RuleNone Rule = iota
	RuleExactKey
	RuleNameAndFirm
	RuleFirmAmount
	RuleFirmCategoryDate
	RuleFirmTightAmountDate
	RuleFirmCoreName
)

func (r Rule) String() string {
	switch r {
	case RuleExactKey:
		return "exact key"
	case RuleNameAndFirm:
		return "name and firm similarity"
	case RuleFirmAmount:
		return "same firm, similar amount"
	case RuleFirmCategoryDate:
		return "same firm, category and date window"
	case RuleFirmTightAmountDate:
		return "same firm, matching amount and date window"
	case RuleFirmCoreName:
		return "same firm, similar core name"
	default:
		return "none"
	}
}

// Deduper computes keys and applies the fuzzy rules.
type Deduper struct {
	firmStops map[string]bool
	coreStops map[string]bool
	cfg       Config
}

// New builds a Deduper from thresholds and the stopword tables.
func New(cfg Config, tables config.Tables) *Deduper {
	if cfg.FirmKeyLength <= 0 {
		cfg.FirmKeyLength = DefaultConfig().FirmKeyLength
	}
	return &Deduper{
		cfg:       cfg,
		firmStops: toSet(tables.FirmStopwords),
		coreStops: toSet(tables.FundNameStopwords),
	}
}

// Config returns the thresholds in use.
func (d *Deduper) Config() Config {
	return d.cfg
}

// Key returns the dedupe key for a fund: the normalized firm prefix, joined
// with the fund's sequence number when it has one.
func (d *Deduper) Key(firm, fundName string) string {
	words := strings.Fields(fold(firm))
	var b strings.Builder
	for _, w := range words {
		if !d.firmStops[w] {
			b.WriteString(w)
		}
	}
	base := b.String()
	if base == "" {
		base = strings.Join(words, "")
	}

	runes := []rune(base)
	if len(runes) > d.cfg.FirmKeyLength {
		base = string(runes[:d.cfg.FirmKeyLength])
	}

	if seq := Sequence(fundName); seq != "" {
		return base + "-" + seq
	}
	return base
}

// FundKey is Key applied to an extracted fund.
func (d *Deduper) FundKey(f model.ExtractedFund) string {
	return d.Key(f.FirmName, f.FundName)
}

// Match reports whether a and b describe the same fund and which rule decided it.
func (d *Deduper) Match(a, b model.ExtractedFund) (Rule, bool) {
	if d.FundKey(a) == d.FundKey(b) {
		return RuleExactKey, true
	}

	if d.cfg.SequelGuard {
		sa, sb := Sequence(a.FundName), Sequence(b.FundName)
		if sa != "" && sb != "" && sa != sb {
			return RuleNone, false
		}
	}

	nameSim := Similarity(a.FundName, b.FundName)
	firmSim := Similarity(a.FirmName, b.FirmName)
	if nameSim >= d.cfg.NameThreshold && firmSim >= d.cfg.NameThreshold {
		return RuleNameAndFirm, true
	}

	if !d.sameFirm(a.FirmName, b.FirmName, firmSim) {
		return RuleNone, false
	}

	variance, haveAmounts := amountVariance(a.AmountUSDMillions, b.AmountUSDMillions)
	if haveAmounts && variance < d.cfg.AmountVariance {
		return RuleFirmAmount, true
	}

	withinWindow := d.datesWithin(a.AnnouncementDate, b.AnnouncementDate)
	if withinWindow && a.Category == b.Category {
		return RuleFirmCategoryDate, true
	}
	if withinWindow && haveAmounts && variance <= d.cfg.TightAmountVariance {
		return RuleFirmTightAmountDate, true
	}

	if Similarity(d.coreName(a.FundName), d.coreName(b.FundName)) >= d.cfg.CoreNameThreshold {
		return RuleFirmCoreName, true
	}

	return RuleNone, false
}

// sameFirm holds when the firm names are similar or one core name contains the other.
func (d *Deduper) sameFirm(a, b string, sim float64) bool {
	if sim >= d.cfg.NameThreshold {
		return true
	}
	ca, cb := d.coreFirm(a), d.coreFirm(b)
	if ca == "" || cb == "" {
		return false
	}
	return strings.Contains(ca, cb) || strings.Contains(cb, ca)
}

func (d *Deduper) coreFirm(firm string) string {
	return stripWords(firm, d.firmStops)
}

func (d *Deduper) coreName(name string) string {
	return stripWords(name, d.coreStops)
}

func (d *Deduper) datesWithin(a, b string) bool {
	ta, okA := model.ParseDate(a)
	tb, okB := model.ParseDate(b)
	if !okA || !okB {
		return false
	}
	diff := ta.Sub(tb)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours()/24) <= d.cfg.DateWindowDays
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over normalized strings.
func Similarity(a, b string) float64 {
	a, b = normalizeText(a), normalizeText(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Sequence extracts the fund sequence number ("III", "4") as an arabic string,
// or "" when the name has none. The last qualifying word wins.
func Sequence(fundName string) string {
	words := strings.Fields(fold(fundName))
	for i := len(words) - 1; i >= 0; i-- {
		w := words[i]
		if n, err := strconv.Atoi(w); err == nil {
			if len(w) <= 2 && n > 0 {
				return strconv.Itoa(n)
			}
			continue
		}
		if n := romanValue(w); n > 0 && (len(w) > 1 || numeralPosition(words, i)) {
			return strconv.Itoa(n)
		}
	}
	return ""
}

// numeralPosition holds when words[i] follows "fund" or "vehicle" or ends the
// name, so a lone letter such as "Project X Fund" is not read as a numeral.
func numeralPosition(words []string, i int) bool {
	if i == len(words)-1 {
		return true
	}
	return i > 0 && (words[i-1] == "fund" || words[i-1] == "vehicle")
}

var romanDigits = map[rune]int{'i': 1, 'v': 5, 'x': 10}

// romanValue parses a canonical numeral made of i, v and x up to 39.
func romanValue(s string) int {
	if s == "" || len(s) > 6 {
		return 0
	}
	total := 0
	prev := 0
	for i := len(s) - 1; i >= 0; i-- {
		v, ok := romanDigits[rune(s[i])]
		if !ok {
			return 0
		}
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	if total <= 0 || total > 39 || toRoman(total) != s {
		return 0
	}
	return total
}

func toRoman(n int) string {
	var b strings.Builder
	for _, step := range []struct {
		s string
		v int
	}{{"x", 10}, {"ix", 9}, {"v", 5}, {"iv", 4}, {"i", 1}} {
		for n >= step.v {
			b.WriteString(step.s)
			n -= step.v
		}
	}
	return b.String()
}

func amountVariance(a, b *float64) (float64, bool) {
	if a == nil || b == nil || *a <= 0 || *b <= 0 {
		return 0, false
	}
	diff := *a - *b
	if diff < 0 {
		diff = -diff
	}
	return diff / max(*a, *b), true
}

// fold lowercases s and turns everything but letters and digits into spaces.
func fold(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(fold(s)), " ")
}

func stripWords(s string, stops map[string]bool) string {
	words := strings.Fields(fold(s))
	kept := words[:0]
	for _, w := range words {
		if !stops[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}
