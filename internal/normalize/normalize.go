// Package normalize turns loosely formatted extraction output into canonical values.
package normalize

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/Veraticus/fundwatch/internal/config"
	"github.com/Veraticus/fundwatch/internal/model"
)

type compiledStage struct {
	re    *regexp.Regexp
	stage model.Stage
	rank  int
}

type compiledAmount struct {
	re         *regexp.Regexp
	currency   string
	multiplier float64
}

// Normalizer applies the lookup tables. It holds no mutable state and is safe
// for concurrent use.
type Normalizer struct {
	firmStops   map[string]bool
	undisclosed map[string]bool
	stages      []compiledStage
	amounts     []compiledAmount
	tables      config.Tables
}

// New compiles the regex tables.
func New(tables config.Tables) (*Normalizer, error) {
	n := &Normalizer{
		tables:      tables,
		firmStops:   toSet(tables.FirmStopwords),
		undisclosed: toSet(tables.UndisclosedWords),
	}

	for _, p := range tables.StagePatterns {
		re, err := regexp.Compile("(?i)" + p.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid stage pattern for %s: %w", p.Stage, err)
		}
		n.stages = append(n.stages, compiledStage{re: re, stage: p.Stage, rank: p.Rank})
	}
	sort.SliceStable(n.stages, func(i, j int) bool { return n.stages[i].rank < n.stages[j].rank })

	for _, p := range tables.AmountPatterns {
		re, err := regexp.Compile("(?i)" + p.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid amount pattern %s: %w", p.Name, err)
		}
		if _, ok := tables.FXRates[p.Currency]; !ok {
			return nil, fmt.Errorf("amount pattern %s: no FX rate for %s", p.Name, p.Currency)
		}
		n.amounts = append(n.amounts, compiledAmount{re: re, currency: p.Currency, multiplier: p.Multiplier})
	}

	return n, nil
}

// Tables returns the tables the normalizer was built from.
func (n *Normalizer) Tables() config.Tables {
	return n.tables
}

// Category resolves raw to a canonical category: exact name, alias, keyword
// scan over raw then context, then the default.
func (n *Normalizer) Category(raw, context string) model.Category {
	if c, ok := model.ParseCategory(raw); ok {
		return c
	}

	key := strings.ToLower(strings.TrimSpace(raw))
	if c, ok := n.tables.CategoryAliases[key]; ok {
		return c
	}

	for _, text := range []string{raw, context} {
		haystack := strings.ToLower(text)
		for _, rule := range n.tables.CategoryKeywords {
			if containsAny(haystack, rule.Keywords) {
				return rule.Category
			}
		}
	}

	return model.DefaultCategory
}

// Stage resolves raw to a canonical stage: exact name, then the ordered
// patterns over raw and then context.
func (n *Normalizer) Stage(raw, context string) model.Stage {
	if s, ok := model.ParseStage(raw); ok {
		return s
	}

	for _, text := range []string{raw, context} {
		if text == "" {
			continue
		}
		if s, ok := n.matchStage(text); ok {
			return s
		}
	}

	return model.StageOther
}

// matchStage returns the stage of the earliest match within the lowest rank
// that matches text at all.
func (n *Normalizer) matchStage(text string) (model.Stage, bool) {
	var best model.Stage
	bestAt := -1
	for i, p := range n.stages {
		if i > 0 && p.rank != n.stages[i-1].rank && bestAt >= 0 {
			break
		}
		loc := p.re.FindStringIndex(text)
		if loc != nil && (bestAt < 0 || loc[0] < bestAt) {
			best, bestAt = p.stage, loc[0]
		}
	}
	return best, bestAt >= 0
}

// IsUndisclosed reports whether s states that no amount was published.
func (n *Normalizer) IsUndisclosed(s string) bool {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" || n.undisclosed[key] {
		return true
	}
	return strings.Contains(key, "undisclosed") || strings.Contains(key, "not disclosed")
}

// AmountUSDMillions parses an amount string into millions of US dollars.
// It returns nil for undisclosed or unparseable amounts.
func (n *Normalizer) AmountUSDMillions(s string) *float64 {
	if n.IsUndisclosed(s) {
		return nil
	}

	for _, p := range n.amounts {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || value <= 0 {
			continue
		}
		usd := round2(value * p.multiplier * n.tables.FXRates[p.currency])
		return &usd
	}

	return nil
}

// Strategy infers an investment strategy, or "" when nothing matches.
func (n *Normalizer) Strategy(fundName string, category model.Category, description string) model.Strategy {
	haystack := strings.ToLower(strings.Join([]string{fundName, string(category), description}, " "))
	for _, rule := range n.tables.StrategyKeywords {
		if containsAny(haystack, rule.Keywords) {
			return rule.Strategy
		}
	}
	return ""
}

// Geography infers the target region. Several distinct regions collapse to Global.
func (n *Normalizer) Geography(fundName, description string) model.Geography {
	haystack := " " + strings.ToLower(fundName+" "+description) + " "

	var (
		found  model.Geography
		global bool
		count  int
	)
	for _, rule := range n.tables.GeographyKeywords {
		if !containsAny(haystack, rule.Keywords) {
			continue
		}
		if rule.Geography == model.GeographyGlobal {
			global = true
			continue
		}
		if found != rule.Geography {
			found = rule.Geography
			count++
		}
	}

	switch {
	case count > 1:
		return model.GeographyGlobal
	case count == 1:
		return found
	case global:
		return model.GeographyGlobal
	}
	return ""
}

// Website returns supplied when it is a well-formed http(s) URL with a dotted
// host, otherwise the known domain for firm, otherwise nil.
func (n *Normalizer) Website(supplied, firm string) *string {
	if site, ok := validWebsite(supplied); ok {
		return &site
	}

	words := strings.Fields(foldName(firm))
	if len(words) == 0 {
		return nil
	}

	candidates := []string{strings.Join(words, " ")}
	var core []string
	for _, w := range words {
		if !n.firmStops[w] {
			core = append(core, w)
		}
	}
	if len(core) > 0 {
		candidates = append(candidates, strings.Join(core, " "))
	}
	for i := len(words) - 1; i >= 1; i-- {
		candidates = append(candidates, strings.Join(words[:i], " "))
	}

	for _, c := range candidates {
		if domain, ok := n.tables.FirmDomains[c]; ok {
			site := "https://" + domain
			return &site
		}
	}
	return nil
}

// SourceName returns the display name for an article's domain, falling back to fallback.
func (n *Normalizer) SourceName(domain, fallback string) string {
	if name := n.tables.SourceName(domain); name != "" {
		return name
	}
	return fallback
}

// FirmSlug returns a lowercase hyphenated slug for a firm name.
func FirmSlug(firm string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(firm) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func validWebsite(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := u.Hostname()
	if !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return "", false
	}
	return s, true
}

// foldName lowercases s and replaces everything but letters, digits and spaces with spaces.
func foldName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
}

// containsAny reports whether any keyword occurs in haystack at the start of a word.
func containsAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if hasWordPrefix(haystack, kw) {
			return true
		}
	}
	return false
}

func hasWordPrefix(haystack, kw string) bool {
	for offset := 0; ; {
		idx := strings.Index(haystack[offset:], kw)
		if idx < 0 {
			return false
		}
		pos := offset + idx
		if pos == 0 || !isWordByte(haystack[pos-1]) {
			return true
		}
		offset = pos + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
