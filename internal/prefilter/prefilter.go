// Package prefilter discards obviously irrelevant articles before any model call.
package prefilter

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/fundwatch/internal/config"
	"github.com/Veraticus/fundwatch/internal/model"
)

// Verdict is the pre-filter decision for one article.
type Verdict string

const (
	// VerdictKeep means at least one include and no exclude pattern matched.
	VerdictKeep Verdict = "keep"
	// VerdictExcluded means an exclude pattern matched.
	VerdictExcluded Verdict = "excluded"
	// VerdictNoSignal means no include pattern matched.
	VerdictNoSignal Verdict = "no_signal"
)

// Stats counts verdicts over one Filter call.
type Stats struct {
	Kept     int
	Excluded int
	NoSignal int
}

// Total returns the number of articles examined.
func (s Stats) Total() int {
	return s.Kept + s.Excluded + s.NoSignal
}

// Filter holds two compiled pattern sets. Exclusions are checked first.
type Filter struct {
	logger   *slog.Logger
	includes []*regexp.Regexp
	excludes []*regexp.Regexp
}

// New compiles the include and exclude patterns case-insensitively.
func New(tables config.Tables, logger *slog.Logger) (*Filter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	includes, err := compile(tables.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	excludes, err := compile(tables.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}

	return &Filter{
		includes: includes,
		excludes: excludes,
		logger:   logger.With("component", "prefilter"),
	}, nil
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if !strings.HasPrefix(p, "(?i)") {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Check classifies one article over its title and snippet.
func (f *Filter) Check(article model.RawArticle) Verdict {
	text := article.Text()
	for _, re := range f.excludes {
		if re.MatchString(text) {
			return VerdictExcluded
		}
	}
	for _, re := range f.includes {
		if re.MatchString(text) {
			return VerdictKeep
		}
	}
	return VerdictNoSignal
}

// Filter returns the articles worth sending to the model, in input order.
func (f *Filter) Filter(articles []model.RawArticle) ([]model.RawArticle, Stats) {
	var stats Stats
	kept := make([]model.RawArticle, 0, len(articles))

	for _, a := range articles {
		switch f.Check(a) {
		case VerdictKeep:
			stats.Kept++
			kept = append(kept, a)
		case VerdictExcluded:
			stats.Excluded++
			f.logger.Debug("Excluded article", "title", a.Title)
		default:
			stats.NoSignal++
		}
	}

	f.logger.Info("Pre-filter complete",
		"examined", stats.Total(),
		"kept", stats.Kept,
		"excluded", stats.Excluded,
		"no_signal", stats.NoSignal)
	return kept, stats
}
