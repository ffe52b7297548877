// Package health tracks per-source reliability and disables sources that keep failing.
package health

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/fundwatch/internal/feeds"
	"github.com/Veraticus/fundwatch/internal/model"
)

// Config holds the circuit-breaker thresholds.
type Config struct {
	ErrorThreshold int           `mapstructure:"error_threshold"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
}

// DefaultConfig disables a source after five consecutive failures for 24 hours
// and warns after 72 hours without a success.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 5,
		Cooldown:       24 * time.Hour,
		StaleAfter:     72 * time.Hour,
	}
}

// Warning describes a source that needs attention.
type Warning struct {
	Name   string
	Reason string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// Tracker owns the FeedHealth records for one run.
type Tracker struct {
	now     func() time.Time
	logger  *slog.Logger
	records map[string]*model.FeedHealth
	cfg     Config
	mu      sync.Mutex
}

// NewTracker starts from the persisted records.
func NewTracker(records []model.FeedHealth, cfg Config, opts ...Option) *Tracker {
	def := DefaultConfig()
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = def.ErrorThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}

	t := &Tracker{
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default(),
		records: make(map[string]*model.FeedHealth, len(records)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "health")

	for i := range records {
		r := records[i]
		t.records[r.Name] = &r
	}
	return t
}

// ShouldFetch reports whether a source may be fetched now. Unknown and enabled
// sources may; disabled ones only once their cool-down has elapsed.
func (t *Tracker) ShouldFetch(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[name]
	if !ok || r.Enabled {
		return true
	}

	since := r.DisabledAt
	if since == nil {
		since = r.LastFetch
	}
	if since == nil {
		return true
	}
	return t.now().Sub(*since) >= t.cfg.Cooldown
}

// Record applies a fetch outcome. A success resets the error count and
// re-enables the source; a failure increments it and disables the source once
// the threshold is reached.
func (t *Tracker) Record(outcome feeds.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	r := t.ensure(outcome.Source.Name, outcome.Source.URL, now)
	r.LastFetch = &now
	if outcome.Source.URL != "" {
		r.URL = outcome.Source.URL
	}

	if outcome.Success {
		if !r.Enabled {
			t.logger.Info("Source re-enabled", "source", r.Name)
		}
		r.ErrorCount = 0
		r.LastError = ""
		r.LastSuccess = &now
		r.LastArticleCount = outcome.ArticleCount
		r.Enabled = true
		r.DisabledAt = nil
		return
	}

	r.ErrorCount++
	r.LastArticleCount = 0
	if outcome.Err != nil {
		r.LastError = outcome.Err.Error()
	} else {
		r.LastError = "unknown error"
	}

	if r.ErrorCount >= t.cfg.ErrorThreshold {
		if r.Enabled {
			t.logger.Warn("Source disabled",
				"source", r.Name,
				"errors", r.ErrorCount,
				"last_error", r.LastError)
		}
		r.Enabled = false
		r.DisabledAt = &now
	}
}

// Warnings lists disabled sources and enabled sources with no success within StaleAfter.
func (t *Tracker) Warnings() []Warning {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var warnings []Warning
	for _, r := range t.sorted() {
		switch {
		case !r.Enabled:
			warnings = append(warnings, Warning{
				Name:   r.Name,
				Reason: fmt.Sprintf("disabled after %d consecutive errors: %s", r.ErrorCount, r.LastError),
			})
		case r.LastSuccess != nil:
			if age := now.Sub(*r.LastSuccess); age > t.cfg.StaleAfter {
				warnings = append(warnings, Warning{
					Name:   r.Name,
					Reason: fmt.Sprintf("no successful fetch for %s", age.Round(time.Hour)),
				})
			}
		case r.FirstSeen != nil && now.Sub(*r.FirstSeen) > t.cfg.StaleAfter:
			warnings = append(warnings, Warning{
				Name:   r.Name,
				Reason: "never fetched successfully",
			})
		}
	}
	return warnings
}

// Snapshot returns copies of every record sorted by name.
func (t *Tracker) Snapshot() []model.FeedHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	sorted := t.sorted()
	out := make([]model.FeedHealth, len(sorted))
	for i, r := range sorted {
		out[i] = *r
	}
	return out
}

func (t *Tracker) ensure(name, url string, now time.Time) *model.FeedHealth {
	if r, ok := t.records[name]; ok {
		if r.FirstSeen == nil {
			r.FirstSeen = &now
		}
		return r
	}
	r := &model.FeedHealth{Name: name, URL: url, Enabled: true, FirstSeen: &now}
	t.records[name] = r
	return r
}

func (t *Tracker) sorted() []*model.FeedHealth {
	out := make([]*model.FeedHealth, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
