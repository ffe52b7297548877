// Package metrics records pipeline counters in a private Prometheus registry
// and exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Veraticus/fundwatch/internal/config"
)

const namespace = "fundwatch"

// Pipeline stages counted by Articles.
const (
	StageFetched     = "fetched"
	StagePrefiltered = "prefiltered"
	StageConfirmed   = "confirmed"
	StageExtracted   = "extracted"
)

// Recorder holds the metrics for one process.
type Recorder struct {
	registry       *prometheus.Registry
	articles       *prometheus.CounterVec
	sourceFetches  *prometheus.CounterVec
	llmCalls       *prometheus.CounterVec
	funds          *prometheus.CounterVec
	directoryFunds prometheus.Gauge
	feedsDisabled  prometheus.Gauge
	runDuration    prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// New registers every metric on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Articles reaching each pipeline stage.",
		}, []string{"stage"}),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Feed and search fetches by result.",
		}, []string{"result"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Language-model calls by kind and result.",
		}, []string{"kind", "result"}),
		funds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "funds_total",
			Help:      "Extracted funds by merge outcome.",
		}, []string{"outcome"}),
		directoryFunds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_funds",
			Help:      "Funds in the directory after the last run.",
		}),
		feedsDisabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feeds_disabled",
			Help:      "Sources currently disabled by the health tracker.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last run completed.",
		}),
	}

	r.registry.MustRegister(
		r.articles, r.sourceFetches, r.llmCalls, r.funds,
		r.directoryFunds, r.feedsDisabled, r.runDuration, r.lastSuccess,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Articles adds n to the count for stage.
func (r *Recorder) Articles(stage string, n int) {
	r.articles.WithLabelValues(stage).Add(float64(n))
}

// SourceFetch counts one fetch outcome.
func (r *Recorder) SourceFetch(success bool) {
	r.sourceFetches.WithLabelValues(result(success)).Inc()
}

// LLMCall counts one model call. kind is "filter" or "extract"; cached calls
// were answered from the article ledger.
func (r *Recorder) LLMCall(kind string, success, cached bool) {
	res := result(success)
	if cached {
		res = "cached"
	}
	r.llmCalls.WithLabelValues(kind, res).Inc()
}

// Funds records merge outcomes.
func (r *Recorder) Funds(added, updated, duplicates int) {
	r.funds.WithLabelValues("added").Add(float64(added))
	r.funds.WithLabelValues("updated").Add(float64(updated))
	r.funds.WithLabelValues("duplicate").Add(float64(duplicates))
}

// Finish records the end-of-run gauges.
func (r *Recorder) Finish(directoryFunds, feedsDisabled int, duration time.Duration, at time.Time) {
	r.directoryFunds.Set(float64(directoryFunds))
	r.feedsDisabled.Set(float64(feedsDisabled))
	r.runDuration.Set(duration.Seconds())
	r.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile atomically writes every metric to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := config.EnsureParent(path); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
