package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/config"
	"github.com/Veraticus/fundwatch/internal/coverage"
	"github.com/Veraticus/fundwatch/internal/dedupe"
	"github.com/Veraticus/fundwatch/internal/directory"
	"github.com/Veraticus/fundwatch/internal/engine"
	"github.com/Veraticus/fundwatch/internal/feeds"
	"github.com/Veraticus/fundwatch/internal/health"
	"github.com/Veraticus/fundwatch/internal/llm"
	"github.com/Veraticus/fundwatch/internal/metrics"
	"github.com/Veraticus/fundwatch/internal/normalize"
	"github.com/Veraticus/fundwatch/internal/prefilter"
	"github.com/Veraticus/fundwatch/internal/storage"
)

func setDefaults() {
	dataDir := config.DataDir()

	viper.SetDefault("logging.level", "warn")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("paths.directory", filepath.Join(dataDir, "funds.json"))
	viper.SetDefault("paths.covered", filepath.Join(dataDir, "covered.json"))
	viper.SetDefault("paths.ledger", filepath.Join(dataDir, "ledger.db"))
	viper.SetDefault("paths.metrics", "")
	viper.SetDefault("sources.file", "")
	viper.SetDefault("ledger.retention", 90*24*time.Hour)

	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.model", "")
	viper.SetDefault("llm.base_url", "")
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("llm.concurrency", 1)
	viper.SetDefault("llm.interval", time.Second)
	viper.SetDefault("llm.min_confidence", 0.5)

	viper.SetDefault("fetch.timeout", 20*time.Second)
	viper.SetDefault("fetch.delay", time.Second)
	viper.SetDefault("fetch.max_age", time.Duration(0))
	viper.SetDefault("enrich.min_chars", 0)
	viper.SetDefault("enrich.max_chars", 4000)
}

// directoryPath is read through the persistent flag binding.
func directoryPath() string {
	return config.ExpandPath(viper.GetString("paths.directory"))
}

func coveredPath() string {
	return config.ExpandPath(viper.GetString("paths.covered"))
}

func ledgerPath() string {
	return config.ExpandPath(viper.GetString("paths.ledger"))
}

func dedupeConfig() (dedupe.Config, error) {
	cfg := dedupe.DefaultConfig()
	if err := viper.UnmarshalKey("dedupe", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: dedupe settings: %w", common.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func healthConfig() (health.Config, error) {
	cfg := health.DefaultConfig()
	if err := viper.UnmarshalKey("health", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: health settings: %w", common.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func newDeduper(tables config.Tables) (*dedupe.Deduper, error) {
	cfg, err := dedupeConfig()
	if err != nil {
		return nil, err
	}
	return dedupe.New(cfg, tables), nil
}

// llmConfig resolves provider credentials. The key comes from llm.api_key
// (FUNDWATCH_LLM_API_KEY) or the provider's conventional variable.
func llmConfig() llm.Config {
	provider := viper.GetString("llm.provider")
	key := viper.GetString("llm.api_key")
	if key == "" {
		switch provider {
		case "openai":
			key = os.Getenv("OPENAI_API_KEY")
		default:
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	return llm.Config{
		Provider:    provider,
		APIKey:      key,
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
		Timeout:     viper.GetDuration("llm.timeout"),
	}
}

// pipeline is an engine plus the resources to release after its run.
type pipeline struct {
	engine *engine.Engine
	ledger *storage.Ledger
}

func (p *pipeline) Close() error {
	if p.ledger == nil {
		return nil
	}
	return p.ledger.Close()
}

func buildPipeline(ctx context.Context, opts engine.Options) (*pipeline, error) {
	logger := slog.Default()
	tables := config.DefaultTables()

	sources, err := config.LoadSources(viper.GetString("sources.file"))
	if err != nil {
		return nil, err
	}

	deduper, err := newDeduper(tables)
	if err != nil {
		return nil, err
	}
	healthCfg, err := healthConfig()
	if err != nil {
		return nil, err
	}
	pf, err := prefilter.New(tables, logger)
	if err != nil {
		return nil, err
	}

	fetchOpts := feeds.Options{
		Logger:  logger,
		Timeout: viper.GetDuration("fetch.timeout"),
		Delay:   viper.GetDuration("fetch.delay"),
		MaxAge:  viper.GetDuration("fetch.max_age"),
	}

	deps := engine.Deps{
		RSS:         feeds.NewRSSFetcher(fetchOpts, tables),
		Search:      feeds.NewSearchFetcher(fetchOpts, sources.Search.Endpoint, sources.Search.Recency, tables),
		Prefilter:   pf,
		Deduper:     deduper,
		Merger:      directory.NewMerger(deduper, logger),
		Store:       directory.NewStore(directoryPath()),
		Syncer:      coverage.NewSyncer(deduper, logger),
		Metrics:     metrics.New(),
		Logger:      logger,
		CoveredPath: coveredPath(),
		Queries:     sources.Search.Queries,
		Health:      healthCfg,
	}
	for _, f := range sources.Feeds {
		deps.Feeds = append(deps.Feeds, feeds.Source{Name: f.Name, URL: f.URL, Enabled: f.Enabled})
	}

	if minChars := viper.GetInt("enrich.min_chars"); minChars > 0 {
		deps.Enricher = feeds.NewEnricher(fetchOpts, minChars, viper.GetInt("enrich.max_chars"))
	}

	if !opts.SkipAPI {
		client, err := llm.NewClient(llmConfig())
		if err != nil {
			if errors.Is(err, common.ErrMissingConfig) {
				return nil, common.NewUserError("Set ANTHROPIC_API_KEY (or llm.api_key), or pass --skip-api.", err)
			}
			return nil, err
		}
		normalizer, err := normalize.New(tables)
		if err != nil {
			return nil, err
		}
		retry := common.DefaultRetryPolicy()
		retry.Retryable = llm.IsRetryable
		llmOpts := llm.Options{
			Logger:  logger,
			Limiter: llm.NewLimiter(viper.GetDuration("llm.interval")),
			Retry:   retry,
		}
		deps.Filter = llm.NewFilter(client, llmOpts)
		deps.Extractor = llm.NewExtractor(client, normalizer, llmOpts)
	}

	p := &pipeline{}
	if path := ledgerPath(); path != "" && !opts.DryRun {
		ledger, err := openLedger(ctx, path)
		if err != nil {
			return nil, err
		}
		p.ledger = ledger
		deps.Ledger = ledger
	}

	p.engine, err = engine.New(deps, opts)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func openLedger(ctx context.Context, path string) (*storage.Ledger, error) {
	ledger, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	if err := ledger.Migrate(ctx); err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return ledger, nil
}

// engineOptions reads the run switches shared by run and watch.
func engineOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.FeedDelay = viper.GetDuration("fetch.delay")
	opts.Concurrency = viper.GetInt("llm.concurrency")
	opts.MinConfidence = viper.GetFloat64("llm.min_confidence")
	opts.MetricsPath = config.ExpandPath(viper.GetString("paths.metrics"))
	return opts
}
