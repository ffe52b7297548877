package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/fundwatch/internal/common"
)

// DefaultSearchEndpoint is the news-search RSS template. %s receives the
// url-encoded query (including the recency clause).
const DefaultSearchEndpoint = "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"

// FeedSource is one RSS/Atom feed.
type FeedSource struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// UnmarshalYAML defaults Enabled to true when the key is omitted.
func (f *FeedSource) UnmarshalYAML(node *yaml.Node) error {
	type plain FeedSource
	p := plain{Enabled: true}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = FeedSource(p)
	return nil
}

// SearchConfig describes the news-search queries issued each run.
type SearchConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Recency  string   `yaml:"recency"`
	Queries  []string `yaml:"queries"`
}

// Sources is the set of upstreams the pipeline reads.
type Sources struct {
	Search SearchConfig `yaml:"search"`
	Feeds  []FeedSource `yaml:"feeds"`
}

// DefaultSources returns the built-in feed list and search queries.
func DefaultSources() Sources {
	return Sources{
		Feeds: []FeedSource{
			{Name: "PE Hub", URL: "https://www.pehub.com/feed/", Enabled: true},
			{Name: "Private Equity Wire", URL: "https://www.privateequitywire.co.uk/feed/", Enabled: true},
			{Name: "Private Equity International", URL: "https://www.privateequityinternational.com/feed/", Enabled: true},
			{Name: "Venture Capital Journal", URL: "https://www.venturecapitaljournal.com/feed/", Enabled: true},
			{Name: "Infrastructure Investor", URL: "https://www.infrastructureinvestor.com/feed/", Enabled: true},
			{Name: "Private Debt Investor", URL: "https://www.privatedebtinvestor.com/feed/", Enabled: true},
			{Name: "PERE", URL: "https://www.perenews.com/feed/", Enabled: true},
			{Name: "Crunchbase News", URL: "https://news.crunchbase.com/feed/", Enabled: true},
			{Name: "FinSMEs", URL: "https://www.finsmes.com/feed", Enabled: true},
			{Name: "Hedgeweek", URL: "https://www.hedgeweek.com/feed/", Enabled: true},
			{Name: "PR Newswire Financial Services", URL: "https://www.prnewswire.com/rss/financial-services-latest-news/financial-services-latest-news-list.rss", Enabled: true},
			{Name: "GlobeNewswire Banking & Financial", URL: "https://www.globenewswire.com/RssFeed/industry/8000-Financials/feedTitle/GlobeNewswire%20-%20Industry%20News%20on%20Financials", Enabled: true},
		},
		Search: SearchConfig{
			Endpoint: DefaultSearchEndpoint,
			Recency:  "7d",
			Queries: []string{
				`"final close" fund billion`,
				`"final close" fund million`,
				`"first close" fund`,
				`"interim close" fund`,
				`private equity fund closes`,
				`venture capital fund closes`,
				`private credit fund raises`,
				`infrastructure fund final close`,
				`real estate fund final close`,
				`launches new fund targeting`,
				`secondaries fund close`,
				`hedge fund launches`,
			},
		},
	}
}

// LoadSources reads a YAML sources file. A missing file yields the defaults;
// sections absent from the file keep their defaults.
func LoadSources(path string) (Sources, error) {
	sources := DefaultSources()
	if path == "" {
		return sources, nil
	}

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sources, nil
		}
		return sources, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file Sources
	if err := yaml.Unmarshal(data, &file); err != nil {
		return sources, fmt.Errorf("%w: sources file %s: %w", common.ErrInvalidConfig, path, err)
	}

	if len(file.Feeds) > 0 {
		sources.Feeds = file.Feeds
	}
	if len(file.Search.Queries) > 0 {
		sources.Search.Queries = file.Search.Queries
	}
	if file.Search.Endpoint != "" {
		sources.Search.Endpoint = file.Search.Endpoint
	}
	if file.Search.Recency != "" {
		sources.Search.Recency = file.Search.Recency
	}

	return sources, sources.Validate()
}

// Validate checks that every feed has a unique name and an http(s) URL.
func (s Sources) Validate() error {
	seen := make(map[string]bool, len(s.Feeds))
	for _, f := range s.Feeds {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: feed with url %q has no name", common.ErrInvalidConfig, f.URL)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate feed name %q", common.ErrInvalidConfig, f.Name)
		}
		seen[f.Name] = true
		if !strings.HasPrefix(f.URL, "http://") && !strings.HasPrefix(f.URL, "https://") {
			return fmt.Errorf("%w: feed %q has invalid url %q", common.ErrInvalidConfig, f.Name, f.URL)
		}
	}
	if !strings.Contains(s.Search.Endpoint, "%s") {
		return fmt.Errorf("%w: search endpoint must contain %%s", common.ErrInvalidConfig)
	}
	return nil
}
