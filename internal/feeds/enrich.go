package feeds

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/Veraticus/fundwatch/internal/model"
)

// Enricher replaces thin feed snippets with the article's main text.
type Enricher struct {
	logger   *slog.Logger
	opts     Options
	minChars int
	maxChars int
}

// NewEnricher enriches articles whose snippet is shorter than minChars,
// keeping at most maxChars of extracted text.
func NewEnricher(opts Options, minChars, maxChars int) *Enricher {
	opts = opts.withDefaults()
	if maxChars <= 0 {
		maxChars = 4000
	}
	return &Enricher{
		opts:     opts,
		minChars: minChars,
		maxChars: maxChars,
		logger:   opts.Logger.With("component", "enricher"),
	}
}

// Enrich returns the article with a fuller snippet when one can be extracted.
// Any failure leaves the article unchanged.
func (e *Enricher) Enrich(ctx context.Context, article model.RawArticle) model.RawArticle {
	if len(article.Snippet) >= e.minChars {
		return article
	}

	pageURL, err := url.Parse(article.URL)
	if err != nil {
		return article
	}

	body, err := get(ctx, e.opts, article.URL)
	if err != nil {
		e.logger.Debug("Enrichment fetch failed", "url", article.URL, "error", err)
		return article
	}

	parsed, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		e.logger.Debug("Readability extraction failed", "url", article.URL, "error", err)
		return article
	}

	text := collapse(strings.TrimSpace(parsed.TextContent))
	if len(text) <= len(article.Snippet) {
		return article
	}

	article.Snippet = Truncate(text, e.maxChars)
	return article
}
