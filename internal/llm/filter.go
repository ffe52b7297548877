package llm

import (
	"context"
	"log/slog"

	"github.com/Veraticus/fundwatch/internal/model"
)

// Filter asks the model whether an article announces a fund.
type Filter struct {
	logger *slog.Logger
	caller caller
}

// NewFilter wraps client with the retry policy and limiter from opts.
func NewFilter(client Client, opts Options) *Filter {
	opts = opts.withDefaults()
	return &Filter{
		caller: caller{client: client, opts: opts},
		logger: opts.Logger.With("component", "llm_filter"),
	}
}

type filterReply struct {
	Reason     flexString `json:"reason"`
	Confidence flexFloat  `json:"confidence"`
	IsFundNews flexBool   `json:"is_fund_news"`
}

// Classify returns the model's verdict. Failures degrade to a negative verdict
// with zero confidence and the error as the reason.
func (f *Filter) Classify(ctx context.Context, article model.RawArticle) model.FilteredArticle {
	verdict, _ := f.Evaluate(ctx, article)
	return verdict
}

// Evaluate is Classify that also reports the failure behind a degraded verdict.
func (f *Filter) Evaluate(ctx context.Context, article model.RawArticle) (model.FilteredArticle, error) {
	text, err := f.caller.complete(ctx, filterSystem, buildFilterPrompt(article))
	if err != nil {
		f.logger.Warn("Filter call failed", "url", article.URL, "error", err)
		return degraded(article, err), err
	}

	var reply filterReply
	if err := decodeReply(text, &reply); err != nil {
		f.logger.Warn("Unparseable filter reply", "url", article.URL, "error", err)
		return degraded(article, err), err
	}

	confidence := 0.0
	if reply.Confidence.v != nil {
		confidence = clamp(*reply.Confidence.v)
	}

	f.logger.Debug("Article classified",
		"title", article.Title,
		"is_fund_news", bool(reply.IsFundNews),
		"confidence", confidence)

	return model.FilteredArticle{
		RawArticle: article,
		IsFundNews: bool(reply.IsFundNews),
		Confidence: confidence,
		Reason:     string(reply.Reason),
	}, nil
}

func degraded(article model.RawArticle, err error) model.FilteredArticle {
	return model.FilteredArticle{
		RawArticle: article,
		Reason:     "error: " + err.Error(),
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
