package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/fundwatch/internal/model"
	"github.com/Veraticus/fundwatch/internal/normalize"
)

// Extractor turns a confirmed fund article into a validated record.
type Extractor struct {
	logger     *slog.Logger
	normalizer *normalize.Normalizer
	now        func() time.Time
	caller     caller
}

// NewExtractor wraps client with the retry policy and limiter from opts.
func NewExtractor(client Client, normalizer *normalize.Normalizer, opts Options) *Extractor {
	opts = opts.withDefaults()
	return &Extractor{
		caller:     caller{client: client, opts: opts},
		normalizer: normalizer,
		now:        opts.Now,
		logger:     opts.Logger.With("component", "llm_extractor"),
	}
}

type extractReply struct {
	AmountUSDMillions flexFloat     `json:"amount_usd_millions"`
	FundName          flexString    `json:"fund_name"`
	FirmName          flexString    `json:"firm_name"`
	FirmWebsite       flexString    `json:"firm_website"`
	Amount            flexString    `json:"amount"`
	Category          flexString    `json:"category"`
	Stage             flexString    `json:"stage"`
	AnnouncementDate  flexString    `json:"announcement_date"`
	Description       flexString    `json:"description"`
	Location          replyLocation `json:"location"`
}

// replyLocation accepts {"city","state","country"} or a "City, State, Country" string.
type replyLocation struct {
	City    flexString `json:"city"`
	State   flexString `json:"state"`
	Country flexString `json:"country"`
}

func (l *replyLocation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type plain replyLocation
		return json.Unmarshal(data, (*plain)(l))
	}

	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	parts := strings.Split(string(s), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 1:
		l.City = flexString(parts[0])
	case 2:
		l.City, l.Country = flexString(parts[0]), flexString(parts[1])
	default:
		l.City, l.State, l.Country = flexString(parts[0]), flexString(parts[1]), flexString(parts[len(parts)-1])
	}
	return nil
}

func (r extractReply) draft() normalize.Draft {
	return normalize.Draft{
		AmountUSDMillions: r.AmountUSDMillions.v,
		FundName:          string(r.FundName),
		FirmName:          string(r.FirmName),
		FirmWebsite:       string(r.FirmWebsite),
		Amount:            string(r.Amount),
		Category:          string(r.Category),
		Stage:             string(r.Stage),
		AnnouncementDate:  string(r.AnnouncementDate),
		City:              string(r.Location.City),
		State:             string(r.Location.State),
		Country:           string(r.Location.Country),
		Description:       string(r.Description),
	}
}

// Extract returns the fund described by the article, or nil when none could be
// extracted.
func (e *Extractor) Extract(ctx context.Context, article model.RawArticle) *model.ExtractedFund {
	fund, _ := e.TryExtract(ctx, article)
	return fund
}

// TryExtract is Extract that also reports why no record was produced.
func (e *Extractor) TryExtract(ctx context.Context, article model.RawArticle) (*model.ExtractedFund, error) {
	text, err := e.caller.complete(ctx, extractSystem, buildExtractPrompt(article))
	if err != nil {
		e.logger.Warn("Extraction call failed", "url", article.URL, "error", err)
		return nil, err
	}

	var reply extractReply
	if err := decodeReply(text, &reply); err != nil {
		e.logger.Warn("Unparseable extraction reply", "url", article.URL, "error", err)
		return nil, err
	}

	fund, err := e.normalizer.Fund(reply.draft(), article, e.now())
	if err != nil {
		e.logger.Warn("Rejected extraction", "url", article.URL, "error", err)
		return nil, err
	}

	e.logger.Debug("Fund extracted",
		"fund", fund.FundName,
		"firm", fund.FirmName,
		"amount_usd_millions", fund.AmountUSDMillions)
	return &fund, nil
}
