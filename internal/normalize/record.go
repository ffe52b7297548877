package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/model"
)

// maxFutureSkew bounds how far past the run date an announcement date may lie.
const maxFutureSkew = 48 * time.Hour

// Draft is the loosely typed record proposed by the extractor before validation.
type Draft struct {
	AmountUSDMillions *float64
	FundName          string
	FirmName          string
	FirmWebsite       string
	Amount            string
	Category          string
	Stage             string
	AnnouncementDate  string
	City              string
	State             string
	Country           string
	Description       string
}

// Fund validates a draft into a strict record. Fund and firm names are required;
// every other field is defaulted from the article or the run date.
func (n *Normalizer) Fund(d Draft, article model.RawArticle, runDate time.Time) (model.ExtractedFund, error) {
	fundName := collapseSpace(d.FundName)
	firmName := collapseSpace(d.FirmName)
	if fundName == "" || firmName == "" {
		return model.ExtractedFund{}, fmt.Errorf("%w: fund and firm names are required", common.ErrMalformedReply)
	}

	description := strings.TrimSpace(d.Description)
	context := strings.Join([]string{article.Title, description, article.Snippet}, " ")

	category := n.Category(d.Category, context)
	stage := n.Stage(d.Stage, context)

	amount := strings.TrimSpace(d.Amount)
	var usd *float64
	switch {
	case d.AmountUSDMillions != nil && *d.AmountUSDMillions > 0:
		v := round2(*d.AmountUSDMillions)
		usd = &v
	default:
		usd = n.AmountUSDMillions(amount)
	}
	switch {
	case amount == "" && usd != nil:
		amount = FormatUSD(*usd)
	case usd == nil && n.IsUndisclosed(amount):
		amount = "Undisclosed"
	}

	sourceName := n.SourceName(article.SourceDomain, article.SourceName)
	if sourceName == "" {
		sourceName = article.FeedName
	}

	return model.ExtractedFund{
		FundName:          fundName,
		FirmName:          firmName,
		FirmWebsite:       n.Website(d.FirmWebsite, firmName),
		Amount:            amount,
		AmountUSDMillions: usd,
		Category:          category,
		Stage:             stage,
		AnnouncementDate:  announcementDate(d.AnnouncementDate, article.Published, runDate),
		SourceURL:         article.URL,
		SourceName:        sourceName,
		SourceTitle:       article.Title,
		Description:       description,
		Strategy:          n.Strategy(fundName, category, description),
		TargetGeography:   n.Geography(fundName, description),
		Location: model.Location{
			City:    collapseSpace(d.City),
			State:   collapseSpace(d.State),
			Country: collapseSpace(d.Country),
		},
	}, nil
}

// announcementDate prefers the supplied date, then the article's publish date,
// then the run date. Dates implausibly far in the future are discarded.
func announcementDate(supplied string, published, runDate time.Time) string {
	if t, ok := model.ParseDate(supplied); ok && !t.After(runDate.Add(maxFutureSkew)) {
		return t.Format(model.DateLayout)
	}
	if !published.IsZero() {
		return published.UTC().Format(model.DateLayout)
	}
	return runDate.UTC().Format(model.DateLayout)
}

// FormatUSD renders millions of dollars as "$750M" or "$2.5B".
func FormatUSD(millions float64) string {
	if millions >= 1000 {
		return "$" + strconv.FormatFloat(round2(millions/1000), 'f', -1, 64) + "B"
	}
	return "$" + strconv.FormatFloat(round2(millions), 'f', -1, 64) + "M"
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
