package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/fundwatch/internal/model"
)

const filterSystem = `You screen news articles for a directory of private-market fund announcements.
A fund announcement reports that an investment firm launched, raised, or closed (first, interim, or final close) a pooled investment vehicle: private equity, venture capital, private credit, real estate, infrastructure, or hedge funds.
Not fund news: a company raising a funding round, acquisitions, portfolio company deals, public stocks, ETFs, mutual funds, and earnings.
Respond with ONLY a JSON object: {"is_fund_news": true|false, "confidence": 0.0-1.0, "reason": "one sentence"}.`

const extractSystem = `You extract structured data about a private-market fund announcement from a news article.
Respond with ONLY a JSON object with these keys:
{"fund_name": string, "firm_name": string, "firm_website": string|null, "amount": string, "amount_usd_millions": number|null,
 "category": string, "stage": string, "announcement_date": "YYYY-MM-DD"|null,
 "location": {"city": string, "state": string, "country": string}, "description": string}
Use "Undisclosed" for amount when no size is given. Never guess a website.`

func articleBlock(b *strings.Builder, article model.RawArticle) {
	fmt.Fprintf(b, "Title: %s\n", article.Title)
	if article.SourceName != "" {
		fmt.Fprintf(b, "Source: %s\n", article.SourceName)
	}
	if !article.Published.IsZero() {
		fmt.Fprintf(b, "Published: %s\n", article.Published.Format(model.DateLayout))
	}
	fmt.Fprintf(b, "URL: %s\n", article.URL)
	if article.Snippet != "" {
		fmt.Fprintf(b, "\n%s\n", article.Snippet)
	}
}

func buildFilterPrompt(article model.RawArticle) string {
	var b strings.Builder
	b.WriteString("Is this article a fund announcement?\n\n")
	articleBlock(&b, article)
	return b.String()
}

func buildExtractPrompt(article model.RawArticle) string {
	var b strings.Builder
	b.WriteString("Extract the fund announced in this article.\n\n")

	b.WriteString("Category must be one of: ")
	b.WriteString(joinValues(model.Categories()))
	b.WriteString(".\nStage must be one of: ")
	b.WriteString(joinValues(model.Stages()))
	b.WriteString(".\n\n")

	articleBlock(&b, article)
	return b.String()
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
