package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/model"
)

// Entry is what the ledger remembers about one article URL.
type Entry struct {
	FirstSeen  time.Time
	UpdatedAt  time.Time
	Fund       *model.ExtractedFund
	URL        string
	Title      string
	Source     string
	Reason     string
	Confidence float64
	IsFundNews bool
	// Extracted is set once extraction has produced a definitive answer.
	// Fund may still be nil when the article named no fund.
	Extracted bool
}

// Verdict rebuilds the filter verdict for article from the entry.
func (e Entry) Verdict(article model.RawArticle) model.FilteredArticle {
	return model.FilteredArticle{
		RawArticle: article,
		IsFundNews: e.IsFundNews,
		Confidence: e.Confidence,
		Reason:     e.Reason,
	}
}

var entryColumns = []string{
	"url", "title", "source", "is_fund_news", "confidence", "reason",
	"extracted", "fund_json", "first_seen", "updated_at",
}

// Lookup returns the entry for url, or common.ErrNotFound.
func (l *Ledger) Lookup(ctx context.Context, url string) (*Entry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query, args, err := psql.Select(entryColumns...).
		From("articles").
		Where(sq.Eq{"url": url}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var (
		e                    Entry
		source, reason, fund sql.NullString
		firstSeen, updatedAt string
	)
	err = l.db.QueryRowContext(ctx, query, args...).Scan(
		&e.URL, &e.Title, &source, &e.IsFundNews, &e.Confidence, &reason,
		&e.Extracted, &fund, &firstSeen, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: article %s", common.ErrNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up article: %w", err)
	}

	e.Source = source.String
	e.Reason = reason.String
	e.FirstSeen = parseTime(firstSeen)
	e.UpdatedAt = parseTime(updatedAt)
	if fund.Valid && fund.String != "" {
		var f model.ExtractedFund
		if err := json.Unmarshal([]byte(fund.String), &f); err != nil {
			return nil, fmt.Errorf("%w: fund record for %s: %w", common.ErrCorruptDocument, url, err)
		}
		e.Fund = &f
	}
	return &e, nil
}

// RecordVerdict stores the filter verdict for an article, replacing any
// earlier verdict.
func (l *Ledger) RecordVerdict(ctx context.Context, verdict model.FilteredArticle, now time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(verdict.URL, "url"); err != nil {
		return err
	}

	stamp := formatTime(now)
	query, args, err := psql.Insert("articles").
		Columns("url", "title", "source", "is_fund_news", "confidence", "reason", "first_seen", "updated_at").
		Values(verdict.URL, verdict.Title, verdict.SourceName, verdict.IsFundNews, verdict.Confidence, verdict.Reason, stamp, stamp).
		Suffix(`ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			is_fund_news = excluded.is_fund_news,
			confidence = excluded.confidence,
			reason = excluded.reason,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record verdict: %w", err)
	}
	return nil
}

// RecordExtraction stores the extraction result for an article that already
// has a verdict. A nil fund records that the article named no fund.
func (l *Ledger) RecordExtraction(ctx context.Context, url string, fund *model.ExtractedFund, now time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var fundJSON any
	if fund != nil {
		data, err := json.Marshal(fund)
		if err != nil {
			return fmt.Errorf("failed to encode fund: %w", err)
		}
		fundJSON = string(data)
	}

	query, args, err := psql.Update("articles").
		Set("extracted", true).
		Set("fund_json", fundJSON).
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"url": url}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to record extraction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: article %s", common.ErrNotFound, url)
	}
	return nil
}

// Prune deletes entries not touched since before and returns how many were removed.
func (l *Ledger) Prune(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := psql.Delete("articles").
		Where(sq.Lt{"updated_at": formatTime(before)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune articles: %w", err)
	}
	return res.RowsAffected()
}

// Counts summarizes the article ledger.
type Counts struct {
	Articles  int
	Confirmed int
	Funds     int
}

// Counts returns how many articles were seen, confirmed and turned into funds.
func (l *Ledger) Counts(ctx context.Context) (Counts, error) {
	query, args, err := psql.Select(
		"COUNT(*)",
		"COALESCE(SUM(is_fund_news), 0)",
		"COALESCE(SUM(CASE WHEN fund_json IS NOT NULL THEN 1 ELSE 0 END), 0)",
	).From("articles").ToSql()
	if err != nil {
		return Counts{}, fmt.Errorf("failed to build query: %w", err)
	}

	var c Counts
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&c.Articles, &c.Confirmed, &c.Funds); err != nil {
		return Counts{}, fmt.Errorf("failed to count articles: %w", err)
	}
	return c, nil
}
