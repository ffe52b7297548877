// Package coverage reconciles the directory with the ledger of funds that have
// already been published downstream.
package coverage

import (
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/Veraticus/fundwatch/internal/dedupe"
	"github.com/Veraticus/fundwatch/internal/directory"
	"github.com/Veraticus/fundwatch/internal/model"
)

// LoadLedger reads the covered-funds ledger. A missing file yields an empty ledger.
func LoadLedger(path string) (*model.CoveredLedger, error) {
	ledger := &model.CoveredLedger{}
	if _, err := directory.ReadJSON(path, ledger); err != nil {
		return nil, err
	}
	if ledger.Funds == nil {
		ledger.Funds = []model.CoveredFund{}
	}
	return ledger, nil
}

// SaveLedger stamps updated_at and atomically replaces the ledger file.
func SaveLedger(path string, ledger *model.CoveredLedger, now time.Time) error {
	ledger.UpdatedAt = now.UTC()
	return directory.WriteJSON(path, ledger)
}

// Syncer matches directory funds against ledger entries.
type Syncer struct {
	deduper *dedupe.Deduper
	logger  *slog.Logger
}

// NewSyncer returns a Syncer that computes keys with d.
func NewSyncer(d *dedupe.Deduper, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{deduper: d, logger: logger.With("component", "coverage")}
}

type ledgerIndex struct {
	byName map[string]string
	byKey  map[string]string
}

func (s *Syncer) index(ledger *model.CoveredLedger) ledgerIndex {
	idx := ledgerIndex{
		byName: make(map[string]string, len(ledger.Funds)),
		byKey:  make(map[string]string, len(ledger.Funds)),
	}
	for _, c := range ledger.Funds {
		if name := NameKey(c.FundName); name != "" {
			if _, ok := idx.byName[name]; !ok {
				idx.byName[name] = c.DateCovered
			}
		}
		if strings.TrimSpace(c.Firm) == "" {
			continue
		}
		if key := s.deduper.Key(c.Firm, c.FundName); key != "" {
			if _, ok := idx.byKey[key]; !ok {
				idx.byKey[key] = c.DateCovered
			}
		}
	}
	return idx
}

// lookup returns the covered date for f, if the ledger lists it.
func (idx ledgerIndex) lookup(f model.Fund) (string, bool) {
	if date, ok := idx.byName[NameKey(f.FundName)]; ok {
		return date, true
	}
	if f.DedupeKey == "" {
		return "", false
	}
	date, ok := idx.byKey[f.DedupeKey]
	return date, ok
}

// Sync marks every directory fund listed in the ledger, by normalized fund
// name or dedupe key, and returns how many funds changed. Funds absent from
// the ledger are left as they are.
func (s *Syncer) Sync(dir *model.FundDirectory, ledger *model.CoveredLedger) int {
	idx := s.index(ledger)

	changed := 0
	for i := range dir.Funds {
		f := &dir.Funds[i]
		date, ok := idx.lookup(*f)
		if !ok {
			continue
		}
		if f.IsCovered && f.CoveredDate != nil && *f.CoveredDate == date {
			continue
		}
		d := date
		f.IsCovered = true
		f.CoveredDate = &d
		changed++
		s.logger.Debug("Fund marked covered", "fund", f.FundName, "covered_date", date)
	}

	directory.RecomputeStats(dir)
	s.logger.Info("Coverage synced", "ledger_entries", len(ledger.Funds), "changed", changed)
	return changed
}

// MarkCovered appends ledger entries for funds not already listed and returns
// the number added.
func (s *Syncer) MarkCovered(ledger *model.CoveredLedger, funds []model.Fund, date string) int {
	idx := s.index(ledger)

	added := 0
	for _, f := range funds {
		if _, ok := idx.lookup(f); ok {
			continue
		}
		ledger.Funds = append(ledger.Funds, model.CoveredFund{
			FundName:         f.FundName,
			Firm:             f.FirmName,
			Amount:           f.Amount,
			Category:         string(f.Category),
			Location:         f.Location.String(),
			Stage:            string(f.Stage),
			DateCovered:      date,
			AnnouncementDate: f.AnnouncementDate,
			SourceURL:        f.SourceURL,
		})
		if name := NameKey(f.FundName); name != "" {
			idx.byName[name] = date
		}
		if f.DedupeKey != "" {
			idx.byKey[f.DedupeKey] = date
		}
		added++
	}
	return added
}

// Candidates returns uncovered funds announced within the last windowDays days,
// largest first, then most recent.
func Candidates(dir *model.FundDirectory, now time.Time, windowDays int) []model.Fund {
	today := now.UTC().Truncate(24 * time.Hour)
	cutoff := today.AddDate(0, 0, -windowDays)

	var out []model.Fund
	for _, f := range dir.Funds {
		if f.IsCovered {
			continue
		}
		announced, ok := model.ParseDate(f.AnnouncementDate)
		if !ok || announced.Before(cutoff) {
			continue
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].AmountUSDMillions, out[j].AmountUSDMillions
		switch {
		case a != nil && b != nil && *a != *b:
			return *a > *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		if out[i].AnnouncementDate != out[j].AnnouncementDate {
			return out[i].AnnouncementDate > out[j].AnnouncementDate
		}
		return out[i].FundName < out[j].FundName
	})
	return out
}

// NameKey normalizes a fund name for ledger matching.
func NameKey(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}
