package dedupe

import (
	"github.com/Veraticus/fundwatch/internal/model"
)

// Duplicate records a batch entry that was folded into an earlier one.
type Duplicate struct {
	Fund   model.ExtractedFund
	KeptAs string
	Rule   Rule
}

// Batch splits freshly extracted funds into unique records and duplicates.
// The first occurrence wins.
func (d *Deduper) Batch(funds []model.ExtractedFund) ([]model.ExtractedFund, []Duplicate) {
	unique := make([]model.ExtractedFund, 0, len(funds))
	var duplicates []Duplicate

	idx := &Index{d: d, byKey: make(map[string]int, len(funds))}
	for _, f := range funds {
		if pos, rule, ok := idx.Find(f); ok {
			duplicates = append(duplicates, Duplicate{Fund: f, KeptAs: unique[pos].FundName, Rule: rule})
			continue
		}
		idx.add(d.FundKey(f), f)
		unique = append(unique, f)
	}

	return unique, duplicates
}

// Index answers "is this fund already known" against a list of funds,
// checking the exact key map before scanning with the fuzzy rules.
type Index struct {
	d       *Deduper
	byKey   map[string]int
	entries []model.ExtractedFund
}

// NewIndex indexes directory funds by position.
func (d *Deduper) NewIndex(funds []model.Fund) *Index {
	idx := &Index{
		d:       d,
		byKey:   make(map[string]int, len(funds)),
		entries: make([]model.ExtractedFund, 0, len(funds)),
	}
	for _, f := range funds {
		idx.Add(f)
	}
	return idx
}

// Find returns the position of the matching fund, if any.
func (ix *Index) Find(f model.ExtractedFund) (int, Rule, bool) {
	if pos, ok := ix.byKey[ix.d.FundKey(f)]; ok {
		return pos, RuleExactKey, true
	}
	for pos, existing := range ix.entries {
		if rule, ok := ix.d.Match(existing, f); ok {
			return pos, rule, true
		}
	}
	return -1, RuleNone, false
}

// Add appends a fund and returns its position. Positions track the order of Add calls.
func (ix *Index) Add(f model.Fund) int {
	key := f.DedupeKey
	if key == "" {
		key = ix.d.FundKey(f.ExtractedFund)
	}
	return ix.add(key, f.ExtractedFund)
}

// Update replaces the fields used for fuzzy matching at pos. The key is unchanged.
func (ix *Index) Update(pos int, f model.Fund) {
	if pos >= 0 && pos < len(ix.entries) {
		ix.entries[pos] = f.ExtractedFund
	}
}

// Len returns the number of indexed funds.
func (ix *Index) Len() int {
	return len(ix.entries)
}

func (ix *Index) add(key string, f model.ExtractedFund) int {
	pos := len(ix.entries)
	ix.entries = append(ix.entries, f)
	if _, exists := ix.byKey[key]; !exists {
		ix.byKey[key] = pos
	}
	return pos
}
