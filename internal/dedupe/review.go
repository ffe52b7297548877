package dedupe

import (
	"sort"

	"github.com/Veraticus/fundwatch/internal/model"
)

// ReviewPair is a pair of directory funds that look alike on several
// independent signals but were not merged.
type ReviewPair struct {
	A              string   `json:"a"`
	B              string   `json:"b"`
	AName          string   `json:"a_name"`
	BName          string   `json:"b_name"`
	Signals        []string `json:"signals"`
	FirmSimilarity float64  `json:"firm_similarity"`
	NameSimilarity float64  `json:"name_similarity"`
}

// Review scans every pair of funds whose firms are alike above the review
// floor and flags pairs with at least ReviewMinSignals matching signals.
// Nothing is merged.
func (d *Deduper) Review(funds []model.Fund) []ReviewPair {
	var pairs []ReviewPair

	for i := 0; i < len(funds); i++ {
		for j := i + 1; j < len(funds); j++ {
			a, b := funds[i].ExtractedFund, funds[j].ExtractedFund

			firmSim := Similarity(a.FirmName, b.FirmName)
			if firmSim < d.cfg.ReviewFloor && !d.sameFirm(a.FirmName, b.FirmName, firmSim) {
				continue
			}

			nameSim := Similarity(a.FundName, b.FundName)
			signals := d.signals(a, b, nameSim)
			if len(signals) < d.cfg.ReviewMinSignals {
				continue
			}

			pairs = append(pairs, ReviewPair{
				A:              funds[i].DedupeKey,
				B:              funds[j].DedupeKey,
				AName:          a.FundName,
				BName:          b.FundName,
				Signals:        signals,
				FirmSimilarity: firmSim,
				NameSimilarity: nameSim,
			})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return len(pairs[i].Signals) > len(pairs[j].Signals)
	})
	return pairs
}

func (d *Deduper) signals(a, b model.ExtractedFund, nameSim float64) []string {
	var signals []string
	if nameSim >= d.cfg.CoreNameThreshold {
		signals = append(signals, "similar name")
	}
	if v, ok := amountVariance(a.AmountUSDMillions, b.AmountUSDMillions); ok && v < d.cfg.AmountVariance {
		signals = append(signals, "similar amount")
	}
	if d.datesWithin(a.AnnouncementDate, b.AnnouncementDate) {
		signals = append(signals, "close dates")
	}
	if a.Category == b.Category {
		signals = append(signals, "same category")
	}
	if a.Stage == b.Stage {
		signals = append(signals, "same stage")
	}
	if sa := Sequence(a.FundName); sa != "" && sa == Sequence(b.FundName) {
		signals = append(signals, "same sequence")
	}
	return signals
}
