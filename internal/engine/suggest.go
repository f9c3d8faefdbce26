package engine

import (
	"context"
	"sort"
)

// ProviderSource supplies prior fulfillment history for ranking subrental
// candidates. It is optional: without one, suggestions carry no providers.
type ProviderSource interface {
	FetchProviderHistory(ctx context.Context, id EquipmentID) ([]ProviderStat, error)
}

// ProviderRanker orders candidate providers for one equipment item. Pluggable;
// the default ranks by prior fulfillment count.
type ProviderRanker interface {
	Rank(id EquipmentID, stats []ProviderStat) []ProviderStat
}

// ByFulfillment ranks providers by fulfillment count descending, name
// ascending on ties.
type ByFulfillment struct{}

func (ByFulfillment) Rank(_ EquipmentID, stats []ProviderStat) []ProviderStat {
	out := make([]ProviderStat, len(stats))
	copy(out, stats)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Fulfilled != out[j].Fulfilled {
			return out[i].Fulfilled > out[j].Fulfilled
		}
		return out[i].ProviderName < out[j].ProviderName
	})
	return out
}

// SuggestionGenerator turns conflicts into subrental proposals.
type SuggestionGenerator struct {
	providers ProviderSource
	ranker    ProviderRanker
}

func NewSuggestionGenerator(providers ProviderSource, ranker ProviderRanker) *SuggestionGenerator {
	if ranker == nil {
		ranker = ByFulfillment{}
	}
	return &SuggestionGenerator{providers: providers, ranker: ranker}
}

// Suggest groups conflicts per equipment, merges adjacent conflict days into
// contiguous windows (zero-day gap tolerance) and proposes renting the peak
// deficit of each window. Non-adjacent days produce separate suggestions.
// Tentative subrental facts overlapping a window surface as advisory context.
// A failed provider lookup degrades to an empty candidate list plus a
// diagnostic; the suggestion itself is still emitted.
func (g *SuggestionGenerator) Suggest(ctx context.Context, conflicts []ConflictAnalysis, tentative []StockFact) ([]SubrentalSuggestion, []Diagnostic) {
	byID := make(map[EquipmentID][]ConflictAnalysis)
	var order []EquipmentID
	for _, c := range conflicts {
		if _, ok := byID[c.EquipmentID]; !ok {
			order = append(order, c.EquipmentID)
		}
		byID[c.EquipmentID] = append(byID[c.EquipmentID], c)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var out []SubrentalSuggestion
	var diags []Diagnostic
	for _, id := range order {
		cs := byID[id]
		sort.Slice(cs, func(i, j int) bool { return cs[i].Date.Before(cs[j].Date) })

		var providers []ProviderStat
		if g.providers != nil {
			stats, err := g.providers.FetchProviderHistory(ctx, id)
			if err != nil {
				diags = append(diags, Diagnostic{
					EquipmentID: id,
					Message:     "provider history unavailable: " + err.Error(),
				})
			} else {
				providers = g.ranker.Rank(id, stats)
			}
		}

		cur := SubrentalSuggestion{
			EquipmentID:   id,
			EquipmentName: cs[0].EquipmentName,
			Range:         DateRange{From: cs[0].Date, To: cs[0].Date},
			Quantity:      cs[0].Deficit,
		}
		for _, c := range cs[1:] {
			if c.Date == cur.Range.To || c.Date == cur.Range.To.Next() {
				cur.Range.To = c.Date
				if c.Deficit > cur.Quantity {
					cur.Quantity = c.Deficit
				}
				continue
			}
			out = append(out, finishSuggestion(cur, tentative, providers))
			cur = SubrentalSuggestion{
				EquipmentID:   id,
				EquipmentName: c.EquipmentName,
				Range:         DateRange{From: c.Date, To: c.Date},
				Quantity:      c.Deficit,
			}
		}
		out = append(out, finishSuggestion(cur, tentative, providers))
	}
	return out, diags
}

func finishSuggestion(s SubrentalSuggestion, tentative []StockFact, providers []ProviderStat) SubrentalSuggestion {
	s.Providers = providers
	for _, f := range tentative {
		if f.EquipmentID != s.EquipmentID || f.Kind != FactSubrentalAdd || f.Status != StatusTentative {
			continue
		}
		to := f.To
		if to == "" {
			to = f.From
		}
		if !to.Before(s.Range.From) && !s.Range.To.Before(f.From) {
			s.TentativePending += f.Quantity
		}
	}
	return s
}
