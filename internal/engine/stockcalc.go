package engine

import (
	"fmt"
	"sort"
)

type cellKey struct {
	id  EquipmentID
	day Day
}

// ComputeEffectiveStock expands stock facts into one EffectiveStock cell per
// (equipment, day) over the whole range. Base facts are levels flat-carried
// forward until superseded by a later base fact; subrental additions and repair
// removals are per-day deltas layered on top. Tentative facts are ignored.
// Facts outside the id set or with a negative quantity are skipped and reported
// as diagnostics.
func ComputeEffectiveStock(facts []StockFact, ids []EquipmentID, r DateRange) (map[cellKey]EffectiveStock, []Diagnostic) {
	known := make(map[EquipmentID]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	var diags []Diagnostic
	baseByID := make(map[EquipmentID][]StockFact)
	deltaByCell := make(map[cellKey]int64)

	for _, f := range facts {
		if _, ok := known[f.EquipmentID]; !ok {
			diags = append(diags, Diagnostic{
				EquipmentID: f.EquipmentID,
				Date:        f.From,
				Message:     (&ComputationError{EquipmentID: f.EquipmentID, Reason: "stock fact outside query scope"}).Error(),
			})
			continue
		}
		if f.Quantity < 0 {
			diags = append(diags, Diagnostic{
				EquipmentID: f.EquipmentID,
				Date:        f.From,
				Message:     (&ComputationError{EquipmentID: f.EquipmentID, Reason: fmt.Sprintf("negative fact quantity %d", f.Quantity)}).Error(),
			})
			continue
		}
		if f.Status != StatusConfirmed {
			// tentative facts are advisory; the suggestion generator sees them,
			// effective-stock math does not
			continue
		}

		switch f.Kind {
		case FactBase:
			baseByID[f.EquipmentID] = append(baseByID[f.EquipmentID], f)
		case FactSubrentalAdd, FactRepairRemove:
			delta := f.Quantity
			if f.Kind == FactRepairRemove {
				delta = -delta
			}
			for _, d := range clampRange(f, r).Days() {
				deltaByCell[cellKey{f.EquipmentID, d}] += delta
			}
		default:
			diags = append(diags, Diagnostic{
				EquipmentID: f.EquipmentID,
				Date:        f.From,
				Message:     (&ComputationError{EquipmentID: f.EquipmentID, Reason: "unknown fact kind " + string(f.Kind)}).Error(),
			})
		}
	}

	days := r.Days()
	out := make(map[cellKey]EffectiveStock, len(ids)*len(days))

	for _, id := range ids {
		levels := baseByID[id]
		sort.SliceStable(levels, func(i, j int) bool { return levels[i].From.Before(levels[j].From) })

		var base int64
		next := 0
		for _, day := range days {
			for next < len(levels) && !day.Before(levels[next].From) {
				base = levels[next].Quantity
				next++
			}
			virtual := deltaByCell[cellKey{id, day}]
			effective := base + virtual
			if effective < 0 {
				effective = 0
			}
			out[cellKey{id, day}] = EffectiveStock{
				EquipmentID: id,
				Date:        day,
				Base:        base,
				Virtual:     virtual,
				Effective:   effective,
			}
		}
	}
	return out, diags
}

// clampRange trims a fact's day span to the query range. A fact with no To is
// treated as single-day.
func clampRange(f StockFact, r DateRange) DateRange {
	from, to := f.From, f.To
	if to == "" {
		to = from
	}
	if from.Before(r.From) {
		from = r.From
	}
	if r.To.Before(to) {
		to = r.To
	}
	return DateRange{From: from, To: to}
}
