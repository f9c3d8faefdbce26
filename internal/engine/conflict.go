package engine

import "sort"

// AnalyzeConflicts compares aggregated booking demand against effective stock
// and returns one ConflictAnalysis per overbooked cell. Cells with no stock
// entry at all default to zero effective stock, so unknown equipment with
// demand is always flagged. Zero-quantity bookings are ignored; a negative
// quantity is a ValidationError and aborts the whole analysis.
func AnalyzeConflicts(stock map[cellKey]EffectiveStock, bookings []Booking) ([]ConflictAnalysis, error) {
	grouped := make(map[cellKey][]Booking)
	for _, b := range bookings {
		if b.Quantity < 0 {
			return nil, validationf("booking for equipment %d on %s has negative quantity %d", b.EquipmentID, b.Date, b.Quantity)
		}
		if b.Quantity == 0 {
			continue
		}
		key := cellKey{b.EquipmentID, b.Date}
		grouped[key] = append(grouped[key], b)
	}

	out := make([]ConflictAnalysis, 0, len(grouped))
	for key, cell := range grouped {
		var used int64
		for _, b := range cell {
			used += b.Quantity
		}

		es := stock[key] // zero value when absent: base=0, effective=0
		deficit := used - es.Effective
		if deficit <= 0 {
			continue
		}

		sort.SliceStable(cell, func(i, j int) bool {
			if cell[i].Quantity != cell[j].Quantity {
				return cell[i].Quantity > cell[j].Quantity
			}
			return cell[i].EventName < cell[j].EventName
		})

		out = append(out, ConflictAnalysis{
			EquipmentID:   key.id,
			EquipmentName: cell[0].EquipmentName,
			Date:          key.day,
			Breakdown: StockBreakdown{
				Base:      es.Base,
				TotalUsed: used,
				Effective: es.Effective,
			},
			Deficit:        deficit,
			Severity:       severityFor(deficit, es.Effective),
			AffectedEvents: cell,
		})
	}

	// deterministic output: identical inputs yield identical conflict lists
	sort.Slice(out, func(i, j int) bool {
		if out[i].EquipmentID != out[j].EquipmentID {
			return out[i].EquipmentID < out[j].EquipmentID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// severityFor classifies a deficit by its ratio to effective stock. Zero
// effective stock with any demand is always critical.
func severityFor(deficit, effective int64) Severity {
	switch {
	case deficit <= 0:
		return SeverityNone
	case effective == 0:
		return SeverityCritical
	}
	ratio := float64(deficit) / float64(effective)
	switch {
	case ratio < 0.25:
		return SeverityLow
	case ratio < 1.0:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}
