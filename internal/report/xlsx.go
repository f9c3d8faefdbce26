package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sonic-city-git/quincy-project-sub001/internal/engine"
)

// WriteConflicts renders an engine snapshot as an xlsx workbook: one row per
// conflict cell, plus a second sheet with subrental suggestions when present.
func WriteConflicts(w io.Writer, res *engine.Result) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	header := []interface{}{
		"equipment_id",
		"equipment_name",
		"date",
		"base_stock",
		"total_used",
		"effective_stock",
		"deficit",
		"severity",
		"affected_events",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	row := 2
	for _, c := range res.Conflicts {
		events := make([]string, len(c.AffectedEvents))
		for i, b := range c.AffectedEvents {
			events[i] = fmt.Sprintf("%s (%d)", b.EventName, b.Quantity)
		}
		line := []interface{}{
			int64(c.EquipmentID),
			c.EquipmentName,
			string(c.Date),
			c.Breakdown.Base,
			c.Breakdown.TotalUsed,
			c.Breakdown.Effective,
			c.Deficit,
			string(c.Severity),
			strings.Join(events, ", "),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &line); err != nil {
			return err
		}
		row++
	}

	if len(res.Suggestions) > 0 {
		if err := writeSuggestions(f, res.Suggestions); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func writeSuggestions(f *excelize.File, suggestions []engine.SubrentalSuggestion) error {
	const sheet = "Suggestions"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	header := []interface{}{
		"equipment_id",
		"equipment_name",
		"from",
		"to",
		"quantity",
		"tentative_pending",
		"providers",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	row := 2
	for _, s := range suggestions {
		names := make([]string, len(s.Providers))
		for i, p := range s.Providers {
			names[i] = p.ProviderName
		}
		line := []interface{}{
			int64(s.EquipmentID),
			s.EquipmentName,
			string(s.Range.From),
			string(s.Range.To),
			s.Quantity,
			s.TentativePending,
			strings.Join(names, ", "),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &line); err != nil {
			return err
		}
		row++
	}
	return nil
}
