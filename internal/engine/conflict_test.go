package engine

import (
	"errors"
	"testing"
)

func booking(id EquipmentID, d Day, qty int64, event string) Booking {
	return Booking{EquipmentID: id, EquipmentName: "LED Screen", Date: d, Quantity: qty, EventName: event}
}

func TestAnalyzeConflicts_RepairScenario(t *testing.T) {
	// base 10, confirmed repair of 3 on the day, 8 units booked
	facts := []StockFact{
		baseFact(1, d1, 10),
		{EquipmentID: 1, From: d2, Kind: FactRepairRemove, Quantity: 3, Status: StatusConfirmed},
	}
	stock, _ := ComputeEffectiveStock(facts, []EquipmentID{1}, week())
	conflicts, err := AnalyzeConflicts(stock, []Booking{
		booking(1, d2, 5, "Festival A"),
		booking(1, d2, 3, "Club B"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Breakdown.Effective != 7 || c.Breakdown.TotalUsed != 8 || c.Deficit != 1 {
		t.Errorf("effective=%d used=%d deficit=%d, want 7/8/1", c.Breakdown.Effective, c.Breakdown.TotalUsed, c.Deficit)
	}
	if c.Severity != SeverityLow {
		t.Errorf("severity = %s, want low", c.Severity)
	}
}

func TestAnalyzeConflicts_SubrentalCoversDemand(t *testing.T) {
	// base 5, confirmed subrental add of 10, 12 booked: no conflict
	facts := []StockFact{
		baseFact(1, d1, 5),
		{EquipmentID: 1, From: d2, Kind: FactSubrentalAdd, Quantity: 10, Status: StatusConfirmed},
	}
	stock, _ := ComputeEffectiveStock(facts, []EquipmentID{1}, week())
	conflicts, err := AnalyzeConflicts(stock, []Booking{booking(1, d2, 12, "Arena")})
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", conflicts)
	}
}

func TestAnalyzeConflicts_ConflictByDefault(t *testing.T) {
	// demand on equipment with no stock facts at all is always critical
	conflicts, err := AnalyzeConflicts(map[cellKey]EffectiveStock{}, []Booking{booking(7, d1, 3, "Pop-up")})
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Deficit != 3 || c.Breakdown.Effective != 0 || c.Severity != SeverityCritical {
		t.Errorf("deficit=%d effective=%d severity=%s, want 3/0/critical", c.Deficit, c.Breakdown.Effective, c.Severity)
	}
}

func TestAnalyzeConflicts_AffectedEventOrder(t *testing.T) {
	stock := map[cellKey]EffectiveStock{{1, d1}: {EquipmentID: 1, Date: d1, Effective: 1}}
	conflicts, err := AnalyzeConflicts(stock, []Booking{
		booking(1, d1, 2, "Zeta"),
		booking(1, d1, 5, "Beta"),
		booking(1, d1, 2, "Alpha"),
	})
	if err != nil {
		t.Fatal(err)
	}
	ev := conflicts[0].AffectedEvents
	want := []string{"Beta", "Alpha", "Zeta"}
	for i, name := range want {
		if ev[i].EventName != name {
			t.Errorf("event[%d] = %s, want %s", i, ev[i].EventName, name)
		}
	}
}

func TestAnalyzeConflicts_ZeroIgnoredNegativeRejected(t *testing.T) {
	conflicts, err := AnalyzeConflicts(map[cellKey]EffectiveStock{}, []Booking{booking(1, d1, 0, "Empty")})
	if err != nil || len(conflicts) != 0 {
		t.Fatalf("zero-quantity booking must be ignored, got %v / %v", conflicts, err)
	}

	_, err = AnalyzeConflicts(map[cellKey]EffectiveStock{}, []Booking{booking(1, d1, -2, "Bad")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAnalyzeConflicts_DeficitMonotonic(t *testing.T) {
	stock := map[cellKey]EffectiveStock{{1, d1}: {EquipmentID: 1, Date: d1, Effective: 4}}
	deficitFor := func(qty int64) int64 {
		conflicts, err := AnalyzeConflicts(stock, []Booking{booking(1, d1, qty, "Show")})
		if err != nil {
			t.Fatal(err)
		}
		if len(conflicts) == 0 {
			return 0
		}
		return conflicts[0].Deficit
	}
	prev := deficitFor(5)
	for qty := int64(6); qty <= 20; qty++ {
		cur := deficitFor(qty)
		if cur < prev {
			t.Fatalf("deficit dropped from %d to %d when demand rose to %d", prev, cur, qty)
		}
		prev = cur
	}
}

func TestSeverityThresholds(t *testing.T) {
	cases := []struct {
		deficit, effective int64
		want               Severity
	}{
		{0, 10, SeverityNone},
		{2, 10, SeverityLow},      // ratio 0.2
		{3, 10, SeverityHigh},     // ratio 0.3
		{9, 10, SeverityHigh},     // ratio 0.9
		{10, 10, SeverityCritical}, // ratio 1.0
		{1, 0, SeverityCritical},  // no stock at all
	}
	for _, c := range cases {
		if got := severityFor(c.deficit, c.effective); got != c.want {
			t.Errorf("severityFor(%d, %d) = %s, want %s", c.deficit, c.effective, got, c.want)
		}
	}
}
