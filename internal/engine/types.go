package engine

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// DayLayout is the wire format for calendar days. Days carry no time component;
// two days are equal iff their ISO strings are equal.
const DayLayout = "2006-01-02"

type EquipmentID int64

// Day is a calendar day in ISO form ("2006-01-02"). ISO strings order
// lexicographically, so Day values compare with < and ==.
type Day string

func DayOf(t time.Time) Day { return Day(t.Format(DayLayout)) }

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return "", err
	}
	return DayOf(t), nil
}

func (d Day) Time() time.Time {
	t, _ := time.Parse(DayLayout, string(d))
	return t
}

func (d Day) Next() Day { return DayOf(d.Time().AddDate(0, 0, 1)) }

func (d Day) Prev() Day { return DayOf(d.Time().AddDate(0, 0, -1)) }

func (d Day) Before(o Day) bool { return d < o }

// DateRange is an inclusive [From, To] day span.
type DateRange struct {
	From Day
	To   Day
}

func (r DateRange) Valid() bool { return r.From != "" && r.To != "" && !r.To.Before(r.From) }

func (r DateRange) Contains(d Day) bool { return !d.Before(r.From) && !r.To.Before(d) }

// Covers reports whether r fully contains o.
func (r DateRange) Covers(o DateRange) bool { return !o.From.Before(r.From) && !r.To.Before(o.To) }

// Days expands the range into its individual days, in order.
func (r DateRange) Days() []Day {
	var out []Day
	for d := r.From; !r.To.Before(d); d = d.Next() {
		out = append(out, d)
	}
	return out
}

// Scope limits an engine query to a set of equipment items. The zero value is
// invalid; use ScopeAll or ScopeOf.
type Scope struct {
	All bool
	IDs []EquipmentID
}

func ScopeAll() Scope { return Scope{All: true} }

func ScopeOf(ids ...EquipmentID) Scope {
	out := make([]EquipmentID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	// dedupe in place
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return Scope{IDs: out[:n]}
}

func (s Scope) Contains(id EquipmentID) bool {
	if s.All {
		return true
	}
	i := sort.Search(len(s.IDs), func(i int) bool { return s.IDs[i] >= id })
	return i < len(s.IDs) && s.IDs[i] == id
}

// Intersects reports whether any of ids falls inside the scope. An empty ids
// slice means "everything" and always intersects.
func (s Scope) Intersects(ids []EquipmentID) bool {
	if len(ids) == 0 || s.All {
		return true
	}
	for _, id := range ids {
		if s.Contains(id) {
			return true
		}
	}
	return false
}

func (s Scope) key() string {
	if s.All {
		return "all"
	}
	parts := make([]string, len(s.IDs))
	for i, id := range s.IDs {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}

type FactKind string

const (
	FactBase         FactKind = "base"
	FactSubrentalAdd FactKind = "subrental_add"
	FactRepairRemove FactKind = "repair_remove"
)

type FactStatus string

const (
	StatusConfirmed FactStatus = "confirmed"
	StatusTentative FactStatus = "tentative"
)

// StockFact is one immutable adjustment to physical or virtual stock.
// Base facts are levels: the quantity holds from From until the next base fact.
// Subrental additions and repair removals are day-scoped deltas over [From, To].
// Quantity is always non-negative; the kind decides the sign. Only confirmed
// facts take part in effective-stock math.
type StockFact struct {
	EquipmentID EquipmentID
	From        Day
	To          Day
	Kind        FactKind
	Quantity    int64
	Status      FactStatus
}

// Booking is one unit of demand: an event consuming some quantity of an
// equipment item on one day. Demand for a cell is the sum over its bookings.
type Booking struct {
	EquipmentID   EquipmentID
	EquipmentName string
	Date          Day
	Quantity      int64
	EventID       int64
	EventName     string
	ProjectID     int64
	ProjectName   string
}

// EffectiveStock is the derived per-cell availability figure.
// Effective = max(0, Base+Virtual) and is never negative.
type EffectiveStock struct {
	EquipmentID EquipmentID
	Date        Day
	Base        int64
	Virtual     int64
	Effective   int64
}

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type StockBreakdown struct {
	Base      int64
	TotalUsed int64
	Effective int64
}

// ConflictAnalysis is one overbooked (equipment, day) cell. Emitted only when
// Deficit > 0; AffectedEvents lists the contributing bookings, largest first.
type ConflictAnalysis struct {
	EquipmentID    EquipmentID
	EquipmentName  string
	Date           Day
	Breakdown      StockBreakdown
	Deficit        int64
	Severity       Severity
	AffectedEvents []Booking
}

// ProviderStat is one external provider's prior fulfillment record for an
// equipment item, used to rank subrental candidates.
type ProviderStat struct {
	ProviderID   int64
	ProviderName string
	Fulfilled    int64
}

// SubrentalSuggestion proposes renting extra units to cover a run of conflict
// days. Quantity is the peak deficit inside the window, not the sum: one rental
// covering the peak also covers the smaller days. TentativePending reports
// tentative subrental additions already overlapping the window; it is advisory
// and never reduces the suggested quantity.
type SubrentalSuggestion struct {
	EquipmentID      EquipmentID
	EquipmentName    string
	Range            DateRange
	Quantity         int64
	TentativePending int64
	Providers        []ProviderStat
}

// Diagnostic is a non-fatal computation problem (a skipped fact, a failed
// provider lookup). Diagnostics travel next to the payload, never inside it.
type Diagnostic struct {
	EquipmentID EquipmentID
	Date        Day
	Message     string
}
