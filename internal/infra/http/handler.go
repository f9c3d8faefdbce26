package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sonic-city-git/quincy-project-sub001/internal/domain/equipment"
	"github.com/sonic-city-git/quincy-project-sub001/internal/engine"
	"github.com/sonic-city-git/quincy-project-sub001/internal/report"
)

// ProjectScoper resolves a project id into the equipment its events consume.
type ProjectScoper interface {
	ProjectEquipmentIDs(ctx context.Context, projectID int64) ([]engine.EquipmentID, error)
}

// EquipmentLister enumerates the rentable equipment catalogue.
type EquipmentLister interface {
	List(ctx context.Context) ([]equipment.Item, error)
}

// API exposes the conflict engine to dashboards and the scheduling UI.
type API struct {
	eng       *engine.Engine
	projects  ProjectScoper
	equipment EquipmentLister
	log       *slog.Logger
}

func NewAPI(eng *engine.Engine, projects ProjectScoper, items EquipmentLister, log *slog.Logger) *API {
	return &API{eng: eng, projects: projects, equipment: items, log: log}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/conflicts", a.handleConflicts)
	mux.HandleFunc("GET /api/conflicts/export", a.handleExport)
	mux.HandleFunc("GET /api/availability", a.handleAvailability)
	mux.HandleFunc("POST /api/invalidate", a.handleInvalidate)
	mux.HandleFunc("GET /api/equipment", a.handleEquipment)
}

type eventJSON struct {
	EventID     int64  `json:"event_id"`
	EventName   string `json:"event_name"`
	ProjectID   int64  `json:"project_id"`
	ProjectName string `json:"project_name"`
	Quantity    int64  `json:"quantity"`
}

type conflictJSON struct {
	EquipmentID    int64       `json:"equipment_id"`
	EquipmentName  string      `json:"equipment_name"`
	Date           string      `json:"date"`
	BaseStock      int64       `json:"base_stock"`
	TotalUsed      int64       `json:"total_used"`
	EffectiveStock int64       `json:"effective_stock"`
	Deficit        int64       `json:"deficit"`
	Severity       string      `json:"severity"`
	AffectedEvents []eventJSON `json:"affected_events"`
}

type suggestionJSON struct {
	EquipmentID      int64    `json:"equipment_id"`
	EquipmentName    string   `json:"equipment_name"`
	From             string   `json:"from"`
	To               string   `json:"to"`
	Quantity         int64    `json:"quantity"`
	TentativePending int64    `json:"tentative_pending,omitempty"`
	Providers        []string `json:"providers"`
}

type diagnosticJSON struct {
	EquipmentID int64  `json:"equipment_id"`
	Date        string `json:"date,omitempty"`
	Message     string `json:"message"`
}

type queryResponse struct {
	Stale       bool             `json:"stale"`
	FetchedAt   time.Time        `json:"fetched_at"`
	Conflicts   []conflictJSON   `json:"conflicts"`
	Suggestions []suggestionJSON `json:"suggestions"`
	Diagnostics []diagnosticJSON `json:"diagnostics,omitempty"`
}

func (a *API) handleConflicts(w http.ResponseWriter, r *http.Request) {
	res, ok := a.query(w, r, engine.StrategyTimeline)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	res, ok := a.query(w, r, engine.StrategyTimeline)
	if !ok {
		return
	}
	// build the whole workbook first so a failure never ships a truncated 200
	var buf bytes.Buffer
	if err := report.WriteConflicts(&buf, res); err != nil {
		a.log.Error("conflict export failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errJSON("internal error"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="conflicts_`+time.Now().Format("20060102_150405")+`.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("equipment"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errJSON("equipment must be an integer id"))
		return
	}
	day, err := engine.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errJSON("date must be YYYY-MM-DD"))
		return
	}

	eq := engine.EquipmentID(id)
	res, err := a.eng.Query(r.Context(), engine.ScopeOf(eq), engine.DateRange{From: day, To: day}, engine.StrategyProject)
	if err != nil {
		a.writeError(w, err)
		return
	}

	events := make([]eventJSON, 0)
	for _, b := range res.BookingsFor(eq, day) {
		events = append(events, toEventJSON(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment_id": id,
		"date":         string(day),
		"availability": res.Availability(eq, day),
		"overbooked":   res.Overbooked(eq, day),
		"stale":        res.Stale,
		"bookings":     events,
	})
}

func (a *API) handleEquipment(w http.ResponseWriter, r *http.Request) {
	items, err := a.equipment.List(r.Context())
	if err != nil {
		a.log.Error("equipment list failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errJSON("internal error"))
		return
	}
	type itemJSON struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	out := make([]itemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, itemJSON{ID: it.ID, Name: it.Name, Category: it.Category})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EquipmentIDs []int64 `json:"equipment_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errJSON("invalid JSON body"))
		return
	}
	ids := make([]engine.EquipmentID, len(req.EquipmentIDs))
	for i, id := range req.EquipmentIDs {
		ids[i] = engine.EquipmentID(id)
	}
	a.eng.Invalidate(ids...)
	w.WriteHeader(http.StatusNoContent)
}

// query parses the shared scope/range/strategy parameters and runs the engine.
func (a *API) query(w http.ResponseWriter, r *http.Request, defaultStrategy string) (*engine.Result, bool) {
	q := r.URL.Query()

	from, err := engine.ParseDay(q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errJSON("from must be YYYY-MM-DD"))
		return nil, false
	}
	to, err := engine.ParseDay(q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errJSON("to must be YYYY-MM-DD"))
		return nil, false
	}

	strategy := q.Get("strategy")
	if strategy == "" {
		strategy = defaultStrategy
	}

	scope := engine.ScopeAll()
	switch {
	case q.Get("project") != "":
		projectID, err := strconv.ParseInt(q.Get("project"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errJSON("project must be an integer id"))
			return nil, false
		}
		ids, err := a.projects.ProjectEquipmentIDs(r.Context(), projectID)
		if err != nil {
			a.writeError(w, err)
			return nil, false
		}
		if len(ids) == 0 {
			writeJSON(w, http.StatusOK, emptyResponse())
			return nil, false
		}
		scope = engine.ScopeOf(ids...)
	case q.Get("equipment") != "":
		var ids []engine.EquipmentID
		for _, part := range strings.Split(q.Get("equipment"), ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errJSON("equipment must be a comma-separated id list"))
				return nil, false
			}
			ids = append(ids, engine.EquipmentID(id))
		}
		scope = engine.ScopeOf(ids...)
	}

	res, err := a.eng.Query(r.Context(), scope, engine.DateRange{From: from, To: to}, strategy)
	if err != nil {
		a.writeError(w, err)
		return nil, false
	}
	return res, true
}

func toResponse(res *engine.Result) queryResponse {
	out := queryResponse{
		Stale:       res.Stale,
		FetchedAt:   res.FetchedAt,
		Conflicts:   make([]conflictJSON, 0, len(res.Conflicts)),
		Suggestions: make([]suggestionJSON, 0, len(res.Suggestions)),
	}
	for _, c := range res.Conflicts {
		cj := conflictJSON{
			EquipmentID:    int64(c.EquipmentID),
			EquipmentName:  c.EquipmentName,
			Date:           string(c.Date),
			BaseStock:      c.Breakdown.Base,
			TotalUsed:      c.Breakdown.TotalUsed,
			EffectiveStock: c.Breakdown.Effective,
			Deficit:        c.Deficit,
			Severity:       string(c.Severity),
			AffectedEvents: make([]eventJSON, 0, len(c.AffectedEvents)),
		}
		for _, b := range c.AffectedEvents {
			cj.AffectedEvents = append(cj.AffectedEvents, toEventJSON(b))
		}
		out.Conflicts = append(out.Conflicts, cj)
	}
	for _, s := range res.Suggestions {
		names := make([]string, 0, len(s.Providers))
		for _, p := range s.Providers {
			names = append(names, p.ProviderName)
		}
		out.Suggestions = append(out.Suggestions, suggestionJSON{
			EquipmentID:      int64(s.EquipmentID),
			EquipmentName:    s.EquipmentName,
			From:             string(s.Range.From),
			To:               string(s.Range.To),
			Quantity:         s.Quantity,
			TentativePending: s.TentativePending,
			Providers:        names,
		})
	}
	for _, d := range res.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, diagnosticJSON{
			EquipmentID: int64(d.EquipmentID),
			Date:        string(d.Date),
			Message:     d.Message,
		})
	}
	return out
}

func toEventJSON(b engine.Booking) eventJSON {
	return eventJSON{
		EventID:     b.EventID,
		EventName:   b.EventName,
		ProjectID:   b.ProjectID,
		ProjectName: b.ProjectName,
		Quantity:    b.Quantity,
	}
}

func emptyResponse() queryResponse {
	return queryResponse{
		FetchedAt:   time.Now(),
		Conflicts:   []conflictJSON{},
		Suggestions: []suggestionJSON{},
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	var dserr *engine.DataSourceError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errJSON(err.Error()))
	case errors.As(err, &dserr):
		a.log.Error("engine query failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errJSON("data source unavailable"))
	default:
		a.log.Error("engine query failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errJSON("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errJSON(msg string) map[string]string { return map[string]string{"error": msg} }
