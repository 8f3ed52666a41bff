/*
handlers.go - HTTP handlers for the OJT engine

PURPOSE:
  Connects HTTP requests to the engine: schedule views, day breakdowns,
  hour reports, punch submission, and the configuration authoring
  surface used by coordinator/supervisor collaborators.

HANDLER PATTERN:
  1. Parse and validate input (validator tags on request DTOs)
  2. Call the engine (resolver, gate, aggregator) or the store
  3. Serialize the response
  4. Map errors to status codes

ERROR HANDLING:
  - 400: validation errors, malformed dates
  - 404: unknown student/punch
  - 409: duplicate punch id
  - 500: storage or engine failures
  A denied gate decision is NOT an error: it returns 200 with
  {allow:false, reason, message} so the capture client can present it.

SEE ALSO:
  - dto.go: request/response structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/ojt-engine/gate"
	"github.com/warp/ojt-engine/hours"
	"github.com/warp/ojt-engine/metrics"
	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
	"github.com/warp/ojt-engine/store"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      store.Store
	Resolver   *schedule.Resolver
	Gate       *gate.Gate
	Aggregator *hours.Aggregator
	Metrics    *metrics.Metrics
	Clock      schedule.Clock
	Loc        *time.Location
}

// NewHandler wires a handler over a store. The resolver, gate, and
// aggregator all share the same clock and zone.
func NewHandler(st store.Store, cache schedule.Cache, m *metrics.Metrics, clock schedule.Clock, loc *time.Location) *Handler {
	if clock == nil {
		clock = schedule.SystemClock()
	}
	if loc == nil {
		loc = time.Local
	}
	resolver := &schedule.Resolver{Source: st, Cache: cache, Loc: loc}
	if m != nil {
		resolver.OnFallback = m.ScheduleFallbacks.Inc
	}
	return &Handler{
		Store:      st,
		Resolver:   resolver,
		Gate:       gate.New(resolver, st, clock, loc),
		Aggregator: hours.New(resolver, clock, loc),
		Metrics:    m,
		Clock:      clock,
		Loc:        loc,
	}
}

// =============================================================================
// SCHEDULE AND HOURS
// =============================================================================

// GetSchedule returns the resolved effective schedule for a date
// (default: today).
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}

	sched, grant, err := h.Resolver.ResolveWithOvertime(r.Context(), studentID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve schedule", err)
		return
	}
	if sched == nil {
		writeError(w, http.StatusNotFound, "No official schedule for this date", nil)
		return
	}
	writeJSON(w, http.StatusOK, scheduleDTO(date, sched, grant))
}

// GetHours returns the student's full aggregate report.
func (h *Handler) GetHours(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")

	punches, err := h.Store.History(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load punches", err)
		return
	}

	started := time.Now()
	report, err := h.Aggregator.Aggregate(r.Context(), studentID, punches)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to aggregate hours", err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.AggregateDuration.Observe(time.Since(started).Seconds())
	}
	writeJSON(w, http.StatusOK, reportDTO(report))
}

// GetDay returns the session breakdown for a single date.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	date, err := schedule.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	punches, err := h.Store.History(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load punches", err)
		return
	}
	report, err := h.Aggregator.Aggregate(r.Context(), studentID, punches)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to aggregate hours", err)
		return
	}
	for _, d := range report.Days {
		if d.Date == date {
			writeJSON(w, http.StatusOK, dayDTO(d))
			return
		}
	}
	writeJSON(w, http.StatusOK, DayDTO{Date: date.String()})
}

// =============================================================================
// PUNCH SUBMISSION
// =============================================================================

// TimeIn runs a time-in attempt through the validation gate.
func (h *Handler) TimeIn(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	var req TimeInRequest
	if !h.decode(w, r, &req) {
		return
	}

	decision, err := h.Gate.TimeIn(r.Context(), studentID, req.PhotoRef)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Time-in failed", err)
		return
	}
	h.observe("time_in", decision)
	writeJSON(w, http.StatusOK, decisionDTO(decision))
}

// TimeOut runs a time-out attempt through the validation gate.
func (h *Handler) TimeOut(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	var req TimeOutRequest
	if !h.decode(w, r, &req) {
		return
	}

	decision, err := h.Gate.TimeOut(r.Context(), studentID, req.PhotoRef, req.Confirm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Time-out failed", err)
		return
	}
	h.observe("time_out", decision)
	writeJSON(w, http.StatusOK, decisionDTO(decision))
}

func (h *Handler) observe(op string, d gate.Decision) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.GateDecisions.WithLabelValues(op, string(d.Reason)).Inc()
	if d.AutoClosed != nil {
		h.Metrics.AutoCloses.Inc()
	}
}

// =============================================================================
// PUNCH MUTATIONS (approval and ledger freeze)
// =============================================================================

// SetPunchStatus applies an approval decision to a punch.
func (h *Handler) SetPunchStatus(w http.ResponseWriter, r *http.Request) {
	punchID := chi.URLParam(r, "id")
	var req PunchStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.Store.SetStatus(r.Context(), punchID, punch.Status(req.Status), req.ValidatedBy)
	if errors.Is(err, store.ErrPunchNotFound) {
		writeError(w, http.StatusNotFound, "Punch not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// FreezePunch persists frozen ledger values on an out punch so later
// schedule edits cannot change the session's recorded contribution.
func (h *Handler) FreezePunch(w http.ResponseWriter, r *http.Request) {
	punchID := chi.URLParam(r, "id")
	var req FreezeRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.Store.SetFreeze(r.Context(), punchID, store.Freeze{
		RenderedMs:      req.RenderedMs,
		ValidatedMs:     req.ValidatedMs,
		OfficialStartTs: req.OfficialStartTs,
		OfficialEndTs:   req.OfficialEndTs,
	})
	if errors.Is(err, store.ErrPunchNotFound) {
		writeError(w, http.StatusNotFound, "Punch not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to freeze punch", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CONFIG AUTHORING (coordinator/supervisor collaborators)
// =============================================================================

// PutStudent upserts a student registry record.
func (h *Handler) PutStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.Store.PutStudent(r.Context(), schedule.Student{
		ID: req.ID, Name: req.Name, CourseID: req.CourseID,
		SupervisorID: req.SupervisorID, TargetHours: req.TargetHours,
	})
	h.putResult(w, err)
}

// PutCoordinatorEvent upserts a coordinator event.
func (h *Handler) PutCoordinatorEvent(w http.ResponseWriter, r *http.Request) {
	var req CoordinatorEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	err = h.Store.PutCoordinatorEvent(r.Context(), schedule.CoordinatorEvent{
		ID: req.ID, Date: date, CourseScope: req.CourseScope,
		AMIn: req.AMIn, AMOut: req.AMOut,
		PMIn: req.PMIn, PMOut: req.PMOut,
		OTIn: req.OTIn, OTOut: req.OTOut,
	})
	h.putResult(w, err)
}

// PutStudentOverride upserts the undated per-student baseline.
func (h *Handler) PutStudentOverride(w http.ResponseWriter, r *http.Request) {
	var req StudentOverrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.Store.PutStudentOverride(r.Context(), schedule.StudentOverride{
		StudentID: req.StudentID,
		AMIn:      req.AMIn, AMOut: req.AMOut,
		PMIn: req.PMIn, PMOut: req.PMOut,
		OTIn: req.OTIn, OTOut: req.OTOut,
	})
	h.putResult(w, err)
}

// PutDatedOverride upserts a per-date supervisor override.
func (h *Handler) PutDatedOverride(w http.ResponseWriter, r *http.Request) {
	var req DatedOverrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	err = h.Store.PutDatedOverride(r.Context(), schedule.DatedOverride{
		SupervisorID: req.SupervisorID, Date: date,
		AMIn: req.AMIn, AMOut: req.AMOut,
		PMIn: req.PMIn, PMOut: req.PMOut,
	})
	h.putResult(w, err)
}

// PutShift upserts a supervisor roster row.
func (h *Handler) PutShift(w http.ResponseWriter, r *http.Request) {
	var req ShiftRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.Store.PutSupervisorShift(r.Context(), schedule.SupervisorShift{
		ID: req.ID, SupervisorID: req.SupervisorID, Name: req.Name,
		Start: req.Start, End: req.End,
	})
	h.putResult(w, err)
}

// PutOvertimeGrant upserts the at-most-one grant per (student, date).
func (h *Handler) PutOvertimeGrant(w http.ResponseWriter, r *http.Request) {
	var req OvertimeGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	err = h.Store.PutOvertimeGrant(r.Context(), schedule.OvertimeGrant{
		StudentID: req.StudentID, Date: date,
		StartTs: req.StartTs, EndTs: req.EndTs, GrantedBy: req.GrantedBy,
	})
	h.putResult(w, err)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request) (schedule.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return schedule.DateOf(h.Clock.Now(), h.Loc), true
	}
	date, err := schedule.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return schedule.Date{}, false
	}
	return date, true
}

// decode parses the JSON body and runs validator tags. Writes the error
// response itself; callers just return on false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) putResult(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Write failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}
