/*
Package gate decides whether a time-in or time-out attempt is allowed
right now.

PURPOSE:
  The capture workflow asks this state machine at the instant of
  submission. The gate re-resolves the schedule fresh on every call,
  never from a cached copy, and re-scans which windows are already
  consumed, so concurrent submissions for the same student cannot race
  a stale schedule into a duplicate approval.

STATES (per student, per day):
  NoOpenSession | OpenAM | OpenPM | OpenOT
  derived on the fly by reducing the punch history, never stored.

DECISIONS:
  Every attempt yields a Decision {Allow, Reason, Message}. Blocking
  reasons: NoSchedule, DuplicateOrOutOfWindow (too-early and
  already-used variants), LateIn, AuthorizationWindow, NoOpenSession,
  PhotoRequired. EarlyOutWarning is non-blocking: it asks for explicit
  confirmation before an early time-out proceeds.

SIDE EFFECTS:
  On an allowed attempt the gate hands the new punch to storage. A
  forgotten time-out from an earlier day is auto-closed first: a
  synthetic out is persisted at that day's scheduled end (best-effort;
  a failed write is logged and never blocks the new time-in).

SEE ALSO:
  - schedule/: resolution and the grace constant
  - punch/: the open-session reduction
*/
package gate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
)

// =============================================================================
// DECISIONS
// =============================================================================

// Reason is the machine-readable outcome of a validation attempt.
type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonNoSchedule    Reason = "no_schedule"
	ReasonDuplicate     Reason = "duplicate_or_out_of_window"
	ReasonLateIn        Reason = "late_in"
	ReasonAuthorization Reason = "authorization_window"
	ReasonNoOpenSession Reason = "no_open_session"
	ReasonEarlyOut      Reason = "early_out_warning"
	ReasonPhotoRequired Reason = "photo_required"
)

// Decision is the gate's answer to the capture workflow.
type Decision struct {
	Allow           bool
	Reason          Reason
	Message         string
	RequiresConfirm bool // early-out warning: retry with confirmation

	// Punch is the recorded punch on an allowed attempt.
	Punch *punch.Event

	// AutoClosed is the synthetic out persisted for a forgotten session
	// from an earlier day, when one was needed.
	AutoClosed *punch.Event
}

func deny(reason Reason, format string, args ...any) Decision {
	return Decision{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// PUNCH LOG - The storage collaborator
// =============================================================================

// PunchLog is the slice of storage the gate needs: the full chronological
// history for consumed-window scans, and an at-most-once insert.
type PunchLog interface {
	History(ctx context.Context, studentID string) ([]punch.Event, error)
	Insert(ctx context.Context, e punch.Event) error
}

// =============================================================================
// GATE
// =============================================================================

// Gate validates punch attempts. Stateless between calls.
type Gate struct {
	Resolver *schedule.Resolver
	Punches  PunchLog
	Clock    schedule.Clock
	Loc      *time.Location
}

func New(resolver *schedule.Resolver, punches PunchLog, clock schedule.Clock, loc *time.Location) *Gate {
	if clock == nil {
		clock = schedule.SystemClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Gate{Resolver: resolver, Punches: punches, Clock: clock, Loc: loc}
}

// TimeIn validates and records a time-in attempt.
func (g *Gate) TimeIn(ctx context.Context, studentID, photoRef string) (Decision, error) {
	now := g.Clock.Now().In(g.Loc)
	today := schedule.DateOf(now, g.Loc)

	// Always a fresh resolution: gating decisions never trust a cache.
	sched, grant, err := g.Resolver.ResolveWithOvertime(ctx, studentID, today)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve schedule: %w", err)
	}
	if sched == nil {
		return deny(ReasonNoSchedule, "no official schedule is set for today"), nil
	}
	if photoRef == "" {
		return deny(ReasonPhotoRequired, "a freshly captured photo is required"), nil
	}

	history, err := g.Punches.History(ctx, studentID)
	if err != nil {
		return Decision{}, fmt.Errorf("load punches: %w", err)
	}

	autoClosed := g.autoClose(ctx, history, today)
	if autoClosed != nil {
		history = append(history, *autoClosed)
	}

	decision := g.timeInDecision(now, today, sched, grant, dayOf(history, today, g.Loc))
	decision.AutoClosed = autoClosed
	if !decision.Allow {
		return decision, nil
	}

	e := punch.Event{
		ID:         punch.NewID(),
		StudentID:  studentID,
		Kind:       punch.KindIn,
		Timestamp:  now.UnixMilli(),
		PhotoRef:   photoRef,
		Status:     punch.StatusPending,
		Overtime:   decision.Punch.Overtime,
		SlotLabel:  decision.Punch.SlotLabel,
		Provenance: punch.ProvenanceCaptured,
	}
	if err := g.Punches.Insert(ctx, e); err != nil {
		return Decision{}, fmt.Errorf("record time-in: %w", err)
	}
	decision.Punch = &e
	return decision, nil
}

// timeInDecision applies the window rules to a prospective in punch. The
// returned Punch carries only the slot assignment; the caller fills in the
// rest.
func (g *Gate) timeInDecision(now time.Time, today schedule.Date, sched *schedule.Effective, grant *schedule.OvertimeGrant, todays []punch.Event) Decision {
	type candidate struct {
		shift schedule.Shift
		w     schedule.Window
	}
	candidates := []candidate{
		{schedule.ShiftAM, sched.Window(schedule.ShiftAM)},
		{schedule.ShiftPM, sched.Window(schedule.ShiftPM)},
	}
	// Without a dynamic grant, a scheduled OT window behaves like any
	// other; with one, the grant's exact bounds govern instead.
	if grant == nil {
		candidates = append(candidates, candidate{schedule.ShiftOT, sched.Window(schedule.ShiftOT)})
	}

	tooEarly := false
	var consumedShift schedule.Shift
	for _, c := range candidates {
		if !c.w.Resolved() {
			continue
		}
		start := today.At(c.w.Start, g.Loc).Add(-schedule.Grace)
		end := today.At(c.w.End, g.Loc)
		if now.Before(start) {
			tooEarly = true
			continue
		}
		if now.After(end) {
			continue
		}
		if g.consumed(todays, start, end) {
			// Widened windows can overlap on contiguous rosters; a
			// later candidate may still accept, so keep scanning.
			if consumedShift == "" {
				consumedShift = c.shift
			}
			continue
		}
		return Decision{
			Allow:  true,
			Reason: ReasonOK,
			Punch:  &punch.Event{SlotLabel: string(c.shift), Overtime: c.shift == schedule.ShiftOT},
		}
	}
	if consumedShift != "" {
		return deny(ReasonDuplicate, "a time-in for the %s shift was already used", consumedShift)
	}

	if grant != nil {
		start := time.UnixMilli(grant.StartTs).Add(-schedule.Grace)
		end := time.UnixMilli(grant.EndTs)
		switch {
		case now.Before(start):
			return deny(ReasonAuthorization, "too early: overtime is authorized from %s",
				time.UnixMilli(grant.StartTs).In(g.Loc).Format("15:04"))
		case now.After(end):
			return deny(ReasonAuthorization, "the authorized overtime window has ended")
		}
		if g.consumed(todays, start, end) {
			return deny(ReasonDuplicate, "a time-in for the authorized overtime window was already used")
		}
		return Decision{
			Allow:  true,
			Reason: ReasonOK,
			Punch:  &punch.Event{SlotLabel: string(schedule.ShiftOT), Overtime: true},
		}
	}

	// Past the end of the working day with no overtime window at all.
	if pmEnd := sched.Window(schedule.ShiftPM).End; pmEnd.Valid && !sched.Window(schedule.ShiftOT).Resolved() {
		if !now.Before(today.At(pmEnd, g.Loc)) {
			return deny(ReasonLateIn, "the working day has ended and no overtime is scheduled")
		}
	}
	if tooEarly {
		return deny(ReasonDuplicate, "too early: the next shift has not opened yet")
	}
	return deny(ReasonDuplicate, "no shift window is open right now")
}

// consumed reports whether a prior non-rejected in already falls in the
// widened window [start, end].
func (g *Gate) consumed(todays []punch.Event, start, end time.Time) bool {
	for _, e := range todays {
		if e.Kind != punch.KindIn || e.Rejected() {
			continue
		}
		at := e.Time()
		if !at.Before(start) && !at.After(end) {
			return true
		}
	}
	return false
}

// TimeOut validates and records a time-out attempt. An out before the open
// shift's official end is a warning, not an error: the caller retries with
// confirmed=true once the student acknowledges it.
func (g *Gate) TimeOut(ctx context.Context, studentID, photoRef string, confirmed bool) (Decision, error) {
	now := g.Clock.Now().In(g.Loc)
	today := schedule.DateOf(now, g.Loc)

	history, err := g.Punches.History(ctx, studentID)
	if err != nil {
		return Decision{}, fmt.Errorf("load punches: %w", err)
	}
	state := punch.ReduceOpen(dayOf(history, today, g.Loc))
	if !state.Open {
		return deny(ReasonNoOpenSession, "no open time-in found for today"), nil
	}
	if photoRef == "" {
		return deny(ReasonPhotoRequired, "a freshly captured photo is required"), nil
	}

	sched, _, err := g.Resolver.ResolveWithOvertime(ctx, studentID, today)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve schedule: %w", err)
	}
	if end, ok := g.officialEnd(state.In, sched, today); ok && now.Before(end) && !confirmed {
		return Decision{
			Reason:          ReasonEarlyOut,
			RequiresConfirm: true,
			Message: fmt.Sprintf("the shift runs until %s; confirm to time out early",
				end.Format("15:04")),
		}, nil
	}

	e := punch.Event{
		ID:         punch.NewID(),
		StudentID:  studentID,
		Kind:       punch.KindOut,
		Timestamp:  now.UnixMilli(),
		PhotoRef:   photoRef,
		Status:     punch.StatusPending,
		Overtime:   state.In.Overtime,
		SlotLabel:  state.In.SlotLabel,
		Provenance: punch.ProvenanceCaptured,
	}
	if err := g.Punches.Insert(ctx, e); err != nil {
		return Decision{}, fmt.Errorf("record time-out: %w", err)
	}
	return Decision{Allow: true, Reason: ReasonOK, Punch: &e}, nil
}

// officialEnd finds the scheduled end of the shift the open in belongs to.
func (g *Gate) officialEnd(in punch.Event, sched *schedule.Effective, date schedule.Date) (time.Time, bool) {
	if sched == nil {
		return time.Time{}, false
	}
	shift, ok := g.classify(in, sched, date)
	if !ok {
		return time.Time{}, false
	}
	w := sched.Window(shift)
	if !w.End.Valid {
		return time.Time{}, false
	}
	return date.At(w.End, g.Loc), true
}

func (g *Gate) classify(in punch.Event, sched *schedule.Effective, date schedule.Date) (schedule.Shift, bool) {
	if in.Overtime {
		return schedule.ShiftOT, true
	}
	at := in.Time().In(g.Loc)
	for _, shift := range []schedule.Shift{schedule.ShiftAM, schedule.ShiftPM} {
		w := sched.Window(shift)
		if !w.Resolved() {
			continue
		}
		start := date.At(w.Start, g.Loc).Add(-schedule.Grace)
		if !at.Before(start) && !at.After(date.At(w.End, g.Loc)) {
			return shift, true
		}
	}
	// Out-of-window in: attribute to whichever half of the day it is in.
	if pmIn := sched.PMIn; pmIn.Valid && at.Before(date.At(pmIn, g.Loc)) && sched.AMOut.Valid {
		return schedule.ShiftAM, true
	}
	if sched.PMOut.Valid {
		return schedule.ShiftPM, true
	}
	return "", false
}

// =============================================================================
// AUTO-CLOSE - Forgotten time-out recovery at submission time
// =============================================================================

// autoClose closes an unmatched in from an earlier calendar day by
// persisting a synthetic out at that day's scheduled shift end, or one
// minute after the in when no end is derivable. Best-effort: a failed
// write is logged and the new time-in proceeds regardless.
func (g *Gate) autoClose(ctx context.Context, history []punch.Event, today schedule.Date) *punch.Event {
	state := punch.ReduceOpen(history)
	if !state.Open {
		return nil
	}
	inDate := schedule.DateOf(state.In.Time(), g.Loc)
	if !inDate.Before(today) {
		return nil
	}

	at := state.In.Time().Add(time.Minute)
	if sched, _, err := g.Resolver.ResolveWithOvertime(ctx, state.In.StudentID, inDate); err == nil && sched != nil {
		if end, ok := g.officialEnd(state.In, sched, inDate); ok && end.After(state.In.Time()) {
			at = end
		}
	}

	e := punch.Event{
		ID:         punch.NewID(),
		StudentID:  state.In.StudentID,
		Kind:       punch.KindOut,
		Timestamp:  at.UnixMilli(),
		Status:     state.In.Status,
		Overtime:   state.In.Overtime,
		SlotLabel:  state.In.SlotLabel,
		Provenance: punch.ProvenanceAutoClosed,
	}
	if err := g.Punches.Insert(ctx, e); err != nil {
		log.Printf("gate: auto-close write failed for %s: %v", state.In.StudentID, err)
		return nil
	}
	return &e
}

// dayOf filters a history down to one local calendar date.
func dayOf(history []punch.Event, date schedule.Date, loc *time.Location) []punch.Event {
	var out []punch.Event
	for _, e := range history {
		if schedule.DateOf(e.Time(), loc) == date {
			out = append(out, e)
		}
	}
	return out
}
