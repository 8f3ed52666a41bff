/*
Package schedule resolves the official attendance window for a student on a
given date.

PURPOSE:
  Several overlapping configuration sources describe when a student is
  supposed to be on duty: coordinator-authored events, per-student fixed
  schedules, dated supervisor overrides, and the supervisor's own shift
  roster. This package merges them, field by field, into one effective
  daily schedule, and injects supervisor-granted overtime windows on top.

KEY CONCEPTS:
  - TimeOfDay/Date: minute-granular wall-clock primitives (time.go)
  - Partial:        a provider's contribution; any field may be absent
  - Effective:      the fully merged daily schedule (AM/PM/OT windows)
  - Source:         read-only queries against the configuration stores
  - Resolver:       the precedence chain (resolver.go)

PRECEDENCE (first valid value per field wins):
  1. CoordinatorEvent for the date (course-scoped beats general)
  2. Per-student fixed schedule (undated)
  3. Dated supervisor override (AM/PM fields only, never OT)
  4. Supervisor shift roster, classified into AM/PM/OT by name

  An OvertimeAuthorization for the date then replaces the OT window
  unconditionally.

READ-ONLY CONTRACT:
  This package never writes configuration. It only reads sources and
  reports the merged result.

SEE ALSO:
  - resolver.go: the merge chain and shift-roster classification
  - store/: Source implementations (memory, sqlite)
*/
package schedule

import (
	"context"
	"time"
)

// Grace is the allowance before a shift's official start during which an
// early time-in is still accepted. The same widened window decides which
// shift an in punch belongs to.
const Grace = 30 * time.Minute

// =============================================================================
// SHIFTS AND WINDOWS
// =============================================================================

// Shift labels the three sub-windows of a working day.
type Shift string

const (
	ShiftAM Shift = "am"
	ShiftPM Shift = "pm"
	ShiftOT Shift = "ot"
)

// Window is an official start/end pair for one shift. A window with either
// bound absent is unresolved and contributes zero counted duration.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Resolved reports whether both bounds are present.
func (w Window) Resolved() bool { return w.Start.Valid && w.End.Valid }

// =============================================================================
// PARTIAL AND EFFECTIVE SCHEDULES
// =============================================================================

// Partial is one provider's contribution to the daily schedule. Every field
// is independently optional.
type Partial struct {
	AMIn, AMOut TimeOfDay
	PMIn, PMOut TimeOfDay
	OTIn, OTOut TimeOfDay
}

// Effective is the merged schedule for one (student, date).
type Effective struct {
	AMIn, AMOut TimeOfDay
	PMIn, PMOut TimeOfDay
	OTIn, OTOut TimeOfDay
}

// Window returns the resolved window for a shift.
func (e Effective) Window(s Shift) Window {
	switch s {
	case ShiftAM:
		return Window{Start: e.AMIn, End: e.AMOut}
	case ShiftPM:
		return Window{Start: e.PMIn, End: e.PMOut}
	case ShiftOT:
		return Window{Start: e.OTIn, End: e.OTOut}
	}
	return Window{}
}

// Empty reports whether no field resolved at all. Downstream treats an
// empty resolution as "no official schedule" and refuses normal time-in.
func (e Effective) Empty() bool {
	return !e.AMIn.Valid && !e.AMOut.Valid &&
		!e.PMIn.Valid && !e.PMOut.Valid &&
		!e.OTIn.Valid && !e.OTOut.Valid
}

// Merge folds an ordered list of partials, earliest first. The first valid
// value for each field wins; later providers only fill gaps.
func Merge(partials ...Partial) Effective {
	var e Effective
	for _, p := range partials {
		if !e.AMIn.Valid {
			e.AMIn = p.AMIn
		}
		if !e.AMOut.Valid {
			e.AMOut = p.AMOut
		}
		if !e.PMIn.Valid {
			e.PMIn = p.PMIn
		}
		if !e.PMOut.Valid {
			e.PMOut = p.PMOut
		}
		if !e.OTIn.Valid {
			e.OTIn = p.OTIn
		}
		if !e.OTOut.Valid {
			e.OTOut = p.OTOut
		}
	}
	return e
}

// =============================================================================
// CONFIGURATION ENTITIES (authored elsewhere, consumed read-only)
// =============================================================================

// Student is the minimal registry record the engine needs: which course the
// student belongs to (for coordinator event scoping), which supervisor's
// roster applies, and the internship hour goal.
type Student struct {
	ID           string
	Name         string
	CourseID     string
	SupervisorID string
	TargetHours  float64
}

// CoordinatorEvent is the highest-precedence source. Raw time strings are
// kept as authored; parsing happens at resolution so a malformed field
// degrades to absent rather than poisoning the event.
type CoordinatorEvent struct {
	ID          string
	Date        Date
	CourseScope []string // empty = applies to every course
	AMIn, AMOut string
	PMIn, PMOut string
	OTIn, OTOut string
}

// AppliesTo reports whether the event covers the given course.
func (e CoordinatorEvent) AppliesTo(courseID string) bool {
	for _, c := range e.CourseScope {
		if c == courseID {
			return true
		}
	}
	return false
}

// General reports whether the event has no course scope.
func (e CoordinatorEvent) General() bool { return len(e.CourseScope) == 0 }

// Partial converts the event's raw fields.
func (e CoordinatorEvent) Partial() Partial {
	return Partial{
		AMIn: ParseTimeOfDay(e.AMIn), AMOut: ParseTimeOfDay(e.AMOut),
		PMIn: ParseTimeOfDay(e.PMIn), PMOut: ParseTimeOfDay(e.PMOut),
		OTIn: ParseTimeOfDay(e.OTIn), OTOut: ParseTimeOfDay(e.OTOut),
	}
}

// StudentOverride is a student-specific baseline schedule with no date
// attached.
type StudentOverride struct {
	StudentID   string
	AMIn, AMOut string
	PMIn, PMOut string
	OTIn, OTOut string
}

func (o StudentOverride) Partial() Partial {
	return Partial{
		AMIn: ParseTimeOfDay(o.AMIn), AMOut: ParseTimeOfDay(o.AMOut),
		PMIn: ParseTimeOfDay(o.PMIn), PMOut: ParseTimeOfDay(o.PMOut),
		OTIn: ParseTimeOfDay(o.OTIn), OTOut: ParseTimeOfDay(o.OTOut),
	}
}

// DatedOverride supersedes the supervisor default for a single date. It can
// only carry AM/PM sub-windows; it never touches OT.
type DatedOverride struct {
	SupervisorID string
	Date         Date
	AMIn, AMOut  string
	PMIn, PMOut  string
}

func (o DatedOverride) Partial() Partial {
	return Partial{
		AMIn: ParseTimeOfDay(o.AMIn), AMOut: ParseTimeOfDay(o.AMOut),
		PMIn: ParseTimeOfDay(o.PMIn), PMOut: ParseTimeOfDay(o.PMOut),
	}
}

// SupervisorShift is one row of a supervisor's shift roster. Rows are
// classified into AM/PM/OT by name keyword at resolution time.
type SupervisorShift struct {
	ID           string
	SupervisorID string
	Name         string
	Start        string
	End          string
}

// OvertimeGrant authorizes attendance logging outside the regular schedule
// for a single (student, date). Bounds are epoch milliseconds because the
// grant is an instant-level authorization, not an authored "HH:MM" window.
type OvertimeGrant struct {
	StudentID string
	Date      Date
	StartTs   int64
	EndTs     int64
	GrantedBy string
}

// =============================================================================
// SOURCE - Read-only configuration queries
// =============================================================================

// Source is the read side of every configuration store the resolver
// consults. Implementations live in store/.
type Source interface {
	Student(ctx context.Context, studentID string) (*Student, error)

	// CoordinatorEvents returns all events for the date, any scope.
	CoordinatorEvents(ctx context.Context, date Date) ([]CoordinatorEvent, error)

	// StudentOverride returns the undated per-student baseline, or nil.
	StudentOverride(ctx context.Context, studentID string) (*StudentOverride, error)

	// DatedOverride returns the supervisor's override for the date, or nil.
	DatedOverride(ctx context.Context, supervisorID string, date Date) (*DatedOverride, error)

	// SupervisorShifts returns the supervisor's full shift roster.
	SupervisorShifts(ctx context.Context, supervisorID string) ([]SupervisorShift, error)

	// OvertimeGrant returns the at-most-one grant for (student, date), or nil.
	OvertimeGrant(ctx context.Context, studentID string, date Date) (*OvertimeGrant, error)
}

// =============================================================================
// CACHE - Last-good schedule for degraded sources
// =============================================================================

// Cache remembers the last successfully resolved schedule per (student,
// date) so a configuration-store outage degrades to stale data instead of
// a hard failure. Implementations are best-effort and never return errors.
type Cache interface {
	Get(ctx context.Context, studentID string, date Date) (Effective, bool)
	Put(ctx context.Context, studentID string, date Date, sched Effective)
}
