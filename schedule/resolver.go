package schedule

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// RESOLVER - Precedence chain over configuration sources
// =============================================================================

// Resolver merges the configuration sources into one effective daily
// schedule. It is stateless apart from the optional last-good cache and is
// safe for concurrent use.
type Resolver struct {
	Source Source
	Cache  Cache          // optional; nil disables degraded-source fallback
	Loc    *time.Location // zone for grant timestamp conversion

	// OnFallback is invoked whenever a resolution is served from the
	// last-good cache instead of the live sources. Optional.
	OnFallback func()
}

// NewResolver creates a resolver in the local zone.
func NewResolver(src Source) *Resolver {
	return &Resolver{Source: src, Loc: time.Local}
}

func (r *Resolver) loc() *time.Location {
	if r.Loc != nil {
		return r.Loc
	}
	return time.Local
}

// Resolve computes the effective schedule for (student, date).
//
// Returns (nil, nil) when no field resolves at all: the student has no
// official schedule and downstream must refuse normal time-in.
//
// A failing configuration source does not fail the resolution: the last
// successfully resolved schedule is served from cache instead, and only
// if nothing is cached does the failing source degrade to empty.
func (r *Resolver) Resolve(ctx context.Context, studentID string, date Date) (*Effective, error) {
	student, err := r.Source.Student(ctx, studentID)
	if err != nil {
		return r.degraded(ctx, studentID, date, err)
	}
	if student == nil {
		return nil, nil
	}

	degradedErr := error(nil)
	partials := make([]Partial, 0, 4)

	// 1. Coordinator event: course-specific match wins over general.
	events, err := r.Source.CoordinatorEvents(ctx, date)
	if err != nil {
		degradedErr = err
	} else if ev := pickEvent(events, student.CourseID); ev != nil {
		partials = append(partials, ev.Partial())
	}

	// 2. Per-student fixed baseline.
	override, err := r.Source.StudentOverride(ctx, studentID)
	if err != nil {
		degradedErr = err
	} else if override != nil {
		partials = append(partials, override.Partial())
	}

	// 3. Dated supervisor override: AM/PM fields only; whatever it does
	//    not specify falls through to the roster default.
	dated, err := r.Source.DatedOverride(ctx, student.SupervisorID, date)
	if err != nil {
		degradedErr = err
	} else if dated != nil {
		partials = append(partials, dated.Partial())
	}

	// 4. Supervisor roster default.
	shifts, err := r.Source.SupervisorShifts(ctx, student.SupervisorID)
	if err != nil {
		degradedErr = err
	} else {
		partials = append(partials, ClassifyShifts(shifts))
	}

	if degradedErr != nil {
		if sched, ok := r.cached(ctx, studentID, date); ok {
			log.Printf("schedule: source error for %s on %s, serving cached schedule: %v", studentID, date, degradedErr)
			return &sched, nil
		}
		log.Printf("schedule: source error for %s on %s, no cache, resolving from remaining sources: %v", studentID, date, degradedErr)
	}

	merged := Merge(partials...)
	if merged.Empty() {
		return nil, nil
	}
	if degradedErr == nil && r.Cache != nil {
		r.Cache.Put(ctx, studentID, date, merged)
	}
	return &merged, nil
}

// ResolveWithOvertime resolves the base schedule, then substitutes the OT
// sub-window with the dynamic overtime grant for the date, if one exists.
// The grant overrides every precedence level above it. A grant with no base
// schedule still yields an OT-only schedule so authorized overtime can be
// logged on an otherwise unscheduled day.
func (r *Resolver) ResolveWithOvertime(ctx context.Context, studentID string, date Date) (*Effective, *OvertimeGrant, error) {
	base, err := r.Resolve(ctx, studentID, date)
	if err != nil {
		return nil, nil, err
	}

	grant, err := r.Source.OvertimeGrant(ctx, studentID, date)
	if err != nil {
		// Best-effort: a grant-store outage never voids the base schedule.
		log.Printf("schedule: overtime grant lookup failed for %s on %s: %v", studentID, date, err)
		return base, nil, nil
	}
	if grant == nil {
		return base, nil, nil
	}

	merged := Effective{}
	if base != nil {
		merged = *base
	}
	merged.OTIn = TimeOfDayFrom(time.UnixMilli(grant.StartTs).In(r.loc()))
	merged.OTOut = TimeOfDayFrom(time.UnixMilli(grant.EndTs).In(r.loc()))
	return &merged, grant, nil
}

func (r *Resolver) degraded(ctx context.Context, studentID string, date Date, cause error) (*Effective, error) {
	if sched, ok := r.cached(ctx, studentID, date); ok {
		log.Printf("schedule: student lookup failed for %s, serving cached schedule: %v", studentID, cause)
		return &sched, nil
	}
	return nil, cause
}

func (r *Resolver) cached(ctx context.Context, studentID string, date Date) (Effective, bool) {
	if r.Cache == nil {
		return Effective{}, false
	}
	sched, ok := r.Cache.Get(ctx, studentID, date)
	if ok && r.OnFallback != nil {
		r.OnFallback()
	}
	return sched, ok
}

// pickEvent selects the applicable coordinator event: the first whose
// course scope includes the student's course, else the first general one.
func pickEvent(events []CoordinatorEvent, courseID string) *CoordinatorEvent {
	var general *CoordinatorEvent
	for i := range events {
		ev := &events[i]
		if ev.AppliesTo(courseID) {
			return ev
		}
		if general == nil && ev.General() {
			general = ev
		}
	}
	return general
}

// =============================================================================
// SHIFT ROSTER CLASSIFICATION
// =============================================================================

// ClassifyShifts derives the supervisor-default partial from a shift
// roster. Rows are matched by name keyword: "am"/"morning" marks AM,
// "pm"/"afternoon" marks PM, and a row named exactly "overtime" or
// "overtime shift" marks OT. A row that matches both AM and PM keywords is
// never treated as OT. When the keywords cannot identify both an AM and a
// PM row, the two earliest-starting rows become AM and PM instead.
func ClassifyShifts(rows []SupervisorShift) Partial {
	type classified struct {
		row      SupervisorShift
		start    TimeOfDay
		am, pm   bool
		overtime bool
	}

	all := make([]classified, 0, len(rows))
	for _, row := range rows {
		c := classified{row: row, start: ParseTimeOfDay(row.Start)}
		name := strings.ToLower(strings.TrimSpace(row.Name))
		c.am = hasToken(name, "am") || strings.Contains(name, "morning")
		c.pm = hasToken(name, "pm") || strings.Contains(name, "afternoon")
		c.overtime = name == "overtime" || name == "overtime shift"
		all = append(all, c)
	}

	// Earliest-starting match wins when a keyword tags several rows.
	earliestMatch := func(match func(classified) bool) *classified {
		var best *classified
		for i := range all {
			if !match(all[i]) {
				continue
			}
			if best == nil || (all[i].start.Valid && (!best.start.Valid || all[i].start.Before(best.start))) {
				best = &all[i]
			}
		}
		return best
	}

	var p Partial
	amRow := earliestMatch(func(c classified) bool { return c.am })
	pmRow := earliestMatch(func(c classified) bool { return c.pm })

	if amRow == nil || pmRow == nil {
		// Keyword classification failed: take the two earliest starters.
		sorted := make([]classified, 0, len(all))
		for _, c := range all {
			if c.start.Valid {
				sorted = append(sorted, c)
			}
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].start.Before(sorted[j].start)
		})
		if len(sorted) > 0 {
			amRow = &sorted[0]
		}
		if len(sorted) > 1 {
			pmRow = &sorted[1]
		}
	}

	if amRow != nil {
		p.AMIn = ParseTimeOfDay(amRow.row.Start)
		p.AMOut = ParseTimeOfDay(amRow.row.End)
	}
	if pmRow != nil {
		p.PMIn = ParseTimeOfDay(pmRow.row.Start)
		p.PMOut = ParseTimeOfDay(pmRow.row.End)
	}
	for i := range all {
		c := all[i]
		if c.overtime && !(c.am && c.pm) {
			p.OTIn = ParseTimeOfDay(c.row.Start)
			p.OTOut = ParseTimeOfDay(c.row.End)
			break
		}
	}
	return p
}

// hasToken reports whether word appears as a standalone token in name,
// so "am shift" matches but "team" does not.
func hasToken(name, word string) bool {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, f := range fields {
		if f == word {
			return true
		}
	}
	return false
}
