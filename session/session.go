/*
Package session pairs a day's punches into AM/PM/OT sessions and computes
their counted durations.

PURPOSE:
  Raw punches arrive as an ordered in/out stream with gaps, duplicates,
  and forgotten time-outs. This package turns one day's stream into at
  most one AM, one PM, and one OT session, synthesizing the missing out
  for past days, and then applies the golden rule: counted duration is
  the intersection of the actual punch times with the official window,
  never more.

GOLDEN RULE:
  duration = max(0, clamp(out) - clamp(in)) within [windowStart, windowEnd].
  Absent window bounds yield zero. Days with punches but no resolvable
  schedule fall back to raw out-in "tracked" duration, which is never
  validated.

FREEZE PRECEDENCE:
  An out punch carrying frozen rendered/validated values (or an explicit
  official-window pair) short-circuits recomputation entirely, so later
  schedule edits cannot rewrite history.

SEE ALSO:
  - pair.go: the pairing loop and forgotten-punch recovery
  - duration.go: window clamping and freeze handling
*/
package session

import (
	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
)

// Session is a paired (in, out) punch set assigned to a shift.
type Session struct {
	Shift       schedule.Shift // empty when the pair fits no window
	In          punch.Event
	Out         punch.Event
	Synthesized bool // out was generated, not captured

	DurationMs  int64 // golden-rule counted duration
	ValidatedMs int64 // counted only when both sides are approved
	Late        bool  // in strictly after the official start (display only)
}

// Day is the paired breakdown of one calendar date.
type Day struct {
	Date schedule.Date

	AM *Session
	PM *Session
	OT *Session

	// Unscheduled holds pairs that fit no window. They carry no counted
	// duration but feed the tracked fallback when no schedule resolved.
	Unscheduled []Session

	// Open is today's unmatched in punch, if any. Past days never leave
	// an open in; recovery synthesizes the out instead.
	Open *punch.Event

	// TrackedMs is the raw out-in fallback for schedule-less days.
	TrackedMs int64
}

// TotalMs sums the counted durations of the day's shift sessions.
func (d Day) TotalMs() int64 {
	var total int64
	for _, s := range []*Session{d.AM, d.PM, d.OT} {
		if s != nil {
			total += s.DurationMs
		}
	}
	return total
}

// ValidatedTotalMs sums the validated durations of the day's shift sessions.
func (d Day) ValidatedTotalMs() int64 {
	var total int64
	for _, s := range []*Session{d.AM, d.PM, d.OT} {
		if s != nil {
			total += s.ValidatedMs
		}
	}
	return total
}
