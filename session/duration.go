package session

import (
	"time"

	"github.com/warp/ojt-engine/schedule"
)

// =============================================================================
// DURATION CALCULATOR - The golden rule
// =============================================================================

// DurationWithinWindow clamps a punch pair into an official window and
// returns the overlap. Either bound absent yields zero. This function is
// total: it never fails, and never returns a negative duration.
func DurationWithinWindow(inTs, outTs time.Time, w schedule.Window, date schedule.Date, loc *time.Location) time.Duration {
	if !w.Resolved() {
		return 0
	}
	return clampedOverlap(inTs, outTs, date.At(w.Start, loc), date.At(w.End, loc))
}

func clampedOverlap(inTs, outTs, start, end time.Time) time.Duration {
	if end.Before(start) {
		return 0
	}
	if inTs.Before(start) {
		inTs = start
	}
	if outTs.After(end) {
		outTs = end
	}
	d := outTs.Sub(inTs)
	if d < 0 {
		return 0
	}
	return d
}

// compute fills in durations, validation, and lateness for every session
// of the day, honoring frozen ledger values on the out punch.
func (p *Pairer) compute(day *Day, sched *schedule.Effective, date schedule.Date) {
	for _, s := range []*Session{day.AM, day.PM, day.OT} {
		if s != nil {
			p.computeSession(s, sched, date)
		}
	}

	// Raw fallback: punches with no resolvable schedule still track time,
	// but tracked hours are never validated.
	if sched == nil {
		for _, s := range day.Unscheduled {
			raw := s.Out.Time().Sub(s.In.Time())
			if raw > 0 {
				day.TrackedMs += raw.Milliseconds()
			}
		}
	}
}

func (p *Pairer) computeSession(s *Session, sched *schedule.Effective, date schedule.Date) {
	approved := s.In.Approved() && s.Out.Approved()

	// Freeze precedence: a frozen out punch is the ledger of record.
	if s.Out.Frozen() {
		switch {
		case s.Out.FrozenRenderedMs != nil:
			s.DurationMs = *s.Out.FrozenRenderedMs
		case s.Out.OfficialStartTs != nil && s.Out.OfficialEndTs != nil:
			s.DurationMs = clampedOverlap(
				s.In.Time(), s.Out.Time(),
				time.UnixMilli(*s.Out.OfficialStartTs),
				time.UnixMilli(*s.Out.OfficialEndTs),
			).Milliseconds()
		}
		if s.Out.FrozenValidatedMs != nil {
			s.ValidatedMs = *s.Out.FrozenValidatedMs
		} else if approved {
			s.ValidatedMs = s.DurationMs
		}
		p.markLate(s, sched, date)
		return
	}

	if sched == nil {
		return
	}

	inTs, outTs := s.In.Time().In(p.Loc), s.Out.Time().In(p.Loc)
	if s.Shift == schedule.ShiftOT {
		s.DurationMs = DurationWithinWindow(inTs, outTs, sched.Window(schedule.ShiftOT), date, p.Loc).Milliseconds()
	} else {
		// A regular session that runs past its own window still earns the
		// counted overlap with the other half of the day.
		am := DurationWithinWindow(inTs, outTs, sched.Window(schedule.ShiftAM), date, p.Loc)
		pm := DurationWithinWindow(inTs, outTs, sched.Window(schedule.ShiftPM), date, p.Loc)
		s.DurationMs = (am + pm).Milliseconds()
	}

	if approved {
		s.ValidatedMs = s.DurationMs
	}
	p.markLate(s, sched, date)
}

// markLate flags a session whose in punch is strictly after the shift's
// official start. Display only; lateness never changes counted duration.
func (p *Pairer) markLate(s *Session, sched *schedule.Effective, date schedule.Date) {
	if sched == nil || s.Shift == "" {
		return
	}
	w := sched.Window(s.Shift)
	if w.Start.Valid {
		s.Late = s.In.Time().In(p.Loc).After(date.At(w.Start, p.Loc))
	}
}
