package session

import (
	"time"

	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
)

// =============================================================================
// PAIRER - Groups one day's punches into shift sessions
// =============================================================================

// Pairer turns a day's punch stream into sessions. Zero value is not
// usable; construct with NewPairer.
type Pairer struct {
	Loc *time.Location
}

func NewPairer(loc *time.Location) *Pairer {
	if loc == nil {
		loc = time.Local
	}
	return &Pairer{Loc: loc}
}

// Pair groups dayPunches into AM/PM/OT sessions against the effective
// schedule. sched may be nil (no official schedule): every pair then lands
// in Unscheduled and contributes tracked duration only. today controls
// forgotten-punch recovery: a day strictly in the past synthesizes the
// missing out at the shift's scheduled end.
func (p *Pairer) Pair(dayPunches []punch.Event, sched *schedule.Effective, date, today schedule.Date) Day {
	day := Day{Date: date}
	past := date.Before(today)

	// Rejected punches are invisible everywhere.
	events := make([]punch.Event, 0, len(dayPunches))
	for _, e := range dayPunches {
		if !e.Rejected() {
			events = append(events, e)
		}
	}
	punch.SortChronological(events)

	var regular, overtime []punch.Event
	for _, e := range events {
		if e.Overtime {
			overtime = append(overtime, e)
		} else {
			regular = append(regular, e)
		}
	}

	pairs, open := p.pairStream(regular)
	if open != nil {
		if past && sched != nil {
			if s, ok := p.synthesize(*open, sched, date); ok {
				pairs = append(pairs, s)
				open = nil
			}
		}
		if open != nil {
			day.Open = open
		}
	}

	for _, pr := range pairs {
		if pr.Shift == "" {
			pr.Shift = p.classify(pr.In, sched, date)
		}
		p.place(&day, pr)
	}

	// OT subset: first in pairs with the first subsequent out, so at most
	// one OT session exists per day.
	if ot := p.pairOvertime(overtime, sched, date, past); ot != nil {
		ot.Shift = schedule.ShiftOT
		day.OT = ot
	}

	p.compute(&day, sched, date)
	return day
}

// pairStream runs the open-in reduction over a non-OT stream: an out
// closes the open in when it comes later; a second consecutive in discards
// the stale one.
func (p *Pairer) pairStream(events []punch.Event) ([]Session, *punch.Event) {
	var pairs []Session
	var open *punch.Event
	for i := range events {
		e := events[i]
		switch e.Kind {
		case punch.KindIn:
			open = &events[i]
		case punch.KindOut:
			if open != nil && e.Timestamp > open.Timestamp {
				pairs = append(pairs, Session{In: *open, Out: e})
				open = nil
			}
		}
	}
	return pairs, open
}

func (p *Pairer) pairOvertime(events []punch.Event, sched *schedule.Effective, date schedule.Date, past bool) *Session {
	var in *punch.Event
	for i := range events {
		e := events[i]
		if e.Kind == punch.KindIn && in == nil {
			in = &events[i]
			continue
		}
		if e.Kind == punch.KindOut && in != nil && e.Timestamp > in.Timestamp {
			return &Session{In: *in, Out: e}
		}
	}
	if in != nil && past && sched != nil && sched.OTOut.Valid {
		end := date.At(sched.OTOut, p.Loc)
		return &Session{In: *in, Out: p.syntheticOut(*in, end), Synthesized: true}
	}
	return nil
}

// classify assigns a shift by testing the in punch against the widened
// AM/PM windows. Pairs that fit neither stay unlabeled.
func (p *Pairer) classify(in punch.Event, sched *schedule.Effective, date schedule.Date) schedule.Shift {
	if sched == nil {
		return ""
	}
	at := in.Time().In(p.Loc)
	if p.inWindow(at, sched.Window(schedule.ShiftAM), date) {
		return schedule.ShiftAM
	}
	if p.inWindow(at, sched.Window(schedule.ShiftPM), date) {
		return schedule.ShiftPM
	}
	return ""
}

// inWindow tests membership of the grace-widened window [start-30m, end].
func (p *Pairer) inWindow(at time.Time, w schedule.Window, date schedule.Date) bool {
	if !w.Resolved() {
		return false
	}
	start := date.At(w.Start, p.Loc).Add(-schedule.Grace)
	end := date.At(w.End, p.Loc)
	return !at.Before(start) && !at.After(end)
}

// synthesize recovers a forgotten time-out on a past day: the out lands at
// the classified shift's scheduled end, or one minute after the in when the
// end already precedes it.
func (p *Pairer) synthesize(in punch.Event, sched *schedule.Effective, date schedule.Date) (Session, bool) {
	shift := p.classify(in, sched, date)
	if shift == "" {
		// Out-of-window in: recover against whichever half is plausible.
		switch {
		case sched.PMIn.Valid && in.Time().In(p.Loc).Before(date.At(sched.PMIn, p.Loc)) && sched.AMOut.Valid:
			shift = schedule.ShiftAM
		case sched.PMOut.Valid:
			shift = schedule.ShiftPM
		default:
			return Session{}, false
		}
	}
	w := sched.Window(shift)
	if !w.End.Valid {
		return Session{}, false
	}
	end := date.At(w.End, p.Loc)
	return Session{Shift: shift, In: in, Out: p.syntheticOut(in, end), Synthesized: true}, true
}

func (p *Pairer) syntheticOut(in punch.Event, end time.Time) punch.Event {
	at := end
	if !at.After(in.Time()) {
		at = in.Time().Add(time.Minute)
	}
	return punch.Event{
		ID:         punch.NewID(),
		StudentID:  in.StudentID,
		Kind:       punch.KindOut,
		Timestamp:  at.UnixMilli(),
		Status:     in.Status,
		Overtime:   in.Overtime,
		Provenance: punch.ProvenanceSynthesized,
	}
}

// place slots a classified pair into the day, keeping at most one session
// per shift. Extra or unlabeled pairs stay in Unscheduled.
func (p *Pairer) place(day *Day, s Session) {
	switch s.Shift {
	case schedule.ShiftAM:
		if day.AM == nil {
			day.AM = &s
			return
		}
	case schedule.ShiftPM:
		if day.PM == nil {
			day.PM = &s
			return
		}
	}
	s.Shift = ""
	day.Unscheduled = append(day.Unscheduled, s)
}
