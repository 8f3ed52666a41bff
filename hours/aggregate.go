/*
Package hours rolls per-day sessions into totals and progress.

PURPOSE:
  Display and export collaborators need one number: how far along the
  internship hour goal a student is. This package partitions a punch
  history into local calendar days, resolves each day's schedule (dated
  overrides and dynamic overtime included), runs the pairer and duration
  calculator, and sums the results.

IDEMPOTENCE:
  Aggregation is a pure recomputation from the current punch snapshot.
  It is invoked on every page view and poll tick; identical inputs yield
  identical totals, and frozen ledger values are preferred over
  recomputation on every pass.

PRECISION:
  Millisecond totals are exact integers. Only the rendered hour values
  and the progress percentage go through decimal arithmetic, so display
  rounding never feeds back into the stored numbers.
*/
package hours

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
	"github.com/warp/ojt-engine/session"
)

var msPerHour = decimal.NewFromInt(3_600_000)

// =============================================================================
// REPORTS
// =============================================================================

// DayReport is the breakdown of one calendar date.
type DayReport struct {
	Date      schedule.Date
	Scheduled bool // false when no schedule resolved for the day
	Day       session.Day

	TotalMs     int64
	ValidatedMs int64
	TrackedMs   int64
}

// Report is a student's aggregate standing.
type Report struct {
	StudentID string

	TotalMs     int64 // counted (clamped) plus tracked fallback
	ValidatedMs int64 // approved-on-both-sides only
	TrackedMs   int64 // schedule-less raw durations, never validated

	RenderedHours   decimal.Decimal
	ValidatedHours  decimal.Decimal
	TargetHours     decimal.Decimal
	ProgressPercent decimal.Decimal // min(100, total/target*100)

	Days []DayReport
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator computes hour totals from a punch snapshot.
type Aggregator struct {
	Resolver *schedule.Resolver
	Clock    schedule.Clock
	Loc      *time.Location
}

func New(resolver *schedule.Resolver, clock schedule.Clock, loc *time.Location) *Aggregator {
	if clock == nil {
		clock = schedule.SystemClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{Resolver: resolver, Clock: clock, Loc: loc}
}

// Aggregate partitions the punch history by local calendar date, resolves
// and computes each day, and sums totals. Days whose schedule cannot be
// resolved report tracked hours only.
func (a *Aggregator) Aggregate(ctx context.Context, studentID string, punches []punch.Event) (Report, error) {
	report := Report{StudentID: studentID}
	today := schedule.DateOf(a.Clock.Now(), a.Loc)
	pairer := session.NewPairer(a.Loc)

	byDate := make(map[schedule.Date][]punch.Event)
	for _, e := range punches {
		d := schedule.DateOf(e.Time(), a.Loc)
		byDate[d] = append(byDate[d], e)
	}
	dates := make([]schedule.Date, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, date := range dates {
		sched, _, err := a.Resolver.ResolveWithOvertime(ctx, studentID, date)
		if err != nil {
			// An unresolvable day degrades to tracked-only, never fails
			// the whole aggregation.
			sched = nil
		}
		day := pairer.Pair(byDate[date], sched, date, today)

		dr := DayReport{
			Date:        date,
			Scheduled:   sched != nil,
			Day:         day,
			TotalMs:     day.TotalMs(),
			ValidatedMs: day.ValidatedTotalMs(),
			TrackedMs:   day.TrackedMs,
		}
		report.Days = append(report.Days, dr)
		report.TotalMs += dr.TotalMs + dr.TrackedMs
		report.ValidatedMs += dr.ValidatedMs
		report.TrackedMs += dr.TrackedMs
	}

	report.TargetHours = a.targetHours(ctx, studentID)
	report.RenderedHours = hoursOf(report.TotalMs)
	report.ValidatedHours = hoursOf(report.ValidatedMs)
	report.ProgressPercent = progress(report.TotalMs, report.TargetHours)
	return report, nil
}

// targetHours degrades to zero when the registry is unreachable; the
// report still renders, just without a progress percentage.
func (a *Aggregator) targetHours(ctx context.Context, studentID string) decimal.Decimal {
	student, err := a.Resolver.Source.Student(ctx, studentID)
	if err != nil {
		log.Printf("hours: student lookup failed for %s: %v", studentID, err)
		return decimal.Zero
	}
	if student == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(student.TargetHours)
}

func hoursOf(ms int64) decimal.Decimal {
	return decimal.NewFromInt(ms).Div(msPerHour).Round(2)
}

// progress is min(100, total/target*100), zero when no target is set.
func progress(totalMs int64, targetHours decimal.Decimal) decimal.Decimal {
	if !targetHours.IsPositive() {
		return decimal.Zero
	}
	targetMs := targetHours.Mul(msPerHour)
	pct := decimal.NewFromInt(totalMs).Div(targetMs).Mul(decimal.NewFromInt(100)).Round(2)
	hundred := decimal.NewFromInt(100)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
