package hours_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ojt-engine/hours"
	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
	"github.com/warp/ojt-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	may1 = schedule.Date{Year: 2024, Month: time.May, Day: 1}
	may2 = schedule.Date{Year: 2024, Month: time.May, Day: 2}
	may3 = schedule.Date{Year: 2024, Month: time.May, Day: 3}
)

// newTestAggregator fixes "now" on May 3 so May 1-2 are closed history.
// Roster: AM 08:00-12:00, PM 13:00-17:00.
func newTestAggregator(t *testing.T, targetHours float64) (*hours.Aggregator, *memory.Store) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.PutStudent(ctx, schedule.Student{
		ID: "stu-1", SupervisorID: "sup-1", TargetHours: targetHours,
	}))
	require.NoError(t, store.PutSupervisorShift(ctx, schedule.SupervisorShift{
		ID: "sh-am", SupervisorID: "sup-1", Name: "AM Shift", Start: "08:00", End: "12:00",
	}))
	require.NoError(t, store.PutSupervisorShift(ctx, schedule.SupervisorShift{
		ID: "sh-pm", SupervisorID: "sup-1", Name: "PM Shift", Start: "13:00", End: "17:00",
	}))

	resolver := &schedule.Resolver{Source: store, Loc: time.UTC}
	now := may3.At(schedule.MinuteOfDay(8, 0), time.UTC)
	return hours.New(resolver, schedule.FixedClock{T: now}, time.UTC), store
}

func punchAt(studentID string, kind punch.Kind, d schedule.Date, hour, minute int, status punch.Status) punch.Event {
	return punch.Event{
		ID: punch.NewID(), StudentID: studentID, Kind: kind,
		Timestamp:  d.At(schedule.MinuteOfDay(hour, minute), time.UTC).UnixMilli(),
		Status:     status,
		Provenance: punch.ProvenanceCaptured,
	}
}

// =============================================================================
// AGGREGATION TESTS
// =============================================================================

func TestAggregate_MultiDayTotals(t *testing.T) {
	// GIVEN: Two full approved days and one with a pending afternoon
	// WHEN: Aggregating
	// THEN: Total counts every clamped session; validated counts only the
	//       fully approved ones

	a, _ := newTestAggregator(t, 486)
	punches := []punch.Event{
		// May 1: full approved day, 8 hours.
		punchAt("stu-1", punch.KindIn, may1, 8, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may1, 12, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindIn, may1, 13, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may1, 17, 0, punch.StatusApproved),
		// May 2: approved morning, pending afternoon.
		punchAt("stu-1", punch.KindIn, may2, 8, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may2, 12, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindIn, may2, 13, 0, punch.StatusPending),
		punchAt("stu-1", punch.KindOut, may2, 17, 0, punch.StatusPending),
	}

	report, err := a.Aggregate(context.Background(), "stu-1", punches)
	require.NoError(t, err)

	require.Len(t, report.Days, 2)
	assert.Equal(t, (16 * time.Hour).Milliseconds(), report.TotalMs)
	assert.Equal(t, (12 * time.Hour).Milliseconds(), report.ValidatedMs)
	assert.Equal(t, int64(0), report.TrackedMs)

	assert.True(t, report.RenderedHours.Equal(decimal.NewFromInt(16)),
		"rendered %s", report.RenderedHours)
	assert.True(t, report.ValidatedHours.Equal(decimal.NewFromInt(12)),
		"validated %s", report.ValidatedHours)
}

func TestAggregate_Idempotent(t *testing.T) {
	// GIVEN: A fixed punch snapshot
	// WHEN: Aggregating twice
	// THEN: The totals are identical; no state accumulates between runs

	a, _ := newTestAggregator(t, 486)
	punches := []punch.Event{
		punchAt("stu-1", punch.KindIn, may1, 8, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may1, 12, 0, punch.StatusApproved),
	}
	ctx := context.Background()

	first, err := a.Aggregate(ctx, "stu-1", punches)
	require.NoError(t, err)
	second, err := a.Aggregate(ctx, "stu-1", punches)
	require.NoError(t, err)

	assert.Equal(t, first.TotalMs, second.TotalMs)
	assert.Equal(t, first.ValidatedMs, second.ValidatedMs)
	assert.Len(t, second.Days, len(first.Days))
}

func TestAggregate_DaysAreChronological(t *testing.T) {
	// GIVEN: Punches supplied out of date order
	// WHEN: Aggregating
	// THEN: Day reports come back sorted by date

	a, _ := newTestAggregator(t, 486)
	punches := []punch.Event{
		punchAt("stu-1", punch.KindIn, may2, 8, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may2, 12, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindIn, may1, 8, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may1, 12, 0, punch.StatusApproved),
	}

	report, err := a.Aggregate(context.Background(), "stu-1", punches)
	require.NoError(t, err)

	require.Len(t, report.Days, 2)
	assert.Equal(t, may1, report.Days[0].Date)
	assert.Equal(t, may2, report.Days[1].Date)
}

func TestAggregate_ForgottenOutRecoveredInTotals(t *testing.T) {
	// GIVEN: A past day with an unmatched approved in at 08:10
	// WHEN: Aggregating
	// THEN: The synthesized out at the shift end contributes its clamped
	//       duration

	a, _ := newTestAggregator(t, 486)
	punches := []punch.Event{
		punchAt("stu-1", punch.KindIn, may1, 8, 10, punch.StatusApproved),
	}

	report, err := a.Aggregate(context.Background(), "stu-1", punches)
	require.NoError(t, err)

	assert.Equal(t, (3*time.Hour + 50*time.Minute).Milliseconds(), report.TotalMs)
}

// =============================================================================
// SCHEDULE-LESS AND TRACKED TESTS
// =============================================================================

func TestAggregate_UnscheduledStudentTracksOnly(t *testing.T) {
	// GIVEN: A student with no configured schedule sources at all
	// WHEN: Aggregating a complete pair
	// THEN: The day reports tracked time; nothing is counted or validated

	a, store := newTestAggregator(t, 486)
	require.NoError(t, store.PutStudent(context.Background(), schedule.Student{
		ID: "stu-free", SupervisorID: "sup-none", TargetHours: 100,
	}))
	punches := []punch.Event{
		punchAt("stu-free", punch.KindIn, may1, 9, 0, punch.StatusPending),
		punchAt("stu-free", punch.KindOut, may1, 11, 30, punch.StatusPending),
	}

	report, err := a.Aggregate(context.Background(), "stu-free", punches)
	require.NoError(t, err)

	require.Len(t, report.Days, 1)
	assert.False(t, report.Days[0].Scheduled)
	assert.Equal(t, (2*time.Hour + 30*time.Minute).Milliseconds(), report.TrackedMs)
	assert.Equal(t, report.TrackedMs, report.TotalMs, "tracked feeds the total")
	assert.Equal(t, int64(0), report.ValidatedMs, "tracked time is never validated")
}

// =============================================================================
// PROGRESS TESTS
// =============================================================================

func TestAggregate_Progress(t *testing.T) {
	// GIVEN: A 16-hour target and 8 counted hours
	// WHEN: Aggregating
	// THEN: Progress reads 50%

	a, _ := newTestAggregator(t, 16)
	punches := []punch.Event{
		punchAt("stu-1", punch.KindIn, may1, 8, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may1, 12, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindIn, may1, 13, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may1, 17, 0, punch.StatusApproved),
	}

	report, err := a.Aggregate(context.Background(), "stu-1", punches)
	require.NoError(t, err)

	assert.True(t, report.TargetHours.Equal(decimal.NewFromInt(16)))
	assert.True(t, report.ProgressPercent.Equal(decimal.NewFromInt(50)),
		"progress %s", report.ProgressPercent)
}

func TestAggregate_ProgressClampsAtHundred(t *testing.T) {
	// GIVEN: A 4-hour target already exceeded by 8 counted hours
	// WHEN: Aggregating
	// THEN: Progress caps at 100

	a, _ := newTestAggregator(t, 4)
	punches := []punch.Event{
		punchAt("stu-1", punch.KindIn, may1, 8, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may1, 12, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindIn, may1, 13, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may1, 17, 0, punch.StatusApproved),
	}

	report, err := a.Aggregate(context.Background(), "stu-1", punches)
	require.NoError(t, err)

	assert.True(t, report.ProgressPercent.Equal(decimal.NewFromInt(100)),
		"progress %s", report.ProgressPercent)
}

func TestAggregate_NoTargetMeansZeroProgress(t *testing.T) {
	// GIVEN: A student with no hour goal set
	// WHEN: Aggregating
	// THEN: Progress stays zero instead of dividing by zero

	a, _ := newTestAggregator(t, 0)

	report, err := a.Aggregate(context.Background(), "stu-1", []punch.Event{
		punchAt("stu-1", punch.KindIn, may1, 8, 0, punch.StatusApproved),
		punchAt("stu-1", punch.KindOut, may1, 12, 0, punch.StatusApproved),
	})
	require.NoError(t, err)

	assert.True(t, report.ProgressPercent.IsZero())
}
