package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ojt-engine/api"
	"github.com/warp/ojt-engine/metrics"
	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
	"github.com/warp/ojt-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var may1 = schedule.Date{Year: 2024, Month: time.May, Day: 1}

// newTestServer runs the full router over the in-memory store with the
// clock fixed at May 1 08:00 UTC. Roster: AM 08:00-12:00, PM 13:00-17:00.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.PutStudent(ctx, schedule.Student{
		ID: "stu-1", Name: "Ana", CourseID: "bsit", SupervisorID: "sup-1", TargetHours: 8,
	}))
	require.NoError(t, store.PutSupervisorShift(ctx, schedule.SupervisorShift{
		ID: "sh-am", SupervisorID: "sup-1", Name: "AM Shift", Start: "08:00", End: "12:00",
	}))
	require.NoError(t, store.PutSupervisorShift(ctx, schedule.SupervisorShift{
		ID: "sh-pm", SupervisorID: "sup-1", Name: "PM Shift", Start: "13:00", End: "17:00",
	}))

	now := may1.At(schedule.MinuteOfDay(8, 0), time.UTC)
	h := api.NewHandler(store, memory.NewScheduleCache(), metrics.New(),
		schedule.FixedClock{T: now}, time.UTC)

	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

// =============================================================================
// SCHEDULE ENDPOINT TESTS
// =============================================================================

func TestGetSchedule_ResolvedForToday(t *testing.T) {
	// GIVEN: A student with a roster schedule
	// WHEN: GET /api/students/{id}/schedule with no date
	// THEN: Today's resolved schedule comes back

	srv := newTestServer(t)

	resp, body := getJSON(t, srv.URL+"/api/students/stu-1/schedule")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "2024-05-01", body["date"])
	assert.Equal(t, "08:00", body["am_in"])
	assert.Equal(t, "17:00", body["pm_out"])
	assert.Equal(t, false, body["overtime_authorized"])
}

func TestGetSchedule_UnknownStudent404(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := getJSON(t, srv.URL+"/api/students/nobody/schedule")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetSchedule_BadDate400(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := getJSON(t, srv.URL+"/api/students/stu-1/schedule?date=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// PUNCH SUBMISSION FLOW TESTS
// =============================================================================

func TestTimeIn_FullFlow(t *testing.T) {
	// GIVEN: A scheduled student at 08:00
	// WHEN: POST time-in with a photo
	// THEN: 200 with allow=true and the recorded punch; a repeat in the
	//       same window returns 200 with allow=false

	srv := newTestServer(t)
	url := srv.URL + "/api/students/stu-1/time-in"

	resp, body := postJSON(t, url, map[string]any{"photo_ref": "photo-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["allow"])
	assert.Equal(t, "ok", body["reason"])
	require.NotNil(t, body["punch"])
	recorded := body["punch"].(map[string]any)
	assert.Equal(t, "in", recorded["kind"])
	assert.Equal(t, "pending", recorded["status"])

	resp, body = postJSON(t, url, map[string]any{"photo_ref": "photo-2"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "denied decisions are not errors")
	assert.Equal(t, false, body["allow"])
	assert.Equal(t, "duplicate_or_out_of_window", body["reason"])
}

func TestTimeIn_MissingPhoto400(t *testing.T) {
	// GIVEN: A time-in request without photo_ref
	// WHEN: Posting it
	// THEN: Validation rejects it before the gate runs

	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/students/stu-1/time-in", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTimeOut_WarnsThenRecords(t *testing.T) {
	// GIVEN: An open in at 08:00 and the clock still inside the shift
	// WHEN: Posting time-out without confirm, then with confirm
	// THEN: The first answer warns; the confirmed retry records the out

	srv := newTestServer(t)
	inURL := srv.URL + "/api/students/stu-1/time-in"
	outURL := srv.URL + "/api/students/stu-1/time-out"

	_, body := postJSON(t, inURL, map[string]any{"photo_ref": "photo-1"})
	require.Equal(t, true, body["allow"])

	_, body = postJSON(t, outURL, map[string]any{"photo_ref": "photo-2"})
	assert.Equal(t, false, body["allow"])
	assert.Equal(t, "early_out_warning", body["reason"])
	assert.Equal(t, true, body["requires_confirm"])

	_, body = postJSON(t, outURL, map[string]any{"photo_ref": "photo-2", "confirm": true})
	assert.Equal(t, true, body["allow"])
	require.NotNil(t, body["punch"])
	assert.Equal(t, "out", body["punch"].(map[string]any)["kind"])
}

// =============================================================================
// HOURS AND DAY ENDPOINT TESTS
// =============================================================================

func TestGetHours_ReportShape(t *testing.T) {
	// GIVEN: A recorded in/out pair
	// WHEN: GET /api/students/{id}/hours
	// THEN: The report carries totals, rendered hours, and the day list

	srv := newTestServer(t)
	inURL := srv.URL + "/api/students/stu-1/time-in"
	outURL := srv.URL + "/api/students/stu-1/time-out"

	_, body := postJSON(t, inURL, map[string]any{"photo_ref": "photo-1"})
	require.Equal(t, true, body["allow"])
	_, body = postJSON(t, outURL, map[string]any{"photo_ref": "photo-2", "confirm": true})
	require.Equal(t, true, body["allow"])

	resp, report := getJSON(t, srv.URL+"/api/students/stu-1/hours")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "stu-1", report["student_id"])
	assert.Equal(t, "8", report["target_hours"])
	days, ok := report["days"].([]any)
	require.True(t, ok)
	require.Len(t, days, 1)
	day := days[0].(map[string]any)
	assert.Equal(t, "2024-05-01", day["date"])
	assert.Equal(t, true, day["scheduled"])
}

func TestGetDay_EmptyDateStillAnswers(t *testing.T) {
	srv := newTestServer(t)

	resp, body := getJSON(t, srv.URL+"/api/students/stu-1/days/2024-04-30")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2024-04-30", body["date"])
	assert.Equal(t, float64(0), body["total_ms"])
}

// =============================================================================
// PUNCH MUTATION TESTS
// =============================================================================

func TestSetPunchStatus_ApproveAndNotFound(t *testing.T) {
	// GIVEN: A recorded in punch
	// WHEN: Approving it via the API, and then a bogus id
	// THEN: The approval lands; the bogus id answers 404

	srv := newTestServer(t)

	_, body := postJSON(t, srv.URL+"/api/students/stu-1/time-in", map[string]any{"photo_ref": "photo-1"})
	require.Equal(t, true, body["allow"])
	punchID := body["punch"].(map[string]any)["id"].(string)

	resp, _ := postJSON(t, fmt.Sprintf("%s/api/punches/%s/status", srv.URL, punchID),
		map[string]any{"status": string(punch.StatusApproved), "validated_by": "sup-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/punches/missing/status",
		map[string]any{"status": "approved", "validated_by": "sup-1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetPunchStatus_InvalidStatus400(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/punches/p-1/status",
		map[string]any{"status": "blessed"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFreezePunch_NotFound404(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/punches/missing/freeze",
		map[string]any{"rendered_ms": 1000, "validated_ms": 1000})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CONFIG AUTHORING TESTS
// =============================================================================

func TestAdmin_AuthoringRoundTrip(t *testing.T) {
	// GIVEN: A fresh student authored over the API with an override
	// WHEN: Reading the schedule back
	// THEN: The override's AM applies

	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/admin/students", map[string]any{
		"id": "stu-9", "name": "Ben", "course_id": "bsit",
		"supervisor_id": "sup-9", "target_hours": 300,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/admin/overrides/student", map[string]any{
		"student_id": "stu-9", "am_in": "09:00", "am_out": "11:00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := getJSON(t, srv.URL+"/api/students/stu-9/schedule")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "09:00", body["am_in"])
	assert.Equal(t, "11:00", body["am_out"])
}

func TestAdmin_OvertimeGrantValidation(t *testing.T) {
	// GIVEN: A grant whose end does not follow its start
	// WHEN: Posting it
	// THEN: Validation rejects it

	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/admin/overtime-grants", map[string]any{
		"student_id": "stu-1", "date": "2024-05-01",
		"start_ts": 2000, "end_ts": 1000,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_GrantShowsInSchedule(t *testing.T) {
	// GIVEN: An overtime grant authored for today
	// WHEN: Reading the schedule
	// THEN: The OT window reflects the grant and the flag is set

	srv := newTestServer(t)

	start := may1.At(schedule.MinuteOfDay(17, 0), time.UTC).UnixMilli()
	end := may1.At(schedule.MinuteOfDay(19, 0), time.UTC).UnixMilli()
	resp, _ := postJSON(t, srv.URL+"/api/admin/overtime-grants", map[string]any{
		"student_id": "stu-1", "date": "2024-05-01",
		"start_ts": start, "end_ts": end, "granted_by": "sup-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := getJSON(t, srv.URL+"/api/students/stu-1/schedule")
	assert.Equal(t, "17:00", body["ot_in"])
	assert.Equal(t, "19:00", body["ot_out"])
	assert.Equal(t, true, body["overtime_authorized"])
}

// =============================================================================
// HEALTH TESTS
// =============================================================================

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, body := getJSON(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
