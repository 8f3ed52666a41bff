/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the display/export and capture-workflow
  collaborators. These types decouple the engine's domain model from the
  external API contract.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags; handlers run them
  through the shared validator before touching the engine.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/warp/ojt-engine/gate"
	"github.com/warp/ojt-engine/hours"
	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
	"github.com/warp/ojt-engine/session"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// =============================================================================
// SCHEDULE
// =============================================================================

// ScheduleDTO is the resolved effective schedule for one (student, date).
// Absent fields render as empty strings.
type ScheduleDTO struct {
	Date     string `json:"date"`
	AMIn     string `json:"am_in"`
	AMOut    string `json:"am_out"`
	PMIn     string `json:"pm_in"`
	PMOut    string `json:"pm_out"`
	OTIn     string `json:"ot_in"`
	OTOut    string `json:"ot_out"`
	Overtime bool   `json:"overtime_authorized"`
}

func scheduleDTO(date schedule.Date, e *schedule.Effective, grant *schedule.OvertimeGrant) *ScheduleDTO {
	if e == nil {
		return nil
	}
	return &ScheduleDTO{
		Date:     date.String(),
		AMIn:     e.AMIn.String(),
		AMOut:    e.AMOut.String(),
		PMIn:     e.PMIn.String(),
		PMOut:    e.PMOut.String(),
		OTIn:     e.OTIn.String(),
		OTOut:    e.OTOut.String(),
		Overtime: grant != nil,
	}
}

// =============================================================================
// SESSIONS AND HOURS
// =============================================================================

// PunchDTO represents one punch in API responses.
type PunchDTO struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Timestamp  int64  `json:"timestamp"`
	Status     string `json:"status"`
	Provenance string `json:"provenance"`
	Overtime   bool   `json:"overtime,omitempty"`
	SlotLabel  string `json:"slot_label,omitempty"`
}

func punchDTO(e punch.Event) PunchDTO {
	return PunchDTO{
		ID:         e.ID,
		Kind:       string(e.Kind),
		Timestamp:  e.Timestamp,
		Status:     string(e.Status),
		Provenance: string(e.Provenance),
		Overtime:   e.Overtime,
		SlotLabel:  e.SlotLabel,
	}
}

// SessionDTO is one paired shift session.
type SessionDTO struct {
	Shift       string   `json:"shift"`
	In          PunchDTO `json:"in"`
	Out         PunchDTO `json:"out"`
	Synthesized bool     `json:"synthesized,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
	ValidatedMs int64    `json:"validated_ms"`
	Late        bool     `json:"late,omitempty"`
}

func sessionDTO(s *session.Session) *SessionDTO {
	if s == nil {
		return nil
	}
	return &SessionDTO{
		Shift:       string(s.Shift),
		In:          punchDTO(s.In),
		Out:         punchDTO(s.Out),
		Synthesized: s.Synthesized,
		DurationMs:  s.DurationMs,
		ValidatedMs: s.ValidatedMs,
		Late:        s.Late,
	}
}

// DayDTO is the session breakdown for one calendar date.
type DayDTO struct {
	Date        string      `json:"date"`
	Scheduled   bool        `json:"scheduled"`
	AM          *SessionDTO `json:"am,omitempty"`
	PM          *SessionDTO `json:"pm,omitempty"`
	OT          *SessionDTO `json:"ot,omitempty"`
	OpenIn      *PunchDTO   `json:"open_in,omitempty"`
	TotalMs     int64       `json:"total_ms"`
	ValidatedMs int64       `json:"validated_ms"`
	TrackedMs   int64       `json:"tracked_ms,omitempty"`
}

func dayDTO(dr hours.DayReport) DayDTO {
	dto := DayDTO{
		Date:        dr.Date.String(),
		Scheduled:   dr.Scheduled,
		AM:          sessionDTO(dr.Day.AM),
		PM:          sessionDTO(dr.Day.PM),
		OT:          sessionDTO(dr.Day.OT),
		TotalMs:     dr.TotalMs,
		ValidatedMs: dr.ValidatedMs,
		TrackedMs:   dr.TrackedMs,
	}
	if dr.Day.Open != nil {
		open := punchDTO(*dr.Day.Open)
		dto.OpenIn = &open
	}
	return dto
}

// ReportDTO is the aggregate standing for one student.
type ReportDTO struct {
	StudentID       string   `json:"student_id"`
	TotalMs         int64    `json:"total_ms"`
	ValidatedMs     int64    `json:"validated_ms"`
	TrackedMs       int64    `json:"tracked_ms"`
	RenderedHours   string   `json:"rendered_hours"`
	ValidatedHours  string   `json:"validated_hours"`
	TargetHours     string   `json:"target_hours"`
	ProgressPercent string   `json:"progress_percent"`
	Days            []DayDTO `json:"days"`
}

func reportDTO(r hours.Report) ReportDTO {
	dto := ReportDTO{
		StudentID:       r.StudentID,
		TotalMs:         r.TotalMs,
		ValidatedMs:     r.ValidatedMs,
		TrackedMs:       r.TrackedMs,
		RenderedHours:   r.RenderedHours.String(),
		ValidatedHours:  r.ValidatedHours.String(),
		TargetHours:     r.TargetHours.String(),
		ProgressPercent: r.ProgressPercent.String(),
		Days:            make([]DayDTO, 0, len(r.Days)),
	}
	for _, d := range r.Days {
		dto.Days = append(dto.Days, dayDTO(d))
	}
	return dto
}

// =============================================================================
// PUNCH SUBMISSION
// =============================================================================

// TimeInRequest is the capture workflow's time-in attempt.
type TimeInRequest struct {
	PhotoRef string `json:"photo_ref" validate:"required"`
}

// TimeOutRequest is the capture workflow's time-out attempt. Confirm is
// set on the retry after an early-out warning.
type TimeOutRequest struct {
	PhotoRef string `json:"photo_ref" validate:"required"`
	Confirm  bool   `json:"confirm"`
}

// DecisionDTO is the gate's answer.
type DecisionDTO struct {
	Allow           bool      `json:"allow"`
	Reason          string    `json:"reason"`
	Message         string    `json:"message,omitempty"`
	RequiresConfirm bool      `json:"requires_confirm,omitempty"`
	Punch           *PunchDTO `json:"punch,omitempty"`
	AutoClosed      *PunchDTO `json:"auto_closed,omitempty"`
}

func decisionDTO(d gate.Decision) DecisionDTO {
	dto := DecisionDTO{
		Allow:           d.Allow,
		Reason:          string(d.Reason),
		Message:         d.Message,
		RequiresConfirm: d.RequiresConfirm,
	}
	if d.Punch != nil {
		p := punchDTO(*d.Punch)
		dto.Punch = &p
	}
	if d.AutoClosed != nil {
		p := punchDTO(*d.AutoClosed)
		dto.AutoClosed = &p
	}
	return dto
}

// =============================================================================
// CONFIG AUTHORING
// =============================================================================

// StudentRequest upserts a student registry record.
type StudentRequest struct {
	ID           string  `json:"id" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	CourseID     string  `json:"course_id" validate:"required"`
	SupervisorID string  `json:"supervisor_id" validate:"required"`
	TargetHours  float64 `json:"target_hours" validate:"gte=0"`
}

// CoordinatorEventRequest upserts a coordinator event.
type CoordinatorEventRequest struct {
	ID          string   `json:"id" validate:"required"`
	Date        string   `json:"date" validate:"required"`
	CourseScope []string `json:"course_scope"`
	AMIn        string   `json:"am_in"`
	AMOut       string   `json:"am_out"`
	PMIn        string   `json:"pm_in"`
	PMOut       string   `json:"pm_out"`
	OTIn        string   `json:"ot_in"`
	OTOut       string   `json:"ot_out"`
}

// StudentOverrideRequest upserts the undated per-student baseline.
type StudentOverrideRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	AMIn      string `json:"am_in"`
	AMOut     string `json:"am_out"`
	PMIn      string `json:"pm_in"`
	PMOut     string `json:"pm_out"`
	OTIn      string `json:"ot_in"`
	OTOut     string `json:"ot_out"`
}

// DatedOverrideRequest upserts a per-date supervisor override.
type DatedOverrideRequest struct {
	SupervisorID string `json:"supervisor_id" validate:"required"`
	Date         string `json:"date" validate:"required"`
	AMIn         string `json:"am_in"`
	AMOut        string `json:"am_out"`
	PMIn         string `json:"pm_in"`
	PMOut        string `json:"pm_out"`
}

// ShiftRequest upserts one supervisor roster row.
type ShiftRequest struct {
	ID           string `json:"id" validate:"required"`
	SupervisorID string `json:"supervisor_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Start        string `json:"start"`
	End          string `json:"end"`
}

// OvertimeGrantRequest upserts the at-most-one grant per (student, date).
type OvertimeGrantRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	StartTs   int64  `json:"start_ts" validate:"required"`
	EndTs     int64  `json:"end_ts" validate:"required,gtfield=StartTs"`
	GrantedBy string `json:"granted_by"`
}

// PunchStatusRequest applies an approval decision.
type PunchStatusRequest struct {
	Status      string `json:"status" validate:"required,oneof=pending approved rejected official"`
	ValidatedBy string `json:"validated_by"`
}

// FreezeRequest persists frozen ledger values on an out punch.
type FreezeRequest struct {
	RenderedMs      int64 `json:"rendered_ms" validate:"gte=0"`
	ValidatedMs     int64 `json:"validated_ms" validate:"gte=0"`
	OfficialStartTs int64 `json:"official_start_ts"`
	OfficialEndTs   int64 `json:"official_end_ts"`
}
