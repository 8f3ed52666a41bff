/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements store.Store (punch persistence plus every configuration
  source) on SQLite. The same SQL shape applies to PostgreSQL; only
  dialect details differ.

AT-MOST-ONCE PUNCHES:
  The punches table has the punch id as primary key. Insert surfaces a
  primary-key conflict as store.ErrDuplicatePunch so retried submissions
  and racing polls cannot double-record.

MUTATION SURFACE:
  Punches are never deleted. The only UPDATE statements touch the
  approval fields and the freeze block, mirroring the domain rule that
  everything else is immutable after capture.

WAL MODE:
  Opened with WAL so the poll-driven readers don't block the writer.

KEY TABLES:
  punches:            the per-student punch sequence
  students:           minimal registry (course, supervisor, target hours)
  coordinator_events: highest-precedence schedule source
  student_overrides:  undated per-student baselines
  dated_overrides:    per-date supervisor overrides (AM/PM only)
  supervisor_shifts:  the roster classified into AM/PM/OT at resolution
  overtime_grants:    at most one per (student, date)

SEE ALSO:
  - store/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
	"github.com/warp/ojt-engine/store"
)

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens (creating if needed) the database at dbPath. Use ":memory:"
// for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS punches (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		ts INTEGER NOT NULL,
		photo_ref TEXT,
		status TEXT NOT NULL,
		validated_by TEXT,
		overtime INTEGER NOT NULL DEFAULT 0,
		slot_label TEXT,
		provenance TEXT NOT NULL,
		frozen_rendered_ms INTEGER,
		frozen_validated_ms INTEGER,
		official_start_ts INTEGER,
		official_end_ts INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_punches_student_ts ON punches(student_id, ts);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		course_id TEXT NOT NULL,
		supervisor_id TEXT NOT NULL,
		target_hours REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS coordinator_events (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		course_scope TEXT NOT NULL DEFAULT '[]',
		am_in TEXT, am_out TEXT,
		pm_in TEXT, pm_out TEXT,
		ot_in TEXT, ot_out TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_date ON coordinator_events(date);

	CREATE TABLE IF NOT EXISTS student_overrides (
		student_id TEXT PRIMARY KEY,
		am_in TEXT, am_out TEXT,
		pm_in TEXT, pm_out TEXT,
		ot_in TEXT, ot_out TEXT
	);

	CREATE TABLE IF NOT EXISTS dated_overrides (
		supervisor_id TEXT NOT NULL,
		date TEXT NOT NULL,
		am_in TEXT, am_out TEXT,
		pm_in TEXT, pm_out TEXT,
		PRIMARY KEY (supervisor_id, date)
	);

	CREATE TABLE IF NOT EXISTS supervisor_shifts (
		id TEXT PRIMARY KEY,
		supervisor_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_shifts_supervisor ON supervisor_shifts(supervisor_id);

	CREATE TABLE IF NOT EXISTS overtime_grants (
		student_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_ts INTEGER NOT NULL,
		end_ts INTEGER NOT NULL,
		granted_by TEXT,
		PRIMARY KEY (student_id, date)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PUNCH STORE
// =============================================================================

const punchColumns = `id, student_id, kind, ts, photo_ref, status, validated_by,
	overtime, slot_label, provenance,
	frozen_rendered_ms, frozen_validated_ms, official_start_ts, official_end_ts`

func (s *Store) History(ctx context.Context, studentID string) ([]punch.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+punchColumns+` FROM punches WHERE student_id = ? ORDER BY ts ASC`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query punches: %w", err)
	}
	defer rows.Close()

	var events []punch.Event
	for rows.Next() {
		e, err := scanPunch(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) Insert(ctx context.Context, e punch.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO punches (`+punchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StudentID, string(e.Kind), e.Timestamp, e.PhotoRef,
		string(e.Status), e.ValidatedBy, boolInt(e.Overtime), e.SlotLabel,
		string(e.Provenance),
		e.FrozenRenderedMs, e.FrozenValidatedMs, e.OfficialStartTs, e.OfficialEndTs)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrDuplicatePunch
		}
		return fmt.Errorf("insert punch: %w", err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, punchID string, status punch.Status, validatedBy string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE punches SET status = ?, validated_by = ? WHERE id = ?`,
		string(status), validatedBy, punchID)
	if err != nil {
		return fmt.Errorf("update punch status: %w", err)
	}
	return requireRow(res)
}

func (s *Store) SetFreeze(ctx context.Context, punchID string, f store.Freeze) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE punches
		SET frozen_rendered_ms = ?, frozen_validated_ms = ?,
		    official_start_ts = ?, official_end_ts = ?
		WHERE id = ?`,
		f.RenderedMs, f.ValidatedMs, f.OfficialStartTs, f.OfficialEndTs, punchID)
	if err != nil {
		return fmt.Errorf("freeze punch: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrPunchNotFound
	}
	return nil
}

func scanPunch(rows *sql.Rows) (punch.Event, error) {
	var e punch.Event
	var kind, status, provenance string
	var photoRef, validatedBy, slotLabel sql.NullString
	var overtime int
	err := rows.Scan(&e.ID, &e.StudentID, &kind, &e.Timestamp, &photoRef,
		&status, &validatedBy, &overtime, &slotLabel, &provenance,
		&e.FrozenRenderedMs, &e.FrozenValidatedMs, &e.OfficialStartTs, &e.OfficialEndTs)
	if err != nil {
		return punch.Event{}, fmt.Errorf("scan punch: %w", err)
	}
	e.Kind = punch.Kind(kind)
	e.Status = punch.Status(status)
	e.Provenance = punch.Provenance(provenance)
	e.PhotoRef = photoRef.String
	e.ValidatedBy = validatedBy.String
	e.SlotLabel = slotLabel.String
	e.Overtime = overtime != 0
	return e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// SCHEDULE SOURCE
// =============================================================================

func (s *Store) Student(ctx context.Context, studentID string) (*schedule.Student, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, course_id, supervisor_id, target_hours FROM students WHERE id = ?`, studentID)
	var st schedule.Student
	err := row.Scan(&st.ID, &st.Name, &st.CourseID, &st.SupervisorID, &st.TargetHours)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return &st, nil
}

func (s *Store) CoordinatorEvents(ctx context.Context, date schedule.Date) ([]schedule.CoordinatorEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, course_scope, am_in, am_out, pm_in, pm_out, ot_in, ot_out
		FROM coordinator_events WHERE date = ?`, date.String())
	if err != nil {
		return nil, fmt.Errorf("query coordinator events: %w", err)
	}
	defer rows.Close()

	var events []schedule.CoordinatorEvent
	for rows.Next() {
		var e schedule.CoordinatorEvent
		var dateStr, scopeJSON string
		var amIn, amOut, pmIn, pmOut, otIn, otOut sql.NullString
		if err := rows.Scan(&e.ID, &dateStr, &scopeJSON, &amIn, &amOut, &pmIn, &pmOut, &otIn, &otOut); err != nil {
			return nil, fmt.Errorf("scan coordinator event: %w", err)
		}
		if e.Date, err = schedule.ParseDate(dateStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scopeJSON), &e.CourseScope); err != nil {
			e.CourseScope = nil
		}
		e.AMIn, e.AMOut = amIn.String, amOut.String
		e.PMIn, e.PMOut = pmIn.String, pmOut.String
		e.OTIn, e.OTOut = otIn.String, otOut.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) StudentOverride(ctx context.Context, studentID string) (*schedule.StudentOverride, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT student_id, am_in, am_out, pm_in, pm_out, ot_in, ot_out
		FROM student_overrides WHERE student_id = ?`, studentID)
	var o schedule.StudentOverride
	var amIn, amOut, pmIn, pmOut, otIn, otOut sql.NullString
	err := row.Scan(&o.StudentID, &amIn, &amOut, &pmIn, &pmOut, &otIn, &otOut)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student override: %w", err)
	}
	o.AMIn, o.AMOut = amIn.String, amOut.String
	o.PMIn, o.PMOut = pmIn.String, pmOut.String
	o.OTIn, o.OTOut = otIn.String, otOut.String
	return &o, nil
}

func (s *Store) DatedOverride(ctx context.Context, supervisorID string, date schedule.Date) (*schedule.DatedOverride, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT supervisor_id, date, am_in, am_out, pm_in, pm_out
		FROM dated_overrides WHERE supervisor_id = ? AND date = ?`, supervisorID, date.String())
	var o schedule.DatedOverride
	var dateStr string
	var amIn, amOut, pmIn, pmOut sql.NullString
	err := row.Scan(&o.SupervisorID, &dateStr, &amIn, &amOut, &pmIn, &pmOut)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query dated override: %w", err)
	}
	if o.Date, err = schedule.ParseDate(dateStr); err != nil {
		return nil, err
	}
	o.AMIn, o.AMOut = amIn.String, amOut.String
	o.PMIn, o.PMOut = pmIn.String, pmOut.String
	return &o, nil
}

func (s *Store) SupervisorShifts(ctx context.Context, supervisorID string) ([]schedule.SupervisorShift, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supervisor_id, name, start_time, end_time
		FROM supervisor_shifts WHERE supervisor_id = ?`, supervisorID)
	if err != nil {
		return nil, fmt.Errorf("query supervisor shifts: %w", err)
	}
	defer rows.Close()

	var shifts []schedule.SupervisorShift
	for rows.Next() {
		var sh schedule.SupervisorShift
		var start, end sql.NullString
		if err := rows.Scan(&sh.ID, &sh.SupervisorID, &sh.Name, &start, &end); err != nil {
			return nil, fmt.Errorf("scan supervisor shift: %w", err)
		}
		sh.Start, sh.End = start.String, end.String
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}

func (s *Store) OvertimeGrant(ctx context.Context, studentID string, date schedule.Date) (*schedule.OvertimeGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT student_id, date, start_ts, end_ts, granted_by
		FROM overtime_grants WHERE student_id = ? AND date = ?`, studentID, date.String())
	var g schedule.OvertimeGrant
	var dateStr string
	var grantedBy sql.NullString
	err := row.Scan(&g.StudentID, &dateStr, &g.StartTs, &g.EndTs, &grantedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query overtime grant: %w", err)
	}
	if g.Date, err = schedule.ParseDate(dateStr); err != nil {
		return nil, err
	}
	g.GrantedBy = grantedBy.String
	return &g, nil
}

// =============================================================================
// CONFIG AUTHORING
// =============================================================================

func (s *Store) PutStudent(ctx context.Context, st schedule.Student) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, name, course_id, supervisor_id, target_hours)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, course_id = excluded.course_id,
			supervisor_id = excluded.supervisor_id, target_hours = excluded.target_hours`,
		st.ID, st.Name, st.CourseID, st.SupervisorID, st.TargetHours)
	if err != nil {
		return fmt.Errorf("put student: %w", err)
	}
	return nil
}

func (s *Store) PutCoordinatorEvent(ctx context.Context, e schedule.CoordinatorEvent) error {
	scope, err := json.Marshal(e.CourseScope)
	if err != nil {
		return fmt.Errorf("encode course scope: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coordinator_events (id, date, course_scope, am_in, am_out, pm_in, pm_out, ot_in, ot_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date, course_scope = excluded.course_scope,
			am_in = excluded.am_in, am_out = excluded.am_out,
			pm_in = excluded.pm_in, pm_out = excluded.pm_out,
			ot_in = excluded.ot_in, ot_out = excluded.ot_out`,
		e.ID, e.Date.String(), string(scope), e.AMIn, e.AMOut, e.PMIn, e.PMOut, e.OTIn, e.OTOut)
	if err != nil {
		return fmt.Errorf("put coordinator event: %w", err)
	}
	return nil
}

func (s *Store) PutStudentOverride(ctx context.Context, o schedule.StudentOverride) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO student_overrides (student_id, am_in, am_out, pm_in, pm_out, ot_in, ot_out)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(student_id) DO UPDATE SET
			am_in = excluded.am_in, am_out = excluded.am_out,
			pm_in = excluded.pm_in, pm_out = excluded.pm_out,
			ot_in = excluded.ot_in, ot_out = excluded.ot_out`,
		o.StudentID, o.AMIn, o.AMOut, o.PMIn, o.PMOut, o.OTIn, o.OTOut)
	if err != nil {
		return fmt.Errorf("put student override: %w", err)
	}
	return nil
}

func (s *Store) PutDatedOverride(ctx context.Context, o schedule.DatedOverride) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dated_overrides (supervisor_id, date, am_in, am_out, pm_in, pm_out)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(supervisor_id, date) DO UPDATE SET
			am_in = excluded.am_in, am_out = excluded.am_out,
			pm_in = excluded.pm_in, pm_out = excluded.pm_out`,
		o.SupervisorID, o.Date.String(), o.AMIn, o.AMOut, o.PMIn, o.PMOut)
	if err != nil {
		return fmt.Errorf("put dated override: %w", err)
	}
	return nil
}

func (s *Store) PutSupervisorShift(ctx context.Context, sh schedule.SupervisorShift) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO supervisor_shifts (id, supervisor_id, name, start_time, end_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			supervisor_id = excluded.supervisor_id, name = excluded.name,
			start_time = excluded.start_time, end_time = excluded.end_time`,
		sh.ID, sh.SupervisorID, sh.Name, sh.Start, sh.End)
	if err != nil {
		return fmt.Errorf("put supervisor shift: %w", err)
	}
	return nil
}

func (s *Store) PutOvertimeGrant(ctx context.Context, g schedule.OvertimeGrant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overtime_grants (student_id, date, start_ts, end_ts, granted_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(student_id, date) DO UPDATE SET
			start_ts = excluded.start_ts, end_ts = excluded.end_ts,
			granted_by = excluded.granted_by`,
		g.StudentID, g.Date.String(), g.StartTs, g.EndTs, g.GrantedBy)
	if err != nil {
		return fmt.Errorf("put overtime grant: %w", err)
	}
	return nil
}
