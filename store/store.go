/*
Package store defines the persistence interfaces for the engine.

PURPOSE:
  The engine itself is pure computation; everything durable lives behind
  these interfaces. Punch writes must be atomic and at-most-once per id,
  so a retried submission or a racing poll can never double-record a
  punch. Configuration entities are authored by coordinator/supervisor
  collaborators and consumed read-only by the resolver.

IMPLEMENTATIONS:
  - store/memory:     in-memory, for tests and dev
  - store/sqlite:     production SQLite (same SQL shape as PostgreSQL)
  - store/rediscache: last-good schedule cache on Redis

MUTATION SURFACE:
  Punches are immutable after capture except for the approval fields and
  the freeze block. SetStatus and Freeze are the only punch mutations;
  there is no delete.

SEE ALSO:
  - schedule/types.go: the Source interface implemented here
  - gate/gate.go: the PunchLog slice of this interface
*/
package store

import (
	"context"
	"errors"

	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
)

var (
	// ErrDuplicatePunch is returned when a punch id was already recorded.
	// At-most-once semantics: the caller treats this as already done.
	ErrDuplicatePunch = errors.New("duplicate punch id")

	// ErrPunchNotFound is returned by status/freeze updates on unknown ids.
	ErrPunchNotFound = errors.New("punch not found")
)

// =============================================================================
// PUNCH STORE
// =============================================================================

// Freeze carries the ledger values persisted onto an out punch so later
// schedule edits cannot change the session's recorded contribution.
type Freeze struct {
	RenderedMs      int64
	ValidatedMs     int64
	OfficialStartTs int64
	OfficialEndTs   int64
}

// PunchStore persists punches. Insert is at-most-once per punch id.
type PunchStore interface {
	// History returns the student's full punch sequence, timestamp order.
	History(ctx context.Context, studentID string) ([]punch.Event, error)

	// Insert records a new punch. Returns ErrDuplicatePunch on id reuse.
	Insert(ctx context.Context, e punch.Event) error

	// SetStatus applies an approval decision to a punch.
	SetStatus(ctx context.Context, punchID string, status punch.Status, validatedBy string) error

	// SetFreeze persists frozen ledger values on an out punch.
	SetFreeze(ctx context.Context, punchID string, f Freeze) error
}

// =============================================================================
// CONFIG STORE
// =============================================================================

// ConfigStore is the authoring surface for configuration sources, plus the
// read-only schedule.Source view the resolver consumes. The engine only
// ever calls the Source side.
type ConfigStore interface {
	schedule.Source

	PutStudent(ctx context.Context, s schedule.Student) error
	PutCoordinatorEvent(ctx context.Context, e schedule.CoordinatorEvent) error
	PutStudentOverride(ctx context.Context, o schedule.StudentOverride) error
	PutDatedOverride(ctx context.Context, o schedule.DatedOverride) error
	PutSupervisorShift(ctx context.Context, s schedule.SupervisorShift) error
	PutOvertimeGrant(ctx context.Context, g schedule.OvertimeGrant) error
}

// Store is the full persistence surface the server wires together.
type Store interface {
	PunchStore
	ConfigStore
}
