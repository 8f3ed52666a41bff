/*
Package punch defines the attendance punch data model.

PURPOSE:
  A punch is a single time-in or time-out capture with a timestamp and a
  photo reference. Punches are created by the capture workflow and mutated
  only by approval and ledger-freeze operations; this engine reads them,
  pairs them into sessions, and occasionally synthesizes a missing "out"
  for a student who forgot to punch.

KEY CONCEPTS:
  - Kind:       in | out
  - Status:     pending | approved | rejected | official
  - Provenance: captured | synthesized | auto-closed
  - Freeze:     rendered/validated durations persisted on the out punch so
                later schedule edits cannot rewrite history

INVARIANTS:
  - A rejected punch never contributes to any duration.
  - A frozen out punch's duration is immutable regardless of schedule
    changes (see session.Compute).
  - Synthesized punches never require a photo.

SEE ALSO:
  - session/: pairing and duration computation
  - gate/: submission-time validation
*/
package punch

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ENUMS
// =============================================================================

type Kind string

const (
	KindIn  Kind = "in"
	KindOut Kind = "out"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusOfficial Status = "official"
)

// Provenance records how a punch came to exist. Synthesized and auto-closed
// punches are system-generated stand-ins for a forgotten time-out; they are
// explicit variants rather than sentinel ids.
type Provenance string

const (
	ProvenanceCaptured    Provenance = "captured"
	ProvenanceSynthesized Provenance = "synthesized"
	ProvenanceAutoClosed  Provenance = "auto_closed"
)

// =============================================================================
// EVENT
// =============================================================================

// Event is a single punch. Timestamps are epoch milliseconds. All fields
// except status, validation, and the freeze block are immutable after
// capture.
type Event struct {
	ID          string
	StudentID   string
	Kind        Kind
	Timestamp   int64
	PhotoRef    string
	Status      Status
	ValidatedBy string
	Overtime    bool
	SlotLabel   string
	Provenance  Provenance

	// Freeze block: populated by the ledger-freeze operation on out
	// punches. When present, these values are used verbatim instead of
	// recomputing against the current schedule.
	FrozenRenderedMs  *int64
	FrozenValidatedMs *int64
	OfficialStartTs   *int64
	OfficialEndTs     *int64
}

func (e Event) Rejected() bool { return e.Status == StatusRejected }
func (e Event) Approved() bool { return e.Status == StatusApproved }

// Synthetic reports whether the punch was generated by the engine rather
// than captured. Synthetic punches are photo-exempt.
func (e Event) Synthetic() bool {
	return e.Provenance == ProvenanceSynthesized || e.Provenance == ProvenanceAutoClosed
}

// Frozen reports whether the punch carries frozen ledger values.
func (e Event) Frozen() bool {
	return e.FrozenRenderedMs != nil || e.FrozenValidatedMs != nil ||
		(e.OfficialStartTs != nil && e.OfficialEndTs != nil)
}

// Time returns the punch instant.
func (e Event) Time() time.Time { return time.UnixMilli(e.Timestamp) }

// NewID allocates a punch id. Synthesized punches get real ids too; their
// provenance, not their id, marks them as system-generated.
func NewID() string { return uuid.NewString() }

// =============================================================================
// ORDERING AND REDUCTION
// =============================================================================

// SortChronological orders punches by timestamp, in place.
func SortChronological(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}

// OpenState is the result of reducing a punch history: either no session is
// open, or exactly one in punch is waiting for its out.
type OpenState struct {
	Open bool
	In   Event
}

// ReduceOpen scans a chronological punch history and returns the open-in
// state. Rejected punches are invisible to the reduction. A second in with
// no intervening out supersedes the stale in; an out only closes an in
// that precedes it.
func ReduceOpen(events []Event) OpenState {
	var state OpenState
	for _, e := range events {
		if e.Rejected() {
			continue
		}
		switch e.Kind {
		case KindIn:
			state = OpenState{Open: true, In: e}
		case KindOut:
			if state.Open && e.Timestamp > state.In.Timestamp {
				state = OpenState{}
			}
		}
	}
	return state
}
