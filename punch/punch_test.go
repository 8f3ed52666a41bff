package punch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/ojt-engine/punch"
)

func event(id string, kind punch.Kind, ts int64, status punch.Status) punch.Event {
	return punch.Event{ID: id, StudentID: "stu-1", Kind: kind, Timestamp: ts, Status: status}
}

func TestReduceOpen(t *testing.T) {
	// GIVEN: Chronological punch streams in various shapes
	// WHEN: Reducing to the open-session state
	// THEN: Exactly the last unmatched non-rejected in stays open

	in1 := event("p-1", punch.KindIn, 100, punch.StatusPending)
	in2 := event("p-2", punch.KindIn, 200, punch.StatusPending)
	out1 := event("p-3", punch.KindOut, 300, punch.StatusPending)

	cases := []struct {
		name   string
		events []punch.Event
		open   bool
		openID string
	}{
		{"empty", nil, false, ""},
		{"single in", []punch.Event{in1}, true, "p-1"},
		{"closed pair", []punch.Event{in1, out1}, false, ""},
		{"second in supersedes", []punch.Event{in1, in2}, true, "p-2"},
		{"out closes latest in", []punch.Event{in1, in2, out1}, false, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			state := punch.ReduceOpen(c.events)
			assert.Equal(t, c.open, state.Open)
			if c.open {
				assert.Equal(t, c.openID, state.In.ID)
			}
		})
	}
}

func TestReduceOpen_RejectedInvisible(t *testing.T) {
	// GIVEN: A rejected in followed by a valid out
	// WHEN: Reducing
	// THEN: The rejected in never opened, so the out closes nothing

	events := []punch.Event{
		event("p-1", punch.KindIn, 100, punch.StatusRejected),
		event("p-2", punch.KindOut, 200, punch.StatusPending),
	}
	assert.False(t, punch.ReduceOpen(events).Open)
}

func TestReduceOpen_OutBeforeInIgnored(t *testing.T) {
	// GIVEN: An out timestamped before the open in
	// WHEN: Reducing
	// THEN: The in stays open; an out only closes what precedes it

	events := []punch.Event{
		event("p-1", punch.KindIn, 200, punch.StatusPending),
		event("p-2", punch.KindOut, 100, punch.StatusPending),
	}
	assert.True(t, punch.ReduceOpen(events).Open)
}

func TestEvent_Synthetic(t *testing.T) {
	assert.False(t, punch.Event{Provenance: punch.ProvenanceCaptured}.Synthetic())
	assert.True(t, punch.Event{Provenance: punch.ProvenanceSynthesized}.Synthetic())
	assert.True(t, punch.Event{Provenance: punch.ProvenanceAutoClosed}.Synthetic())
}
