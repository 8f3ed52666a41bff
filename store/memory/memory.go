// Package memory provides in-memory store implementations for tests and dev.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/ojt-engine/punch"
	"github.com/warp/ojt-engine/schedule"
	"github.com/warp/ojt-engine/store"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store keeps everything in maps guarded by one RWMutex. Insert order is
// irrelevant; History always returns timestamp order.
type Store struct {
	mu sync.RWMutex

	punches   map[string][]punch.Event // studentID -> events
	punchIDs  map[string]bool
	students  map[string]schedule.Student
	overrides map[string]schedule.StudentOverride

	events map[schedule.Date][]schedule.CoordinatorEvent
	dated  map[datedKey]schedule.DatedOverride
	shifts map[string][]schedule.SupervisorShift
	grants map[grantKey]schedule.OvertimeGrant
}

type datedKey struct {
	SupervisorID string
	Date         schedule.Date
}

type grantKey struct {
	StudentID string
	Date      schedule.Date
}

func New() *Store {
	return &Store{
		punches:   make(map[string][]punch.Event),
		punchIDs:  make(map[string]bool),
		students:  make(map[string]schedule.Student),
		overrides: make(map[string]schedule.StudentOverride),
		events:    make(map[schedule.Date][]schedule.CoordinatorEvent),
		dated:     make(map[datedKey]schedule.DatedOverride),
		shifts:    make(map[string][]schedule.SupervisorShift),
		grants:    make(map[grantKey]schedule.OvertimeGrant),
	}
}

var _ store.Store = (*Store)(nil)

// -----------------------------------------------------------------------------
// PunchStore
// -----------------------------------------------------------------------------

func (m *Store) History(_ context.Context, studentID string) ([]punch.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]punch.Event, len(m.punches[studentID]))
	copy(events, m.punches[studentID])
	return events, nil
}

func (m *Store) Insert(_ context.Context, e punch.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.punchIDs[e.ID] {
		return store.ErrDuplicatePunch
	}
	m.punchIDs[e.ID] = true

	events := m.punches[e.StudentID]
	i := sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp > e.Timestamp
	})
	events = append(events, punch.Event{})
	copy(events[i+1:], events[i:])
	events[i] = e
	m.punches[e.StudentID] = events
	return nil
}

func (m *Store) SetStatus(_ context.Context, punchID string, status punch.Status, validatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.findLocked(punchID)
	if e == nil {
		return store.ErrPunchNotFound
	}
	e.Status = status
	e.ValidatedBy = validatedBy
	return nil
}

func (m *Store) SetFreeze(_ context.Context, punchID string, f store.Freeze) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.findLocked(punchID)
	if e == nil {
		return store.ErrPunchNotFound
	}
	rendered, validated := f.RenderedMs, f.ValidatedMs
	start, end := f.OfficialStartTs, f.OfficialEndTs
	e.FrozenRenderedMs = &rendered
	e.FrozenValidatedMs = &validated
	e.OfficialStartTs = &start
	e.OfficialEndTs = &end
	return nil
}

func (m *Store) findLocked(punchID string) *punch.Event {
	for student := range m.punches {
		events := m.punches[student]
		for i := range events {
			if events[i].ID == punchID {
				return &events[i]
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// schedule.Source
// -----------------------------------------------------------------------------

func (m *Store) Student(_ context.Context, studentID string) (*schedule.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.students[studentID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Store) CoordinatorEvents(_ context.Context, date schedule.Date) ([]schedule.CoordinatorEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]schedule.CoordinatorEvent, len(m.events[date]))
	copy(events, m.events[date])
	return events, nil
}

func (m *Store) StudentOverride(_ context.Context, studentID string) (*schedule.StudentOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.overrides[studentID]; ok {
		return &o, nil
	}
	return nil, nil
}

func (m *Store) DatedOverride(_ context.Context, supervisorID string, date schedule.Date) (*schedule.DatedOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.dated[datedKey{SupervisorID: supervisorID, Date: date}]; ok {
		return &o, nil
	}
	return nil, nil
}

func (m *Store) SupervisorShifts(_ context.Context, supervisorID string) ([]schedule.SupervisorShift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	shifts := make([]schedule.SupervisorShift, len(m.shifts[supervisorID]))
	copy(shifts, m.shifts[supervisorID])
	return shifts, nil
}

func (m *Store) OvertimeGrant(_ context.Context, studentID string, date schedule.Date) (*schedule.OvertimeGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.grants[grantKey{StudentID: studentID, Date: date}]; ok {
		return &g, nil
	}
	return nil, nil
}

// -----------------------------------------------------------------------------
// ConfigStore authoring
// -----------------------------------------------------------------------------

func (m *Store) PutStudent(_ context.Context, s schedule.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	return nil
}

func (m *Store) PutCoordinatorEvent(_ context.Context, e schedule.CoordinatorEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.events[e.Date] {
		if existing.ID == e.ID {
			m.events[e.Date][i] = e
			return nil
		}
	}
	m.events[e.Date] = append(m.events[e.Date], e)
	return nil
}

func (m *Store) PutStudentOverride(_ context.Context, o schedule.StudentOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.StudentID] = o
	return nil
}

func (m *Store) PutDatedOverride(_ context.Context, o schedule.DatedOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dated[datedKey{SupervisorID: o.SupervisorID, Date: o.Date}] = o
	return nil
}

func (m *Store) PutSupervisorShift(_ context.Context, s schedule.SupervisorShift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.shifts[s.SupervisorID] {
		if existing.ID == s.ID {
			m.shifts[s.SupervisorID][i] = s
			return nil
		}
	}
	m.shifts[s.SupervisorID] = append(m.shifts[s.SupervisorID], s)
	return nil
}

// PutOvertimeGrant upserts the at-most-one grant per (student, date).
func (m *Store) PutOvertimeGrant(_ context.Context, g schedule.OvertimeGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[grantKey{StudentID: g.StudentID, Date: g.Date}] = g
	return nil
}

// =============================================================================
// SCHEDULE CACHE
// =============================================================================

// ScheduleCache is an in-process schedule.Cache for single-node deployments
// and tests.
type ScheduleCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]schedule.Effective
}

type cacheKey struct {
	StudentID string
	Date      schedule.Date
}

func NewScheduleCache() *ScheduleCache {
	return &ScheduleCache{entries: make(map[cacheKey]schedule.Effective)}
}

var _ schedule.Cache = (*ScheduleCache)(nil)

func (c *ScheduleCache) Get(_ context.Context, studentID string, date schedule.Date) (schedule.Effective, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey{StudentID: studentID, Date: date}]
	return e, ok
}

func (c *ScheduleCache) Put(_ context.Context, studentID string, date schedule.Date, sched schedule.Effective) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{StudentID: studentID, Date: date}] = sched
}
