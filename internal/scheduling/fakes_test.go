package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/interval"
)

// memStore is an in-memory ScheduleAdmin, SessionStore and AssignmentStore.
type memStore struct {
	mu          sync.Mutex
	schedules   map[uuid.UUID]map[DayOfWeek]WeeklyScheduleEntry
	sessions    map[uuid.UUID]*BookedSession
	assignments map[uuid.UUID]*ServiceAssignment

	insertErr error
	listErr   error
	// beforeUpdate runs inside Update before the status guard is checked.
	beforeUpdate func(s *BookedSession)
	listCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		schedules:   map[uuid.UUID]map[DayOfWeek]WeeklyScheduleEntry{},
		sessions:    map[uuid.UUID]*BookedSession{},
		assignments: map[uuid.UUID]*ServiceAssignment{},
	}
}

func (m *memStore) GetActiveSchedule(_ context.Context, therapistID uuid.UUID, day DayOfWeek) (*WeeklyScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.schedules[therapistID][day]
	if !ok || !e.IsActive {
		return nil, ErrScheduleNotFound
	}
	return &e, nil
}

func (m *memStore) ListWeek(_ context.Context, therapistID uuid.UUID) ([]WeeklyScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WeeklyScheduleEntry
	for _, e := range m.schedules[therapistID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return dayOrder[out[i].DayOfWeek] < dayOrder[out[j].DayOfWeek] })
	return out, nil
}

func (m *memStore) ReplaceWeek(_ context.Context, therapistID uuid.UUID, entries []WeeklyScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	week := make(map[DayOfWeek]WeeklyScheduleEntry, len(entries))
	for _, e := range entries {
		week[e.DayOfWeek] = e
	}
	m.schedules[therapistID] = week
	return nil
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID) (*BookedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *memStore) ListBookings(_ context.Context, f BookingFilter) ([]BookedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []BookedSession
	for _, s := range m.sessions {
		if f.Matches(s) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, s *BookedSession) (*BookedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	clone := *s
	m.sessions[s.ID] = &clone
	out := clone
	return &out, nil
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, u SessionUpdate) (*BookedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate(s)
	}
	if u.ExpectedStatus != "" && s.Status != u.ExpectedStatus {
		return nil, ErrStateChanged
	}
	u.Apply(s)
	clone := *s
	return &clone, nil
}

func (m *memStore) ListOverdue(_ context.Context, cutoff time.Time, limit int) ([]BookedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BookedSession
	for _, s := range m.sessions {
		if s.Status != StatusScheduled {
			continue
		}
		end, err := SessionEnd(s)
		if err != nil {
			return nil, err
		}
		if !end.After(cutoff) {
			out = append(out, *s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetAssignment(_ context.Context, id uuid.UUID) (*ServiceAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *memStore) IncrementCompleted(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return ErrAssignmentNotFound
	}
	a.CompletedSessions++
	if a.CompletedSessions >= a.TotalSessions {
		a.Status = AssignmentCompleted
	}
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// memLocker serializes on one mutex. With busy set it behaves like a lock
// held elsewhere for longer than the wait budget.
type memLocker struct {
	mu    sync.Mutex
	busy  bool
	calls int
}

func (l *memLocker) WithTherapistDayLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	if l.busy {
		return ErrLockNotAcquired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return fn(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	engine    *Engine
	store     *memStore
	locker    *memLocker
	events    *recordingPublisher
	therapist uuid.UUID
	patient   uuid.UUID
}

var (
	monday  = date("2026-03-02")
	tuesday = date("2026-03-03")
	sunday  = date("2026-03-08")
	clock   = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
)

func date(s string) time.Time {
	d, err := interval.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strptr(s string) *string { return &s }

func intptr(n int) *int { return &n }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, config.DefaultEngine())
}

func newFixtureWithConfig(t *testing.T, cfg config.Engine) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemStore(),
		locker:    &memLocker{},
		events:    &recordingPublisher{},
		therapist: uuid.New(),
		patient:   uuid.New(),
	}
	f.engine = NewEngine(f.store, f.store, f.store, f.locker, f.events, cfg, zap.NewNop())
	f.engine.now = func() time.Time { return clock }
	return f
}

// workDay gives the therapist a working window on day.
func (f *fixture) workDay(day DayOfWeek, start, end string, breakStart, breakEnd *string, gap int) {
	week, ok := f.store.schedules[f.therapist]
	if !ok {
		week = map[DayOfWeek]WeeklyScheduleEntry{}
		f.store.schedules[f.therapist] = week
	}
	week[day] = WeeklyScheduleEntry{
		ID:            uuid.New(),
		TherapistID:   f.therapist,
		DayOfWeek:     day,
		StartTime:     start,
		EndTime:       end,
		BreakStart:    breakStart,
		BreakEnd:      breakEnd,
		MinGapMinutes: gap,
		IsActive:      true,
	}
}

// clinicWeek is Monday to Friday, 09:00-17:00, lunch 12:00-13:00, 15 minute gap.
func (f *fixture) clinicWeek() {
	for _, d := range []DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday} {
		f.workDay(d, "09:00", "17:00", strptr("12:00"), strptr("13:00"), 15)
	}
}

func (f *fixture) assignment(total, completed int, status AssignmentStatus) uuid.UUID {
	a := &ServiceAssignment{
		ID:                uuid.New(),
		TherapistID:       f.therapist,
		PatientID:         f.patient,
		TotalSessions:     total,
		CompletedSessions: completed,
		Status:            status,
	}
	f.store.assignments[a.ID] = a
	return a.ID
}

func (f *fixture) booked(d time.Time, hhmm string, duration int, status SessionStatus) *BookedSession {
	s := &BookedSession{
		ID:                  uuid.New(),
		TherapistID:         f.therapist,
		PatientID:           f.patient,
		ServiceAssignmentID: uuid.New(),
		ScheduledDate:       d,
		ScheduledTime:       hhmm,
		DurationMinutes:     duration,
		Status:              status,
	}
	f.store.sessions[s.ID] = s
	clone := *s
	return &clone
}

func (f *fixture) check(t *testing.T, d time.Time, hhmm string, duration int) AvailabilityResult {
	t.Helper()
	res, err := f.engine.CheckAvailability(context.Background(), AvailabilityRequest{
		TherapistID:     f.therapist,
		Date:            d,
		Time:            hhmm,
		DurationMinutes: duration,
	})
	if err != nil {
		t.Fatalf("CheckAvailability(%s %s %d): %v", interval.FormatDate(d), hhmm, duration, err)
	}
	return res
}

var errBoom = errors.New("boom")
