package services

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/TutorAppBack/internal/models"
	"github.com/saeid-a/TutorAppBack/internal/repository"
	"github.com/saeid-a/TutorAppBack/pkg/timewindow"
)

// memStore is an in-memory repository.SessionStore. WithParticipantLock
// serializes callers and restores the previous state when fn fails.
type memStore struct {
	lockMu sync.Mutex

	mu       sync.Mutex
	nextID   int64
	sessions map[int64]models.Session
	events   []models.SessionEvent

	afterGet func(sessionID int64)

	// racing sessions are committed by a competing writer during the next
	// Create or Update, which then fails with repository.ErrOverlap.
	racing []models.Session
	raced  []models.Session
}

var _ repository.SessionStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{sessions: make(map[int64]models.Session)}
}

func (m *memStore) Create(_ context.Context, session *models.Session, events ...models.SessionEvent) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitRacingLocked() {
		return nil, repository.ErrOverlap
	}

	m.nextID++
	stored := cloneSession(*session)
	stored.ID = m.nextID
	stored.Version = 1
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	m.sessions[stored.ID] = stored
	m.appendEvents(stored.ID, events)

	result := cloneSession(stored)
	return &result, nil
}

func (m *memStore) GetByID(_ context.Context, sessionID int64) (*models.Session, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if m.afterGet != nil {
		m.afterGet(sessionID)
	}
	result := cloneSession(session)
	return &result, nil
}

func (m *memStore) List(_ context.Context, filter repository.SessionListFilter) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	result := make([]models.Session, 0)
	for _, session := range m.orderedLocked() {
		switch filter.Side {
		case models.RoleStudent:
			if session.StudentID != filter.ActorID {
				continue
			}
		case models.RoleTutor:
			if session.TutorID != filter.ActorID {
				continue
			}
		default:
			if !session.IsParticipant(filter.ActorID) {
				continue
			}
		}
		if filter.Status != "" && string(session.Status) != filter.Status {
			continue
		}
		if filter.ParentSessionID > 0 {
			parent := session.Recurrence.ParentSessionID
			if session.ID != filter.ParentSessionID && (parent == nil || *parent != filter.ParentSessionID) {
				continue
			}
		}
		if filter.Timeframe == "upcoming" && !session.ScheduledEnd.After(now) {
			continue
		}
		if filter.Timeframe == "past" && session.ScheduledEnd.After(now) {
			continue
		}
		result = append(result, cloneSession(session))
	}
	return result, nil
}

func (m *memStore) FindActiveOverlapping(
	_ context.Context,
	participantIDs []int64,
	window timewindow.Window,
	excludeSessionID int64,
) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]models.Session, 0)
	for _, session := range m.orderedLocked() {
		if session.ID == excludeSessionID || !session.Status.IsActive() {
			continue
		}
		involved := false
		for _, id := range participantIDs {
			if session.IsParticipant(id) {
				involved = true
			}
		}
		if !involved {
			continue
		}
		if session.ScheduledStart.Before(window.End) && session.ScheduledEnd.After(window.Start) {
			result = append(result, cloneSession(session))
		}
	}
	return result, nil
}

func (m *memStore) Update(_ context.Context, session *models.Session, events ...models.SessionEvent) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitRacingLocked() {
		return nil, repository.ErrOverlap
	}

	current, ok := m.sessions[session.ID]
	if !ok || current.Version != session.Version {
		return nil, repository.ErrStaleSession
	}
	stored := cloneSession(*session)
	stored.Version = current.Version + 1
	stored.UpdatedAt = time.Now().UTC()
	m.sessions[stored.ID] = stored
	m.appendEvents(stored.ID, events)

	result := cloneSession(stored)
	return &result, nil
}

func (m *memStore) WithParticipantLock(
	ctx context.Context,
	_ []int64,
	fn func(store repository.SessionStore) error,
) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	m.mu.Lock()
	snapshot := make(map[int64]models.Session, len(m.sessions))
	for id, session := range m.sessions {
		snapshot[id] = session
	}
	nextID := m.nextID
	eventCount := len(m.events)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		for _, session := range m.raced {
			snapshot[session.ID] = session
			if session.ID > nextID {
				nextID = session.ID
			}
		}
		m.raced = nil
		m.sessions = snapshot
		m.nextID = nextID
		m.events = m.events[:eventCount]
		m.mu.Unlock()
		return err
	}
	return nil
}

// commitRacingLocked stores the racing sessions outside the caller's
// rollback scope and reports whether there were any.
func (m *memStore) commitRacingLocked() bool {
	if len(m.racing) == 0 {
		return false
	}
	for _, session := range m.racing {
		m.nextID++
		session.ID = m.nextID
		if session.Version == 0 {
			session.Version = 1
		}
		stored := cloneSession(session)
		m.sessions[stored.ID] = stored
		m.raced = append(m.raced, stored)
	}
	m.racing = nil
	return true
}

func (m *memStore) ListReminderDue(_ context.Context, from, to time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]models.Session, 0)
	for _, session := range m.orderedLocked() {
		if session.Status != models.StatusScheduled && session.Status != models.StatusConfirmed {
			continue
		}
		if session.Reminder.Sent {
			continue
		}
		if session.ScheduledStart.Before(from) || session.ScheduledStart.After(to) {
			continue
		}
		result = append(result, cloneSession(session))
	}
	return result, nil
}

func (m *memStore) MarkReminderSent(_ context.Context, sessionID int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || session.Reminder.Sent {
		return false, nil
	}
	if session.Status != models.StatusScheduled && session.Status != models.StatusConfirmed {
		return false, nil
	}
	sentAt := at
	session.Reminder = models.Reminder{Sent: true, SentAt: &sentAt}
	session.Version++
	m.sessions[sessionID] = session
	return true, nil
}

// put stores a session as-is, for arranging test state.
func (m *memStore) put(session models.Session) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == 0 {
		m.nextID++
		session.ID = m.nextID
	} else if session.ID > m.nextID {
		m.nextID = session.ID
	}
	if session.Version == 0 {
		session.Version = 1
	}
	if session.Materials == nil {
		session.Materials = []models.Material{}
	}
	m.sessions[session.ID] = cloneSession(session)
	return session
}

func (m *memStore) get(sessionID int64) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSession(m.sessions[sessionID])
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memStore) recordedEvents() []models.SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SessionEvent(nil), m.events...)
}

func (m *memStore) appendEvents(sessionID int64, events []models.SessionEvent) {
	for _, event := range events {
		event.SessionID = sessionID
		m.events = append(m.events, event)
	}
}

func (m *memStore) orderedLocked() []models.Session {
	ordered := make([]models.Session, 0, len(m.sessions))
	for id := int64(1); id <= m.nextID; id++ {
		if session, ok := m.sessions[id]; ok {
			ordered = append(ordered, session)
		}
	}
	return ordered
}

func cloneSession(session models.Session) models.Session {
	session.Materials = append([]models.Material{}, session.Materials...)
	return session
}

type fakeUsers struct {
	mu           sync.Mutex
	roles        map[int64]models.Role
	availability map[int64]models.TutorAvailability
	stats        map[int64][]models.StatsDelta
	statsErr     error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		roles:        make(map[int64]models.Role),
		availability: make(map[int64]models.TutorAvailability),
		stats:        make(map[int64][]models.StatsDelta),
	}
}

func (f *fakeUsers) GetRole(_ context.Context, userID int64) (models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[userID]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return role, nil
}

func (f *fakeUsers) GetTutorAvailability(_ context.Context, tutorID int64) (*models.TutorAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	availability, ok := f.availability[tutorID]
	if !ok {
		return &models.TutorAvailability{TutorID: tutorID, Timezone: "UTC", Slots: []models.AvailabilitySlot{}}, nil
	}
	return &availability, nil
}

func (f *fakeUsers) PutTutorAvailability(_ context.Context, availability models.TutorAvailability) (*models.TutorAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availability[availability.TutorID] = availability
	return &availability, nil
}

func (f *fakeUsers) IncrementStats(_ context.Context, userID int64, delta models.StatsDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return f.statsErr
	}
	f.stats[userID] = append(f.stats[userID], delta)
	return nil
}

// allWeekAvailability is open around the clock on every day.
func allWeekAvailability(tutorID int64) models.TutorAvailability {
	days := []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
	slots := make([]models.AvailabilitySlot, 0, len(days))
	for _, day := range days {
		slots = append(slots, models.AvailabilitySlot{DayOfWeek: day, StartTime: "00:00", EndTime: "24:00"})
	}
	return models.TutorAvailability{TutorID: tutorID, Timezone: "UTC", Slots: slots}
}

type sentNotification struct {
	userID int64
	kind   models.EventKind
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []sentNotification
	err   error
	onHit chan struct{}
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, kind models.EventKind, _ map[string]any) error {
	n.mu.Lock()
	n.sent = append(n.sent, sentNotification{userID: userID, kind: kind})
	n.mu.Unlock()
	if n.onHit != nil {
		select {
		case n.onHit <- struct{}{}:
		default:
		}
	}
	return n.err
}

func (n *recordingNotifier) notifications() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

type publishedEvent struct {
	userIDs []int64
	event   models.SessionEvent
}

type recordingBus struct {
	mu        sync.Mutex
	published []publishedEvent
}

func (b *recordingBus) Publish(userIDs []int64, event models.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{userIDs: append([]int64(nil), userIDs...), event: event})
}

func (b *recordingBus) events() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedEvent(nil), b.published...)
}

type manualTicker struct {
	ch chan time.Time
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time, 1)}
}

func (t *manualTicker) Chan() <-chan time.Time {
	return t.ch
}

func (t *manualTicker) Stop() {}
