package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saeid-a/TutorAppBack/internal/models"
)

func newTestReminderScheduler(store *memStore, notifier Notifier, bus RealtimePublisher) *ReminderScheduler {
	scheduler := NewReminderScheduler(store, notifier, bus, time.Minute, 0, nil)
	scheduler.now = func() time.Time { return testNow }
	return scheduler
}

func reminderFixture(store *memStore, start time.Time, status models.SessionStatus) models.Session {
	return store.put(models.Session{
		StudentID:      testStudentID,
		TutorID:        testTutorID,
		Subject:        "Chemistry",
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Hour),
		Status:         status,
		DeliveryType:   models.DeliveryOnline,
	})
}

func TestReminderSweepNotifiesBothParticipantsOnce(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	bus := &recordingBus{}
	scheduler := newTestReminderScheduler(store, notifier, bus)
	due := reminderFixture(store, testNow.Add(2*time.Hour), models.StatusConfirmed)

	sent, err := scheduler.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 reminder, got %d", sent)
	}

	sent, err = scheduler.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if sent != 0 {
		t.Fatalf("expected repeated sweep to send nothing, got %d", sent)
	}

	notifications := notifier.notifications()
	if len(notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %+v", notifications)
	}
	for _, n := range notifications {
		if n.kind != models.EventSessionReminder {
			t.Fatalf("unexpected kind %q", n.kind)
		}
	}
	if events := bus.events(); len(events) != 1 || events[0].event.SessionID != due.ID {
		t.Fatalf("expected one realtime reminder, got %+v", events)
	}

	stored := store.get(due.ID)
	if !stored.Reminder.Sent || stored.Reminder.SentAt == nil || !stored.Reminder.SentAt.Equal(testNow) {
		t.Fatalf("expected reminder flag with timestamp, got %+v", stored.Reminder)
	}
}

func TestReminderSweepSkipsSessionsOutsideWindowOrInactive(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	scheduler := newTestReminderScheduler(store, notifier, nil)

	reminderFixture(store, testNow.Add(25*time.Hour), models.StatusScheduled)
	reminderFixture(store, testNow.Add(-time.Hour), models.StatusScheduled)
	reminderFixture(store, testNow.Add(3*time.Hour), models.StatusCancelled)
	reminderFixture(store, testNow.Add(24*time.Hour), models.StatusScheduled)

	sent, err := scheduler.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected only the session at the window edge, got %d", sent)
	}
}

func TestReminderSweepKeepsClaimWhenNotifierFails(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	scheduler := newTestReminderScheduler(store, notifier, nil)
	due := reminderFixture(store, testNow.Add(time.Hour), models.StatusScheduled)

	if _, err := scheduler.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := scheduler.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}

	if got := len(notifier.notifications()); got != 2 {
		t.Fatalf("expected a single attempt per participant, got %d", got)
	}
	if !store.get(due.ID).Reminder.Sent {
		t.Fatalf("expected reminder to stay claimed")
	}
}

func TestReminderSweepAfterRescheduleSendsFreshReminder(t *testing.T) {
	service, store, _ := newTestSessionService(t)
	notifier := &recordingNotifier{}
	scheduler := newTestReminderScheduler(store, notifier, nil)
	booked := bookOne(t, service, testStudentID, onlineBooking(testNow.Add(2*time.Hour), time.Hour))

	if sent, _ := scheduler.Sweep(context.Background()); sent != 1 {
		t.Fatalf("expected first reminder, got %d", sent)
	}
	if _, err := service.Reschedule(context.Background(), testTutorID, booked.ID, RescheduleSessionInput{
		ScheduledStart: testNow.Add(5 * time.Hour),
		ScheduledEnd:   testNow.Add(6 * time.Hour),
	}); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if sent, _ := scheduler.Sweep(context.Background()); sent != 1 {
		t.Fatalf("expected a fresh reminder after reschedule, got %d", sent)
	}
}

func TestReminderSchedulerSweepsOnTick(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{onHit: make(chan struct{}, 1)}
	scheduler := newTestReminderScheduler(store, notifier, nil)
	ticker := newManualTicker()
	scheduler.loop.tickerFactory = func(time.Duration) workerTicker { return ticker }
	reminderFixture(store, testNow.Add(time.Hour), models.StatusScheduled)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer scheduler.Stop()

	if err := scheduler.Start(ctx); !errors.Is(err, ErrWorkerAlreadyStarted) {
		t.Fatalf("expected already started error, got %v", err)
	}

	ticker.ch <- testNow
	select {
	case <-notifier.onHit:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reminder")
	}
}
