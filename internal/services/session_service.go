package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/TutorAppBack/internal/models"
	"github.com/saeid-a/TutorAppBack/internal/repository"
	"github.com/saeid-a/TutorAppBack/pkg/timewindow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	earlyStartAllowance    = 15 * time.Minute
	lateCancellationWindow = 24 * time.Hour
)

type userDirectory interface {
	GetRole(ctx context.Context, userID int64) (models.Role, error)
	GetTutorAvailability(ctx context.Context, tutorID int64) (*models.TutorAvailability, error)
	IncrementStats(ctx context.Context, userID int64, delta models.StatsDelta) error
}

type SessionService struct {
	store          repository.SessionStore
	users          userDirectory
	conflicts      *ConflictDetector
	availability   *AvailabilityChecker
	meetingBaseURL string
	logger         *log.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

func NewSessionService(
	store repository.SessionStore,
	users userDirectory,
	meetingBaseURL string,
	logger *log.Logger,
) *SessionService {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &SessionService{
		store:          store,
		users:          users,
		conflicts:      NewConflictDetector(),
		availability:   NewAvailabilityChecker(),
		meetingBaseURL: strings.TrimRight(meetingBaseURL, "/"),
		logger:         logger,
		tracer:         otel.Tracer("github.com/saeid-a/TutorAppBack/internal/services"),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type RecurrenceInput struct {
	Frequency string
	EndDate   time.Time
}

type BookSessionInput struct {
	TutorID        int64
	Subject        string
	Description    *string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	DeliveryType   models.DeliveryType
	Location       models.Location
	Price          *float64
	Notes          *string
	Recurrence     *RecurrenceInput
}

type RescheduleSessionInput struct {
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	Reason         *string
}

type AddMaterialInput struct {
	Name string
	URL  string
	Type string
}

type ListSessionsFilter struct {
	Status    string
	Timeframe string
	As        string
	SeriesID  int64
}

// AvailabilityReport answers "could this tutor take this window" without
// exposing the other sessions themselves.
type AvailabilityReport struct {
	Available      bool                `json:"available"`
	WithinTemplate bool                `json:"within_template"`
	Conflicts      []timewindow.Window `json:"conflicts"`
}

// Book creates a session, or a whole recurring series, for the calling
// student. Every occurrence is checked for conflicts and tutor
// availability while both participants are locked; nothing is persisted
// unless all of them pass.
func (s *SessionService) Book(
	ctx context.Context,
	actorID int64,
	role models.Role,
	input BookSessionInput,
) (details []models.SessionDetail, err error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.Book", trace.WithAttributes(
		attribute.Int64("session.student_id", actorID),
		attribute.Int64("session.tutor_id", input.TutorID),
	))
	defer func() { finishSpan(span, err) }()

	if !role.CanLearn() {
		return nil, ErrForbidden
	}
	base, err := s.validateBooking(actorID, input)
	if err != nil {
		return nil, err
	}

	tutorRole, err := s.users.GetRole(ctx, input.TutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTutorNotFound
		}
		return nil, err
	}
	if !tutorRole.CanTutor() {
		return nil, invalidInput("user %d does not tutor", input.TutorID)
	}

	availability, err := s.users.GetTutorAvailability(ctx, input.TutorID)
	if err != nil {
		return nil, err
	}

	windows := []timewindow.Window{base}
	var frequency *string
	var endDate *time.Time
	if input.Recurrence != nil {
		freq, err := timewindow.ParseFrequency(input.Recurrence.Frequency)
		if err != nil {
			return nil, invalidInput("%v", err)
		}
		loc, err := loadTimezone(availability.Timezone)
		if err != nil {
			return nil, err
		}
		windows, err = ExpandRecurrence(base, RecurrenceRule{
			Frequency: freq,
			EndDate:   input.Recurrence.EndDate.UTC(),
			Location:  loc,
		})
		if err != nil {
			return nil, err
		}
		value := string(freq)
		frequency = &value
		end := input.Recurrence.EndDate.UTC()
		endDate = &end
	}
	span.SetAttributes(attribute.Int("session.occurrences", len(windows)))

	created := make([]models.Session, 0, len(windows))
	err = s.store.WithParticipantLock(ctx, []int64{actorID, input.TutorID}, func(store repository.SessionStore) error {
		created = created[:0]
		conflicting, err := s.conflicts.FindSeriesConflicts(ctx, store, actorID, input.TutorID, windows, 0)
		if err != nil {
			return err
		}
		if len(conflicting) > 0 {
			return &SchedulingConflictError{Sessions: conflicting}
		}

		for _, window := range windows {
			fits, err := s.availability.Fits(*availability, window)
			if err != nil {
				return err
			}
			if !fits {
				return fmt.Errorf("%w: %s", ErrTutorUnavailable, window)
			}
		}

		var parentID *int64
		for i, window := range windows {
			session := s.newSession(actorID, input, window)
			session.Recurrence = models.Recurrence{
				IsRecurring:     input.Recurrence != nil,
				Frequency:       frequency,
				EndDate:         endDate,
				ParentSessionID: parentID,
			}

			var events []models.SessionEvent
			if i == 0 {
				events = append(events, models.SessionEvent{
					Kind:       models.EventSessionBooked,
					ActorID:    actorID,
					Recipients: []int64{actorID, input.TutorID},
					Payload: map[string]any{
						"subject":         session.Subject,
						"scheduled_start": session.ScheduledStart,
						"scheduled_end":   session.ScheduledEnd,
						"occurrences":     len(windows),
					},
				})
			}

			saved, err := store.Create(ctx, session, events...)
			if err != nil {
				return err
			}
			if i == 0 {
				id := saved.ID
				parentID = &id
			}
			created = append(created, *saved)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrOverlap) {
			return nil, s.overlapConflict(ctx, actorID, input.TutorID, windows, 0)
		}
		return nil, err
	}

	details = make([]models.SessionDetail, 0, len(created))
	for _, session := range created {
		details = append(details, models.NewSessionDetail(session))
	}
	return details, nil
}

func (s *SessionService) validateBooking(studentID int64, input BookSessionInput) (timewindow.Window, error) {
	if input.TutorID <= 0 {
		return timewindow.Window{}, invalidInput("tutor_id is required")
	}
	if input.TutorID == studentID {
		return timewindow.Window{}, invalidInput("cannot book a session with yourself")
	}
	if strings.TrimSpace(input.Subject) == "" {
		return timewindow.Window{}, invalidInput("subject is required")
	}
	window, err := s.futureWindow(input.ScheduledStart, input.ScheduledEnd)
	if err != nil {
		return timewindow.Window{}, err
	}
	switch input.DeliveryType {
	case models.DeliveryOnline:
	case models.DeliveryOffline:
		if input.Location.Address == nil || strings.TrimSpace(*input.Location.Address) == "" {
			return timewindow.Window{}, invalidInput("offline sessions require an address")
		}
	default:
		return timewindow.Window{}, invalidInput("delivery_type must be online or offline")
	}
	if input.Price != nil && *input.Price < 0 {
		return timewindow.Window{}, invalidInput("price must not be negative")
	}
	return window, nil
}

func (s *SessionService) futureWindow(start, end time.Time) (timewindow.Window, error) {
	window, err := timewindow.New(start, end)
	if err != nil {
		return timewindow.Window{}, invalidInput("%v", err)
	}
	if !window.Start.After(s.now()) {
		return timewindow.Window{}, invalidInput("session must start in the future")
	}
	return window.UTC(), nil
}

func (s *SessionService) newSession(studentID int64, input BookSessionInput, window timewindow.Window) *models.Session {
	subject := strings.TrimSpace(input.Subject)
	session := &models.Session{
		StudentID:      studentID,
		TutorID:        input.TutorID,
		Subject:        subject,
		Description:    input.Description,
		ScheduledStart: window.Start,
		ScheduledEnd:   window.End,
		Status:         models.StatusScheduled,
		DeliveryType:   input.DeliveryType,
		Price:          input.Price,
		Materials:      []models.Material{},
		Notes:          models.SessionNotes{Student: input.Notes},
	}

	switch input.DeliveryType {
	case models.DeliveryOnline:
		link := s.meetingLink()
		session.Location = models.Location{Details: input.Location.Details, MeetingLink: &link}
	case models.DeliveryOffline:
		session.Location = models.Location{
			Details:     input.Location.Details,
			Address:     input.Location.Address,
			Coordinates: input.Location.Coordinates,
		}
	}
	return session
}

func (s *SessionService) meetingLink() string {
	return s.meetingBaseURL + "/" + uuid.NewString()
}

// Confirm is the tutor accepting a scheduled session.
func (s *SessionService) Confirm(ctx context.Context, actorID, sessionID int64) (detail *models.SessionDetail, err error) {
	ctx, span := s.startSessionSpan(ctx, "SessionService.Confirm", actorID, sessionID)
	defer func() { finishSpan(span, err) }()

	session, err := s.loadForParticipant(ctx, s.store, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TutorID != actorID {
		return nil, ErrForbidden
	}
	if err := transition(session, models.StatusConfirmed, "confirm"); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, session, models.SessionEvent{
		Kind:       models.EventSessionConfirmed,
		ActorID:    actorID,
		Recipients: []int64{session.StudentID},
		Payload:    sessionPayload(session),
	})
	if err != nil {
		return nil, err
	}
	result := models.NewSessionDetail(*updated)
	return &result, nil
}

// Reschedule moves a session to a new window and reopens confirmation.
func (s *SessionService) Reschedule(
	ctx context.Context,
	actorID int64,
	sessionID int64,
	input RescheduleSessionInput,
) (detail *models.SessionDetail, err error) {
	ctx, span := s.startSessionSpan(ctx, "SessionService.Reschedule", actorID, sessionID)
	defer func() { finishSpan(span, err) }()

	window, err := s.futureWindow(input.ScheduledStart, input.ScheduledEnd)
	if err != nil {
		return nil, err
	}
	session, err := s.loadForParticipant(ctx, s.store, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(models.StatusScheduled) {
		return nil, invalidState(session.Status, "reschedule")
	}

	var updated *models.Session
	err = s.store.WithParticipantLock(ctx, session.Participants(), func(store repository.SessionStore) error {
		current, err := s.loadForParticipant(ctx, store, actorID, sessionID)
		if err != nil {
			return err
		}
		if err := transition(current, models.StatusScheduled, "reschedule"); err != nil {
			return err
		}

		conflicts, err := s.conflicts.FindConflicts(ctx, store, current.StudentID, current.TutorID, window, current.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &SchedulingConflictError{Sessions: conflicts}
		}

		previous := timewindow.Window{Start: current.ScheduledStart, End: current.ScheduledEnd}
		current.ScheduledStart = window.Start
		current.ScheduledEnd = window.End
		current.Reminder = models.Reminder{}

		note := fmt.Sprintf("rescheduled by user %d from %s to %s", actorID, previous, window)
		if input.Reason != nil && strings.TrimSpace(*input.Reason) != "" {
			note += ": " + strings.TrimSpace(*input.Reason)
		}
		current.Notes.Admin = appendNote(current.Notes.Admin, note)

		payload := sessionPayload(current)
		payload["previous_start"] = previous.Start
		payload["previous_end"] = previous.End
		updated, err = store.Update(ctx, current, models.SessionEvent{
			Kind:       models.EventSessionRescheduled,
			ActorID:    actorID,
			Recipients: []int64{current.Counterpart(actorID)},
			Payload:    payload,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrOverlap) {
			return nil, s.overlapConflict(ctx, session.StudentID, session.TutorID, []timewindow.Window{window}, session.ID)
		}
		return nil, err
	}
	result := models.NewSessionDetail(*updated)
	return &result, nil
}

// overlapConflict reloads the sessions behind an exclusion constraint
// violation, which a concurrent writer committed after the locked check.
func (s *SessionService) overlapConflict(
	ctx context.Context,
	studentID int64,
	tutorID int64,
	windows []timewindow.Window,
	excludeSessionID int64,
) error {
	conflicting, err := s.conflicts.FindSeriesConflicts(ctx, s.store, studentID, tutorID, windows, excludeSessionID)
	if err != nil {
		return err
	}
	return &SchedulingConflictError{Sessions: conflicting}
}

// transition moves session to next, or fails with ErrInvalidStateTransition
// when the lifecycle does not allow it.
func transition(session *models.Session, next models.SessionStatus, operation string) error {
	if !session.Status.CanTransitionTo(next) {
		return invalidState(session.Status, operation)
	}
	session.Status = next
	return nil
}

func (s *SessionService) Cancel(
	ctx context.Context,
	actorID int64,
	sessionID int64,
	reason string,
) (detail *models.SessionDetail, err error) {
	ctx, span := s.startSessionSpan(ctx, "SessionService.Cancel", actorID, sessionID)
	defer func() { finishSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalidInput("cancellation reason is required")
	}

	session, err := s.loadForParticipant(ctx, s.store, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := transition(session, models.StatusCancelled, "cancel"); err != nil {
		return nil, err
	}

	now := s.now()
	session.Cancellation = &models.Cancellation{
		CancelledBy: actorID,
		CancelledAt: now,
		Reason:      reason,
	}
	late := session.ScheduledStart.Sub(now) < lateCancellationWindow
	if late {
		session.Notes.Admin = appendNote(session.Notes.Admin, fmt.Sprintf(
			"late cancellation by user %d, %s before start",
			actorID,
			session.ScheduledStart.Sub(now).Round(time.Minute),
		))
	}

	payload := sessionPayload(session)
	payload["reason"] = reason
	payload["late"] = late
	updated, err := s.store.Update(ctx, session, models.SessionEvent{
		Kind:       models.EventSessionCancelled,
		ActorID:    actorID,
		Recipients: []int64{session.Counterpart(actorID)},
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}
	result := models.NewSessionDetail(*updated)
	return &result, nil
}

func (s *SessionService) Start(ctx context.Context, actorID, sessionID int64) (detail *models.SessionDetail, err error) {
	ctx, span := s.startSessionSpan(ctx, "SessionService.Start", actorID, sessionID)
	defer func() { finishSpan(span, err) }()

	session, err := s.loadForParticipant(ctx, s.store, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := transition(session, models.StatusOngoing, "start"); err != nil {
		return nil, err
	}
	now := s.now()
	if session.ScheduledStart.Sub(now) > earlyStartAllowance {
		return nil, fmt.Errorf("%w: session can start at most %s before its scheduled time",
			ErrInvalidStateTransition, earlyStartAllowance)
	}

	session.ActualStart = &now
	updated, err := s.store.Update(ctx, session, models.SessionEvent{
		Kind:       models.EventSessionStarted,
		ActorID:    actorID,
		Recipients: session.Participants(),
		Payload:    sessionPayload(session),
	})
	if err != nil {
		return nil, err
	}
	result := models.NewSessionDetail(*updated)
	return &result, nil
}

// End completes an ongoing session. Participant stats are updated after
// the transition is stored; a stats failure is logged and does not undo it.
func (s *SessionService) End(
	ctx context.Context,
	actorID int64,
	sessionID int64,
	notes *string,
) (detail *models.SessionDetail, err error) {
	ctx, span := s.startSessionSpan(ctx, "SessionService.End", actorID, sessionID)
	defer func() { finishSpan(span, err) }()

	session, err := s.loadForParticipant(ctx, s.store, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := transition(session, models.StatusCompleted, "end"); err != nil {
		return nil, err
	}

	now := s.now()
	session.ActualEnd = &now
	if notes != nil && strings.TrimSpace(*notes) != "" {
		trimmed := strings.TrimSpace(*notes)
		if actorID == session.StudentID {
			session.Notes.Student = &trimmed
		} else {
			session.Notes.Tutor = &trimmed
		}
	}

	payload := sessionPayload(session)
	payload["duration_minutes"] = int(session.ActualDuration().Round(time.Minute) / time.Minute)
	updated, err := s.store.Update(ctx, session, models.SessionEvent{
		Kind:       models.EventSessionCompleted,
		ActorID:    actorID,
		Recipients: session.Participants(),
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}

	s.recordStats(ctx, updated)
	result := models.NewSessionDetail(*updated)
	return &result, nil
}

func (s *SessionService) recordStats(ctx context.Context, session *models.Session) {
	hours := session.ActualDuration().Hours()
	deltas := map[int64]models.StatsDelta{
		session.StudentID: {Role: models.RoleStudent, Sessions: 1, Hours: hours},
		session.TutorID:   {Role: models.RoleTutor, Sessions: 1, Hours: hours},
	}
	for userID, delta := range deltas {
		if err := s.users.IncrementStats(ctx, userID, delta); err != nil {
			s.logger.Printf("session %d: increment stats for user %d: %v", session.ID, userID, err)
		}
	}
}

func (s *SessionService) AddMaterial(
	ctx context.Context,
	actorID int64,
	sessionID int64,
	input AddMaterialInput,
) (detail *models.SessionDetail, err error) {
	ctx, span := s.startSessionSpan(ctx, "SessionService.AddMaterial", actorID, sessionID)
	defer func() { finishSpan(span, err) }()

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, invalidInput("material name is required")
	}
	parsed, err := url.ParseRequestURI(strings.TrimSpace(input.URL))
	if err != nil || parsed.Host == "" {
		return nil, invalidInput("material url must be absolute")
	}

	session, err := s.loadForParticipant(ctx, s.store, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.AcceptsMaterials() {
		return nil, invalidState(session.Status, "add material to")
	}

	session.Materials = append(session.Materials, models.Material{
		Name:       name,
		URL:        parsed.String(),
		Type:       strings.TrimSpace(input.Type),
		UploadedBy: actorID,
		UploadedAt: s.now(),
	})
	updated, err := s.store.Update(ctx, session)
	if err != nil {
		return nil, err
	}
	result := models.NewSessionDetail(*updated)
	return &result, nil
}

func (s *SessionService) Get(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error) {
	session, err := s.loadForParticipant(ctx, s.store, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	detail := models.NewSessionDetail(*session)
	return &detail, nil
}

func (s *SessionService) List(
	ctx context.Context,
	actorID int64,
	filter ListSessionsFilter,
) ([]models.SessionDetail, error) {
	query := repository.SessionListFilter{
		ActorID:         actorID,
		Timeframe:       strings.TrimSpace(filter.Timeframe),
		ParentSessionID: filter.SeriesID,
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		parsed, ok := models.ParseSessionStatus(status)
		if !ok {
			return nil, invalidInput("unknown status %q", status)
		}
		query.Status = string(parsed)
	}
	if query.Timeframe != "" && query.Timeframe != "upcoming" && query.Timeframe != "past" {
		return nil, invalidInput("timeframe must be upcoming or past")
	}
	switch side := models.Role(strings.TrimSpace(filter.As)); side {
	case "", models.RoleStudent, models.RoleTutor:
		query.Side = side
	default:
		return nil, invalidInput("as must be student or tutor")
	}
	if filter.SeriesID < 0 {
		return nil, invalidInput("series must be a positive id")
	}

	sessions, err := s.store.List(ctx, query)
	if err != nil {
		return nil, err
	}
	details := make([]models.SessionDetail, 0, len(sessions))
	for _, session := range sessions {
		details = append(details, models.NewSessionDetail(session))
	}
	return details, nil
}

// CheckAvailability runs the booking checks for a prospective window
// without persisting anything.
func (s *SessionService) CheckAvailability(
	ctx context.Context,
	actorID int64,
	tutorID int64,
	start time.Time,
	end time.Time,
) (*AvailabilityReport, error) {
	if tutorID <= 0 {
		return nil, invalidInput("tutor_id is required")
	}
	window, err := timewindow.New(start.UTC(), end.UTC())
	if err != nil {
		return nil, invalidInput("%v", err)
	}

	availability, err := s.users.GetTutorAvailability(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	fits, err := s.availability.Fits(*availability, window)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.conflicts.FindConflicts(ctx, s.store, actorID, tutorID, window, 0)
	if err != nil {
		return nil, err
	}
	windows := make([]timewindow.Window, 0, len(conflicts))
	for _, conflict := range conflicts {
		windows = append(windows, timewindow.Window{Start: conflict.ScheduledStart, End: conflict.ScheduledEnd})
	}

	return &AvailabilityReport{
		Available:      fits && len(conflicts) == 0,
		WithinTemplate: fits,
		Conflicts:      windows,
	}, nil
}

func (s *SessionService) loadForParticipant(
	ctx context.Context,
	store repository.SessionStore,
	actorID int64,
	sessionID int64,
) (*models.Session, error) {
	session, err := store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !session.IsParticipant(actorID) {
		return nil, ErrForbidden
	}
	return session, nil
}

func (s *SessionService) startSessionSpan(ctx context.Context, name string, actorID, sessionID int64) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("session.id", sessionID),
		attribute.Int64("session.actor_id", actorID),
	))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func sessionPayload(session *models.Session) map[string]any {
	return map[string]any{
		"subject":         session.Subject,
		"status":          session.Status,
		"scheduled_start": session.ScheduledStart,
		"scheduled_end":   session.ScheduledEnd,
	}
}

func appendNote(existing *string, line string) *string {
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return &line
	}
	joined := *existing + "\n" + line
	return &joined
}
