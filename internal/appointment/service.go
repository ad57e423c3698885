package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/config"
	"github.com/hackgods/salon-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/salon-appointment-scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentUpdated   = "APPOINTMENT_UPDATED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"
	EventAppointmentExpired   = "APPOINTMENT_EXPIRED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	calendarLimit    = 1000
)

// Service is the appointment lifecycle manager. Every write that can change
// an appointment's interval runs its conflict check and its write inside one
// critical section per staff member.
type Service struct {
	repo      Repository
	checker   *Checker
	slots     *SlotEnumerator
	locker    redisclient.Locker
	notifier  Notifier
	publisher EventPublisher
	metrics   *metrics.Collector
	log       *zap.Logger
	loc       *time.Location
	now       func() time.Time

	stalePendingAfter time.Duration
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithPublisher(p EventPublisher) Option { return func(s *Service) { s.publisher = p } }

func WithMetrics(m *metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, hours WorkingHoursProvider, locker redisclient.Locker, cfg config.Config, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:              repo,
		checker:           NewChecker(repo),
		locker:            locker,
		log:               log,
		loc:               cfg.Location(),
		now:               time.Now,
		stalePendingAfter: cfg.StalePendingAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.slots = NewSlotEnumerator(repo, hours, s.loc, cfg.SlotInterval)
	return s
}

// CreateAppointment validates the booking, then checks for conflicts and
// inserts it while holding the staff lock.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput, actor Actor) (*Appointment, error) {
	owner, err := bookingOwner(in.UserID, actor)
	if err != nil {
		return nil, err
	}

	d, err := validateCreate(in, owner == nil, s.now(), s.loc)
	if err != nil {
		return nil, err
	}

	staff, err := s.repo.GetStaff(ctx, in.StaffID)
	if err != nil {
		return nil, lookupErr("load staff", err, ErrStaffNotFound)
	}
	svc, err := s.repo.GetService(ctx, in.ServiceID)
	if err != nil {
		return nil, lookupErr("load service", err, ErrServiceNotFound)
	}
	if staff.SalonID != svc.SalonID {
		return nil, &ValidationError{
			Fields: []FieldError{{Field: "service_id", Message: "must belong to the staff member's salon"}},
			Err:    ErrCrossSalon,
		}
	}
	if actor.Role == RoleManager && (actor.SalonID == nil || *actor.SalonID != staff.SalonID) {
		return nil, ErrAccessDenied
	}

	appt := &Appointment{
		StaffID:     staff.ID,
		UserID:      owner,
		ServiceID:   svc.ID,
		PhoneNumber: d.phone,
		Status:      d.status,
		Date:        d.date,
		StartTime:   d.start,
		EndTime:     d.end,
	}

	var created *Appointment
	err = s.withStaffLock(ctx, staff.ID, func(lockCtx context.Context) error {
		return s.repo.InStaffTx(lockCtx, staff.ID, func(tx Repository) error {
			report, err := check(lockCtx, tx, staff.ID, appt.StartTime, appt.EndTime, nil)
			if err != nil {
				return err
			}
			if !report.Available {
				return &ConflictError{Conflicts: report.Conflicts}
			}

			created, err = tx.CreateAppointment(lockCtx, appt)
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		s.recordConflict("create", err)
		return nil, err
	}

	s.metrics.Appointment(string(ActionCreated))
	s.logEvent(ctx, created.ID, EventAppointmentCreated, eventPayload(created, nil))
	s.notify(ctx, ActionCreated, created)

	return created, nil
}

// UpdateAppointment applies a partial update. The appointment is reloaded
// under the staff lock so the merge and the conflict check see the same row.
func (s *Service) UpdateAppointment(ctx context.Context, id int64, in UpdateInput, actor Actor) (*Appointment, error) {
	if err := validateUpdate(in); err != nil {
		return nil, err
	}

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, lookupErr("load appointment", err, ErrAppointmentNotFound)
	}
	if err := authorize(actor, current); err != nil {
		return nil, err
	}

	var before, updated *Appointment
	err = s.withStaffLock(ctx, current.StaffID, func(lockCtx context.Context) error {
		return s.repo.InStaffTx(lockCtx, current.StaffID, func(tx Repository) error {
			fresh, err := tx.GetAppointment(lockCtx, id)
			if err != nil {
				return lookupErr("reload appointment", err, ErrAppointmentNotFound)
			}

			next, moved, err := s.applyUpdate(fresh.Appointment, in)
			if err != nil {
				return err
			}

			if moved && next.Status != StatusCancelled {
				report, err := check(lockCtx, tx, next.StaffID, next.StartTime, next.EndTime, &next.ID)
				if err != nil {
					return err
				}
				if !report.Available {
					return &ConflictError{Conflicts: report.Conflicts}
				}
			}

			updated, err = tx.UpdateAppointment(lockCtx, &next)
			if err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}
			before = &fresh.Appointment
			return nil
		})
	})
	if err != nil {
		s.recordConflict("update", err)
		return nil, err
	}

	action := ActionUpdated
	eventType := EventAppointmentUpdated
	if before.Status != updated.Status {
		s.metrics.Transition(string(before.Status), string(updated.Status))
		if updated.Status == StatusCancelled {
			action, eventType = ActionCancelled, EventAppointmentCancelled
		}
	}

	s.metrics.Appointment(string(action))
	s.logEvent(ctx, updated.ID, eventType, eventPayload(updated, before))
	s.notify(ctx, action, updated)

	return updated, nil
}

// applyUpdate merges in onto a. moved reports whether the interval changed.
func (s *Service) applyUpdate(a Appointment, in UpdateInput) (next Appointment, moved bool, err error) {
	next = a
	if in.Status != nil {
		if !a.Status.CanTransitionTo(*in.Status) {
			return a, false, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, a.Status, *in.Status)
		}
		next.Status = *in.Status
	}
	if !in.changesTime() {
		return next, false, nil
	}
	if a.Status.IsTerminal() {
		return a, false, invalid("status", "a completed or cancelled appointment cannot be rescheduled")
	}

	date := time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, s.loc)
	if in.Date != nil {
		if date, err = ParseDate(*in.Date, s.loc); err != nil {
			return a, false, err
		}
	}
	startClock := a.StartTime.In(s.loc).Format(clockLayout)
	if in.StartTime != nil {
		startClock = *in.StartTime
	}
	endClock := a.EndTime.In(s.loc).Format(clockLayout)
	if in.EndTime != nil {
		endClock = *in.EndTime
	}

	start := combine(date, startClock, s.loc)
	end := combine(date, endClock, s.loc)
	if !start.Before(end) {
		return a, false, invalid("start_time", "must be earlier than end_time")
	}

	moved = !start.Equal(a.StartTime) || !end.Equal(a.EndTime)
	if moved {
		if err := checkInterval(date, start, end, s.now(), s.loc); err != nil {
			return a, false, err
		}
	}

	next.Date, next.StartTime, next.EndTime = date, start, end
	return next, moved, nil
}

// CancelAppointment moves an appointment to cancelled through the state machine.
func (s *Service) CancelAppointment(ctx context.Context, id int64, actor Actor) (*Appointment, error) {
	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, lookupErr("load appointment", err, ErrAppointmentNotFound)
	}
	if err := authorize(actor, current); err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(StatusCancelled) || current.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, StatusCancelled)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// the row moved on between load and update
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.metrics.Transition(string(current.Status), string(StatusCancelled))
	s.metrics.Appointment(string(ActionCancelled))
	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, eventPayload(updated, &current.Appointment))
	s.notify(ctx, ActionCancelled, updated)

	return updated, nil
}

// DeleteAppointment removes the appointment row.
func (s *Service) DeleteAppointment(ctx context.Context, id int64, actor Actor) error {
	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return lookupErr("load appointment", err, ErrAppointmentNotFound)
	}
	if err := authorize(actor, current); err != nil {
		return err
	}

	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return lookupErr("delete appointment", err, ErrAppointmentNotFound)
	}

	s.metrics.Appointment(string(ActionDeleted))
	s.logEvent(ctx, id, EventAppointmentDeleted, eventPayload(&current.Appointment, nil))
	s.notify(ctx, ActionDeleted, &current.Appointment)

	return nil
}

// GetAppointment retrieves an appointment the actor may see.
func (s *Service) GetAppointment(ctx context.Context, id int64, actor Actor) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, lookupErr("get appointment", err, ErrAppointmentNotFound)
	}
	if err := authorize(actor, detail); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListAppointments returns the appointments visible to actor, newest first.
// Customers only ever see their own; managers only their salon's.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter, actor Actor) ([]AppointmentDetail, error) {
	f.UserID, f.SalonID = nil, nil
	switch actor.Role {
	case RoleAdmin, RoleStaff:
	case RoleManager:
		if actor.SalonID == nil {
			return nil, ErrAccessDenied
		}
		f.SalonID = actor.SalonID
	case RoleCustomer:
		if actor.UserID == nil {
			return nil, ErrAccessDenied
		}
		f.UserID = actor.UserID
	case RoleGuest:
		return nil, ErrAccessDenied
	default:
		return nil, ErrAccessDenied
	}

	if f.Status != nil && !f.Status.IsValid() {
		return nil, invalid("status", "is not a valid status")
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

// StaffCalendar lists one staff member's appointments for a month in
// chronological order. Managers only see staff of their own salon.
func (s *Service) StaffCalendar(ctx context.Context, staffID int64, year int, month time.Month, actor Actor) (*Staff, []AppointmentDetail, error) {
	if month < time.January || month > time.December {
		return nil, nil, invalid("month", "must be between 1 and 12")
	}
	staff, err := s.repo.GetStaff(ctx, staffID)
	if err != nil {
		return nil, nil, lookupErr("load staff", err, ErrStaffNotFound)
	}
	if err := authorizeStaff(actor, staff); err != nil {
		return nil, nil, err
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 1, 0)
	list, err := s.repo.ListAppointments(ctx, ListFilter{
		StaffID:  &staffID,
		From:     &from,
		To:       &to,
		Limit:    calendarLimit,
		OrderAsc: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list staff calendar: %w", err)
	}
	return staff, list, nil
}

type ConflictQuery struct {
	StaffID   int64
	Date      string
	StartTime string
	EndTime   string
	ExcludeID *int64
}

// CheckConflict parses the wall-clock query and runs the conflict checker.
func (s *Service) CheckConflict(ctx context.Context, q ConflictQuery) (ConflictReport, error) {
	date, err := ParseDate(q.Date, s.loc)
	if err != nil {
		return ConflictReport{}, err
	}
	start, err := ParseClock(date, q.StartTime, "start_time", s.loc)
	if err != nil {
		return ConflictReport{}, err
	}
	end, err := ParseClock(date, q.EndTime, "end_time", s.loc)
	if err != nil {
		return ConflictReport{}, err
	}
	if !start.Before(end) {
		return ConflictReport{}, invalid("start_time", "must be earlier than end_time")
	}
	if _, err := s.repo.GetStaff(ctx, q.StaffID); err != nil {
		return ConflictReport{}, lookupErr("load staff", err, ErrStaffNotFound)
	}
	return s.checker.Check(ctx, q.StaffID, start, end, q.ExcludeID)
}

// AvailableSlots delegates to the slot enumerator.
func (s *Service) AvailableSlots(ctx context.Context, q SlotQuery) ([]string, error) {
	slots, err := s.slots.AvailableSlots(ctx, q)
	if err != nil {
		return nil, err
	}
	s.metrics.SlotQuery()
	return slots, nil
}

// ServiceDuration returns the configured duration of a salon service.
func (s *Service) ServiceDuration(ctx context.Context, serviceID int64) (int, error) {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return 0, lookupErr("load service", err, ErrServiceNotFound)
	}
	return svc.DurationMinutes, nil
}

// ExpireStalePendingAppointments is intended to be called by the worker
// periodically. It cancels pending appointments whose start passed more than
// the configured grace period ago.
func (s *Service) ExpireStalePendingAppointments(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.stalePendingAfter)
	stale, err := s.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	expired := 0
	for _, appt := range stale {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusCancelled)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Warn("failed to expire appointment", zap.Int64("appointment_id", appt.ID), zap.Error(err))
			}
			continue
		}
		expired++
		s.metrics.Transition(string(StatusPending), string(StatusCancelled))
		s.logEvent(ctx, appt.ID, EventAppointmentExpired, map[string]any{
			"reason":     "pending_past_start",
			"start_time": appt.StartTime,
		})
	}

	return expired, nil
}

func (s *Service) withStaffLock(ctx context.Context, staffID int64, fn func(ctx context.Context) error) error {
	err := s.locker.WithStaffLock(ctx, staffID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.metrics.Contention()
		return ErrStaffBusy
	}
	return err
}

func (s *Service) recordConflict(op string, err error) {
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		return
	}
	layer := "checker"
	if len(cerr.Conflicts) == 0 {
		layer = "constraint"
	}
	s.metrics.Conflict(op, layer)
}

func (s *Service) logEvent(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.Int64("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.log.Warn("failed to publish event",
				zap.String("event", eventType),
				zap.Int64("appointment_id", appointmentID),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) notify(ctx context.Context, action Action, appt *Appointment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, action, appt); err != nil {
		s.log.Warn("failed to send appointment notification",
			zap.String("action", string(action)),
			zap.Int64("appointment_id", appt.ID),
			zap.Error(err),
		)
	}
}

func eventPayload(a *Appointment, before *Appointment) map[string]any {
	p := map[string]any{
		"staff_id":   a.StaffID,
		"service_id": a.ServiceID,
		"status":     a.Status,
		"date":       a.Date.Format(dateLayout),
		"start_time": a.StartTime,
		"end_time":   a.EndTime,
	}
	if before != nil {
		p["previous_status"] = before.Status
		p["previous_start_time"] = before.StartTime
		p["previous_end_time"] = before.EndTime
	}
	return p
}

// bookingOwner decides whose appointment a new booking is. Customers always
// book for themselves, staff may book for any user or for a guest phone.
func bookingOwner(requested *int64, actor Actor) (*int64, error) {
	switch actor.Role {
	case RoleGuest:
		if requested != nil {
			return nil, ErrAccessDenied
		}
		return nil, nil
	case RoleCustomer:
		if actor.UserID == nil {
			return nil, ErrAccessDenied
		}
		if requested != nil && *requested != *actor.UserID {
			return nil, ErrAccessDenied
		}
		return actor.UserID, nil
	case RoleStaff, RoleManager, RoleAdmin:
		return requested, nil
	}
	return nil, ErrAccessDenied
}

// authorize applies the read/write rule shared by get, list, update, cancel
// and delete.
func authorize(actor Actor, a *AppointmentDetail) error {
	switch actor.Role {
	case RoleAdmin, RoleStaff:
		return nil
	case RoleManager:
		if actor.SalonID != nil && *actor.SalonID == a.SalonID {
			return nil
		}
	case RoleCustomer:
		if actor.UserID != nil && a.UserID != nil && *actor.UserID == *a.UserID {
			return nil
		}
	case RoleGuest:
	}
	return ErrAccessDenied
}

// authorizeStaff decides who may read a staff member's whole calendar.
func authorizeStaff(actor Actor, staff *Staff) error {
	switch actor.Role {
	case RoleAdmin, RoleStaff:
		return nil
	case RoleManager:
		if actor.SalonID != nil && *actor.SalonID == staff.SalonID {
			return nil
		}
	}
	return ErrAccessDenied
}

// lookupErr keeps not-found sentinels unwrapped-comparable and adds context
// to everything else.
func lookupErr(op string, err, notFound error) error {
	if errors.Is(err, notFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
