package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStaffNotFound       = errors.New("staff member not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrUserNotFound        = errors.New("user not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetStaff(ctx context.Context, id int64) (*Staff, error)
	GetService(ctx context.Context, id int64) (*SalonService, error)
	GetUserPhone(ctx context.Context, userID int64) (string, error)

	GetAppointment(ctx context.Context, id int64) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error)

	// FindConflicts returns non-cancelled appointments of staffID overlapping
	// [start, end), ordered by start time, skipping excludeID when set.
	FindConflicts(ctx context.Context, staffID int64, start, end time.Time, excludeID *int64) ([]Conflict, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error

	// Expiry worker
	FindStalePending(ctx context.Context, startedBefore time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error

	// InStaffTx runs fn against a repository bound to one transaction that
	// holds an exclusive lock on staffID until commit. Calls made through the
	// inner repository see each other's writes.
	InStaffTx(ctx context.Context, staffID int64, fn func(tx Repository) error) error
}

// WorkingHoursProvider supplies the opening window for a staff member on a
// date. ok is false when the salon is closed or no hours are configured.
type WorkingHoursProvider interface {
	Window(ctx context.Context, staff *Staff, date time.Time) (w Window, ok bool, err error)
}

// Notifier tells the customer about a lifecycle change.
type Notifier interface {
	Notify(ctx context.Context, action Action, appt *Appointment) error
}

// EventPublisher forwards lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev EventLog) error
}
