package appointment

import (
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusPending, StatusConfirmed, StatusInProgress:
		return false
	}
	return true
}

// CanTransitionTo encodes the lifecycle:
//
//	pending → confirmed → in_progress → completed
//	pending, confirmed, in_progress → cancelled
//
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return s.IsValid()
	}
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted || next == StatusCancelled
	case StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

type Role string

const (
	RoleGuest    Role = "guest"
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleGuest, RoleCustomer, RoleStaff, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Actor is the caller on whose behalf an operation runs. A guest has no UserID.
type Actor struct {
	UserID  *int64
	Role    Role
	SalonID *int64 // managers only
}

func Guest() Actor { return Actor{Role: RoleGuest} }

func Customer(userID int64) Actor { return Actor{UserID: &userID, Role: RoleCustomer} }

func Admin(userID int64) Actor { return Actor{UserID: &userID, Role: RoleAdmin} }

func Manager(userID, salonID int64) Actor {
	return Actor{UserID: &userID, Role: RoleManager, SalonID: &salonID}
}

func (a Actor) IsGuest() bool { return a.UserID == nil }

type Staff struct {
	ID      int64
	SalonID int64
	Name    string
}

type SalonService struct {
	ID              int64
	SalonID         int64
	Name            string
	DurationMinutes int
}

type Appointment struct {
	ID          int64
	StaffID     int64
	UserID      *int64
	ServiceID   int64
	PhoneNumber *string
	Status      Status
	Date        time.Time
	StartTime   time.Time
	EndTime     time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [i.Start, i.End) and [o.Start, o.End) intersect.
// Touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Conflict is an existing appointment that overlaps a candidate interval.
type Conflict struct {
	ID           int64
	StartTime    time.Time
	EndTime      time.Time
	ServiceName  string
	CustomerName string
	Status       Status
}

type ConflictReport struct {
	Available bool
	Conflicts []Conflict
}

// Window is an opening window in wall-clock HH:MM times for one date.
type Window struct {
	Open  string
	Close string
}

// AppointmentDetail is an appointment joined with the names the list views show.
type AppointmentDetail struct {
	Appointment
	SalonID      int64
	StaffName    string
	ServiceName  string
	CustomerName string
}

type ListFilter struct {
	Status  *Status
	Date    *time.Time
	From    *time.Time // inclusive, on the appointment date
	To      *time.Time // exclusive, on the appointment date
	StaffID *int64
	Search  string
	Limit   int
	Offset  int
	// OrderAsc lists chronologically instead of newest first.
	OrderAsc bool

	// Set by the service from the actor, never by callers.
	UserID  *int64
	SalonID *int64
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}

// Action names a lifecycle change for notifications and events.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionCancelled Action = "cancelled"
	ActionDeleted   Action = "deleted"
)
