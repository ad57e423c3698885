package api

import (
	"time"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

type AppointmentResponse struct {
	ID          int64     `json:"id"`
	StaffID     int64     `json:"staff_id"`
	UserID      *int64    `json:"user_id,omitempty"`
	ServiceID   int64     `json:"service_id"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	Status      string    `json:"status"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	SalonID      int64  `json:"salon_id"`
	StaffName    string `json:"staff_name"`
	ServiceName  string `json:"service_name"`
	CustomerName string `json:"customer_name"`
}

type ListAppointmentsResponse struct {
	Data   []AppointmentDetailResponse `json:"data"`
	Limit  int                         `json:"limit"`
	Offset int                         `json:"offset"`
}

type ConflictResponse struct {
	ID           int64  `json:"id"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	ServiceName  string `json:"service_name"`
	CustomerName string `json:"customer_name,omitempty"`
	Status       string `json:"status"`
}

type ConflictReportResponse struct {
	Available bool               `json:"available"`
	Conflicts []ConflictResponse `json:"conflicts"`
}

type SlotsResponse struct {
	StaffID  int64    `json:"staff_id"`
	Date     string   `json:"date"`
	Duration int      `json:"duration"`
	Slots    []string `json:"available_slots"`
}

type StaffSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CalendarResponse struct {
	Staff        StaffSummary                `json:"staff"`
	Year         int                         `json:"year"`
	Month        int                         `json:"month"`
	Appointments []AppointmentDetailResponse `json:"appointments"`
}

type FieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error     string               `json:"error"`
	Details   string               `json:"details,omitempty"`
	Fields    []FieldErrorResponse `json:"fields,omitempty"`
	Conflicts []ConflictResponse   `json:"conflicts,omitempty"`
}

// presenter renders domain values in the salon's time zone.
type presenter struct {
	loc *time.Location
}

func (p presenter) appointment(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		StaffID:     a.StaffID,
		UserID:      a.UserID,
		ServiceID:   a.ServiceID,
		PhoneNumber: a.PhoneNumber,
		Status:      string(a.Status),
		Date:        a.StartTime.In(p.loc).Format("2006-01-02"),
		StartTime:   a.StartTime.In(p.loc).Format("15:04"),
		EndTime:     a.EndTime.In(p.loc).Format("15:04"),
		StartAt:     a.StartTime,
		EndAt:       a.EndTime,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func (p presenter) detail(d *appointment.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: p.appointment(&d.Appointment),
		SalonID:             d.SalonID,
		StaffName:           d.StaffName,
		ServiceName:         d.ServiceName,
		CustomerName:        d.CustomerName,
	}
}

func (p presenter) details(list []appointment.AppointmentDetail) []AppointmentDetailResponse {
	out := make([]AppointmentDetailResponse, 0, len(list))
	for i := range list {
		out = append(out, p.detail(&list[i]))
	}
	return out
}

// conflicts renders blocking appointments. Customer names are left out
// unless withNames is set.
func (p presenter) conflicts(list []appointment.Conflict, withNames bool) []ConflictResponse {
	out := make([]ConflictResponse, 0, len(list))
	for _, c := range list {
		cr := ConflictResponse{
			ID:          c.ID,
			StartTime:   c.StartTime.In(p.loc).Format("15:04"),
			EndTime:     c.EndTime.In(p.loc).Format("15:04"),
			ServiceName: c.ServiceName,
			Status:      string(c.Status),
		}
		if withNames {
			cr.CustomerName = c.CustomerName
		}
		out = append(out, cr)
	}
	return out
}

// showsCustomers reports whether the caller works at a salon and may see
// who booked a conflicting slot.
func showsCustomers(actor appointment.Actor) bool {
	switch actor.Role {
	case appointment.RoleStaff, appointment.RoleManager, appointment.RoleAdmin:
		return true
	}
	return false
}
