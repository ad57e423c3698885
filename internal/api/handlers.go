package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

// AppointmentService is the part of *appointment.Service the handlers use.
type AppointmentService interface {
	CreateAppointment(ctx context.Context, in appointment.CreateInput, actor appointment.Actor) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, id int64, in appointment.UpdateInput, actor appointment.Actor) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id int64, actor appointment.Actor) (*appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64, actor appointment.Actor) error
	GetAppointment(ctx context.Context, id int64, actor appointment.Actor) (*appointment.AppointmentDetail, error)
	ListAppointments(ctx context.Context, f appointment.ListFilter, actor appointment.Actor) ([]appointment.AppointmentDetail, error)
	StaffCalendar(ctx context.Context, staffID int64, year int, month time.Month, actor appointment.Actor) (*appointment.Staff, []appointment.AppointmentDetail, error)
	CheckConflict(ctx context.Context, q appointment.ConflictQuery) (appointment.ConflictReport, error)
	AvailableSlots(ctx context.Context, q appointment.SlotQuery) ([]string, error)
	ServiceDuration(ctx context.Context, serviceID int64) (int, error)
}

var _ AppointmentService = (*appointment.Service)(nil)

type Handler struct {
	svc     AppointmentService
	log     *zap.Logger
	loc     *time.Location
	present presenter
	now     func() time.Time
}

func NewHandler(svc AppointmentService, loc *time.Location, log *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, log: log, loc: loc, present: presenter{loc: loc}, now: time.Now}
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointment.CreateInput
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), req, ActorFrom(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.present.appointment(appt))
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f appointment.ListFilter

	if s := q.Get("status"); s != "" {
		st := appointment.Status(s)
		f.Status = &st
	}
	if d := q.Get("date"); d != "" {
		date, err := appointment.ParseDate(d, h.loc)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		f.Date = &date
	}
	if s := q.Get("staff_id"); s != "" {
		id, ok := parseID(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a positive integer")
			return
		}
		f.StaffID = &id
	}
	f.Search = strings.TrimSpace(q.Get("search"))

	var ok bool
	if f.Limit, ok = parseQueryInt(r, "limit", 0); !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}
	if f.Offset, ok = parseQueryInt(r, "offset", 0); !ok {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
		return
	}

	list, err := h.svc.ListAppointments(r.Context(), f, ActorFrom(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, ListAppointmentsResponse{
		Data:   h.present.details(list),
		Limit:  min(limit, 100),
		Offset: max(f.Offset, 0),
	})
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return
	}

	detail, err := h.svc.GetAppointment(r.Context(), id, ActorFrom(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.detail(detail))
}

func (h *Handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return
	}

	var req appointment.UpdateInput
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.svc.UpdateAppointment(r.Context(), id, req, ActorFrom(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.appointment(appt))
}

func (h *Handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return
	}

	appt, err := h.svc.CancelAppointment(r.Context(), id, ActorFrom(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.appointment(appt))
}

func (h *Handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return
	}

	if err := h.svc.DeleteAppointment(r.Context(), id, ActorFrom(r.Context())); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) availableSlots(w http.ResponseWriter, r *http.Request) {
	staffID, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_staff_id", "id must be a positive integer")
		return
	}

	q := r.URL.Query()
	duration, ok := parseQueryInt(r, "duration", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be an integer number of minutes")
		return
	}
	if duration == 0 && q.Get("service_id") != "" {
		serviceID, ok := parseID(q.Get("service_id"))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a positive integer")
			return
		}
		d, err := h.svc.ServiceDuration(r.Context(), serviceID)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		duration = d
	}
	interval, ok := parseQueryInt(r, "interval", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_interval", "interval must be an integer number of minutes")
		return
	}

	date := q.Get("date")
	slots, err := h.svc.AvailableSlots(r.Context(), appointment.SlotQuery{
		StaffID:         staffID,
		Date:            date,
		DurationMinutes: duration,
		IntervalMinutes: interval,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SlotsResponse{StaffID: staffID, Date: date, Duration: duration, Slots: slots})
}

func (h *Handler) checkConflict(w http.ResponseWriter, r *http.Request) {
	staffID, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_staff_id", "id must be a positive integer")
		return
	}

	q := r.URL.Query()
	query := appointment.ConflictQuery{
		StaffID:   staffID,
		Date:      q.Get("date"),
		StartTime: q.Get("start"),
		EndTime:   q.Get("end"),
	}
	if s := q.Get("exclude"); s != "" {
		id, ok := parseID(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_exclude", "exclude must be a positive integer")
			return
		}
		query.ExcludeID = &id
	}

	report, err := h.svc.CheckConflict(r.Context(), query)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ConflictReportResponse{
		Available: report.Available,
		Conflicts: h.present.conflicts(report.Conflicts, showsCustomers(ActorFrom(r.Context()))),
	})
}

func (h *Handler) staffCalendar(w http.ResponseWriter, r *http.Request) {
	staffID, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_staff_id", "id must be a positive integer")
		return
	}

	today := h.now().In(h.loc)
	year, ok := parseQueryInt(r, "year", today.Year())
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_year", "year must be an integer")
		return
	}
	month, ok := parseQueryInt(r, "month", int(today.Month()))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_month", "month must be an integer")
		return
	}

	staff, list, err := h.svc.StaffCalendar(r.Context(), staffID, year, time.Month(month), ActorFrom(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CalendarResponse{
		Staff:        StaffSummary{ID: staff.ID, Name: staff.Name},
		Year:         year,
		Month:        month,
		Appointments: h.present.details(list),
	})
}
