// Package apptest provides in-memory collaborators for the appointment
// service. The repository mirrors the Postgres one closely enough that the
// service, the HTTP layer and the simulator can run without a database,
// including the storage-level no-overlap guarantee.
package apptest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

type user struct {
	name  string
	phone string
}

type Repository struct {
	mu       sync.RWMutex
	staffMu  sync.Mutex
	staffTx  map[int64]*sync.Mutex
	nextID   int64
	now      func() time.Time
	staff    map[int64]appointment.Staff
	services map[int64]appointment.SalonService
	users    map[int64]user
	appts    map[int64]appointment.Appointment
	events   []appointment.EventLog

	// FailEvents makes InsertEvent return this error when set.
	FailEvents error
}

func NewRepository() *Repository {
	return &Repository{
		staffTx:  make(map[int64]*sync.Mutex),
		now:      time.Now,
		staff:    make(map[int64]appointment.Staff),
		services: make(map[int64]appointment.SalonService),
		users:    make(map[int64]user),
		appts:    make(map[int64]appointment.Appointment),
	}
}

func (r *Repository) AddStaff(s appointment.Staff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staff[s.ID] = s
}

func (r *Repository) AddService(s appointment.SalonService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.ID] = s
}

func (r *Repository) AddUser(id int64, name, phone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = user{name: name, phone: phone}
}

// Put stores a fully formed appointment, bypassing every check. A zero ID is
// assigned.
func (r *Repository) Put(a appointment.Appointment) appointment.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == 0 {
		r.nextID++
		a.ID = r.nextID
	} else if a.ID > r.nextID {
		r.nextID = a.ID
	}
	r.appts[a.ID] = a
	return a
}

// Appointments returns every stored appointment ordered by id.
func (r *Repository) Appointments() []appointment.Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]appointment.Appointment, 0, len(r.appts))
	for _, a := range r.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Repository) Events() []appointment.EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]appointment.EventLog(nil), r.events...)
}

func (r *Repository) GetStaff(ctx context.Context, id int64) (*appointment.Staff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.staff[id]
	if !ok {
		return nil, appointment.ErrStaffNotFound
	}
	return &s, nil
}

func (r *Repository) GetService(ctx context.Context, id int64) (*appointment.SalonService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[id]
	if !ok {
		return nil, appointment.ErrServiceNotFound
	}
	return &s, nil
}

func (r *Repository) GetUserPhone(ctx context.Context, userID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return "", appointment.ErrUserNotFound
	}
	return u.phone, nil
}

func (r *Repository) GetAppointment(ctx context.Context, id int64) (*appointment.AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	d := r.detail(a)
	return &d, nil
}

func (r *Repository) detail(a appointment.Appointment) appointment.AppointmentDetail {
	d := appointment.AppointmentDetail{Appointment: a, CustomerName: "Guest"}
	if s, ok := r.staff[a.StaffID]; ok {
		d.SalonID = s.SalonID
		d.StaffName = s.Name
	}
	if s, ok := r.services[a.ServiceID]; ok {
		d.ServiceName = s.Name
	}
	if a.UserID != nil {
		if u, ok := r.users[*a.UserID]; ok {
			d.CustomerName = u.name
		}
	}
	return d
}

func (r *Repository) ListAppointments(ctx context.Context, f appointment.ListFilter) ([]appointment.AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := []appointment.AppointmentDetail{}
	for _, a := range r.appts {
		d := r.detail(a)
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Date != nil && !sameDay(a.Date, *f.Date) {
			continue
		}
		if f.From != nil && dayKey(a.Date) < dayKey(*f.From) {
			continue
		}
		if f.To != nil && dayKey(a.Date) >= dayKey(*f.To) {
			continue
		}
		if f.StaffID != nil && a.StaffID != *f.StaffID {
			continue
		}
		if f.UserID != nil && (a.UserID == nil || *a.UserID != *f.UserID) {
			continue
		}
		if f.SalonID != nil && d.SalonID != *f.SalonID {
			continue
		}
		if search != "" && !matches(d, search) {
			continue
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.OrderAsc {
			a, b = b, a
		}
		if dk := dayKey(a.Date) - dayKey(b.Date); dk != 0 {
			return dk > 0
		}
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.After(b.StartTime)
		}
		return a.ID > b.ID
	})

	if f.Offset >= len(out) {
		return []appointment.AppointmentDetail{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(d appointment.AppointmentDetail, search string) bool {
	fields := []string{d.CustomerName, d.ServiceName, d.StaffName}
	if d.PhoneNumber != nil {
		fields = append(fields, *d.PhoneNumber)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func (r *Repository) FindConflicts(ctx context.Context, staffID int64, start, end time.Time, excludeID *int64) ([]appointment.Conflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conflicts(staffID, start, end, excludeID), nil
}

func (r *Repository) conflicts(staffID int64, start, end time.Time, excludeID *int64) []appointment.Conflict {
	var out []appointment.Conflict
	candidate := appointment.Interval{Start: start, End: end}
	for _, a := range r.appts {
		if a.StaffID != staffID || a.Status == appointment.StatusCancelled {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if !candidate.Overlaps(appointment.Interval{Start: a.StartTime, End: a.EndTime}) {
			continue
		}
		d := r.detail(a)
		out = append(out, appointment.Conflict{
			ID:           a.ID,
			StartTime:    a.StartTime,
			EndTime:      a.EndTime,
			ServiceName:  d.ServiceName,
			CustomerName: d.CustomerName,
			Status:       a.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (r *Repository) CreateAppointment(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.Status != appointment.StatusCancelled && len(r.conflicts(a.StaffID, a.StartTime, a.EndTime, nil)) > 0 {
		return nil, &appointment.ConflictError{}
	}

	r.nextID++
	created := *a
	created.ID = r.nextID
	created.CreatedAt = r.now()
	created.UpdatedAt = created.CreatedAt
	r.appts[created.ID] = created
	return &created, nil
}

func (r *Repository) UpdateAppointment(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.appts[a.ID]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != appointment.StatusCancelled && len(r.conflicts(cur.StaffID, a.StartTime, a.EndTime, &a.ID)) > 0 {
		return nil, &appointment.ConflictError{}
	}

	cur.Status = a.Status
	cur.Date = a.Date
	cur.StartTime = a.StartTime
	cur.EndTime = a.EndTime
	cur.UpdatedAt = r.now()
	r.appts[a.ID] = cur
	return &cur, nil
}

func (r *Repository) UpdateAppointmentStatus(ctx context.Context, id int64, from, to appointment.Status) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.appts[id]
	if !ok || cur.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}
	cur.Status = to
	cur.UpdatedAt = r.now()
	r.appts[id] = cur
	return &cur, nil
}

func (r *Repository) DeleteAppointment(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appts[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(r.appts, id)
	return nil
}

func (r *Repository) FindStalePending(ctx context.Context, startedBefore time.Time) ([]appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []appointment.Appointment
	for _, a := range r.appts {
		if a.Status == appointment.StatusPending && a.StartTime.Before(startedBefore) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *Repository) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	if r.FailEvents != nil {
		return r.FailEvents
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// InStaffTx serializes callers per staff member. Writes are applied
// immediately; there is no rollback.
func (r *Repository) InStaffTx(ctx context.Context, staffID int64, fn func(tx appointment.Repository) error) error {
	r.staffMu.Lock()
	m, ok := r.staffTx[staffID]
	if !ok {
		m = &sync.Mutex{}
		r.staffTx[staffID] = m
	}
	r.staffMu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(r)
}

// Hours is a fixed WorkingHoursProvider keyed by staff id. Staff without an
// entry use Default when it is set.
type Hours struct {
	Default *appointment.Window
	ByStaff map[int64]appointment.Window
	Closed  map[string]bool // YYYY-MM-DD
}

func (h Hours) Window(ctx context.Context, staff *appointment.Staff, date time.Time) (appointment.Window, bool, error) {
	if h.Closed[date.Format("2006-01-02")] {
		return appointment.Window{}, false, nil
	}
	if w, ok := h.ByStaff[staff.ID]; ok {
		return w, true, nil
	}
	if h.Default != nil {
		return *h.Default, true, nil
	}
	return appointment.Window{}, false, nil
}

func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func sameDay(a, b time.Time) bool { return dayKey(a) == dayKey(b) }
