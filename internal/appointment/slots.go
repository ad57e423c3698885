package appointment

import (
	"context"
	"fmt"
	"time"
)

const DefaultSlotInterval = 30

type SlotQuery struct {
	StaffID         int64
	Date            string // YYYY-MM-DD
	DurationMinutes int
	IntervalMinutes int // 0 selects the enumerator default
}

// SlotEnumerator lists free start times for a service of fixed duration.
// It never writes.
type SlotEnumerator struct {
	repo            Repository
	hours           WorkingHoursProvider
	loc             *time.Location
	defaultInterval int
}

func NewSlotEnumerator(repo Repository, hours WorkingHoursProvider, loc *time.Location, defaultInterval int) *SlotEnumerator {
	if loc == nil {
		loc = time.UTC
	}
	if defaultInterval <= 0 {
		defaultInterval = DefaultSlotInterval
	}
	return &SlotEnumerator{repo: repo, hours: hours, loc: loc, defaultInterval: defaultInterval}
}

// AvailableSlots returns ascending HH:MM start times t inside the working
// window for which [t, t+duration) ends by closing time and overlaps no
// non-cancelled appointment of the staff member. Past dates are allowed.
func (e *SlotEnumerator) AvailableSlots(ctx context.Context, q SlotQuery) ([]string, error) {
	var fields []FieldError
	if q.StaffID <= 0 {
		fields = append(fields, FieldError{Field: "staff_id", Message: tagMessage("gt")})
	}
	if q.DurationMinutes <= 0 {
		fields = append(fields, FieldError{Field: "duration", Message: "must be a positive number of minutes"})
	}
	if q.IntervalMinutes < 0 {
		fields = append(fields, FieldError{Field: "interval", Message: "must be a positive number of minutes"})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	date, err := ParseDate(q.Date, e.loc)
	if err != nil {
		return nil, err
	}

	interval := q.IntervalMinutes
	if interval == 0 {
		interval = e.defaultInterval
	}

	staff, err := e.repo.GetStaff(ctx, q.StaffID)
	if err != nil {
		return nil, err
	}

	w, ok, err := e.hours.Window(ctx, staff, date)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	if !ok {
		return []string{}, nil
	}

	open, err := ParseClock(date, w.Open, "open", e.loc)
	if err != nil {
		return nil, fmt.Errorf("working hours for staff %d: %w", staff.ID, err)
	}
	closing, err := ParseClock(date, w.Close, "close", e.loc)
	if err != nil {
		return nil, fmt.Errorf("working hours for staff %d: %w", staff.ID, err)
	}

	duration := time.Duration(q.DurationMinutes) * time.Minute

	if !closing.After(open) || open.Add(duration).After(closing) {
		return []string{}, nil
	}

	busy, err := e.repo.FindConflicts(ctx, staff.ID, open, closing, nil)
	if err != nil {
		return nil, fmt.Errorf("load busy intervals: %w", err)
	}

	starts := enumerate(open, closing, duration, interval, busy)
	out := make([]string, 0, len(starts))
	for _, t := range starts {
		out = append(out, t.Format(clockLayout))
	}
	return out, nil
}

// enumerate steps from open by stepMinutes of wall-clock time and keeps
// every start whose [t, t+duration) fits before closing and overlaps nothing
// in busy. Wall-clock times skipped by a DST change are left out.
func enumerate(open, closing time.Time, duration time.Duration, stepMinutes int, busy []Conflict) []time.Time {
	if duration <= 0 || stepMinutes <= 0 {
		return nil
	}
	y, mo, d := open.Date()
	base := open.Hour()*60 + open.Minute()

	var slots []time.Time
	for m := base; m < base+24*60; m += stepMinutes {
		t := time.Date(y, mo, d, 0, m, 0, 0, open.Location())
		if t.Hour()*60+t.Minute() != m%(24*60) {
			continue
		}
		if t.Add(duration).After(closing) {
			break
		}
		if !overlapsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}
