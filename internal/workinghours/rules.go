// Package workinghours resolves the opening window of a staff member on a
// given date from salon-wide and per-staff rules.
package workinghours

import (
	"fmt"
	"regexp"
	"time"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Rule is one row of the working hours table. Exactly one of Weekday and
// Date is set. A rule with Closed set overrides any window of lower
// precedence.
type Rule struct {
	ID      int64
	SalonID int64
	StaffID *int64
	Weekday *time.Weekday
	Date    *time.Time
	Open    string // HH:MM
	Close   string // HH:MM
	Closed  bool
}

// rank orders rules from most to least specific:
// staff date, salon date, staff weekday, salon weekday.
func (r Rule) rank() int {
	switch {
	case r.Date != nil && r.StaffID != nil:
		return 0
	case r.Date != nil:
		return 1
	case r.StaffID != nil:
		return 2
	default:
		return 3
	}
}

func (r Rule) applies(staff *appointment.Staff, date time.Time) bool {
	if r.SalonID != staff.SalonID {
		return false
	}
	if r.StaffID != nil && *r.StaffID != staff.ID {
		return false
	}
	if r.Date != nil {
		y1, m1, d1 := r.Date.Date()
		y2, m2, d2 := date.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
	return r.Weekday != nil && *r.Weekday == date.Weekday()
}

// Validate checks the HH:MM fields of an open rule.
func (r Rule) Validate() error {
	if (r.Weekday == nil) == (r.Date == nil) {
		return fmt.Errorf("working hours rule %d: exactly one of weekday and date must be set", r.ID)
	}
	if r.Closed {
		return nil
	}
	if !clockPattern.MatchString(r.Open) || !clockPattern.MatchString(r.Close) {
		return fmt.Errorf("working hours rule %d: open and close must be HH:MM, got %q-%q", r.ID, r.Open, r.Close)
	}
	if r.Open >= r.Close {
		return fmt.Errorf("working hours rule %d: open %s is not before close %s", r.ID, r.Open, r.Close)
	}
	return nil
}

// Resolve picks the most specific rule that applies to staff on date.
// ok is false when nothing applies or the winning rule marks the day closed.
func Resolve(rules []Rule, staff *appointment.Staff, date time.Time) (w appointment.Window, ok bool) {
	best := -1
	for i, r := range rules {
		if !r.applies(staff, date) {
			continue
		}
		if best < 0 || r.rank() < rules[best].rank() {
			best = i
		}
	}
	if best < 0 || rules[best].Closed {
		return appointment.Window{}, false
	}
	return appointment.Window{Open: rules[best].Open, Close: rules[best].Close}, true
}
