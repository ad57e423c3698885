package workinghours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

func weekday(d time.Weekday) *time.Weekday { return &d }
func staffID(id int64) *int64              { return &id }

func TestResolvePrecedence(t *testing.T) {
	staff := &appointment.Staff{ID: 1, SalonID: 10}
	friday := time.Date(2030, 5, 10, 0, 0, 0, 0, time.UTC)
	holiday := friday

	salonWeekday := Rule{ID: 1, SalonID: 10, Weekday: weekday(time.Friday), Open: "09:00", Close: "18:00"}
	staffWeekday := Rule{ID: 2, SalonID: 10, StaffID: staffID(1), Weekday: weekday(time.Friday), Open: "10:00", Close: "14:00"}
	salonDate := Rule{ID: 3, SalonID: 10, Date: &holiday, Closed: true}
	staffDate := Rule{ID: 4, SalonID: 10, StaffID: staffID(1), Date: &holiday, Open: "12:00", Close: "13:00"}
	otherStaff := Rule{ID: 5, SalonID: 10, StaffID: staffID(2), Date: &holiday, Open: "06:00", Close: "07:00"}
	otherSalon := Rule{ID: 6, SalonID: 20, Weekday: weekday(time.Friday), Open: "01:00", Close: "02:00"}

	tests := []struct {
		name  string
		rules []Rule
		want  appointment.Window
		ok    bool
	}{
		{"nothing configured", nil, appointment.Window{}, false},
		{"salon weekday", []Rule{salonWeekday, otherSalon}, appointment.Window{Open: "09:00", Close: "18:00"}, true},
		{"staff weekday beats salon weekday", []Rule{salonWeekday, staffWeekday}, appointment.Window{Open: "10:00", Close: "14:00"}, true},
		{"salon closure beats weekdays", []Rule{salonWeekday, staffWeekday, salonDate}, appointment.Window{}, false},
		{"staff date beats everything", []Rule{salonWeekday, staffWeekday, salonDate, staffDate}, appointment.Window{Open: "12:00", Close: "13:00"}, true},
		{"other staff member ignored", []Rule{salonWeekday, otherStaff}, appointment.Window{Open: "09:00", Close: "18:00"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := Resolve(tt.rules, staff, friday)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, w)
		})
	}

	t.Run("weekday must match", func(t *testing.T) {
		_, ok := Resolve([]Rule{salonWeekday}, staff, friday.AddDate(0, 0, 1))
		assert.False(t, ok)
	})
}

func TestRuleValidate(t *testing.T) {
	d := time.Date(2030, 5, 10, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, Rule{Weekday: weekday(time.Monday), Open: "09:00", Close: "17:00"}.Validate())
	assert.NoError(t, Rule{Date: &d, Closed: true}.Validate())
	assert.Error(t, Rule{Open: "09:00", Close: "17:00"}.Validate())
	assert.Error(t, Rule{Weekday: weekday(time.Monday), Date: &d, Open: "09:00", Close: "17:00"}.Validate())
	assert.Error(t, Rule{Weekday: weekday(time.Monday), Open: "17:00", Close: "09:00"}.Validate())
	assert.Error(t, Rule{Weekday: weekday(time.Monday), Open: "9", Close: "17:00"}.Validate())
}
