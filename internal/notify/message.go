// Package notify sends SMS confirmations for appointment lifecycle changes.
package notify

import (
	"fmt"
	"time"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

// Message renders the SMS body for action. Times are shown in loc.
func Message(brand string, action appointment.Action, a *appointment.Appointment, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	date := a.StartTime.In(loc).Format("2006-01-02")
	start := a.StartTime.In(loc).Format("15:04")
	end := a.EndTime.In(loc).Format("15:04")

	switch action {
	case appointment.ActionCancelled, appointment.ActionDeleted:
		return fmt.Sprintf("Your %s appointment on %s (%s-%s) has been canceled. If this is unexpected, reply or call us.",
			brand, date, start, end)
	case appointment.ActionUpdated:
		return fmt.Sprintf("Your %s appointment was updated: %s from %s to %s. See you soon!",
			brand, date, start, end)
	default:
		return fmt.Sprintf("Your %s appointment is confirmed for %s from %s to %s. We look forward to seeing you!",
			brand, date, start, end)
	}
}
