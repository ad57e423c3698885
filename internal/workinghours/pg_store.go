package workinghours

import (
	"context"
	"time"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

type PgStore struct {
	db appointment.DBTX
}

func NewPgStore(db appointment.DBTX) *PgStore {
	return &PgStore{db: db}
}

// RulesFor returns the salon's rules for the weekday of date and for date
// itself. Open and close come back as HH:MM.
func (s *PgStore) RulesFor(ctx context.Context, salonID int64, date time.Time) ([]Rule, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	rows, err := s.db.Query(ctx, `
		SELECT id, salon_id, staff_id, weekday, on_date,
		       COALESCE(to_char(open_time, 'HH24:MI'), ''),
		       COALESCE(to_char(close_time, 'HH24:MI'), ''),
		       closed
		FROM working_hours
		WHERE salon_id = $1
		  AND (on_date = $2 OR weekday = $3)
	`, salonID, day, int16(date.Weekday()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Rule
	for rows.Next() {
		var (
			r       Rule
			weekday *int16
		)
		if err := rows.Scan(&r.ID, &r.SalonID, &r.StaffID, &weekday, &r.Date, &r.Open, &r.Close, &r.Closed); err != nil {
			return nil, err
		}
		if weekday != nil {
			wd := time.Weekday(*weekday)
			r.Weekday = &wd
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
