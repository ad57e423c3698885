package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so the same repository code
// runs against the pool or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DBTX
}

func NewPgRepository(db DBTX) *PgRepository {
	return &PgRepository{db: db}
}

const exclusionViolation = "23P01"

// IsExclusionViolation reports whether err comes from the appointments
// no-overlap constraint.
func IsExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == exclusionViolation
}

const appointmentColumns = `a.id, a.staff_id, a.user_id, a.service_id, a.phone_number, a.status,
		a.date, a.start_time, a.end_time, a.created_at, a.updated_at`

const detailFrom = `
		FROM appointments a
		JOIN staffs st ON st.id = a.staff_id
		JOIN services sv ON sv.id = a.service_id
		LEFT JOIN users u ON u.id = a.user_id`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.StaffID,
		&a.UserID,
		&a.ServiceID,
		&a.PhoneNumber,
		&status,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var status string

	err := row.Scan(
		&d.ID,
		&d.StaffID,
		&d.UserID,
		&d.ServiceID,
		&d.PhoneNumber,
		&status,
		&d.Date,
		&d.StartTime,
		&d.EndTime,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.SalonID,
		&d.StaffName,
		&d.ServiceName,
		&d.CustomerName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	d.Status = Status(status)
	return &d, nil
}

// Interface methods

func (r *PgRepository) GetStaff(ctx context.Context, id int64) (*Staff, error) {
	var s Staff
	err := r.db.QueryRow(ctx, `
		SELECT id, salon_id, name
		FROM staffs
		WHERE id = $1
	`, id).Scan(&s.ID, &s.SalonID, &s.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) GetService(ctx context.Context, id int64) (*SalonService, error) {
	var s SalonService
	err := r.db.QueryRow(ctx, `
		SELECT id, salon_id, name, duration_minutes
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.SalonID, &s.Name, &s.DurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) GetUserPhone(ctx context.Context, userID int64) (string, error) {
	var phone *string
	err := r.db.QueryRow(ctx, `
		SELECT phone_number
		FROM users
		WHERE id = $1
	`, userID).Scan(&phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	if phone == nil {
		return "", nil
	}
	return *phone, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id int64) (*AppointmentDetail, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`,
		       st.salon_id, st.name, sv.name, COALESCE(u.name, 'Guest')`+detailFrom+`
		WHERE a.id = $1
	`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != nil {
		conds = append(conds, "a.status = "+arg(string(*f.Status)))
	}
	if f.Date != nil {
		conds = append(conds, "a.date = "+arg(*f.Date))
	}
	if f.From != nil {
		conds = append(conds, "a.date >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "a.date < "+arg(*f.To))
	}
	if f.StaffID != nil {
		conds = append(conds, "a.staff_id = "+arg(*f.StaffID))
	}
	if f.UserID != nil {
		conds = append(conds, "a.user_id = "+arg(*f.UserID))
	}
	if f.SalonID != nil {
		conds = append(conds, "st.salon_id = "+arg(*f.SalonID))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + s + "%")
		conds = append(conds, "(u.name ILIKE "+p+" OR sv.name ILIKE "+p+" OR st.name ILIKE "+p+" OR a.phone_number ILIKE "+p+")")
	}

	query := `
		SELECT ` + appointmentColumns + `,
		       st.salon_id, st.name, sv.name, COALESCE(u.name, 'Guest')` + detailFrom
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	if f.OrderAsc {
		query += "\n\t\tORDER BY a.date ASC, a.start_time ASC, a.id ASC"
	} else {
		query += "\n\t\tORDER BY a.date DESC, a.start_time DESC, a.id DESC"
	}
	query += "\n\t\tLIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FindConflicts(ctx context.Context, staffID int64, start, end time.Time, excludeID *int64) ([]Conflict, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.start_time, a.end_time, sv.name, COALESCE(u.name, 'Guest'), a.status
		FROM appointments a
		JOIN services sv ON sv.id = a.service_id
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.staff_id = $1
		  AND a.status <> 'cancelled'
		  AND a.start_time < $3
		  AND a.end_time > $2
		  AND ($4::bigint IS NULL OR a.id <> $4)
		ORDER BY a.start_time
	`, staffID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Conflict
	for rows.Next() {
		var c Conflict
		var status string
		if err := rows.Scan(&c.ID, &c.StartTime, &c.EndTime, &c.ServiceName, &c.CustomerName, &status); err != nil {
			return nil, err
		}
		c.Status = Status(status)
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments AS a (staff_id, user_id, service_id, phone_number, status, date, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns,
		a.StaffID, a.UserID, a.ServiceID, a.PhoneNumber, string(a.Status), a.Date, a.StartTime, a.EndTime)

	created, err := scanAppointment(row)
	if err != nil {
		if IsExclusionViolation(err) {
			return nil, &ConflictError{}
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $2,
		    date = $3,
		    start_time = $4,
		    end_time = $5,
		    updated_at = now()
		WHERE a.id = $1
		RETURNING `+appointmentColumns,
		a.ID, string(a.Status), a.Date, a.StartTime, a.EndTime)

	updated, err := scanAppointment(row)
	if err != nil {
		if IsExclusionViolation(err) {
			return nil, &ConflictError{}
		}
		return nil, err
	}
	return updated, nil
}

// UpdateAppointmentStatus only succeeds while the row is still in from;
// otherwise it reports ErrAppointmentNotFound.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $2,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status = $3
		RETURNING `+appointmentColumns, id, string(to), string(from))

	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindStalePending(ctx context.Context, startedBefore time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.status = 'pending'
		  AND a.start_time < $1
		ORDER BY a.start_time
	`, startedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// InStaffTx takes a transaction-scoped advisory lock keyed by the staff id,
// so writers for the same staff member queue in Postgres even when the Redis
// lock was lost.
func (r *PgRepository) InStaffTx(ctx context.Context, staffID int64, fn func(tx Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, staffID); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("lock staff %d: %w", staffID, err)
	}

	if err := fn(&PgRepository{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if IsExclusionViolation(err) {
			return &ConflictError{}
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
