package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "staff_id", "user_id", "service_id", "phone_number", "status",
	"date", "start_time", "end_time", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func TestPgRepository_GetStaff(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT id, salon_id, name\s+FROM staffs`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "salon_id", "name"}).AddRow(int64(1), int64(10), "Ana"))
	mock.ExpectQuery(`FROM staffs`).
		WithArgs(int64(2)).
		WillReturnError(pgx.ErrNoRows)

	s, err := repo.GetStaff(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &Staff{ID: 1, SalonID: 10, Name: "Ana"}, s)

	_, err = repo.GetStaff(ctx, 2)
	assert.ErrorIs(t, err, ErrStaffNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_CreateAppointment(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2030, 5, 10, 0, 0, 0, 0, time.UTC)
	start, end := day.Add(10*time.Hour), day.Add(11*time.Hour)
	userID := int64(50)
	var phone *string

	in := &Appointment{StaffID: 1, UserID: &userID, ServiceID: 100, Status: StatusPending, Date: day, StartTime: start, EndTime: end}

	t.Run("inserted", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`INSERT INTO appointments AS a`).
			WithArgs(int64(1), pgxmock.AnyArg(), int64(100), pgxmock.AnyArg(), "pending", day, start, end).
			WillReturnRows(pgxmock.NewRows(appointmentCols).
				AddRow(int64(7), int64(1), &userID, int64(100), phone, "pending", day, start, end, day, day))

		a, err := repo.CreateAppointment(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, int64(7), a.ID)
		assert.Equal(t, StatusPending, a.Status)
		require.NotNil(t, a.UserID)
		assert.Equal(t, userID, *a.UserID)
		assert.Nil(t, a.PhoneNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exclusion constraint", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`INSERT INTO appointments AS a`).
			WithArgs(int64(1), pgxmock.AnyArg(), int64(100), pgxmock.AnyArg(), "pending", day, start, end).
			WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})

		_, err := repo.CreateAppointment(ctx, in)
		var cerr *ConflictError
		require.True(t, errors.As(err, &cerr))
		assert.Empty(t, cerr.Conflicts)
		assert.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgRepository_FindConflicts(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	day := time.Date(2030, 5, 10, 0, 0, 0, 0, time.UTC)
	excl := int64(3)

	mock.ExpectQuery(`a.status <> 'cancelled'`).
		WithArgs(int64(1), day.Add(9*time.Hour), day.Add(12*time.Hour), &excl).
		WillReturnRows(pgxmock.NewRows([]string{"id", "start_time", "end_time", "service", "customer", "status"}).
			AddRow(int64(4), day.Add(10*time.Hour), day.Add(11*time.Hour), "Haircut", "Dana", "confirmed"))

	got, err := repo.FindConflicts(ctx, 1, day.Add(9*time.Hour), day.Add(12*time.Hour), &excl)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Conflict{
		ID:           4,
		StartTime:    day.Add(10 * time.Hour),
		EndTime:      day.Add(11 * time.Hour),
		ServiceName:  "Haircut",
		CustomerName: "Dana",
		Status:       StatusConfirmed,
	}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_ListAppointmentsBuildsFilter(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	status := StatusConfirmed
	salon := int64(10)

	mock.ExpectQuery(`WHERE a.status = \$1 AND st.salon_id = \$2 AND \(u.name ILIKE \$3 .*ORDER BY a.date DESC.*LIMIT \$4 OFFSET \$5`).
		WithArgs("confirmed", int64(10), "%dana%", 20, 0).
		WillReturnRows(pgxmock.NewRows(append(appointmentCols, "salon_id", "staff", "service", "customer")))

	list, err := repo.ListAppointments(ctx, ListFilter{Status: &status, SalonID: &salon, Search: " dana ", Limit: 20})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_DeleteAppointment(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM appointments`).WithArgs(int64(1)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM appointments`).WithArgs(int64(2)).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.NoError(t, repo.DeleteAppointment(ctx, 1))
	assert.ErrorIs(t, repo.DeleteAppointment(ctx, 2), ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_UpdateAppointmentStatusRace(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`UPDATE appointments AS a`).
		WithArgs(int64(9), "cancelled", "pending").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateAppointmentStatus(ctx, 9, StatusPending, StatusCancelled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_InStaffTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits after advisory lock", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).WithArgs(int64(5)).WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec(`INSERT INTO event_logs`).
			WithArgs("TEST", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := repo.InStaffTx(ctx, 5, func(tx Repository) error {
			return tx.InsertEvent(ctx, EventLog{EventType: "TEST"})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).WithArgs(int64(5)).WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectRollback()

		err := repo.InStaffTx(ctx, 5, func(tx Repository) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
