package appointment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
	"github.com/hackgods/salon-appointment-scheduling/internal/appointment/apptest"
	"github.com/hackgods/salon-appointment-scheduling/internal/config"
	"github.com/hackgods/salon-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/salon-appointment-scheduling/internal/redis"
)

var testNow = time.Date(2030, 5, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	repo      *apptest.Repository
	notifier  *apptest.Notifier
	publisher *apptest.Publisher
	metrics   *metrics.Collector
	svc       *appointment.Service
}

func newFixture(t *testing.T, opts ...func(*fixtureOpts)) *fixture {
	t.Helper()
	o := fixtureOpts{locker: redisclient.NewLocalLocker()}
	for _, opt := range opts {
		opt(&o)
	}

	f := &fixture{
		repo:      seededRepo(),
		notifier:  &apptest.Notifier{},
		publisher: &apptest.Publisher{},
		metrics:   metrics.NewCollector("test"),
	}
	var repo appointment.Repository = f.repo
	if o.wrap != nil {
		repo = o.wrap(f.repo)
	}

	cfg := config.Config{Timezone: "UTC", SlotInterval: 30, StalePendingAfter: time.Hour}
	f.svc = appointment.NewService(repo, apptest.Hours{Default: morning}, o.locker, cfg, zaptest.NewLogger(t),
		appointment.WithNotifier(f.notifier),
		appointment.WithPublisher(f.publisher),
		appointment.WithMetrics(f.metrics),
		appointment.WithClock(func() time.Time { return testNow }),
	)
	return f
}

type fixtureOpts struct {
	locker redisclient.Locker
	wrap   func(*apptest.Repository) appointment.Repository
}

func strPtr(s string) *string { return &s }

func haircut(date, start, end string) appointment.CreateInput {
	return appointment.CreateInput{StaffID: 1, ServiceID: 100, Date: date, StartTime: start, EndTime: end}
}

func TestCreateAppointment(t *testing.T) {
	ctx := context.Background()

	t.Run("customer booking", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(50))
		require.NoError(t, err)

		assert.NotZero(t, a.ID)
		assert.Equal(t, appointment.StatusPending, a.Status)
		require.NotNil(t, a.UserID)
		assert.Equal(t, int64(50), *a.UserID)
		assert.Equal(t, at("2030-05-10", "10:00"), a.StartTime)

		events := f.repo.Events()
		require.Len(t, events, 1)
		assert.Equal(t, appointment.EventAppointmentCreated, events[0].EventType)
		assert.Len(t, f.publisher.Events(), 1)
		assert.Equal(t, []apptest.Notification{{Action: appointment.ActionCreated, AppointmentID: a.ID}}, f.notifier.Sent())
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AppointmentsTotal.WithLabelValues("created")))
	})

	t.Run("past date is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateAppointment(ctx, haircut("2030-05-09", "10:00", "11:00"), appointment.Customer(50))

		var verr *appointment.ValidationError
		assert.True(t, errors.As(err, &verr))
		assert.Empty(t, f.repo.Appointments())
	})

	t.Run("guest without phone", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Guest())

		var verr *appointment.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "phone_number", verr.Fields[0].Field)
	})

	t.Run("guest with phone", func(t *testing.T) {
		f := newFixture(t)
		in := haircut("2030-05-10", "10:00", "11:00")
		in.PhoneNumber = strPtr("+1 555 123 4567")

		a, err := f.svc.CreateAppointment(ctx, in, appointment.Guest())
		require.NoError(t, err)
		assert.Nil(t, a.UserID)
		assert.Equal(t, "+1 555 123 4567", *a.PhoneNumber)
	})

	t.Run("user and phone together", func(t *testing.T) {
		f := newFixture(t)
		in := haircut("2030-05-10", "10:00", "11:00")
		in.PhoneNumber = strPtr("+1 555 123 4567")

		a, err := f.svc.CreateAppointment(ctx, in, appointment.Customer(50))
		require.NoError(t, err)
		assert.NotNil(t, a.UserID)
		assert.NotNil(t, a.PhoneNumber)
	})

	t.Run("customer cannot book for someone else", func(t *testing.T) {
		f := newFixture(t)
		in := haircut("2030-05-10", "10:00", "11:00")
		other := int64(51)
		in.UserID = &other

		_, err := f.svc.CreateAppointment(ctx, in, appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrAccessDenied)
	})

	t.Run("admin books on behalf of a customer", func(t *testing.T) {
		f := newFixture(t)
		in := haircut("2030-05-10", "10:00", "11:00")
		owner := int64(51)
		in.UserID = &owner

		a, err := f.svc.CreateAppointment(ctx, in, appointment.Admin(1))
		require.NoError(t, err)
		assert.Equal(t, owner, *a.UserID)
	})

	t.Run("cross salon is rejected regardless of availability", func(t *testing.T) {
		f := newFixture(t)
		book(f.repo, 1, "2030-05-10", "10:00", "11:00", appointment.StatusConfirmed)
		in := haircut("2030-05-10", "10:00", "11:00")
		in.ServiceID = 200

		_, err := f.svc.CreateAppointment(ctx, in, appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrCrossSalon)
		assert.NotErrorIs(t, err, appointment.ErrConflict)
	})

	t.Run("unknown staff and service", func(t *testing.T) {
		f := newFixture(t)
		in := haircut("2030-05-10", "10:00", "11:00")
		in.StaffID = 99
		_, err := f.svc.CreateAppointment(ctx, in, appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrStaffNotFound)

		in = haircut("2030-05-10", "10:00", "11:00")
		in.ServiceID = 999
		_, err = f.svc.CreateAppointment(ctx, in, appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrServiceNotFound)
	})

	t.Run("overlap is a conflict", func(t *testing.T) {
		f := newFixture(t)
		existing := book(f.repo, 1, "2030-05-10", "10:00", "11:00", appointment.StatusConfirmed)

		_, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:30", "11:30"), appointment.Customer(50))
		var cerr *appointment.ConflictError
		require.True(t, errors.As(err, &cerr))
		require.Len(t, cerr.Conflicts, 1)
		assert.Equal(t, existing.ID, cerr.Conflicts[0].ID)
		assert.ErrorIs(t, err, appointment.ErrConflict)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConflictsTotal.WithLabelValues("create", "checker")))
		assert.Empty(t, f.notifier.Sent())
	})

	t.Run("back to back is fine", func(t *testing.T) {
		f := newFixture(t)
		book(f.repo, 1, "2030-05-10", "09:00", "10:00", appointment.StatusConfirmed)

		_, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(50))
		assert.NoError(t, err)
	})

	t.Run("storage constraint catches what the checker missed", func(t *testing.T) {
		f := newFixture(t, func(o *fixtureOpts) {
			o.wrap = func(r *apptest.Repository) appointment.Repository { return blindRepo{r} }
		})
		book(f.repo, 1, "2030-05-10", "10:00", "11:00", appointment.StatusConfirmed)

		_, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrConflict)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConflictsTotal.WithLabelValues("create", "constraint")))
	})

	t.Run("busy staff lock", func(t *testing.T) {
		f := newFixture(t, func(o *fixtureOpts) { o.locker = busyLocker{} })

		_, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrStaffBusy)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LockContention))
	})

	t.Run("notification failure does not fail the booking", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.Err = errors.New("sms gateway down")
		f.repo.FailEvents = errors.New("event table locked")

		_, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(50))
		assert.NoError(t, err)
		assert.Len(t, f.repo.Appointments(), 1)
	})

	t.Run("manager outside the salon", func(t *testing.T) {
		f := newFixture(t)
		in := haircut("2030-05-10", "10:00", "11:00")
		in.PhoneNumber = strPtr("+1 555 123 4567")

		_, err := f.svc.CreateAppointment(ctx, in, appointment.Manager(7, 20))
		assert.ErrorIs(t, err, appointment.ErrAccessDenied)
	})
}

func TestCreateAppointment_ConcurrentSameSlot(t *testing.T) {
	ctx := context.Background()

	unreachableRedis := func(t *testing.T) redisclient.Locker {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		t.Cleanup(func() { _ = client.Close() })
		mr.Close()
		return redisclient.NewRedisStaffLocker(client, 5*time.Second, time.Second, zaptest.NewLogger(t))
	}

	tests := []struct {
		name   string
		locker func(t *testing.T) redisclient.Locker
	}{
		{"local lock", func(t *testing.T) redisclient.Locker { return redisclient.NewLocalLocker() }},
		{"redis unreachable", unreachableRedis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(o *fixtureOpts) { o.locker = tt.locker(t) })

			const callers = 20
			errs := make([]error, callers)
			var wg sync.WaitGroup
			for i := range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(50))
				}()
			}
			wg.Wait()

			created := 0
			for _, err := range errs {
				if err == nil {
					created++
					continue
				}
				assert.ErrorIs(t, err, appointment.ErrConflict)
			}
			assert.Equal(t, 1, created)
			assert.Len(t, f.repo.Appointments(), 1)
		})
	}
}

func TestUpdateAppointment(t *testing.T) {
	ctx := context.Background()

	create := func(t *testing.T, f *fixture, start, end string) *appointment.Appointment {
		t.Helper()
		a, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", start, end), appointment.Customer(50))
		require.NoError(t, err)
		return a
	}

	t.Run("moving within its own slot is not a self conflict", func(t *testing.T) {
		f := newFixture(t)
		a := create(t, f, "10:00", "11:00")

		updated, err := f.svc.UpdateAppointment(ctx, a.ID, appointment.UpdateInput{
			StartTime: strPtr("10:30"),
			EndTime:   strPtr("11:30"),
		}, appointment.Customer(50))
		require.NoError(t, err)
		assert.Equal(t, at("2030-05-10", "10:30"), updated.StartTime)
		assert.Equal(t, at("2030-05-10", "11:30"), updated.EndTime)
	})

	t.Run("partial time merges with the stored date", func(t *testing.T) {
		f := newFixture(t)
		a := create(t, f, "10:00", "11:00")

		updated, err := f.svc.UpdateAppointment(ctx, a.ID, appointment.UpdateInput{Date: strPtr("2030-05-12")}, appointment.Customer(50))
		require.NoError(t, err)
		assert.Equal(t, at("2030-05-12", "10:00"), updated.StartTime)
		assert.Equal(t, at("2030-05-12", "11:00"), updated.EndTime)
	})

	t.Run("moving onto another appointment conflicts", func(t *testing.T) {
		f := newFixture(t)
		a := create(t, f, "09:00", "10:00")
		book(f.repo, 1, "2030-05-10", "11:00", "12:00", appointment.StatusConfirmed)

		_, err := f.svc.UpdateAppointment(ctx, a.ID, appointment.UpdateInput{
			StartTime: strPtr("10:30"),
			EndTime:   strPtr("11:30"),
		}, appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrConflict)
	})

	t.Run("moving into the past", func(t *testing.T) {
		f := newFixture(t)
		a := create(t, f, "10:00", "11:00")

		_, err := f.svc.UpdateAppointment(ctx, a.ID, appointment.UpdateInput{Date: strPtr("2030-05-01")}, appointment.Customer(50))
		var verr *appointment.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("status follows the lifecycle", func(t *testing.T) {
		f := newFixture(t)
		a := create(t, f, "10:00", "11:00")

		completed := appointment.StatusCompleted
		_, err := f.svc.UpdateAppointment(ctx, a.ID, appointment.UpdateInput{Status: &completed}, appointment.Admin(1))
		assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

		confirmed := appointment.StatusConfirmed
		updated, err := f.svc.UpdateAppointment(ctx, a.ID, appointment.UpdateInput{Status: &confirmed}, appointment.Admin(1))
		require.NoError(t, err)
		assert.Equal(t, appointment.StatusConfirmed, updated.Status)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransitionsTotal.WithLabelValues("pending", "confirmed")))
	})

	t.Run("cancelling through update notifies a cancellation", func(t *testing.T) {
		f := newFixture(t)
		a := create(t, f, "10:00", "11:00")

		cancelled := appointment.StatusCancelled
		_, err := f.svc.UpdateAppointment(ctx, a.ID, appointment.UpdateInput{Status: &cancelled}, appointment.Customer(50))
		require.NoError(t, err)

		sent := f.notifier.Sent()
		assert.Equal(t, appointment.ActionCancelled, sent[len(sent)-1].Action)
	})

	t.Run("terminal appointments cannot be rescheduled", func(t *testing.T) {
		f := newFixture(t)
		done := book(f.repo, 1, "2030-05-10", "10:00", "11:00", appointment.StatusCompleted)

		_, err := f.svc.UpdateAppointment(ctx, done.ID, appointment.UpdateInput{StartTime: strPtr("10:30")}, appointment.Admin(1))
		var verr *appointment.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("another customer is denied", func(t *testing.T) {
		f := newFixture(t)
		a := create(t, f, "10:00", "11:00")

		_, err := f.svc.UpdateAppointment(ctx, a.ID, appointment.UpdateInput{StartTime: strPtr("10:30")}, appointment.Customer(51))
		assert.ErrorIs(t, err, appointment.ErrAccessDenied)
	})

	t.Run("missing appointment", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateAppointment(ctx, 404, appointment.UpdateInput{}, appointment.Admin(1))
		assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
	})
}

func TestCancelAndDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel once", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(50))
		require.NoError(t, err)

		cancelled, err := f.svc.CancelAppointment(ctx, a.ID, appointment.Customer(50))
		require.NoError(t, err)
		assert.Equal(t, appointment.StatusCancelled, cancelled.Status)

		_, err = f.svc.CancelAppointment(ctx, a.ID, appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

		// the freed interval can be booked again
		_, err = f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(51))
		assert.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(50))
		require.NoError(t, err)

		require.NoError(t, f.svc.DeleteAppointment(ctx, a.ID, appointment.Customer(50)))
		_, err = f.svc.GetAppointment(ctx, a.ID, appointment.Admin(1))
		assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

		events := f.repo.Events()
		assert.Equal(t, appointment.EventAppointmentDeleted, events[len(events)-1].EventType)
	})

	t.Run("guest cannot delete", func(t *testing.T) {
		f := newFixture(t)
		a := book(f.repo, 1, "2030-05-10", "10:00", "11:00", appointment.StatusPending)
		assert.ErrorIs(t, f.svc.DeleteAppointment(ctx, a.ID, appointment.Guest()), appointment.ErrAccessDenied)
	})
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mine, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "09:00", "10:00"), appointment.Customer(50))
	require.NoError(t, err)
	_, err = f.svc.CreateAppointment(ctx, haircut("2030-05-11", "09:00", "10:00"), appointment.Customer(50))
	require.NoError(t, err)
	theirs, err := f.svc.CreateAppointment(ctx, haircut("2030-05-10", "10:00", "11:00"), appointment.Customer(51))
	require.NoError(t, err)

	t.Run("get own", func(t *testing.T) {
		d, err := f.svc.GetAppointment(ctx, mine.ID, appointment.Customer(50))
		require.NoError(t, err)
		assert.Equal(t, "Dana", d.CustomerName)
		assert.Equal(t, "Ana", d.StaffName)
		assert.Equal(t, int64(10), d.SalonID)
	})

	t.Run("get someone else's", func(t *testing.T) {
		_, err := f.svc.GetAppointment(ctx, theirs.ID, appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrAccessDenied)
	})

	t.Run("manager scope", func(t *testing.T) {
		_, err := f.svc.GetAppointment(ctx, mine.ID, appointment.Manager(7, 10))
		assert.NoError(t, err)
		_, err = f.svc.GetAppointment(ctx, mine.ID, appointment.Manager(8, 20))
		assert.ErrorIs(t, err, appointment.ErrAccessDenied)

		list, err := f.svc.ListAppointments(ctx, appointment.ListFilter{}, appointment.Manager(8, 20))
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("customer list only has own, newest first", func(t *testing.T) {
		list, err := f.svc.ListAppointments(ctx, appointment.ListFilter{}, appointment.Customer(50))
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, at("2030-05-11", "09:00"), list[0].StartTime)
		assert.Equal(t, mine.ID, list[1].ID)
	})

	t.Run("list is idempotent", func(t *testing.T) {
		first, err := f.svc.ListAppointments(ctx, appointment.ListFilter{}, appointment.Admin(1))
		require.NoError(t, err)
		second, err := f.svc.ListAppointments(ctx, appointment.ListFilter{}, appointment.Admin(1))
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, first, 3)
	})

	t.Run("filters", func(t *testing.T) {
		day := at("2030-05-10", "00:00")
		list, err := f.svc.ListAppointments(ctx, appointment.ListFilter{Date: &day}, appointment.Admin(1))
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = f.svc.ListAppointments(ctx, appointment.ListFilter{Search: "eli"}, appointment.Admin(1))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, theirs.ID, list[0].ID)

		list, err = f.svc.ListAppointments(ctx, appointment.ListFilter{Limit: 1, Offset: 1}, appointment.Admin(1))
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("guest cannot list", func(t *testing.T) {
		_, err := f.svc.ListAppointments(ctx, appointment.ListFilter{}, appointment.Guest())
		assert.ErrorIs(t, err, appointment.ErrAccessDenied)
	})

	t.Run("staff calendar is chronological", func(t *testing.T) {
		staff, list, err := f.svc.StaffCalendar(ctx, 1, 2030, time.May, appointment.Admin(1))
		require.NoError(t, err)
		assert.Equal(t, "Ana", staff.Name)
		require.Len(t, list, 3)
		assert.True(t, !list[0].StartTime.After(list[1].StartTime))
		assert.True(t, !list[1].StartTime.After(list[2].StartTime))

		_, list, err = f.svc.StaffCalendar(ctx, 1, 2030, time.June, appointment.Admin(1))
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("staff calendar is scoped to the manager's salon", func(t *testing.T) {
		_, list, err := f.svc.StaffCalendar(ctx, 1, 2030, time.May, appointment.Manager(7, 10))
		require.NoError(t, err)
		assert.Len(t, list, 3)

		_, _, err = f.svc.StaffCalendar(ctx, 1, 2030, time.May, appointment.Manager(8, 20))
		assert.ErrorIs(t, err, appointment.ErrAccessDenied)

		_, _, err = f.svc.StaffCalendar(ctx, 1, 2030, time.May, appointment.Customer(50))
		assert.ErrorIs(t, err, appointment.ErrAccessDenied)
	})
}

func TestCheckConflictQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	existing := book(f.repo, 1, "2030-05-10", "10:00", "11:00", appointment.StatusConfirmed)

	report, err := f.svc.CheckConflict(ctx, appointment.ConflictQuery{StaffID: 1, Date: "2030-05-10", StartTime: "10:30", EndTime: "11:30"})
	require.NoError(t, err)
	assert.False(t, report.Available)

	report, err = f.svc.CheckConflict(ctx, appointment.ConflictQuery{StaffID: 1, Date: "2030-05-10", StartTime: "10:30", EndTime: "11:30", ExcludeID: &existing.ID})
	require.NoError(t, err)
	assert.True(t, report.Available)

	_, err = f.svc.CheckConflict(ctx, appointment.ConflictQuery{StaffID: 1, Date: "2030-05-10", StartTime: "11:30", EndTime: "10:30"})
	var verr *appointment.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestExpireStalePendingAppointments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stale := book(f.repo, 1, "2030-05-10", "06:00", "06:30", appointment.StatusPending)
	recent := book(f.repo, 1, "2030-05-10", "07:30", "08:00", appointment.StatusPending)
	confirmed := book(f.repo, 2, "2030-05-10", "05:00", "06:00", appointment.StatusConfirmed)

	n, err := f.svc.ExpireStalePendingAppointments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	byID := map[int64]appointment.Status{}
	for _, a := range f.repo.Appointments() {
		byID[a.ID] = a.Status
	}
	assert.Equal(t, appointment.StatusCancelled, byID[stale.ID])
	assert.Equal(t, appointment.StatusPending, byID[recent.ID])
	assert.Equal(t, appointment.StatusConfirmed, byID[confirmed.ID])

	n, err = f.svc.ExpireStalePendingAppointments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// blindRepo hides existing appointments from the checker so only the
// storage constraint can reject an overlap.
type blindRepo struct {
	*apptest.Repository
}

func (b blindRepo) FindConflicts(ctx context.Context, staffID int64, start, end time.Time, excludeID *int64) ([]appointment.Conflict, error) {
	return nil, nil
}

func (b blindRepo) InStaffTx(ctx context.Context, staffID int64, fn func(tx appointment.Repository) error) error {
	return b.Repository.InStaffTx(ctx, staffID, func(appointment.Repository) error { return fn(b) })
}

type busyLocker struct{}

func (busyLocker) WithStaffLock(ctx context.Context, staffID int64, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}
