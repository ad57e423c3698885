package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
	"github.com/hackgods/salon-appointment-scheduling/internal/appointment/apptest"
	"github.com/hackgods/salon-appointment-scheduling/internal/metrics"
	"github.com/hackgods/salon-appointment-scheduling/internal/notify"
)

func sampleAppointment() *appointment.Appointment {
	day := time.Date(2030, 5, 10, 0, 0, 0, 0, time.UTC)
	return &appointment.Appointment{
		ID:        7,
		StaffID:   1,
		ServiceID: 100,
		Status:    appointment.StatusPending,
		Date:      day,
		StartTime: day.Add(10 * time.Hour),
		EndTime:   day.Add(11 * time.Hour),
	}
}

func TestMessage(t *testing.T) {
	a := sampleAppointment()

	assert.Equal(t,
		"Your HereSalon appointment is confirmed for 2030-05-10 from 10:00 to 11:00. We look forward to seeing you!",
		notify.Message("HereSalon", appointment.ActionCreated, a, time.UTC))
	assert.Equal(t,
		"Your HereSalon appointment was updated: 2030-05-10 from 10:00 to 11:00. See you soon!",
		notify.Message("HereSalon", appointment.ActionUpdated, a, time.UTC))
	assert.Contains(t, notify.Message("HereSalon", appointment.ActionCancelled, a, time.UTC), "has been canceled")
	assert.Contains(t, notify.Message("HereSalon", appointment.ActionDeleted, a, time.UTC), "(10:00-11:00)")

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Contains(t, notify.Message("HereSalon", appointment.ActionCreated, a, ny), "from 06:00 to 07:00")
}

func TestWebhookSender(t *testing.T) {
	var got struct {
		From string `json:"from"`
		To   string `json:"to"`
		Body string `json:"body"`
	}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := notify.NewWebhookSender(notify.WebhookConfig{URL: srv.URL, Token: "tkn", From: "HereSalon"}, zaptest.NewLogger(t))
	require.NoError(t, s.Send(context.Background(), "+15550001111", "hello"))

	assert.Equal(t, "Bearer tkn", auth)
	assert.Equal(t, "HereSalon", got.From)
	assert.Equal(t, "+15550001111", got.To)
	assert.Equal(t, "hello", got.Body)
}

func TestWebhookSenderTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := notify.NewWebhookSender(notify.WebhookConfig{URL: srv.URL}, zaptest.NewLogger(t))
	ctx := context.Background()

	for range 5 {
		err := s.Send(ctx, "+15550001111", "hello")
		require.Error(t, err)
		assert.NotErrorIs(t, err, notify.ErrGatewayUnavailable)
	}

	err := s.Send(ctx, "+15550001111", "hello")
	assert.ErrorIs(t, err, notify.ErrGatewayUnavailable)
	assert.Equal(t, int32(5), calls.Load())
}

type captureSender struct {
	mu   sync.Mutex
	to   []string
	body []string
	err  error
}

func (s *captureSender) Send(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, to)
	s.body = append(s.body, body)
	return s.err
}

func TestSMSNotifier(t *testing.T) {
	ctx := context.Background()
	repo := apptest.NewRepository()
	repo.AddUser(50, "Dana", "+1 555 000 0050")

	t.Run("appointment phone wins", func(t *testing.T) {
		sender := &captureSender{}
		m := metrics.NewCollector("test")
		n := notify.NewSMSNotifier(sender, repo, "HereSalon", time.UTC, m, zaptest.NewLogger(t))

		a := sampleAppointment()
		phone := "+1 555 999 0000"
		uid := int64(50)
		a.PhoneNumber, a.UserID = &phone, &uid

		require.NoError(t, n.Notify(ctx, appointment.ActionCreated, a))
		assert.Equal(t, []string{phone}, sender.to)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("sent")))
	})

	t.Run("falls back to user phone", func(t *testing.T) {
		sender := &captureSender{}
		n := notify.NewSMSNotifier(sender, repo, "HereSalon", time.UTC, nil, zaptest.NewLogger(t))

		a := sampleAppointment()
		uid := int64(50)
		a.UserID = &uid

		require.NoError(t, n.Notify(ctx, appointment.ActionUpdated, a))
		assert.Equal(t, []string{"+1 555 000 0050"}, sender.to)
		assert.Contains(t, sender.body[0], "was updated")
	})

	t.Run("no phone skips", func(t *testing.T) {
		sender := &captureSender{}
		m := metrics.NewCollector("test")
		n := notify.NewSMSNotifier(sender, repo, "HereSalon", time.UTC, m, zaptest.NewLogger(t))

		a := sampleAppointment()
		uid := int64(404)
		a.UserID = &uid

		require.NoError(t, n.Notify(ctx, appointment.ActionCreated, a))
		assert.Empty(t, sender.to)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("skipped")))
	})

	t.Run("sender failure is returned", func(t *testing.T) {
		sender := &captureSender{err: errors.New("gateway down")}
		m := metrics.NewCollector("test")
		n := notify.NewSMSNotifier(sender, repo, "HereSalon", time.UTC, m, zaptest.NewLogger(t))

		a := sampleAppointment()
		phone := "+1 555 999 0000"
		a.PhoneNumber = &phone

		assert.Error(t, n.Notify(ctx, appointment.ActionCancelled, a))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("failed")))
	})
}

func TestNoopSender(t *testing.T) {
	assert.NoError(t, notify.NoopSender{Log: zaptest.NewLogger(t)}.Send(context.Background(), "+15550001111", "hi"))
}
