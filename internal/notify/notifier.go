package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
	"github.com/hackgods/salon-appointment-scheduling/internal/metrics"
)

// PhoneBook resolves the phone number of a registered customer.
type PhoneBook interface {
	GetUserPhone(ctx context.Context, userID int64) (string, error)
}

// SMSNotifier implements appointment.Notifier. The number on the
// appointment wins; otherwise the owning user's phone is looked up.
type SMSNotifier struct {
	sender  Sender
	phones  PhoneBook
	brand   string
	loc     *time.Location
	metrics *metrics.Collector
	log     *zap.Logger
}

var _ appointment.Notifier = (*SMSNotifier)(nil)

func NewSMSNotifier(sender Sender, phones PhoneBook, brand string, loc *time.Location, m *metrics.Collector, log *zap.Logger) *SMSNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &SMSNotifier{sender: sender, phones: phones, brand: brand, loc: loc, metrics: m, log: log}
}

func (n *SMSNotifier) Notify(ctx context.Context, action appointment.Action, a *appointment.Appointment) error {
	to, err := n.resolvePhone(ctx, a)
	if err != nil {
		n.metrics.Notification("failed")
		return err
	}
	if to == "" {
		n.metrics.Notification("skipped")
		n.log.Info("no phone number for appointment, skipping sms", zap.Int64("appointment_id", a.ID))
		return nil
	}

	if err := n.sender.Send(ctx, to, Message(n.brand, action, a, n.loc)); err != nil {
		n.metrics.Notification("failed")
		return err
	}

	n.metrics.Notification("sent")
	return nil
}

func (n *SMSNotifier) resolvePhone(ctx context.Context, a *appointment.Appointment) (string, error) {
	if a.PhoneNumber != nil && *a.PhoneNumber != "" {
		return *a.PhoneNumber, nil
	}
	if a.UserID == nil || n.phones == nil {
		return "", nil
	}
	phone, err := n.phones.GetUserPhone(ctx, *a.UserID)
	if errors.Is(err, appointment.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup phone for user %d: %w", *a.UserID, err)
	}
	return phone, nil
}
