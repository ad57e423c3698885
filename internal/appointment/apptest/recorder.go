package apptest

import (
	"context"
	"sync"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

type Notification struct {
	Action        appointment.Action
	AppointmentID int64
}

// Notifier records notifications instead of sending them.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (n *Notifier) Notify(ctx context.Context, action appointment.Action, appt *appointment.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Action: action, AppointmentID: appt.ID})
	return n.Err
}

func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []appointment.EventLog
	Err    error
}

func (p *Publisher) Publish(ctx context.Context, ev appointment.EventLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.Err
}

func (p *Publisher) Events() []appointment.EventLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]appointment.EventLog(nil), p.events...)
}
