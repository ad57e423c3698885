package workinghours

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

// Store loads the candidate rules for a salon on one date.
type Store interface {
	RulesFor(ctx context.Context, salonID int64, date time.Time) ([]Rule, error)
}

// Provider implements appointment.WorkingHoursProvider on top of a Store.
type Provider struct {
	store Store
	log   *zap.Logger
}

func NewProvider(store Store, log *zap.Logger) *Provider {
	return &Provider{store: store, log: log}
}

func (p *Provider) Window(ctx context.Context, staff *appointment.Staff, date time.Time) (appointment.Window, bool, error) {
	rules, err := p.store.RulesFor(ctx, staff.SalonID, date)
	if err != nil {
		return appointment.Window{}, false, fmt.Errorf("load working hours for salon %d: %w", staff.SalonID, err)
	}

	valid := rules[:0:0]
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			p.log.Warn("skipping invalid working hours rule", zap.Int64("rule_id", r.ID), zap.Error(err))
			continue
		}
		valid = append(valid, r)
	}

	w, ok := Resolve(valid, staff, date)
	return w, ok, nil
}

var _ appointment.WorkingHoursProvider = (*Provider)(nil)
