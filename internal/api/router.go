package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
	"github.com/hackgods/salon-appointment-scheduling/internal/config"
	"github.com/hackgods/salon-appointment-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service   AppointmentService
	Tokens    TokenValidator
	Health    *HealthHandler
	Metrics   *metrics.Collector
	Logger    *zap.Logger
	Location  *time.Location
	RateLimit config.RateLimitConfig
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	h := NewHandler(cfg.Service, cfg.Location, cfg.Logger)

	r.Group(func(r chi.Router) {
		if cfg.RateLimit.RequestsPerSecond > 0 {
			r.Use(NewRateLimiter(cfg.RateLimit).Middleware)
		}
		r.Use(AuthMiddleware(cfg.Tokens))

		// Appointment endpoints
		r.Post("/appointments", h.createAppointment)
		r.Group(func(r chi.Router) {
			r.Use(RequireIdentity)
			r.Get("/appointments", h.listAppointments)
			r.Get("/appointments/{id}", h.getAppointment)
			r.Patch("/appointments/{id}", h.updateAppointment)
			r.Put("/appointments/{id}", h.updateAppointment)
			r.Delete("/appointments/{id}", h.deleteAppointment)
			r.Post("/appointments/{id}/cancel", h.cancelAppointment)
		})

		// Staff schedule endpoints
		r.Get("/staff/{id}/slots", h.availableSlots)
		r.Get("/staff/{id}/conflicts", h.checkConflict)
		r.With(RequireRole(appointment.RoleStaff, appointment.RoleManager, appointment.RoleAdmin)).
			Get("/staff/{id}/appointments", h.staffCalendar)
	})

	return r
}
