package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/carebridge/scheduling/internal/booking"
	"github.com/carebridge/scheduling/internal/schedule"
	"github.com/carebridge/scheduling/internal/slot"
)

type RouterConfig struct {
	Schedule *schedule.Service
	Holds    *slot.HoldManager
	Booking  *booking.Service
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Put("/template", saveTemplateHandler(cfg.Schedule))
		r.Get("/template", getTemplateHandler(cfg.Schedule))
		r.Post("/exceptions", addExceptionHandler(cfg.Schedule))
		r.Delete("/exceptions/{exceptionID}", deleteExceptionHandler(cfg.Schedule))
		r.Post("/slots/generate", generateSlotsHandler(cfg.Schedule))
		r.Get("/slots", listAvailableSlotsHandler(cfg.Holds))
		r.Get("/appointments", listProviderAppointmentsHandler(cfg.Booking))
	})

	r.Route("/slots/{slotID}", func(r chi.Router) {
		r.Post("/hold", holdSlotHandler(cfg.Holds))
		r.Post("/release", releaseHoldHandler(cfg.Holds))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Booking))
		r.Get("/{appointmentID}", getAppointmentHandler(cfg.Booking))
		r.Get("/{appointmentID}/history", appointmentHistoryHandler(cfg.Booking))
		r.Post("/{appointmentID}/cancel", cancelAppointmentHandler(cfg.Booking))
		r.Post("/{appointmentID}/reschedule", rescheduleAppointmentHandler(cfg.Booking))
		r.Post("/{appointmentID}/complete", completeAppointmentHandler(cfg.Booking))
		r.Post("/{appointmentID}/no-show", noShowAppointmentHandler(cfg.Booking))
	})

	r.Get("/patients/{patientID}/appointments", listPatientAppointmentsHandler(cfg.Booking))

	return r
}
