package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/middleware"
	"github.com/medly/medly-portal/internal/scheduling"
)

type RouterConfig struct {
	Service *scheduling.Service
	Auth    *scheduling.Auth
	Redis   *redis.Client // optional, reported by readiness when set
	Env     string
	Version string
	Logger  zerolog.Logger
}

// NewRouter serves the development Medly API. Everything except login,
// registration and health checks requires a bearer token. Doctor accounts
// are managed by admins only.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))

	health := NewHealthHandler(cfg.Service, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", loginHandler(cfg.Auth))
		r.Post("/auth/register", registerHandler(cfg.Service))

		r.Group(func(r chi.Router) {
			r.Use(RequireToken(cfg.Auth))

			r.Get("/auth/me", meHandler(cfg.Auth))

			r.Get("/schedule/timeslots/search", searchSlotsHandler(cfg.Service))
			r.Patch("/schedule/timeslots/{id}", updateSlotHandler(cfg.Service))
			r.Get("/schedule/windows", listWindowsHandler(cfg.Service))
			r.Post("/schedule/windows", createWindowHandler(cfg.Service))
			r.Delete("/schedule/windows/{id}", deleteWindowHandler(cfg.Service))

			r.Get("/appointments", listAppointmentsHandler(cfg.Service))
			r.Post("/appointments", createAppointmentHandler(cfg.Service))
			r.Patch("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
			r.Patch("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))

			r.Get("/doctors", listDoctorsHandler(cfg.Service))
			r.Get("/doctors/{id}", getDoctorHandler(cfg.Service))
			r.Get("/patients", listPatientsHandler(cfg.Service))
			r.Get("/patients/{id}", getPatientHandler(cfg.Service))

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(clinic.RoleAdmin))
				r.Post("/doctors", createDoctorHandler(cfg.Service))
				r.Put("/doctors/{id}", updateDoctorHandler(cfg.Service))
				r.Delete("/doctors/{id}", deleteDoctorHandler(cfg.Service))
			})
		})
	})

	return r
}
