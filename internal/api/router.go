package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/observability/metrics"
	"github.com/hackgods/therapy-booking/internal/validation"
)

type RouterConfig struct {
	Appointments   AppointmentService
	Prescriptions  PrescriptionService
	Auth           TokenAuthenticator
	Health         *HealthHandler
	Logger         *slog.Logger
	Metrics        *metrics.HTTPMetrics
	MetricsHandler http.Handler
	FrontendOrigin string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validate := validation.New()

	appts := &appointmentHandler{svc: cfg.Appointments, validate: validate, log: logger}
	rx := &prescriptionHandler{svc: cfg.Prescriptions, validate: validate, log: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(CORS(cfg.FrontendOrigin))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.Auth))

		r.Route("/appointments", func(r chi.Router) {
			// Guests may book without a token.
			r.Post("/", appts.create)

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth)

				r.With(RequireRole(appointment.RoleAdmin)).Get("/", appts.listAll)
				r.Get("/user", appts.listForClient)
				r.With(RequireRole(appointment.RoleTherapist)).Get("/therapist", appts.listForTherapist)
				r.Get("/{id}", appts.get)
				r.Put("/{id}/status", appts.setStatus)
				r.Put("/{id}/reschedule", appts.reschedule)
				r.Patch("/{id}/datetime", appts.updateDateTime)
				r.Put("/{id}/cancel", appts.cancel)
			})
		})

		r.Get("/therapists/{id}/availability", appts.availability)

		r.Route("/prescriptions", func(r chi.Router) {
			r.Use(RequireAuth)

			r.Post("/", rx.create)
			r.Get("/appointment/{appointmentId}", rx.getByAppointment)
			r.Get("/patient/{patientId}", rx.listByPatient)
			r.Put("/{id}", rx.update)
		})
	})

	return r
}
