// Package portal is the backend for the Medly web front end. It keeps one
// session per signed-in user and runs the booking, schedule, dashboard and
// admin workflows on their behalf against the Medly API.
package portal

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medly/medly-portal/internal/booking"
	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/dashboard"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/middleware"
	"github.com/medly/medly-portal/internal/notify"
	redisclient "github.com/medly/medly-portal/internal/redis"
	"github.com/medly/medly-portal/internal/schedule"
	"github.com/medly/medly-portal/internal/session"
)

type Config struct {
	API              *medlyapi.Client
	Sessions         session.Store
	Locker           redisclient.Locker
	Redis            *redis.Client // optional, reported by readiness when set
	Logger           zerolog.Logger
	Env              string
	Version          string
	SearchPageSize   int
	StaleSearchGuard bool
	WorkspaceIdle    time.Duration // evict workflow state unused for this long, 0 keeps it
	SecureCookies    bool
	Now              func() time.Time
}

type Server struct {
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
	workspaces *registry
}

func NewServer(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Locker == nil {
		cfg.Locker = redisclient.NopLocker{}
	}
	return &Server{
		cfg:        cfg,
		log:        cfg.Logger,
		now:        cfg.Now,
		workspaces: newRegistry(cfg.WorkspaceIdle, cfg.Now),
	}
}

func NewRouter(cfg Config) http.Handler {
	return NewServer(cfg).Routes()
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.log))
	r.Use(middleware.Recovery(s.log))
	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/auth/logout", s.handleLogout)
		r.Get("/me", s.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(clinic.RolePatient))

			r.Get("/booking", s.handleBookingState)
			r.Post("/booking/search", s.handleBookingSearch)
			r.Post("/booking/doctors/{id}/select", s.handleSelectDoctor)
			r.Post("/booking/slots/{id}/select", s.handleSelectSlot)
			r.Delete("/booking/slot", s.handleClearSlot)
			r.Post("/booking/confirm", s.handleConfirm)
			r.Post("/booking/reset", s.handleBookingReset)

			r.Get("/patient", s.handlePatientDashboard)
			r.Get("/patient/dashboard", s.handlePatientDashboard)
			r.Post("/patient/appointments/{id}/cancel", s.handlePatientCancel)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(clinic.RoleDoctor))

			r.Get("/doctor/schedule", s.handleSchedule)
			r.Post("/doctor/schedule/windows", s.handleCreateWindow)
			r.Delete("/doctor/schedule/windows/{id}", s.handleDeleteWindow)
			r.Post("/doctor/schedule/slots/{id}/toggle", s.handleToggleSlot)

			r.Get("/doctor", s.handleDoctorDashboard)
			r.Get("/doctor/dashboard", s.handleDoctorDashboard)
			r.Post("/doctor/appointments/{id}/status", s.handleAppointmentStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(clinic.RoleAdmin))

			r.Get("/admin", s.handleAdminDashboard)
			r.Get("/admin/doctors", s.handleAdminDoctors)
			r.Post("/admin/doctors", s.handleCreateDoctor)
			r.Put("/admin/doctors/{id}", s.handleUpdateDoctor)
			r.Delete("/admin/doctors/{id}", s.handleDeleteDoctor)
			r.Get("/admin/patients", s.handleAdminPatients)
			r.Get("/admin/appointments", s.handleAdminAppointments)
		})
	})

	return r
}

// notifier routes workflow notifications into the session's workspace and
// mirrors them to the log.
func (s *Server) notifier(log zerolog.Logger, ws *workspace) notify.Notifier {
	return notify.Logged(log, ws.notes)
}

func (s *Server) sessionLogger(sess *session.Session) zerolog.Logger {
	return s.log.With().Str("session_id", sess.ID).Str("role", string(sess.Role)).Logger()
}

func (s *Server) requestLogger(r *http.Request) zerolog.Logger {
	l := s.log.With().Str("request_id", middleware.GetRequestID(r.Context()))
	if sess, ok := session.FromContext(r.Context()); ok {
		l = l.Str("session_id", sess.ID).Str("role", string(sess.Role))
	}
	return l.Logger()
}

func (s *Server) apiFor(sess *session.Session) *medlyapi.Client {
	return s.cfg.API.WithToken(sess.Token)
}

func (s *Server) bookingFor(sess *session.Session, ws *workspace) *booking.Workflow {
	return ws.bookingWorkflow(func() *booking.Workflow {
		log := s.sessionLogger(sess)
		opts := []booking.Option{
			booking.WithNotifier(s.notifier(log, ws)),
			booking.WithLogger(log),
			booking.WithClock(s.now),
			booking.WithPageSize(s.cfg.SearchPageSize),
		}
		if s.cfg.StaleSearchGuard {
			opts = append(opts, booking.WithStaleSearchGuard())
		}
		return booking.New(s.apiFor(sess), opts...)
	})
}

func (s *Server) scheduleFor(sess *session.Session, ws *workspace) *schedule.Manager {
	return ws.scheduleManager(func() *schedule.Manager {
		log := s.sessionLogger(sess)
		return schedule.NewManager(s.apiFor(sess), sess.DoctorID(),
			schedule.WithNotifier(s.notifier(log, ws)),
			schedule.WithLogger(log),
		)
	})
}

func (s *Server) dashboardFor(r *http.Request, sess *session.Session, ws *workspace) *dashboard.Service {
	log := s.requestLogger(r)
	return dashboard.New(s.apiFor(sess),
		dashboard.WithNotifier(s.notifier(log, ws)),
		dashboard.WithLogger(log),
		dashboard.WithClock(s.now),
	)
}

type livenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{Data: livenessResponse{Status: "ok", Version: s.cfg.Version, Env: s.cfg.Env}})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	deps := map[string]string{}
	status := http.StatusOK
	if s.cfg.Redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		deps["redis"] = "ok"
		if err := s.cfg.Redis.Ping(ctx).Err(); err != nil {
			deps["redis"] = "down"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, Envelope{Data: deps})
}
