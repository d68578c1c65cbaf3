// Package dashboard assembles the admin, doctor and patient home screens and
// runs the appointment status actions offered on them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/notify"
	"github.com/medly/medly-portal/internal/schedule"
)

const (
	msgDoctorLoadFailed  = "Falha ao carregar dados do painel."
	msgPatientLoadFailed = "Falha ao carregar suas consultas."
	msgStatusUpdated     = "Status atualizado."
	msgStatusFailed      = "Não foi possível atualizar o status."
	msgCancelled         = "Consulta cancelada com sucesso."
	msgCancelFailed      = "Não foi possível cancelar a consulta."

	// listSize bounds how many appointments one dashboard load pulls.
	listSize = 100
)

var (
	ErrMissingIdentity   = errors.New("profile id is unknown")
	ErrInvalidTransition = errors.New("appointment can only be completed or cancelled")
)

type Collaborator interface {
	ListAppointments(ctx context.Context, f medlyapi.AppointmentFilter) (*clinic.Page[clinic.Appointment], error)
	ListWindows(ctx context.Context, doctorID string) (*clinic.Page[clinic.AvailabilityWindow], error)
	CompleteAppointment(ctx context.Context, id string) (*clinic.Appointment, error)
	CancelAppointment(ctx context.Context, id string) (*clinic.Appointment, error)
	ListDoctors(ctx context.Context, p medlyapi.ListParams) (*clinic.Page[clinic.Doctor], error)
	ListPatients(ctx context.Context, p medlyapi.ListParams) (*clinic.Page[clinic.Patient], error)
}

type Service struct {
	api      Collaborator
	notifier notify.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(api Collaborator, opts ...Option) *Service {
	s := &Service{
		api:      api,
		notifier: notify.Discard,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DateRange optionally narrows the doctor's appointments. Values are local
// timestamps or dates as the API accepts them; empty means unbounded.
type DateRange struct {
	StartDate string
	EndDate   string
}

type DoctorDashboard struct {
	Appointments []clinic.Appointment        `json:"appointments"`
	Windows      []clinic.AvailabilityWindow `json:"windows"`
	Counts       StatusCounts                `json:"counts"`
	Schedule     schedule.Stats              `json:"schedule"`
}

type StatusCounts struct {
	Scheduled int `json:"scheduled"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// Doctor loads appointments and windows concurrently. Either failure fails
// the whole load.
func (s *Service) Doctor(ctx context.Context, doctorID string, r DateRange) (*DoctorDashboard, error) {
	if doctorID == "" {
		return nil, ErrMissingIdentity
	}

	var (
		appts   *clinic.Page[clinic.Appointment]
		windows *clinic.Page[clinic.AvailabilityWindow]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		appts, err = s.api.ListAppointments(gctx, medlyapi.AppointmentFilter{
			Size:      listSize,
			DoctorID:  doctorID,
			StartDate: r.StartDate,
			EndDate:   r.EndDate,
		})
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		windows, err = s.api.ListWindows(gctx, doctorID)
		if err != nil {
			return fmt.Errorf("list windows: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Str("doctor_id", doctorID).Msg("load doctor dashboard")
		s.notifier.Notify(notify.LevelError, msgDoctorLoadFailed)
		return nil, err
	}

	return &DoctorDashboard{
		Appointments: appts.Content,
		Windows:      windows.Content,
		Counts:       CountStatuses(appts.Content),
		Schedule:     schedule.ComputeStats(windows.Content),
	}, nil
}

type PatientDashboard struct {
	Appointments []clinic.Appointment `json:"appointments"`
	Scheduled    []clinic.Appointment `json:"scheduled"`
	Completed    []clinic.Appointment `json:"completed"`
	Cancelled    []clinic.Appointment `json:"cancelled"`
	Upcoming     []clinic.Appointment `json:"upcoming"`
	Next         *clinic.Appointment  `json:"next"`
}

func (s *Service) Patient(ctx context.Context, patientID string) (*PatientDashboard, error) {
	if patientID == "" {
		return nil, ErrMissingIdentity
	}

	page, err := s.api.ListAppointments(ctx, medlyapi.AppointmentFilter{Size: listSize, PatientID: patientID})
	if err != nil {
		s.log.Error().Err(err).Str("patient_id", patientID).Msg("load patient dashboard")
		s.notifier.Notify(notify.LevelError, msgPatientLoadFailed)
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	d := SummarizePatient(page.Content, s.now())
	return &d, nil
}

// SummarizePatient splits appointments by status. Upcoming holds the
// scheduled ones starting at or after now, soonest first.
func SummarizePatient(appts []clinic.Appointment, now time.Time) PatientDashboard {
	d := PatientDashboard{
		Appointments: nonNil(appts),
		Scheduled:    []clinic.Appointment{},
		Completed:    []clinic.Appointment{},
		Cancelled:    []clinic.Appointment{},
		Upcoming:     []clinic.Appointment{},
	}
	for _, a := range appts {
		switch a.Status {
		case clinic.AppointmentScheduled:
			d.Scheduled = append(d.Scheduled, a)
			if a.StartTime != nil && !a.StartTime.Before(now) {
				d.Upcoming = append(d.Upcoming, a)
			}
		case clinic.AppointmentCompleted:
			d.Completed = append(d.Completed, a)
		case clinic.AppointmentCancelled:
			d.Cancelled = append(d.Cancelled, a)
		}
	}
	sort.SliceStable(d.Upcoming, func(i, j int) bool {
		return d.Upcoming[i].StartTime.Before(d.Upcoming[j].StartTime.Time)
	})
	if len(d.Upcoming) > 0 {
		next := d.Upcoming[0]
		d.Next = &next
	}
	return d
}

func CountStatuses(appts []clinic.Appointment) StatusCounts {
	var c StatusCounts
	for _, a := range appts {
		switch a.Status {
		case clinic.AppointmentScheduled:
			c.Scheduled++
		case clinic.AppointmentCompleted:
			c.Completed++
		case clinic.AppointmentCancelled:
			c.Cancelled++
		}
	}
	return c
}

// UpdateAppointmentStatus is the doctor's action: complete or cancel.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, appointmentID string, target clinic.AppointmentStatus) (*clinic.Appointment, error) {
	var (
		appt *clinic.Appointment
		err  error
	)
	switch target {
	case clinic.AppointmentCompleted:
		appt, err = s.api.CompleteAppointment(ctx, appointmentID)
	case clinic.AppointmentCancelled:
		appt, err = s.api.CancelAppointment(ctx, appointmentID)
	default:
		return nil, ErrInvalidTransition
	}
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appointmentID).Str("target", string(target)).Msg("update appointment status")
		s.notifier.Notify(notify.LevelError, msgStatusFailed)
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	s.notifier.Notify(notify.LevelSuccess, msgStatusUpdated)
	return appt, nil
}

// CancelAppointment is the patient's action.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID string) (*clinic.Appointment, error) {
	appt, err := s.api.CancelAppointment(ctx, appointmentID)
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appointmentID).Msg("cancel appointment")
		s.notifier.Notify(notify.LevelError, msgCancelFailed)
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	s.notifier.Notify(notify.LevelSuccess, msgCancelled)
	return appt, nil
}

func nonNil(appts []clinic.Appointment) []clinic.Appointment {
	if appts == nil {
		return []clinic.Appointment{}
	}
	return appts
}
