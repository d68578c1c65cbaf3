// Package admin runs the administrator screens: paginated listings of
// doctors, patients and appointments, and doctor account management.
package admin

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/notify"
)

const (
	msgDoctorsFailed      = "Não foi possível carregar a lista de médicos."
	msgPatientsFailed     = "Não foi possível carregar a lista de pacientes."
	msgAppointmentsFailed = "Não foi possível carregar a lista de consultas."
	msgDoctorCreated      = "Médico cadastrado com sucesso!"
	msgDoctorCreateFailed = "Erro ao cadastrar médico. Tente novamente."
	msgDoctorUpdated      = "Médico atualizado com sucesso!"
	msgDoctorUpdateFailed = "Erro ao atualizar médico."
	msgDoctorDeleted      = "Médico excluído com sucesso!"
	msgDoctorDeleteFailed = "Erro ao excluir médico."
)

type Collaborator interface {
	ListDoctors(ctx context.Context, p medlyapi.ListParams) (*clinic.Page[clinic.Doctor], error)
	ListPatients(ctx context.Context, p medlyapi.ListParams) (*clinic.Page[clinic.Patient], error)
	ListAppointments(ctx context.Context, f medlyapi.AppointmentFilter) (*clinic.Page[clinic.Appointment], error)
	CreateDoctor(ctx context.Context, req medlyapi.CreateDoctorRequest) (*clinic.Doctor, error)
	UpdateDoctor(ctx context.Context, id string, req medlyapi.UpdateDoctorRequest) (*clinic.Doctor, error)
	DeleteDoctor(ctx context.Context, id string) error
}

type Directory struct {
	api      Collaborator
	notifier notify.Notifier
	log      zerolog.Logger
}

type Option func(*Directory)

func WithNotifier(n notify.Notifier) Option {
	return func(d *Directory) { d.notifier = n }
}

func WithLogger(log zerolog.Logger) Option {
	return func(d *Directory) { d.log = log }
}

func New(api Collaborator, opts ...Option) *Directory {
	d := &Directory{
		api:      api,
		notifier: notify.Discard,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Directory) Doctors(ctx context.Context, p medlyapi.ListParams) (*clinic.Page[clinic.Doctor], error) {
	page, err := d.api.ListDoctors(ctx, p)
	if err != nil {
		d.log.Error().Err(err).Int("page", p.Page).Msg("list doctors")
		d.notifier.Notify(notify.LevelError, msgDoctorsFailed)
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return page, nil
}

func (d *Directory) Patients(ctx context.Context, p medlyapi.ListParams) (*clinic.Page[clinic.Patient], error) {
	page, err := d.api.ListPatients(ctx, p)
	if err != nil {
		d.log.Error().Err(err).Int("page", p.Page).Str("name", p.Name).Msg("list patients")
		d.notifier.Notify(notify.LevelError, msgPatientsFailed)
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return page, nil
}

// Appointments lists every appointment in the clinic, newest first.
func (d *Directory) Appointments(ctx context.Context, f medlyapi.AppointmentFilter) (*clinic.Page[clinic.Appointment], error) {
	page, err := d.api.ListAppointments(ctx, f)
	if err != nil {
		d.log.Error().Err(err).Int("page", f.Page).Msg("list appointments")
		d.notifier.Notify(notify.LevelError, msgAppointmentsFailed)
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return page, nil
}

// CreateDoctor returns FieldErrors without calling the API when the form is
// incomplete.
func (d *Directory) CreateDoctor(ctx context.Context, form DoctorForm) (*clinic.Doctor, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	created, err := d.api.CreateDoctor(ctx, form.request())
	if err != nil {
		d.log.Error().Err(err).Str("email", form.Email).Msg("create doctor")
		d.notifier.Notify(notify.LevelError, msgDoctorCreateFailed)
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	d.log.Info().Str("doctor_id", created.ID).Msg("doctor created")
	d.notifier.Notify(notify.LevelSuccess, msgDoctorCreated)
	return created, nil
}

func (d *Directory) UpdateDoctor(ctx context.Context, id string, edit DoctorEdit) (*clinic.Doctor, error) {
	if err := edit.Validate(); err != nil {
		return nil, err
	}
	updated, err := d.api.UpdateDoctor(ctx, id, medlyapi.UpdateDoctorRequest{
		Name:      edit.Name,
		Email:     edit.Email,
		Specialty: edit.Specialty,
	})
	if err != nil {
		d.log.Error().Err(err).Str("doctor_id", id).Msg("update doctor")
		d.notifier.Notify(notify.LevelError, msgDoctorUpdateFailed)
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	d.notifier.Notify(notify.LevelSuccess, msgDoctorUpdated)
	return updated, nil
}

func (d *Directory) DeleteDoctor(ctx context.Context, id string) error {
	if err := d.api.DeleteDoctor(ctx, id); err != nil {
		d.log.Error().Err(err).Str("doctor_id", id).Msg("delete doctor")
		if msg := medlyapi.Message(err); msg != "" {
			d.notifier.Notify(notify.LevelError, msg)
		} else {
			d.notifier.Notify(notify.LevelError, msgDoctorDeleteFailed)
		}
		return fmt.Errorf("delete doctor: %w", err)
	}
	d.log.Info().Str("doctor_id", id).Msg("doctor deleted")
	d.notifier.Notify(notify.LevelSuccess, msgDoctorDeleted)
	return nil
}
