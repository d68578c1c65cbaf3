package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medly/medly-portal/internal/clinic"
)

const (
	EventDoctorCreated     = "DOCTOR_CREATED"
	EventDoctorUpdated     = "DOCTOR_UPDATED"
	EventDoctorDeleted     = "DOCTOR_DELETED"
	EventPatientRegistered = "PATIENT_REGISTERED"

	MinPasswordLength = 6
)

var (
	ErrMissingField    = errors.New("required field is missing")
	ErrInvalidEmail    = errors.New("email is not valid")
	ErrWeakPassword    = errors.New("password must have at least 6 characters")
	ErrInvalidCPF      = errors.New("cpf must look like 000.000.000-00")
	ErrInvalidBirthday = errors.New("birth date must be in the past")
)

var cpfPattern = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$`)

type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	CPF       string
	BirthDate time.Time
}

type DoctorInput struct {
	Name      string
	Email     string
	Password  string
	CRM       string
	Specialty clinic.Specialty
}

func checkEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, " <>") {
		return ErrInvalidEmail
	}
	return nil
}

func checkPassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// required takes name/value pairs and reports the first blank one.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, pairs[i])
		}
	}
	return nil
}

// RegisterPatient is the public sign-up: a PATIENT user plus its patient row.
func (s *Service) RegisterPatient(ctx context.Context, in RegisterInput) (*Patient, error) {
	if err := required("name", in.Name, "email", in.Email, "cpf", in.CPF); err != nil {
		return nil, err
	}
	if in.BirthDate.IsZero() {
		return nil, fmt.Errorf("%w: birthDate", ErrMissingField)
	}
	if err := checkEmail(in.Email); err != nil {
		return nil, err
	}
	if !cpfPattern.MatchString(in.CPF) {
		return nil, ErrInvalidCPF
	}
	if !in.BirthDate.Before(s.now()) {
		return nil, ErrInvalidBirthday
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	birth := in.BirthDate
	p, err := s.repo.CreatePatientAccount(ctx,
		User{Name: strings.TrimSpace(in.Name), Email: strings.TrimSpace(in.Email), PasswordHash: hash, Role: clinic.RolePatient},
		Patient{CPF: in.CPF, BirthDate: &birth},
	)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create patient account: %w", err)
	}
	s.logEvent(ctx, EventLog{EventType: EventPatientRegistered}, map[string]any{"patient_id": p.ID.String()})
	return p, nil
}

func (s *Service) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	if err := required("name", in.Name, "email", in.Email, "crm", in.CRM, "specialty", string(in.Specialty)); err != nil {
		return nil, err
	}
	if err := checkEmail(in.Email); err != nil {
		return nil, err
	}
	specialty, err := clinic.ParseSpecialty(string(in.Specialty))
	if err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	d, err := s.repo.CreateDoctorAccount(ctx,
		User{Name: strings.TrimSpace(in.Name), Email: strings.TrimSpace(in.Email), PasswordHash: hash, Role: clinic.RoleDoctor},
		Doctor{CRM: strings.TrimSpace(in.CRM), Specialty: specialty},
	)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create doctor account: %w", err)
	}
	s.logEvent(ctx, EventLog{EventType: EventDoctorCreated}, map[string]any{"doctor_id": d.ID.String()})
	return d, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, upd DoctorUpdate) (*Doctor, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name", ErrMissingField)
		}
		upd.Name = &name
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if err := checkEmail(email); err != nil {
			return nil, err
		}
		upd.Email = &email
	}
	if upd.Specialty != nil {
		specialty, err := clinic.ParseSpecialty(string(*upd.Specialty))
		if err != nil {
			return nil, err
		}
		if specialty == "" {
			return nil, fmt.Errorf("%w: specialty", ErrMissingField)
		}
		upd.Specialty = &specialty
	}

	d, err := s.repo.UpdateDoctor(ctx, id, upd)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) || errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	s.logEvent(ctx, EventLog{EventType: EventDoctorUpdated}, map[string]any{"doctor_id": id.String()})
	return d, nil
}

// DeleteDoctor refuses doctors with any appointment on record.
func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteDoctor(ctx, id); err != nil {
		if errors.Is(err, ErrDoctorNotFound) || errors.Is(err, ErrDoctorHasAppointments) {
			return err
		}
		return fmt.Errorf("delete doctor: %w", err)
	}
	s.logEvent(ctx, EventLog{EventType: EventDoctorDeleted}, map[string]any{"doctor_id": id.String()})
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (s *Service) ListDoctors(ctx context.Context, page, size int) ([]Doctor, int, error) {
	page, size = normalizePage(page, size)
	doctors, total, err := s.repo.ListDoctors(ctx, page, size)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, total, nil
}

func (s *Service) ListPatients(ctx context.Context, f PatientFilter) ([]Patient, int, error) {
	f.Page, f.Size = normalizePage(f.Page, f.Size)
	patients, total, err := s.repo.ListPatients(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	return patients, total, nil
}
