package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medly/medly-portal/internal/clinic"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrDoctorNotFound        = errors.New("doctor not found")
	ErrPatientNotFound       = errors.New("patient not found")
	ErrWindowNotFound        = errors.New("availability window not found")
	ErrSlotNotFound          = errors.New("time slot not found")
	ErrAppointmentNotFound   = errors.New("appointment not found")
	ErrEmailTaken            = errors.New("email already registered")
	ErrDoctorHasAppointments = errors.New("doctor has appointments")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreateUser(ctx context.Context, u User) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error)
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// The account methods write the user and its doctor or patient row
	// together.
	CreateDoctorAccount(ctx context.Context, u User, d Doctor) (*Doctor, error)
	CreatePatientAccount(ctx context.Context, u User, p Patient) (*Patient, error)
	ListDoctors(ctx context.Context, page, size int) ([]Doctor, int, error)
	ListPatients(ctx context.Context, f PatientFilter) ([]Patient, int, error)
	UpdateDoctor(ctx context.Context, id uuid.UUID, u DoctorUpdate) (*Doctor, error)
	// DeleteDoctor removes the doctor, its user, windows and slots.
	DeleteDoctor(ctx context.Context, id uuid.UUID) error

	// Windows and their slots are written together.
	HasOverlappingWindow(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error)
	CreateWindow(ctx context.Context, w Window, slots []Slot) error
	GetWindow(ctx context.Context, id uuid.UUID) (*WindowDetail, error)
	ListWindows(ctx context.Context, doctorID uuid.UUID, page, size int) ([]WindowDetail, int, error)
	DeleteWindow(ctx context.Context, id uuid.UUID) error

	SearchSlots(ctx context.Context, f SlotFilter) ([]SlotDetail, int, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*SlotDetail, error)
	// UpdateSlotStatus only applies when the slot is currently in from.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to clinic.SlotStatus) (*SlotDetail, error)

	// BookSlot flips the slot AVAILABLE->BOOKED and inserts the appointment
	// in one transaction. ErrSlotNotAvailable when the flip does not apply.
	BookSlot(ctx context.Context, slotID, patientID uuid.UUID) (*Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, int, error)
	// UpdateAppointmentStatus only applies when the appointment is currently
	// in from. Cancelling releases the slot back to AVAILABLE.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to clinic.AppointmentStatus) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
	Ping(ctx context.Context) error
}

var (
	_ Repository = (*PgRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
