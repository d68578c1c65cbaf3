package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/medly/medly-portal/internal/clinic"
)

const WindowActive = "ACTIVE"

type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Role         clinic.Role
	CreatedAt    time.Time
}

type Doctor struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     string
	CRM       string
	Specialty clinic.Specialty
}

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     string
	CPF       string
	BirthDate *time.Time
}

// Times are clinic wall-clock times stored without a zone.
type Window struct {
	ID                  uuid.UUID
	DoctorID            uuid.UUID
	StartTime           time.Time
	EndTime             time.Time
	SlotDurationMinutes int
	Status              string
	CreatedAt           time.Time
}

type Slot struct {
	ID        uuid.UUID
	WindowID  uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Status    clinic.SlotStatus
}

// SlotID is nil once the slot's window has been deleted.
type Appointment struct {
	ID        uuid.UUID
	SlotID    *uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Status    clinic.AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	WindowID      *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type SlotDetail struct {
	Slot
	Doctor Doctor
}

type WindowDetail struct {
	Window
	Slots []SlotDetail
}

type AppointmentDetail struct {
	Appointment
	Slot    *Slot
	Doctor  Doctor
	Patient Patient
}

type Profile struct {
	User    User
	Doctor  *Doctor
	Patient *Patient
}

type SlotFilter struct {
	Specialty clinic.Specialty
	DoctorID  *uuid.UUID
	Start     time.Time
	End       time.Time
	Page      int
	Size      int
}

type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    clinic.AppointmentStatus
	Start     *time.Time
	End       *time.Time
	Page      int
	Size      int
}

// DoctorUpdate carries the fields an admin may change. Nil leaves a field
// as it is.
type DoctorUpdate struct {
	Name      *string
	Email     *string
	Specialty *clinic.Specialty
}

type PatientFilter struct {
	Name string // case-insensitive substring
	Page int
	Size int
}
