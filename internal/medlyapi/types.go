package medlyapi

import (
	"github.com/medly/medly-portal/internal/clinic"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	Role  clinic.Role `json:"role"`
}

// SearchParams scopes a time slot search. StartDate and EndDate are local
// timestamps in clinic.LocalTimeLayout.
type SearchParams struct {
	Specialty clinic.Specialty
	DoctorID  string
	StartDate string
	EndDate   string
	Page      int
	Size      int
}

type WindowInput struct {
	StartTime             clinic.LocalTime `json:"startTime"`
	EndTime               clinic.LocalTime `json:"endTime"`
	SlotDurationInMinutes int              `json:"slotDurationInMinutes"`
}

type createWindowRequest struct {
	DoctorID string `json:"doctorId"`
	WindowInput
}

type slotStatusRequest struct {
	Status clinic.SlotStatus `json:"status"`
}

type CreateAppointmentRequest struct {
	TimeSlotID string `json:"timeSlotId"`
	PatientID  string `json:"patientId"`
}

type AppointmentFilter struct {
	Page      int
	Size      int
	DoctorID  string
	PatientID string
	Status    clinic.AppointmentStatus
	StartDate string
	EndDate   string
}

type RegisterRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	CPF       string `json:"cpf"`
	BirthDate string `json:"birthDate"`
}

type CreateDoctorRequest struct {
	Name      string           `json:"name"`
	CRM       string           `json:"crm"`
	Specialty clinic.Specialty `json:"specialty"`
	Email     string           `json:"email"`
	Password  string           `json:"password"`
}

type UpdateDoctorRequest struct {
	Name      *string           `json:"name,omitempty"`
	Email     *string           `json:"email,omitempty"`
	Specialty *clinic.Specialty `json:"specialty,omitempty"`
}

// ListParams pages the directory listings. Name only applies to patients.
type ListParams struct {
	Page int
	Size int
	Name string
}
