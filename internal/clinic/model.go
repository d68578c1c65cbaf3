// Package clinic holds the types shared by the portal workflows and the
// Medly REST API: time slots, availability windows, appointments and the
// people they reference.
package clinic

import (
	"errors"
	"fmt"
	"strings"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotBlocked   SlotStatus = "BLOCKED"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotBooked, SlotBlocked:
		return true
	}
	return false
}

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

// CanTransitionTo reports whether an appointment may move from s to next.
// Only scheduled appointments advance, and they never revert.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	return s == AppointmentScheduled && (next == AppointmentCompleted || next == AppointmentCancelled)
}

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
)

type Specialty string

const (
	Cardiology  Specialty = "CARDIOLOGY"
	Dermatology Specialty = "DERMATOLOGY"
	Neurology   Specialty = "NEUROLOGY"
	Pediatrics  Specialty = "PEDIATRICS"
	Psychiatry  Specialty = "PSYCHIATRY"
	Radiology   Specialty = "RADIOLOGY"
	Surgery     Specialty = "SURGERY"
)

var Specialties = []Specialty{
	Cardiology,
	Dermatology,
	Neurology,
	Pediatrics,
	Psychiatry,
	Radiology,
	Surgery,
}

var ErrUnknownSpecialty = errors.New("unknown specialty")

// ParseSpecialty accepts any casing. The empty string means "all specialties".
func ParseSpecialty(raw string) (Specialty, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	for _, s := range Specialties {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSpecialty, raw)
}

type DoctorSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	CRM       string `json:"crm,omitempty"`
}

type PatientSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Doctor and Patient are the directory entries the admin screens list.
type Doctor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CRM       string    `json:"crm"`
	Specialty Specialty `json:"specialty"`
}

type Patient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CPF       string `json:"cpf,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
}

type TimeSlot struct {
	ID        string        `json:"id"`
	StartTime LocalTime     `json:"startTime"`
	EndTime   LocalTime     `json:"endTime"`
	Status    SlotStatus    `json:"status"`
	Doctor    DoctorSummary `json:"doctor"`
}

type AvailabilityWindow struct {
	ID                    string     `json:"id,omitempty"`
	StartTime             LocalTime  `json:"startTime"`
	EndTime               LocalTime  `json:"endTime"`
	SlotDurationInMinutes int        `json:"slotDurationInMinutes"`
	Status                string     `json:"status,omitempty"`
	TimeSlots             []TimeSlot `json:"timeSlots"`
}

type Appointment struct {
	ID        string            `json:"id"`
	StartTime *LocalTime        `json:"startTime"`
	EndTime   *LocalTime        `json:"endTime"`
	Status    AppointmentStatus `json:"status"`
	Doctor    DoctorSummary     `json:"doctor"`
	Patient   PatientSummary    `json:"patient"`
}

type PatientProfile struct {
	PatientID string `json:"patientId"`
	CPF       string `json:"cpf,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
}

type DoctorProfile struct {
	DoctorID  string `json:"doctorId"`
	CRM       string `json:"crm,omitempty"`
	Specialty string `json:"specialty,omitempty"`
}

type UserProfile struct {
	UserID         string          `json:"userId"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Role           Role            `json:"role"`
	PatientProfile *PatientProfile `json:"patientProfile,omitempty"`
	DoctorProfile  *DoctorProfile  `json:"doctorProfile,omitempty"`
}

type PageInfo struct {
	Size          int `json:"size"`
	Number        int `json:"number"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
}

// Page is the paginated envelope every list endpoint answers with.
type Page[T any] struct {
	Content []T      `json:"content"`
	Page    PageInfo `json:"page"`
}

// NewPage builds the envelope for one page of a result of total elements.
func NewPage[T any](content []T, number, size, total int) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Page[T]{
		Content: content,
		Page: PageInfo{
			Size:          size,
			Number:        number,
			TotalElements: total,
			TotalPages:    pages,
		},
	}
}
