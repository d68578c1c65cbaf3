package api

import (
	"time"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/scheduling"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	Role  clinic.Role `json:"role"`
}

type CreateWindowRequest struct {
	DoctorID              string           `json:"doctorId"`
	StartTime             clinic.LocalTime `json:"startTime"`
	EndTime               clinic.LocalTime `json:"endTime"`
	SlotDurationInMinutes int              `json:"slotDurationInMinutes"`
}

type UpdateSlotRequest struct {
	Status clinic.SlotStatus `json:"status"`
}

type CreateAppointmentRequest struct {
	TimeSlotID string `json:"timeSlotId"`
	PatientID  string `json:"patientId"`
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
	Email     string           `json:"email"`
	Password  string           `json:"password"`
	CRM       string           `json:"crm"`
	Specialty clinic.Specialty `json:"specialty"`
}

// UpdateDoctorRequest leaves absent fields unchanged.
type UpdateDoctorRequest struct {
	Name      *string           `json:"name,omitempty"`
	Email     *string           `json:"email,omitempty"`
	Specialty *clinic.Specialty `json:"specialty,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func doctorSummary(d scheduling.Doctor) clinic.DoctorSummary {
	return clinic.DoctorSummary{
		ID:        d.ID.String(),
		Name:      d.Name,
		Specialty: string(d.Specialty),
		CRM:       d.CRM,
	}
}

func toDoctor(d scheduling.Doctor) clinic.Doctor {
	return clinic.Doctor{
		ID:        d.ID.String(),
		Name:      d.Name,
		Email:     d.Email,
		CRM:       d.CRM,
		Specialty: d.Specialty,
	}
}

func toPatient(p scheduling.Patient) clinic.Patient {
	out := clinic.Patient{
		ID:    p.ID.String(),
		Name:  p.Name,
		Email: p.Email,
		CPF:   p.CPF,
	}
	if p.BirthDate != nil {
		out.BirthDate = p.BirthDate.Format(clinic.DateLayout)
	}
	return out
}

func toTimeSlot(s scheduling.SlotDetail) clinic.TimeSlot {
	return clinic.TimeSlot{
		ID:        s.ID.String(),
		StartTime: clinic.NewLocalTime(s.StartTime),
		EndTime:   clinic.NewLocalTime(s.EndTime),
		Status:    s.Status,
		Doctor:    doctorSummary(s.Doctor),
	}
}

func toWindow(w scheduling.WindowDetail) clinic.AvailabilityWindow {
	slots := make([]clinic.TimeSlot, 0, len(w.Slots))
	for _, s := range w.Slots {
		slots = append(slots, toTimeSlot(s))
	}
	return clinic.AvailabilityWindow{
		ID:                    w.ID.String(),
		StartTime:             clinic.NewLocalTime(w.StartTime),
		EndTime:               clinic.NewLocalTime(w.EndTime),
		SlotDurationInMinutes: w.SlotDurationMinutes,
		Status:                w.Status,
		TimeSlots:             slots,
	}
}

func toAppointment(a scheduling.AppointmentDetail) clinic.Appointment {
	out := clinic.Appointment{
		ID:     a.ID.String(),
		Status: a.Status,
		Doctor: doctorSummary(a.Doctor),
		Patient: clinic.PatientSummary{
			ID:    a.Patient.ID.String(),
			Name:  a.Patient.Name,
			Email: a.Patient.Email,
		},
	}
	if a.Slot != nil {
		start := clinic.NewLocalTime(a.Slot.StartTime)
		end := clinic.NewLocalTime(a.Slot.EndTime)
		out.StartTime = &start
		out.EndTime = &end
	}
	return out
}

func toUserProfile(p scheduling.Profile) clinic.UserProfile {
	out := clinic.UserProfile{
		UserID: p.User.ID.String(),
		Name:   p.User.Name,
		Email:  p.User.Email,
		Role:   p.User.Role,
	}
	if p.Doctor != nil {
		out.DoctorProfile = &clinic.DoctorProfile{
			DoctorID:  p.Doctor.ID.String(),
			CRM:       p.Doctor.CRM,
			Specialty: string(p.Doctor.Specialty),
		}
	}
	if p.Patient != nil {
		pp := &clinic.PatientProfile{
			PatientID: p.Patient.ID.String(),
			CPF:       p.Patient.CPF,
		}
		if p.Patient.BirthDate != nil {
			pp.BirthDate = p.Patient.BirthDate.Format(clinic.DateLayout)
		}
		out.PatientProfile = pp
	}
	return out
}

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

// parseBound accepts a local timestamp or a bare date. A bare end date
// covers the whole day.
func parseBound(raw string, end bool) (time.Time, error) {
	if lt, err := clinic.ParseLocalTime(raw); err == nil {
		return lt.Time, nil
	}
	d, err := time.ParseInLocation(clinic.DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		d = d.Add(24*time.Hour - time.Second)
	}
	return d, nil
}
