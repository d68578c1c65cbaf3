package medlyapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/medly/medly-portal/internal/clinic"
)

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*clinic.Patient, error) {
	var out clinic.Patient
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*clinic.UserProfile, error) {
	var out clinic.UserProfile
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchTimeSlots returns slots of every status; callers decide what is bookable.
func (c *Client) SearchTimeSlots(ctx context.Context, p SearchParams) (*clinic.Page[clinic.TimeSlot], error) {
	q := url.Values{}
	if p.Specialty != "" {
		q.Set("specialty", string(p.Specialty))
	}
	if p.DoctorID != "" {
		q.Set("doctorId", p.DoctorID)
	}
	q.Set("startDate", p.StartDate)
	q.Set("endDate", p.EndDate)
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Size > 0 {
		q.Set("size", strconv.Itoa(p.Size))
	}

	var out clinic.Page[clinic.TimeSlot]
	if err := c.do(ctx, http.MethodGet, "/schedule/timeslots/search", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

const windowPageSize = 100

func (c *Client) ListWindows(ctx context.Context, doctorID string) (*clinic.Page[clinic.AvailabilityWindow], error) {
	q := url.Values{}
	q.Set("doctorId", doctorID)
	q.Set("size", strconv.Itoa(windowPageSize))
	q.Set("sort", "startTime,asc")

	var out clinic.Page[clinic.AvailabilityWindow]
	if err := c.do(ctx, http.MethodGet, "/schedule/windows", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateWindow(ctx context.Context, doctorID string, in WindowInput) (*clinic.AvailabilityWindow, error) {
	var out clinic.AvailabilityWindow
	body := createWindowRequest{DoctorID: doctorID, WindowInput: in}
	if err := c.do(ctx, http.MethodPost, "/schedule/windows", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteWindow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/schedule/windows/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) UpdateSlotStatus(ctx context.Context, id string, status clinic.SlotStatus) (*clinic.TimeSlot, error) {
	var out clinic.TimeSlot
	if err := c.do(ctx, http.MethodPatch, "/schedule/timeslots/"+url.PathEscape(id), nil, slotStatusRequest{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAppointments(ctx context.Context, f AppointmentFilter) (*clinic.Page[clinic.Appointment], error) {
	size := f.Size
	if size <= 0 {
		size = 10
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(f.Page))
	q.Set("size", strconv.Itoa(size))
	q.Set("sort", "id,desc")
	if f.DoctorID != "" {
		q.Set("doctorId", f.DoctorID)
	}
	if f.PatientID != "" {
		q.Set("patientId", f.PatientID)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.StartDate != "" {
		q.Set("startDate", f.StartDate)
	}
	if f.EndDate != "" {
		q.Set("endDate", f.EndDate)
	}

	var out clinic.Page[clinic.Appointment]
	if err := c.do(ctx, http.MethodGet, "/appointments", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*clinic.Appointment, error) {
	var out clinic.Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteAppointment(ctx context.Context, id string) (*clinic.Appointment, error) {
	var out clinic.Appointment
	if err := c.do(ctx, http.MethodPatch, "/appointments/"+url.PathEscape(id)+"/complete", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelAppointment(ctx context.Context, id string) (*clinic.Appointment, error) {
	var out clinic.Appointment
	if err := c.do(ctx, http.MethodPatch, "/appointments/"+url.PathEscape(id)+"/cancel", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p ListParams) query() url.Values {
	size := p.Size
	if size <= 0 {
		size = 10
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("size", strconv.Itoa(size))
	q.Set("sort", "id,desc")
	if p.Name != "" {
		q.Set("name", p.Name)
	}
	return q
}

func (c *Client) ListDoctors(ctx context.Context, p ListParams) (*clinic.Page[clinic.Doctor], error) {
	var out clinic.Page[clinic.Doctor]
	if err := c.do(ctx, http.MethodGet, "/doctors", p.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateDoctor(ctx context.Context, req CreateDoctorRequest) (*clinic.Doctor, error) {
	var out clinic.Doctor
	if err := c.do(ctx, http.MethodPost, "/doctors", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateDoctor(ctx context.Context, id string, req UpdateDoctorRequest) (*clinic.Doctor, error) {
	var out clinic.Doctor
	if err := c.do(ctx, http.MethodPut, "/doctors/"+url.PathEscape(id), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDoctor(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/doctors/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ListPatients(ctx context.Context, p ListParams) (*clinic.Page[clinic.Patient], error) {
	var out clinic.Page[clinic.Patient]
	if err := c.do(ctx, http.MethodGet, "/patients", p.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
