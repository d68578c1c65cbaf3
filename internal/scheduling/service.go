// Package scheduling is the domain of the development Medly API: doctors
// publish availability windows that are cut into time slots, and patients
// book slots as appointments.
package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medly/medly-portal/internal/clinic"
	redisclient "github.com/medly/medly-portal/internal/redis"
)

const (
	EventWindowCreated        = "WINDOW_CREATED"
	EventWindowDeleted        = "WINDOW_DELETED"
	EventSlotStatusChanged    = "SLOT_STATUS_CHANGED"
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"

	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrInvalidWindow           = errors.New("window end must be after start and slot duration must be positive")
	ErrWindowTooShort          = errors.New("window is shorter than one slot")
	ErrWindowOverlap           = errors.New("window overlaps an existing window")
	ErrInvalidRange            = errors.New("start must not be after end")
	ErrInvalidSlotStatus       = errors.New("time slot status must be AVAILABLE or BLOCKED")
	ErrSlotBooked              = errors.New("booked time slots cannot change status")
	ErrSlotNotAvailable        = errors.New("time slot is not available")
	ErrSlotBeingBooked         = errors.New("time slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    log,
		now:    time.Now,
	}
}

// SubdivideWindow cuts [start, end) into consecutive slots of duration. A
// trailing piece shorter than duration is dropped.
func SubdivideWindow(start, end time.Time, duration time.Duration) [][2]time.Time {
	if duration <= 0 {
		return nil
	}
	var out [][2]time.Time
	for t := start; !t.Add(duration).After(end); t = t.Add(duration) {
		out = append(out, [2]time.Time{t, t.Add(duration)})
	}
	return out
}

func (s *Service) CreateWindow(ctx context.Context, doctorID uuid.UUID, start, end time.Time, slotMinutes int) (*WindowDetail, error) {
	if !end.After(start) || slotMinutes <= 0 {
		return nil, ErrInvalidWindow
	}
	pieces := SubdivideWindow(start, end, time.Duration(slotMinutes)*time.Minute)
	if len(pieces) == 0 {
		return nil, ErrWindowTooShort
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	overlap, err := s.repo.HasOverlappingWindow(ctx, doctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("check overlapping windows: %w", err)
	}
	if overlap {
		return nil, ErrWindowOverlap
	}

	w := Window{
		ID:                  uuid.New(),
		DoctorID:            doctorID,
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: slotMinutes,
		Status:              WindowActive,
		CreatedAt:           s.now(),
	}
	slots := make([]Slot, 0, len(pieces))
	for _, p := range pieces {
		slots = append(slots, Slot{
			ID:        uuid.New(),
			WindowID:  w.ID,
			DoctorID:  doctorID,
			StartTime: p[0],
			EndTime:   p[1],
			Status:    clinic.SlotAvailable,
		})
	}

	if err := s.repo.CreateWindow(ctx, w, slots); err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	s.logEvent(ctx, EventLog{EventType: EventWindowCreated, WindowID: &w.ID}, map[string]any{
		"doctor_id": doctorID.String(),
		"slots":     len(slots),
	})

	return s.repo.GetWindow(ctx, w.ID)
}

// DeleteWindow removes the window and its slots, booked ones included.
// Appointments on those slots stay and lose their slot reference.
func (s *Service) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	w, err := s.repo.GetWindow(ctx, id)
	if err != nil {
		return fmt.Errorf("load window: %w", err)
	}
	booked := 0
	for _, slot := range w.Slots {
		if slot.Status == clinic.SlotBooked {
			booked++
		}
	}
	if err := s.repo.DeleteWindow(ctx, id); err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	if booked > 0 {
		s.log.Warn().Str("window_id", id.String()).Int("booked_slots", booked).Msg("deleted window with booked slots")
	}
	s.logEvent(ctx, EventLog{EventType: EventWindowDeleted, WindowID: &id}, map[string]any{
		"doctor_id":    w.DoctorID.String(),
		"booked_slots": booked,
	})
	return nil
}

func (s *Service) ListWindows(ctx context.Context, doctorID uuid.UUID, page, size int) ([]WindowDetail, int, error) {
	page, size = normalizePage(page, size)
	windows, total, err := s.repo.ListWindows(ctx, doctorID, page, size)
	if err != nil {
		return nil, 0, fmt.Errorf("list windows: %w", err)
	}
	return windows, total, nil
}

// SearchSlots returns slots of every status inside [Start, End].
func (s *Service) SearchSlots(ctx context.Context, f SlotFilter) ([]SlotDetail, int, error) {
	if f.End.Before(f.Start) {
		return nil, 0, ErrInvalidRange
	}
	f.Page, f.Size = normalizePage(f.Page, f.Size)
	slots, total, err := s.repo.SearchSlots(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("search slots: %w", err)
	}
	return slots, total, nil
}

// UpdateSlotStatus moves a slot between AVAILABLE and BLOCKED. Booked slots
// only change through their appointment.
func (s *Service) UpdateSlotStatus(ctx context.Context, id uuid.UUID, to clinic.SlotStatus) (*SlotDetail, error) {
	if to != clinic.SlotAvailable && to != clinic.SlotBlocked {
		return nil, ErrInvalidSlotStatus
	}
	current, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if current.Status == clinic.SlotBooked {
		return nil, ErrSlotBooked
	}
	if current.Status == to {
		return current, nil
	}

	updated, err := s.repo.UpdateSlotStatus(ctx, id, current.Status, to)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// changed underneath us, most likely booked
			return nil, ErrSlotBooked
		}
		return nil, fmt.Errorf("update slot status: %w", err)
	}
	s.logEvent(ctx, EventLog{EventType: EventSlotStatusChanged, WindowID: &updated.WindowID}, map[string]any{
		"slot_id": id.String(),
		"from":    current.Status,
		"to":      to,
	})
	return updated, nil
}

// CreateAppointment books a slot for a patient while holding the slot lock.
// Concurrent requests for the same slot get ErrSlotBeingBooked or
// ErrSlotNotAvailable; exactly one succeeds.
func (s *Service) CreateAppointment(ctx context.Context, slotID, patientID uuid.UUID) (*AppointmentDetail, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.Status != clinic.SlotAvailable {
		return nil, ErrSlotNotAvailable
	}

	var created *Appointment
	err = s.locker.WithLock(ctx, redisclient.SlotKey(slotID), func(lockCtx context.Context) error {
		appt, err := s.repo.BookSlot(lockCtx, slotID, patientID)
		if err != nil {
			return err
		}
		created = appt
		s.logEvent(lockCtx, EventLog{EventType: EventAppointmentCreated, AppointmentID: &appt.ID}, map[string]any{
			"slot_id":    slotID.String(),
			"patient_id": patientID.String(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotNotAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("book slot: %w", err)
	}

	return s.repo.GetAppointment(ctx, created.ID)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, int, error) {
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return nil, 0, ErrInvalidRange
	}
	f.Page, f.Size = normalizePage(f.Page, f.Size)
	appts, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return appts, total, nil
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.transition(ctx, id, clinic.AppointmentCompleted, EventAppointmentCompleted)
}

// CancelAppointment also frees the slot for other patients.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.transition(ctx, id, clinic.AppointmentCancelled, EventAppointmentCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to clinic.AppointmentStatus, event string) (*AppointmentDetail, error) {
	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, ErrInvalidStatusTransition
	}

	if _, err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, to); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	s.logEvent(ctx, EventLog{EventType: event, AppointmentID: &id}, map[string]any{
		"from": current.Status,
		"to":   to,
	})
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) logEvent(ctx context.Context, ev EventLog, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", ev.EventType).Msg("marshal event payload")
		data = nil
	}
	ev.Payload = data
	ev.CreatedAt = s.now()

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.EventType).Msg("insert event log")
	}
}

func normalizePage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
