// Package booking drives the patient's appointment booking: filter and
// search slots, pick a doctor, pick one of that doctor's slots, confirm.
//
// The Workflow holds only ephemeral selection state. Slot status
// transitions and the booking race itself are decided by the Medly API.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/notify"
)

const (
	msgNoSlots       = "Nenhum horário disponível encontrado."
	msgSearchFailed  = "Erro ao buscar horários disponíveis."
	msgBooked        = "Consulta agendada com sucesso!"
	msgBookingFailed = "Não foi possível agendar a consulta."
	msgNoPatient     = "Erro ao identificar paciente."
)

var (
	ErrUnknownDoctor       = errors.New("doctor is not in the search results")
	ErrNoDoctorSelected    = errors.New("no doctor selected")
	ErrUnknownSlot         = errors.New("slot is not in the search results")
	ErrSlotNotForDoctor    = errors.New("slot belongs to a different doctor")
	ErrSelectionIncomplete = errors.New("a doctor and a slot must be selected")
	ErrSubmissionInFlight  = errors.New("a booking is already being submitted")
	ErrMissingPatient      = errors.New("patient identity is unknown")
)

type Step string

const (
	StepFiltering      Step = "filtering"
	StepChoosingDoctor Step = "choosing-doctor"
	StepChoosingSlot   Step = "choosing-slot"
	StepConfirming     Step = "confirming"
)

// StepFor maps the selection inputs onto exactly one step.
func StepFor(hasSearched bool, doctorCount int, doctorID, slotID string) Step {
	switch {
	case doctorID != "" && slotID != "":
		return StepConfirming
	case doctorID != "":
		return StepChoosingSlot
	case hasSearched && doctorCount > 0:
		return StepChoosingDoctor
	default:
		return StepFiltering
	}
}

type phase int

const (
	phaseIdle phase = iota
	phaseSubmitting
)

// Collaborator is the slice of the Medly API the workflow calls.
type Collaborator interface {
	SearchTimeSlots(ctx context.Context, p medlyapi.SearchParams) (*clinic.Page[clinic.TimeSlot], error)
	CreateAppointment(ctx context.Context, req medlyapi.CreateAppointmentRequest) (*clinic.Appointment, error)
}

type Workflow struct {
	api          Collaborator
	notifier     notify.Notifier
	now          func() time.Time
	log          zerolog.Logger
	pageSize     int
	discardStale bool

	mu               sync.Mutex
	criteria         Criteria
	hasSearched      bool
	slots            []clinic.TimeSlot
	doctors          []DoctorAvailability
	selectedDoctorID string
	selectedSlotID   string
	phase            phase
	searchSeq        uint64
}

type Option func(*Workflow)

func WithNotifier(n notify.Notifier) Option {
	return func(w *Workflow) { w.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(w *Workflow) { w.log = log }
}

func WithPageSize(size int) Option {
	return func(w *Workflow) {
		if size > 0 {
			w.pageSize = size
		}
	}
}

// WithStaleSearchGuard drops a search response when a newer search was
// issued after it. Without it the last response to arrive wins.
func WithStaleSearchGuard() Option {
	return func(w *Workflow) { w.discardStale = true }
}

func New(api Collaborator, opts ...Option) *Workflow {
	w := &Workflow{
		api:      api,
		notifier: notify.Discard,
		now:      time.Now,
		log:      zerolog.Nop(),
		pageSize: SearchPageSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.criteria = DefaultCriteria(w.now())
	return w
}

// Search replaces the results with the AVAILABLE slots matching c and clears
// both selections. A failed search leaves the workflow as it was.
func (w *Workflow) Search(ctx context.Context, c Criteria) error {
	if err := c.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	w.searchSeq++
	seq := w.searchSeq
	w.mu.Unlock()

	page, err := w.api.SearchTimeSlots(ctx, c.Params(w.pageSize))
	if err != nil {
		w.log.Error().Err(err).Msg("search time slots")
		w.notifier.Notify(notify.LevelError, msgSearchFailed)
		return fmt.Errorf("search time slots: %w", err)
	}

	available := AvailableOnly(page.Content)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discardStale && seq != w.searchSeq {
		w.log.Debug().Uint64("seq", seq).Uint64("latest", w.searchSeq).Msg("discarding superseded search")
		return nil
	}

	w.criteria = c
	w.hasSearched = true
	w.slots = available
	w.doctors = AggregateDoctors(available)
	w.selectedDoctorID = ""
	w.selectedSlotID = ""

	if len(available) == 0 {
		w.notifier.Notify(notify.LevelInfo, msgNoSlots)
	}
	return nil
}

// SelectDoctor picks a doctor from the results and always clears the slot.
// Selecting the current doctor again deselects them.
func (w *Workflow) SelectDoctor(doctorID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hasDoctor(doctorID) {
		return ErrUnknownDoctor
	}

	if doctorID == w.selectedDoctorID {
		w.selectedDoctorID = ""
	} else {
		w.selectedDoctorID = doctorID
	}
	w.selectedSlotID = ""
	return nil
}

func (w *Workflow) SelectSlot(slotID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.selectedDoctorID == "" {
		return ErrNoDoctorSelected
	}
	slot, ok := w.findSlot(slotID)
	if !ok {
		return ErrUnknownSlot
	}
	if slot.Doctor.ID != w.selectedDoctorID {
		return ErrSlotNotForDoctor
	}
	w.selectedSlotID = slotID
	return nil
}

func (w *Workflow) ClearSlotSelection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selectedSlotID = ""
}

// Reset returns to the initial state. An in-flight submission is not
// cancelled and still releases the submitting phase when it returns.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.criteria = DefaultCriteria(w.now())
	w.hasSearched = false
	w.slots = nil
	w.doctors = nil
	w.selectedDoctorID = ""
	w.selectedSlotID = ""
	w.searchSeq++
}

// Confirm books the selected slot for patientID. Only one confirmation runs
// at a time; the others return ErrSubmissionInFlight without calling the API.
// On failure the selections are kept so the user can retry or pick again.
func (w *Workflow) Confirm(ctx context.Context, patientID string) (*clinic.Appointment, error) {
	w.mu.Lock()
	if w.phase == phaseSubmitting {
		w.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if w.selectedDoctorID == "" || w.selectedSlotID == "" {
		w.mu.Unlock()
		return nil, ErrSelectionIncomplete
	}
	if patientID == "" {
		w.mu.Unlock()
		w.notifier.Notify(notify.LevelError, msgNoPatient)
		return nil, ErrMissingPatient
	}
	slotID := w.selectedSlotID
	w.phase = phaseSubmitting
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.phase = phaseIdle
		w.mu.Unlock()
	}()

	appt, err := w.api.CreateAppointment(ctx, medlyapi.CreateAppointmentRequest{
		TimeSlotID: slotID,
		PatientID:  patientID,
	})
	if err != nil {
		w.log.Error().Err(err).Str("slot_id", slotID).Bool("conflict", errors.Is(err, medlyapi.ErrConflict)).Msg("create appointment")
		w.notifier.Notify(notify.LevelError, msgBookingFailed)
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	w.log.Info().Str("slot_id", slotID).Str("appointment_id", appt.ID).Msg("appointment booked")
	w.notifier.Notify(notify.LevelSuccess, msgBooked)
	return appt, nil
}

func (w *Workflow) hasDoctor(doctorID string) bool {
	if doctorID == "" {
		return false
	}
	for _, d := range w.doctors {
		if d.DoctorID == doctorID {
			return true
		}
	}
	return false
}

func (w *Workflow) findSlot(slotID string) (clinic.TimeSlot, bool) {
	for _, s := range w.slots {
		if s.ID == slotID {
			return s, true
		}
	}
	return clinic.TimeSlot{}, false
}
