package booking

import (
	"github.com/medly/medly-portal/internal/clinic"
)

// State is a point-in-time view of the workflow with everything derived
// from it already computed.
type State struct {
	Step             Step                 `json:"step"`
	Criteria         CriteriaView         `json:"criteria"`
	HasSearched      bool                 `json:"hasSearched"`
	SlotCount        int                  `json:"slotCount"`
	Doctors          []DoctorAvailability `json:"doctors"`
	SelectedDoctorID string               `json:"selectedDoctorId,omitempty"`
	DoctorSlots      []DayGroup           `json:"doctorSlots"`
	SelectedSlot     *clinic.TimeSlot     `json:"selectedSlot,omitempty"`
	Submitting       bool                 `json:"submitting"`
}

func (w *Workflow) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := State{
		Step:             StepFor(w.hasSearched, len(w.doctors), w.selectedDoctorID, w.selectedSlotID),
		Criteria:         w.criteria.View(),
		HasSearched:      w.hasSearched,
		SlotCount:        len(w.slots),
		Doctors:          append([]DoctorAvailability{}, w.doctors...),
		SelectedDoctorID: w.selectedDoctorID,
		DoctorSlots:      []DayGroup{},
		Submitting:       w.phase == phaseSubmitting,
	}
	if w.selectedDoctorID != "" {
		st.DoctorSlots = SlotsForDoctor(w.slots, w.selectedDoctorID)
	}
	if slot, ok := w.findSlot(w.selectedSlotID); ok && w.selectedSlotID != "" {
		st.SelectedSlot = &slot
	}
	return st
}

func (w *Workflow) Step() Step {
	return w.Snapshot().Step
}

func (w *Workflow) Criteria() Criteria {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.criteria
}
