package portal

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/schedule"
)

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	m := s.scheduleFor(sess, ws)
	if err := m.Load(r.Context()); err != nil {
		scheduleError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, m.Snapshot(), ws)
}

func (s *Server) handleCreateWindow(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)

	var in medlyapi.WindowInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", ws)
		return
	}

	m := s.scheduleFor(sess, ws)
	if _, err := m.CreateWindow(r.Context(), in); err != nil {
		scheduleError(w, err, ws)
		return
	}
	respond(w, http.StatusCreated, m.Snapshot(), ws)
}

func (s *Server) handleDeleteWindow(w http.ResponseWriter, r *http.Request) {
	_, ws := s.current(r)
	m, ok := s.loadedSchedule(w, r)
	if !ok {
		return
	}
	if err := m.DeleteWindow(r.Context(), chi.URLParam(r, "id")); err != nil {
		scheduleError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, m.Snapshot(), ws)
}

func (s *Server) handleToggleSlot(w http.ResponseWriter, r *http.Request) {
	_, ws := s.current(r)
	m, ok := s.loadedSchedule(w, r)
	if !ok {
		return
	}
	if _, err := m.ToggleSlotStatus(r.Context(), chi.URLParam(r, "id")); err != nil {
		scheduleError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, m.Snapshot(), ws)
}

// loadedSchedule returns the session's manager, loading it first when this
// replica has not seen the schedule yet.
func (s *Server) loadedSchedule(w http.ResponseWriter, r *http.Request) (*schedule.Manager, bool) {
	sess, ws := s.current(r)
	m := s.scheduleFor(sess, ws)
	if m.Loaded() {
		return m, true
	}
	if err := m.Load(r.Context()); err != nil {
		scheduleError(w, err, ws)
		return nil, false
	}
	return m, true
}

func scheduleError(w http.ResponseWriter, err error, ws *workspace) {
	switch {
	case errors.Is(err, schedule.ErrMissingDoctor):
		writeError(w, http.StatusBadRequest, "missing_doctor", err.Error(), ws)
	case errors.Is(err, schedule.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error(), ws)
	case errors.Is(err, schedule.ErrUnknownWindow), errors.Is(err, schedule.ErrUnknownSlot):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), ws)
	case errors.Is(err, schedule.ErrSlotBooked):
		writeError(w, http.StatusConflict, "slot_booked", err.Error(), ws)
	case errors.Is(err, schedule.ErrSlotStatus):
		writeError(w, http.StatusConflict, "slot_status_unknown", err.Error(), ws)
	case errors.Is(err, schedule.ErrDeleteInFlight):
		writeError(w, http.StatusConflict, "delete_in_flight", err.Error(), ws)
	default:
		upstreamError(w, err, ws)
	}
}
