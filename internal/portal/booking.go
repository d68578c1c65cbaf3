package portal

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medly/medly-portal/internal/booking"
	"github.com/medly/medly-portal/internal/clinic"
	redisclient "github.com/medly/medly-portal/internal/redis"
)

const appointmentsPath = "/patient/appointments"

type searchRequest struct {
	Specialty string `json:"specialty"`
	DoctorID  string `json:"doctorId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// criteria fills blank dates from the defaults relative to now.
func (req searchRequest) criteria(def booking.Criteria) (booking.Criteria, error) {
	specialty, err := clinic.ParseSpecialty(req.Specialty)
	if err != nil {
		return booking.Criteria{}, err
	}
	c := booking.Criteria{
		Specialty: specialty,
		DoctorID:  req.DoctorID,
		StartDate: def.StartDate,
		EndDate:   def.EndDate,
	}
	if req.StartDate != "" {
		if c.StartDate, err = booking.ParseDate(req.StartDate); err != nil {
			return booking.Criteria{}, err
		}
	}
	if req.EndDate != "" {
		if c.EndDate, err = booking.ParseDate(req.EndDate); err != nil {
			return booking.Criteria{}, err
		}
	}
	return c, nil
}

func (s *Server) handleBookingState(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	respond(w, http.StatusOK, s.bookingFor(sess, ws).Snapshot(), ws)
}

func (s *Server) handleBookingSearch(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", ws)
		return
	}
	c, err := req.criteria(booking.DefaultCriteria(s.now()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_criteria", err.Error(), ws)
		return
	}

	wf := s.bookingFor(sess, ws)
	if err := wf.Search(r.Context(), c); err != nil {
		switch {
		case errors.Is(err, booking.ErrInvalidDateRange), errors.Is(err, booking.ErrMissingDates):
			writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error(), ws)
		default:
			upstreamError(w, err, ws)
		}
		return
	}
	respond(w, http.StatusOK, wf.Snapshot(), ws)
}

func (s *Server) handleSelectDoctor(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	wf := s.bookingFor(sess, ws)
	if err := wf.SelectDoctor(chi.URLParam(r, "id")); err != nil {
		selectionError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, wf.Snapshot(), ws)
}

func (s *Server) handleSelectSlot(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	wf := s.bookingFor(sess, ws)
	if err := wf.SelectSlot(chi.URLParam(r, "id")); err != nil {
		selectionError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, wf.Snapshot(), ws)
}

func (s *Server) handleClearSlot(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	wf := s.bookingFor(sess, ws)
	wf.ClearSlotSelection()
	respond(w, http.StatusOK, wf.Snapshot(), ws)
}

func (s *Server) handleBookingReset(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	wf := s.bookingFor(sess, ws)
	wf.Reset()
	respond(w, http.StatusOK, wf.Snapshot(), ws)
}

// handleConfirm books the selected slot. Confirmations of one patient are
// serialized across replicas; on success the workflow is discarded and the
// client is pointed at the appointment list.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	wf := s.bookingFor(sess, ws)
	patientID := sess.PatientID()

	var appt *clinic.Appointment
	confirm := func(ctx context.Context) error {
		var err error
		appt, err = wf.Confirm(ctx, patientID)
		return err
	}

	var err error
	if patientID == "" {
		// the workflow reports the missing identity itself
		err = confirm(r.Context())
	} else {
		err = s.cfg.Locker.WithLock(r.Context(), redisclient.BookingKey(patientID), confirm)
	}
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired), errors.Is(err, booking.ErrSubmissionInFlight):
			writeError(w, http.StatusConflict, "submission_in_flight", booking.ErrSubmissionInFlight.Error(), ws)
		case errors.Is(err, booking.ErrSelectionIncomplete):
			writeError(w, http.StatusBadRequest, "selection_incomplete", err.Error(), ws)
		case errors.Is(err, booking.ErrMissingPatient):
			writeError(w, http.StatusBadRequest, "missing_patient", "", ws)
		default:
			upstreamError(w, err, ws)
		}
		return
	}

	ws.discardBooking(wf)
	writeJSON(w, http.StatusCreated, Envelope{
		Data:          appt,
		Redirect:      appointmentsPath,
		Notifications: ws.drain(),
	})
}

func selectionError(w http.ResponseWriter, err error, ws *workspace) {
	switch {
	case errors.Is(err, booking.ErrUnknownDoctor), errors.Is(err, booking.ErrUnknownSlot):
		writeError(w, http.StatusNotFound, "unknown_selection", err.Error(), ws)
	default:
		writeError(w, http.StatusConflict, "invalid_selection", err.Error(), ws)
	}
}
