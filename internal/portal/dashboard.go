package portal

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/dashboard"
)

func (s *Server) handleDoctorDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	q := r.URL.Query()
	d, err := s.dashboardFor(r, sess, ws).Doctor(r.Context(), sess.DoctorID(), dashboard.DateRange{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	})
	if err != nil {
		dashboardError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, d, ws)
}

type statusRequest struct {
	Status clinic.AppointmentStatus `json:"status"`
}

func (s *Server) handleAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", ws)
		return
	}

	appt, err := s.dashboardFor(r, sess, ws).UpdateAppointmentStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		dashboardError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, appt, ws)
}

func (s *Server) handlePatientDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	d, err := s.dashboardFor(r, sess, ws).Patient(r.Context(), sess.PatientID())
	if err != nil {
		dashboardError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, d, ws)
}

func (s *Server) handlePatientCancel(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	appt, err := s.dashboardFor(r, sess, ws).CancelAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		dashboardError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, appt, ws)
}

func dashboardError(w http.ResponseWriter, err error, ws *workspace) {
	switch {
	case errors.Is(err, dashboard.ErrMissingIdentity):
		writeError(w, http.StatusBadRequest, "missing_identity", err.Error(), ws)
	case errors.Is(err, dashboard.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "invalid_transition", err.Error(), ws)
	default:
		upstreamError(w, err, ws)
	}
}
