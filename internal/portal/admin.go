package portal

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medly/medly-portal/internal/admin"
	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/session"
)

func (s *Server) directoryFor(r *http.Request, sess *session.Session, ws *workspace) *admin.Directory {
	log := s.requestLogger(r)
	return admin.New(s.apiFor(sess),
		admin.WithNotifier(s.notifier(log, ws)),
		admin.WithLogger(log),
	)
}

func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	d, err := s.dashboardFor(r, sess, ws).Admin(r.Context())
	if err != nil {
		upstreamError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, d, ws)
}

// listParams reads page, size and name. Pages are zero based.
func listParams(r *http.Request) (medlyapi.ListParams, bool) {
	q := r.URL.Query()
	p := medlyapi.ListParams{Name: q.Get("name")}
	for key, dst := range map[string]*int{"page": &p.Page, "size": &p.Size} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, false
		}
		*dst = n
	}
	return p, true
}

func (s *Server) handleAdminDoctors(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	p, ok := listParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_page", "page and size must be non-negative integers", ws)
		return
	}
	page, err := s.directoryFor(r, sess, ws).Doctors(r.Context(), p)
	if err != nil {
		upstreamError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, page, ws)
}

func (s *Server) handleAdminPatients(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	p, ok := listParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_page", "page and size must be non-negative integers", ws)
		return
	}
	page, err := s.directoryFor(r, sess, ws).Patients(r.Context(), p)
	if err != nil {
		upstreamError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, page, ws)
}

func (s *Server) handleAdminAppointments(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	p, ok := listParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_page", "page and size must be non-negative integers", ws)
		return
	}
	page, err := s.directoryFor(r, sess, ws).Appointments(r.Context(), medlyapi.AppointmentFilter{
		Page:   p.Page,
		Size:   p.Size,
		Status: clinic.AppointmentStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		upstreamError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, page, ws)
}

func (s *Server) handleCreateDoctor(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	var form admin.DoctorForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", ws)
		return
	}
	d, err := s.directoryFor(r, sess, ws).CreateDoctor(r.Context(), form)
	if err != nil {
		formOrUpstreamError(w, err, ws)
		return
	}
	respond(w, http.StatusCreated, d, ws)
}

func (s *Server) handleUpdateDoctor(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	var edit admin.DoctorEdit
	if err := decodeJSON(r, &edit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", ws)
		return
	}
	d, err := s.directoryFor(r, sess, ws).UpdateDoctor(r.Context(), chi.URLParam(r, "id"), edit)
	if err != nil {
		formOrUpstreamError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, d, ws)
}

func (s *Server) handleDeleteDoctor(w http.ResponseWriter, r *http.Request) {
	sess, ws := s.current(r)
	if err := s.directoryFor(r, sess, ws).DeleteDoctor(r.Context(), chi.URLParam(r, "id")); err != nil {
		upstreamError(w, err, ws)
		return
	}
	respond(w, http.StatusOK, nil, ws)
}

// formOrUpstreamError answers field errors with 422 and the per-field
// messages as data.
func formOrUpstreamError(w http.ResponseWriter, err error, ws *workspace) {
	var fields admin.FieldErrors
	if errors.As(err, &fields) {
		writeJSON(w, http.StatusUnprocessableEntity, Envelope{
			Data:          fields,
			Error:         &ErrorBody{Code: "invalid_form"},
			Notifications: ws.drain(),
		})
		return
	}
	upstreamError(w, err, ws)
}
