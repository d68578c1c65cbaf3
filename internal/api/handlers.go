package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/scheduling"
)

func searchSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		start, err := parseBound(q.Get("startDate"), false)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", "startDate must be a date or local timestamp")
			return
		}
		end, err := parseBound(q.Get("endDate"), true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", "endDate must be a date or local timestamp")
			return
		}
		specialty, err := clinic.ParseSpecialty(q.Get("specialty"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_specialty", err.Error())
			return
		}
		page, size, ok := pageParams(w, r)
		if !ok {
			return
		}

		f := scheduling.SlotFilter{Specialty: specialty, Start: start, End: end, Page: page, Size: size}
		if raw := q.Get("doctorId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
				return
			}
			f.DoctorID = &id
		}

		slots, total, err := svc.SearchSlots(r.Context(), f)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		_, size = normalizedPage(page, size)
		writeJSON(w, http.StatusOK, clinic.NewPage(mapSlice(slots, toTimeSlot), page, size, total))
	}
}

func updateSlotHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdateSlotRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := svc.UpdateSlotStatus(r.Context(), id, req.Status)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTimeSlot(*slot))
	}
}

func listWindowsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(r.URL.Query().Get("doctorId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}
		page, size, ok := pageParams(w, r)
		if !ok {
			return
		}

		windows, total, err := svc.ListWindows(r.Context(), doctorID, page, size)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		_, size = normalizedPage(page, size)
		writeJSON(w, http.StatusOK, clinic.NewPage(mapSlice(windows, toWindow), page, size, total))
	}
}

func createWindowHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateWindowRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		window, err := svc.CreateWindow(r.Context(), doctorID, req.StartTime.Time, req.EndTime.Time, req.SlotDurationInMinutes)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toWindow(*window))
	}
}

func deleteWindowHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DeleteWindow(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, size, ok := pageParams(w, r)
		if !ok {
			return
		}
		f := scheduling.AppointmentFilter{
			Status: clinic.AppointmentStatus(q.Get("status")),
			Page:   page,
			Size:   size,
		}
		for key, dst := range map[string]**uuid.UUID{"doctorId": &f.DoctorID, "patientId": &f.PatientID} {
			raw := q.Get(key)
			if raw == "" {
				continue
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+key, key+" must be a valid UUID")
				return
			}
			*dst = &id
		}
		for key, dst := range map[string]**time.Time{"startDate": &f.Start, "endDate": &f.End} {
			raw := q.Get(key)
			if raw == "" {
				continue
			}
			t, err := parseBound(raw, key == "endDate")
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+key, key+" must be a date or local timestamp")
				return
			}
			*dst = &t
		}

		appts, total, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		_, size = normalizedPage(page, size)
		writeJSON(w, http.StatusOK, clinic.NewPage(mapSlice(appts, toAppointment), page, size, total))
	}
}

func createAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.TimeSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "timeSlotId must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), slotID, patientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointment(*appt))
	}
}

func completeAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return transitionHandler(svc.CompleteAppointment)
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return transitionHandler(svc.CancelAppointment)
}

func transitionHandler(run func(context.Context, uuid.UUID) (*scheduling.AppointmentDetail, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		appt, err := run(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointment(*appt))
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	page, size := 0, 0
	var err error
	if raw := q.Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil || page < 0 {
			writeError(w, http.StatusBadRequest, "invalid_page", "page must be a non-negative integer")
			return 0, 0, false
		}
	}
	if raw := q.Get("size"); raw != "" {
		if size, err = strconv.Atoi(raw); err != nil || size < 0 {
			writeError(w, http.StatusBadRequest, "invalid_size", "size must be a non-negative integer")
			return 0, 0, false
		}
	}
	return page, size, true
}

func normalizedPage(page, size int) (int, int) {
	if size <= 0 {
		size = scheduling.DefaultPageSize
	}
	if size > scheduling.MaxPageSize {
		size = scheduling.MaxPageSize
	}
	return page, size
}
