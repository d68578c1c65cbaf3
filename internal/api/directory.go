package api

import (
	"net/http"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/scheduling"
)

func listDoctorsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, size, ok := pageParams(w, r)
		if !ok {
			return
		}
		doctors, total, err := svc.ListDoctors(r.Context(), page, size)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		_, size = normalizedPage(page, size)
		writeJSON(w, http.StatusOK, clinic.NewPage(mapSlice(doctors, toDoctor), page, size, total))
	}
}

func getDoctorHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		d, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctor(*d))
	}
}

func createDoctorHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDoctorRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		d, err := svc.CreateDoctor(r.Context(), scheduling.DoctorInput{
			Name:      req.Name,
			Email:     req.Email,
			Password:  req.Password,
			CRM:       req.CRM,
			Specialty: req.Specialty,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDoctor(*d))
	}
}

func updateDoctorHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdateDoctorRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		d, err := svc.UpdateDoctor(r.Context(), id, scheduling.DoctorUpdate{
			Name:      req.Name,
			Email:     req.Email,
			Specialty: req.Specialty,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctor(*d))
	}
}

func deleteDoctorHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DeleteDoctor(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// listPatientsHandler filters by a case-insensitive name fragment.
func listPatientsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, size, ok := pageParams(w, r)
		if !ok {
			return
		}
		f := scheduling.PatientFilter{Name: r.URL.Query().Get("name"), Page: page, Size: size}
		patients, total, err := svc.ListPatients(r.Context(), f)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		_, size = normalizedPage(page, size)
		writeJSON(w, http.StatusOK, clinic.NewPage(mapSlice(patients, toPatient), page, size, total))
	}
}

func getPatientHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		p, err := svc.GetPatient(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatient(*p))
	}
}
