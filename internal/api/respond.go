package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// handleServiceError maps domain errors onto status codes. Messages of 4xx
// answers are shown to end users by the portal.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "E-mail ou senha inválidos.")
	case errors.Is(err, scheduling.ErrUserNotFound),
		errors.Is(err, scheduling.ErrDoctorNotFound),
		errors.Is(err, scheduling.ErrPatientNotFound),
		errors.Is(err, scheduling.ErrWindowNotFound),
		errors.Is(err, scheduling.ErrSlotNotFound),
		errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduling.ErrInvalidWindow),
		errors.Is(err, scheduling.ErrWindowTooShort),
		errors.Is(err, scheduling.ErrInvalidRange),
		errors.Is(err, scheduling.ErrInvalidSlotStatus),
		errors.Is(err, scheduling.ErrMissingField),
		errors.Is(err, scheduling.ErrInvalidEmail),
		errors.Is(err, scheduling.ErrWeakPassword),
		errors.Is(err, scheduling.ErrInvalidCPF),
		errors.Is(err, scheduling.ErrInvalidBirthday),
		errors.Is(err, clinic.ErrUnknownSpecialty):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, scheduling.ErrWindowOverlap):
		writeError(w, http.StatusConflict, "window_overlap", "A janela conflita com outra janela existente.")
	case errors.Is(err, scheduling.ErrSlotBooked):
		writeError(w, http.StatusConflict, "slot_booked", err.Error())
	case errors.Is(err, scheduling.ErrSlotNotAvailable):
		writeError(w, http.StatusConflict, "slot_not_available", "Este horário não está mais disponível.")
	case errors.Is(err, scheduling.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "Este horário está sendo reservado, tente novamente.")
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "E-mail já cadastrado.")
	case errors.Is(err, scheduling.ErrDoctorHasAppointments):
		writeError(w, http.StatusConflict, "doctor_has_appointments", "O médico possui consultas e não pode ser excluído.")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
