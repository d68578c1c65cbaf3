package portal

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/notify"
)

// Envelope wraps every portal response. Notifications are the messages the
// workflows raised while serving the request.
type Envelope struct {
	Data          any                   `json:"data,omitempty"`
	Redirect      string                `json:"redirect,omitempty"`
	Error         *ErrorBody            `json:"error,omitempty"`
	Notifications []notify.Notification `json:"notifications"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	if env.Notifications == nil {
		env.Notifications = []notify.Notification{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func respond(w http.ResponseWriter, status int, data any, ws *workspace) {
	writeJSON(w, status, Envelope{Data: data, Notifications: ws.drain()})
}

func writeError(w http.ResponseWriter, status int, code, message string, ws *workspace) {
	writeJSON(w, status, Envelope{
		Error:         &ErrorBody{Code: code, Message: message},
		Notifications: ws.drain(),
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// upstreamError answers a failed Medly API call with the matching status.
func upstreamError(w http.ResponseWriter, err error, ws *workspace) {
	msg := medlyapi.Message(err)
	switch {
	case errors.Is(err, medlyapi.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", msg, ws)
	case errors.Is(err, medlyapi.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", msg, ws)
	case errors.Is(err, medlyapi.ErrInvalid):
		writeError(w, http.StatusBadRequest, "invalid_request", msg, ws)
	case errors.Is(err, medlyapi.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", msg, ws)
	case errors.Is(err, medlyapi.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", msg, ws)
	default:
		writeError(w, http.StatusBadGateway, "upstream_error", "", ws)
	}
}
