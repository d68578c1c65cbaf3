package portal

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/medly/medly-portal/internal/admin"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/notify"
)

const (
	msgRegistered         = "Cadastro realizado com sucesso! Faça login para continuar."
	msgRegisterFailed     = "Erro ao realizar cadastro."
	msgRegisterUnexpected = "Erro inesperado ao tentar realizar cadastro."
)

var cpfPattern = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$`)

type registerForm struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	CPF             string `json:"cpf"`
	BirthDate       string `json:"birthDate"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (f registerForm) validate() admin.FieldErrors {
	errs := admin.FieldErrors{}
	if strings.TrimSpace(f.Name) == "" {
		errs["name"] = "O nome é obrigatório"
	}
	switch email := strings.TrimSpace(f.Email); {
	case email == "":
		errs["email"] = "O email é obrigatório"
	case !admin.ValidEmail(email):
		errs["email"] = "Email inválido"
	}
	switch {
	case f.CPF == "":
		errs["cpf"] = "O CPF é obrigatório"
	case !cpfPattern.MatchString(f.CPF):
		errs["cpf"] = "CPF deve estar no formato 000.000.000-00"
	}
	if f.BirthDate == "" {
		errs["birthDate"] = "A data de nascimento é obrigatória"
	}
	switch {
	case f.Password == "":
		errs["password"] = "A senha é obrigatória"
	case len(f.Password) < 6:
		errs["password"] = "A senha deve ter pelo menos 6 caracteres"
	}
	switch {
	case f.ConfirmPassword == "":
		errs["confirmPassword"] = "A confirmação de senha é obrigatória"
	case f.ConfirmPassword != f.Password:
		errs["confirmPassword"] = "As senhas não coincidem"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// handleRegister signs up a patient. It does not sign them in; the client is
// sent back to the login page.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var form registerForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", nil)
		return
	}
	if errs := form.validate(); errs != nil {
		writeJSON(w, http.StatusUnprocessableEntity, Envelope{Data: errs, Error: &ErrorBody{Code: "invalid_form"}})
		return
	}

	log := s.requestLogger(r)
	patient, err := s.cfg.API.Register(r.Context(), medlyapi.RegisterRequest{
		Name:      strings.TrimSpace(form.Name),
		Email:     strings.TrimSpace(form.Email),
		Password:  form.Password,
		CPF:       form.CPF,
		BirthDate: form.BirthDate,
	})
	if err != nil {
		log.Warn().Err(err).Msg("register")
		var apiErr *medlyapi.APIError
		switch {
		case !errors.As(err, &apiErr):
			writeError(w, http.StatusBadGateway, "register_failed", msgRegisterUnexpected, nil)
		case apiErr.Message != "":
			writeError(w, apiErr.StatusCode, "register_failed", apiErr.Message, nil)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			writeError(w, http.StatusBadGateway, "register_failed", msgRegisterFailed, nil)
		default:
			writeError(w, apiErr.StatusCode, "register_failed", msgRegisterFailed, nil)
		}
		return
	}

	log.Info().Str("patient_id", patient.ID).Msg("patient registered")
	writeJSON(w, http.StatusCreated, Envelope{
		Data:          patient,
		Redirect:      "/",
		Notifications: []notify.Notification{{Level: notify.LevelSuccess, Message: msgRegistered}},
	})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "", nil)
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "", nil)
}
