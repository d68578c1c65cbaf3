package admin

import (
	"regexp"
	"sort"
	"strings"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

// ValidEmail applies the loose address check every portal form uses.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// FieldErrors maps a form field to the message shown next to it.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid form: " + strings.Join(fields, ", ")
}

// DoctorForm is the admin's new-doctor form.
type DoctorForm struct {
	Name            string           `json:"name"`
	CRM             string           `json:"crm"`
	Specialty       clinic.Specialty `json:"specialty"`
	Email           string           `json:"email"`
	Password        string           `json:"password"`
	ConfirmPassword string           `json:"confirmPassword"`
}

func (f DoctorForm) Validate() error {
	errs := FieldErrors{}
	if strings.TrimSpace(f.Name) == "" {
		errs["name"] = "Nome é obrigatório"
	}
	if strings.TrimSpace(f.CRM) == "" {
		errs["crm"] = "CRM é obrigatório"
	}
	if strings.TrimSpace(string(f.Specialty)) == "" {
		errs["specialty"] = "Especialidade é obrigatória"
	} else if _, err := clinic.ParseSpecialty(string(f.Specialty)); err != nil {
		errs["specialty"] = "Especialidade inválida"
	}
	switch email := strings.TrimSpace(f.Email); {
	case email == "":
		errs["email"] = "Email é obrigatório"
	case !ValidEmail(email):
		errs["email"] = "Email inválido"
	}
	switch {
	case f.Password == "":
		errs["password"] = "Senha é obrigatória"
	case len(f.Password) < minPasswordLength:
		errs["password"] = "Senha deve ter no mínimo 6 caracteres"
	}
	if f.Password != f.ConfirmPassword {
		errs["confirmPassword"] = "As senhas não coincidem"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (f DoctorForm) request() medlyapi.CreateDoctorRequest {
	specialty, _ := clinic.ParseSpecialty(string(f.Specialty))
	return medlyapi.CreateDoctorRequest{
		Name:      strings.TrimSpace(f.Name),
		CRM:       strings.TrimSpace(f.CRM),
		Specialty: specialty,
		Email:     strings.TrimSpace(f.Email),
		Password:  f.Password,
	}
}

// DoctorEdit changes only the fields that are set.
type DoctorEdit struct {
	Name      *string           `json:"name,omitempty"`
	Email     *string           `json:"email,omitempty"`
	Specialty *clinic.Specialty `json:"specialty,omitempty"`
}

func (e DoctorEdit) Validate() error {
	errs := FieldErrors{}
	if e.Name != nil && strings.TrimSpace(*e.Name) == "" {
		errs["name"] = "Nome é obrigatório"
	}
	if e.Email != nil && !ValidEmail(strings.TrimSpace(*e.Email)) {
		errs["email"] = "Email inválido"
	}
	if e.Specialty != nil {
		if s, err := clinic.ParseSpecialty(string(*e.Specialty)); err != nil || s == "" {
			errs["specialty"] = "Especialidade inválida"
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
