package portal

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medly/medly-portal/internal/admin"
	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/dashboard"
)

func TestAdminDashboard(t *testing.T) {
	h := newHarness(t)
	w := h.seedWindow(t)
	_, err := h.svc.CreateAppointment(context.Background(), w.Slots[0].ID, h.patient.ID)
	require.NoError(t, err)

	patient, _ := h.login(t, "ana@medly.dev")
	code, env := h.call(t, http.MethodGet, "/admin", patient, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "/patient", env.Redirect)

	adm, _ := h.login(t, "admin@medly.dev")
	code, env = h.call(t, http.MethodGet, "/admin", adm, nil)
	require.Equal(t, http.StatusOK, code)
	dash := data[dashboard.AdminDashboard](t, env)
	assert.Equal(t, dashboard.Totals{Doctors: 1, Patients: 1, Appointments: 1}, dash.Totals)
	require.Len(t, dash.RecentDoctors, 1)
	assert.Equal(t, "lima@medly.dev", dash.RecentDoctors[0].Email)
	require.Len(t, dash.RecentPatients, 1)
	assert.Equal(t, "Ana", dash.RecentPatients[0].Name)

	code, env = h.call(t, http.MethodGet, "/admin/appointments?size=5", adm, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, data[clinic.Page[clinic.Appointment]](t, env).Content, 1)
}

func TestAdminManagesDoctors(t *testing.T) {
	h := newHarness(t)
	adm, _ := h.login(t, "admin@medly.dev")

	code, env := h.call(t, http.MethodPost, "/admin/doctors", adm, admin.DoctorForm{Name: "Dr. Paulo", Password: "123"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid_form", env.Error.Code)
	fields := data[map[string]string](t, env)
	assert.Equal(t, "CRM é obrigatório", fields["crm"])
	assert.Equal(t, "Senha deve ter no mínimo 6 caracteres", fields["password"])

	form := admin.DoctorForm{
		Name: "Dr. Paulo", CRM: "CRM-RJ-9", Specialty: clinic.Neurology,
		Email: "paulo@medly.dev", Password: password, ConfirmPassword: password,
	}
	code, env = h.call(t, http.MethodPost, "/admin/doctors", adm, form)
	require.Equal(t, http.StatusCreated, code)
	created := data[clinic.Doctor](t, env)
	assert.Equal(t, clinic.Neurology, created.Specialty)
	assert.Equal(t, []string{"Médico cadastrado com sucesso!"}, messages(env))

	code, env = h.call(t, http.MethodPost, "/admin/doctors", adm, form)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "E-mail já cadastrado.", env.Error.Message)
	assert.Equal(t, []string{"Erro ao cadastrar médico. Tente novamente."}, messages(env))

	_, env = h.login(t, "paulo@medly.dev")
	assert.Equal(t, "/doctor", env.Redirect)

	code, env = h.call(t, http.MethodGet, "/admin/doctors?page=0&size=10", adm, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, data[clinic.Page[clinic.Doctor]](t, env).Page.TotalElements)

	specialty := clinic.Psychiatry
	code, env = h.call(t, http.MethodPut, "/admin/doctors/"+created.ID, adm, admin.DoctorEdit{Specialty: &specialty})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, clinic.Psychiatry, data[clinic.Doctor](t, env).Specialty)

	code, env = h.call(t, http.MethodDelete, "/admin/doctors/"+created.ID, adm, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"Médico excluído com sucesso!"}, messages(env))

	code, env = h.call(t, http.MethodGet, "/admin/doctors?size=bad", adm, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_page", env.Error.Code)
}

func TestAdminCannotDeleteDoctorWithAppointments(t *testing.T) {
	h := newHarness(t)
	w := h.seedWindow(t)
	_, err := h.svc.CreateAppointment(context.Background(), w.Slots[0].ID, h.patient.ID)
	require.NoError(t, err)
	adm, _ := h.login(t, "admin@medly.dev")

	code, env := h.call(t, http.MethodDelete, "/admin/doctors/"+h.doctor.ID.String(), adm, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, []string{"O médico possui consultas e não pode ser excluído."}, messages(env))
}

func TestAdminSearchesPatients(t *testing.T) {
	h := newHarness(t)
	adm, _ := h.login(t, "admin@medly.dev")

	code, env := h.call(t, http.MethodGet, "/admin/patients?name=AN", adm, nil)
	require.Equal(t, http.StatusOK, code)
	page := data[clinic.Page[clinic.Patient]](t, env)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "ana@medly.dev", page.Content[0].Email)

	code, env = h.call(t, http.MethodGet, "/admin/patients?name=zz", adm, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, data[clinic.Page[clinic.Patient]](t, env).Content)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	form := registerForm{
		Name: "Bia Souza", Email: "bia@medly.dev", CPF: "123.456.789-00", BirthDate: "1990-03-14",
		Password: password, ConfirmPassword: password,
	}

	code, env := h.call(t, http.MethodPost, "/auth/register", "", form)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "/", env.Redirect)
	assert.Equal(t, []string{msgRegistered}, messages(env))
	assert.Equal(t, "Bia Souza", data[clinic.Patient](t, env).Name)

	_, env = h.login(t, "bia@medly.dev")
	assert.Equal(t, "/patient", env.Redirect)

	code, env = h.call(t, http.MethodPost, "/auth/register", "", form)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "E-mail já cadastrado.", env.Error.Message)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	code, env := h.call(t, http.MethodPost, "/auth/register", "", registerForm{
		Email: "bia@", CPF: "12345678900", Password: "123", ConfirmPassword: "1234",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid_form", env.Error.Code)
	assert.Equal(t, map[string]string{
		"name":            "O nome é obrigatório",
		"email":           "Email inválido",
		"cpf":             "CPF deve estar no formato 000.000.000-00",
		"birthDate":       "A data de nascimento é obrigatória",
		"password":        "A senha deve ter pelo menos 6 caracteres",
		"confirmPassword": "As senhas não coincidem",
	}, data[map[string]string](t, env))

	code, env = h.call(t, http.MethodPost, "/auth/register", "", registerForm{
		Name: "Bia", Email: "bia@medly.dev", CPF: "123.456.789-00", BirthDate: "14/03/1990",
		Password: password, ConfirmPassword: password,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "register_failed", env.Error.Code)
}

func TestDashboardAliases(t *testing.T) {
	h := newHarness(t)
	patient, _ := h.login(t, "ana@medly.dev")
	code, _ := h.call(t, http.MethodGet, "/patient", patient, nil)
	assert.Equal(t, http.StatusOK, code)

	doctor, _ := h.login(t, "lima@medly.dev")
	code, _ = h.call(t, http.MethodGet, "/doctor", doctor, nil)
	assert.Equal(t, http.StatusOK, code)
}

