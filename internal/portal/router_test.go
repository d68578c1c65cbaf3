package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medly/medly-portal/internal/api"
	"github.com/medly/medly-portal/internal/booking"
	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/dashboard"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/notify"
	redisclient "github.com/medly/medly-portal/internal/redis"
	"github.com/medly/medly-portal/internal/schedule"
	"github.com/medly/medly-portal/internal/scheduling"
	"github.com/medly/medly-portal/internal/session"
)

var (
	today   = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	morning = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
)

const password = "senha123"

type harness struct {
	portal  http.Handler
	mr      *miniredis.Miniredis
	svc     *scheduling.Service
	doctor  *scheduling.Doctor
	patient *scheduling.Patient
}

type envelope struct {
	Data          json.RawMessage       `json:"data"`
	Redirect      string                `json:"redirect"`
	Error         *ErrorBody            `json:"error"`
	Notifications []notify.Notification `json:"notifications"`
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	ctx := context.Background()

	repo := scheduling.NewMemoryRepository()
	svc := scheduling.NewService(repo, redisclient.NopLocker{}, zerolog.Nop())
	auth := scheduling.NewAuth(repo, "test-secret", time.Hour)
	medly := httptest.NewServer(api.NewRouter(api.RouterConfig{Service: svc, Auth: auth, Logger: zerolog.Nop()}))
	t.Cleanup(medly.Close)

	hash, err := scheduling.HashPassword(password)
	require.NoError(t, err)
	du, err := repo.CreateUser(ctx, scheduling.User{Name: "Dra. Lima", Email: "lima@medly.dev", PasswordHash: hash, Role: clinic.RoleDoctor})
	require.NoError(t, err)
	doc, err := repo.CreateDoctor(ctx, scheduling.Doctor{UserID: du.ID, CRM: "CRM-1", Specialty: clinic.Cardiology})
	require.NoError(t, err)
	pu, err := repo.CreateUser(ctx, scheduling.User{Name: "Ana", Email: "ana@medly.dev", PasswordHash: hash, Role: clinic.RolePatient})
	require.NoError(t, err)
	pat, err := repo.CreatePatient(ctx, scheduling.Patient{UserID: pu.ID, CPF: "111"})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, scheduling.User{Name: "Admin", Email: "admin@medly.dev", PasswordHash: hash, Role: clinic.RoleAdmin})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := Config{
		API:            medlyapi.New(medly.URL + "/api"),
		Sessions:       session.NewRedisStore(rdb, time.Hour),
		Locker:         redisclient.NewRedisLocker(rdb, 5*time.Second),
		Redis:          rdb,
		Logger:         zerolog.Nop(),
		SearchPageSize: booking.SearchPageSize,
		Now:            func() time.Time { return today },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &harness{portal: NewRouter(cfg), mr: mr, svc: svc, doctor: doc, patient: pat}
}

func (h *harness) call(t *testing.T, method, path, cookie string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	h.portal.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (h *harness) login(t *testing.T, email string) (string, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"`+email+`","password":"`+password+`"}`))
	rec := httptest.NewRecorder()
	h.portal.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c.Value, env
		}
	}
	t.Fatal("no session cookie")
	return "", env
}

func (h *harness) seedWindow(t *testing.T) *scheduling.WindowDetail {
	t.Helper()
	w, err := h.svc.CreateWindow(context.Background(), h.doctor.ID, morning, morning.Add(time.Hour), 30)
	require.NoError(t, err)
	return w
}

func data[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func messages(env envelope) []string {
	out := make([]string, 0, len(env.Notifications))
	for _, n := range env.Notifications {
		out = append(out, n.Message)
	}
	return out
}

func TestLoginRedirectsByRole(t *testing.T) {
	h := newHarness(t)

	_, env := h.login(t, "ana@medly.dev")
	assert.Equal(t, "/patient", env.Redirect)

	_, env = h.login(t, "lima@medly.dev")
	assert.Equal(t, "/doctor", env.Redirect)

	_, env = h.login(t, "admin@medly.dev")
	assert.Equal(t, "/admin", env.Redirect)

	code, env := h.call(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "ana@medly.dev", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, msgInvalidLogin, env.Error.Message)
}

func TestAuthenticationAndRoles(t *testing.T) {
	h := newHarness(t)

	code, env := h.call(t, http.MethodGet, "/booking", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "/", env.Redirect)

	code, _ = h.call(t, http.MethodGet, "/booking", "unknown-session", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	patient, _ := h.login(t, "ana@medly.dev")
	code, env = h.call(t, http.MethodGet, "/doctor/schedule", patient, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "/patient", env.Redirect)

	code, env = h.call(t, http.MethodGet, "/me", patient, nil)
	require.Equal(t, http.StatusOK, code)
	me := data[sessionView](t, env)
	assert.Equal(t, clinic.RolePatient, me.Role)
	assert.Equal(t, "Ana", me.Name)
	require.NotNil(t, me.Profile.PatientProfile)
	assert.Equal(t, h.patient.ID.String(), me.Profile.PatientProfile.PatientID)
}

func TestLogoutEndsSession(t *testing.T) {
	h := newHarness(t)
	patient, _ := h.login(t, "ana@medly.dev")

	code, env := h.call(t, http.MethodPost, "/auth/logout", patient, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "/", env.Redirect)

	code, _ = h.call(t, http.MethodGet, "/me", patient, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

// brokenStore fails the operations whose flags are set.
type brokenStore struct {
	session.Store
	failGet    bool
	failDelete bool
}

func (b *brokenStore) Get(ctx context.Context, id string) (*session.Session, error) {
	if b.failGet {
		return nil, errors.New("redis: connection refused")
	}
	return b.Store.Get(ctx, id)
}

func (b *brokenStore) Delete(ctx context.Context, id string) error {
	if b.failDelete {
		return errors.New("redis: connection refused")
	}
	return b.Store.Delete(ctx, id)
}

func TestSessionStoreFailures(t *testing.T) {
	store := &brokenStore{}
	h := newHarness(t, func(cfg *Config) {
		store.Store = cfg.Sessions
		cfg.Sessions = store
	})
	patient, _ := h.login(t, "ana@medly.dev")

	store.failDelete = true
	code, env := h.call(t, http.MethodPost, "/auth/logout", patient, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal_error", env.Error.Code)

	store.failDelete = false
	store.failGet = true
	code, env = h.call(t, http.MethodGet, "/me", patient, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal_error", env.Error.Code)
	assert.Empty(t, env.Redirect)

	store.failGet = false
	code, _ = h.call(t, http.MethodGet, "/me", patient, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestUnknownRoutesAnswerWithEnvelope(t *testing.T) {
	h := newHarness(t)
	code, env := h.call(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Code)
	assert.NotNil(t, env.Notifications)

	code, env = h.call(t, http.MethodPatch, "/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, "method_not_allowed", env.Error.Code)
}

func TestBookingFlow(t *testing.T) {
	h := newHarness(t)
	w := h.seedWindow(t)
	patient, _ := h.login(t, "ana@medly.dev")

	code, env := h.call(t, http.MethodGet, "/booking", patient, nil)
	require.Equal(t, http.StatusOK, code)
	st := data[booking.State](t, env)
	assert.Equal(t, booking.StepFiltering, st.Step)
	assert.Equal(t, "2025-06-01", st.Criteria.StartDate)
	assert.Equal(t, "2025-06-08", st.Criteria.EndDate)

	code, env = h.call(t, http.MethodPost, "/booking/search", patient, searchRequest{Specialty: "cardiology"})
	require.Equal(t, http.StatusOK, code)
	st = data[booking.State](t, env)
	assert.Equal(t, booking.StepChoosingDoctor, st.Step)
	require.Len(t, st.Doctors, 1)
	assert.Equal(t, 2, st.Doctors[0].AvailableSlotCount)

	code, env = h.call(t, http.MethodPost, "/booking/doctors/"+h.doctor.ID.String()+"/select", patient, nil)
	require.Equal(t, http.StatusOK, code)
	st = data[booking.State](t, env)
	assert.Equal(t, booking.StepChoosingSlot, st.Step)
	require.Len(t, st.DoctorSlots, 1)

	slotID := w.Slots[0].ID.String()
	code, env = h.call(t, http.MethodPost, "/booking/slots/"+slotID+"/select", patient, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, booking.StepConfirming, data[booking.State](t, env).Step)

	code, env = h.call(t, http.MethodPost, "/booking/confirm", patient, nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, appointmentsPath, env.Redirect)
	assert.Contains(t, messages(env), "Consulta agendada com sucesso!")
	appt := data[clinic.Appointment](t, env)
	assert.Equal(t, clinic.AppointmentScheduled, appt.Status)

	code, env = h.call(t, http.MethodGet, "/booking", patient, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, booking.StepFiltering, data[booking.State](t, env).Step)

	code, env = h.call(t, http.MethodGet, "/patient/dashboard", patient, nil)
	require.Equal(t, http.StatusOK, code)
	dash := data[dashboard.PatientDashboard](t, env)
	assert.Len(t, dash.Scheduled, 1)
	require.NotNil(t, dash.Next)
	assert.Equal(t, appt.ID, dash.Next.ID)

	code, env = h.call(t, http.MethodPost, "/patient/appointments/"+appt.ID+"/cancel", patient, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, clinic.AppointmentCancelled, data[clinic.Appointment](t, env).Status)
	assert.Contains(t, messages(env), "Consulta cancelada com sucesso.")
}

func TestSearchRejectsInvertedRange(t *testing.T) {
	h := newHarness(t)
	patient, _ := h.login(t, "ana@medly.dev")

	code, env := h.call(t, http.MethodPost, "/booking/search", patient, searchRequest{StartDate: "2025-06-05", EndDate: "2025-06-01"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_date_range", env.Error.Code)
	assert.Empty(t, env.Notifications)
}

func TestSearchWithoutResultsNotifies(t *testing.T) {
	h := newHarness(t)
	patient, _ := h.login(t, "ana@medly.dev")

	code, env := h.call(t, http.MethodPost, "/booking/search", patient, searchRequest{})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"Nenhum horário disponível encontrado."}, messages(env))
	assert.Equal(t, booking.StepFiltering, data[booking.State](t, env).Step)
}

func TestConfirmConflictKeepsSelection(t *testing.T) {
	h := newHarness(t)
	w := h.seedWindow(t)
	patient, _ := h.login(t, "ana@medly.dev")

	h.call(t, http.MethodPost, "/booking/search", patient, searchRequest{})
	h.call(t, http.MethodPost, "/booking/doctors/"+h.doctor.ID.String()+"/select", patient, nil)
	h.call(t, http.MethodPost, "/booking/slots/"+w.Slots[0].ID.String()+"/select", patient, nil)

	_, err := h.svc.CreateAppointment(context.Background(), w.Slots[0].ID, h.patient.ID)
	require.NoError(t, err)

	code, env := h.call(t, http.MethodPost, "/booking/confirm", patient, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, messages(env), "Não foi possível agendar a consulta.")

	_, env = h.call(t, http.MethodGet, "/booking", patient, nil)
	st := data[booking.State](t, env)
	assert.Equal(t, booking.StepConfirming, st.Step)
	require.NotNil(t, st.SelectedSlot)
	assert.Equal(t, w.Slots[0].ID.String(), st.SelectedSlot.ID)
}

func TestConfirmHeldByAnotherReplica(t *testing.T) {
	h := newHarness(t)
	w := h.seedWindow(t)
	patient, _ := h.login(t, "ana@medly.dev")

	h.call(t, http.MethodPost, "/booking/search", patient, searchRequest{})
	h.call(t, http.MethodPost, "/booking/doctors/"+h.doctor.ID.String()+"/select", patient, nil)
	h.call(t, http.MethodPost, "/booking/slots/"+w.Slots[0].ID.String()+"/select", patient, nil)

	require.NoError(t, h.mr.Set(redisclient.BookingKey(h.patient.ID.String()), "other-replica"))

	code, env := h.call(t, http.MethodPost, "/booking/confirm", patient, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "submission_in_flight", env.Error.Code)
}

func TestSelectionErrors(t *testing.T) {
	h := newHarness(t)
	patient, _ := h.login(t, "ana@medly.dev")

	code, _ := h.call(t, http.MethodPost, "/booking/doctors/nobody/select", patient, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env := h.call(t, http.MethodPost, "/booking/confirm", patient, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "selection_incomplete", env.Error.Code)
}

func TestScheduleManagement(t *testing.T) {
	h := newHarness(t)
	w := h.seedWindow(t)
	doctor, _ := h.login(t, "lima@medly.dev")

	code, env := h.call(t, http.MethodGet, "/doctor/schedule", doctor, nil)
	require.Equal(t, http.StatusOK, code)
	view := data[schedule.View](t, env)
	assert.True(t, view.Loaded)
	assert.Equal(t, 1, view.Stats.TotalWindows)
	assert.Equal(t, 2, view.Stats.AvailableSlots)

	code, env = h.call(t, http.MethodPost, "/doctor/schedule/windows", doctor, medlyapi.WindowInput{
		StartTime:             clinic.NewLocalTime(morning.Add(-3 * time.Hour)),
		EndTime:               clinic.NewLocalTime(morning.Add(-2 * time.Hour)),
		SlotDurationInMinutes: 20,
	})
	require.Equal(t, http.StatusCreated, code)
	view = data[schedule.View](t, env)
	require.Len(t, view.Windows, 2)
	assert.Equal(t, morning.Add(-3*time.Hour), view.Windows[0].StartTime.Time)
	assert.Equal(t, 5, view.Stats.AvailableSlots)
	assert.Contains(t, messages(env), "Janela de disponibilidade criada com sucesso!")

	code, env = h.call(t, http.MethodPost, "/doctor/schedule/windows", doctor, medlyapi.WindowInput{
		StartTime:             clinic.NewLocalTime(morning),
		EndTime:               clinic.NewLocalTime(morning),
		SlotDurationInMinutes: 20,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_window", env.Error.Code)

	code, env = h.call(t, http.MethodPost, "/doctor/schedule/slots/"+w.Slots[0].ID.String()+"/toggle", doctor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, data[schedule.View](t, env).Stats.BlockedSlots)
	assert.Contains(t, messages(env), "Horário bloqueado com sucesso!")

	code, env = h.call(t, http.MethodDelete, "/doctor/schedule/windows/"+w.ID.String(), doctor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, data[schedule.View](t, env).Windows, 1)
	assert.Contains(t, messages(env), "Janela excluída com sucesso!")
}

func TestDeleteWindowWithBookedSlot(t *testing.T) {
	h := newHarness(t)
	w := h.seedWindow(t)
	appt, err := h.svc.CreateAppointment(context.Background(), w.Slots[0].ID, h.patient.ID)
	require.NoError(t, err)
	doctor, _ := h.login(t, "lima@medly.dev")

	code, _ := h.call(t, http.MethodGet, "/doctor/schedule", doctor, nil)
	require.Equal(t, http.StatusOK, code)

	code, env := h.call(t, http.MethodDelete, "/doctor/schedule/windows/"+w.ID.String(), doctor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, data[schedule.View](t, env).Windows)
	assert.Equal(t, []string{"Janela excluída com sucesso!"}, messages(env))

	kept, err := h.svc.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.AppointmentScheduled, kept.Status)
	assert.Nil(t, kept.Slot)
}

func TestDoctorDashboardAndStatus(t *testing.T) {
	h := newHarness(t)
	w := h.seedWindow(t)
	appt, err := h.svc.CreateAppointment(context.Background(), w.Slots[1].ID, h.patient.ID)
	require.NoError(t, err)
	doctor, _ := h.login(t, "lima@medly.dev")

	code, env := h.call(t, http.MethodGet, "/doctor/dashboard", doctor, nil)
	require.Equal(t, http.StatusOK, code)
	dash := data[dashboard.DoctorDashboard](t, env)
	assert.Equal(t, 1, dash.Counts.Scheduled)
	assert.Equal(t, 1, dash.Schedule.BookedSlots)

	code, env = h.call(t, http.MethodPost, "/doctor/appointments/"+appt.ID.String()+"/status", doctor, statusRequest{Status: clinic.AppointmentScheduled})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_transition", env.Error.Code)

	code, env = h.call(t, http.MethodPost, "/doctor/appointments/"+appt.ID.String()+"/status", doctor, statusRequest{Status: clinic.AppointmentCompleted})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, clinic.AppointmentCompleted, data[clinic.Appointment](t, env).Status)
	assert.Contains(t, messages(env), "Status atualizado.")

	code, env = h.call(t, http.MethodPost, "/doctor/appointments/"+appt.ID.String()+"/status", doctor, statusRequest{Status: clinic.AppointmentCancelled})
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, messages(env), "Não foi possível atualizar o status.")
}

func TestRegistryEvictsIdleWorkspaces(t *testing.T) {
	now := today
	reg := newRegistry(time.Minute, func() time.Time { return now })

	first := reg.get("a")
	reg.get("b")
	assert.Equal(t, 2, reg.len())
	assert.Same(t, first, reg.get("a"))

	now = now.Add(2 * time.Minute)
	reg.get("a")
	assert.Equal(t, 1, reg.len())

	reg.drop("a")
	assert.Equal(t, 0, reg.len())
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	code, _ := h.call(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env := h.call(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", data[map[string]string](t, env)["redis"])
}
