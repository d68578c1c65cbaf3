package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medly/medly-portal/internal/clinic"
	redisclient "github.com/medly/medly-portal/internal/redis"
)

var nine = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewService(repo, redisclient.NopLocker{}, zerolog.Nop()), repo
}

func seedDoctor(t *testing.T, repo *MemoryRepository, specialty clinic.Specialty) *Doctor {
	t.Helper()
	ctx := context.Background()
	u, err := repo.CreateUser(ctx, User{Name: "Dr. " + string(specialty), Email: uuid.NewString() + "@medly.dev", Role: clinic.RoleDoctor})
	require.NoError(t, err)
	d, err := repo.CreateDoctor(ctx, Doctor{UserID: u.ID, CRM: "CRM-1", Specialty: specialty})
	require.NoError(t, err)
	return d
}

func seedPatient(t *testing.T, repo *MemoryRepository) *Patient {
	t.Helper()
	ctx := context.Background()
	u, err := repo.CreateUser(ctx, User{Name: "Ana", Email: uuid.NewString() + "@medly.dev", Role: clinic.RolePatient})
	require.NoError(t, err)
	p, err := repo.CreatePatient(ctx, Patient{UserID: u.ID})
	require.NoError(t, err)
	return p
}

func TestSubdivideWindow(t *testing.T) {
	pieces := SubdivideWindow(nine, nine.Add(100*time.Minute), 30*time.Minute)
	require.Len(t, pieces, 3)
	assert.Equal(t, nine, pieces[0][0])
	assert.Equal(t, nine.Add(90*time.Minute), pieces[2][1])

	assert.Len(t, SubdivideWindow(nine, nine.Add(time.Hour), 30*time.Minute), 2)
	assert.Empty(t, SubdivideWindow(nine, nine.Add(20*time.Minute), 30*time.Minute))
	assert.Empty(t, SubdivideWindow(nine, nine.Add(time.Hour), 0))
}

func TestCreateWindow(t *testing.T) {
	svc, repo := newService(t)
	doc := seedDoctor(t, repo, clinic.Cardiology)

	w, err := svc.CreateWindow(context.Background(), doc.ID, nine, nine.Add(2*time.Hour), 30)
	require.NoError(t, err)
	require.Len(t, w.Slots, 4)
	for i, s := range w.Slots {
		assert.Equal(t, clinic.SlotAvailable, s.Status)
		assert.Equal(t, nine.Add(time.Duration(i)*30*time.Minute), s.StartTime)
		assert.Equal(t, doc.Name, s.Doctor.Name)
	}
	assert.Equal(t, EventWindowCreated, repo.Events()[0].EventType)
}

func TestCreateWindowRejections(t *testing.T) {
	svc, repo := newService(t)
	doc := seedDoctor(t, repo, clinic.Cardiology)
	ctx := context.Background()

	_, err := svc.CreateWindow(ctx, doc.ID, nine, nine, 30)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = svc.CreateWindow(ctx, doc.ID, nine, nine.Add(time.Hour), 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = svc.CreateWindow(ctx, doc.ID, nine, nine.Add(20*time.Minute), 30)
	assert.ErrorIs(t, err, ErrWindowTooShort)
	_, err = svc.CreateWindow(ctx, uuid.New(), nine, nine.Add(time.Hour), 30)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	_, err = svc.CreateWindow(ctx, doc.ID, nine, nine.Add(2*time.Hour), 30)
	require.NoError(t, err)
	_, err = svc.CreateWindow(ctx, doc.ID, nine.Add(time.Hour), nine.Add(3*time.Hour), 30)
	assert.ErrorIs(t, err, ErrWindowOverlap)

	// touching windows do not overlap
	_, err = svc.CreateWindow(ctx, doc.ID, nine.Add(2*time.Hour), nine.Add(3*time.Hour), 30)
	assert.NoError(t, err)

	// another doctor is unaffected
	other := seedDoctor(t, repo, clinic.Neurology)
	_, err = svc.CreateWindow(ctx, other.ID, nine, nine.Add(2*time.Hour), 30)
	assert.NoError(t, err)
}

func TestSearchSlotsFilters(t *testing.T) {
	svc, repo := newService(t)
	cardio := seedDoctor(t, repo, clinic.Cardiology)
	neuro := seedDoctor(t, repo, clinic.Neurology)
	ctx := context.Background()

	_, err := svc.CreateWindow(ctx, cardio.ID, nine, nine.Add(time.Hour), 30)
	require.NoError(t, err)
	_, err = svc.CreateWindow(ctx, neuro.ID, nine, nine.Add(time.Hour), 60)
	require.NoError(t, err)
	_, err = svc.CreateWindow(ctx, cardio.ID, nine.AddDate(0, 0, 10), nine.AddDate(0, 0, 10).Add(time.Hour), 60)
	require.NoError(t, err)

	day := SlotFilter{Start: nine.Add(-9 * time.Hour), End: nine.Add(15 * time.Hour)}

	all, total, err := svc.SearchSlots(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	f := day
	f.Specialty = clinic.Cardiology
	_, total, err = svc.SearchSlots(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	f = day
	f.DoctorID = &neuro.ID
	slots, _, err := svc.SearchSlots(ctx, f)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, neuro.ID, slots[0].Doctor.ID)

	f = day
	f.Size = 2
	f.Page = 1
	slots, total, err = svc.SearchSlots(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, slots, 1)

	_, _, err = svc.SearchSlots(ctx, SlotFilter{Start: nine, End: nine.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func bookable(t *testing.T) (*Service, *MemoryRepository, *WindowDetail, *Patient) {
	t.Helper()
	svc, repo := newService(t)
	doc := seedDoctor(t, repo, clinic.Cardiology)
	w, err := svc.CreateWindow(context.Background(), doc.ID, nine, nine.Add(time.Hour), 30)
	require.NoError(t, err)
	return svc, repo, w, seedPatient(t, repo)
}

func TestCreateAppointmentBooksSlot(t *testing.T) {
	svc, _, w, patient := bookable(t)
	ctx := context.Background()
	slotID := w.Slots[0].ID

	appt, err := svc.CreateAppointment(ctx, slotID, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.AppointmentScheduled, appt.Status)
	require.NotNil(t, appt.Slot)
	assert.Equal(t, clinic.SlotBooked, appt.Slot.Status)
	assert.Equal(t, "Ana", appt.Patient.Name)
	assert.Equal(t, w.DoctorID, appt.Doctor.ID)

	_, err = svc.CreateAppointment(ctx, slotID, patient.ID)
	assert.ErrorIs(t, err, ErrSlotNotAvailable)

	_, err = svc.CreateAppointment(ctx, uuid.New(), patient.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)
	_, err = svc.CreateAppointment(ctx, w.Slots[1].ID, uuid.New())
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestCreateAppointmentBlockedSlot(t *testing.T) {
	svc, _, w, patient := bookable(t)
	ctx := context.Background()

	_, err := svc.UpdateSlotStatus(ctx, w.Slots[0].ID, clinic.SlotBlocked)
	require.NoError(t, err)
	_, err = svc.CreateAppointment(ctx, w.Slots[0].ID, patient.ID)
	assert.ErrorIs(t, err, ErrSlotNotAvailable)
}

func TestConcurrentBookingHasOneWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewMemoryRepository()
	svc := NewService(repo, redisclient.NewRedisLocker(client, 5*time.Second), zerolog.Nop())
	doc := seedDoctor(t, repo, clinic.Cardiology)
	w, err := svc.CreateWindow(context.Background(), doc.ID, nine, nine.Add(time.Hour), 30)
	require.NoError(t, err)
	slotID := w.Slots[0].ID

	const workers = 20
	patients := make([]*Patient, workers)
	for i := range patients {
		patients[i] = seedPatient(t, repo)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		losses    int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(p *Patient) {
			defer wg.Done()
			_, err := svc.CreateAppointment(context.Background(), slotID, p.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotNotAvailable), errors.Is(err, ErrSlotBeingBooked):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(patients[i])
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, losses)
	assert.False(t, mr.Exists(redisclient.SlotKey(slotID)))
}

func TestUpdateSlotStatus(t *testing.T) {
	svc, _, w, patient := bookable(t)
	ctx := context.Background()

	s, err := svc.UpdateSlotStatus(ctx, w.Slots[0].ID, clinic.SlotBlocked)
	require.NoError(t, err)
	assert.Equal(t, clinic.SlotBlocked, s.Status)

	s, err = svc.UpdateSlotStatus(ctx, w.Slots[0].ID, clinic.SlotAvailable)
	require.NoError(t, err)
	assert.Equal(t, clinic.SlotAvailable, s.Status)

	_, err = svc.UpdateSlotStatus(ctx, w.Slots[0].ID, clinic.SlotBooked)
	assert.ErrorIs(t, err, ErrInvalidSlotStatus)

	_, err = svc.CreateAppointment(ctx, w.Slots[1].ID, patient.ID)
	require.NoError(t, err)
	_, err = svc.UpdateSlotStatus(ctx, w.Slots[1].ID, clinic.SlotBlocked)
	assert.ErrorIs(t, err, ErrSlotBooked)
}

func TestAppointmentTransitions(t *testing.T) {
	svc, _, w, patient := bookable(t)
	ctx := context.Background()

	first, err := svc.CreateAppointment(ctx, w.Slots[0].ID, patient.ID)
	require.NoError(t, err)
	done, err := svc.CompleteAppointment(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.AppointmentCompleted, done.Status)
	assert.Equal(t, clinic.SlotBooked, done.Slot.Status)

	_, err = svc.CancelAppointment(ctx, first.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	second, err := svc.CreateAppointment(ctx, w.Slots[1].ID, patient.ID)
	require.NoError(t, err)
	cancelled, err := svc.CancelAppointment(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.AppointmentCancelled, cancelled.Status)
	assert.Equal(t, clinic.SlotAvailable, cancelled.Slot.Status)

	// the freed slot can be booked again
	_, err = svc.CreateAppointment(ctx, w.Slots[1].ID, patient.ID)
	assert.NoError(t, err)

	_, err = svc.CompleteAppointment(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestDeleteWindow(t *testing.T) {
	svc, repo, w, patient := bookable(t)
	ctx := context.Background()

	appt, err := svc.CreateAppointment(ctx, w.Slots[0].ID, patient.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteWindow(ctx, w.ID))

	for _, slot := range w.Slots {
		_, err = repo.GetSlot(ctx, slot.ID)
		assert.ErrorIs(t, err, ErrSlotNotFound)
	}

	kept, err := svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.Slot)
	assert.Equal(t, clinic.AppointmentScheduled, kept.Status)

	// the orphaned appointment can still be cancelled
	cancelled, err := svc.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.AppointmentCancelled, cancelled.Status)

	events := repo.Events()
	assert.Equal(t, EventWindowDeleted, events[len(events)-2].EventType)
	assert.JSONEq(t, `{"doctor_id":"`+w.DoctorID.String()+`","booked_slots":1}`, string(events[len(events)-2].Payload))

	assert.ErrorIs(t, svc.DeleteWindow(ctx, w.ID), ErrWindowNotFound)
}

func TestListAppointmentsFilters(t *testing.T) {
	svc, repo, w, patient := bookable(t)
	ctx := context.Background()
	other := seedPatient(t, repo)

	_, err := svc.CreateAppointment(ctx, w.Slots[0].ID, patient.ID)
	require.NoError(t, err)
	second, err := svc.CreateAppointment(ctx, w.Slots[1].ID, other.ID)
	require.NoError(t, err)
	_, err = svc.CancelAppointment(ctx, second.ID)
	require.NoError(t, err)

	mine, total, err := svc.ListAppointments(ctx, AppointmentFilter{PatientID: &patient.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, patient.ID, mine[0].PatientID)

	_, total, err = svc.ListAppointments(ctx, AppointmentFilter{DoctorID: &w.DoctorID, Status: clinic.AppointmentCancelled})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	later := nine.Add(20 * time.Minute)
	inRange, _, err := svc.ListAppointments(ctx, AppointmentFilter{Start: &later})
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, second.ID, inRange[0].ID)

	_, _, err = svc.ListAppointments(ctx, AppointmentFilter{Start: &later, End: &nine})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestListWindowsOrdered(t *testing.T) {
	svc, repo := newService(t)
	doc := seedDoctor(t, repo, clinic.Cardiology)
	ctx := context.Background()

	_, err := svc.CreateWindow(ctx, doc.ID, nine.AddDate(0, 0, 1), nine.AddDate(0, 0, 1).Add(time.Hour), 30)
	require.NoError(t, err)
	_, err = svc.CreateWindow(ctx, doc.ID, nine, nine.Add(time.Hour), 30)
	require.NoError(t, err)

	windows, total, err := svc.ListWindows(ctx, doc.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.True(t, windows[0].StartTime.Before(windows[1].StartTime))
}

func TestNormalizePage(t *testing.T) {
	p, s := normalizePage(-1, 0)
	assert.Equal(t, 0, p)
	assert.Equal(t, DefaultPageSize, s)
	_, s = normalizePage(0, 1000)
	assert.Equal(t, MaxPageSize, s)
}
