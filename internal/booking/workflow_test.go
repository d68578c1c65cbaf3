package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/notify"
)

type fakeAPI struct {
	mu          sync.Mutex
	slots       []clinic.TimeSlot
	searchErr   error
	lastSearch  medlyapi.SearchParams
	createErr   error
	createCalls int32
	release     chan struct{}
	entered     chan struct{}
}

func (f *fakeAPI) SearchTimeSlots(_ context.Context, p medlyapi.SearchParams) (*clinic.Page[clinic.TimeSlot], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSearch = p
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	page := clinic.NewPage(append([]clinic.TimeSlot{}, f.slots...), 0, p.Size, len(f.slots))
	return &page, nil
}

func (f *fakeAPI) CreateAppointment(_ context.Context, req medlyapi.CreateAppointmentRequest) (*clinic.Appointment, error) {
	atomic.AddInt32(&f.createCalls, 1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &clinic.Appointment{ID: "appt-" + req.TimeSlotID, Status: clinic.AppointmentScheduled}, nil
}

var today = time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)

// Three slots across two doctors: A has two, B has one; plus one booked slot.
func cardiologySlots() []clinic.TimeSlot {
	return []clinic.TimeSlot{
		slot("a1", "A", base, clinic.SlotAvailable),
		slot("b1", "B", base, clinic.SlotAvailable),
		slot("a2", "A", base.AddDate(0, 0, 1), clinic.SlotAvailable),
		slot("a3", "A", base.Add(time.Hour), clinic.SlotBooked),
	}
}

func newWorkflow(api *fakeAPI) (*Workflow, *notify.Recorder) {
	rec := notify.NewRecorder()
	return New(api, WithNotifier(rec), WithClock(func() time.Time { return today })), rec
}

func juneCriteria(t *testing.T) Criteria {
	t.Helper()
	start, err := ParseDate("2025-06-01")
	require.NoError(t, err)
	end, err := ParseDate("2025-06-07")
	require.NoError(t, err)
	return Criteria{Specialty: clinic.Cardiology, StartDate: start, EndDate: end}
}

func searched(t *testing.T) (*Workflow, *fakeAPI, *notify.Recorder) {
	t.Helper()
	api := &fakeAPI{slots: cardiologySlots()}
	w, rec := newWorkflow(api)
	require.NoError(t, w.Search(context.Background(), juneCriteria(t)))
	return w, api, rec
}

func TestDefaultCriteria(t *testing.T) {
	c := DefaultCriteria(today)
	assert.Equal(t, "2025-06-01", c.StartDate.Format(clinic.DateLayout))
	assert.Equal(t, "2025-06-08", c.EndDate.Format(clinic.DateLayout))
	assert.NoError(t, c.Validate())
}

func TestCriteriaValidate(t *testing.T) {
	c := juneCriteria(t)
	c.StartDate, c.EndDate = c.EndDate, c.StartDate
	assert.ErrorIs(t, c.Validate(), ErrInvalidDateRange)
	assert.ErrorIs(t, Criteria{}.Validate(), ErrMissingDates)

	same := juneCriteria(t)
	same.EndDate = same.StartDate
	assert.NoError(t, same.Validate())
}

func TestSearchScenario(t *testing.T) {
	w, api, rec := searched(t)

	assert.Equal(t, "2025-06-01T00:00:00", api.lastSearch.StartDate)
	assert.Equal(t, "2025-06-07T23:59:59", api.lastSearch.EndDate)
	assert.Equal(t, clinic.Cardiology, api.lastSearch.Specialty)
	assert.Equal(t, SearchPageSize, api.lastSearch.Size)

	st := w.Snapshot()
	assert.Equal(t, StepChoosingDoctor, st.Step)
	assert.Equal(t, 3, st.SlotCount)
	require.Len(t, st.Doctors, 2)
	assert.Equal(t, DoctorAvailability{DoctorID: "A", Name: "Dr. A", Specialty: "CARDIOLOGY", AvailableSlotCount: 2}, st.Doctors[0])
	assert.Equal(t, 1, st.Doctors[1].AvailableSlotCount)
	assert.Empty(t, rec.Drain())
}

func TestSearchNoResults(t *testing.T) {
	api := &fakeAPI{slots: []clinic.TimeSlot{slot("x", "A", base, clinic.SlotBlocked)}}
	w, rec := newWorkflow(api)

	require.NoError(t, w.Search(context.Background(), juneCriteria(t)))

	st := w.Snapshot()
	assert.True(t, st.HasSearched)
	assert.Equal(t, StepFiltering, st.Step)
	assert.Equal(t, []notify.Notification{{Level: notify.LevelInfo, Message: msgNoSlots}}, rec.Drain())
}

func TestSearchFailureLeavesStateUnchanged(t *testing.T) {
	w, api, rec := searched(t)
	require.NoError(t, w.SelectDoctor("A"))
	before := w.Snapshot()

	api.searchErr = errors.New("connection refused")
	err := w.Search(context.Background(), juneCriteria(t))
	require.Error(t, err)

	assert.Equal(t, before, w.Snapshot())
	assert.Equal(t, []notify.Notification{{Level: notify.LevelError, Message: msgSearchFailed}}, rec.Drain())
}

func TestSearchRejectsInvalidRangeWithoutCall(t *testing.T) {
	api := &fakeAPI{}
	w, rec := newWorkflow(api)
	c := juneCriteria(t)
	c.EndDate = c.StartDate.AddDate(0, 0, -1)

	assert.ErrorIs(t, w.Search(context.Background(), c), ErrInvalidDateRange)
	assert.Equal(t, medlyapi.SearchParams{}, api.lastSearch)
	assert.Empty(t, rec.Drain())
}

func TestSearchClearsSelections(t *testing.T) {
	w, _, _ := searched(t)
	require.NoError(t, w.SelectDoctor("A"))
	require.NoError(t, w.SelectSlot("a1"))

	require.NoError(t, w.Search(context.Background(), juneCriteria(t)))
	st := w.Snapshot()
	assert.Equal(t, StepChoosingDoctor, st.Step)
	assert.Empty(t, st.SelectedDoctorID)
	assert.Nil(t, st.SelectedSlot)
}

func TestSelectDoctorShowsTheirSlots(t *testing.T) {
	w, _, _ := searched(t)

	require.NoError(t, w.SelectDoctor("A"))
	st := w.Snapshot()
	assert.Equal(t, StepChoosingSlot, st.Step)
	require.Len(t, st.DoctorSlots, 2)
	assert.Equal(t, "2025-06-02", st.DoctorSlots[0].Date)
	assert.Equal(t, "a1", st.DoctorSlots[0].Slots[0].ID)
	assert.Equal(t, "2025-06-03", st.DoctorSlots[1].Date)
}

func TestSelectDoctorAlwaysClearsSlot(t *testing.T) {
	w, _, _ := searched(t)
	require.NoError(t, w.SelectDoctor("A"))
	require.NoError(t, w.SelectSlot("a1"))

	require.NoError(t, w.SelectDoctor("B"))
	st := w.Snapshot()
	assert.Equal(t, StepChoosingSlot, st.Step)
	assert.Nil(t, st.SelectedSlot)

	require.NoError(t, w.SelectSlot("b1"))
	// selecting the same doctor again toggles them off and clears the slot
	require.NoError(t, w.SelectDoctor("B"))
	st = w.Snapshot()
	assert.Equal(t, StepChoosingDoctor, st.Step)
	assert.Empty(t, st.SelectedDoctorID)
	assert.Nil(t, st.SelectedSlot)
}

func TestSelectUnknownDoctor(t *testing.T) {
	w, _, _ := searched(t)
	before := w.Snapshot()
	assert.ErrorIs(t, w.SelectDoctor("Z"), ErrUnknownDoctor)
	assert.ErrorIs(t, w.SelectDoctor(""), ErrUnknownDoctor)
	assert.Equal(t, before, w.Snapshot())
}

func TestSelectSlotRules(t *testing.T) {
	w, _, _ := searched(t)

	assert.ErrorIs(t, w.SelectSlot("a1"), ErrNoDoctorSelected)

	require.NoError(t, w.SelectDoctor("A"))
	before := w.Snapshot()
	assert.ErrorIs(t, w.SelectSlot("b1"), ErrSlotNotForDoctor)
	// booked slots were filtered out of the results
	assert.ErrorIs(t, w.SelectSlot("a3"), ErrUnknownSlot)
	assert.Equal(t, before, w.Snapshot())

	require.NoError(t, w.SelectSlot("a2"))
	st := w.Snapshot()
	assert.Equal(t, StepConfirming, st.Step)
	require.NotNil(t, st.SelectedSlot)
	assert.Equal(t, "a2", st.SelectedSlot.ID)

	w.ClearSlotSelection()
	assert.Equal(t, StepChoosingSlot, w.Step())
}

func TestStepForIsTotal(t *testing.T) {
	for _, hasSearched := range []bool{false, true} {
		for _, count := range []int{0, 1, 3} {
			for _, doctor := range []string{"", "A"} {
				for _, slotID := range []string{"", "a1"} {
					step := StepFor(hasSearched, count, doctor, slotID)
					switch step {
					case StepFiltering, StepChoosingDoctor, StepChoosingSlot, StepConfirming:
					default:
						t.Fatalf("undefined step %q", step)
					}
				}
			}
		}
	}
	assert.Equal(t, StepFiltering, StepFor(true, 0, "", ""))
	assert.Equal(t, StepFiltering, StepFor(false, 2, "", ""))
	assert.Equal(t, StepChoosingDoctor, StepFor(true, 2, "", ""))
	assert.Equal(t, StepChoosingDoctor, StepFor(true, 2, "", "a1"))
}

func TestResetFromAnyState(t *testing.T) {
	api := &fakeAPI{slots: cardiologySlots()}
	fresh, _ := newWorkflow(api)
	initial := fresh.Snapshot()

	w, _, _ := searched(t)
	require.NoError(t, w.SelectDoctor("A"))
	require.NoError(t, w.SelectSlot("a1"))

	w.Reset()
	assert.Equal(t, initial, w.Snapshot())
	assert.Equal(t, StepFiltering, w.Step())

	w.Reset()
	assert.Equal(t, initial, w.Snapshot())
}

func TestConfirmSuccess(t *testing.T) {
	w, api, rec := searched(t)
	require.NoError(t, w.SelectDoctor("A"))
	require.NoError(t, w.SelectSlot("a1"))

	appt, err := w.Confirm(context.Background(), "patient-1")
	require.NoError(t, err)
	assert.Equal(t, "appt-a1", appt.ID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.createCalls))
	assert.Equal(t, []notify.Notification{{Level: notify.LevelSuccess, Message: msgBooked}}, rec.Drain())
	assert.False(t, w.Snapshot().Submitting)
}

func TestConfirmConflictKeepsSelection(t *testing.T) {
	w, api, rec := searched(t)
	require.NoError(t, w.SelectDoctor("A"))
	require.NoError(t, w.SelectSlot("a1"))
	api.createErr = &medlyapi.APIError{StatusCode: 409, Message: "time slot is not available"}

	_, err := w.Confirm(context.Background(), "patient-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, medlyapi.ErrConflict)

	st := w.Snapshot()
	assert.Equal(t, StepConfirming, st.Step)
	assert.Equal(t, "a1", st.SelectedSlot.ID)
	assert.Equal(t, clinic.SlotAvailable, st.SelectedSlot.Status)
	assert.False(t, st.Submitting)
	assert.Equal(t, []notify.Notification{{Level: notify.LevelError, Message: msgBookingFailed}}, rec.Drain())
}

func TestConfirmGuards(t *testing.T) {
	w, api, rec := searched(t)

	_, err := w.Confirm(context.Background(), "patient-1")
	assert.ErrorIs(t, err, ErrSelectionIncomplete)

	require.NoError(t, w.SelectDoctor("A"))
	require.NoError(t, w.SelectSlot("a1"))
	_, err = w.Confirm(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingPatient)

	assert.EqualValues(t, 0, atomic.LoadInt32(&api.createCalls))
	assert.Equal(t, []notify.Notification{{Level: notify.LevelError, Message: msgNoPatient}}, rec.Drain())
}

func TestConfirmSingleFlight(t *testing.T) {
	w, api, _ := searched(t)
	require.NoError(t, w.SelectDoctor("A"))
	require.NoError(t, w.SelectSlot("a1"))

	api.entered = make(chan struct{}, 1)
	api.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := w.Confirm(context.Background(), "patient-1")
		done <- err
	}()
	<-api.entered

	assert.True(t, w.Snapshot().Submitting)

	var wg sync.WaitGroup
	var rejected int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Confirm(context.Background(), "patient-1"); errors.Is(err, ErrSubmissionInFlight) {
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	close(api.release)
	require.NoError(t, <-done)

	assert.EqualValues(t, 20, rejected)
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.createCalls))
	assert.False(t, w.Snapshot().Submitting)
}

type sequencedAPI struct {
	fakeAPI
	gates map[string]chan struct{}
}

func (s *sequencedAPI) SearchTimeSlots(ctx context.Context, p medlyapi.SearchParams) (*clinic.Page[clinic.TimeSlot], error) {
	<-s.gates[string(p.Specialty)]
	var slots []clinic.TimeSlot
	if p.Specialty == clinic.Cardiology {
		slots = []clinic.TimeSlot{slot("card", "A", base, clinic.SlotAvailable)}
	} else {
		slots = []clinic.TimeSlot{slot("derm", "D", base, clinic.SlotAvailable)}
	}
	page := clinic.NewPage(slots, 0, p.Size, len(slots))
	return &page, nil
}

// The older search resolves last; the result depends on the stale guard.
func runOutOfOrderSearches(t *testing.T, opts ...Option) State {
	t.Helper()
	api := &sequencedAPI{gates: map[string]chan struct{}{
		string(clinic.Cardiology):  make(chan struct{}),
		string(clinic.Dermatology): make(chan struct{}),
	}}
	w := New(api, append([]Option{WithClock(func() time.Time { return today })}, opts...)...)

	older := juneCriteria(t)
	newer := juneCriteria(t)
	newer.Specialty = clinic.Dermatology

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, w.Search(context.Background(), older))
	}()
	// wait until the older search holds its sequence number
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.searchSeq == 1
	}, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, w.Search(context.Background(), newer))
	}()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.searchSeq == 2
	}, time.Second, time.Millisecond)

	close(api.gates[string(clinic.Dermatology)])
	time.Sleep(10 * time.Millisecond)
	close(api.gates[string(clinic.Cardiology)])
	wg.Wait()

	return w.Snapshot()
}

func TestSupersededSearchLastResponseWins(t *testing.T) {
	st := runOutOfOrderSearches(t)
	require.Len(t, st.Doctors, 1)
	assert.Equal(t, "A", st.Doctors[0].DoctorID)
}

func TestSupersededSearchDiscardedWithGuard(t *testing.T) {
	st := runOutOfOrderSearches(t, WithStaleSearchGuard())
	require.Len(t, st.Doctors, 1)
	assert.Equal(t, "D", st.Doctors[0].DoctorID)
	assert.Equal(t, clinic.Dermatology, st.Criteria.Specialty)
}
