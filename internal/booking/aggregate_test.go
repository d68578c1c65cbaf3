package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medly/medly-portal/internal/clinic"
)

var base = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func slot(id, doctorID string, start time.Time, status clinic.SlotStatus) clinic.TimeSlot {
	return clinic.TimeSlot{
		ID:        id,
		StartTime: clinic.NewLocalTime(start),
		EndTime:   clinic.NewLocalTime(start.Add(30 * time.Minute)),
		Status:    status,
		Doctor:    clinic.DoctorSummary{ID: doctorID, Name: "Dr. " + doctorID, Specialty: string(clinic.Cardiology)},
	}
}

func TestAvailableOnly(t *testing.T) {
	in := []clinic.TimeSlot{
		slot("s1", "a", base, clinic.SlotAvailable),
		slot("s2", "a", base, clinic.SlotBooked),
		slot("s3", "b", base, clinic.SlotBlocked),
		slot("s4", "b", base, clinic.SlotAvailable),
	}
	out := AvailableOnly(in)
	require.Len(t, out, 2)
	assert.Equal(t, "s1", out[0].ID)
	assert.Equal(t, "s4", out[1].ID)
}

func TestAggregateDoctorsCountsAndOrder(t *testing.T) {
	in := []clinic.TimeSlot{
		slot("s1", "b", base, clinic.SlotAvailable),
		slot("s2", "a", base, clinic.SlotAvailable),
		slot("s3", "a", base.Add(time.Hour), clinic.SlotAvailable),
		slot("s4", "c", base, clinic.SlotAvailable),
	}

	got := AggregateDoctors(in)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].DoctorID)
	assert.Equal(t, 2, got[0].AvailableSlotCount)
	// b and c tie at one slot and keep first-seen order
	assert.Equal(t, "b", got[1].DoctorID)
	assert.Equal(t, "c", got[2].DoctorID)

	total := 0
	for _, d := range got {
		total += d.AvailableSlotCount
	}
	assert.Equal(t, len(in), total)
}

func TestAggregateDoctorsEmpty(t *testing.T) {
	got := AggregateDoctors(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSlotsForDoctorGroupsByDate(t *testing.T) {
	day2 := base.AddDate(0, 0, 1)
	in := []clinic.TimeSlot{
		slot("late", "a", day2.Add(2*time.Hour), clinic.SlotAvailable),
		slot("other", "b", base, clinic.SlotAvailable),
		slot("second", "a", base.Add(time.Hour), clinic.SlotAvailable),
		slot("first", "a", base, clinic.SlotAvailable),
		slot("early", "a", day2, clinic.SlotAvailable),
	}

	groups := SlotsForDoctor(in, "a")
	require.Len(t, groups, 2)

	assert.Equal(t, "2025-06-02", groups[0].Date)
	assert.Equal(t, []string{"first", "second"}, ids(groups[0].Slots))
	assert.Equal(t, "2025-06-03", groups[1].Date)
	assert.Equal(t, []string{"early", "late"}, ids(groups[1].Slots))

	assert.Empty(t, SlotsForDoctor(in, "nobody"))
}

func ids(slots []clinic.TimeSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.ID)
	}
	return out
}
