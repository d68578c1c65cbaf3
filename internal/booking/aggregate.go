package booking

import (
	"sort"

	"github.com/medly/medly-portal/internal/clinic"
)

type DoctorAvailability struct {
	DoctorID           string `json:"doctorId"`
	Name               string `json:"name"`
	Specialty          string `json:"specialty,omitempty"`
	AvailableSlotCount int    `json:"availableSlotCount"`
}

type DayGroup struct {
	Date  string            `json:"date"`
	Slots []clinic.TimeSlot `json:"slots"`
}

// AvailableOnly keeps the bookable slots. The search endpoint answers with
// every status, so this filter runs on each result.
func AvailableOnly(slots []clinic.TimeSlot) []clinic.TimeSlot {
	out := make([]clinic.TimeSlot, 0, len(slots))
	for _, s := range slots {
		if s.Status == clinic.SlotAvailable {
			out = append(out, s)
		}
	}
	return out
}

// AggregateDoctors lists each doctor present in slots with their slot count,
// most slots first. Ties keep the order in which doctors first appear.
func AggregateDoctors(slots []clinic.TimeSlot) []DoctorAvailability {
	index := make(map[string]int)
	out := make([]DoctorAvailability, 0)
	for _, s := range slots {
		i, ok := index[s.Doctor.ID]
		if !ok {
			i = len(out)
			index[s.Doctor.ID] = i
			out = append(out, DoctorAvailability{
				DoctorID:  s.Doctor.ID,
				Name:      s.Doctor.Name,
				Specialty: s.Doctor.Specialty,
			})
		}
		out[i].AvailableSlotCount++
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AvailableSlotCount > out[j].AvailableSlotCount
	})
	return out
}

// SlotsForDoctor returns the doctor's slots in chronological order, grouped
// by calendar date.
func SlotsForDoctor(slots []clinic.TimeSlot, doctorID string) []DayGroup {
	mine := make([]clinic.TimeSlot, 0)
	for _, s := range slots {
		if s.Doctor.ID == doctorID {
			mine = append(mine, s)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].StartTime.Before(mine[j].StartTime.Time)
	})

	groups := make([]DayGroup, 0)
	for _, s := range mine {
		date := s.StartTime.Date()
		if n := len(groups); n > 0 && groups[n-1].Date == date {
			groups[n-1].Slots = append(groups[n-1].Slots, s)
			continue
		}
		groups = append(groups, DayGroup{Date: date, Slots: []clinic.TimeSlot{s}})
	}
	return groups
}
