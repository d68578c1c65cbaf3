package schedule

import "github.com/medly/medly-portal/internal/clinic"

type Stats struct {
	TotalWindows   int `json:"totalWindows"`
	TotalSlots     int `json:"totalSlots"`
	AvailableSlots int `json:"availableSlots"`
	BookedSlots    int `json:"bookedSlots"`
	BlockedSlots   int `json:"blockedSlots"`
}

func ComputeStats(windows []clinic.AvailabilityWindow) Stats {
	st := Stats{TotalWindows: len(windows)}
	for _, w := range windows {
		for _, s := range w.TimeSlots {
			st.TotalSlots++
			switch s.Status {
			case clinic.SlotAvailable:
				st.AvailableSlots++
			case clinic.SlotBooked:
				st.BookedSlots++
			case clinic.SlotBlocked:
				st.BlockedSlots++
			}
		}
	}
	return st
}
