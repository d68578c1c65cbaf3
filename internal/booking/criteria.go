package booking

import (
	"errors"
	"time"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
)

const (
	DefaultRangeDays = 7
	SearchPageSize   = 50
)

var (
	ErrMissingDates     = errors.New("start and end dates are required")
	ErrInvalidDateRange = errors.New("start date must not be after end date")
)

// Criteria is what the patient filters slots by. StartDate and EndDate are
// calendar dates (midnight UTC); both ends are inclusive.
type Criteria struct {
	Specialty clinic.Specialty `json:"specialty,omitempty"`
	DoctorID  string           `json:"doctorId,omitempty"`
	StartDate time.Time        `json:"-"`
	EndDate   time.Time        `json:"-"`
}

// DefaultCriteria covers today through today+7 across all specialties.
func DefaultCriteria(now time.Time) Criteria {
	today := Date(now)
	return Criteria{
		StartDate: today,
		EndDate:   today.AddDate(0, 0, DefaultRangeDays),
	}
}

// Date truncates t to its calendar date as seen in t's own location.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(clinic.DateLayout, raw, time.UTC)
}

func (c Criteria) Validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return ErrMissingDates
	}
	if c.EndDate.Before(c.StartDate) {
		return ErrInvalidDateRange
	}
	return nil
}

// Params scopes the search to [start 00:00:00, end 23:59:59].
func (c Criteria) Params(size int) medlyapi.SearchParams {
	return medlyapi.SearchParams{
		Specialty: c.Specialty,
		DoctorID:  c.DoctorID,
		StartDate: c.StartDate.Format(clinic.DateLayout) + "T00:00:00",
		EndDate:   c.EndDate.Format(clinic.DateLayout) + "T23:59:59",
		Size:      size,
	}
}

type CriteriaView struct {
	Specialty clinic.Specialty `json:"specialty,omitempty"`
	DoctorID  string           `json:"doctorId,omitempty"`
	StartDate string           `json:"startDate"`
	EndDate   string           `json:"endDate"`
}

func (c Criteria) View() CriteriaView {
	return CriteriaView{
		Specialty: c.Specialty,
		DoctorID:  c.DoctorID,
		StartDate: c.StartDate.Format(clinic.DateLayout),
		EndDate:   c.EndDate.Format(clinic.DateLayout),
	}
}
