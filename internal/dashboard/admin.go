package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/notify"
)

const (
	msgAdminLoadFailed = "Não foi possível carregar os dados do painel."

	recentSize = 5
)

type Totals struct {
	Doctors      int `json:"doctors"`
	Patients     int `json:"patients"`
	Appointments int `json:"appointments"`
}

type AdminDashboard struct {
	Totals         Totals           `json:"totals"`
	RecentDoctors  []clinic.Doctor  `json:"recentDoctors"`
	RecentPatients []clinic.Patient `json:"recentPatients"`
}

// Admin reads the three totals from page metadata, so the appointment query
// asks for a single row.
func (s *Service) Admin(ctx context.Context) (*AdminDashboard, error) {
	var (
		doctors  *clinic.Page[clinic.Doctor]
		patients *clinic.Page[clinic.Patient]
		appts    *clinic.Page[clinic.Appointment]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if doctors, err = s.api.ListDoctors(gctx, medlyapi.ListParams{Size: recentSize}); err != nil {
			return fmt.Errorf("list doctors: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if patients, err = s.api.ListPatients(gctx, medlyapi.ListParams{Size: recentSize}); err != nil {
			return fmt.Errorf("list patients: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if appts, err = s.api.ListAppointments(gctx, medlyapi.AppointmentFilter{Size: 1}); err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Msg("load admin dashboard")
		s.notifier.Notify(notify.LevelError, msgAdminLoadFailed)
		return nil, err
	}

	return &AdminDashboard{
		Totals: Totals{
			Doctors:      doctors.Page.TotalElements,
			Patients:     patients.Page.TotalElements,
			Appointments: appts.Page.TotalElements,
		},
		RecentDoctors:  doctors.Content,
		RecentPatients: patients.Content,
	}, nil
}
