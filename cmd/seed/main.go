package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/config"
	"github.com/medly/medly-portal/internal/db"
	redisclient "github.com/medly/medly-portal/internal/redis"
	"github.com/medly/medly-portal/internal/scheduling"
)

const (
	windowStartHour = 9
	windowHours     = 3
	slotMinutes     = 30
	seedDays        = 7

	adminEmail = "admin@medly.dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := cfg.Logger("seed")
	if err := cfg.RequirePostgres(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate schema")
	}

	repo := scheduling.NewPgRepository(pool)
	s := &seeder{
		repo:     repo,
		svc:      scheduling.NewService(repo, redisclient.NopLocker{}, logger),
		log:      logger,
		faker:    gofakeit.New(uint64(time.Now().UnixNano())),
		password: getEnv("SEED_PASSWORD", "medly123"),
	}

	hash, err := scheduling.HashPassword(s.password)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash password")
	}
	s.hash = hash

	if err := s.seedAdmin(ctx); err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}
	doctors, err := s.seedDoctors(ctx, getInt("SEED_DOCTORS", 20))
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := s.seedPatients(ctx, getInt("SEED_PATIENTS", 200)); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := s.seedWindows(ctx, doctors, time.Now()); err != nil {
		logger.Fatal().Err(err).Msg("seed windows")
	}

	logger.Info().
		Str("admin_login", adminEmail).
		Str("doctor_login", "medico1@medly.dev").
		Str("patient_login", "paciente1@medly.dev").
		Str("password", s.password).
		Msg("seed complete")
}

type seeder struct {
	repo     scheduling.Repository
	svc      *scheduling.Service
	log      zerolog.Logger
	faker    *gofakeit.Faker
	password string
	hash     string
}

func (s *seeder) seedAdmin(ctx context.Context) error {
	_, err := s.repo.CreateUser(ctx, scheduling.User{
		Name:         "Administrador",
		Email:        adminEmail,
		PasswordHash: s.hash,
		Role:         clinic.RoleAdmin,
	})
	if errors.Is(err, scheduling.ErrEmailTaken) {
		s.log.Info().Str("email", adminEmail).Msg("admin already present")
		return nil
	}
	return err
}

// seedDoctors creates medico1..medicoN@medly.dev spread over every specialty.
func (s *seeder) seedDoctors(ctx context.Context, count int) ([]*scheduling.Doctor, error) {
	s.log.Info().Int("count", count).Msg("seeding doctors")

	out := make([]*scheduling.Doctor, 0, count)
	for i := 1; i <= count; i++ {
		d, err := s.repo.CreateDoctorAccount(ctx, scheduling.User{
			Name:         "Dr. " + s.faker.Name(),
			Email:        fmt.Sprintf("medico%d@medly.dev", i),
			PasswordHash: s.hash,
			Role:         clinic.RoleDoctor,
		}, scheduling.Doctor{
			CRM:       s.faker.Numerify("CRM-SP-######"),
			Specialty: clinic.Specialties[(i-1)%len(clinic.Specialties)],
		})
		if err != nil {
			return nil, fmt.Errorf("doctor %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// seedPatients creates paciente1..pacienteN@medly.dev. The simulator logs in
// with the same addresses.
func (s *seeder) seedPatients(ctx context.Context, count int) error {
	s.log.Info().Int("count", count).Msg("seeding patients")

	for i := 1; i <= count; i++ {
		birth := s.faker.DateRange(time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC))
		if _, err := s.repo.CreatePatientAccount(ctx, scheduling.User{
			Name:         s.faker.Name(),
			Email:        fmt.Sprintf("paciente%d@medly.dev", i),
			PasswordHash: s.hash,
			Role:         clinic.RolePatient,
		}, scheduling.Patient{
			CPF:       s.faker.Numerify("###.###.###-##"),
			BirthDate: &birth,
		}); err != nil {
			return fmt.Errorf("patient %d: %w", i, err)
		}

		if i%100 == 0 {
			s.log.Info().Int("done", i).Int("count", count).Msg("patients seeded")
		}
	}
	return nil
}

// seedWindows gives every doctor a morning window on each of the next days.
func (s *seeder) seedWindows(ctx context.Context, doctors []*scheduling.Doctor, now time.Time) error {
	s.log.Info().Int("doctors", len(doctors)).Int("days", seedDays).Msg("seeding windows")

	first := time.Date(now.Year(), now.Month(), now.Day(), windowStartHour, 0, 0, 0, time.UTC)
	slots := 0
	for _, d := range doctors {
		for day := 1; day <= seedDays; day++ {
			start := first.AddDate(0, 0, day)
			w, err := s.svc.CreateWindow(ctx, d.ID, start, start.Add(windowHours*time.Hour), slotMinutes)
			if err != nil {
				return fmt.Errorf("window for %s on %s: %w", d.ID, start.Format(clinic.DateLayout), err)
			}
			slots += len(w.Slots)
		}
	}
	s.log.Info().Int("slots", slots).Msg("windows seeded")
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
