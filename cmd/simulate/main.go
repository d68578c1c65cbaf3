package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/medly/medly-portal/internal/booking"
	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/config"
	"github.com/medly/medly-portal/internal/medlyapi"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Patients    int
	Password    string
	BookRatio   float64
	CancelRatio float64
	ReadRatio   float64
}

type patient struct {
	id     string
	client *medlyapi.Client
}

type DataPool struct {
	Patients     []patient
	Slots        []string
	mu           sync.Mutex
	appointments []bookedAppointment
}

type bookedAppointment struct {
	id      string
	patient patient
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

// TakeAppointment removes and returns a random booked appointment.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	idx := rng.Intn(len(dp.appointments))
	a := dp.appointments[idx]
	dp.appointments[idx] = dp.appointments[len(dp.appointments)-1]
	dp.appointments = dp.appointments[:len(dp.appointments)-1]
	return a, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil:
		atomic.AddInt64(&om.Success, 1)
	case errors.Is(err, medlyapi.ErrConflict):
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking       OperationMetrics
	Cancel        OperationMetrics
	Search        OperationMetrics
	ListByPatient OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	log     zerolog.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := baseCfg.Logger("simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("book", cfg.BookRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := medlyapi.New(cfg.APIBaseURL, medlyapi.WithTimeout(10*time.Second))
	dataPool, err := loadDataPool(ctx, client, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("patients", len(dataPool.Patients)).Int("slots", len(dataPool.Slots)).Msg("data pool loaded")

	sim := &Simulator{config: cfg, pool: dataPool, log: logger}
	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", base.MedlyAPIURL),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		Patients:    getInt("SIM_PATIENTS", 50),
		Password:    getEnv("SEED_PASSWORD", "medly123"),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.6),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.3),
	}

	total := cfg.BookRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 {
		return fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	return nil
}

// loadDataPool signs in as the seeded patients and collects the bookable
// slots of the coming week.
func loadDataPool(ctx context.Context, client *medlyapi.Client, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	for i := 1; i <= cfg.Patients; i++ {
		auth, err := client.Login(ctx, medlyapi.LoginRequest{
			Email:    fmt.Sprintf("paciente%d@medly.dev", i),
			Password: cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("login paciente%d: %w", i, err)
		}
		authed := client.WithToken(auth.Token)
		profile, err := authed.Me(ctx)
		if err != nil {
			return nil, fmt.Errorf("profile paciente%d: %w", i, err)
		}
		if profile.PatientProfile == nil {
			return nil, fmt.Errorf("paciente%d has no patient profile", i)
		}
		dataPool.Patients = append(dataPool.Patients, patient{id: profile.PatientProfile.PatientID, client: authed})
	}

	slots, err := availableSlots(ctx, dataPool.Patients[0].client.SearchTimeSlots, booking.DefaultCriteria(time.Now()))
	if err != nil {
		return nil, err
	}
	dataPool.Slots = slots

	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no available slots, run cmd/seed first")
	}
	return dataPool, nil
}

// slotPageSize is the largest page the Medly API serves.
const slotPageSize = 100

type slotSearch func(ctx context.Context, p medlyapi.SearchParams) (*clinic.Page[clinic.TimeSlot], error)

// availableSlots walks every page of the search and keeps the bookable ids.
func availableSlots(ctx context.Context, search slotSearch, criteria booking.Criteria) ([]string, error) {
	var ids []string
	params := criteria.Params(slotPageSize)
	for {
		page, err := search(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("search slots page %d: %w", params.Page, err)
		}
		for _, s := range booking.AvailableOnly(page.Content) {
			ids = append(ids, s.ID)
		}
		if len(page.Content) == 0 || params.Page+1 >= page.Page.TotalPages {
			return ids, nil
		}
		params.Page++
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.doSearch(ctx, rng)
		default:
			s.doListByPatient(ctx, rng)
		}
	}
}

func (s *Simulator) randomPatient(rng *rand.Rand) patient {
	return s.pool.Patients[rng.Intn(len(s.pool.Patients))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.randomPatient(rng)
	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()
	appt, err := p.client.CreateAppointment(ctx, medlyapi.CreateAppointmentRequest{TimeSlotID: slotID, PatientID: p.id})
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(time.Since(start), err)
	if err == nil {
		s.pool.AddAppointment(bookedAppointment{id: appt.ID, patient: p})
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	a, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	_, err := a.patient.client.CancelAppointment(ctx, a.id)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(time.Since(start), err)
}

func (s *Simulator) doSearch(ctx context.Context, rng *rand.Rand) {
	p := s.randomPatient(rng)
	criteria := booking.DefaultCriteria(time.Now())
	criteria.Specialty = clinic.Specialties[rng.Intn(len(clinic.Specialties))]

	start := time.Now()
	_, err := p.client.SearchTimeSlots(ctx, criteria.Params(booking.SearchPageSize))
	if ctx.Err() != nil {
		return
	}
	s.metrics.Search.Record(time.Since(start), err)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	p := s.randomPatient(rng)

	start := time.Now()
	_, err := p.client.ListAppointments(ctx, medlyapi.AppointmentFilter{PatientID: p.id, Size: 20})
	if ctx.Err() != nil {
		return
	}
	s.metrics.ListByPatient.Record(time.Since(start), err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Slots in play: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Search", &s.metrics.Search)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
