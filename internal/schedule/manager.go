// Package schedule manages a doctor's availability windows and the slots
// inside them.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medly/medly-portal/internal/clinic"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/notify"
)

const (
	msgLoadFailed   = "Erro ao carregar agenda."
	msgCreated      = "Janela de disponibilidade criada com sucesso!"
	msgCreateFailed = "Erro ao criar janela de disponibilidade."
	msgNoDoctor     = "Erro ao identificar médico."
	msgDeleted      = "Janela excluída com sucesso!"
	msgDeleteFailed = "Erro ao excluir janela."
	msgSlotReleased = "Horário liberado com sucesso!"
	msgSlotBlocked  = "Horário bloqueado com sucesso!"
	msgToggleFailed = "Erro ao atualizar status do horário."
)

var (
	ErrInvalidWindow  = errors.New("window end must be after start and slot duration must be positive")
	ErrMissingDoctor  = errors.New("doctor identity is unknown")
	ErrUnknownWindow  = errors.New("window is not loaded")
	ErrUnknownSlot    = errors.New("slot is not loaded")
	ErrSlotBooked     = errors.New("booked slots cannot be toggled")
	ErrSlotStatus     = errors.New("slot status is neither AVAILABLE nor BLOCKED")
	ErrDeleteInFlight = errors.New("window is already being deleted")
)

// Collaborator is the slice of the Medly API the manager calls.
type Collaborator interface {
	ListWindows(ctx context.Context, doctorID string) (*clinic.Page[clinic.AvailabilityWindow], error)
	CreateWindow(ctx context.Context, doctorID string, in medlyapi.WindowInput) (*clinic.AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, id string) error
	UpdateSlotStatus(ctx context.Context, id string, status clinic.SlotStatus) (*clinic.TimeSlot, error)
}

type Manager struct {
	api      Collaborator
	doctorID string
	notifier notify.Notifier
	log      zerolog.Logger

	mu       sync.Mutex
	windows  []clinic.AvailabilityWindow
	loaded   bool
	deleting map[string]bool
}

type Option func(*Manager)

func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func NewManager(api Collaborator, doctorID string, opts ...Option) *Manager {
	m := &Manager{
		api:      api,
		doctorID: doctorID,
		notifier: notify.Discard,
		log:      zerolog.Nop(),
		deleting: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the local windows with the doctor's windows from the API.
func (m *Manager) Load(ctx context.Context) error {
	if m.doctorID == "" {
		m.notifier.Notify(notify.LevelError, msgNoDoctor)
		return ErrMissingDoctor
	}

	page, err := m.api.ListWindows(ctx, m.doctorID)
	if err != nil {
		m.log.Error().Err(err).Str("doctor_id", m.doctorID).Msg("list windows")
		m.notifier.Notify(notify.LevelError, msgLoadFailed)
		return fmt.Errorf("list windows: %w", err)
	}

	windows := make([]clinic.AvailabilityWindow, 0, len(page.Content))
	for _, w := range page.Content {
		windows = append(windows, normalize(w))
	}
	sortWindows(windows)

	m.mu.Lock()
	m.windows = windows
	m.loaded = true
	m.mu.Unlock()
	return nil
}

func (m *Manager) CreateWindow(ctx context.Context, in medlyapi.WindowInput) (*clinic.AvailabilityWindow, error) {
	if !in.EndTime.After(in.StartTime.Time) || in.SlotDurationInMinutes <= 0 {
		return nil, ErrInvalidWindow
	}
	if m.doctorID == "" {
		m.notifier.Notify(notify.LevelError, msgNoDoctor)
		return nil, ErrMissingDoctor
	}

	created, err := m.api.CreateWindow(ctx, m.doctorID, in)
	if err != nil {
		m.log.Error().Err(err).Str("doctor_id", m.doctorID).Msg("create window")
		m.notifier.Notify(notify.LevelError, msgCreateFailed)
		return nil, fmt.Errorf("create window: %w", err)
	}
	w := normalize(*created)

	m.mu.Lock()
	i := sort.Search(len(m.windows), func(i int) bool {
		return m.windows[i].StartTime.After(w.StartTime.Time)
	})
	m.windows = append(m.windows, clinic.AvailabilityWindow{})
	copy(m.windows[i+1:], m.windows[i:])
	m.windows[i] = w
	m.mu.Unlock()

	m.log.Info().Str("window_id", w.ID).Int("slots", len(w.TimeSlots)).Msg("window created")
	m.notifier.Notify(notify.LevelSuccess, msgCreated)
	return &w, nil
}

// DeleteWindow removes the window once the API has confirmed the deletion.
// Deletes of different windows may run side by side; a second delete of the
// same window fails with ErrDeleteInFlight.
func (m *Manager) DeleteWindow(ctx context.Context, windowID string) error {
	m.mu.Lock()
	if m.deleting[windowID] {
		m.mu.Unlock()
		return ErrDeleteInFlight
	}
	if m.windowIndex(windowID) < 0 {
		m.mu.Unlock()
		return ErrUnknownWindow
	}
	m.deleting[windowID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.deleting, windowID)
		m.mu.Unlock()
	}()

	if err := m.api.DeleteWindow(ctx, windowID); err != nil {
		m.log.Error().Err(err).Str("window_id", windowID).Msg("delete window")
		m.notifier.Notify(notify.LevelError, msgDeleteFailed)
		return fmt.Errorf("delete window: %w", err)
	}

	m.mu.Lock()
	if i := m.windowIndex(windowID); i >= 0 {
		m.windows = append(m.windows[:i], m.windows[i+1:]...)
	}
	m.mu.Unlock()

	m.notifier.Notify(notify.LevelSuccess, msgDeleted)
	return nil
}

// ToggleSlotStatus flips a slot between AVAILABLE and BLOCKED.
func (m *Manager) ToggleSlotStatus(ctx context.Context, slotID string) (*clinic.TimeSlot, error) {
	m.mu.Lock()
	wi, si := m.slotIndex(slotID)
	if wi < 0 {
		m.mu.Unlock()
		return nil, ErrUnknownSlot
	}
	current := m.windows[wi].TimeSlots[si].Status
	m.mu.Unlock()

	var target clinic.SlotStatus
	switch current {
	case clinic.SlotAvailable:
		target = clinic.SlotBlocked
	case clinic.SlotBlocked:
		target = clinic.SlotAvailable
	case clinic.SlotBooked:
		return nil, ErrSlotBooked
	default:
		return nil, fmt.Errorf("%w: %q", ErrSlotStatus, current)
	}

	updated, err := m.api.UpdateSlotStatus(ctx, slotID, target)
	if err != nil {
		m.log.Error().Err(err).Str("slot_id", slotID).Str("target", string(target)).Msg("update slot status")
		m.notifier.Notify(notify.LevelError, msgToggleFailed)
		return nil, fmt.Errorf("update slot status: %w", err)
	}

	m.mu.Lock()
	var out clinic.TimeSlot
	if wi, si := m.slotIndex(slotID); wi >= 0 {
		m.windows[wi].TimeSlots[si].Status = updated.Status
		out = m.windows[wi].TimeSlots[si]
	} else {
		out = *updated
	}
	m.mu.Unlock()

	if updated.Status == clinic.SlotAvailable {
		m.notifier.Notify(notify.LevelSuccess, msgSlotReleased)
	} else {
		m.notifier.Notify(notify.LevelSuccess, msgSlotBlocked)
	}
	return &out, nil
}

// Windows returns a copy of the loaded windows in start order.
func (m *Manager) Windows() []clinic.AvailabilityWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]clinic.AvailabilityWindow, len(m.windows))
	for i, w := range m.windows {
		w.TimeSlots = append([]clinic.TimeSlot{}, w.TimeSlots...)
		out[i] = w
	}
	return out
}

func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *Manager) Stats() Stats {
	return ComputeStats(m.Windows())
}

type View struct {
	DoctorID    string                      `json:"doctorId"`
	Loaded      bool                        `json:"loaded"`
	Windows     []clinic.AvailabilityWindow `json:"windows"`
	Stats       Stats                       `json:"stats"`
	DeletingIDs []string                    `json:"deletingIds,omitempty"`
}

func (m *Manager) Snapshot() View {
	windows := m.Windows()
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleting []string
	for id := range m.deleting {
		deleting = append(deleting, id)
	}
	sort.Strings(deleting)
	return View{
		DoctorID:    m.doctorID,
		Loaded:      m.loaded,
		Windows:     windows,
		Stats:       ComputeStats(windows),
		DeletingIDs: deleting,
	}
}

func (m *Manager) windowIndex(id string) int {
	for i, w := range m.windows {
		if w.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) slotIndex(id string) (int, int) {
	for wi, w := range m.windows {
		for si, s := range w.TimeSlots {
			if s.ID == id {
				return wi, si
			}
		}
	}
	return -1, -1
}

func normalize(w clinic.AvailabilityWindow) clinic.AvailabilityWindow {
	slots := append([]clinic.TimeSlot{}, w.TimeSlots...)
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime.Time)
	})
	w.TimeSlots = slots
	return w
}

func sortWindows(windows []clinic.AvailabilityWindow) {
	sort.SliceStable(windows, func(i, j int) bool {
		return windows[i].StartTime.Before(windows[j].StartTime.Time)
	})
}
