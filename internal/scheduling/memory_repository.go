package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medly/medly-portal/internal/clinic"
)

// MemoryRepository keeps everything in process. It backs the development API
// when no Postgres DSN is configured, and the tests.
type MemoryRepository struct {
	mu           sync.Mutex
	users        map[uuid.UUID]User
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	windows      map[uuid.UUID]Window
	slots        map[uuid.UUID]Slot
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[uuid.UUID]User),
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		windows:      make(map[uuid.UUID]Window),
		slots:        make(map[uuid.UUID]Slot),
		appointments: make(map[uuid.UUID]Appointment),
		now:          time.Now,
	}
}

func (r *MemoryRepository) CreateUser(_ context.Context, u User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createUserLocked(u)
}

func (r *MemoryRepository) createUserLocked(u User) (*User, error) {
	u.Email = strings.ToLower(u.Email)
	if r.emailTakenLocked(u.Email, uuid.Nil) {
		return nil, ErrEmailTaken
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = r.now()
	r.users[u.ID] = u
	return &u, nil
}

func (r *MemoryRepository) emailTakenLocked(email string, except uuid.UUID) bool {
	for id, existing := range r.users {
		if id != except && existing.Email == email {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) GetProfile(_ context.Context, userID uuid.UUID) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	p := &Profile{User: u}
	for _, d := range r.doctors {
		if d.UserID == userID {
			d := r.doctorLocked(d.ID)
			p.Doctor = &d
		}
	}
	for _, pt := range r.patients {
		if pt.UserID == userID {
			pt := r.patientLocked(pt.ID)
			p.Patient = &pt
		}
	}
	return p, nil
}

func (r *MemoryRepository) CreateDoctor(_ context.Context, d Doctor) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[d.UserID]; !ok {
		return nil, ErrUserNotFound
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.doctors[d.ID] = d
	out := r.doctorLocked(d.ID)
	return &out, nil
}

func (r *MemoryRepository) CreatePatient(_ context.Context, p Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[p.UserID]; !ok {
		return nil, ErrUserNotFound
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.patients[p.ID] = p
	out := r.patientLocked(p.ID)
	return &out, nil
}

func (r *MemoryRepository) CreateDoctorAccount(_ context.Context, u User, d Doctor) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created, err := r.createUserLocked(u)
	if err != nil {
		return nil, err
	}
	d.UserID = created.ID
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.doctors[d.ID] = d
	out := r.doctorLocked(d.ID)
	return &out, nil
}

func (r *MemoryRepository) CreatePatientAccount(_ context.Context, u User, p Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created, err := r.createUserLocked(u)
	if err != nil {
		return nil, err
	}
	p.UserID = created.ID
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.patients[p.ID] = p
	out := r.patientLocked(p.ID)
	return &out, nil
}

// ListDoctors returns the most recently registered doctors first.
func (r *MemoryRepository) ListDoctors(_ context.Context, page, size int) ([]Doctor, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]Doctor, 0, len(r.doctors))
	for id := range r.doctors {
		all = append(all, r.doctorLocked(id))
	}
	sort.Slice(all, func(i, j int) bool {
		return r.newerLocked(all[i].UserID, all[j].UserID)
	})
	return paginate(all, page, size), len(all), nil
}

func (r *MemoryRepository) ListPatients(_ context.Context, f PatientFilter) ([]Patient, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(strings.TrimSpace(f.Name))
	var all []Patient
	for id := range r.patients {
		p := r.patientLocked(id)
		if name != "" && !strings.Contains(strings.ToLower(p.Name), name) {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		return r.newerLocked(all[i].UserID, all[j].UserID)
	})
	return paginate(all, f.Page, f.Size), len(all), nil
}

func (r *MemoryRepository) UpdateDoctor(_ context.Context, id uuid.UUID, upd DoctorUpdate) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	u := r.users[d.UserID]
	if upd.Email != nil {
		email := strings.ToLower(*upd.Email)
		if r.emailTakenLocked(email, u.ID) {
			return nil, ErrEmailTaken
		}
		u.Email = email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Specialty != nil {
		d.Specialty = *upd.Specialty
	}
	r.users[u.ID] = u
	r.doctors[id] = d
	out := r.doctorLocked(id)
	return &out, nil
}

func (r *MemoryRepository) DeleteDoctor(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	for _, a := range r.appointments {
		if a.DoctorID == id {
			return ErrDoctorHasAppointments
		}
	}
	for wid, w := range r.windows {
		if w.DoctorID == id {
			delete(r.windows, wid)
		}
	}
	for sid, s := range r.slots {
		if s.DoctorID == id {
			delete(r.slots, sid)
		}
	}
	delete(r.doctors, id)
	delete(r.users, d.UserID)
	return nil
}

func (r *MemoryRepository) newerLocked(a, b uuid.UUID) bool {
	ua, ub := r.users[a], r.users[b]
	if ua.CreatedAt.Equal(ub.CreatedAt) {
		return a.String() > b.String()
	}
	return ua.CreatedAt.After(ub.CreatedAt)
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[id]; !ok {
		return nil, ErrDoctorNotFound
	}
	d := r.doctorLocked(id)
	return &d, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[id]; !ok {
		return nil, ErrPatientNotFound
	}
	p := r.patientLocked(id)
	return &p, nil
}

func (r *MemoryRepository) HasOverlappingWindow(_ context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.windows {
		if w.DoctorID == doctorID && w.StartTime.Before(end) && w.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) CreateWindow(_ context.Context, w Window, slots []Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[w.ID] = w
	for _, s := range slots {
		r.slots[s.ID] = s
	}
	return nil
}

func (r *MemoryRepository) GetWindow(_ context.Context, id uuid.UUID) (*WindowDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	d := r.windowDetailLocked(w)
	return &d, nil
}

func (r *MemoryRepository) ListWindows(_ context.Context, doctorID uuid.UUID, page, size int) ([]WindowDetail, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []Window
	for _, w := range r.windows {
		if w.DoctorID == doctorID {
			all = append(all, w)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].StartTime.Before(all[j].StartTime)
	})
	var out []WindowDetail
	for _, w := range paginate(all, page, size) {
		out = append(out, r.windowDetailLocked(w))
	}
	return out, len(all), nil
}

func (r *MemoryRepository) DeleteWindow(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[id]; !ok {
		return ErrWindowNotFound
	}
	delete(r.windows, id)
	for sid, s := range r.slots {
		if s.WindowID != id {
			continue
		}
		delete(r.slots, sid)
		for aid, a := range r.appointments {
			if a.SlotID != nil && *a.SlotID == sid {
				a.SlotID = nil
				r.appointments[aid] = a
			}
		}
	}
	return nil
}

func (r *MemoryRepository) SearchSlots(_ context.Context, f SlotFilter) ([]SlotDetail, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []SlotDetail
	for _, s := range r.slots {
		if s.StartTime.Before(f.Start) || s.StartTime.After(f.End) {
			continue
		}
		if f.DoctorID != nil && s.DoctorID != *f.DoctorID {
			continue
		}
		d := r.doctorLocked(s.DoctorID)
		if f.Specialty != "" && d.Specialty != f.Specialty {
			continue
		}
		all = append(all, SlotDetail{Slot: s, Doctor: d})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].StartTime.Before(all[j].StartTime)
	})
	return paginate(all, f.Page, f.Size), len(all), nil
}

func (r *MemoryRepository) GetSlot(_ context.Context, id uuid.UUID) (*SlotDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &SlotDetail{Slot: s, Doctor: r.doctorLocked(s.DoctorID)}, nil
}

func (r *MemoryRepository) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to clinic.SlotStatus) (*SlotDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.Status != from {
		return nil, ErrSlotNotFound
	}
	s.Status = to
	r.slots[id] = s
	return &SlotDetail{Slot: s, Doctor: r.doctorLocked(s.DoctorID)}, nil
}

func (r *MemoryRepository) BookSlot(_ context.Context, slotID, patientID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok || s.Status != clinic.SlotAvailable {
		return nil, ErrSlotNotAvailable
	}
	s.Status = clinic.SlotBooked
	r.slots[slotID] = s

	now := r.now()
	sid := slotID
	a := Appointment{
		ID:        uuid.New(),
		SlotID:    &sid,
		DoctorID:  s.DoctorID,
		PatientID: patientID,
		Status:    clinic.AppointmentScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	d := r.appointmentDetailLocked(a)
	return &d, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f AppointmentFilter) ([]AppointmentDetail, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []AppointmentDetail
	for _, a := range r.appointments {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		d := r.appointmentDetailLocked(a)
		if f.Start != nil && (d.Slot == nil || d.Slot.StartTime.Before(*f.Start)) {
			continue
		}
		if f.End != nil && (d.Slot == nil || d.Slot.StartTime.After(*f.End)) {
			continue
		}
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() > all[j].ID.String()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return paginate(all, f.Page, f.Size), len(all), nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to clinic.AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = r.now()
	r.appointments[id] = a

	if to == clinic.AppointmentCancelled && a.SlotID != nil {
		if s, ok := r.slots[*a.SlotID]; ok && s.Status == clinic.SlotBooked {
			s.Status = clinic.SlotAvailable
			r.slots[s.ID] = s
		}
	}
	return &a, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog{}, r.events...)
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) doctorLocked(id uuid.UUID) Doctor {
	d := r.doctors[id]
	u := r.users[d.UserID]
	d.Name = u.Name
	d.Email = u.Email
	return d
}

func (r *MemoryRepository) patientLocked(id uuid.UUID) Patient {
	p := r.patients[id]
	u := r.users[p.UserID]
	p.Name = u.Name
	p.Email = u.Email
	return p
}

func (r *MemoryRepository) windowDetailLocked(w Window) WindowDetail {
	d := WindowDetail{Window: w, Slots: []SlotDetail{}}
	for _, s := range r.slots {
		if s.WindowID == w.ID {
			d.Slots = append(d.Slots, SlotDetail{Slot: s, Doctor: r.doctorLocked(s.DoctorID)})
		}
	}
	sort.Slice(d.Slots, func(i, j int) bool {
		return d.Slots[i].StartTime.Before(d.Slots[j].StartTime)
	})
	return d
}

func (r *MemoryRepository) appointmentDetailLocked(a Appointment) AppointmentDetail {
	d := AppointmentDetail{
		Appointment: a,
		Doctor:      r.doctorLocked(a.DoctorID),
		Patient:     r.patientLocked(a.PatientID),
	}
	if a.SlotID != nil {
		if s, ok := r.slots[*a.SlotID]; ok {
			d.Slot = &s
		}
	}
	return d
}

func paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		return items
	}
	start := page * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
