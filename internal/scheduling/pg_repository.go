package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medly/medly-portal/internal/clinic"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	userCols    = `u.id, u.name, u.email, u.password_hash, u.role, u.created_at`
	doctorCols  = `d.id, d.user_id, du.name, du.email, COALESCE(d.crm, ''), d.specialty`
	patientCols = `p.id, p.user_id, pu.name, pu.email, COALESCE(p.cpf, ''), p.birth_date`
	slotCols    = `ts.id, ts.window_id, ts.doctor_id, ts.start_time, ts.end_time, ts.status`
	windowCols  = `w.id, w.doctor_id, w.start_time, w.end_time, w.slot_duration_minutes, w.status, w.created_at`
	apptCols    = `a.id, a.time_slot_id, a.doctor_id, a.patient_id, a.status, a.created_at, a.updated_at`

	doctorJoin = `JOIN doctors d ON d.id = ts.doctor_id JOIN users du ON du.id = d.user_id`
	apptFrom   = `FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id JOIN users du ON du.id = d.user_id
		JOIN patients p ON p.id = a.patient_id JOIN users pu ON pu.id = p.user_id
		LEFT JOIN time_slots ts ON ts.id = a.time_slot_id`
)

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanSlotDetail(row pgx.Row) (*SlotDetail, error) {
	var s SlotDetail
	err := row.Scan(
		&s.ID, &s.WindowID, &s.Slot.DoctorID, &s.StartTime, &s.EndTime, &s.Status,
		&s.Doctor.ID, &s.Doctor.UserID, &s.Doctor.Name, &s.Doctor.Email, &s.Doctor.CRM, &s.Doctor.Specialty,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	err := row.Scan(&w.ID, &w.DoctorID, &w.StartTime, &w.EndTime, &w.SlotDurationMinutes, &w.Status, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}
	return &w, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.SlotID, &a.DoctorID, &a.PatientID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		a         AppointmentDetail
		slotID    *uuid.UUID
		windowID  *uuid.UUID
		slotDoc   *uuid.UUID
		start     *time.Time
		end       *time.Time
		slotState *string
	)
	err := row.Scan(
		&a.ID, &a.SlotID, &a.Appointment.DoctorID, &a.PatientID, &a.Status, &a.CreatedAt, &a.UpdatedAt,
		&slotID, &windowID, &slotDoc, &start, &end, &slotState,
		&a.Doctor.ID, &a.Doctor.UserID, &a.Doctor.Name, &a.Doctor.Email, &a.Doctor.CRM, &a.Doctor.Specialty,
		&a.Patient.ID, &a.Patient.UserID, &a.Patient.Name, &a.Patient.Email, &a.Patient.CPF, &a.Patient.BirthDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if slotID != nil {
		a.Slot = &Slot{
			ID:        *slotID,
			WindowID:  *windowID,
			DoctorID:  *slotDoc,
			StartTime: *start,
			EndTime:   *end,
			Status:    clinic.SlotStatus(*slotState),
		}
	}
	return &a, nil
}

// Users and profiles

func (r *PgRepository) CreateUser(ctx context.Context, u User) (*User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES ($1, $2, lower($3), $4, $5, now())
		RETURNING id, name, email, password_hash, role, created_at
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role)
	created, err := scanUser(row)
	if err != nil {
		if isPgError(err, uniqueViolation) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users u WHERE u.email = lower($1)`, email)
	return scanUser(row)
}

func (r *PgRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users u WHERE u.id = $1`, userID))
	if err != nil {
		return nil, err
	}
	p := &Profile{User: *user}

	switch user.Role {
	case clinic.RoleDoctor:
		var d Doctor
		err := r.pool.QueryRow(ctx, `
			SELECT `+doctorCols+`
			FROM doctors d JOIN users du ON du.id = d.user_id
			WHERE d.user_id = $1
		`, userID).Scan(&d.ID, &d.UserID, &d.Name, &d.Email, &d.CRM, &d.Specialty)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			p.Doctor = &d
		}
	case clinic.RolePatient:
		var pt Patient
		err := r.pool.QueryRow(ctx, `
			SELECT `+patientCols+`
			FROM patients p JOIN users pu ON pu.id = p.user_id
			WHERE p.user_id = $1
		`, userID).Scan(&pt.ID, &pt.UserID, &pt.Name, &pt.Email, &pt.CPF, &pt.BirthDate)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			p.Patient = &pt
		}
	}
	return p, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (id, user_id, crm, specialty) VALUES ($1, $2, $3, $4)
	`, d.ID, d.UserID, d.CRM, d.Specialty)
	if err != nil {
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return r.GetDoctorByID(ctx, d.ID)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, user_id, cpf, birth_date) VALUES ($1, $2, $3, $4)
	`, p.ID, p.UserID, p.CPF, p.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return r.GetPatientByID(ctx, p.ID)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT `+doctorCols+`
		FROM doctors d JOIN users du ON du.id = d.user_id
		WHERE d.id = $1
	`, id).Scan(&d.ID, &d.UserID, &d.Name, &d.Email, &d.CRM, &d.Specialty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx, `
		SELECT `+patientCols+`
		FROM patients p JOIN users pu ON pu.id = p.user_id
		WHERE p.id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.Name, &p.Email, &p.CPF, &p.BirthDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func insertUser(ctx context.Context, tx pgx.Tx, u User) (uuid.UUID, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES ($1, $2, lower($3), $4, $5, now())
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role)
	if err != nil {
		if isPgError(err, uniqueViolation) {
			return uuid.Nil, ErrEmailTaken
		}
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}
	return u.ID, nil
}

func (r *PgRepository) CreateDoctorAccount(ctx context.Context, u User, d Doctor) (*Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		userID, err := insertUser(ctx, tx, u)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, user_id, crm, specialty) VALUES ($1, $2, $3, $4)
		`, d.ID, userID, d.CRM, d.Specialty)
		if err != nil {
			return fmt.Errorf("insert doctor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetDoctorByID(ctx, d.ID)
}

func (r *PgRepository) CreatePatientAccount(ctx context.Context, u User, p Patient) (*Patient, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		userID, err := insertUser(ctx, tx, u)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO patients (id, user_id, cpf, birth_date) VALUES ($1, $2, $3, $4)
		`, p.ID, userID, p.CPF, p.BirthDate)
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetPatientByID(ctx, p.ID)
}

func (r *PgRepository) ListDoctors(ctx context.Context, page, size int) ([]Doctor, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM doctors`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorCols+`
		FROM doctors d JOIN users du ON du.id = d.user_id
		ORDER BY du.created_at DESC, d.id DESC
		LIMIT $1 OFFSET $2
	`, size, page*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Email, &d.CRM, &d.Specialty); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *PgRepository) ListPatients(ctx context.Context, f PatientFilter) ([]Patient, int, error) {
	cond := ""
	var args []any
	if name := strings.TrimSpace(f.Name); name != "" {
		args = append(args, name)
		cond = ` WHERE pu.name ILIKE '%' || $1 || '%'`
	}
	from := ` FROM patients p JOIN users pu ON pu.id = p.user_id`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*)`+from+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Size, f.Page*f.Size)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT `+patientCols+from+cond+`
		ORDER BY pu.created_at DESC, p.id DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Email, &p.CPF, &p.BirthDate); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *PgRepository) UpdateDoctor(ctx context.Context, id uuid.UUID, upd DoctorUpdate) (*Doctor, error) {
	var specialty *string
	if upd.Specialty != nil {
		v := string(*upd.Specialty)
		specialty = &v
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE doctors SET specialty = COALESCE($2, specialty) WHERE id = $1
		`, id, specialty)
		if err != nil {
			return fmt.Errorf("update doctor: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrDoctorNotFound
		}
		_, err = tx.Exec(ctx, `
			UPDATE users
			SET name = COALESCE($2, name),
			    email = COALESCE(lower($3), email)
			WHERE id = (SELECT user_id FROM doctors WHERE id = $1)
		`, id, upd.Name, upd.Email)
		if err != nil {
			if isPgError(err, uniqueViolation) {
				return ErrEmailTaken
			}
			return fmt.Errorf("update doctor user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetDoctorByID(ctx, id)
}

// DeleteDoctor deletes the user row; doctors, windows and slots cascade from
// it. Appointments reference the doctor without a cascade.
func (r *PgRepository) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM users WHERE id = (SELECT user_id FROM doctors WHERE id = $1)
	`, id)
	if err != nil {
		if isPgError(err, foreignKeyViolation) {
			return ErrDoctorHasAppointments
		}
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Windows

func (r *PgRepository) HasOverlappingWindow(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_windows
			WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2
		)
	`, doctorID, start, end).Scan(&exists)
	return exists, err
}

func (r *PgRepository) CreateWindow(ctx context.Context, w Window, slots []Slot) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_windows (id, doctor_id, start_time, end_time, slot_duration_minutes, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, w.ID, w.DoctorID, w.StartTime, w.EndTime, w.SlotDurationMinutes, w.Status, w.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert window: %w", err)
		}

		rows := make([][]any, 0, len(slots))
		for _, s := range slots {
			rows = append(rows, []any{s.ID, s.WindowID, s.DoctorID, s.StartTime, s.EndTime, string(s.Status)})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"time_slots"},
			[]string{"id", "window_id", "doctor_id", "start_time", "end_time", "status"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("insert slots: %w", err)
		}
		return nil
	})
}

func (r *PgRepository) GetWindow(ctx context.Context, id uuid.UUID) (*WindowDetail, error) {
	w, err := scanWindow(r.pool.QueryRow(ctx, `SELECT `+windowCols+` FROM availability_windows w WHERE w.id = $1`, id))
	if err != nil {
		return nil, err
	}
	details, err := r.attachSlots(ctx, []Window{*w})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

func (r *PgRepository) ListWindows(ctx context.Context, doctorID uuid.UUID, page, size int) ([]WindowDetail, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM availability_windows WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+windowCols+`
		FROM availability_windows w
		WHERE w.doctor_id = $1
		ORDER BY w.start_time, w.id
		LIMIT $2 OFFSET $3
	`, doctorID, size, page*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var windows []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, 0, err
		}
		windows = append(windows, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	details, err := r.attachSlots(ctx, windows)
	if err != nil {
		return nil, 0, err
	}
	return details, total, nil
}

func (r *PgRepository) attachSlots(ctx context.Context, windows []Window) ([]WindowDetail, error) {
	out := make([]WindowDetail, len(windows))
	if len(windows) == 0 {
		return out, nil
	}
	ids := make([]string, len(windows))
	index := make(map[uuid.UUID]int, len(windows))
	for i, w := range windows {
		ids[i] = w.ID.String()
		index[w.ID] = i
		out[i] = WindowDetail{Window: w, Slots: []SlotDetail{}}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+slotCols+`, `+doctorCols+`
		FROM time_slots ts `+doctorJoin+`
		WHERE ts.window_id = ANY($1::uuid[])
		ORDER BY ts.start_time, ts.id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSlotDetail(rows)
		if err != nil {
			return nil, err
		}
		i := index[s.WindowID]
		out[i].Slots = append(out[i].Slots, *s)
	}
	return out, rows.Err()
}

// DeleteWindow cascades to the window's slots.
func (r *PgRepository) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

// Slots

func (r *PgRepository) SearchSlots(ctx context.Context, f SlotFilter) ([]SlotDetail, int, error) {
	where := []string{"ts.start_time >= $1", "ts.start_time <= $2"}
	args := []any{f.Start, f.End}
	if f.Specialty != "" {
		args = append(args, string(f.Specialty))
		where = append(where, fmt.Sprintf("d.specialty = $%d", len(args)))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, fmt.Sprintf("ts.doctor_id = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM time_slots ts `+doctorJoin+` WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Size, f.Page*f.Size)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+slotCols+`, `+doctorCols+`
		FROM time_slots ts `+doctorJoin+`
		WHERE %s
		ORDER BY ts.start_time, ts.id
		LIMIT $%d OFFSET $%d
	`, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []SlotDetail
	for rows.Next() {
		s, err := scanSlotDetail(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*SlotDetail, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+slotCols+`, `+doctorCols+` FROM time_slots ts `+doctorJoin+` WHERE ts.id = $1`, id)
	return scanSlotDetail(row)
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to clinic.SlotStatus) (*SlotDetail, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots SET status = $2 WHERE id = $1 AND status = $3
	`, id, to, from)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSlotNotFound
	}
	return r.GetSlot(ctx, id)
}

// Appointments

func (r *PgRepository) BookSlot(ctx context.Context, slotID, patientID uuid.UUID) (*Appointment, error) {
	var created *Appointment
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var doctorID uuid.UUID
		err := tx.QueryRow(ctx, `
			UPDATE time_slots SET status = 'BOOKED'
			WHERE id = $1 AND status = 'AVAILABLE'
			RETURNING doctor_id
		`, slotID).Scan(&doctorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSlotNotAvailable
			}
			return fmt.Errorf("flip slot: %w", err)
		}

		created, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments (id, time_slot_id, doctor_id, patient_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'SCHEDULED', now(), now())
			RETURNING id, time_slot_id, doctor_id, patient_id, status, created_at, updated_at
		`, uuid.New(), slotID, doctorID, patientID))
		if err != nil {
			if isPgError(err, uniqueViolation) {
				return ErrSlotNotAvailable
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+apptCols+`, `+slotCols+`, `+doctorCols+`, `+patientCols+` `+apptFrom+` WHERE a.id = $1`, id)
	return scanAppointmentDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.DoctorID != nil {
		add("a.doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.Status != "" {
		add("a.status = $%d", string(f.Status))
	}
	if f.Start != nil {
		add("ts.start_time >= $%d", *f.Start)
	}
	if f.End != nil {
		add("ts.start_time <= $%d", *f.End)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) `+apptFrom+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Size, f.Page*f.Size)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT `+apptCols+`, `+slotCols+`, `+doctorCols+`, `+patientCols+` `+apptFrom+cond+`
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []AppointmentDetail
	for rows.Next() {
		a, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to clinic.AppointmentStatus) (*Appointment, error) {
	var updated *Appointment
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		updated, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2,
			    updated_at = now()
			WHERE id = $1
			  AND status = $3
			RETURNING id, time_slot_id, doctor_id, patient_id, status, created_at, updated_at
		`, id, to, from))
		if err != nil {
			return err
		}
		if to == clinic.AppointmentCancelled && updated.SlotID != nil {
			_, err = tx.Exec(ctx, `
				UPDATE time_slots SET status = 'AVAILABLE' WHERE id = $1 AND status = 'BOOKED'
			`, *updated.SlotID)
			if err != nil {
				return fmt.Errorf("release slot: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, window_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.WindowID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
