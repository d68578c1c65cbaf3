package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Slot and window times are clinic wall-clock values, hence timestamp
// without time zone.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            uuid PRIMARY KEY,
		name          text NOT NULL,
		email         text NOT NULL UNIQUE,
		password_hash text NOT NULL,
		role          text NOT NULL CHECK (role IN ('ADMIN', 'DOCTOR', 'PATIENT')),
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS doctors (
		id        uuid PRIMARY KEY,
		user_id   uuid NOT NULL UNIQUE REFERENCES users (id) ON DELETE CASCADE,
		crm       text,
		specialty text NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id         uuid PRIMARY KEY,
		user_id    uuid NOT NULL UNIQUE REFERENCES users (id) ON DELETE CASCADE,
		cpf        text,
		birth_date date
	)`,
	`CREATE TABLE IF NOT EXISTS availability_windows (
		id                    uuid PRIMARY KEY,
		doctor_id             uuid NOT NULL REFERENCES doctors (id) ON DELETE CASCADE,
		start_time            timestamp NOT NULL,
		end_time              timestamp NOT NULL,
		slot_duration_minutes integer NOT NULL CHECK (slot_duration_minutes > 0),
		status                text NOT NULL DEFAULT 'ACTIVE',
		created_at            timestamptz NOT NULL DEFAULT now(),
		CHECK (end_time > start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS availability_windows_doctor_idx
		ON availability_windows (doctor_id, start_time)`,
	`CREATE TABLE IF NOT EXISTS time_slots (
		id         uuid PRIMARY KEY,
		window_id  uuid NOT NULL REFERENCES availability_windows (id) ON DELETE CASCADE,
		doctor_id  uuid NOT NULL REFERENCES doctors (id) ON DELETE CASCADE,
		start_time timestamp NOT NULL,
		end_time   timestamp NOT NULL,
		status     text NOT NULL CHECK (status IN ('AVAILABLE', 'BOOKED', 'BLOCKED'))
	)`,
	`CREATE INDEX IF NOT EXISTS time_slots_start_idx ON time_slots (start_time)`,
	`CREATE INDEX IF NOT EXISTS time_slots_window_idx ON time_slots (window_id)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id           uuid PRIMARY KEY,
		time_slot_id uuid REFERENCES time_slots (id) ON DELETE SET NULL,
		doctor_id    uuid NOT NULL REFERENCES doctors (id),
		patient_id   uuid NOT NULL REFERENCES patients (id),
		status       text NOT NULL CHECK (status IN ('SCHEDULED', 'COMPLETED', 'CANCELLED')),
		created_at   timestamptz NOT NULL DEFAULT now(),
		updated_at   timestamptz NOT NULL DEFAULT now()
	)`,
	// at most one live appointment per slot
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_scheduled_slot_idx
		ON appointments (time_slot_id) WHERE status = 'SCHEDULED'`,
	`CREATE INDEX IF NOT EXISTS appointments_patient_idx ON appointments (patient_id)`,
	`CREATE INDEX IF NOT EXISTS appointments_doctor_idx ON appointments (doctor_id)`,
	`CREATE TABLE IF NOT EXISTS event_logs (
		id             bigserial PRIMARY KEY,
		event_type     text NOT NULL,
		appointment_id uuid,
		window_id      uuid,
		payload        jsonb,
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables the development API needs. Every statement is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
