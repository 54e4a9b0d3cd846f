package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The partial unique index on bookings is what makes slot allocation a single
// atomic check-and-insert: two transactions inserting for the same live
// (doctor, date, slot) key cannot both commit. The index on department_visits
// is the backstop for token issuance; the normal path serializes on the
// department row lock and the Redis queue lock before it ever trips.
const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	email       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS doctors (
	id             UUID PRIMARY KEY,
	name           TEXT NOT NULL,
	specialization TEXT NOT NULL,
	all_slots      TEXT[] NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bookings (
	id           UUID PRIMARY KEY,
	patient_id   UUID NOT NULL,
	patient_name TEXT NOT NULL,
	doctor_id    UUID NOT NULL REFERENCES doctors(id) ON DELETE CASCADE,
	visit_date   TEXT NOT NULL,
	slot_label   TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_live_slot
	ON bookings (doctor_id, visit_date, slot_label)
	WHERE status <> 'cancelled';

CREATE TABLE IF NOT EXISTS booked_slots (
	doctor_id    UUID NOT NULL REFERENCES doctors(id) ON DELETE CASCADE,
	visit_date   TEXT NOT NULL,
	slot_label   TEXT NOT NULL,
	patient_id   UUID NOT NULL,
	patient_name TEXT NOT NULL,
	PRIMARY KEY (doctor_id, visit_date, slot_label)
);

CREATE TABLE IF NOT EXISTS departments (
	id                 UUID PRIMARY KEY,
	name               TEXT NOT NULL,
	description        TEXT,
	average_wait_time  INT NOT NULL DEFAULT 15,
	current_queue_size INT NOT NULL DEFAULT 0,
	is_active          BOOLEAN NOT NULL DEFAULT true,
	location           TEXT,
	image              TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS department_visits (
	id                  UUID PRIMARY KEY,
	patient_id          UUID NOT NULL,
	patient_name        TEXT NOT NULL,
	department_id       UUID NOT NULL REFERENCES departments(id) ON DELETE CASCADE,
	department_name     TEXT NOT NULL,
	token_number        INT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'waiting',
	estimated_wait_time INT NOT NULL DEFAULT 0,
	service_day         TEXT NOT NULL,
	check_in_time       TIMESTAMPTZ NOT NULL DEFAULT now(),
	completion_time     TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_visits_department_day_token
	ON department_visits (department_id, service_day, token_number);

CREATE INDEX IF NOT EXISTS ix_visits_department_status
	ON department_visits (department_id, status);

CREATE TABLE IF NOT EXISTS visit_memos (
	id           UUID PRIMARY KEY,
	patient_id   UUID NOT NULL,
	patient_name TEXT NOT NULL,
	departments  JSONB NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL DEFAULT 'active',
	is_read      BOOLEAN NOT NULL DEFAULT false,
	message      TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS ix_memos_patient ON visit_memos (patient_id);

CREATE TABLE IF NOT EXISTS tests (
	id                   UUID PRIMARY KEY,
	name                 TEXT NOT NULL,
	description          TEXT,
	department_id        UUID NOT NULL REFERENCES departments(id) ON DELETE CASCADE,
	department_name      TEXT NOT NULL,
	average_process_time INT NOT NULL DEFAULT 10,
	price                NUMERIC(10,2) NOT NULL DEFAULT 0,
	is_active            BOOLEAN NOT NULL DEFAULT true,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema. Statements are idempotent, so it is safe to run
// on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
