package crdb

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS reservations (
	code STRING PRIMARY KEY,
	kind STRING NOT NULL CHECK (kind IN ('flight', 'hotel')),
	user_id STRING NOT NULL,
	offer_ref STRING NOT NULL,
	units STRING[] NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	window_end TIMESTAMPTZ NOT NULL,
	travellers JSONB NOT NULL DEFAULT '[]',
	fare JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	guaranteed_until TIMESTAMPTZ NOT NULL,
	payment_status STRING NOT NULL CHECK (payment_status IN ('pending', 'paid', 'failed')),
	booking_status STRING NOT NULL CHECK (booking_status IN ('pending', 'confirmed', 'canceled')),
	payment_method STRING NOT NULL CHECK (payment_method IN ('card', 'cash')),
	payment_intent_id STRING NOT NULL DEFAULT '',
	cancel_code STRING,
	cancel_reason STRING,
	canceled_at TIMESTAMPTZ,
	canceled_by STRING,
	demo BOOL NOT NULL DEFAULT false,
	INDEX reservations_user_idx (user_id, kind, offer_ref, created_at DESC),
	INDEX reservations_due_idx (booking_status, guaranteed_until)
);

CREATE TABLE IF NOT EXISTS reservation_units (
	code STRING NOT NULL REFERENCES reservations (code),
	unit_id STRING NOT NULL,
	slot STRING NOT NULL,
	active BOOL NOT NULL DEFAULT true,
	PRIMARY KEY (code, unit_id, slot)
);

CREATE UNIQUE INDEX IF NOT EXISTS reservation_units_active_idx ON reservation_units (unit_id, slot) WHERE active;

CREATE TABLE IF NOT EXISTS accounts (
	id STRING PRIMARY KEY,
	email STRING NOT NULL,
	name STRING NOT NULL DEFAULT '',
	customer_id STRING NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type STRING NOT NULL,
	aggregate_id STRING NOT NULL,
	event_type STRING NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status STRING NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key STRING NOT NULL,
	INDEX outbox_status_idx (status, created_at)
);
`

// Migrate creates the tables when they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}
