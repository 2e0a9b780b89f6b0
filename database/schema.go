package database

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		id SERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		hashed_password BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		booking_id TEXT NOT NULL UNIQUE,
		uid TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		location TEXT,
		notes TEXT,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		event_type TEXT NOT NULL,
		mirror_status TEXT NOT NULL,
		mirror_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_mirror_status ON bookings (mirror_status, created_at DESC)`,
}

const clickhouseSchema = `
	CREATE TABLE IF NOT EXISTS analytics_events (
		event_id String,
		event_type LowCardinality(String),
		user_id String,
		session_id String,
		timestamp DateTime64(3, 'UTC'),
		page_path String,
		referrer String,
		user_agent String,
		ip_address String,
		duration_ms Int64,
		location String,
		event_data String
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (event_type, timestamp)
`
