package db

var schema = `
CREATE TABLE IF NOT EXISTS shows (
	show_id SERIAL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	show_date DATE NOT NULL,
	show_time VARCHAR(16) NOT NULL,
	total_children INT NOT NULL,
	available_children INT NOT NULL,
	non_confirmed_children INT NOT NULL DEFAULT 0,
	total_adult INT NOT NULL,
	available_adult INT NOT NULL,
	non_confirmed_adult INT NOT NULL DEFAULT 0,
	UNIQUE (name, show_date, show_time),
	CONSTRAINT children_seats_check CHECK (
		available_children >= 0 AND non_confirmed_children >= 0
		AND available_children + non_confirmed_children <= total_children
	),
	CONSTRAINT adult_seats_check CHECK (
		available_adult >= 0 AND non_confirmed_adult >= 0
		AND available_adult + non_confirmed_adult <= total_adult
	)
);

CREATE TABLE IF NOT EXISTS price_options (
	option_id INT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	price INT NOT NULL,
	children_seats INT NOT NULL DEFAULT 0,
	adult_seats INT NOT NULL DEFAULT 0,
	individual BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS holds (
	hold_id UUID PRIMARY KEY,
	show_id INT NOT NULL REFERENCES shows (show_id),
	children_seats INT NOT NULL,
	adult_seats INT NOT NULL,
	user_id BIGINT NOT NULL,
	chat_id BIGINT NOT NULL,
	status VARCHAR(16) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	settled_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS holds_active_expires_at_idx ON holds (expires_at) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS client_records (
	record_id UUID PRIMARY KEY,
	show_id INT NOT NULL REFERENCES shows (show_id),
	status VARCHAR(32) NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`
