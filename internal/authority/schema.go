package authority

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the tables the repository expects.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS absents (
	id         TEXT PRIMARY KEY,
	local_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	name       TEXT NOT NULL DEFAULT '',
	day        TEXT NOT NULL,
	date       DATE,
	type       TEXT NOT NULL,
	from_at    TIMESTAMPTZ,
	to_at      TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS absents_user_id_idx ON absents (user_id);
CREATE UNIQUE INDEX IF NOT EXISTS absents_local_id_idx ON absents (local_id);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
