package database

import (
	"context"
	"fmt"
)

// The schema is bootstrapped with idempotent CREATE statements only; there is
// no versioned migration history.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS user_analysis (
		id UUID PRIMARY KEY,
		handle TEXT NOT NULL UNIQUE,
		situation TEXT NOT NULL,
		profile_image_url TEXT NOT NULL DEFAULT '',
		representative_post_url TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_analysis_updated_at ON user_analysis (updated_at)`,
	`CREATE TABLE IF NOT EXISTS api_settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// SQLite only parses columns back into time.Time when the declared type is
// DATE, DATETIME or TIMESTAMP.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS user_analysis (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL UNIQUE,
		situation TEXT NOT NULL,
		profile_image_url TEXT NOT NULL DEFAULT '',
		representative_post_url TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_analysis_updated_at ON user_analysis (updated_at)`,
	`CREATE TABLE IF NOT EXISTS api_settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates any missing tables and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if db.dialect == DialectSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
