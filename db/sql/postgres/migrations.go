package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// UserTableSchema creates the directory table. Emails compare
// case-insensitively.
const UserTableSchema = `CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         CITEXT NOT NULL UNIQUE,
	password_hash JSONB NOT NULL,
	roles         TEXT NOT NULL DEFAULT '',
	first_name    TEXT NOT NULL,
	last_name     TEXT NOT NULL,
	country       TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

// Migrations lists the statements Migrate applies, in order.
var Migrations = []string{
	"CREATE EXTENSION IF NOT EXISTS citext",
	UserTableSchema,
}

// Migrate applies Migrations. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	return ApplyMigrations(ctx, db, Migrations...)
}

// ApplyMigrations executes the provided SQL statements in order within the given context.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) error {
	if db == nil {
		return fmt.Errorf("postgres: db is nil")
	}
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
