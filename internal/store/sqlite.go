// Package store provides storage backends for conversation state.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/ivx-health/aia/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversation state in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the database file; the directory is created if
// it does not exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetConversationState loads the state for a phone number, or nil if unseen.
func (s *SQLiteStore) GetConversationState(phone string) (*models.ConversationState, error) {
	var stateJSON string
	err := s.db.QueryRow(
		`SELECT state_json FROM conversation_states WHERE phone_number = ?`, phone,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationState query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query conversation state for %s: %w", phone, err)
	}

	var state models.ConversationState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("SQLiteStore GetConversationState unmarshal failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to decode conversation state for %s: %w", phone, err)
	}
	return &state, nil
}

// SaveConversationState upserts the state row for the phone number.
func (s *SQLiteStore) SaveConversationState(state models.ConversationState) error {
	state.UpdatedAt = time.Now()
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState marshal failed", "error", err, "phone", state.PhoneNumber)
		return fmt.Errorf("failed to encode conversation state for %s: %w", state.PhoneNumber, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO conversation_states (phone_number, current_intent, status, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			current_intent = excluded.current_intent,
			status = excluded.status,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		state.PhoneNumber, string(state.CurrentIntent), string(state.Status),
		string(stateJSON), state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState failed", "error", err, "phone", state.PhoneNumber)
		return fmt.Errorf("failed to save conversation state for %s: %w", state.PhoneNumber, err)
	}
	slog.Debug("SQLiteStore SaveConversationState succeeded", "phone", state.PhoneNumber, "status", state.Status)
	return nil
}

// DeleteConversationState removes the state row for the phone number.
func (s *SQLiteStore) DeleteConversationState(phone string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE phone_number = ?`, phone)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversationState failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete conversation state for %s: %w", phone, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
