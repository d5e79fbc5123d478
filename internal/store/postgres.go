// Package store provides storage backends for conversation state.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/ivx-health/aia/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversation state in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetConversationState loads the state for a phone number, or nil if unseen.
func (s *PostgresStore) GetConversationState(phone string) (*models.ConversationState, error) {
	var stateJSON string
	err := s.db.QueryRow(
		`SELECT state_json FROM conversation_states WHERE phone_number = $1`, phone,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query conversation state for %s: %w", phone, err)
	}

	var state models.ConversationState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("PostgresStore GetConversationState unmarshal failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to decode conversation state for %s: %w", phone, err)
	}
	return &state, nil
}

// SaveConversationState upserts the state row for the phone number.
func (s *PostgresStore) SaveConversationState(state models.ConversationState) error {
	state.UpdatedAt = time.Now()
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState marshal failed", "error", err, "phone", state.PhoneNumber)
		return fmt.Errorf("failed to encode conversation state for %s: %w", state.PhoneNumber, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO conversation_states (phone_number, current_intent, status, state_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (phone_number) DO UPDATE SET
			current_intent = EXCLUDED.current_intent,
			status = EXCLUDED.status,
			state_json = EXCLUDED.state_json,
			updated_at = EXCLUDED.updated_at`,
		state.PhoneNumber, string(state.CurrentIntent), string(state.Status),
		string(stateJSON), state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState failed", "error", err, "phone", state.PhoneNumber)
		return fmt.Errorf("failed to save conversation state for %s: %w", state.PhoneNumber, err)
	}
	slog.Debug("PostgresStore SaveConversationState succeeded", "phone", state.PhoneNumber, "status", state.Status)
	return nil
}

// DeleteConversationState removes the state row for the phone number.
func (s *PostgresStore) DeleteConversationState(phone string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE phone_number = $1`, phone)
	if err != nil {
		slog.Error("PostgresStore DeleteConversationState failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete conversation state for %s: %w", phone, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
