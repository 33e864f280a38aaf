// Package store provides the canonical persistence layer for migrated task
// records and migration session history, handling timestamps and audit
// event logging.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/farmkonnect/taskmigrate/internal/db"
	"github.com/farmkonnect/taskmigrate/internal/events"
)

// ErrNotFound is returned when a lookup matches no canonical record.
var ErrNotFound = errors.New("record not found")

// ConstraintViolationError is returned when an insert collides with an
// existing canonical identity.
type ConstraintViolationError struct {
	FarmID     string
	ExternalID string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("duplicate canonical identity: farm=%s external_id=%s", e.FarmID, e.ExternalID)
}

// Store is the root store that provides access to domain-specific stores.
type Store struct {
	db *db.DB

	Tasks    *TaskStore
	Sessions *SessionStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	s := &Store{db: database}
	s.Tasks = &TaskStore{store: s}
	s.Sessions = &SessionStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// Ping verifies the database is reachable before a batch run starts.
func (s *Store) Ping() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	return nil
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db.DB)
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}

// SQLite stores timestamps as RFC3339 strings in UTC.
const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Fall back to full RFC3339 for values written by other tools
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
