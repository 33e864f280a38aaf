package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/farmkonnect/taskmigrate/internal/events"
	"github.com/farmkonnect/taskmigrate/internal/session"
)

// SessionStore is the durable implementation of session.Store. Each run is
// one row; history is never overwritten, so completed sessions remain
// auditable across restarts.
type SessionStore struct {
	store *Store
}

var _ session.Store = (*SessionStore)(nil)

// Put stores or replaces a session snapshot and its per-record errors.
func (ss *SessionStore) Put(s *domain.MigrationSession) error {
	return ss.store.withTx(func(tx *sql.Tx, _ *events.Writer) error {
		var completedAt interface{}
		if s.CompletedAt != nil {
			completedAt = formatTime(*s.CompletedAt)
		}

		_, err := tx.Exec(`
			INSERT INTO migration_sessions (
				session_id, farm_id, total_records, migrated_count, failed_count,
				conflicted_count, status, started_at, completed_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				total_records = excluded.total_records,
				migrated_count = excluded.migrated_count,
				failed_count = excluded.failed_count,
				conflicted_count = excluded.conflicted_count,
				status = excluded.status,
				started_at = excluded.started_at,
				completed_at = excluded.completed_at
		`,
			s.SessionID, s.FarmID, s.TotalRecords, s.MigratedCount, s.FailedCount,
			s.ConflictedCount, string(s.Status), formatTime(s.StartedAt), completedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}

		if _, err := tx.Exec(
			"DELETE FROM migration_session_errors WHERE session_id = ?", s.SessionID,
		); err != nil {
			return fmt.Errorf("failed to clear session errors: %w", err)
		}

		for _, recErr := range s.Errors {
			if _, err := tx.Exec(`
				INSERT INTO migration_session_errors (session_id, external_id, message)
				VALUES (?, ?, ?)
			`, s.SessionID, recErr.ExternalID, recErr.Message); err != nil {
				return fmt.Errorf("failed to persist session error: %w", err)
			}
		}

		return nil
	})
}

// Get returns a session by ID.
func (ss *SessionStore) Get(sessionID string) (*domain.MigrationSession, error) {
	row := ss.store.db.QueryRow(`
		SELECT session_id, farm_id, total_records, migrated_count, failed_count,
		       conflicted_count, status, started_at, completed_at
		FROM migration_sessions WHERE session_id = ?
	`, sessionID)

	s, err := ss.scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Latest returns the most recently started session for a farm.
func (ss *SessionStore) Latest(farmID string) (*domain.MigrationSession, error) {
	row := ss.store.db.QueryRow(`
		SELECT session_id, farm_id, total_records, migrated_count, failed_count,
		       conflicted_count, status, started_at, completed_at
		FROM migration_sessions
		WHERE farm_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, farmID)

	s, err := ss.scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	return s, nil
}

// List returns all of a farm's sessions, oldest first.
func (ss *SessionStore) List(farmID string) ([]*domain.MigrationSession, error) {
	rows, err := ss.store.db.Query(`
		SELECT session_id, farm_id, total_records, migrated_count, failed_count,
		       conflicted_count, status, started_at, completed_at
		FROM migration_sessions
		WHERE farm_id = ?
		ORDER BY started_at ASC, rowid ASC
	`, farmID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.MigrationSession
	for rows.Next() {
		s, err := ss.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (ss *SessionStore) scanSession(row rowScanner) (*domain.MigrationSession, error) {
	s := &domain.MigrationSession{}
	var status, startedAt string
	var completedAt sql.NullString

	err := row.Scan(
		&s.SessionID, &s.FarmID, &s.TotalRecords, &s.MigratedCount, &s.FailedCount,
		&s.ConflictedCount, &status, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = domain.SessionStatus(status)
	s.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		s.CompletedAt = &t
	}

	if err := ss.loadErrors(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (ss *SessionStore) loadErrors(s *domain.MigrationSession) error {
	rows, err := ss.store.db.Query(`
		SELECT external_id, message FROM migration_session_errors
		WHERE session_id = ? ORDER BY id
	`, s.SessionID)
	if err != nil {
		return fmt.Errorf("failed to query session errors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var recErr domain.RecordError
		if err := rows.Scan(&recErr.ExternalID, &recErr.Message); err != nil {
			return fmt.Errorf("failed to scan session error: %w", err)
		}
		s.Errors = append(s.Errors, recErr)
	}
	return rows.Err()
}
