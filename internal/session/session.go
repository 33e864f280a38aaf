// Package session owns the lifecycle of migration sessions: creation,
// progress accumulation, and terminal-state enforcement. The backing store
// is an interface so the tracker's contract is unaffected by whether
// sessions live in memory or in a durable table.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no session exists for a lookup.
var ErrNotFound = errors.New("session not found")

// TerminalSessionError is returned when an update targets a session that has
// already reached a terminal state. These updates would corrupt audit
// history, so they fail loudly instead of being ignored.
type TerminalSessionError struct {
	SessionID string
	Status    domain.SessionStatus
}

func (e *TerminalSessionError) Error() string {
	return fmt.Sprintf("session %s is %s and can no longer be updated", e.SessionID, e.Status)
}

// Store persists migration sessions. Implementations must retain history:
// a new run for the same farm adds a session, it never overwrites one.
type Store interface {
	Put(s *domain.MigrationSession) error
	Get(sessionID string) (*domain.MigrationSession, error)
	Latest(farmID string) (*domain.MigrationSession, error)
	List(farmID string) ([]*domain.MigrationSession, error)
}

// Outcome is the terminal result of processing one record.
type Outcome string

const (
	OutcomeMigrated   Outcome = "migrated"
	OutcomeFailed     Outcome = "failed"
	OutcomeConflicted Outcome = "conflicted"
)

// Tracker drives session state transitions. All counter updates go through
// its mutex, giving the single-writer discipline the executor relies on.
type Tracker struct {
	mu     sync.Mutex
	store  Store
	active map[string]*domain.MigrationSession
}

// NewTracker creates a tracker over the given backing store.
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store:  store,
		active: make(map[string]*domain.MigrationSession),
	}
}

// Begin creates an in-progress session for a farm and persists it.
func (t *Tracker) Begin(farmID string, totalRecords int) (*domain.MigrationSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &domain.MigrationSession{
		SessionID:    uuid.New().String(),
		FarmID:       farmID,
		TotalRecords: totalRecords,
		Status:       domain.SessionInProgress,
		StartedAt:    time.Now().UTC(),
	}

	if err := t.store.Put(s.Clone()); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	t.active[s.SessionID] = s
	return s.Clone(), nil
}

// Record applies one record's outcome to an in-progress session.
func (t *Tracker) Record(sessionID string, outcome Outcome, externalID, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.active[sessionID]
	if !ok {
		// Not active: either unknown or already terminal.
		stored, err := t.store.Get(sessionID)
		if err != nil {
			return err
		}
		return &TerminalSessionError{SessionID: sessionID, Status: stored.Status}
	}

	processed := s.MigratedCount + s.FailedCount + s.ConflictedCount
	if processed >= s.TotalRecords {
		return fmt.Errorf("session %s: outcome for %s exceeds total of %d records",
			sessionID, externalID, s.TotalRecords)
	}

	switch outcome {
	case OutcomeMigrated:
		s.MigratedCount++
	case OutcomeConflicted:
		s.ConflictedCount++
	case OutcomeFailed:
		s.FailedCount++
		s.Errors = append(s.Errors, domain.RecordError{ExternalID: externalID, Message: message})
	default:
		return fmt.Errorf("unknown outcome: %s", outcome)
	}

	if err := t.store.Put(s.Clone()); err != nil {
		return fmt.Errorf("failed to persist session progress: %w", err)
	}
	return nil
}

// Finish transitions an in-progress session to its terminal state:
// failed if any record failed, completed otherwise.
func (t *Tracker) Finish(sessionID string) (*domain.MigrationSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.active[sessionID]
	if !ok {
		stored, err := t.store.Get(sessionID)
		if err != nil {
			return nil, err
		}
		return nil, &TerminalSessionError{SessionID: sessionID, Status: stored.Status}
	}

	now := time.Now().UTC()
	s.CompletedAt = &now
	if s.FailedCount > 0 {
		s.Status = domain.SessionFailed
	} else {
		s.Status = domain.SessionCompleted
	}

	if err := t.store.Put(s.Clone()); err != nil {
		return nil, fmt.Errorf("failed to persist session completion: %w", err)
	}

	delete(t.active, sessionID)
	return s.Clone(), nil
}

// Get returns a session by ID, preferring live in-progress state.
func (t *Tracker) Get(sessionID string) (*domain.MigrationSession, error) {
	t.mu.Lock()
	if s, ok := t.active[sessionID]; ok {
		c := s.Clone()
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()
	return t.store.Get(sessionID)
}

// Latest returns the most recently started session for a farm.
func (t *Tracker) Latest(farmID string) (*domain.MigrationSession, error) {
	t.mu.Lock()
	var live *domain.MigrationSession
	for _, s := range t.active {
		if s.FarmID != farmID {
			continue
		}
		if live == nil || s.StartedAt.After(live.StartedAt) {
			live = s
		}
	}
	if live != nil {
		c := live.Clone()
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()
	return t.store.Latest(farmID)
}
