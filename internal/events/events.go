package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Event is one entry in the audit event log.
type Event struct {
	FarmID       *string
	ResourceType string
	ResourceID   *string
	EventType    string
	Payload      *string
}

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(tx *sql.Tx, event *Event) error {
	query := `
		INSERT INTO event_log (farm_id, resource_type, resource_id, event_type, payload)
		VALUES (?, ?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, event.FarmID, event.ResourceType, event.ResourceID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogTaskMigrated logs an insert or update applied to a canonical task.
func (w *Writer) LogTaskMigrated(tx *sql.Tx, farmID, externalID, action string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"action": action,
	})
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(tx, &Event{
		FarmID:       &farmID,
		ResourceType: "task",
		ResourceID:   &externalID,
		EventType:    "task.migrated",
		Payload:      &payloadStr,
	})
}

// LogTaskFailed logs a record that could not be applied during a migration.
func (w *Writer) LogTaskFailed(farmID, externalID, message string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"message": message,
	})
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(nil, &Event{
		FarmID:       &farmID,
		ResourceType: "task",
		ResourceID:   &externalID,
		EventType:    "task.failed",
		Payload:      &payloadStr,
	})
}

// LogTaskDeleted logs a canonical task removal during rollback.
func (w *Writer) LogTaskDeleted(tx *sql.Tx, farmID, externalID string) error {
	return w.LogEvent(tx, &Event{
		FarmID:       &farmID,
		ResourceType: "task",
		ResourceID:   &externalID,
		EventType:    "task.deleted",
	})
}

// LogSessionEvent logs a migration session lifecycle transition.
func (w *Writer) LogSessionEvent(farmID, sessionID, eventType string, counts map[string]interface{}) error {
	var payloadPtr *string
	if counts != nil {
		payload, err := json.Marshal(counts)
		if err != nil {
			return err
		}
		payloadStr := string(payload)
		payloadPtr = &payloadStr
	}

	return w.LogEvent(nil, &Event{
		FarmID:       &farmID,
		ResourceType: "migration_session",
		ResourceID:   &sessionID,
		EventType:    eventType,
		Payload:      payloadPtr,
	})
}

// LogRollback logs a batch rollback applied to a farm's canonical records.
func (w *Writer) LogRollback(farmID string, counts map[string]interface{}) error {
	payload, err := json.Marshal(counts)
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(nil, &Event{
		FarmID:       &farmID,
		ResourceType: "migration",
		EventType:    "migration.rolled_back",
		Payload:      &payloadStr,
	})
}

// getExecutor returns the appropriate executor (tx or db)
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}
