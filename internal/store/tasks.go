package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/farmkonnect/taskmigrate/internal/events"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// TaskStore handles canonical task persistence operations.
type TaskStore struct {
	store *Store
}

const taskColumns = `id, farm_id, external_id, title, description, task_type, priority, status,
	due_date, estimated_hours, assigned_to, source_created_at, source_updated_at,
	created_at, updated_at`

// FindByExternalID looks up the canonical record for an external identity
// within a farm. Returns ErrNotFound when no record exists.
func (ts *TaskStore) FindByExternalID(farmID, externalID string) (*domain.Task, error) {
	row := ts.store.db.QueryRow(`
		SELECT `+taskColumns+`
		FROM tasks WHERE farm_id = ? AND external_id = ?
	`, farmID, externalID)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// Insert creates a new canonical record from an incoming record and logs a
// task.migrated event. A duplicate identity fails with a
// ConstraintViolationError.
func (ts *TaskStore) Insert(farmID string, rec *domain.IncomingTask) (*domain.Task, error) {
	var result *domain.Task

	err := ts.store.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		var sourceCreated, sourceUpdated interface{}
		if !rec.CreatedAt.IsZero() {
			sourceCreated = formatTime(rec.CreatedAt)
		}
		if !rec.UpdatedAt.IsZero() {
			sourceUpdated = formatTime(rec.UpdatedAt)
		}

		res, err := tx.Exec(`
			INSERT INTO tasks (
				farm_id, external_id, title, description, task_type, priority, status,
				due_date, estimated_hours, assigned_to, source_created_at, source_updated_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			farmID,
			rec.ExternalID,
			rec.Title,
			rec.Description,
			rec.TaskType,
			string(rec.Priority),
			string(rec.Status),
			formatTime(rec.DueDate),
			rec.EstimatedHours,
			rec.AssignedTo,
			sourceCreated,
			sourceUpdated,
		)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
				return &ConstraintViolationError{FarmID: farmID, ExternalID: rec.ExternalID}
			}
			return fmt.Errorf("failed to insert task: %w", err)
		}

		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}

		row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, rowID)
		task, err := scanTask(row)
		if err != nil {
			return fmt.Errorf("failed to read back inserted task: %w", err)
		}

		if err := ew.LogTaskMigrated(tx, farmID, rec.ExternalID, "insert"); err != nil {
			return err
		}

		result = task
		return nil
	})

	return result, err
}

// UpdateFields updates the given columns on a canonical record and logs a
// task.migrated event. Returns ErrNotFound if the identity vanished between
// lookup and write.
func (ts *TaskStore) UpdateFields(farmID, externalID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		fields = map[string]interface{}{}
	}

	return ts.store.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		var setClauses []string
		var args []interface{}

		for _, column := range sortedKeys(fields) {
			setClauses = append(setClauses, fmt.Sprintf("%s = ?", column))
			args = append(args, fields[column])
		}
		setClauses = append(setClauses, "updated_at = ?")
		args = append(args, formatTime(time.Now()), farmID, externalID)

		query := fmt.Sprintf(
			"UPDATE tasks SET %s WHERE farm_id = ? AND external_id = ?",
			strings.Join(setClauses, ", "),
		)
		res, err := tx.Exec(query, args...)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}

		return ew.LogTaskMigrated(tx, farmID, externalID, "update")
	})
}

// Delete removes a canonical record and logs a task.deleted event.
// Returns the number of rows deleted (0 or 1).
func (ts *TaskStore) Delete(farmID, externalID string) (int64, error) {
	var deleted int64

	err := ts.store.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.Exec(`
			DELETE FROM tasks WHERE farm_id = ? AND external_id = ?
		`, farmID, externalID)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}

		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check delete result: %w", err)
		}

		if deleted > 0 {
			return ew.LogTaskDeleted(tx, farmID, externalID)
		}
		return nil
	})

	return deleted, err
}

// CountByFarm returns the number of canonical records in a farm's scope.
func (ts *TaskStore) CountByFarm(farmID string) (int, error) {
	var count int
	if err := ts.store.db.QueryRow(
		"SELECT COUNT(*) FROM tasks WHERE farm_id = ?", farmID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// ListByFarm returns all canonical records in a farm's scope ordered by
// external identity.
func (ts *TaskStore) ListByFarm(farmID string) ([]*domain.Task, error) {
	rows, err := ts.store.db.Query(`
		SELECT `+taskColumns+`
		FROM tasks WHERE farm_id = ? ORDER BY external_id
	`, farmID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	task := &domain.Task{}
	// String intermediates for time fields since SQLite stores times as strings
	var dueDate, createdAt, updatedAt string
	var sourceCreated, sourceUpdated, assignedTo sql.NullString
	var priority, status string

	err := row.Scan(
		&task.RowID, &task.FarmID, &task.ExternalID, &task.Title, &task.Description,
		&task.TaskType, &priority, &status, &dueDate, &task.EstimatedHours,
		&assignedTo, &sourceCreated, &sourceUpdated, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Priority = domain.TaskPriority(priority)
	task.Status = domain.TaskStatus(status)
	task.DueDate = parseTime(dueDate)
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	if assignedTo.Valid {
		v := assignedTo.String
		task.AssignedTo = &v
	}
	if sourceCreated.Valid {
		task.SourceCreated = parseTime(sourceCreated.String)
	}
	if sourceUpdated.Valid {
		task.SourceUpdated = parseTime(sourceUpdated.String)
	}

	return task, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic SET clause order keeps query plans and logs stable
	sort.Strings(keys)
	return keys
}
