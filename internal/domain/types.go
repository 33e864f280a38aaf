package domain

import (
	"math"
	"time"
)

// TaskPriority represents the urgency of a scheduled farm task
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// TaskStatus represents the workflow state of a task
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Strategy is the session-wide conflict resolution policy
type Strategy string

const (
	StrategyOverwrite    Strategy = "overwrite"
	StrategyMerge        Strategy = "merge"
	StrategySkipExisting Strategy = "skip_existing"
)

// Resolution is the per-record decision applied to a conflicting record
type Resolution string

const (
	ResolutionUseIncoming  Resolution = "use_incoming"
	ResolutionUseCanonical Resolution = "use_canonical"
	ResolutionMerge        Resolution = "merge"
)

// SessionStatus represents the lifecycle state of a migration session
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// IncomingTask is an externally supplied task record to be migrated.
// The engine treats it as read-only.
type IncomingTask struct {
	ExternalID     string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	TaskType       string       `json:"taskType"`
	Priority       TaskPriority `json:"priority"`
	Status         TaskStatus   `json:"status"`
	DueDate        time.Time    `json:"dueDate"`
	EstimatedHours float64      `json:"estimatedHours"`
	AssignedTo     *string      `json:"assignedTo,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Task is the canonical persisted task record.
type Task struct {
	RowID          int64        `json:"row_id" db:"rowid"`
	FarmID         string       `json:"farm_id" db:"farm_id"`
	ExternalID     string       `json:"external_id" db:"external_id"`
	Title          string       `json:"title" db:"title"`
	Description    string       `json:"description" db:"description"`
	TaskType       string       `json:"task_type" db:"task_type"`
	Priority       TaskPriority `json:"priority" db:"priority"`
	Status         TaskStatus   `json:"status" db:"status"`
	DueDate        time.Time    `json:"due_date" db:"due_date"`
	EstimatedHours float64      `json:"estimated_hours" db:"estimated_hours"`
	AssignedTo     *string      `json:"assigned_to,omitempty" db:"assigned_to"`
	SourceCreated  time.Time    `json:"source_created_at" db:"source_created_at"`
	SourceUpdated  time.Time    `json:"source_updated_at" db:"source_updated_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// ValidationError carries every structural check an incoming record failed.
type ValidationError struct {
	ExternalID string   `json:"record_id"`
	Reasons    []string `json:"reasons"`
}

// FieldDiff is one comparable field whose incoming and canonical values
// differ. Values are the normalized string renderings used for comparison.
type FieldDiff struct {
	Field     string `json:"field"`
	Incoming  string `json:"incoming"`
	Canonical string `json:"canonical"`
}

// Conflict describes an incoming record that matched an existing canonical
// record. Diffs may be empty: the record exists but is identical.
type Conflict struct {
	ExternalID     string      `json:"record_id"`
	CanonicalRowID int64       `json:"canonical_row_id"`
	Diffs          []FieldDiff `json:"differences"`
}

// RecordError is a per-record failure captured during execution or rollback.
type RecordError struct {
	ExternalID string `json:"record_id"`
	Message    string `json:"error"`
}

// MigrationSession tracks one migration run for a farm. Once Status reaches
// a terminal value the session is immutable.
type MigrationSession struct {
	SessionID       string        `json:"session_id"`
	FarmID          string        `json:"farm_id"`
	TotalRecords    int           `json:"total_records"`
	MigratedCount   int           `json:"migrated_count"`
	FailedCount     int           `json:"failed_count"`
	ConflictedCount int           `json:"conflicted_count"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	Errors          []RecordError `json:"errors,omitempty"`
}

// Terminal reports whether the session has reached a final state.
func (s *MigrationSession) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}

// ProgressPercent returns migrated/total as an integer percentage.
// A session with zero records is complete by definition.
func (s *MigrationSession) ProgressPercent() int {
	if s.TotalRecords == 0 {
		return 100
	}
	return int(math.Round(float64(s.MigratedCount) / float64(s.TotalRecords) * 100))
}

// Clone returns a deep copy so callers cannot mutate tracked state.
func (s *MigrationSession) Clone() *MigrationSession {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.Errors != nil {
		c.Errors = make([]RecordError, len(s.Errors))
		copy(c.Errors, s.Errors)
	}
	return &c
}

// ComparableFields is the fixed set of fields inspected by conflict
// detection. Storage metadata is never compared.
var ComparableFields = []string{"title", "priority", "status", "description", "estimated_hours"}
