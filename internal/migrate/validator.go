// Package migrate implements the record reconciliation engine: structural
// validation, conflict detection against the canonical store, resolution
// strategies, batch execution with per-record failure isolation, and
// rollback of migrated records.
package migrate

import (
	"strings"

	"github.com/farmkonnect/taskmigrate/internal/domain"
)

// Validate checks an incoming record's structural and business validity
// independently of persisted state. All failed checks are collected so the
// caller gets complete feedback, not just the first problem. Returns nil
// when the record is valid.
func Validate(rec *domain.IncomingTask) *domain.ValidationError {
	var reasons []string

	if strings.TrimSpace(rec.Title) == "" {
		reasons = append(reasons, "Missing title")
	}
	if strings.TrimSpace(rec.TaskType) == "" {
		reasons = append(reasons, "Missing task type")
	}
	if rec.DueDate.IsZero() {
		reasons = append(reasons, "Missing due date")
	}
	if rec.EstimatedHours <= 0 {
		reasons = append(reasons, "Estimated hours must be greater than zero")
	}

	if len(reasons) == 0 {
		return nil
	}
	return &domain.ValidationError{ExternalID: rec.ExternalID, Reasons: reasons}
}

// Partition splits a batch into valid records and validation errors.
// Invalid records are excluded from all downstream stages.
func Partition(records []*domain.IncomingTask) ([]*domain.IncomingTask, []domain.ValidationError) {
	valid := make([]*domain.IncomingTask, 0, len(records))
	var invalid []domain.ValidationError

	for _, rec := range records {
		if verr := Validate(rec); verr != nil {
			invalid = append(invalid, *verr)
			continue
		}
		valid = append(valid, rec)
	}
	return valid, invalid
}
