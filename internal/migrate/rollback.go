package migrate

import (
	"fmt"

	"github.com/farmkonnect/taskmigrate/internal/domain"
)

// RollbackResult reports what a rollback removed and which records could
// not be removed.
type RollbackResult struct {
	DeletedCount int                  `json:"deleted_tasks"`
	Message      string               `json:"message"`
	Errors       []domain.RecordError `json:"errors,omitempty"`
}

// Rollback deletes the listed canonical records from a farm's scope. This
// is destructive and non-reversible: it cannot restore records that were
// overwritten rather than inserted, so callers must supply only the
// identities a migration newly created. Deletion is failure-isolated per
// record, matching the executor's policy.
func (e *Engine) Rollback(farmID string, externalIDs []string) (*RollbackResult, error) {
	if err := e.store.Ping(); err != nil {
		return nil, err
	}

	result := &RollbackResult{}
	for _, externalID := range externalIDs {
		deleted, err := e.store.Tasks.Delete(farmID, externalID)
		if err != nil {
			result.Errors = append(result.Errors, domain.RecordError{
				ExternalID: externalID,
				Message:    err.Error(),
			})
			continue
		}
		result.DeletedCount += int(deleted)
	}

	result.Message = fmt.Sprintf("Rolled back %d of %d records", result.DeletedCount, len(externalIDs))
	e.events.LogRollback(farmID, map[string]interface{}{
		"requested_count": len(externalIDs),
		"deleted_count":   result.DeletedCount,
		"failed_count":    len(result.Errors),
	})

	return result, nil
}
