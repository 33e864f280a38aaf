package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/farmkonnect/taskmigrate/internal/domain"
	"gopkg.in/yaml.v3"
)

// recordPayload is the wire form of an incoming record as the legacy feed
// produces it: timestamps are strings in either full RFC3339 or bare
// date form.
type recordPayload struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	TaskType       string  `json:"taskType"`
	Priority       string  `json:"priority"`
	Status         string  `json:"status"`
	DueDate        string  `json:"dueDate"`
	EstimatedHours float64 `json:"estimatedHours"`
	AssignedTo     *string `json:"assignedTo,omitempty"`
	CreatedAt      string  `json:"createdAt,omitempty"`
	UpdatedAt      string  `json:"updatedAt,omitempty"`
}

func (p *recordPayload) toIncoming() (*domain.IncomingTask, error) {
	rec := &domain.IncomingTask{
		ExternalID:     p.ID,
		Title:          p.Title,
		Description:    p.Description,
		TaskType:       p.TaskType,
		Priority:       domain.PriorityMedium,
		Status:         domain.StatusPending,
		EstimatedHours: p.EstimatedHours,
		AssignedTo:     p.AssignedTo,
	}

	if p.Priority != "" {
		if err := domain.ValidatePriority(p.Priority); err != nil {
			return nil, fmt.Errorf("record %s: %w", p.ID, err)
		}
		rec.Priority = domain.TaskPriority(p.Priority)
	}
	if p.Status != "" {
		if err := domain.ValidateStatus(p.Status); err != nil {
			return nil, fmt.Errorf("record %s: %w", p.ID, err)
		}
		rec.Status = domain.TaskStatus(p.Status)
	}

	var err error
	if rec.DueDate, err = parseRecordTime(p.DueDate); err != nil {
		return nil, fmt.Errorf("record %s: invalid dueDate %q", p.ID, p.DueDate)
	}
	if rec.CreatedAt, err = parseRecordTime(p.CreatedAt); err != nil {
		return nil, fmt.Errorf("record %s: invalid createdAt %q", p.ID, p.CreatedAt)
	}
	if rec.UpdatedAt, err = parseRecordTime(p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("record %s: invalid updatedAt %q", p.ID, p.UpdatedAt)
	}

	return rec, nil
}

// parseRecordTime accepts RFC3339 or a bare date. Empty stays zero so the
// validator can flag missing due dates.
func parseRecordTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// decodeRecords parses a JSON array of incoming records.
func decodeRecords(data []byte) ([]*domain.IncomingTask, error) {
	var payloads []recordPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}

	records := make([]*domain.IncomingTask, 0, len(payloads))
	for i := range payloads {
		rec, err := payloads[i].toIncoming()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// readRecordsFile loads a JSON records file from disk.
func readRecordsFile(path string) ([]*domain.IncomingTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}
	return decodeRecords(data)
}

// readOverridesFile loads a YAML file mapping external record IDs to
// per-record resolutions.
func readOverridesFile(path string) (map[string]domain.Resolution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}

	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse overrides file: %w", err)
	}

	overrides := make(map[string]domain.Resolution, len(raw))
	for externalID, resolution := range raw {
		if err := domain.ValidateResolution(resolution); err != nil {
			return nil, fmt.Errorf("override for %s: %w", externalID, err)
		}
		overrides[externalID] = domain.Resolution(resolution)
	}
	return overrides, nil
}
