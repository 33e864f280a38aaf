package migrate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/farmkonnect/taskmigrate/internal/store"
)

// Detector computes field-level differences between incoming records and
// their canonical counterparts.
type Detector struct {
	Canonical *store.TaskStore
}

// Detect looks up the canonical record matching the incoming record's
// external identity. A (nil, nil) result means no match exists and the
// record is a pure insert. When a match exists, the returned conflict
// carries only the comparable fields that actually differ; an empty diff
// list is a valid result meaning the record exists but is identical.
func (d *Detector) Detect(farmID string, rec *domain.IncomingTask) (*domain.Conflict, *domain.Task, error) {
	canonical, err := d.Canonical.FindByExternalID(farmID, rec.ExternalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("conflict lookup for %s: %w", rec.ExternalID, err)
	}

	incoming := comparableValues(rec.Title, rec.Description, rec.Priority, rec.Status, rec.EstimatedHours)
	existing := comparableValues(canonical.Title, canonical.Description, canonical.Priority, canonical.Status, canonical.EstimatedHours)

	conflict := &domain.Conflict{
		ExternalID:     rec.ExternalID,
		CanonicalRowID: canonical.RowID,
	}
	for _, field := range domain.ComparableFields {
		if incoming[field] != existing[field] {
			conflict.Diffs = append(conflict.Diffs, domain.FieldDiff{
				Field:     field,
				Incoming:  incoming[field],
				Canonical: existing[field],
			})
		}
	}

	return conflict, canonical, nil
}

// comparableValues renders the comparable fields in their normalized string
// forms: strings trimmed, hours rounded to two decimals. Equality on these
// renderings avoids false conflicts from incidental formatting.
func comparableValues(title, description string, priority domain.TaskPriority, status domain.TaskStatus, hours float64) map[string]string {
	return map[string]string{
		"title":           strings.TrimSpace(title),
		"description":     strings.TrimSpace(description),
		"priority":        strings.TrimSpace(string(priority)),
		"status":          strings.TrimSpace(string(status)),
		"estimated_hours": strconv.FormatFloat(roundHours(hours), 'f', -1, 64),
	}
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
