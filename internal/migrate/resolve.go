package migrate

import (
	"github.com/farmkonnect/taskmigrate/internal/domain"
)

// Resolve decides how a conflicting record is applied. An explicit
// per-record override wins verbatim; otherwise the session strategy maps
// to its default decision. Pure function, no I/O.
func Resolve(conflict *domain.Conflict, strategy domain.Strategy, overrides map[string]domain.Resolution) domain.Resolution {
	if decision, ok := overrides[conflict.ExternalID]; ok {
		return decision
	}

	switch strategy {
	case domain.StrategyOverwrite:
		return domain.ResolutionUseIncoming
	case domain.StrategySkipExisting:
		return domain.ResolutionUseCanonical
	case domain.StrategyMerge:
		return domain.ResolutionMerge
	}
	// Unknown strategies never mutate
	return domain.ResolutionUseCanonical
}

// MergeFields computes the column update set for a resolved conflict.
//
// use_incoming takes every comparable field from the incoming record.
// merge takes an incoming value only where the canonical field is currently
// empty, so data already curated in the canonical store wins over bulk
// imports. use_canonical returns nil: no write.
//
// An empty non-nil map is a valid result — the executor still issues the
// update so the canonical timestamp is refreshed consistently.
func MergeFields(decision domain.Resolution, canonical *domain.Task, incoming *domain.IncomingTask) map[string]interface{} {
	switch decision {
	case domain.ResolutionUseIncoming:
		fields := map[string]interface{}{
			"title":           incoming.Title,
			"description":     incoming.Description,
			"priority":        string(incoming.Priority),
			"status":          string(incoming.Status),
			"estimated_hours": incoming.EstimatedHours,
		}
		if incoming.AssignedTo != nil {
			fields["assigned_to"] = *incoming.AssignedTo
		}
		return fields

	case domain.ResolutionMerge:
		fields := map[string]interface{}{}
		if canonical.Title == "" && incoming.Title != "" {
			fields["title"] = incoming.Title
		}
		if canonical.Description == "" && incoming.Description != "" {
			fields["description"] = incoming.Description
		}
		if canonical.Priority == "" && incoming.Priority != "" {
			fields["priority"] = string(incoming.Priority)
		}
		if canonical.Status == "" && incoming.Status != "" {
			fields["status"] = string(incoming.Status)
		}
		if canonical.EstimatedHours == 0 && incoming.EstimatedHours != 0 {
			fields["estimated_hours"] = incoming.EstimatedHours
		}
		if canonical.AssignedTo == nil && incoming.AssignedTo != nil {
			fields["assigned_to"] = *incoming.AssignedTo
		}
		return fields
	}

	return nil
}
