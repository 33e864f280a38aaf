package domain

import (
	"fmt"
	"time"
)

// ValidatePriority validates a task priority
func ValidatePriority(priority string) error {
	switch TaskPriority(priority) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return nil
	default:
		return fmt.Errorf("invalid priority: must be one of: low, medium, high, urgent")
	}
}

// ValidateStatus validates a task status
func ValidateStatus(status string) error {
	switch TaskStatus(status) {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid status: must be one of: pending, in_progress, completed, cancelled")
	}
}

// ValidateStrategy validates a session-wide resolution strategy
func ValidateStrategy(strategy string) error {
	switch Strategy(strategy) {
	case StrategyOverwrite, StrategyMerge, StrategySkipExisting:
		return nil
	default:
		return fmt.Errorf("invalid strategy: must be one of: overwrite, merge, skip_existing")
	}
}

// ValidateResolution validates a per-record resolution decision
func ValidateResolution(resolution string) error {
	switch Resolution(resolution) {
	case ResolutionUseIncoming, ResolutionUseCanonical, ResolutionMerge:
		return nil
	default:
		return fmt.Errorf("invalid resolution: must be one of: use_incoming, use_canonical, merge")
	}
}

// ValidateTimestamp validates and parses an ISO8601 timestamp
func ValidateTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: expected ISO8601/RFC3339")
	}
	return t, nil
}
