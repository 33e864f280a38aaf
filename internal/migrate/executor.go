package migrate

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/farmkonnect/taskmigrate/internal/events"
	"github.com/farmkonnect/taskmigrate/internal/session"
	"github.com/farmkonnect/taskmigrate/internal/store"
)

// Engine drives migration batches end to end: validation, conflict
// detection, resolution, and record-by-record application with failure
// isolation.
type Engine struct {
	store    *store.Store
	detector *Detector
	tracker  *session.Tracker
	events   *events.Writer
	workers  int
}

// NewEngine creates a migration engine. workers controls how many records
// are applied concurrently; values below 1 mean sequential processing in
// strict input order.
func NewEngine(st *store.Store, tracker *session.Tracker, ew *events.Writer, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		store:    st,
		detector: &Detector{Canonical: st.Tasks},
		tracker:  tracker,
		events:   ew,
		workers:  workers,
	}
}

// ValidationReport is the read-only preview of a batch: which records are
// structurally valid, which are not and why, and which valid records
// collide with existing canonical identities.
type ValidationReport struct {
	Valid     []*domain.IncomingTask   `json:"valid_tasks"`
	Invalid   []domain.ValidationError `json:"invalid_tasks"`
	Conflicts []domain.Conflict        `json:"conflicts"`
}

// Recommendation pairs a detected conflict with the decision the session
// strategy would apply to it.
type Recommendation struct {
	ExternalID string             `json:"record_id"`
	Decision   domain.Resolution  `json:"recommendation"`
	Diffs      []domain.FieldDiff `json:"differences"`
}

// Analysis summarizes a batch without mutating anything.
type Analysis struct {
	ValidCount      int                      `json:"valid_count"`
	InvalidCount    int                      `json:"invalid_count"`
	ConflictCount   int                      `json:"conflict_count"`
	Invalid         []domain.ValidationError `json:"invalid_tasks,omitempty"`
	Recommendations []Recommendation         `json:"recommendations,omitempty"`
}

// ValidateRecords partitions a batch and detects conflicts without writing
// anything to the canonical store.
func (e *Engine) ValidateRecords(farmID string, records []*domain.IncomingTask) (*ValidationReport, error) {
	valid, invalid := Partition(records)

	report := &ValidationReport{Valid: valid, Invalid: invalid}
	for _, rec := range valid {
		conflict, _, err := e.detector.Detect(farmID, rec)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			report.Conflicts = append(report.Conflicts, *conflict)
		}
	}
	return report, nil
}

// Analyze previews a batch under a strategy: counts plus the decision each
// conflicting record would receive. Read-only.
func (e *Engine) Analyze(farmID string, records []*domain.IncomingTask, strategy domain.Strategy) (*Analysis, error) {
	if err := domain.ValidateStrategy(string(strategy)); err != nil {
		return nil, err
	}

	report, err := e.ValidateRecords(farmID, records)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		ValidCount:   len(report.Valid),
		InvalidCount: len(report.Invalid),
		Invalid:      report.Invalid,
	}
	for i := range report.Conflicts {
		conflict := &report.Conflicts[i]
		analysis.ConflictCount++
		analysis.Recommendations = append(analysis.Recommendations, Recommendation{
			ExternalID: conflict.ExternalID,
			Decision:   Resolve(conflict, strategy, nil),
			Diffs:      conflict.Diffs,
		})
	}
	return analysis, nil
}

// recordOutcome is one record's terminal result flowing from a worker to
// the accumulator.
type recordOutcome struct {
	outcome    session.Outcome
	externalID string
	message    string
}

// Execute runs the mutating migration. Invalid records are excluded before
// the session is created, so the session total counts only records that
// enter execution. Writes commit at per-record granularity: one record's
// failure is recorded and the batch continues. Cancellation is cooperative,
// checked between records only.
func (e *Engine) Execute(ctx context.Context, farmID string, records []*domain.IncomingTask, strategy domain.Strategy, overrides map[string]domain.Resolution) (*domain.MigrationSession, error) {
	if err := domain.ValidateStrategy(string(strategy)); err != nil {
		return nil, err
	}
	for _, decision := range overrides {
		if err := domain.ValidateResolution(string(decision)); err != nil {
			return nil, err
		}
	}
	if err := e.store.Ping(); err != nil {
		return nil, err
	}

	valid, invalid := Partition(records)

	sess, err := e.tracker.Begin(farmID, len(valid))
	if err != nil {
		return nil, err
	}
	e.events.LogSessionEvent(farmID, sess.SessionID, "migration.started", map[string]interface{}{
		"strategy":        string(strategy),
		"total_records":   len(valid),
		"invalid_records": len(invalid),
	})

	// Single-writer accumulator: all counter updates funnel through one
	// goroutine so worker outcomes are never lost.
	outcomes := make(chan recordOutcome)
	accDone := make(chan error, 1)
	go func() {
		var firstErr error
		for o := range outcomes {
			if err := e.tracker.Record(sess.SessionID, o.outcome, o.externalID, o.message); err != nil && firstErr == nil {
				firstErr = err
			}
			if o.outcome == session.OutcomeFailed {
				e.events.LogTaskFailed(farmID, o.externalID, o.message)
			}
		}
		accDone <- firstErr
	}()

	// Shard by external identity so two records with the same identity are
	// never applied concurrently and keep their relative input order.
	shards := make([][]*domain.IncomingTask, e.workers)
	for _, rec := range valid {
		i := shardFor(rec.ExternalID, e.workers)
		shards[i] = append(shards[i], rec)
	}

	var wg sync.WaitGroup
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		wg.Add(1)
		go func(shard []*domain.IncomingTask) {
			defer wg.Done()
			for _, rec := range shard {
				if ctx.Err() != nil {
					return
				}
				outcome, message := e.apply(farmID, rec, strategy, overrides)
				outcomes <- recordOutcome{outcome: outcome, externalID: rec.ExternalID, message: message}
			}
		}(shard)
	}
	wg.Wait()
	close(outcomes)
	accErr := <-accDone

	final, err := e.tracker.Finish(sess.SessionID)
	if err != nil {
		return nil, err
	}
	e.events.LogSessionEvent(farmID, sess.SessionID, "migration.completed", map[string]interface{}{
		"status":           string(final.Status),
		"migrated_count":   final.MigratedCount,
		"failed_count":     final.FailedCount,
		"conflicted_count": final.ConflictedCount,
	})

	if accErr != nil {
		return final, accErr
	}
	if ctx.Err() != nil {
		return final, ctx.Err()
	}
	return final, nil
}

// apply processes a single record and returns its terminal outcome. Every
// store error is captured as a per-record failure, never propagated.
func (e *Engine) apply(farmID string, rec *domain.IncomingTask, strategy domain.Strategy, overrides map[string]domain.Resolution) (session.Outcome, string) {
	conflict, canonical, err := e.detector.Detect(farmID, rec)
	if err != nil {
		return session.OutcomeFailed, err.Error()
	}

	if conflict == nil {
		if _, err := e.store.Tasks.Insert(farmID, rec); err != nil {
			return session.OutcomeFailed, err.Error()
		}
		return session.OutcomeMigrated, ""
	}

	decision := Resolve(conflict, strategy, overrides)
	if decision == domain.ResolutionUseCanonical {
		// Resolved without a write: a legitimate outcome, not an error.
		return session.OutcomeConflicted, ""
	}

	fields := MergeFields(decision, canonical, rec)
	if err := e.store.Tasks.UpdateFields(farmID, rec.ExternalID, fields); err != nil {
		// Covers the identity vanishing between lookup and write.
		return session.OutcomeFailed, err.Error()
	}
	return session.OutcomeMigrated, ""
}

func shardFor(externalID string, workers int) int {
	if workers == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(externalID))
	return int(h.Sum32() % uint32(workers))
}
