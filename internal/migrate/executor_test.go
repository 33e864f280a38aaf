package migrate

import (
	"context"
	"testing"

	"github.com/farmkonnect/taskmigrate/internal/db"
	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/farmkonnect/taskmigrate/internal/events"
	"github.com/farmkonnect/taskmigrate/internal/session"
	"github.com/farmkonnect/taskmigrate/internal/store"
	"github.com/farmkonnect/taskmigrate/internal/testutil"
)

func setupEngine(t *testing.T, workers int) (*Engine, *store.Store, *db.DB) {
	t.Helper()
	database := testutil.TempDB(t)
	st := store.New(database)
	tracker := session.NewTracker(session.NewMemoryStore())
	engine := NewEngine(st, tracker, events.NewWriter(database.DB), workers)
	return engine, st, database
}

func TestExecutePureInserts(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	records := []*domain.IncomingTask{validIncoming("T1"), validIncoming("T2")}
	sess, err := engine.Execute(context.Background(), "farm-1", records, domain.StrategyMerge, nil)
	testutil.AssertNoError(t, err)

	if sess.Status != domain.SessionCompleted {
		t.Errorf("expected completed, got %s", sess.Status)
	}
	if sess.MigratedCount != 2 || sess.FailedCount != 0 || sess.ConflictedCount != 0 {
		t.Errorf("unexpected counts: %+v", sess)
	}

	count, err := st.Tasks.CountByFarm("farm-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 2, count)

	task, err := st.Tasks.FindByExternalID("farm-1", "T1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "Feed cattle", task.Title)
	testutil.AssertEqual(t, 2.0, task.EstimatedHours)
}

func TestExecuteExcludesInvalidRecords(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	bad := validIncoming("T2")
	bad.Title = ""

	sess, err := engine.Execute(context.Background(), "farm-1",
		[]*domain.IncomingTask{validIncoming("T1"), bad}, domain.StrategyOverwrite, nil)
	testutil.AssertNoError(t, err)

	// Invalid records never enter the session counters
	testutil.AssertEqual(t, 1, sess.TotalRecords)
	testutil.AssertEqual(t, 1, sess.MigratedCount)

	if _, err := st.Tasks.FindByExternalID("farm-1", "T2"); err == nil {
		t.Error("invalid record must never be written")
	}
}

func TestExecuteOverwrite(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	if _, err := st.Tasks.Insert("farm-1", validIncoming("T1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	changed := validIncoming("T1")
	changed.Title = "Feed cattle twice"
	changed.Priority = domain.PriorityUrgent
	changed.EstimatedHours = 4

	sess, err := engine.Execute(context.Background(), "farm-1",
		[]*domain.IncomingTask{changed}, domain.StrategyOverwrite, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, sess.MigratedCount)

	task, err := st.Tasks.FindByExternalID("farm-1", "T1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "Feed cattle twice", task.Title)
	testutil.AssertEqual(t, domain.PriorityUrgent, task.Priority)
	testutil.AssertEqual(t, 4.0, task.EstimatedHours)
}

func TestExecuteSkipExistingLeavesCanonicalUntouched(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	if _, err := st.Tasks.Insert("farm-1", validIncoming("T1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	before, err := st.Tasks.FindByExternalID("farm-1", "T1")
	testutil.AssertNoError(t, err)

	changed := validIncoming("T1")
	changed.Title = "Should not land"

	sess, err := engine.Execute(context.Background(), "farm-1",
		[]*domain.IncomingTask{changed}, domain.StrategySkipExisting, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, sess.MigratedCount)
	testutil.AssertEqual(t, 1, sess.ConflictedCount)

	after, err := st.Tasks.FindByExternalID("farm-1", "T1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, before.Title, after.Title)
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("skip_existing must not touch the canonical record")
	}
}

func TestExecuteMergeFillsOnlyEmptyFields(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	sparse := validIncoming("T1")
	sparse.Description = ""
	if _, err := st.Tasks.Insert("farm-1", sparse); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	incoming := validIncoming("T1")
	incoming.Title = "Bulk import title"
	incoming.Description = "Imported description"

	sess, err := engine.Execute(context.Background(), "farm-1",
		[]*domain.IncomingTask{incoming}, domain.StrategyMerge, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, sess.MigratedCount)

	task, err := st.Tasks.FindByExternalID("farm-1", "T1")
	testutil.AssertNoError(t, err)
	// Curated canonical title wins; empty description takes the import
	testutil.AssertEqual(t, "Feed cattle", task.Title)
	testutil.AssertEqual(t, "Imported description", task.Description)
}

func TestExecuteOverrideBeatsStrategy(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	if _, err := st.Tasks.Insert("farm-1", validIncoming("T1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	changed := validIncoming("T1")
	changed.Title = "Override landed"

	sess, err := engine.Execute(context.Background(), "farm-1",
		[]*domain.IncomingTask{changed}, domain.StrategySkipExisting,
		map[string]domain.Resolution{"T1": domain.ResolutionUseIncoming})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, sess.MigratedCount)

	task, err := st.Tasks.FindByExternalID("farm-1", "T1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "Override landed", task.Title)
}

func TestExecuteFailureIsolation(t *testing.T) {
	engine, _, database := setupEngine(t, 1)

	// Break the canonical table so every record fails at the store
	if _, err := database.Exec("DROP TABLE tasks"); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}

	sess, err := engine.Execute(context.Background(), "farm-1",
		[]*domain.IncomingTask{validIncoming("T1"), validIncoming("T2")},
		domain.StrategyOverwrite, nil)
	testutil.AssertNoError(t, err)

	// One record's failure never aborts the batch: both are recorded
	if sess.Status != domain.SessionFailed {
		t.Errorf("expected failed session, got %s", sess.Status)
	}
	testutil.AssertEqual(t, 2, sess.FailedCount)
	if len(sess.Errors) != 2 {
		t.Fatalf("every failed record needs an error entry, got %+v", sess.Errors)
	}
	for _, recErr := range sess.Errors {
		if recErr.Message == "" {
			t.Errorf("error for %s is missing a message", recErr.ExternalID)
		}
	}
}

func TestExecuteCountsSumToTotal(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	if _, err := st.Tasks.Insert("farm-1", validIncoming("T1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	records := []*domain.IncomingTask{validIncoming("T1"), validIncoming("T2"), validIncoming("T3")}
	sess, err := engine.Execute(context.Background(), "farm-1", records, domain.StrategySkipExisting, nil)
	testutil.AssertNoError(t, err)

	sum := sess.MigratedCount + sess.FailedCount + sess.ConflictedCount
	testutil.AssertEqual(t, sess.TotalRecords, sum)
	testutil.AssertEqual(t, 1, sess.ConflictedCount)
	testutil.AssertEqual(t, 2, sess.MigratedCount)
}

func TestExecuteOverwriteIsIdempotent(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	records := []*domain.IncomingTask{validIncoming("T1")}
	if _, err := engine.Execute(context.Background(), "farm-1", records, domain.StrategyOverwrite, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first, err := st.Tasks.FindByExternalID("farm-1", "T1")
	testutil.AssertNoError(t, err)

	if _, err := engine.Execute(context.Background(), "farm-1", records, domain.StrategyOverwrite, nil); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	count, err := st.Tasks.CountByFarm("farm-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, count)

	second, err := st.Tasks.FindByExternalID("farm-1", "T1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, first.Title, second.Title)
	testutil.AssertEqual(t, first.EstimatedHours, second.EstimatedHours)
	testutil.AssertEqual(t, first.RowID, second.RowID)
}

func TestExecuteRejectsUnknownStrategy(t *testing.T) {
	engine, _, _ := setupEngine(t, 1)

	_, err := engine.Execute(context.Background(), "farm-1",
		[]*domain.IncomingTask{validIncoming("T1")}, domain.Strategy("bogus"), nil)
	testutil.AssertError(t, err)
}

func TestExecuteConcurrentWorkers(t *testing.T) {
	engine, st, _ := setupEngine(t, 4)

	var records []*domain.IncomingTask
	ids := []string{"T1", "T2", "T3", "T4", "T5", "T6", "T7", "T8", "T9", "T10",
		"T11", "T12", "T13", "T14", "T15", "T16", "T17", "T18", "T19", "T20"}
	for _, id := range ids {
		records = append(records, validIncoming(id))
	}

	sess, err := engine.Execute(context.Background(), "farm-1", records, domain.StrategyMerge, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(ids), sess.MigratedCount)

	count, err := st.Tasks.CountByFarm("farm-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(ids), count)
}

func TestExecuteCooperativeCancellation(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess, err := engine.Execute(ctx, "farm-1",
		[]*domain.IncomingTask{validIncoming("T1")}, domain.StrategyMerge, nil)
	if err == nil {
		t.Error("expected context error from cancelled run")
	}
	if sess == nil || !sess.Terminal() {
		t.Error("cancelled run must still leave the session in a terminal state")
	}

	// No record is ever left partially applied
	count, err := st.Tasks.CountByFarm("farm-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, count)
}

func TestAnalyzeReportsRecommendations(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	if _, err := st.Tasks.Insert("farm-1", validIncoming("T1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	bad := validIncoming("T3")
	bad.EstimatedHours = 0

	changed := validIncoming("T1")
	changed.Title = "New title"

	analysis, err := engine.Analyze("farm-1",
		[]*domain.IncomingTask{changed, validIncoming("T2"), bad}, domain.StrategyOverwrite)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 2, analysis.ValidCount)
	testutil.AssertEqual(t, 1, analysis.InvalidCount)
	testutil.AssertEqual(t, 1, analysis.ConflictCount)

	if len(analysis.Recommendations) != 1 {
		t.Fatalf("expected 1 recommendation, got %+v", analysis.Recommendations)
	}
	rec := analysis.Recommendations[0]
	testutil.AssertEqual(t, "T1", rec.ExternalID)
	testutil.AssertEqual(t, domain.ResolutionUseIncoming, rec.Decision)
	if len(rec.Diffs) != 1 || rec.Diffs[0].Field != "title" {
		t.Errorf("expected title diff, got %+v", rec.Diffs)
	}

	// Analysis never mutates the store
	count, err := st.Tasks.CountByFarm("farm-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, count)
}

func TestValidateRecordsPreview(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	if _, err := st.Tasks.Insert("farm-1", validIncoming("T1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	bad := validIncoming("T2")
	bad.TaskType = ""

	report, err := engine.ValidateRecords("farm-1",
		[]*domain.IncomingTask{validIncoming("T1"), bad})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 1, len(report.Valid))
	testutil.AssertEqual(t, 1, len(report.Invalid))
	testutil.AssertEqual(t, 1, len(report.Conflicts))
	testutil.AssertEqual(t, "T1", report.Conflicts[0].ExternalID)
}

func TestRollbackDeletesOnlyListedRecords(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	for _, id := range []string{"T1", "T2", "T3"} {
		if _, err := st.Tasks.Insert("farm-1", validIncoming(id)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := engine.Rollback("farm-1", []string{"T1", "T3", "missing"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 2, result.DeletedCount)
	if result.Message == "" {
		t.Error("expected a summary message")
	}

	count, err := st.Tasks.CountByFarm("farm-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, count)
	if _, err := st.Tasks.FindByExternalID("farm-1", "T2"); err != nil {
		t.Errorf("T2 should survive rollback, got %v", err)
	}
}

func TestRollbackIsScopeIsolated(t *testing.T) {
	engine, st, _ := setupEngine(t, 1)

	if _, err := st.Tasks.Insert("farm-2", validIncoming("T1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := engine.Rollback("farm-1", []string{"T1"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, result.DeletedCount)

	count, err := st.Tasks.CountByFarm("farm-2")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, count)
}
