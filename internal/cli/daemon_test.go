package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/farmkonnect/taskmigrate/internal/config"
	"github.com/farmkonnect/taskmigrate/internal/events"
	"github.com/farmkonnect/taskmigrate/internal/migrate"
	"github.com/farmkonnect/taskmigrate/internal/session"
	"github.com/farmkonnect/taskmigrate/internal/store"
	"github.com/farmkonnect/taskmigrate/internal/testutil"
)

func setupDaemon(t *testing.T, cfg *config.Config, token string) *httptest.Server {
	t.Helper()

	database := testutil.TempDB(t)
	st := store.New(database)
	tracker := session.NewTracker(st.Sessions)
	engine := migrate.NewEngine(st, tracker, events.NewWriter(database.DB), cfg.Workers)

	server := &daemonServer{store: st, engine: engine, cfg: cfg, token: token}
	mux := http.NewServeMux()
	server.registerRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, token string, payload interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func sampleRecords() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": "T1", "title": "Feed cattle", "taskType": "feeding", "dueDate": "2026-02-20", "estimatedHours": 2},
		{"id": "T2", "title": "", "taskType": "feeding", "dueDate": "2026-02-20", "estimatedHours": 2},
	}
}

func TestDaemonHealth(t *testing.T) {
	ts := setupDaemon(t, &config.Config{Workers: 1}, "")

	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDaemonRejectsBadToken(t *testing.T) {
	ts := setupDaemon(t, &config.Config{Workers: 1}, "secret")

	resp := postJSON(t, ts.URL+"/v1/migration/validate", "wrong", map[string]interface{}{
		"farm_id": "farm-1", "records": sampleRecords(),
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestDaemonRejectsOutOfScopeFarm(t *testing.T) {
	ts := setupDaemon(t, &config.Config{Workers: 1, Farms: []string{"farm-1"}}, "")

	// Whole request rejected before any record is touched
	resp := postJSON(t, ts.URL+"/v1/migration/execute", "", map[string]interface{}{
		"farm_id": "farm-2", "strategy": "merge", "records": sampleRecords(),
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestDaemonValidate(t *testing.T) {
	ts := setupDaemon(t, &config.Config{Workers: 1}, "secret")

	resp := postJSON(t, ts.URL+"/v1/migration/validate", "secret", map[string]interface{}{
		"farm_id": "farm-1", "records": sampleRecords(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var report struct {
		Valid   []json.RawMessage `json:"valid_tasks"`
		Invalid []struct {
			RecordID string   `json:"record_id"`
			Reasons  []string `json:"reasons"`
		} `json:"invalid_tasks"`
	}
	decodeBody(t, resp, &report)
	if len(report.Valid) != 1 {
		t.Errorf("expected 1 valid record, got %d", len(report.Valid))
	}
	if len(report.Invalid) != 1 || report.Invalid[0].RecordID != "T2" {
		t.Fatalf("expected T2 invalid, got %+v", report.Invalid)
	}
	if len(report.Invalid[0].Reasons) != 1 || report.Invalid[0].Reasons[0] != "Missing title" {
		t.Errorf("expected 'Missing title' reason, got %v", report.Invalid[0].Reasons)
	}
}

func TestDaemonStartAnalysis(t *testing.T) {
	ts := setupDaemon(t, &config.Config{Workers: 1}, "")

	resp := postJSON(t, ts.URL+"/v1/migration/start", "", map[string]interface{}{
		"farm_id": "farm-1", "strategy": "overwrite", "records": sampleRecords(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var analysis struct {
		ValidCount    int `json:"valid_count"`
		InvalidCount  int `json:"invalid_count"`
		ConflictCount int `json:"conflict_count"`
	}
	decodeBody(t, resp, &analysis)
	if analysis.ValidCount != 1 || analysis.InvalidCount != 1 || analysis.ConflictCount != 0 {
		t.Errorf("unexpected analysis: %+v", analysis)
	}
}

func TestDaemonExecuteAndStatus(t *testing.T) {
	ts := setupDaemon(t, &config.Config{Workers: 1}, "")

	// No session yet
	resp := postJSON(t, ts.URL+"/v1/migration/status", "", map[string]interface{}{"farm_id": "farm-1"})
	var notStarted struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &notStarted)
	if notStarted.Status != "not_started" {
		t.Errorf("expected not_started, got %s", notStarted.Status)
	}

	resp = postJSON(t, ts.URL+"/v1/migration/execute", "", map[string]interface{}{
		"farm_id": "farm-1", "strategy": "merge", "records": sampleRecords(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var sess struct {
		SessionID     string `json:"session_id"`
		Status        string `json:"status"`
		TotalRecords  int    `json:"total_records"`
		MigratedCount int    `json:"migrated_count"`
	}
	decodeBody(t, resp, &sess)
	if sess.Status != "completed" || sess.TotalRecords != 1 || sess.MigratedCount != 1 {
		t.Errorf("unexpected session: %+v", sess)
	}

	// Status now reflects the completed run
	resp = postJSON(t, ts.URL+"/v1/migration/status", "", map[string]interface{}{"farm_id": "farm-1"})
	var latest struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	}
	decodeBody(t, resp, &latest)
	if latest.SessionID != sess.SessionID || latest.Status != "completed" {
		t.Errorf("unexpected latest session: %+v", latest)
	}
}

func TestDaemonExecuteRejectsBadStrategy(t *testing.T) {
	ts := setupDaemon(t, &config.Config{Workers: 1}, "")

	resp := postJSON(t, ts.URL+"/v1/migration/execute", "", map[string]interface{}{
		"farm_id": "farm-1", "strategy": "yolo", "records": sampleRecords(),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDaemonRollback(t *testing.T) {
	ts := setupDaemon(t, &config.Config{Workers: 1}, "")

	resp := postJSON(t, ts.URL+"/v1/migration/execute", "", map[string]interface{}{
		"farm_id": "farm-1", "strategy": "merge", "records": sampleRecords(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("execute failed with %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/v1/migration/rollback", "", map[string]interface{}{
		"farm_id": "farm-1", "record_ids": []string{"T1", "missing"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		DeletedCount int    `json:"deleted_tasks"`
		Message      string `json:"message"`
	}
	decodeBody(t, resp, &result)
	if result.DeletedCount != 1 {
		t.Errorf("expected 1 deleted, got %d", result.DeletedCount)
	}
	if result.Message == "" {
		t.Error("expected a summary message")
	}
}
