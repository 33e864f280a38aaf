package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/farmkonnect/taskmigrate/internal/config"
	"github.com/farmkonnect/taskmigrate/internal/db"
	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/farmkonnect/taskmigrate/internal/events"
	"github.com/farmkonnect/taskmigrate/internal/migrate"
	"github.com/farmkonnect/taskmigrate/internal/session"
	"github.com/farmkonnect/taskmigrate/internal/store"
)

// DaemonOptions configures the taskmigrated daemon.
type DaemonOptions struct {
	Addr   string
	Unix   string
	Token  string
	DBPath string
}

// ServeDaemon starts the taskmigrated daemon.
func ServeDaemon(opts DaemonOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	_, pending, err := database.MigrationStatus()
	if err != nil {
		database.Close()
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if len(pending) > 0 {
		database.Close()
		return fmt.Errorf("database requires migration: %d pending migration(s). Run 'taskmigrate migrate' to update", len(pending))
	}

	st := store.New(database)
	tracker := session.NewTracker(st.Sessions)
	engine := migrate.NewEngine(st, tracker, events.NewWriter(database.DB), cfg.Workers)

	server := &daemonServer{
		store:  st,
		engine: engine,
		cfg:    cfg,
		token:  opts.Token,
	}

	mux := http.NewServeMux()
	server.registerRoutes(mux)

	httpServer := &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Execution of a large batch can outlive a request-sized timeout
		WriteTimeout: 10 * time.Minute,
	}

	if opts.Unix != "" {
		_ = os.Remove(opts.Unix)
		listener, err := net.Listen("unix", opts.Unix)
		if err != nil {
			database.Close()
			return fmt.Errorf("failed to listen on unix socket: %w", err)
		}
		defer listener.Close()
		return httpServer.Serve(listener)
	}

	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:7272"
	}
	httpServer.Addr = addr

	return httpServer.ListenAndServe()
}

type daemonServer struct {
	store  *store.Store
	engine *migrate.Engine
	cfg    *config.Config
	token  string
}

func (s *daemonServer) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/health", s.withAuth(s.handleHealth))

	mux.HandleFunc("/v1/migration/validate", s.withAuth(s.handleValidate))
	mux.HandleFunc("/v1/migration/start", s.withAuth(s.handleStart))
	mux.HandleFunc("/v1/migration/execute", s.withAuth(s.handleExecute))
	mux.HandleFunc("/v1/migration/status", s.withAuth(s.handleStatus))
	mux.HandleFunc("/v1/migration/rollback", s.withAuth(s.handleRollback))
}

func (s *daemonServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			token := r.Header.Get("Authorization")
			if strings.HasPrefix(token, "Bearer ") {
				token = strings.TrimPrefix(token, "Bearer ")
			}
			if token != s.token {
				s.writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
				return
			}
		}

		next(w, r)
	}
}

func (s *daemonServer) decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

func (s *daemonServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *daemonServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]interface{}{
		"message": err.Error(),
	})
}

// checkFarm enforces the farm allow-list. An out-of-scope farm fails the
// whole request before any record is touched.
func (s *daemonServer) checkFarm(w http.ResponseWriter, farmID string) bool {
	if farmID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("farm_id required"))
		return false
	}
	if !s.cfg.FarmAllowed(farmID) {
		s.writeError(w, http.StatusForbidden, fmt.Errorf("farm %s is not in the configured allow-list", farmID))
		return false
	}
	return true
}

func (s *daemonServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	if err := s.store.Ping(); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

type validateRequest struct {
	FarmID  string          `json:"farm_id"`
	Records []recordPayload `json:"records"`
}

func (s *daemonServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var req validateRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.checkFarm(w, req.FarmID) {
		return
	}

	records, err := convertPayloads(req.Records)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := s.engine.ValidateRecords(req.FarmID, records)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

type startRequest struct {
	FarmID   string          `json:"farm_id"`
	Records  []recordPayload `json:"records"`
	Strategy string          `json:"strategy"`
}

func (s *daemonServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var req startRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.checkFarm(w, req.FarmID) {
		return
	}
	if err := domain.ValidateStrategy(req.Strategy); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	records, err := convertPayloads(req.Records)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	analysis, err := s.engine.Analyze(req.FarmID, records, domain.Strategy(req.Strategy))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, analysis)
}

type executeRequest struct {
	FarmID    string            `json:"farm_id"`
	Records   []recordPayload   `json:"records"`
	Strategy  string            `json:"strategy"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

func (s *daemonServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var req executeRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.checkFarm(w, req.FarmID) {
		return
	}
	if err := domain.ValidateStrategy(req.Strategy); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	overrides := make(map[string]domain.Resolution, len(req.Overrides))
	for externalID, resolution := range req.Overrides {
		if err := domain.ValidateResolution(resolution); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("override for %s: %w", externalID, err))
			return
		}
		overrides[externalID] = domain.Resolution(resolution)
	}

	records, err := convertPayloads(req.Records)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.engine.Execute(r.Context(), req.FarmID, records, domain.Strategy(req.Strategy), overrides)
	if err != nil && sess == nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sess)
}

type statusRequest struct {
	FarmID    string `json:"farm_id"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *daemonServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var req statusRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.checkFarm(w, req.FarmID) {
		return
	}

	var (
		sess *domain.MigrationSession
		err  error
	)
	if req.SessionID != "" {
		sess, err = s.store.Sessions.Get(req.SessionID)
	} else {
		sess, err = s.store.Sessions.Latest(req.FarmID)
	}
	if errors.Is(err, session.ErrNotFound) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": string(domain.SessionNotStarted)})
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sess)
}

type rollbackRequest struct {
	FarmID    string   `json:"farm_id"`
	RecordIDs []string `json:"record_ids"`
}

func (s *daemonServer) handleRollback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var req rollbackRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.checkFarm(w, req.FarmID) {
		return
	}
	if len(req.RecordIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("record_ids required"))
		return
	}

	result, err := s.engine.Rollback(req.FarmID, req.RecordIDs)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func convertPayloads(payloads []recordPayload) ([]*domain.IncomingTask, error) {
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
