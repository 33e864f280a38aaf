package cli

import (
	"fmt"

	"github.com/farmkonnect/taskmigrate/internal/config"
	"github.com/farmkonnect/taskmigrate/internal/db"
	"github.com/farmkonnect/taskmigrate/internal/events"
	"github.com/farmkonnect/taskmigrate/internal/migrate"
	"github.com/farmkonnect/taskmigrate/internal/session"
	"github.com/farmkonnect/taskmigrate/internal/store"
	"github.com/spf13/cobra"
)

// appContext bundles everything a command needs once config and database
// are resolved.
type appContext struct {
	cfg    *config.Config
	db     *db.DB
	store  *store.Store
	engine *migrate.Engine
}

func (a *appContext) Close() {
	a.db.Close()
}

// openApp loads config, opens the database, and wires the engine. The
// database must be fully migrated; a schema behind the binary is an error,
// never silently patched.
func openApp(cmd *cobra.Command) (*appContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if dbPath := cmd.Flag("db").Value.String(); dbPath != "" {
		cfg.DBPath = dbPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.RequiresMigrationError(); err != nil {
		database.Close()
		return nil, err
	}

	st := store.New(database)
	tracker := session.NewTracker(st.Sessions)
	engine := migrate.NewEngine(st, tracker, events.NewWriter(database.DB), cfg.Workers)

	return &appContext{cfg: cfg, db: database, store: st, engine: engine}, nil
}

// resolveFarm picks the farm scope from --farm or config and enforces the
// configured allow-list. Out-of-scope farms fail the whole call up front.
func resolveFarm(cfg *config.Config, cmd *cobra.Command) (string, error) {
	farmID := cmd.Flag("farm").Value.String()
	if farmID == "" {
		farmID = cfg.DefaultFarm
	}
	if farmID == "" {
		return "", fmt.Errorf("no farm configured (set FARMKONNECT_FARM or use --farm)")
	}
	if !cfg.FarmAllowed(farmID) {
		return "", fmt.Errorf("farm %s is not in the configured allow-list", farmID)
	}
	return farmID, nil
}
