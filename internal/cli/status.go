package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/farmkonnect/taskmigrate/internal/session"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest migration session for a farm",
	Long: `Show the most recently started migration session for a farm, with
progress and per-record failures. Older sessions stay queryable by ID.

Examples:
  taskmigrate status --farm farm-1
  taskmigrate status --farm farm-1 --session 0b8e...`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusSession string
	statusJSON    bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusSession, "session", "", "Look up a specific session by ID")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	var (
		sess *domain.MigrationSession
		serr error
	)
	if statusSession != "" {
		sess, serr = app.store.Sessions.Get(statusSession)
	} else {
		farmID, err := resolveFarm(app.cfg, cmd)
		if err != nil {
			return err
		}
		sess, serr = app.store.Sessions.Latest(farmID)
	}

	if errors.Is(serr, session.ErrNotFound) {
		if statusJSON {
			return json.NewEncoder(os.Stdout).Encode(map[string]string{"status": "not_started"})
		}
		fmt.Println("not_started")
		return nil
	}
	if serr != nil {
		return serr
	}

	if statusJSON {
		return json.NewEncoder(os.Stdout).Encode(sess)
	}
	printSession(sess)
	return nil
}
