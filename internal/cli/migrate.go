package cli

import (
	"fmt"

	"github.com/farmkonnect/taskmigrate/internal/config"
	"github.com/farmkonnect/taskmigrate/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath := cmd.Flag("db").Value.String(); dbPath != "" {
		cfg.DBPath = dbPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	_, pending, err := database.MigrationStatus()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("schema up to date")
		return nil
	}

	if err := database.Migrate(); err != nil {
		return err
	}
	fmt.Printf("applied %d migration(s)\n", len(pending))
	return nil
}
