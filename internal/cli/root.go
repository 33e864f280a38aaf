package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskmigrate",
	Short: "Reconcile and migrate task records into the canonical store",
	Long: `taskmigrate reconciles batches of externally supplied task records into
the canonical per-farm store. It detects conflicts with existing records,
resolves them with an explicit strategy (overwrite, merge, skip_existing),
tracks migration sessions, and can roll back migrated records.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides FARMKONNECT_DB_PATH)")
	rootCmd.PersistentFlags().String("farm", "", "Farm scope to operate on (overrides FARMKONNECT_FARM)")
}
