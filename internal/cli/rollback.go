package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Delete migrated records from the canonical store",
	Long: `Delete the listed canonical records from a farm's scope.

Destructive and non-reversible: rollback only deletes, it cannot restore
a record that a migration overwrote. Supply only the IDs a migration
newly inserted. Requires --yes.

Examples:
  taskmigrate rollback --farm farm-1 --ids T1,T2,T3 --yes`,
	Args: cobra.NoArgs,
	RunE: runRollback,
}

var (
	rollbackIDs  []string
	rollbackYes  bool
	rollbackJSON bool
)

func init() {
	rootCmd.AddCommand(rollbackCmd)

	rollbackCmd.Flags().StringSliceVar(&rollbackIDs, "ids", nil, "External record IDs to delete")
	rollbackCmd.Flags().BoolVar(&rollbackYes, "yes", false, "Confirm the destructive operation")
	rollbackCmd.Flags().BoolVar(&rollbackJSON, "json", false, "Output as JSON")
}

func runRollback(cmd *cobra.Command, args []string) error {
	if len(rollbackIDs) == 0 {
		return fmt.Errorf("no record IDs given (use --ids)")
	}
	if !rollbackYes {
		return fmt.Errorf("rollback is destructive; re-run with --yes to confirm")
	}

	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	farmID, err := resolveFarm(app.cfg, cmd)
	if err != nil {
		return err
	}

	result, err := app.engine.Rollback(farmID, rollbackIDs)
	if err != nil {
		return err
	}

	if rollbackJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Println(result.Message)
	for _, recErr := range result.Errors {
		fmt.Printf("failed %s: %s\n", recErr.ExternalID, recErr.Message)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("rollback finished with %d failed record(s)", len(result.Errors))
	}
	return nil
}
