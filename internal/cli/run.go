package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <records.json>",
	Short: "Execute a migration batch",
	Long: `Execute a migration of incoming records into the canonical store.

Structurally invalid records are excluded up front and reported; each
remaining record is inserted or reconciled against its canonical
counterpart under the chosen strategy. One record's failure never aborts
the batch. The resulting session is printed when the run finishes.

Examples:
  taskmigrate run legacy-tasks.json --farm farm-1 --strategy merge
  taskmigrate run legacy-tasks.json --farm farm-1 --strategy skip_existing --overrides fixes.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runStrategy  string
	runOverrides string
	runDryRun    bool
	runJSON      bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runStrategy, "strategy", "merge", "Conflict strategy: overwrite, merge, or skip_existing")
	runCmd.Flags().StringVar(&runOverrides, "overrides", "", "YAML file mapping record IDs to per-record resolutions")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Analyze only, write nothing")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Output as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := domain.ValidateStrategy(runStrategy); err != nil {
		return err
	}
	strategy := domain.Strategy(runStrategy)

	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	farmID, err := resolveFarm(app.cfg, cmd)
	if err != nil {
		return err
	}

	records, err := readRecordsFile(args[0])
	if err != nil {
		return err
	}

	var overrides map[string]domain.Resolution
	if runOverrides != "" {
		if overrides, err = readOverridesFile(runOverrides); err != nil {
			return err
		}
	}

	if runDryRun {
		analysis, err := app.engine.Analyze(farmID, records, strategy)
		if err != nil {
			return err
		}
		if runJSON {
			return json.NewEncoder(os.Stdout).Encode(analysis)
		}
		fmt.Printf("valid: %d  invalid: %d  conflicts: %d\n",
			analysis.ValidCount, analysis.InvalidCount, analysis.ConflictCount)
		for _, rec := range analysis.Recommendations {
			fmt.Printf("conflict %s: would resolve as %s\n", rec.ExternalID, rec.Decision)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess, err := app.engine.Execute(ctx, farmID, records, strategy, overrides)
	if err != nil && sess == nil {
		return err
	}

	if runJSON {
		return json.NewEncoder(os.Stdout).Encode(sess)
	}
	printSession(sess)
	if err != nil {
		return err
	}
	if sess.Status == domain.SessionFailed {
		return fmt.Errorf("migration finished with %d failed record(s)", sess.FailedCount)
	}
	return nil
}

func printSession(sess *domain.MigrationSession) {
	fmt.Printf("session %s [%s]\n", sess.SessionID, sess.Status)
	fmt.Printf("  total: %d  migrated: %d  conflicted: %d  failed: %d  (%d%%)\n",
		sess.TotalRecords, sess.MigratedCount, sess.ConflictedCount, sess.FailedCount,
		sess.ProgressPercent())
	for _, recErr := range sess.Errors {
		fmt.Printf("  failed %s: %s\n", recErr.ExternalID, strings.TrimSpace(recErr.Message))
	}
}
