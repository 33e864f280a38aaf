package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/farmkonnect/taskmigrate/internal/domain"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <records.json>",
	Short: "Preview a batch without writing anything",
	Long: `Validate a batch of incoming records against the canonical store.

Reports which records are structurally invalid (and why), and which valid
records conflict with existing canonical records, including a field-level
diff. Read-only: no record is written.

Examples:
  taskmigrate validate legacy-tasks.json --farm farm-1
  taskmigrate validate legacy-tasks.json --farm farm-1 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var validateJSON bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
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

	report, err := app.engine.ValidateRecords(farmID, records)
	if err != nil {
		return err
	}

	if validateJSON {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	fmt.Printf("valid: %d  invalid: %d  conflicts: %d\n",
		len(report.Valid), len(report.Invalid), len(report.Conflicts))

	for _, verr := range report.Invalid {
		fmt.Printf("invalid %s: %s\n", verr.ExternalID, strings.Join(verr.Reasons, "; "))
	}

	for i := range report.Conflicts {
		printConflict(&report.Conflicts[i])
	}

	return nil
}

// printConflict renders one conflict: short fields inline, the description
// as a unified diff since it is the only free-text field worth reading
// line by line.
func printConflict(conflict *domain.Conflict) {
	if len(conflict.Diffs) == 0 {
		fmt.Printf("conflict %s: exists, identical\n", conflict.ExternalID)
		return
	}

	fmt.Printf("conflict %s:\n", conflict.ExternalID)
	for _, diff := range conflict.Diffs {
		if diff.Field == "description" {
			fmt.Print(renderDescriptionDiff(conflict.ExternalID, diff))
			continue
		}
		fmt.Printf("  %s: %q -> %q\n", diff.Field, diff.Canonical, diff.Incoming)
	}
}

func renderDescriptionDiff(externalID string, diff domain.FieldDiff) string {
	unified := difflib.UnifiedDiff{
		A:        difflib.SplitLines(diff.Canonical),
		B:        difflib.SplitLines(diff.Incoming),
		FromFile: externalID + " (canonical)",
		ToFile:   externalID + " (incoming)",
		Context:  3,
	}

	text, err := difflib.GetUnifiedDiffString(unified)
	if err != nil || text == "" {
		return fmt.Sprintf("  description: %q -> %q\n", diff.Canonical, diff.Incoming)
	}

	var out strings.Builder
	for _, line := range strings.SplitAfter(strings.TrimRight(text, "\n"), "\n") {
		out.WriteString("  ")
		out.WriteString(line)
	}
	out.WriteString("\n")
	return out.String()
}
