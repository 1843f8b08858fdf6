package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	checkFix bool
	checkDir string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check project files for injection patterns",
	Long: `Scan memory/projects/*.md for prompt injection patterns and
report PASS/WARN per file. With --fix, flagged content is replaced by
the filter marker and the files are re-scanned.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkFix, "fix", false, "auto-remove detected injection patterns")
	checkCmd.Flags().StringVar(&checkDir, "dir", "", "directory to scan (default from config)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	checker := app.checker
	if checkDir != "" {
		checker = app.checkerFor(checkDir)
	}

	if checkFix {
		results, err := checker.FixAll()
		if err != nil {
			return err
		}
		for _, r := range results {
			printf("FIXED %s: %d line(s), %d pattern(s) removed\n",
				filepath.Base(r.Path), r.Lines, r.Patterns)
		}
	}

	reports, err := checker.ScanAll()
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		printf("No project files found to check.\n")
		return nil
	}

	passed, warned := 0, 0
	for _, report := range reports {
		name := filepath.Base(report.Path)
		if report.Passed() {
			passed++
			printf("PASS  %s\n", name)
			continue
		}
		warned++
		printf("WARN  %s (%d issue(s))\n", name, len(report.Findings))
		for _, f := range report.Findings {
			printf("  L%d: %s\n", f.Line, f.Text)
			for _, p := range f.Patterns {
				printf("    pattern: %s\n", p)
			}
		}
	}
	printf("\n%d passed, %d warned\n", passed, warned)

	if warned > 0 {
		return fmt.Errorf("%d file(s) contain injection patterns", warned)
	}
	return nil
}
