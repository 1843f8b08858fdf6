package cli

import (
	"github.com/spf13/cobra"

	"github.com/harun/recall/internal/config"
	"github.com/harun/recall/pkg/observe"
)

var (
	captureSince  string
	captureFile   string
	captureDryRun bool
	captureRoute  bool
	captureRaw    bool
)

var captureCmd = &cobra.Command{
	Use:   "auto-capture",
	Short: "Extract observations from recent session transcripts",
	Long: `Scan session JSONL transcripts and extract observations with
rule-based patterns. No model call is involved. Already-captured
observations are skipped via a persistent dedup state.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&captureSince, "since", "", "time window, e.g. 3h, 24h, 7d (default from config)")
	captureCmd.Flags().StringVar(&captureFile, "file", "", "scan a specific transcript file")
	captureCmd.Flags().BoolVar(&captureDryRun, "dry-run", false, "show what would be recorded without writing")
	captureCmd.Flags().BoolVar(&captureRoute, "route-to-brain", false, "route observations into per-project files")
	captureCmd.Flags().BoolVarP(&captureRaw, "raw", "r", false, "human-readable output instead of JSON")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	capturer := app.capturer
	if captureRoute {
		capturer = capturer.WithRouter(app.router)
	}

	windowSpec := captureSince
	if windowSpec == "" {
		windowSpec = app.cfg.Capture.Since
	}
	window, err := config.ParseSince(windowSpec)
	if err != nil {
		return err
	}

	var result *observe.Result
	if captureFile != "" {
		result, err = capturer.RunFile(cmd.Context(), captureFile, captureDryRun)
	} else {
		result, err = capturer.Run(cmd.Context(), window, captureDryRun)
	}
	if err != nil {
		return err
	}

	if captureRaw {
		printCaptureRaw(result)
		return nil
	}
	return printJSON(result)
}

func printCaptureRaw(result *observe.Result) {
	printf("Scanned %d session file(s), found %d observation(s)\n",
		result.ScannedFiles, result.Found)
	if len(result.Recorded) == 0 {
		printf("No new observations to record.\n")
		return
	}
	if result.DryRun {
		printf("(dry run) Would record:\n")
	} else {
		printf("Recording:\n")
	}
	for _, obs := range result.Recorded {
		printf("  [%s] %s\n", obs.Tag, obs.Text)
	}
	if len(result.Routed) > 0 {
		printf("Routed %d to project files.\n", len(result.Routed))
	}
}
