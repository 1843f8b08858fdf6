package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/recall/pkg/observe"
)

var observeTag string

var observeCmd = &cobra.Command{
	Use:   "observe <text>",
	Short: "Record a structured observation",
	Long: `Append an observation to the log and index it immediately.
Tags: ` + strings.Join(observe.Tags, ", ") + `.`,
	Args: cobra.ExactArgs(1),
	RunE: runObserve,
}

func init() {
	observeCmd.Flags().StringVarP(&observeTag, "tag", "t", observe.TagInsight, "observation tag")
	rootCmd.AddCommand(observeCmd)
}

func runObserve(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	entry, err := app.recorder.Record(args[0], observeTag)
	if err != nil {
		return err
	}
	printf("Recorded: %s\n", entry)

	id, err := app.indexer.IndexObservation(cmd.Context(), args[0], observeTag)
	if err != nil {
		return err
	}
	printf("Indexed as: %s\n", id)
	return nil
}
