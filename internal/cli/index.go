package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/recall/pkg/index"
)

var (
	indexAll bool
	indexRaw bool
)

var indexCmd = &cobra.Command{
	Use:   "index [file]",
	Short: "Index memory files into the vector store",
	Long: `Index markdown files from memory/ and memory/archive/.
The default pass is incremental: only files whose content hash changed
since the last run are re-embedded. Pass a file path to index just that
file, or --all to force a full pass.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexAll, "all", false, "force re-index of every file")
	indexCmd.Flags().BoolVarP(&indexRaw, "raw", "r", false, "human-readable output instead of JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if len(args) == 1 {
		fr, err := app.indexer.IndexFile(cmd.Context(), app.cfg.AbsPath(args[0]), true)
		if err != nil {
			return err
		}
		if indexRaw {
			printf("%s: %s (%d chunks)\n", fr.Path, fr.Status, fr.Chunks)
			return nil
		}
		return printJSON(fr)
	}

	var result *index.Result
	if indexAll {
		result, err = app.indexer.IndexAll(cmd.Context())
	} else {
		result, err = app.indexer.IndexChanged(cmd.Context())
	}
	if err != nil {
		return err
	}

	if indexRaw {
		for _, fr := range result.Files {
			line := fmt.Sprintf("  %s: %s", fr.Path, fr.Status)
			if fr.Chunks > 0 {
				line += fmt.Sprintf(" (%d chunks)", fr.Chunks)
			}
			if fr.Error != "" {
				line += " " + fr.Error
			}
			printf("%s\n", line)
		}
		printf("\nindexed %d, skipped %d, failed %d, %d chunks\n",
			result.Indexed, result.Skipped, result.Failed, result.Chunks)
		return nil
	}
	return printJSON(result)
}
