package cli

import (
	"github.com/spf13/cobra"

	"github.com/harun/recall/pkg/archive"
)

var (
	archiveExecute bool
	archiveReindex bool
	archiveDays    int
	archiveRaw     bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move aging memory files to the cold tier",
	Long: `Move warm-tier files older than the configured threshold into
memory/archive/. Archived chunks keep their ids and embeddings; only
their metadata is rewritten, so nothing is re-embedded. Default is a
dry run; pass --execute to move files.`,
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().BoolVar(&archiveExecute, "execute", false, "actually move files (default is dry-run)")
	archiveCmd.Flags().BoolVar(&archiveReindex, "reindex", false, "force re-index of the archive directory")
	archiveCmd.Flags().IntVar(&archiveDays, "days", 0, "age threshold override in days")
	archiveCmd.Flags().BoolVarP(&archiveRaw, "raw", "r", false, "human-readable output instead of JSON")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	archiver := app.archiver
	if archiveDays > 0 {
		archiver = archive.NewManager(app.store, app.prints, app.indexer, archive.Options{
			WorkspaceRoot: app.cfg.WorkspaceRoot,
			MemoryDir:     app.cfg.MemoryDir(),
			ArchiveDir:    app.cfg.ArchiveDir(),
			AfterDays:     archiveDays,
		}, app.log.Zerolog())
	}

	if archiveReindex {
		results, err := archiver.Reindex(cmd.Context())
		if err != nil {
			return err
		}
		if archiveRaw {
			for _, fr := range results {
				printf("  %s: %s (%d chunks)\n", fr.Path, fr.Status, fr.Chunks)
			}
			return nil
		}
		return printJSON(results)
	}

	result, err := archiver.Run(cmd.Context(), archiveExecute)
	if err != nil {
		return err
	}

	if archiveRaw {
		if len(result.Candidates) == 0 {
			printf("No files old enough to archive.\n")
			return nil
		}
		printf("Found %d file(s) to archive:\n", len(result.Candidates))
		for _, name := range result.Candidates {
			printf("  %s\n", name)
		}
		for _, name := range result.Skipped {
			printf("  SKIP (exists in archive): %s\n", name)
		}
		for _, name := range result.Failed {
			printf("  FAIL: %s\n", name)
		}
		if result.DryRun {
			printf("\nDry run. Use --execute to actually move files.\n")
		} else {
			printf("\nMoved %d file(s).\n", len(result.Moved))
			if len(result.Failed) > 0 {
				printf("%d file(s) failed to move.\n", len(result.Failed))
			}
		}
		return nil
	}
	return printJSON(result)
}
