package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harun/recall/internal/config"
)

const coreTemplate = `# Core Memory

## Key Decisions

## Lessons Learned
`

const observationsTemplate = "# Observations\n\n"

var initNoIndex bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a recall workspace in the current directory",
	Long: `Create the standard memory layout (memory/, memory/core.md,
memory/projects/, memory/observations.md), write .recall.json, and run
the first index pass.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initNoIndex, "no-index", false, "skip the first index pass")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	printf("Initializing recall workspace in %s\n\n", root)

	dirs := []string{
		filepath.Join(root, "memory"),
		filepath.Join(root, "memory", "projects"),
		filepath.Join(root, "memory", "archive"),
	}
	for _, dir := range dirs {
		if err := ensureDir(root, dir); err != nil {
			return err
		}
	}

	files := []struct {
		path    string
		content string
	}{
		{filepath.Join(root, "memory", "core.md"), coreTemplate},
		{filepath.Join(root, "memory", "observations.md"), observationsTemplate},
	}
	for _, f := range files {
		if err := ensureFile(root, f.path, f.content); err != nil {
			return err
		}
	}

	configPath := filepath.Join(root, config.ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		cfg.WorkspaceRoot = root
		if err := config.Save(cfg, configPath); err != nil {
			return err
		}
		printf("  created  %s\n", config.ConfigFileName)
	} else if err == nil {
		printf("  exists   %s\n", config.ConfigFileName)
	} else {
		return err
	}

	if !initNoIndex {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		result, err := app.indexer.IndexAll(cmd.Context())
		if err != nil {
			return err
		}
		printf("\nIndexed %d file(s), %d chunk(s).\n", result.Indexed, result.Chunks)
	}

	printf("\nWorkspace ready.\n")
	return nil
}

func ensureDir(root, dir string) error {
	rel, _ := filepath.Rel(root, dir)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		printf("  exists   %s/\n", rel)
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", rel, err)
	}
	printf("  created  %s/\n", rel)
	return nil
}

func ensureFile(root, path, content string) error {
	rel, _ := filepath.Rel(root, path)
	if _, err := os.Stat(path); err == nil {
		printf("  exists   %s\n", rel)
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", rel, err)
	}
	printf("  created  %s\n", rel)
	return nil
}
