package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/recall/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run recall in long-running mode",
	Long: `Run the scheduled capture, archive, and incremental index
passes, and watch the memory directories for changes. Stops cleanly on
SIGINT or SIGTERM.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := daemon.New(app.cfg, app.indexer, app.capturer, app.archiver, app.log.Zerolog())
	return d.Start(ctx)
}
