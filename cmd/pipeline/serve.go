package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newServeCommand builds the long-running daemon: it loads the project
// configuration, wires every collaborator, and blocks until SIGINT/SIGTERM,
// the same shutdown shape as the teacher's cmd/orchestrator/main.go.
func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator, agent executor, and ancillary services",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			a, err := buildApp(settings)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.startAncillary(ctx)

			if err := a.sched.Start(ctx); err != nil {
				return fmt.Errorf("orchestrator stopped: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolP("verbose", "v", false, "enable verbose/debug logging")
	cmd.Flags().Int("metrics_port", 0, "override the metrics server port")
	cmd.Flags().Int("admin_port", 0, "override the admin API port")
	return cmd
}
