package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pipeline/internal/eventbus"
	"pipeline/internal/model"
	"pipeline/internal/ui"
)

// newStatusCommand builds a slimmed read-only status view over the admin
// API, replacing the teacher's local-callback dashboard with one that
// polls a possibly-remote serve process instead of in-process state.
func newStatusCommand() *cobra.Command {
	var adminAddr string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Watch the running orchestrator's track status",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := resolveAdminAddr(adminAddr)
			if err != nil {
				return err
			}
			client := newAdminClient(addr)

			fetch := func() (model.OrchestratorState, []model.TrackRuntimeStatus, error) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				var snap eventbus.StatusSnapshot
				if err := client.get(ctx, "/v1/status", &snap); err != nil {
					return "", nil, err
				}
				return snap.State, snap.Tracks, nil
			}

			program := tea.NewProgram(ui.NewStatusBoardModel(fetch, interval))
			_, err = program.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin API base URL (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}

// resolveAdminAddr falls back to the project configuration's admin_addr
// when the command wasn't given an explicit --admin-addr.
func resolveAdminAddr(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	settings, err := loadSettings(cfgFile, nil)
	if err != nil {
		return "", fmt.Errorf("resolve admin address: %w", err)
	}
	if settings.AdminAddr == "" {
		return "", fmt.Errorf("no admin address configured; pass --admin-addr")
	}
	return settings.AdminAddr, nil
}
