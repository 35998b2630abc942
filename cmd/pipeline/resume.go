package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// newResumeCommand behaves like retry but installs a global resume
// request, the CLI-facing twin of Orchestrator.ResumeFeature.
func newResumeCommand() *cobra.Command {
	var adminAddr, note string

	cmd := &cobra.Command{
		Use:   "resume <feature-id>",
		Short: "Resume a stalled feature, blocking other tracks until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid feature id %q: %w", args[0], err)
			}
			addr, err := resolveAdminAddr(adminAddr)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client := newAdminClient(addr)
			if err := client.postJSON(ctx, "/v1/features/resume", featureActionRequest{ID: id, Note: note}, nil); err != nil {
				return err
			}
			fmt.Printf("feature %d queued for resume\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin API base URL (default from config)")
	cmd.Flags().StringVar(&note, "note", "", "operator note appended to the resume context")
	return cmd
}
