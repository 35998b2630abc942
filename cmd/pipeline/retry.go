package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// newRetryCommand resets one feature to open and re-queues it on its
// track, the CLI-facing twin of Orchestrator.RetryFeature — reached over
// the admin API rather than in-process, since retry is issued against an
// already-running serve.
func newRetryCommand() *cobra.Command {
	var adminAddr, note string

	cmd := &cobra.Command{
		Use:   "retry <feature-id>",
		Short: "Retry a failed feature",
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
			if err := client.postJSON(ctx, "/v1/features/retry", featureActionRequest{ID: id, Note: note}, nil); err != nil {
				return err
			}
			fmt.Printf("feature %d queued for retry\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin API base URL (default from config)")
	cmd.Flags().StringVar(&note, "note", "", "operator note appended to the retry context")
	return cmd
}
