package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pipeline/internal/model"
)

// newConfigureTracksCommand sends a track layout to a serve process that
// is waiting in the setup state; the orchestrator rejects it in any other
// state. Tracks are supplied as a JSON array, either inline via
// --tracks or piped over stdin — a plain data payload, not an interactive
// wizard, since configure-tracks is meant to be scriptable the same way
// the teacher's own orchestrator flags are.
func newConfigureTracksCommand() *cobra.Command {
	var adminAddr, tracksJSON string

	cmd := &cobra.Command{
		Use:   "configure-tracks",
		Short: "Supply track definitions to an orchestrator awaiting setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := []byte(tracksJSON)
			if tracksJSON == "" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read tracks from stdin: %w", err)
				}
				raw = data
			}

			var tracks []model.TrackDefinition
			if err := json.Unmarshal(raw, &tracks); err != nil {
				return fmt.Errorf("decode tracks json: %w", err)
			}

			addr, err := resolveAdminAddr(adminAddr)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client := newAdminClient(addr)
			var snap struct {
				Tracks []model.TrackDefinition `json:"Tracks"`
			}
			if err := client.postJSON(ctx, "/v1/tracks", configureTracksRequest{Tracks: tracks}, &snap); err != nil {
				return err
			}
			fmt.Printf("configured %d track(s)\n", len(tracks))
			return nil
		},
	}
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin API base URL (default from config)")
	cmd.Flags().StringVar(&tracksJSON, "tracks", "", "inline JSON array of track definitions (reads stdin if omitted)")
	return cmd
}
