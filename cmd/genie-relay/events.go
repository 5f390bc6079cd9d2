package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	natsclient "github.com/capitalize-ai/genie-relay/internal/nats"
)

func newEventsCommand() *cobra.Command {
	var (
		after uint64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print recent relay events from the NATS stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.NATSURL == "" {
				return errors.New("NATS_URL is not set")
			}
			if limit < 1 || limit > 1000 {
				return errors.Errorf("limit must be between 1 and 1000, got %d", limit)
			}

			ctx := cmd.Context()
			client, err := connectNATS(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer client.Close()

			events, last, more, err := natsclient.NewStreamManager(client).RecentEvents(ctx, after, limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for i := range events {
				if err := enc.Encode(&events[i]); err != nil {
					return errors.Wrap(err, "encode event")
				}
			}
			if more {
				fmt.Fprintf(cmd.ErrOrStderr(), "more events follow; rerun with --after %d\n", last)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "only events after this stream sequence")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	return cmd
}
