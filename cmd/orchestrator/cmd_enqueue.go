package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/outreach-orchestrator/internal/trigger"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <campaign-id>",
	Short: "Publish an execution request to the SQS trigger queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.campaigns.Get(ctx, args[0]); err != nil {
			return fmt.Errorf("campaign %s: %w", args[0], err)
		}
		client, err := a.sqsClient(ctx)
		if err != nil {
			return err
		}
		id, err := trigger.NewPublisher(client, cfg.SQS.QueueURL).Publish(ctx, args[0], "cli")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued campaign %s (message %s)\n", args[0], id)
		return nil
	},
}
