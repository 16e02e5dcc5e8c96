package main

import (
	"github.com/spf13/cobra"

	"github.com/ignite/outreach-orchestrator/internal/trigger"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Execute campaigns requested on the SQS trigger queue",
	Long: `Long-polls the trigger queue and runs each requested campaign.

Messages are deleted once their run ends, except runs that failed with a
retryable error, which are made visible again for another attempt.`,
	Args: cobra.NoArgs,
	RunE: runConsume,
}

func runConsume(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(ctx)
	if err != nil {
		return err
	}
	client, err := a.sqsClient(ctx)
	if err != nil {
		return err
	}

	consumer := trigger.NewConsumer(client, cfg.SQS.QueueURL, runner, trigger.ConsumerOptions{
		WaitTimeSeconds:   cfg.SQS.WaitTimeSeconds,
		MaxMessages:       cfg.SQS.MaxMessages,
		VisibilityTimeout: cfg.SQS.VisibilityTimeoutSec,
	})
	return consumer.Run(ctx)
}
