package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cinepay/internal/api"
	"cinepay/internal/config"
)

func webhookCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Webhook pipeline tools",
	}
	cmd.AddCommand(webhookSelfTestCmd(cfg), webhookReplayCmd(cfg))
	return cmd
}

func webhookSelfTestCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "self-test",
		Short: "Push a signed test event through the full webhook pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := api.NewStack(cfg)
			if err != nil {
				return err
			}
			defer stack.Close()

			res := stack.Reconciler.TestWebhookConnection(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Err != nil {
				return fmt.Errorf("webhook self-test failed: %w", res.Err)
			}
			return nil
		},
	}
}

func webhookReplayCmd(cfg *config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Retry failed deliveries still below the attempt cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := api.NewStack(cfg)
			if err != nil {
				return err
			}
			defer stack.Close()

			recovered, err := stack.Reconciler.ReplayFailed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d deliveries\n", recovered)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum deliveries to retry")
	return cmd
}
