package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cinepay/internal/config"
	"cinepay/internal/external"
	"cinepay/internal/models"
	"cinepay/internal/webhook"
)

func gatewayCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Payment processor diagnostics and administration",
	}

	cmd.AddCommand(
		gatewayPingCmd(cfg),
		gatewayInfoCmd(cfg),
		gatewayRegisterWebhookCmd(cfg),
		gatewayTransactionsCmd(cfg),
		gatewayStatusCmd(cfg),
		gatewayRefundCmd(cfg),
		gatewayValidateCardCmd(cfg),
	)
	return cmd
}

func gatewayPingCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the processor is reachable with the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := external.NewRapikomClient(cfg.Rapikom).TestConnection(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			if !status.Success {
				return fmt.Errorf("processor unreachable: %s", status.Error)
			}
			return nil
		},
	}
}

func gatewayInfoCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show merchant account and enabled payment methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := external.NewRapikomClient(cfg.Rapikom)
			merchant, err := client.MerchantInfo(cmd.Context())
			if err != nil {
				return err
			}
			methods, err := client.PaymentMethods(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"merchant":        merchant,
				"payment_methods": methods,
			})
		},
	}
}

func gatewayRegisterWebhookCmd(cfg *config.Config) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "register-webhook",
		Short: "Point processor payment events at this deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = strings.TrimRight(cfg.App.BaseURL, "/") + "/webhook/rapikom"
			}
			endpoint, err := external.NewRapikomClient(cfg.Rapikom).RegisterWebhook(cmd.Context(), external.WebhookRegistration{
				URL:    url,
				Events: webhook.SubscribedEvents,
				Secret: cfg.Webhook.Secret,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), endpoint)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Webhook URL (default APP_BASE_URL/webhook/rapikom)")
	return cmd
}

func gatewayTransactionsCmd(cfg *config.Config) *cobra.Command {
	var filter external.TransactionFilter
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List processor transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := external.NewRapikomClient(cfg.Rapikom).ListTransactions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum transactions")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Offset")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only transactions in this status")
	return cmd
}

func gatewayStatusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status <transaction-id>",
		Short: "Show one processor transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := external.NewRapikomClient(cfg.Rapikom).GetTransactionStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tx)
		},
	}
}

func gatewayRefundCmd(cfg *config.Config) *cobra.Command {
	var (
		amount float64
		reason string
	)
	cmd := &cobra.Command{
		Use:   "refund <transaction-id>",
		Short: "Refund a transaction, in full unless --amount is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var partial *models.Money
			if cmd.Flags().Changed("amount") {
				m := models.MoneyFromFloat(amount)
				partial = &m
			}
			refund, err := external.NewRapikomClient(cfg.Rapikom).Refund(cmd.Context(), args[0], partial, reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), refund)
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "Partial refund amount")
	cmd.Flags().StringVar(&reason, "reason", "", "Refund reason")
	return cmd
}

func gatewayValidateCardCmd(cfg *config.Config) *cobra.Command {
	var card external.Card
	cmd := &cobra.Command{
		Use:   "validate-card",
		Short: "Ask the processor whether a card is usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := external.NewRapikomClient(cfg.Rapikom).ValidateCard(cmd.Context(), card)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&card.Number, "card-number", "", "Card number")
	cmd.Flags().StringVar(&card.Expiry, "card-expiry", "", "Card expiry MM/YY")
	cmd.Flags().StringVar(&card.CVV, "card-cvv", "", "Card CVV")
	cmd.Flags().StringVar(&card.Name, "card-name", "", "Name on card")
	return cmd
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
