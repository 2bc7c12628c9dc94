package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cinepay/internal/config"
	"cinepay/internal/logger"
)

var Version = "dev"

func main() {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:           "cinepay",
		Short:         "CinePay - cinema ticket checkout and payment reconciliation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(cfg.LogLevel, "text")
		},
	}

	rootCmd.AddCommand(checkoutCmd(cfg))
	rootCmd.AddCommand(gatewayCmd(cfg))
	rootCmd.AddCommand(webhookCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
