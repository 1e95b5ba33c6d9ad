package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "billsync",
	Short: "Diet bill data integration and quality pipeline",
	Long:  "Merges per-chamber scraped bill records into canonical bills, audits data quality, plans and executes remediation, and serves the result read-only.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
