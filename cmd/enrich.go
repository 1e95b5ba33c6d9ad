package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/enrich"
	"github.com/diet-tracker/billsync/pkg/anthropic"
)

var enrichLimit int

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Classify uncategorized bills with the Anthropic API",
	Long:  "Assigns a policy category and issue tags to stored bills that have none. Requires BILLSYNC_ENRICH_API_KEY.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Enrich.APIKey == "" {
			return eris.New("enrich requires an API key (BILLSYNC_ENRICH_API_KEY)")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		enricher := enrich.New(st, anthropic.NewClient(cfg.Enrich.APIKey), cfg.Enrich)
		result, err := enricher.Run(ctx, enrichLimit)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}

		zap.L().Info("enrichment finished",
			zap.Int("candidates", result.Candidates),
			zap.Int("enriched", result.Enriched),
			zap.Int("failed", result.Failed))
		return nil
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "classify at most this many bills (0 = all)")
	rootCmd.AddCommand(enrichCmd)
}
