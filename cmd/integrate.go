package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/integrate"
	"github.com/diet-tracker/billsync/internal/merge"
)

var integrateSession int

var integrateCmd = &cobra.Command{
	Use:   "integrate",
	Short: "Fetch, merge, and store one session's bills from both chambers",
	Long:  "Pulls the session's bill records from both chamber feeds, merges them into canonical bills with priority-based conflict resolution, validates, and upserts into the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		prio, err := merge.LoadPriority(cfg.Merge.PriorityFile)
		if err != nil {
			return eris.Wrap(err, "load priority table")
		}

		mgr := integrate.NewManager(st, newScraper(), prio, cfg.Integration)
		result, err := mgr.Integrate(ctx, integrateSession)
		if err != nil {
			return eris.Wrap(err, "integrate")
		}

		zap.L().Info("integration finished",
			zap.Int("session", result.Session),
			zap.Int("processed", result.BillsProcessed),
			zap.Int("created", result.BillsCreated),
			zap.Int("updated", result.BillsUpdated),
			zap.Int("conflicts", result.ConflictsDetected),
			zap.Int("errors", len(result.Errors)))
		for _, e := range result.Errors {
			zap.L().Warn("bill failed",
				zap.String("bill_number", e.Identity.BillNumber),
				zap.String("phase", e.Phase),
				zap.String("error", e.Message))
		}
		return nil
	},
}

func init() {
	integrateCmd.Flags().IntVar(&integrateSession, "session", 0, "Diet session number (required)")
	_ = integrateCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(integrateCmd)
}
