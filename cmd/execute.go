package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/migration"
	"github.com/diet-tracker/billsync/internal/model"
)

var (
	executeSession int
	executeYes     bool
	executeDryRun  bool
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run a full migration: audit, plan, remediate, re-audit",
	Long:  "Runs the five-phase migration. Without --yes or --dry-run it refuses to start, since execution writes remediated bills back to the store. The report is always exported.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !executeYes && !executeDryRun {
			return eris.New("execute mutates the store; pass --yes to confirm or --dry-run to preview")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := migration.New(newAuditor(st), newProcessor(st), cfg.Migration)
		report, runErr := svc.Run(ctx, migration.Options{Session: executeSession, DryRun: executeDryRun})

		// Export even a failed run's partial report.
		if report != nil {
			path, expErr := svc.Export(report)
			if expErr != nil {
				zap.L().Warn("report export failed", zap.Error(expErr))
			} else {
				zap.L().Info("migration report exported", zap.String("path", path))
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "execute")
		}

		if report.Before != nil && report.After != nil {
			fmt.Printf("Issues before: %d\n", report.Before.IssuesFound)
			fmt.Printf("Issues after:  %d\n", report.After.IssuesFound)
			fmt.Printf("Avg quality:   %.2f -> %.2f\n",
				report.Before.AverageQuality, report.After.AverageQuality)
		}
		succeeded, failed, skipped := 0, 0, 0
		for _, a := range report.Actions {
			switch a.Status {
			case model.ActionSuccess:
				succeeded++
			case model.ActionFailed:
				failed++
			default:
				skipped++
			}
		}
		fmt.Printf("Actions: %d succeeded, %d failed, %d skipped\n", succeeded, failed, skipped)
		return nil
	},
}

func init() {
	executeCmd.Flags().IntVar(&executeSession, "session", 0, "limit the migration to one Diet session")
	executeCmd.Flags().BoolVar(&executeYes, "yes", false, "confirm execution against the store")
	executeCmd.Flags().BoolVar(&executeDryRun, "dry-run", false, "stop after planning; write nothing")
	rootCmd.AddCommand(executeCmd)
}
