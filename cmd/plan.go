package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/migration"
)

var (
	planSession int
	planExport  string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Produce a remediation plan without executing it",
	Long:  "Runs the audit and planning phases of a migration as a dry run. Prints the planned actions; nothing is written to the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := migration.New(newAuditor(st), newProcessor(st), cfg.Migration)
		report, err := svc.Run(ctx, migration.Options{Session: planSession, DryRun: true})
		if err != nil {
			return eris.Wrap(err, "plan")
		}

		fmt.Printf("Planned actions: %d\n", len(report.Plan.Actions))
		for _, a := range report.Plan.Actions {
			fmt.Printf("  %-24s %-20s session %d  %s\n",
				a.Issue.Type, a.Strategy, a.Identity.DietSession, a.Identity.BillNumber)
		}

		if planExport != "" {
			if err := exportJSON(planExport, report); err != nil {
				return err
			}
			zap.L().Info("plan exported", zap.String("path", planExport))
		}
		return nil
	},
}

func init() {
	planCmd.Flags().IntVar(&planSession, "session", 0, "limit planning to one Diet session")
	planCmd.Flags().StringVar(&planExport, "export", "", "write the dry-run report to this JSON file")
	rootCmd.AddCommand(planCmd)
}
