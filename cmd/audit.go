package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	auditSession int
	auditExport  string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Scan stored bills for data-quality issues",
	Long:  "Runs all quality checks over the stored corpus and prints a summary. The full issue list can be exported as JSON. The audit never modifies the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := newAuditor(st).Run(ctx, auditSession)
		if err != nil {
			return eris.Wrap(err, "audit")
		}

		fmt.Printf("Bills audited:   %d\n", report.Totals.BillsAudited)
		fmt.Printf("Issues found:    %d\n", report.Totals.IssuesFound)
		fmt.Printf("Average quality: %.2f\n", report.Totals.AverageQuality)
		for t, n := range report.ByType {
			fmt.Printf("  %-32s %d\n", t, n)
		}

		if auditExport != "" {
			if err := exportJSON(auditExport, report); err != nil {
				return err
			}
			zap.L().Info("audit report exported", zap.String("path", auditExport))
		}
		return nil
	},
}

// exportJSON writes v as indented JSON, creating parent directories.
func exportJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "create export dir")
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal export")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "write export")
	}
	return nil
}

func init() {
	auditCmd.Flags().IntVar(&auditSession, "session", 0, "limit the audit to one Diet session")
	auditCmd.Flags().StringVar(&auditExport, "export", "", "write the full report to this JSON file")
	rootCmd.AddCommand(auditCmd)
}
