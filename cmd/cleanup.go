package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stale draft bills and old report artifacts",
	Long:  "Removes draft records (bills that failed validation) not updated within the given number of days, and prunes exported report files of the same age. Draft process history is removed by the cascading delete.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		deleted, err := st.DeleteDrafts(ctx, cleanupDays)
		if err != nil {
			return eris.Wrap(err, "cleanup")
		}

		pruned, err := pruneReports(cfg.Migration.ExportDir, cleanupDays)
		if err != nil {
			return eris.Wrap(err, "cleanup reports")
		}

		zap.L().Info("cleanup finished",
			zap.Int("drafts_deleted", deleted),
			zap.Int("reports_pruned", pruned),
			zap.Int("older_than_days", cleanupDays))
		return nil
	},
}

// pruneReports removes exported JSON reports older than the cutoff. A missing
// export directory is not an error.
func pruneReports(dir string, olderThanDays int) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	pruned := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "delete drafts not updated in this many days")
	rootCmd.AddCommand(cleanupCmd)
}
