package main

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/diet-tracker/billsync/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored bill counts by stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.CountByStage(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		stages := make([]string, 0, len(counts))
		total := 0
		for stage, n := range counts {
			stages = append(stages, string(stage))
			total += n
		}
		sort.Strings(stages)

		for _, stage := range stages {
			fmt.Printf("  %-28s %d\n", stage, counts[model.Stage(stage)])
		}
		fmt.Printf("  %-28s %d\n", "total", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
