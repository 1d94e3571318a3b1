package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-churn/internal/runlog"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runlog.Open(a.cfg.Training.RunsDB)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tMODEL\tROWS\tACCURACY\tF1\tCONVERGED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%.4f\t%.4f\t%t\n",
					r.StartedAt.Local().Format(time.DateTime), r.ModelID,
					r.TrainRows, r.HoldOutRows, r.Report.Accuracy, r.Report.F1, r.Converged)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show, 0 for all")
	return cmd
}
