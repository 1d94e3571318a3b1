package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-churn/internal/classifier"
	"github.com/miradorstack/mirador-churn/internal/engine"
	"github.com/miradorstack/mirador-churn/internal/runlog"
	"github.com/miradorstack/mirador-churn/internal/services"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		dataPath     string
		artifactPath string
		noRecord     bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit a pipeline on a labeled CSV export and persist it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataPath == "" {
				dataPath = a.cfg.Training.DataPath
			}
			if artifactPath == "" {
				artifactPath = a.cfg.Model.ArtifactPath
			}

			var recorder services.RunRecorder
			if !noRecord && a.cfg.Training.RunsDB != "" {
				store, err := runlog.Open(a.cfg.Training.RunsDB)
				if err != nil {
					a.logger.Warn("run ledger unavailable", slog.String("path", a.cfg.Training.RunsDB), slog.Any("error", err))
				} else {
					defer store.Close()
					recorder = store
				}
			}

			opts := engine.TrainOptions{
				TestRatio: a.cfg.Training.TestRatio,
				Seed:      a.cfg.Training.Seed,
				Classifier: classifier.Options{
					C:         a.cfg.Training.C,
					MaxIter:   a.cfg.Training.MaxIter,
					Tolerance: a.cfg.Training.Tolerance,
				},
			}
			svc := services.NewTrainingService(a.logger, a.cfg.Model.Schema, recorder)
			result, err := svc.Run(cmd.Context(), services.TrainRequest{
				DataPath:     dataPath,
				ArtifactPath: artifactPath,
				Options:      opts,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model accuracy: %.4f\n", result.Run.Report.Accuracy)
			fmt.Fprintf(out, "Model saved to %s (model id %s)\n", artifactPath, result.Run.ModelID)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "labeled CSV export (default from config)")
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "artifact output path (default from config)")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not write the run to the run ledger")
	return cmd
}
