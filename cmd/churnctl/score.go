package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-churn/internal/artifact"
	"github.com/miradorstack/mirador-churn/internal/dataset"
	"github.com/miradorstack/mirador-churn/internal/models"
	"github.com/miradorstack/mirador-churn/internal/services"
)

func newScoreCmd(a *app) *cobra.Command {
	var (
		artifactPath string
		outPath      string
	)
	cmd := &cobra.Command{
		Use:   "score <customers.csv>",
		Short: "Score every row of a CSV export with a persisted artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if artifactPath == "" {
				artifactPath = a.cfg.Model.ArtifactPath
			}
			pipeline, err := artifact.Load(artifactPath, a.cfg.Model.Schema)
			if err != nil {
				return err
			}
			ds, err := dataset.LoadUnlabeledCSV(args[0], a.cfg.Model.Schema)
			if err != nil {
				return err
			}

			preds, err := services.NewPredictionService(a.logger, pipeline, nil).ScoreRecords(cmd.Context(), ds.Records)
			if err != nil {
				return err
			}

			if outPath == "" {
				return writeScores(cmd.OutOrStdout(), ds.IDs, preds)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			if err := writeScores(f, ds.IDs, preds); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "artifact path (default from config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write scores to this file instead of stdout")
	return cmd
}

func writeScores(w io.Writer, ids []string, preds []models.Prediction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"customerID", "prediction", "probability"}); err != nil {
		return err
	}
	for i, p := range preds {
		row := []string{ids[i], strconv.Itoa(p.Label), strconv.FormatFloat(p.Probability, 'f', 6, 64)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
