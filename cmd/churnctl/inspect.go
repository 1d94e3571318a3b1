package main

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-churn/internal/artifact"
	"github.com/miradorstack/mirador-churn/internal/models"
	"github.com/miradorstack/mirador-churn/internal/services"
)

type featureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

type inspection struct {
	models.ModelInfo
	Intercept  float64         `json:"intercept"`
	TopWeights []featureWeight `json:"top_weights"`
}

func newInspectCmd(a *app) *cobra.Command {
	var (
		artifactPath string
		top          int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print metadata and the strongest coefficients of a persisted artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if artifactPath == "" {
				artifactPath = a.cfg.Model.ArtifactPath
			}
			pipeline, err := artifact.Read(artifactPath)
			if err != nil {
				return err
			}

			weights, intercept := pipeline.Coefficients()
			names := pipeline.FeatureNames()
			ranked := make([]featureWeight, len(weights))
			for i, w := range weights {
				ranked[i] = featureWeight{Feature: names[i], Weight: w}
			}
			sort.SliceStable(ranked, func(i, j int) bool {
				return math.Abs(ranked[i].Weight) > math.Abs(ranked[j].Weight)
			})
			if top > 0 && top < len(ranked) {
				ranked = ranked[:top]
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(inspection{
				ModelInfo:  services.DescribePipeline(pipeline),
				Intercept:  intercept,
				TopWeights: ranked,
			})
		},
	}
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "artifact path (default from config)")
	cmd.Flags().IntVar(&top, "top", 10, "number of coefficients to show, 0 for all")
	return cmd
}
