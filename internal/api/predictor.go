package api

import (
	"context"

	"github.com/miradorstack/mirador-churn/internal/models"
)

// Predictor is the scoring surface shared by the HTTP and gRPC transports.
// *services.PredictionService implements it.
type Predictor interface {
	Ready() bool
	LoadError() error
	PredictFields(ctx context.Context, fields map[string]any) (models.Prediction, error)
	PredictBatch(ctx context.Context, batch []map[string]any) ([]models.Prediction, error)
	ModelInfo() (models.ModelInfo, error)
}
