package api

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/miradorstack/mirador-churn/internal/engine"
	"github.com/miradorstack/mirador-churn/internal/features"
	"github.com/miradorstack/mirador-churn/internal/models"
	"github.com/miradorstack/mirador-churn/internal/schema"
	"github.com/miradorstack/mirador-churn/internal/services"
	"github.com/miradorstack/mirador-churn/internal/testutil"
	"github.com/miradorstack/mirador-churn/internal/utils"
)

var (
	pipelineOnce sync.Once
	pipeline     *engine.Pipeline
	pipelineErr  error
)

func readyService(t *testing.T) *services.PredictionService {
	t.Helper()
	pipelineOnce.Do(func() {
		records, labels := testutil.Dataset(400, 21)
		var result *engine.FitResult
		result, pipelineErr = engine.NewTrainer(nil, schema.Default(), engine.DefaultTrainOptions()).Fit(context.Background(), records, labels)
		if pipelineErr == nil {
			pipeline = result.Pipeline
		}
	})
	if pipelineErr != nil {
		t.Fatalf("fit: %v", pipelineErr)
	}
	return services.NewPredictionService(nil, pipeline, nil)
}

func degradedService() *services.PredictionService {
	return services.NewPredictionService(nil, nil, errors.New("artifact not found"))
}

// customerJSON renders a synthetic customer with typed JSON values.
func customerJSON(r features.Record) map[string]any {
	m := make(map[string]any, len(r))
	for k, v := range r {
		m[k] = v
	}
	m["tenure"] = mustNumber(r["tenure"])
	m["SeniorCitizen"] = mustNumber(r["SeniorCitizen"])
	m["MonthlyCharges"] = mustNumber(r["MonthlyCharges"])
	if v, ok := features.ParseNumeric(r["TotalCharges"]); ok {
		m["TotalCharges"] = v
	} else {
		delete(m, "TotalCharges")
	}
	return m
}

func mustNumber(raw string) float64 {
	v, _ := features.ParseNumeric(raw)
	return v
}

type failingPredictor struct{}

func (failingPredictor) Ready() bool      { return true }
func (failingPredictor) LoadError() error { return nil }

func (failingPredictor) PredictFields(ctx context.Context, fields map[string]any) (models.Prediction, error) {
	return models.Prediction{}, utils.NewAppError("Predict", utils.KindInternal, "An error occurred during prediction", errors.New("matrix exploded"))
}

func (failingPredictor) PredictBatch(ctx context.Context, batch []map[string]any) ([]models.Prediction, error) {
	return nil, utils.NewAppError("PredictBatch", utils.KindInternal, "An error occurred during prediction", errors.New("matrix exploded"))
}

func (failingPredictor) ModelInfo() (models.ModelInfo, error) {
	return models.ModelInfo{ModelID: "broken"}, nil
}
