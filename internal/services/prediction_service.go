package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-churn/internal/engine"
	"github.com/miradorstack/mirador-churn/internal/features"
	"github.com/miradorstack/mirador-churn/internal/metrics"
	"github.com/miradorstack/mirador-churn/internal/models"
	"github.com/miradorstack/mirador-churn/internal/utils"
)

// ModelUnavailableMessage is returned to clients when no pipeline is loaded.
const ModelUnavailableMessage = "Model is not available. Please check server logs."

// PredictionService scores customers with a pipeline loaded once at startup.
// It never loads or reloads the pipeline itself.
type PredictionService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	loadErr   error
	latencies *utils.LatencyTracker
}

// NewPredictionService wraps an already loaded pipeline. Pass a nil pipeline
// and the load error to run in degraded mode.
func NewPredictionService(logger *slog.Logger, pipeline *engine.Pipeline, loadErr error) *PredictionService {
	if logger == nil {
		logger = slog.Default()
	}
	if pipeline == nil && loadErr == nil {
		loadErr = errors.New("no pipeline configured")
	}
	metrics.SetModelAvailable(pipeline != nil)
	return &PredictionService{
		logger:    logger,
		pipeline:  pipeline,
		loadErr:   loadErr,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Ready reports whether predictions can be served.
func (s *PredictionService) Ready() bool {
	return s.pipeline != nil
}

// LoadError returns why the service is degraded, or nil.
func (s *PredictionService) LoadError() error {
	if s.pipeline != nil {
		return nil
	}
	return s.loadErr
}

// Predict scores one validated customer. A pipeline fitted on columns the
// Customer layout does not carry rejects it as invalid input.
func (s *PredictionService) Predict(ctx context.Context, c models.Customer) (models.Prediction, error) {
	var problems []models.FieldError
	for _, field := range s.inputFields() {
		if !models.IsCustomerField(field) {
			problems = append(problems, models.FieldError{Field: field, Message: "field required"})
		}
	}
	if len(problems) > 0 {
		metrics.ObservePrediction(0, metrics.OutcomeInvalid)
		return models.Prediction{}, utils.NewAppError("Predict", utils.KindInvalidInput, "invalid customer", &models.ValidationError{Fields: problems})
	}
	preds, err := s.score(ctx, "Predict", []features.Record{c.Record()})
	if err != nil {
		return models.Prediction{}, err
	}
	return preds[0], nil
}

// PredictFields validates a decoded request body against the loaded schema
// and scores it.
func (s *PredictionService) PredictFields(ctx context.Context, fields map[string]any) (models.Prediction, error) {
	r, err := models.RecordFromMap(fields, s.inputFields())
	if err != nil {
		metrics.ObservePrediction(0, metrics.OutcomeInvalid)
		return models.Prediction{}, utils.NewAppError("Predict", utils.KindInvalidInput, "invalid customer", err)
	}
	preds, err := s.score(ctx, "Predict", []features.Record{r})
	if err != nil {
		return models.Prediction{}, err
	}
	return preds[0], nil
}

// PredictBatch validates every element before scoring any of them. The whole
// batch is rejected when one element is invalid.
func (s *PredictionService) PredictBatch(ctx context.Context, batch []map[string]any) ([]models.Prediction, error) {
	inputs := s.inputFields()
	records := make([]features.Record, len(batch))
	for i, fields := range batch {
		r, err := models.RecordFromMap(fields, inputs)
		if err != nil {
			metrics.ObservePrediction(0, metrics.OutcomeInvalid)
			return nil, utils.NewAppError("PredictBatch", utils.KindInvalidInput, fmt.Sprintf("invalid customer at index %d", i), err)
		}
		records[i] = r
	}
	return s.score(ctx, "PredictBatch", records)
}

// inputFields is nil in degraded mode so requests are still checked against
// the Customer layout before the unavailable error.
func (s *PredictionService) inputFields() []string {
	if s.pipeline == nil {
		return nil
	}
	return s.pipeline.Schema().InputFields()
}

// ScoreRecords scores raw records, such as rows read from a CSV export.
func (s *PredictionService) ScoreRecords(ctx context.Context, records []features.Record) ([]models.Prediction, error) {
	return s.score(ctx, "ScoreRecords", records)
}

// ModelInfo describes the loaded pipeline.
func (s *PredictionService) ModelInfo() (models.ModelInfo, error) {
	if s.pipeline == nil {
		return models.ModelInfo{}, utils.NewAppError("ModelInfo", utils.KindUnavailable, ModelUnavailableMessage, s.loadErr)
	}
	return DescribePipeline(s.pipeline), nil
}

// LatencyP95 returns the current p95 prediction latency.
func (s *PredictionService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *PredictionService) score(ctx context.Context, op string, records []features.Record) ([]models.Prediction, error) {
	if s.pipeline == nil {
		metrics.ObservePrediction(0, metrics.OutcomeUnavailable)
		return nil, utils.NewAppError(op, utils.KindUnavailable, ModelUnavailableMessage, s.loadErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, utils.NewAppError(op, utils.KindInternal, "request cancelled", err)
	}

	start := time.Now()
	labels, err := s.pipeline.Predict(records)
	var proba []float64
	if err == nil {
		proba, err = s.pipeline.PredictProba(records)
	}
	duration := time.Since(start)
	if err != nil {
		metrics.ObservePrediction(duration, metrics.OutcomeError)
		s.logger.Error("prediction failed", slog.String("op", op), slog.Any("error", err))
		return nil, utils.NewAppError(op, utils.KindInternal, "An error occurred during prediction", err)
	}

	s.latencies.Observe(duration)
	metrics.ObservePrediction(duration, metrics.OutcomeSuccess)
	metrics.ObserveLabels(labels)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("prediction latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	modelID := s.pipeline.Metadata().ModelID
	out := make([]models.Prediction, len(labels))
	for i := range labels {
		out[i] = models.Prediction{Label: labels[i], Probability: proba[i], ModelID: modelID}
	}
	return out, nil
}

// DescribePipeline summarises a pipeline for operators.
func DescribePipeline(p *engine.Pipeline) models.ModelInfo {
	s := p.Schema()
	meta := p.Metadata()
	return models.ModelInfo{
		ModelID:           meta.ModelID,
		CreatedAt:         meta.CreatedAt,
		NumericalFields:   s.NumericalFields,
		CategoricalFields: s.CategoricalFields,
		FeatureCount:      len(p.FeatureNames()),
	}
}
