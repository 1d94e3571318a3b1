package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-churn/internal/artifact"
	"github.com/miradorstack/mirador-churn/internal/dataset"
	"github.com/miradorstack/mirador-churn/internal/engine"
	"github.com/miradorstack/mirador-churn/internal/evaluation"
	"github.com/miradorstack/mirador-churn/internal/models"
	"github.com/miradorstack/mirador-churn/internal/schema"
)

// RunRecorder persists completed training runs.
type RunRecorder interface {
	Record(ctx context.Context, run models.TrainingRun) error
}

// TrainRequest names the inputs and output of one training run.
type TrainRequest struct {
	DataPath     string
	ArtifactPath string
	Options      engine.TrainOptions
}

// TrainResult is the outcome of a successful run.
type TrainResult struct {
	Run      models.TrainingRun
	Pipeline *engine.Pipeline
}

// TrainingService runs the offline fit, evaluate and persist sequence.
type TrainingService struct {
	logger *slog.Logger
	schema schema.Schema
	runs   RunRecorder
	now    func() time.Time
}

// NewTrainingService constructs the service. runs may be nil.
func NewTrainingService(logger *slog.Logger, s schema.Schema, runs RunRecorder) *TrainingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainingService{logger: logger, schema: s.Clone(), runs: runs, now: time.Now}
}

// Run loads the labeled dataset, fits a pipeline on the train partition,
// reports held-out accuracy and persists the artifact. The artifact is saved
// regardless of the accuracy obtained.
func (s *TrainingService) Run(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	if req.DataPath == "" || req.ArtifactPath == "" {
		return nil, errors.New("train: data and artifact paths are required")
	}
	started := s.now().UTC()

	ds, err := dataset.LoadCSV(req.DataPath, s.schema)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	s.logger.Info("dataset loaded",
		slog.String("path", req.DataPath),
		slog.Int("rows", ds.Len()),
		slog.Int("churned", ds.Positives()),
	)

	fit, err := engine.NewTrainer(s.logger, s.schema, req.Options).Fit(ctx, ds.Records, ds.Labels)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	predicted, err := fit.Pipeline.Predict(fit.HoldOut.Records)
	if err != nil {
		return nil, fmt.Errorf("train: score holdout: %w", err)
	}
	report, err := evaluation.Evaluate(fit.HoldOut.Labels, predicted)
	if err != nil {
		return nil, fmt.Errorf("train: evaluate: %w", err)
	}
	s.logger.Info("model evaluated",
		slog.String("model_id", fit.Pipeline.Metadata().ModelID),
		slog.String("accuracy", fmt.Sprintf("%.4f", report.Accuracy)),
		slog.Float64("precision", report.Precision),
		slog.Float64("recall", report.Recall),
		slog.Float64("f1", report.F1),
	)

	if err := artifact.Save(fit.Pipeline, req.ArtifactPath); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	s.logger.Info("artifact saved", slog.String("path", req.ArtifactPath))

	run := models.TrainingRun{
		ID:           uuid.NewString(),
		ModelID:      fit.Pipeline.Metadata().ModelID,
		StartedAt:    started,
		FinishedAt:   s.now().UTC(),
		DatasetPath:  req.DataPath,
		ArtifactPath: req.ArtifactPath,
		TrainRows:    len(fit.Train.Records),
		HoldOutRows:  len(fit.HoldOut.Records),
		Converged:    fit.Info.Converged,
		Iterations:   fit.Info.Iterations,
		Report:       report,
	}
	if s.runs != nil {
		if err := s.runs.Record(ctx, run); err != nil {
			s.logger.Warn("training run not recorded", slog.String("run_id", run.ID), slog.Any("error", err))
		}
	}
	return &TrainResult{Run: run, Pipeline: fit.Pipeline}, nil
}
