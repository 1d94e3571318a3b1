package models

import (
	"time"

	"github.com/miradorstack/mirador-churn/internal/evaluation"
)

// Prediction is the scored outcome for one customer.
type Prediction struct {
	Label       int     `json:"prediction"`
	Probability float64 `json:"probability"`
	ModelID     string  `json:"model_id"`
}

// ModelInfo summarises the loaded pipeline for operators.
type ModelInfo struct {
	ModelID           string    `json:"model_id"`
	CreatedAt         time.Time `json:"created_at"`
	NumericalFields   []string  `json:"numerical_fields"`
	CategoricalFields []string  `json:"categorical_fields"`
	FeatureCount      int       `json:"feature_count"`
}

// TrainingRun records one completed training invocation.
type TrainingRun struct {
	ID           string            `json:"id"`
	ModelID      string            `json:"model_id"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	DatasetPath  string            `json:"dataset_path"`
	ArtifactPath string            `json:"artifact_path"`
	TrainRows    int               `json:"train_rows"`
	HoldOutRows  int               `json:"holdout_rows"`
	Converged    bool              `json:"converged"`
	Iterations   int               `json:"iterations"`
	Report       evaluation.Report `json:"report"`
}

// Duration is the wall time the run took.
func (r TrainingRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
