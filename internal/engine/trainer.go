package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-churn/internal/classifier"
	"github.com/miradorstack/mirador-churn/internal/features"
	"github.com/miradorstack/mirador-churn/internal/schema"
)

// TrainOptions configures a training run.
type TrainOptions struct {
	TestRatio  float64
	Seed       int64
	Classifier classifier.Options
}

// DefaultTrainOptions returns the 80/20 split with seed 42.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{TestRatio: 0.2, Seed: 42, Classifier: classifier.DefaultOptions()}
}

// Split is one partition of the labeled dataset.
type Split struct {
	Records []features.Record
	Labels  []int
}

// FitResult bundles the fitted pipeline with the partitions it was fitted on.
type FitResult struct {
	Pipeline *Pipeline
	Train    Split
	HoldOut  Split
	Info     classifier.FitInfo
}

// Trainer fits pipelines for one schema.
type Trainer struct {
	logger *slog.Logger
	schema schema.Schema
	opts   TrainOptions
	now    func() time.Time
}

// NewTrainer constructs a Trainer; zero-valued options fall back to defaults.
func NewTrainer(logger *slog.Logger, s schema.Schema, opts TrainOptions) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TestRatio <= 0 || opts.TestRatio >= 1 {
		opts.TestRatio = DefaultTrainOptions().TestRatio
	}
	return &Trainer{logger: logger, schema: s.Clone(), opts: opts, now: time.Now}
}

// Fit splits the labeled data, fits preprocessing on the train partition only,
// then fits the classifier on the transformed train partition.
func (t *Trainer) Fit(ctx context.Context, records []features.Record, labels []int) (*FitResult, error) {
	if len(records) != len(labels) {
		return nil, fmt.Errorf("fit: %d records but %d labels", len(records), len(labels))
	}
	trainIdx, testIdx, err := TrainTestSplit(len(records), t.opts.TestRatio, t.opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	train := subset(records, labels, trainIdx)
	holdOut := subset(records, labels, testIdx)

	pre, err := features.Fit(t.schema, train.Records)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	x, err := pre.Transform(train.Records)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clf, info, err := classifier.Fit(x, train.Labels, t.opts.Classifier)
	if err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}
	if !info.Converged {
		t.logger.Warn("classifier did not converge", slog.String("status", info.Status), slog.Int("iterations", info.Iterations))
	}
	t.logger.Debug("classifier fitted",
		slog.Int("features", pre.Width()),
		slog.Int("iterations", info.Iterations),
		slog.Float64("loss", info.Loss),
	)

	pipeline, err := Assemble(t.schema, pre, clf, Metadata{
		ModelID:   uuid.NewString(),
		CreatedAt: t.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &FitResult{Pipeline: pipeline, Train: train, HoldOut: holdOut, Info: info}, nil
}

// TrainTestSplit shuffles row indices with a seeded source and reserves
// ceil(n*testRatio) of them for the held-out partition.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio %v outside (0, 1)", testRatio)
	}
	nTest := int(math.Ceil(float64(n)*testRatio - 1e-9))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, errors.New("dataset too small to split")
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

func subset(records []features.Record, labels []int, idx []int) Split {
	s := Split{
		Records: make([]features.Record, len(idx)),
		Labels:  make([]int, len(idx)),
	}
	for i, j := range idx {
		s.Records[i] = records[j]
		s.Labels[i] = labels[j]
	}
	return s
}
