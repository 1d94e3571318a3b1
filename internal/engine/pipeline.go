package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/miradorstack/mirador-churn/internal/classifier"
	"github.com/miradorstack/mirador-churn/internal/features"
	"github.com/miradorstack/mirador-churn/internal/schema"
)

// ErrWidthMismatch is returned when preprocessor output and classifier input disagree.
var ErrWidthMismatch = errors.New("preprocessor and classifier widths differ")

// Metadata identifies one fitted pipeline.
type Metadata struct {
	ModelID   string
	CreatedAt time.Time
}

// Pipeline couples a fitted preprocessor with a fitted classifier so callers can
// only score raw records through the same transformation used in training. A
// Pipeline has no mutators; share one instance across goroutines.
type Pipeline struct {
	schema       schema.Schema
	preprocessor *features.Preprocessor
	classifier   *classifier.LogisticRegression
	meta         Metadata
}

// Assemble validates that the parts agree and wraps them as a Pipeline. It is
// used by Fit and when restoring a persisted artifact.
func Assemble(s schema.Schema, pre *features.Preprocessor, clf *classifier.LogisticRegression, meta Metadata) (*Pipeline, error) {
	if pre == nil || clf == nil {
		return nil, errors.New("assemble pipeline: missing stage")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("assemble pipeline: %w", err)
	}
	numeric, categorical := pre.Fields()
	if !(schema.Schema{NumericalFields: numeric, CategoricalFields: categorical, TargetField: s.TargetField, IDField: s.IDField}).Equal(s) {
		return nil, errors.New("assemble pipeline: preprocessor fields do not match schema")
	}
	if pre.Width() != clf.Width() {
		return nil, fmt.Errorf("assemble pipeline: %w (%d vs %d)", ErrWidthMismatch, pre.Width(), clf.Width())
	}
	return &Pipeline{
		schema:       s.Clone(),
		preprocessor: pre,
		classifier:   clf,
		meta:         meta,
	}, nil
}

// Predict returns one 0/1 churn label per record.
func (p *Pipeline) Predict(records []features.Record) ([]int, error) {
	if len(records) == 0 {
		return []int{}, nil
	}
	x, err := p.preprocessor.Transform(records)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	labels, err := p.classifier.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return labels, nil
}

// PredictProba returns P(churn) per record.
func (p *Pipeline) PredictProba(records []features.Record) ([]float64, error) {
	if len(records) == 0 {
		return []float64{}, nil
	}
	x, err := p.preprocessor.Transform(records)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	proba, err := p.classifier.PredictProba(x)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return proba, nil
}

// Schema returns a copy of the schema the pipeline was fitted with.
func (p *Pipeline) Schema() schema.Schema { return p.schema.Clone() }

// Metadata returns the pipeline identity.
func (p *Pipeline) Metadata() Metadata { return p.meta }

// PreprocessorState exposes the fitted preprocessing parameters for persistence.
func (p *Pipeline) PreprocessorState() features.State { return p.preprocessor.State() }

// FeatureNames labels each dimension of the preprocessed vector.
func (p *Pipeline) FeatureNames() []string { return p.preprocessor.FeatureNames() }

// Coefficients returns the classifier weights and intercept.
func (p *Pipeline) Coefficients() ([]float64, float64) {
	return p.classifier.Weights(), p.classifier.Intercept()
}
