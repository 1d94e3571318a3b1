// Package classifier implements the binary churn classifier.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrSingleClass is returned when the training labels contain only one class.
	ErrSingleClass = errors.New("training labels contain a single class")
	// ErrDimension is returned when inputs do not match the fitted width.
	ErrDimension = errors.New("dimension mismatch")
)

// Options configures L2-regularised logistic regression.
type Options struct {
	// C is the inverse regularisation strength.
	C float64
	// MaxIter bounds L-BFGS major iterations.
	MaxIter int
	// Tolerance is the gradient-norm threshold for convergence.
	Tolerance float64
}

// DefaultOptions mirrors the reference training configuration.
func DefaultOptions() Options {
	return Options{C: 1.0, MaxIter: 1000, Tolerance: 1e-4}
}

func (o Options) normalised() Options {
	d := DefaultOptions()
	if o.C <= 0 {
		o.C = d.C
	}
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	return o
}

// FitInfo reports how the optimiser terminated.
type FitInfo struct {
	Iterations int
	Converged  bool
	Status     string
	Loss       float64
}

// LogisticRegression is a fitted binary logistic model. It has no mutators and
// is safe for concurrent prediction.
type LogisticRegression struct {
	weights   []float64
	intercept float64
}

// New builds a model from known parameters, e.g. when restoring an artifact.
func New(weights []float64, intercept float64) (*LogisticRegression, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrDimension)
	}
	for _, w := range append(slices.Clone(weights), intercept) {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.New("non-finite model parameter")
		}
	}
	return &LogisticRegression{weights: slices.Clone(weights), intercept: intercept}, nil
}

// Fit minimises C*sum(logloss) + 0.5*||w||^2 with L-BFGS starting from zero,
// so repeated fits on identical data produce identical parameters. The
// intercept is not penalised. Labels must be 0 or 1.
func Fit(x mat.Matrix, y []int, opts Options) (*LogisticRegression, FitInfo, error) {
	opts = opts.normalised()
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return nil, FitInfo{}, fmt.Errorf("%w: empty design matrix", ErrDimension)
	}
	if len(y) != n {
		return nil, FitInfo{}, fmt.Errorf("%w: %d rows but %d labels", ErrDimension, n, len(y))
	}

	target := make([]float64, n)
	positives := 0
	for i, label := range y {
		switch label {
		case 0:
		case 1:
			target[i] = 1
			positives++
		default:
			return nil, FitInfo{}, fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	if positives == 0 || positives == n {
		return nil, FitInfo{}, ErrSingleClass
	}

	obj := &objective{x: x, y: target, c: opts.C, n: n, d: d}
	problem := optimize.Problem{Func: obj.loss, Grad: obj.grad}
	settings := &optimize.Settings{
		GradientThreshold: opts.Tolerance,
		MajorIterations:   opts.MaxIter,
	}

	result, err := optimize.Minimize(problem, make([]float64, d+1), settings, &optimize.LBFGS{})
	if result == nil {
		return nil, FitInfo{}, fmt.Errorf("optimise: %w", err)
	}
	info := FitInfo{
		Iterations: result.Stats.MajorIterations,
		Converged:  result.Status == optimize.GradientThreshold || result.Status == optimize.FunctionConvergence,
		Status:     result.Status.String(),
		Loss:       result.F,
	}
	if err != nil && result.Status != optimize.IterationLimit {
		return nil, info, fmt.Errorf("optimise: %w", err)
	}

	model, err := New(result.X[:d], result.X[d])
	if err != nil {
		return nil, info, err
	}
	return model, info, nil
}

// Weights returns a copy of the coefficient vector.
func (m *LogisticRegression) Weights() []float64 { return slices.Clone(m.weights) }

// Intercept returns the bias term.
func (m *LogisticRegression) Intercept() float64 { return m.intercept }

// Width is the number of features the model expects.
func (m *LogisticRegression) Width() int { return len(m.weights) }

// DecisionFunction returns the raw score w·x + b per row.
func (m *LogisticRegression) DecisionFunction(x mat.Matrix) ([]float64, error) {
	n, d := x.Dims()
	if d != len(m.weights) {
		return nil, fmt.Errorf("%w: model expects %d features, got %d", ErrDimension, len(m.weights), d)
	}
	scores := mat.NewVecDense(n, nil)
	scores.MulVec(x, mat.NewVecDense(d, m.weights))
	out := make([]float64, n)
	for i := range out {
		out[i] = scores.AtVec(i) + m.intercept
	}
	return out, nil
}

// PredictProba returns P(churn) per row.
func (m *LogisticRegression) PredictProba(x mat.Matrix) ([]float64, error) {
	scores, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	for i, z := range scores {
		scores[i] = sigmoid(z)
	}
	return scores, nil
}

// Predict returns 1 where the decision value is positive, otherwise 0.
func (m *LogisticRegression) Predict(x mat.Matrix) ([]int, error) {
	scores, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(scores))
	for i, z := range scores {
		if z > 0 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// objective evaluates the penalised log-loss over params = [w..., b].
type objective struct {
	x    mat.Matrix
	y    []float64
	c    float64
	n, d int
}

func (o *objective) scores(params []float64) *mat.VecDense {
	z := mat.NewVecDense(o.n, nil)
	z.MulVec(o.x, mat.NewVecDense(o.d, params[:o.d]))
	b := params[o.d]
	for i := 0; i < o.n; i++ {
		z.SetVec(i, z.AtVec(i)+b)
	}
	return z
}

func (o *objective) loss(params []float64) float64 {
	z := o.scores(params)
	total := 0.0
	for i := 0; i < o.n; i++ {
		zi := z.AtVec(i)
		total += softplus(zi) - o.y[i]*zi
	}
	w := params[:o.d]
	return o.c*total + 0.5*floats.Dot(w, w)
}

func (o *objective) grad(grad, params []float64) {
	z := o.scores(params)
	residual := mat.NewVecDense(o.n, nil)
	for i := 0; i < o.n; i++ {
		residual.SetVec(i, sigmoid(z.AtVec(i))-o.y[i])
	}

	gw := mat.NewVecDense(o.d, grad[:o.d])
	gw.MulVec(o.x.T(), residual)
	gw.ScaleVec(o.c, gw)
	floats.Add(grad[:o.d], params[:o.d])

	grad[o.d] = o.c * mat.Sum(residual)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus computes log(1+exp(z)) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
