package classifier

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func separable(n int, seed int64) (*mat.Dense, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(n, 2, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		if a+0.5*b+0.3*rng.NormFloat64() > 0 {
			y[i] = 1
		}
	}
	return x, y
}

func TestFitLearnsSignal(t *testing.T) {
	x, y := separable(400, 1)
	model, info, err := Fit(x, y, DefaultOptions())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if info.Iterations == 0 {
		t.Fatalf("expected optimiser iterations, got %+v", info)
	}
	if w := model.Weights(); w[0] <= 0 || w[0] <= w[1] {
		t.Fatalf("unexpected weights %v", w)
	}

	pred, err := model.Predict(x)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	correct := 0
	for i := range pred {
		if pred[i] == y[i] {
			correct++
		}
	}
	if acc := float64(correct) / float64(len(y)); acc < 0.85 {
		t.Fatalf("training accuracy too low: %.3f", acc)
	}
}

func TestFitIsDeterministic(t *testing.T) {
	x, y := separable(300, 2)
	a, _, err := Fit(x, y, DefaultOptions())
	if err != nil {
		t.Fatalf("fit a: %v", err)
	}
	b, _, err := Fit(x, y, DefaultOptions())
	if err != nil {
		t.Fatalf("fit b: %v", err)
	}
	if !slices.Equal(a.Weights(), b.Weights()) || a.Intercept() != b.Intercept() {
		t.Fatalf("repeated fits differ: %v/%v vs %v/%v", a.Weights(), a.Intercept(), b.Weights(), b.Intercept())
	}
}

func TestPredictProbaConsistentWithPredict(t *testing.T) {
	x, y := separable(200, 3)
	model, _, err := Fit(x, y, DefaultOptions())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	proba, err := model.PredictProba(x)
	if err != nil {
		t.Fatalf("proba: %v", err)
	}
	labels, _ := model.Predict(x)
	for i, p := range proba {
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("probability out of range: %v", p)
		}
		if (p > 0.5) != (labels[i] == 1) {
			t.Fatalf("row %d: probability %v disagrees with label %d", i, p, labels[i])
		}
	}
}

func TestFitRejectsSingleClass(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 2, 3})
	if _, _, err := Fit(x, []int{1, 1, 1}, DefaultOptions()); !errors.Is(err, ErrSingleClass) {
		t.Fatalf("expected ErrSingleClass, got %v", err)
	}
}

func TestFitRejectsNonBinaryLabels(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{1, 2})
	if _, _, err := Fit(x, []int{0, 2}, DefaultOptions()); err == nil {
		t.Fatalf("expected error for non-binary label")
	}
}

func TestPredictDimensionMismatch(t *testing.T) {
	model, err := New([]float64{1, 2}, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := model.Predict(mat.NewDense(1, 3, nil)); !errors.Is(err, ErrDimension) {
		t.Fatalf("expected ErrDimension, got %v", err)
	}
}

func TestNewRejectsNonFinite(t *testing.T) {
	if _, err := New([]float64{math.NaN()}, 0); err == nil {
		t.Fatalf("expected error for NaN weight")
	}
	if _, err := New([]float64{1}, math.Inf(1)); err == nil {
		t.Fatalf("expected error for infinite intercept")
	}
}

func TestSoftplusStable(t *testing.T) {
	if v := softplus(1000); math.IsInf(v, 0) || math.Abs(v-1000) > 1e-9 {
		t.Fatalf("softplus overflow: %v", v)
	}
	if v := softplus(-1000); v < 0 || v > 1e-300 {
		t.Fatalf("softplus underflow: %v", v)
	}
}
