package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/miradorstack/mirador-churn/internal/engine"
	"github.com/miradorstack/mirador-churn/internal/features"
	"github.com/miradorstack/mirador-churn/internal/models"
	"github.com/miradorstack/mirador-churn/internal/schema"
	"github.com/miradorstack/mirador-churn/internal/testutil"
	"github.com/miradorstack/mirador-churn/internal/utils"
)

var (
	sharedOnce     sync.Once
	sharedPipeline *engine.Pipeline
	sharedErr      error
)

func fittedPipeline(t *testing.T) *engine.Pipeline {
	t.Helper()
	sharedOnce.Do(func() {
		records, labels := testutil.Dataset(400, 21)
		result, err := engine.NewTrainer(nil, schema.Default(), engine.DefaultTrainOptions()).Fit(context.Background(), records, labels)
		if err != nil {
			sharedErr = err
			return
		}
		sharedPipeline = result.Pipeline
	})
	if sharedErr != nil {
		t.Fatalf("fit: %v", sharedErr)
	}
	return sharedPipeline
}

func fields(r features.Record) map[string]any {
	m := make(map[string]any, len(r))
	for k, v := range r {
		m[k] = v
	}
	return m
}

func TestPredictUnavailable(t *testing.T) {
	loadErr := errors.New("artifact not found")
	svc := NewPredictionService(nil, nil, loadErr)

	if svc.Ready() {
		t.Fatalf("service without pipeline must not be ready")
	}
	if !errors.Is(svc.LoadError(), loadErr) {
		t.Fatalf("expected load error to be kept")
	}
	_, err := svc.PredictFields(context.Background(), fields(testutil.Customer(5, 70, "Month-to-month")))
	if utils.KindOf(err) != utils.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := svc.ModelInfo(); utils.KindOf(err) != utils.KindUnavailable {
		t.Fatalf("expected unavailable model info, got %v", err)
	}
}

func TestPredictInvalidInput(t *testing.T) {
	svc := NewPredictionService(nil, fittedPipeline(t), nil)

	m := fields(testutil.Customer(5, 70, "Month-to-month"))
	delete(m, "Contract")
	_, err := svc.PredictFields(context.Background(), m)
	if utils.KindOf(err) != utils.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Field != "Contract" {
		t.Fatalf("expected validation detail for Contract, got %v", err)
	}
}

func TestPredictScoresCustomers(t *testing.T) {
	pipeline := fittedPipeline(t)
	svc := NewPredictionService(nil, pipeline, nil)
	ctx := context.Background()

	risky, err := svc.PredictFields(ctx, fields(testutil.Customer(1, 30, "Month-to-month")))
	if err != nil {
		t.Fatalf("predict risky: %v", err)
	}
	loyal, err := svc.PredictFields(ctx, fields(testutil.Customer(72, 20, "Two year")))
	if err != nil {
		t.Fatalf("predict loyal: %v", err)
	}
	if risky.Label != 1 || loyal.Label != 0 {
		t.Fatalf("labels risky=%d loyal=%d", risky.Label, loyal.Label)
	}
	if risky.Probability <= loyal.Probability {
		t.Fatalf("expected risky probability above loyal: %v vs %v", risky.Probability, loyal.Probability)
	}
	if risky.ModelID != pipeline.Metadata().ModelID {
		t.Fatalf("prediction should carry the model id")
	}

	info, err := svc.ModelInfo()
	if err != nil {
		t.Fatalf("model info: %v", err)
	}
	if info.FeatureCount != len(pipeline.FeatureNames()) || len(info.CategoricalFields) != 16 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestPredictMissingTotalChargesIsImputed(t *testing.T) {
	svc := NewPredictionService(nil, fittedPipeline(t), nil)
	m := fields(testutil.Customer(0, 45, "Month-to-month"))
	delete(m, "TotalCharges")
	if _, err := svc.PredictFields(context.Background(), m); err != nil {
		t.Fatalf("missing TotalCharges should be accepted: %v", err)
	}
}

func TestPredictBatch(t *testing.T) {
	svc := NewPredictionService(nil, fittedPipeline(t), nil)
	ctx := context.Background()

	batch := []map[string]any{
		fields(testutil.Customer(1, 30, "Month-to-month")),
		fields(testutil.Customer(72, 20, "Two year")),
	}
	preds, err := svc.PredictBatch(ctx, batch)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(preds) != 2 || preds[0].Label != 1 || preds[1].Label != 0 {
		t.Fatalf("unexpected batch result %+v", preds)
	}

	empty, err := svc.PredictBatch(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty batch = %v, %v", empty, err)
	}

	batch = append(batch, map[string]any{"tenure": 3})
	if _, err := svc.PredictBatch(ctx, batch); utils.KindOf(err) != utils.KindInvalidInput {
		t.Fatalf("expected invalid batch, got %v", err)
	}
}

func TestPredictCancelledContext(t *testing.T) {
	svc := NewPredictionService(nil, fittedPipeline(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Predict(ctx, models.Customer{}); err == nil {
		t.Fatalf("expected cancelled context to fail")
	}
}

func TestPredictRequiresSchemaInputFields(t *testing.T) {
	s := schema.Default()
	s.CategoricalFields = append(s.CategoricalFields, "Region")
	records, labels := testutil.Dataset(200, 5)
	regions := []string{"North", "South", "East"}
	for i, r := range records {
		r["Region"] = regions[i%len(regions)]
	}
	result, err := engine.NewTrainer(nil, s, engine.DefaultTrainOptions()).Fit(context.Background(), records, labels)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	svc := NewPredictionService(nil, result.Pipeline, nil)

	body := fields(testutil.Customer(5, 70, "Month-to-month"))
	_, err = svc.PredictFields(context.Background(), body)
	if utils.KindOf(err) != utils.KindInvalidInput {
		t.Fatalf("expected invalid input without Region, got %v", err)
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 1 || verr.Fields[0].Field != "Region" {
		t.Fatalf("expected Region to be reported, got %v", err)
	}
	if _, err := svc.PredictBatch(context.Background(), []map[string]any{body}); utils.KindOf(err) != utils.KindInvalidInput {
		t.Fatalf("expected invalid batch without Region, got %v", err)
	}
	c, err := models.CustomerFromMap(body)
	if err != nil {
		t.Fatalf("customer: %v", err)
	}
	if _, err := svc.Predict(context.Background(), c); utils.KindOf(err) != utils.KindInvalidInput {
		t.Fatalf("expected typed customer to be rejected, got %v", err)
	}

	body["Region"] = "South"
	pred, err := svc.PredictFields(context.Background(), body)
	if err != nil {
		t.Fatalf("predict with Region: %v", err)
	}
	if pred.Probability < 0 || pred.Probability > 1 {
		t.Fatalf("probability out of range: %v", pred.Probability)
	}
}
