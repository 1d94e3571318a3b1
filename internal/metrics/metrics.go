package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels scored requests.
	OutcomeSuccess = "success"
	// OutcomeInvalid labels requests rejected by validation.
	OutcomeInvalid = "invalid"
	// OutcomeUnavailable labels requests refused because no model is loaded.
	OutcomeUnavailable = "unavailable"
	// OutcomeError labels unexpected failures.
	OutcomeError = "error"
)

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_churn",
			Name:      "predictions_total",
			Help:      "Total number of prediction requests handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	predictionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_churn",
			Name:      "prediction_seconds",
			Help:      "Prediction latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	modelAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_churn",
			Name:      "model_available",
			Help:      "1 when a fitted pipeline is loaded and serving, 0 otherwise.",
		},
	)

	predictedLabelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_churn",
			Name:      "predicted_label_total",
			Help:      "Predicted churn labels emitted, partitioned by label.",
		},
		[]string{"label"},
	)
)

// Register attaches mirador-churn collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		predictionsTotal,
		predictionDurationSeconds,
		modelAvailable,
		predictedLabelsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObservePrediction records a request duration and outcome label.
func ObservePrediction(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeInvalid, OutcomeUnavailable:
	default:
		outcome = OutcomeError
	}
	predictionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	predictionDurationSeconds.Observe(duration.Seconds())
}

// ObserveLabels counts emitted churn labels.
func ObserveLabels(labels []int) {
	for _, l := range labels {
		predictedLabelsTotal.WithLabelValues(strconv.Itoa(l)).Inc()
	}
}

// SetModelAvailable flips the availability gauge.
func SetModelAvailable(ok bool) {
	if ok {
		modelAvailable.Set(1)
		return
	}
	modelAvailable.Set(0)
}
