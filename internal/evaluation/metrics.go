// Package evaluation scores held-out predictions for operator inspection. None of
// its results gate persistence of a trained model.
package evaluation

import (
	"errors"
	"fmt"
)

// ErrLengthMismatch is returned when label slices differ in length or are empty.
var ErrLengthMismatch = errors.New("label slices must be non-empty and equal length")

// Accuracy is the fraction of positions where predicted equals truth, in [0,1].
func Accuracy(truth, predicted []int) (float64, error) {
	if len(truth) == 0 || len(truth) != len(predicted) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(truth), len(predicted))
	}
	correct := 0
	for i := range truth {
		if truth[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth)), nil
}

// ConfusionMatrix counts binary outcomes with 1 as the positive (churn) class.
type ConfusionMatrix struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`
}

// Report summarises one evaluation.
type Report struct {
	Samples   int             `json:"samples"`
	Accuracy  float64         `json:"accuracy"`
	Precision float64         `json:"precision"`
	Recall    float64         `json:"recall"`
	F1        float64         `json:"f1"`
	Confusion ConfusionMatrix `json:"confusion"`
}

// Evaluate computes accuracy plus precision, recall and F1 for the churn class.
// Ratios with a zero denominator are reported as 0.
func Evaluate(truth, predicted []int) (Report, error) {
	acc, err := Accuracy(truth, predicted)
	if err != nil {
		return Report{}, err
	}

	var cm ConfusionMatrix
	for i := range truth {
		switch {
		case truth[i] == 1 && predicted[i] == 1:
			cm.TruePositive++
		case truth[i] != 1 && predicted[i] == 1:
			cm.FalsePositive++
		case truth[i] == 1:
			cm.FalseNegative++
		default:
			cm.TrueNegative++
		}
	}

	precision := ratio(cm.TruePositive, cm.TruePositive+cm.FalsePositive)
	recall := ratio(cm.TruePositive, cm.TruePositive+cm.FalseNegative)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return Report{
		Samples:   len(truth),
		Accuracy:  acc,
		Precision: precision,
		Recall:    recall,
		F1:        f1,
		Confusion: cm,
	}, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
