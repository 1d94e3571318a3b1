// Package testutil provides synthetic telco customers for tests.
package testutil

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/miradorstack/mirador-churn/internal/features"
)

// CSVHeader is the column order of the public telco churn export.
var CSVHeader = []string{
	"customerID", "gender", "SeniorCitizen", "Partner", "Dependents", "tenure",
	"PhoneService", "MultipleLines", "InternetService", "OnlineSecurity",
	"OnlineBackup", "DeviceProtection", "TechSupport", "StreamingTV",
	"StreamingMovies", "Contract", "PaperlessBilling", "PaymentMethod",
	"MonthlyCharges", "TotalCharges", "Churn",
}

// Customer builds a complete record with neutral defaults for the fields that
// do not drive the synthetic churn signal.
func Customer(tenure int, monthly float64, contract string) features.Record {
	return features.Record{
		"gender":           "Female",
		"SeniorCitizen":    "0",
		"Partner":          "Yes",
		"Dependents":       "No",
		"tenure":           strconv.Itoa(tenure),
		"PhoneService":     "Yes",
		"MultipleLines":    "No",
		"InternetService":  "DSL",
		"OnlineSecurity":   "No",
		"OnlineBackup":     "Yes",
		"DeviceProtection": "No",
		"TechSupport":      "No",
		"StreamingTV":      "No",
		"StreamingMovies":  "No",
		"Contract":         contract,
		"PaperlessBilling": "Yes",
		"PaymentMethod":    "Electronic check",
		"MonthlyCharges":   strconv.FormatFloat(monthly, 'f', 2, 64),
		"TotalCharges":     strconv.FormatFloat(float64(tenure)*monthly, 'f', 2, 64),
	}
}

// Dataset generates n labeled customers whose churn odds fall with tenure and
// longer contracts, the dominant pattern of the real data. The same seed
// always yields the same rows.
func Dataset(n int, seed int64) ([]features.Record, []int) {
	rng := rand.New(rand.NewSource(seed))
	records := make([]features.Record, 0, n)
	labels := make([]int, 0, n)

	contracts := []string{"Month-to-month", "Month-to-month", "One year", "Two year"}
	internet := []string{"DSL", "Fiber optic", "No"}
	payments := []string{"Electronic check", "Mailed check", "Bank transfer (automatic)", "Credit card (automatic)"}

	for i := 0; i < n; i++ {
		contract := contracts[rng.Intn(len(contracts))]
		var tenure int
		switch contract {
		case "Month-to-month":
			tenure = rng.Intn(30)
		case "One year":
			tenure = 12 + rng.Intn(48)
		default:
			tenure = 24 + rng.Intn(49)
		}
		service := internet[rng.Intn(len(internet))]
		monthly := 18 + rng.Float64()*40
		if service == "Fiber optic" {
			monthly += 40
		}

		r := Customer(tenure, math.Round(monthly*100)/100, contract)
		r["InternetService"] = service
		r["PaymentMethod"] = payments[rng.Intn(len(payments))]
		if rng.Intn(2) == 0 {
			r["gender"] = "Male"
		}
		if rng.Intn(6) == 0 {
			r["SeniorCitizen"] = "1"
		}
		if tenure == 0 {
			r["TotalCharges"] = " "
		}

		logit := 0.8 - 0.08*float64(tenure)
		switch contract {
		case "Month-to-month":
			logit += 1.2
		case "Two year":
			logit -= 1.8
		}
		if service == "Fiber optic" {
			logit += 0.7
		}
		label := 0
		if rng.Float64() < 1/(1+math.Exp(-logit)) {
			label = 1
		}

		records = append(records, r)
		labels = append(labels, label)
	}
	return records, labels
}

// WriteCSV writes records in the telco export layout and returns the file path.
func WriteCSV(t testing.TB, dir string, records []features.Record, labels []int) string {
	t.Helper()

	path := filepath.Join(dir, "customers.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create csv: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for i, r := range records {
		row := make([]string, len(CSVHeader))
		for j, col := range CSVHeader {
			switch col {
			case "customerID":
				row[j] = fmt.Sprintf("%04d-TEST", i)
			case "Churn":
				row[j] = "No"
				if labels[i] == 1 {
					row[j] = "Yes"
				}
			default:
				row[j] = r[col]
			}
		}
		if err := w.Write(row); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flush csv: %v", err)
	}
	return path
}
