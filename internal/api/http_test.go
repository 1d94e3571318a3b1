package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-churn/internal/testutil"
)

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestHTTPRootAndHealth(t *testing.T) {
	h := NewHTTPServer(nil, degradedService()).Handler()

	rec, body := doJSON(t, h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || body["status"] != "API is up and running!" {
		t.Fatalf("root = %d %v", rec.Code, body)
	}
	if rec, _ := doJSON(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec, _ := doJSON(t, h, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without model = %d", rec.Code)
	}
}

func TestHTTPPredict(t *testing.T) {
	svc := readyService(t)
	h := NewHTTPServer(nil, svc).Handler()

	if rec, _ := doJSON(t, h, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz with model = %d", rec.Code)
	}

	rec, body := doJSON(t, h, http.MethodPost, "/predict", customerJSON(testutil.Customer(1, 30, "Month-to-month")))
	if rec.Code != http.StatusOK {
		t.Fatalf("predict = %d %v", rec.Code, body)
	}
	if body["prediction"] != float64(1) {
		t.Fatalf("expected churn prediction, got %v", body)
	}
	if p, ok := body["probability"].(float64); !ok || p <= 0.5 || p > 1 {
		t.Fatalf("unexpected probability %v", body["probability"])
	}
	if body["model_id"] == "" {
		t.Fatalf("missing model id")
	}

	loyal := customerJSON(testutil.Customer(72, 20, "Two year"))
	delete(loyal, "TotalCharges")
	rec, body = doJSON(t, h, http.MethodPost, "/predict", loyal)
	if rec.Code != http.StatusOK || body["prediction"] != float64(0) {
		t.Fatalf("loyal predict = %d %v", rec.Code, body)
	}
}

func TestHTTPPredictValidation(t *testing.T) {
	h := NewHTTPServer(nil, readyService(t)).Handler()

	missing := customerJSON(testutil.Customer(1, 30, "Month-to-month"))
	delete(missing, "PaymentMethod")
	rec, body := doJSON(t, h, http.MethodPost, "/predict", missing)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing field = %d", rec.Code)
	}
	details, _ := body["detail"].([]any)
	if len(details) != 1 {
		t.Fatalf("expected one detail, got %v", body)
	}
	loc := details[0].(map[string]any)["loc"].([]any)
	if loc[1] != "PaymentMethod" {
		t.Fatalf("unexpected loc %v", loc)
	}

	wrongType := customerJSON(testutil.Customer(1, 30, "Month-to-month"))
	wrongType["tenure"] = "a while"
	if rec, _ := doJSON(t, h, http.MethodPost, "/predict", wrongType); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("wrong type = %d", rec.Code)
	}

	for _, raw := range []string{"{not json", "[1,2]", "null"} {
		if rec, _ := doJSON(t, h, http.MethodPost, "/predict", raw); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body %q = %d", raw, rec.Code)
		}
	}
}

func TestHTTPPredictUnavailable(t *testing.T) {
	h := NewHTTPServer(nil, degradedService()).Handler()

	rec, body := doJSON(t, h, http.MethodPost, "/predict", customerJSON(testutil.Customer(1, 30, "Month-to-month")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("predict without model = %d", rec.Code)
	}
	if body["detail"] != "Model is not available. Please check server logs." {
		t.Fatalf("unexpected detail %v", body)
	}
	if rec, _ := doJSON(t, h, http.MethodGet, "/model", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("model info without model = %d", rec.Code)
	}
}

func TestHTTPPredictInternalError(t *testing.T) {
	h := NewHTTPServer(nil, failingPredictor{}).Handler()

	rec, body := doJSON(t, h, http.MethodPost, "/predict", customerJSON(testutil.Customer(1, 30, "Month-to-month")))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	detail, _ := body["detail"].(string)
	if !strings.HasPrefix(detail, "An error occurred during prediction: ") || !strings.Contains(detail, "matrix exploded") {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestHTTPPredictBatchAndModel(t *testing.T) {
	h := NewHTTPServer(nil, readyService(t)).Handler()

	batch := []map[string]any{
		customerJSON(testutil.Customer(1, 30, "Month-to-month")),
		customerJSON(testutil.Customer(72, 20, "Two year")),
	}
	rec, body := doJSON(t, h, http.MethodPost, "/predict/batch", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch = %d %v", rec.Code, body)
	}
	preds, _ := body["predictions"].([]any)
	if len(preds) != 2 {
		t.Fatalf("expected two predictions, got %v", body)
	}
	if preds[0].(map[string]any)["prediction"] != float64(1) || preds[1].(map[string]any)["prediction"] != float64(0) {
		t.Fatalf("unexpected batch labels %v", preds)
	}

	if rec, _ := doJSON(t, h, http.MethodPost, "/predict/batch", `{"tenure": 1}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("object body for batch = %d", rec.Code)
	}

	rec, body = doJSON(t, h, http.MethodGet, "/model", nil)
	if rec.Code != http.StatusOK || body["feature_count"] == nil {
		t.Fatalf("model = %d %v", rec.Code, body)
	}
}
