package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-churn/internal/features"
)

// Customer is one scoring request. Every field is required except
// TotalCharges, which new customers may not have yet.
type Customer struct {
	Gender           string   `json:"gender"`
	SeniorCitizen    int      `json:"SeniorCitizen"`
	Partner          string   `json:"Partner"`
	Dependents       string   `json:"Dependents"`
	Tenure           int      `json:"tenure"`
	PhoneService     string   `json:"PhoneService"`
	MultipleLines    string   `json:"MultipleLines"`
	InternetService  string   `json:"InternetService"`
	OnlineSecurity   string   `json:"OnlineSecurity"`
	OnlineBackup     string   `json:"OnlineBackup"`
	DeviceProtection string   `json:"DeviceProtection"`
	TechSupport      string   `json:"TechSupport"`
	StreamingTV      string   `json:"StreamingTV"`
	StreamingMovies  string   `json:"StreamingMovies"`
	Contract         string   `json:"Contract"`
	PaperlessBilling string   `json:"PaperlessBilling"`
	PaymentMethod    string   `json:"PaymentMethod"`
	MonthlyCharges   float64  `json:"MonthlyCharges"`
	TotalCharges     *float64 `json:"TotalCharges,omitempty"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a request, sorted by field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid customer: " + strings.Join(parts, "; ")
}

var stringFields = []struct {
	name string
	ptr  func(*Customer) *string
}{
	{"gender", func(c *Customer) *string { return &c.Gender }},
	{"Partner", func(c *Customer) *string { return &c.Partner }},
	{"Dependents", func(c *Customer) *string { return &c.Dependents }},
	{"PhoneService", func(c *Customer) *string { return &c.PhoneService }},
	{"MultipleLines", func(c *Customer) *string { return &c.MultipleLines }},
	{"InternetService", func(c *Customer) *string { return &c.InternetService }},
	{"OnlineSecurity", func(c *Customer) *string { return &c.OnlineSecurity }},
	{"OnlineBackup", func(c *Customer) *string { return &c.OnlineBackup }},
	{"DeviceProtection", func(c *Customer) *string { return &c.DeviceProtection }},
	{"TechSupport", func(c *Customer) *string { return &c.TechSupport }},
	{"StreamingTV", func(c *Customer) *string { return &c.StreamingTV }},
	{"StreamingMovies", func(c *Customer) *string { return &c.StreamingMovies }},
	{"Contract", func(c *Customer) *string { return &c.Contract }},
	{"PaperlessBilling", func(c *Customer) *string { return &c.PaperlessBilling }},
	{"PaymentMethod", func(c *Customer) *string { return &c.PaymentMethod }},
}

// CustomerFromMap validates a decoded JSON object (or protobuf Struct) and
// builds a Customer. Unknown keys are ignored. Numbers may arrive as JSON
// numbers or numeric strings; integer fields reject fractional values.
func CustomerFromMap(m map[string]any) (Customer, error) {
	c, problems := customerFromMap(m)
	if len(problems) > 0 {
		return Customer{}, validationError(problems)
	}
	return c, nil
}

// RecordFromMap validates m as a Customer and also requires every field in
// inputFields that the Customer layout does not carry, so a pipeline fitted
// on extra columns never sees them silently imputed. Extra fields accept a
// non-blank string or a number.
func RecordFromMap(m map[string]any, inputFields []string) (features.Record, error) {
	c, problems := customerFromMap(m)
	r := c.Record()
	for _, field := range inputFields {
		if IsCustomerField(field) {
			continue
		}
		raw, ok := m[field]
		if !ok || raw == nil {
			problems = append(problems, FieldError{Field: field, Message: "field required"})
			continue
		}
		switch v := raw.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				problems = append(problems, FieldError{Field: field, Message: "must not be blank"})
				continue
			}
			r[field] = v
		default:
			n, ok := number(raw)
			if !ok {
				problems = append(problems, FieldError{Field: field, Message: "must be a string or number"})
				continue
			}
			r[field] = strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	if len(problems) > 0 {
		return nil, validationError(problems)
	}
	return r, nil
}

func validationError(problems []FieldError) error {
	sort.SliceStable(problems, func(i, j int) bool { return problems[i].Field < problems[j].Field })
	return &ValidationError{Fields: problems}
}

// IsCustomerField reports whether name is one of the Customer request fields.
func IsCustomerField(name string) bool {
	switch name {
	case "SeniorCitizen", "tenure", "MonthlyCharges", "TotalCharges":
		return true
	}
	for _, f := range stringFields {
		if f.name == name {
			return true
		}
	}
	return false
}

func customerFromMap(m map[string]any) (Customer, []FieldError) {
	var c Customer
	var problems []FieldError
	fail := func(field, msg string) {
		problems = append(problems, FieldError{Field: field, Message: msg})
	}
	present := func(field string) (any, bool) {
		raw, ok := m[field]
		if !ok || raw == nil {
			fail(field, "field required")
			return nil, false
		}
		return raw, true
	}

	for _, f := range stringFields {
		raw, ok := present(f.name)
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			fail(f.name, "must be a string")
			continue
		}
		if strings.TrimSpace(s) == "" {
			fail(f.name, "must not be blank")
			continue
		}
		*f.ptr(&c) = s
	}

	for name, dst := range map[string]*int{"SeniorCitizen": &c.SeniorCitizen, "tenure": &c.Tenure} {
		raw, ok := present(name)
		if !ok {
			continue
		}
		v, ok := number(raw)
		if !ok || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
			fail(name, "must be an integer")
			continue
		}
		*dst = int(v)
	}

	if raw, ok := present("MonthlyCharges"); ok {
		if v, ok := number(raw); ok {
			c.MonthlyCharges = v
		} else {
			fail("MonthlyCharges", "must be a number")
		}
	}

	if raw, ok := m["TotalCharges"]; ok && raw != nil {
		if v, ok := number(raw); ok {
			c.TotalCharges = &v
		} else {
			fail("TotalCharges", "must be a number or null")
		}
	}

	return c, problems
}

func number(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case string:
		parsed, ok := features.ParseNumeric(n)
		if !ok {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Record converts the customer into the raw field map consumed by the
// pipeline. A nil TotalCharges becomes a missing value.
func (c Customer) Record() features.Record {
	r := features.Record{
		"gender":           c.Gender,
		"SeniorCitizen":    strconv.Itoa(c.SeniorCitizen),
		"Partner":          c.Partner,
		"Dependents":       c.Dependents,
		"tenure":           strconv.Itoa(c.Tenure),
		"PhoneService":     c.PhoneService,
		"MultipleLines":    c.MultipleLines,
		"InternetService":  c.InternetService,
		"OnlineSecurity":   c.OnlineSecurity,
		"OnlineBackup":     c.OnlineBackup,
		"DeviceProtection": c.DeviceProtection,
		"TechSupport":      c.TechSupport,
		"StreamingTV":      c.StreamingTV,
		"StreamingMovies":  c.StreamingMovies,
		"Contract":         c.Contract,
		"PaperlessBilling": c.PaperlessBilling,
		"PaymentMethod":    c.PaymentMethod,
		"MonthlyCharges":   strconv.FormatFloat(c.MonthlyCharges, 'f', -1, 64),
	}
	if c.TotalCharges != nil {
		r["TotalCharges"] = strconv.FormatFloat(*c.TotalCharges, 'f', -1, 64)
	}
	return r
}

// String is used in log lines; it avoids dumping every field.
func (c Customer) String() string {
	return fmt.Sprintf("Customer{tenure=%d contract=%q monthly=%.2f}", c.Tenure, c.Contract, c.MonthlyCharges)
}
