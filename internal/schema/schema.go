// Package schema declares which customer fields feed the churn model and how
// each is interpreted.
package schema

import (
	"errors"
	"fmt"
	"slices"
)

// Schema is the static field layout shared by training and serving. A fitted
// pipeline carries its own copy and never changes it.
type Schema struct {
	NumericalFields   []string `json:"numerical_fields" yaml:"numericalFields"`
	CategoricalFields []string `json:"categorical_fields" yaml:"categoricalFields"`
	TargetField       string   `json:"target_field" yaml:"targetField"`
	IDField           string   `json:"id_field" yaml:"idField"`
}

// Default returns the telco churn layout.
func Default() Schema {
	return Schema{
		NumericalFields: []string{
			"tenure",
			"MonthlyCharges",
			"TotalCharges",
		},
		CategoricalFields: []string{
			"gender",
			"SeniorCitizen",
			"Partner",
			"Dependents",
			"PhoneService",
			"MultipleLines",
			"InternetService",
			"OnlineSecurity",
			"OnlineBackup",
			"DeviceProtection",
			"TechSupport",
			"StreamingTV",
			"StreamingMovies",
			"Contract",
			"PaperlessBilling",
			"PaymentMethod",
		},
		TargetField: "Churn",
		IDField:     "customerID",
	}
}

// Validate checks that the field sets are non-empty, free of duplicates, and disjoint,
// and that neither the target nor the id column is used as a feature.
func (s Schema) Validate() error {
	if len(s.NumericalFields) == 0 && len(s.CategoricalFields) == 0 {
		return errors.New("schema declares no input fields")
	}
	if s.TargetField == "" {
		return errors.New("schema target field is empty")
	}

	seen := make(map[string]string, len(s.NumericalFields)+len(s.CategoricalFields))
	check := func(kind string, fields []string) error {
		for _, f := range fields {
			if f == "" {
				return fmt.Errorf("%s field name is empty", kind)
			}
			if prev, ok := seen[f]; ok {
				return fmt.Errorf("field %q declared as both %s and %s", f, prev, kind)
			}
			if f == s.TargetField {
				return fmt.Errorf("target field %q cannot be an input", f)
			}
			if s.IDField != "" && f == s.IDField {
				return fmt.Errorf("id field %q cannot be an input", f)
			}
			seen[f] = kind
		}
		return nil
	}
	if err := check("numerical", s.NumericalFields); err != nil {
		return err
	}
	return check("categorical", s.CategoricalFields)
}

// InputFields lists numerical then categorical fields, the order used for vector layout.
func (s Schema) InputFields() []string {
	out := make([]string, 0, len(s.NumericalFields)+len(s.CategoricalFields))
	out = append(out, s.NumericalFields...)
	return append(out, s.CategoricalFields...)
}

// Equal reports whether two schemas declare the same fields in the same order.
func (s Schema) Equal(other Schema) bool {
	return slices.Equal(s.NumericalFields, other.NumericalFields) &&
		slices.Equal(s.CategoricalFields, other.CategoricalFields) &&
		s.TargetField == other.TargetField &&
		s.IDField == other.IDField
}

// Clone returns a deep copy so callers cannot mutate a pipeline's schema.
func (s Schema) Clone() Schema {
	return Schema{
		NumericalFields:   slices.Clone(s.NumericalFields),
		CategoricalFields: slices.Clone(s.CategoricalFields),
		TargetField:       s.TargetField,
		IDField:           s.IDField,
	}
}
