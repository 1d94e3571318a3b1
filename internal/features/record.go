package features

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is one customer's raw field values keyed by schema field name. An absent
// key, an empty string and a whitespace-only string all mean "missing".
type Record map[string]string

// Value returns the trimmed raw value for field and whether it is present.
func (r Record) Value(field string) (string, bool) {
	v, ok := r[field]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// ParseNumeric coerces a raw token to a float. Tokens that are not numbers
// (including blanks such as the " " placeholder in TotalCharges) report false
// and are imputed rather than rejected. Values outside float64 range count as
// non-numeric. Thousands separators are tolerated.
func ParseNumeric(raw string) (float64, bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
