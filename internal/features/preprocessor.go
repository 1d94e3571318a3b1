// Package features turns raw customer records into fixed-width numeric vectors.
//
// Two recovery policies are applied on every transform and must be reproduced
// exactly wherever vectors are built:
//
//   - Missing or unparseable numeric values are replaced by the median seen at fit
//     time, then standardized with the fit-time mean and population stddev.
//   - Missing categorical values are replaced by the most frequent fit-time
//     category; a category never seen at fit time encodes as all-zero indicators
//     for its field instead of failing.
package features

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/mirador-churn/internal/schema"
)

var (
	// ErrNoRecords is returned when fitting or transforming an empty batch.
	ErrNoRecords = errors.New("no records")
	// ErrInvalidState is returned when restoring a preprocessor from inconsistent parameters.
	ErrInvalidState = errors.New("invalid preprocessor state")
)

// NumericState holds the fitted parameters for one numeric field.
type NumericState struct {
	Name   string  `json:"name"`
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
}

// CategoricalState holds the fitted parameters for one categorical field.
type CategoricalState struct {
	Name         string   `json:"name"`
	MostFrequent string   `json:"most_frequent"`
	Categories   []string `json:"categories"`
}

// State is the serializable form of a fitted Preprocessor.
type State struct {
	Numeric     []NumericState     `json:"numeric"`
	Categorical []CategoricalState `json:"categorical"`
}

// Preprocessor applies fitted imputation, scaling and one-hot encoding. It is
// read-only after construction and safe for concurrent use.
type Preprocessor struct {
	numeric     []NumericState
	categorical []CategoricalState
	offsets     []int
	lookup      []map[string]int
	width       int
}

// Fit learns per-field parameters from the training records.
func Fit(s schema.Schema, records []Record) (*Preprocessor, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("fit preprocessor: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("fit preprocessor: %w", ErrNoRecords)
	}

	st := State{
		Numeric:     make([]NumericState, 0, len(s.NumericalFields)),
		Categorical: make([]CategoricalState, 0, len(s.CategoricalFields)),
	}
	for _, field := range s.NumericalFields {
		ns, err := fitNumeric(field, records)
		if err != nil {
			return nil, err
		}
		st.Numeric = append(st.Numeric, ns)
	}
	for _, field := range s.CategoricalFields {
		cs, err := fitCategorical(field, records)
		if err != nil {
			return nil, err
		}
		st.Categorical = append(st.Categorical, cs)
	}
	return FromState(st)
}

func fitNumeric(field string, records []Record) (NumericState, error) {
	observed := make([]float64, 0, len(records))
	for _, r := range records {
		if v, ok := ParseNumeric(r[field]); ok {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return NumericState{}, fmt.Errorf("fit preprocessor: numeric field %q has no parseable values", field)
	}
	median := medianOf(observed)

	// Scaling statistics are taken over the imputed column.
	column := make([]float64, len(records))
	for i, r := range records {
		if v, ok := ParseNumeric(r[field]); ok {
			column[i] = v
		} else {
			column[i] = median
		}
	}
	mean, std := stat.PopMeanStdDev(column, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return NumericState{Name: field, Median: median, Mean: mean, Scale: std}, nil
}

func fitCategorical(field string, records []Record) (CategoricalState, error) {
	counts := make(map[string]int)
	for _, r := range records {
		if v, ok := r.Value(field); ok {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return CategoricalState{}, fmt.Errorf("fit preprocessor: categorical field %q has no values", field)
	}

	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	// Ties resolve to the smallest category because categories are sorted.
	mostFrequent := categories[0]
	for _, c := range categories[1:] {
		if counts[c] > counts[mostFrequent] {
			mostFrequent = c
		}
	}
	return CategoricalState{Name: field, MostFrequent: mostFrequent, Categories: categories}, nil
}

// FromState rebuilds a Preprocessor from previously fitted parameters.
func FromState(st State) (*Preprocessor, error) {
	p := &Preprocessor{
		numeric:     make([]NumericState, len(st.Numeric)),
		categorical: make([]CategoricalState, len(st.Categorical)),
		offsets:     make([]int, len(st.Categorical)),
		lookup:      make([]map[string]int, len(st.Categorical)),
	}
	if len(st.Numeric)+len(st.Categorical) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidState)
	}

	for i, ns := range st.Numeric {
		if ns.Name == "" {
			return nil, fmt.Errorf("%w: numeric field %d has no name", ErrInvalidState, i)
		}
		if !finite(ns.Median) || !finite(ns.Mean) || !finite(ns.Scale) || ns.Scale <= 0 {
			return nil, fmt.Errorf("%w: numeric field %q has non-finite parameters", ErrInvalidState, ns.Name)
		}
		p.numeric[i] = ns
	}

	width := len(st.Numeric)
	for i, cs := range st.Categorical {
		if cs.Name == "" {
			return nil, fmt.Errorf("%w: categorical field %d has no name", ErrInvalidState, i)
		}
		if len(cs.Categories) == 0 {
			return nil, fmt.Errorf("%w: categorical field %q has no categories", ErrInvalidState, cs.Name)
		}
		index := make(map[string]int, len(cs.Categories))
		for j, c := range cs.Categories {
			if _, dup := index[c]; dup {
				return nil, fmt.Errorf("%w: categorical field %q repeats category %q", ErrInvalidState, cs.Name, c)
			}
			index[c] = j
		}
		if _, ok := index[cs.MostFrequent]; !ok {
			return nil, fmt.Errorf("%w: categorical field %q imputes unknown category %q", ErrInvalidState, cs.Name, cs.MostFrequent)
		}
		p.categorical[i] = CategoricalState{
			Name:         cs.Name,
			MostFrequent: cs.MostFrequent,
			Categories:   slices.Clone(cs.Categories),
		}
		p.lookup[i] = index
		p.offsets[i] = width
		width += len(cs.Categories)
	}
	p.width = width
	return p, nil
}

// State returns a deep copy of the fitted parameters.
func (p *Preprocessor) State() State {
	st := State{
		Numeric:     slices.Clone(p.numeric),
		Categorical: make([]CategoricalState, len(p.categorical)),
	}
	for i, cs := range p.categorical {
		st.Categorical[i] = CategoricalState{
			Name:         cs.Name,
			MostFrequent: cs.MostFrequent,
			Categories:   slices.Clone(cs.Categories),
		}
	}
	return st
}

// Width is the length of every vector this preprocessor produces.
func (p *Preprocessor) Width() int { return p.width }

// Fields returns the numeric and categorical field names in vector order.
func (p *Preprocessor) Fields() (numeric, categorical []string) {
	for _, ns := range p.numeric {
		numeric = append(numeric, ns.Name)
	}
	for _, cs := range p.categorical {
		categorical = append(categorical, cs.Name)
	}
	return numeric, categorical
}

// FeatureNames labels every output dimension, e.g. "num__tenure" or "cat__Contract_Two year".
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.width)
	for _, ns := range p.numeric {
		names = append(names, "num__"+ns.Name)
	}
	for _, cs := range p.categorical {
		for _, c := range cs.Categories {
			names = append(names, "cat__"+cs.Name+"_"+c)
		}
	}
	return names
}

// Transform maps records to an len(records) x Width matrix without learning anything.
func (p *Preprocessor) Transform(records []Record) (*mat.Dense, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	out := mat.NewDense(len(records), p.width, nil)
	for i, r := range records {
		p.fill(out.RawRowView(i), r)
	}
	return out, nil
}

// TransformRecord maps a single record to a fresh vector of length Width.
func (p *Preprocessor) TransformRecord(r Record) []float64 {
	row := make([]float64, p.width)
	p.fill(row, r)
	return row
}

func (p *Preprocessor) fill(row []float64, r Record) {
	for i, ns := range p.numeric {
		v, ok := ParseNumeric(r[ns.Name])
		if !ok {
			v = ns.Median
		}
		row[i] = (v - ns.Mean) / ns.Scale
	}
	for i, cs := range p.categorical {
		offset := p.offsets[i]
		for j := range cs.Categories {
			row[offset+j] = 0
		}
		v, ok := r.Value(cs.Name)
		if !ok {
			v = cs.MostFrequent
		}
		if j, known := p.lookup[i][v]; known {
			row[offset+j] = 1
		}
	}
}

func medianOf(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
