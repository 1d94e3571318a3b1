// Package dataset reads the labeled telco export into raw records.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/miradorstack/mirador-churn/internal/features"
	"github.com/miradorstack/mirador-churn/internal/schema"
)

// PositiveLabel is the target value that marks a churned customer.
const PositiveLabel = "Yes"

// ErrMissingColumn is returned when the header lacks a column the schema needs.
var ErrMissingColumn = errors.New("missing column")

// Dataset holds rows in file order. Labels is nil for unlabeled input.
type Dataset struct {
	Records []features.Record
	Labels  []int
	IDs     []string
}

// Len reports the number of rows.
func (d *Dataset) Len() int { return len(d.Records) }

// Positives counts churned rows.
func (d *Dataset) Positives() int {
	n := 0
	for _, l := range d.Labels {
		n += l
	}
	return n
}

// LoadCSV reads a labeled dataset from path.
func LoadCSV(path string, s schema.Schema) (*Dataset, error) {
	return load(path, s, true)
}

// LoadUnlabeledCSV reads rows to score; the target column is ignored when present.
func LoadUnlabeledCSV(path string, s schema.Schema) (*Dataset, error) {
	return load(path, s, false)
}

func load(path string, s schema.Schema, labeled bool) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Read(f, s, labeled)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Read parses CSV rows using the header to locate schema columns. Column order
// does not matter and extra columns are ignored. The id column is kept apart
// from the feature record.
func Read(r io.Reader, s schema.Schema, labeled bool) (*Dataset, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	inputs := s.InputFields()
	columns := make([]int, len(inputs))
	for i, field := range inputs {
		col, ok := index[field]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, field)
		}
		columns[i] = col
	}
	target, idCol := -1, -1
	if labeled {
		col, ok := index[s.TargetField]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, s.TargetField)
		}
		target = col
	}
	if s.IDField != "" {
		if col, ok := index[s.IDField]; ok {
			idCol = col
		} else if labeled {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, s.IDField)
		}
	}

	ds := &Dataset{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		rec := make(features.Record, len(inputs))
		for i, field := range inputs {
			rec[field] = row[columns[i]]
		}
		ds.Records = append(ds.Records, rec)

		if idCol >= 0 {
			ds.IDs = append(ds.IDs, strings.TrimSpace(row[idCol]))
		} else {
			ds.IDs = append(ds.IDs, fmt.Sprintf("row-%d", len(ds.Records)))
		}
		if labeled {
			label := 0
			if strings.TrimSpace(row[target]) == PositiveLabel {
				label = 1
			}
			ds.Labels = append(ds.Labels, label)
		}
	}
	if len(ds.Records) == 0 {
		return nil, errors.New("dataset has no rows")
	}
	return ds, nil
}
