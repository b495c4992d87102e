package features

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidScaler = errors.New("invalid scaler")

// Scaler is the standardization fitted at training time. It is never refit
// while serving.
type Scaler struct {
	Version string    `json:"version" yaml:"version"`
	Columns []string  `json:"columns" yaml:"columns"`
	Mean    []float64 `json:"mean" yaml:"mean"`
	Std     []float64 `json:"std" yaml:"std"`

	index map[string]int
}

// Validate checks shape and that every std is finite and positive. It must
// run before the scaler is shared between goroutines.
func (s *Scaler) Validate() error {
	if len(s.Columns) != len(s.Mean) || len(s.Columns) != len(s.Std) {
		return fmt.Errorf("%w: %d columns, %d means, %d stds", ErrInvalidScaler, len(s.Columns), len(s.Mean), len(s.Std))
	}
	seen := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		if seen[c] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidScaler, c)
		}
		seen[c] = true
		if !finite(s.Mean[i]) {
			return fmt.Errorf("%w: mean of %q is %v", ErrInvalidScaler, c, s.Mean[i])
		}
		if !finite(s.Std[i]) || s.Std[i] <= 0 {
			return fmt.Errorf("%w: std of %q is %v", ErrInvalidScaler, c, s.Std[i])
		}
	}
	idx := make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		idx[c] = i
	}
	s.index = idx
	return nil
}

func (s *Scaler) lookup(column string) (int, error) {
	if s.index != nil {
		if i, ok := s.index[column]; ok {
			return i, nil
		}
	} else {
		for i, c := range s.Columns {
			if c == column {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: no statistics for %q", ErrInvalidScaler, column)
}

// Stats returns the mean and std recorded for column.
func (s *Scaler) Stats(column string) (mean, std float64, err error) {
	i, err := s.lookup(column)
	if err != nil {
		return 0, 0, err
	}
	return s.Mean[i], s.Std[i], nil
}

// Transform standardizes v for column.
func (s *Scaler) Transform(column string, v float64) (float64, error) {
	mean, std, err := s.Stats(column)
	if err != nil {
		return 0, err
	}
	return (v - mean) / std, nil
}

// Inverse maps a standardized value back to raw units.
func (s *Scaler) Inverse(column string, z float64) (float64, error) {
	mean, std, err := s.Stats(column)
	if err != nil {
		return 0, err
	}
	return z*std + mean, nil
}

// FitScaler computes population mean and std of the continuous columns over
// canonical raw rows. A constant column gets std 1. This exists for tooling
// and tests; production scalers come with the trained bundle.
func FitScaler(version string, rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to fit", ErrInvalidScaler)
	}
	cols := ContinuousColumns()
	s := &Scaler{
		Version: version,
		Columns: cols,
		Mean:    make([]float64, len(cols)),
		Std:     make([]float64, len(cols)),
	}
	n := float64(len(rows))
	for ci, name := range cols {
		j := schemaIndex[name]
		var sum float64
		for ri, row := range rows {
			if len(row) != Width() {
				return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrInvalidScaler, ri, len(row), Width())
			}
			sum += row[j]
		}
		mean := sum / n
		var sq float64
		for _, row := range rows {
			d := row[j] - mean
			sq += d * d
		}
		std := math.Sqrt(sq / n)
		if std == 0 {
			std = 1
		}
		s.Mean[ci], s.Std[ci] = mean, std
	}
	return s, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
