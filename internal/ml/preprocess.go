package ml

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler standardizes numeric columns to zero mean and unit
// variance. Columns with zero variance pass through unscaled rather than
// producing a division by zero.
type StandardScaler struct {
	Mean   []float64
	Std    []float64
	Fitted bool
}

// Fit computes per-column mean and population standard deviation.
func (s *StandardScaler) Fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	cols := len(rows[0])
	s.Mean = make([]float64, cols)
	s.Std = make([]float64, cols)
	col := make([]float64, len(rows))
	for c := 0; c < cols; c++ {
		for r := range rows {
			col[r] = rows[r][c]
		}
		s.Mean[c] = stat.Mean(col, nil)
		s.Std[c] = stat.PopStdDev(col, nil)
		if s.Std[c] == 0 {
			s.Std[c] = 1
		}
	}
	s.Fitted = true
}

// Transform standardizes rows using the fitted statistics.
func (s *StandardScaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for r, row := range rows {
		scaled := make([]float64, len(row))
		for c, v := range row {
			if c < len(s.Mean) {
				scaled[c] = (v - s.Mean[c]) / s.Std[c]
			}
		}
		out[r] = scaled
	}
	return out
}

// FitTransform fits the scaler and standardizes the same rows.
func (s *StandardScaler) FitTransform(rows [][]float64) [][]float64 {
	s.Fit(rows)
	return s.Transform(rows)
}

// LabelEncoder is a bijective mapping between category strings and small
// integer ids, built once at classifier training time.
type LabelEncoder struct {
	Classes []string
}

// Fit records the sorted set of distinct labels.
func (e *LabelEncoder) Fit(labels []string) {
	seen := make(map[string]struct{}, len(labels))
	classes := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			classes = append(classes, l)
		}
	}
	sort.Strings(classes)
	e.Classes = classes
}

// Encode maps a label to its id.
func (e *LabelEncoder) Encode(label string) (int, bool) {
	i := sort.SearchStrings(e.Classes, label)
	if i < len(e.Classes) && e.Classes[i] == label {
		return i, true
	}
	return 0, false
}

// EncodeAll maps every label; unknown labels report false.
func (e *LabelEncoder) EncodeAll(labels []string) ([]int, bool) {
	ids := make([]int, len(labels))
	for i, l := range labels {
		id, ok := e.Encode(l)
		if !ok {
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}

// Decode maps an id back to its label.
func (e *LabelEncoder) Decode(id int) (string, bool) {
	if id < 0 || id >= len(e.Classes) {
		return "", false
	}
	return e.Classes[id], true
}
