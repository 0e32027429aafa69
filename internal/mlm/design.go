// Package mlm fits linear random-intercept models by restricted
// maximum likelihood and decomposes outcome variance across the
// geographic hierarchy.
package mlm

import (
	"fmt"
	"log"
	"sort"

	"buurtstat/domain/frame"
	"buurtstat/domain/model"
	apperrors "buurtstat/internal/errors"
)

// Design is a model specification realized against a concrete sample:
// the response vector, the fixed-effects matrix with intercept, and
// the cluster assignment of every row.
type Design struct {
	Y        []float64
	X        [][]float64 // row-major, X[i][0] == 1 (intercept)
	Labels   []string    // one per column of X
	Clusters []string    // cluster key per row, parallel to Y
	Groups   []Group     // rows per cluster, ordered by first appearance
}

// Group is one cluster's contiguous row set in the design.
type Group struct {
	Key  string
	Rows []int
}

// NObs returns the number of observations in the design
func (d *Design) NObs() int { return len(d.Y) }

// NParams returns the number of fixed-effect columns
func (d *Design) NParams() int { return len(d.Labels) }

// NGroups returns the number of clusters
func (d *Design) NGroups() int { return len(d.Groups) }

// BuildDesign realizes a spec against data. Rows with a missing value
// on any required column are dropped (listwise deletion), then the
// remaining rows are encoded: continuous terms pass through,
// categorical terms become reference-coded dummies, interactions
// multiply their two continuous columns.
func BuildDesign(data *frame.Frame, spec model.Spec) (*Design, error) {
	if err := spec.Validate(); err != nil {
		return nil, apperrors.ModelError("invalid model specification", err)
	}
	for _, name := range spec.RequiredColumns() {
		if !data.HasColumn(name) {
			return nil, apperrors.ModelError(
				fmt.Sprintf("model %s: column %s not in data", spec.Name, name), nil)
		}
	}

	keep := completeRows(data, spec.RequiredColumns())
	if len(keep) == 0 {
		return nil, apperrors.ModelError(
			fmt.Sprintf("model %s: no complete observations", spec.Name), nil)
	}

	d := &Design{
		Y:        make([]float64, len(keep)),
		Labels:   []string{"Intercept"},
		Clusters: make([]string, len(keep)),
	}

	outcome := data.Numeric(spec.Outcome)
	groupCol, _ := data.Column(spec.Grouping)
	for i, row := range keep {
		d.Y[i] = outcome[row]
		d.Clusters[i] = groupValue(groupCol, row)
	}

	// Encode columns term by term so the layout is deterministic.
	columns := [][]float64{ones(len(keep))}
	for _, term := range spec.Terms {
		switch term.Kind {
		case model.TermContinuous:
			src := data.Numeric(term.Name)
			col := make([]float64, len(keep))
			for i, row := range keep {
				col[i] = src[row]
			}
			columns = append(columns, col)
			d.Labels = append(d.Labels, term.Label())

		case model.TermCategorical:
			levels := term.Levels
			if len(levels) == 0 {
				levels = observedLevels(data, term.Name, keep)
			}
			ref := term.Reference
			if ref == "" && len(levels) > 0 {
				ref = levels[0]
			}
			col, _ := data.Column(term.Name)
			for _, level := range levels {
				if level == ref {
					continue
				}
				dummy := make([]float64, len(keep))
				for i, row := range keep {
					if col.Strings[row] == level {
						dummy[i] = 1
					}
				}
				columns = append(columns, dummy)
				d.Labels = append(d.Labels, fmt.Sprintf("%s[%s]", term.Name, level))
			}

		case model.TermInteraction:
			left := data.Numeric(term.Left)
			right := data.Numeric(term.Right)
			col := make([]float64, len(keep))
			for i, row := range keep {
				col[i] = left[row] * right[row]
			}
			columns = append(columns, col)
			d.Labels = append(d.Labels, term.Label())
		}
	}

	// Drop non-intercept columns that do not vary over the kept rows:
	// an unobserved category level or a constant covariate in a
	// subsample would otherwise make the normal equations singular.
	varying := [][]float64{columns[0]}
	labels := []string{d.Labels[0]}
	for j := 1; j < len(columns); j++ {
		if constantColumn(columns[j]) {
			log.Printf("[MLM] %s: dropping constant design column %s", spec.Name, d.Labels[j])
			continue
		}
		varying = append(varying, columns[j])
		labels = append(labels, d.Labels[j])
	}
	columns = varying
	d.Labels = labels

	// Transpose to row-major.
	d.X = make([][]float64, len(keep))
	for i := range d.X {
		row := make([]float64, len(columns))
		for j, col := range columns {
			row[j] = col[i]
		}
		d.X[i] = row
	}

	d.Groups = groupRows(d.Clusters)
	return d, nil
}

func completeRows(data *frame.Frame, required []string) []int {
	n := data.NumRows()
	var rows []int
	for i := 0; i < n; i++ {
		ok := true
		for _, name := range required {
			col, _ := data.Column(name)
			if col.IsMissing(i) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	return rows
}

func groupValue(col *frame.Column, row int) string {
	if col.Type == frame.TypeString {
		return col.Strings[row]
	}
	return fmt.Sprintf("%g", col.Floats[row])
}

// observedLevels derives a categorical term's levels from the kept
// rows, sorted for a stable dummy layout.
func observedLevels(data *frame.Frame, name string, keep []int) []string {
	col, _ := data.Column(name)
	seen := make(map[string]bool)
	var levels []string
	for _, row := range keep {
		if col.Missing[row] {
			continue
		}
		v := col.Strings[row]
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	sort.Strings(levels)
	return levels
}

func groupRows(clusters []string) []Group {
	index := make(map[string]int)
	var groups []Group
	for i, key := range clusters {
		j, ok := index[key]
		if !ok {
			j = len(groups)
			index[key] = j
			groups = append(groups, Group{Key: key})
		}
		groups[j].Rows = append(groups[j].Rows, i)
	}
	return groups
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func constantColumn(col []float64) bool {
	for _, v := range col[1:] {
		if v != col[0] {
			return false
		}
	}
	return true
}

// columnVariance reports whether a design column varies at all.
func columnVariance(x [][]float64, j int) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	var mean float64
	for i := range x {
		mean += x[i][j]
	}
	mean /= n
	var ss float64
	for i := range x {
		d := x[i][j] - mean
		ss += d * d
	}
	return ss / n
}
