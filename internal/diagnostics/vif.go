// Package diagnostics checks the fitted models: collinearity,
// residual shape, robustness to alternative specifications, and the
// cross-level moderation test.
package diagnostics

import (
	"log"
	"math"
	"strings"

	"buurtstat/domain/frame"

	"gonum.org/v1/gonum/mat"
)

// vifVars are the continuous predictors screened for collinearity.
var vifVars = []string{
	"b_perc_low40_hh", "age", "education",
	"b_pop_dens", "b_pop_over_65", "b_pop_nonwest",
	"b_perc_low_inc_hh", "b_perc_soc_min_hh",
}

// VIFResult is one predictor's variance inflation factor.
type VIFResult struct {
	Variable string  `json:"variable"`
	VIF      float64 `json:"vif"`
}

// CalculateVIF regresses each predictor on the others (with
// intercept) over complete cases and reports 1/(1-R²) per predictor.
// Returns the per-variable factors and the names above threshold.
func CalculateVIF(data *frame.Frame, threshold float64) ([]VIFResult, []string) {
	log.Printf("[Diagnostics] Calculating VIF...")

	var names []string
	for _, v := range vifVars {
		if data.HasColumn(v) {
			names = append(names, v)
		}
	}
	if len(names) < 2 {
		return nil, nil
	}

	// Complete cases across the screened predictors.
	cols := make([][]float64, len(names))
	for j, name := range names {
		cols[j] = data.Numeric(name)
	}
	var rows []int
	for i := 0; i < data.NumRows(); i++ {
		ok := true
		for j := range cols {
			if math.IsNaN(cols[j][i]) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	if len(rows) <= len(names)+1 {
		return nil, nil
	}

	results := make([]VIFResult, len(names))
	var high []string
	for j, name := range names {
		r2 := rsquared(cols, rows, j)
		vif := math.NaN()
		if !math.IsNaN(r2) && r2 < 1 {
			vif = 1 / (1 - r2)
		}
		results[j] = VIFResult{Variable: name, VIF: vif}
		if vif > threshold {
			high = append(high, name)
		}
	}

	if len(high) > 0 {
		log.Printf("[Diagnostics] Warning: high VIF (>%.1f): %s", threshold, strings.Join(high, ", "))
	} else {
		log.Printf("[Diagnostics] VIF OK (all < %.1f)", threshold)
	}
	return results, high
}

// rsquared runs OLS of column target on the remaining columns plus an
// intercept and returns the coefficient of determination.
func rsquared(cols [][]float64, rows []int, target int) float64 {
	n := len(rows)
	p := len(cols) // intercept + len(cols)-1 predictors

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, row := range rows {
		x.Set(i, 0, 1)
		k := 1
		for j := range cols {
			if j == target {
				continue
			}
			x.Set(i, k, cols[j][row])
			k++
		}
		y.SetVec(i, cols[target][row])
	}

	var qr mat.QR
	qr.Factorize(x)
	beta := mat.NewDense(p, 1, nil)
	if err := qr.SolveTo(beta, false, y); err != nil {
		return math.NaN()
	}

	var fitted mat.VecDense
	fitted.MulVec(x, beta.ColView(0))

	mean := 0.0
	for i := 0; i < n; i++ {
		mean += y.AtVec(i)
	}
	mean /= float64(n)

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		r := y.AtVec(i) - fitted.AtVec(i)
		ssRes += r * r
		d := y.AtVec(i) - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		return math.NaN()
	}
	return 1 - ssRes/ssTot
}
