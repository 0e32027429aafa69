package recode

import (
	"math"
	"testing"

	"buurtstat/domain/frame"
)

func TestStandardizerTransformsContextVars(t *testing.T) {
	data := frame.New(3)
	data.AddNumeric("b_pop_dens", []float64{10, 20, 30})
	data.AddNumeric("w_pop_total", []float64{100, 100, 100}) // zero variance
	data.AddNumeric("age_raw", []float64{20, 40, 60})        // not a context var

	s := NewStandardizer()
	if err := s.FitTransform(data); err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	z := data.Numeric("b_pop_dens")
	if !almostEqual(z[0], -1, 1e-9) || !almostEqual(z[1], 0, 1e-9) || !almostEqual(z[2], 1, 1e-9) {
		t.Errorf("standardized b_pop_dens = %v", z)
	}

	if got := data.Numeric("w_pop_total"); got[0] != 100 {
		t.Errorf("zero-variance column must pass through, got %v", got)
	}
	if got := data.Numeric("age_raw"); got[0] != 20 {
		t.Errorf("non-context column must pass through, got %v", got)
	}
}

func TestStandardizerFreezesMoments(t *testing.T) {
	full := frame.New(4)
	full.AddNumeric("b_perc_low40_hh", []float64{10, 20, 30, 40})

	s := NewStandardizer()
	s.Fit(full)

	m, sd, ok := s.Moments("b_perc_low40_hh")
	if !ok {
		t.Fatal("moments should be recorded")
	}
	if !almostEqual(m, 25, 1e-9) {
		t.Errorf("mean = %v, want 25", m)
	}

	// A subsample transformed later must reuse the full-sample scale.
	sub := frame.New(2)
	sub.AddNumeric("b_perc_low40_hh", []float64{10, 40})
	if err := s.Transform(sub); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	z := sub.Numeric("b_perc_low40_hh")
	if !almostEqual(z[0], (10-25)/sd, 1e-9) {
		t.Errorf("subsample z = %v, want full-sample scaling", z[0])
	}
}

func TestStandardizerSkipsMissing(t *testing.T) {
	data := frame.New(3)
	data.AddNumeric("g_pop_total", []float64{1, math.NaN(), 3})

	if err := NewStandardizer().FitTransform(data); err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	if !math.IsNaN(data.Numeric("g_pop_total")[1]) {
		t.Error("missing values must stay missing after standardization")
	}
}

func TestAddInequalityIndices(t *testing.T) {
	data := frame.New(2)
	data.AddNumeric("b_perc_low40_hh", []float64{30, 0})
	data.AddNumeric("b_perc_high20_hh", []float64{20, 25})
	data.AddNumeric("w_perc_low40_hh", []float64{35, 45})
	// w_perc_high20_hh absent: no wijk indices.

	if err := AddInequalityIndices(data); err != nil {
		t.Fatalf("AddInequalityIndices failed: %v", err)
	}

	pol := data.Numeric("b_income_polarization")
	if pol[0] != 50 || pol[1] != 25 {
		t.Errorf("polarization = %v", pol)
	}

	ratio := data.Numeric("b_income_ratio")
	if !almostEqual(ratio[0], 20/30.01, 1e-9) {
		t.Errorf("ratio = %v, want %v", ratio[0], 20/30.01)
	}
	// Zero low-income share stays finite through the floor.
	if !almostEqual(ratio[1], 25/0.01, 1e-6) {
		t.Errorf("floored ratio = %v", ratio[1])
	}

	if data.HasColumn("w_income_polarization") {
		t.Error("wijk indices should not exist without both shares")
	}
}
