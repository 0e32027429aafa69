package model

import (
	"errors"
	"math"
	"testing"
)

func TestCoefficientStars(t *testing.T) {
	tests := []struct {
		est, se float64
		want    string
	}{
		{1.0, 1.0, ""},     // z = 1
		{2.0, 1.0, "*"},    // z = 2
		{3.0, 1.0, "**"},   // z = 3
		{4.0, 1.0, "***"},  // z = 4
		{-4.0, 1.0, "***"}, // sign must not matter
		{1.0, 0.0, ""},     // unusable SE
	}
	for _, tt := range tests {
		c := Coefficient{Estimate: tt.est, SE: tt.se}
		if got := c.Stars(); got != tt.want {
			t.Errorf("Stars(%v/%v) = %q, want %q", tt.est, tt.se, got, tt.want)
		}
	}
}

func TestCoefficientZHandlesBadSE(t *testing.T) {
	if z := (Coefficient{Estimate: 2, SE: math.NaN()}).Z(); z != 0 {
		t.Errorf("Z with NaN SE = %v, want 0", z)
	}
	if (Coefficient{Estimate: 5, SE: 1}).Z() != 5 {
		t.Error("Z = estimate/SE")
	}
}

func TestSequenceAccessors(t *testing.T) {
	empty := &Fitted{Name: "m0_empty"}
	final := &Fitted{Name: "m2"}
	seq := &Sequence{
		Name: "two_level",
		Models: []SequenceEntry{
			{Spec: Spec{Name: "m0_empty"}, Fitted: empty},
			{Spec: Spec{Name: "m1"}, Err: errors.New("singular")},
			{Spec: Spec{Name: "m2"}, Fitted: final},
		},
	}

	if seq.Empty() != empty {
		t.Error("Empty() should return the first entry's fit")
	}
	if seq.Final() != final {
		t.Error("Final() should return the last successful fit")
	}
	if got := len(seq.Fitted()); got != 2 {
		t.Errorf("Fitted() returned %d models, want 2", got)
	}
	if _, ok := seq.Failures()["m1"]; !ok {
		t.Error("Failures() should record the failed model by name")
	}
}

func TestNewICCResult(t *testing.T) {
	icc := NewICCResult(17.8, 512.4)

	want := 17.8 / (17.8 + 512.4)
	if math.Abs(icc.ICC-want) > 1e-12 {
		t.Errorf("ICC = %v, want %v", icc.ICC, want)
	}
	if math.Abs(icc.PctBetween+icc.PctWithin-100) > 1e-9 {
		t.Error("percentages must sum to 100")
	}
	if icc.VarTotal != 17.8+512.4 {
		t.Errorf("VarTotal = %v", icc.VarTotal)
	}
}

func TestNewICCResultZeroVariance(t *testing.T) {
	icc := NewICCResult(0, 0)
	if icc.ICC != 0 {
		t.Errorf("ICC with zero variance = %v, want 0", icc.ICC)
	}
}
