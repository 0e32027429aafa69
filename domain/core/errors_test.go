package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		fatal   bool
		merge   bool
		estim   bool
		missing bool
	}{
		{"missing columns", fmt.Errorf("survey: %w", ErrMissingColumns), true, false, false, false},
		{"no region column", ErrNoRegionColumn, true, false, false, false},
		{"row count changed", fmt.Errorf("buurt join: %w", ErrRowCountChanged), false, true, false, false},
		{"duplicate key", ErrDuplicateKey, false, true, false, false},
		{"convergence", NewConvergenceError("m3_controls", "iteration cap"), false, false, true, false},
		{"singular design", ErrSingularDesign, false, false, true, false},
		{"not found", NewColumnError("weegfac"), false, false, false, true},
		{"plain error", errors.New("disk full"), false, false, false, false},
	}
	for _, tc := range cases {
		if got := IsFatalExtractError(tc.err); got != tc.fatal {
			t.Errorf("%s: IsFatalExtractError = %v, want %v", tc.name, got, tc.fatal)
		}
		if got := IsMergeInvariantError(tc.err); got != tc.merge {
			t.Errorf("%s: IsMergeInvariantError = %v, want %v", tc.name, got, tc.merge)
		}
		if got := IsEstimationError(tc.err); got != tc.estim {
			t.Errorf("%s: IsEstimationError = %v, want %v", tc.name, got, tc.estim)
		}
		if got := IsNotFoundError(tc.err); got != tc.missing {
			t.Errorf("%s: IsNotFoundError = %v, want %v", tc.name, got, tc.missing)
		}
	}
}

func TestConvergenceErrorCarriesModel(t *testing.T) {
	err := NewConvergenceError("m4_moderation", "gradient stalled")
	if !errors.Is(err, ErrNotConverged) {
		t.Error("convergence error does not unwrap to ErrNotConverged")
	}
	if got := err.Error(); got != "REML estimation did not converge: model m4_moderation: gradient stalled" {
		t.Errorf("unexpected message %q", got)
	}
}
