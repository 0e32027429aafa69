package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound       = errors.New("resource not found")
	ErrColumnNotFound = fmt.Errorf("%w: column", ErrNotFound)
	ErrRunNotFound    = fmt.Errorf("%w: run", ErrNotFound)

	// Extraction errors
	ErrNoRegionColumn = errors.New("no recognizable region code column")
	ErrMissingColumns = errors.New("required raw columns missing")

	// Merge errors
	ErrRowCountChanged = errors.New("left join changed respondent row count")
	ErrDuplicateKey    = errors.New("duplicate key in level table")
	ErrLengthMismatch  = errors.New("column length mismatch")

	// Estimation errors
	ErrNotConverged     = errors.New("REML estimation did not converge")
	ErrSingularDesign   = errors.New("design matrix is singular")
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrZeroVariance     = errors.New("variable has zero variance")
)

// Error constructors with context
func NewColumnError(column string) error {
	return fmt.Errorf("%w: %s", ErrColumnNotFound, column)
}

func NewConvergenceError(model string, detail string) error {
	return fmt.Errorf("%w: model %s: %s", ErrNotConverged, model, detail)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsFatalExtractError(err error) bool {
	return errors.Is(err, ErrNoRegionColumn) ||
		errors.Is(err, ErrMissingColumns)
}

func IsMergeInvariantError(err error) bool {
	return errors.Is(err, ErrRowCountChanged) ||
		errors.Is(err, ErrDuplicateKey)
}

func IsEstimationError(err error) bool {
	return errors.Is(err, ErrNotConverged) ||
		errors.Is(err, ErrSingularDesign) ||
		errors.Is(err, ErrInsufficientData)
}
