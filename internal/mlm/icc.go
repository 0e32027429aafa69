package mlm

import (
	"log"

	"buurtstat/domain/core"
	"buurtstat/domain/model"
	apperrors "buurtstat/internal/errors"
)

// DecomposeVariance computes the intraclass correlation from a
// sequence's empty model. Only the unconditional model gives a clean
// between/within split, so conditional models are never used here.
func DecomposeVariance(seq *model.Sequence) (model.ICCResult, error) {
	empty := seq.Empty()
	if empty == nil {
		return model.ICCResult{}, apperrors.ModelError(
			"variance decomposition needs a fitted empty model", core.ErrNotFound)
	}

	icc := model.NewICCResult(empty.VarIntercept, empty.VarResidual)
	log.Printf("[MLM] Variance (between): %.2f (%.1f%%)", icc.VarBetween, icc.PctBetween)
	log.Printf("[MLM] Variance (residual): %.2f (%.1f%%)", icc.VarResidual, icc.PctWithin)
	log.Printf("[MLM] ICC: %.4f", icc.ICC)
	log.Printf("[MLM] Interpretation: %.1f%% of outcome variance lies between neighborhoods",
		icc.PctBetween)
	return icc, nil
}
