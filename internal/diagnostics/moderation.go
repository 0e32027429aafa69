package diagnostics

import (
	"fmt"
	"log"

	"buurtstat/domain/frame"
	"buurtstat/domain/model"
	"buurtstat/domain/report"
	apperrors "buurtstat/internal/errors"
	"buurtstat/internal/mlm"
)

// moderatorLevels are the wealth-index values at which simple slopes
// are evaluated (count of assets owned, 0 through 4).
var moderatorLevels = []float64{0, 1, 2, 3, 4}

// ModerationTester runs the cross-level interaction test: does
// individual wealth moderate the neighborhood inequality effect on
// redistribution support?
type ModerationTester struct {
	fitter *mlm.SequenceFitter
	est    *mlm.Estimator

	Predictor string
	Moderator string
}

func NewModerationTester(est *mlm.Estimator) *ModerationTester {
	return &ModerationTester{
		fitter:    mlm.NewSequenceFitter(est),
		est:       est,
		Predictor: "b_perc_low40_hh",
		Moderator: "wealth_index",
	}
}

// Test fits the interaction model and evaluates simple slopes of the
// neighborhood effect across moderator levels.
func (t *ModerationTester) Test(data *frame.Frame) (*report.ModerationResult, error) {
	log.Printf("[Diagnostics] Testing cross-level moderation (%s x %s)...",
		t.Predictor, t.Moderator)

	for _, name := range []string{"DV_single", t.Predictor, t.Moderator, "buurt_id"} {
		if !data.HasColumn(name) {
			return nil, apperrors.ValidationError(
				"moderation test missing required variable "+name, nil)
		}
	}

	terms := []model.Term{
		model.Continuous(t.Predictor),
		model.Continuous(t.Moderator),
		model.Interaction(t.Predictor, t.Moderator),
	}
	terms = append(terms, t.fitter.ControlTerms(data, false)...)
	spec := model.NewSpec("moderation", "DV_single", "buurt_id", terms...)

	design, err := mlm.BuildDesign(data, spec)
	if err != nil {
		return nil, err
	}
	fitted, err := t.est.Fit(spec, design)
	if err != nil {
		return nil, err
	}

	main, ok := fitted.Coefficient(t.Predictor)
	if !ok {
		return nil, apperrors.ModelError("moderation model lost main effect", nil)
	}
	interaction, ok := fitted.Coefficient(t.Predictor + ":" + t.Moderator)
	if !ok {
		return nil, apperrors.ModelError("moderation model lost interaction term", nil)
	}

	result := &report.ModerationResult{
		Moderator:    t.Moderator,
		MainEffect:   main,
		Interaction:  interaction,
		SimpleSlopes: make(map[string]float64, len(moderatorLevels)),
		N:            fitted.NObs,
	}

	log.Printf("[Diagnostics] Main effect: %.3f (SE=%.3f)", main.Estimate, main.SE)
	log.Printf("[Diagnostics] Interaction: %.3f (SE=%.3f)", interaction.Estimate, interaction.SE)

	// Simple slope at moderator value w: main + interaction * w.
	for _, w := range moderatorLevels {
		slope := main.Estimate + interaction.Estimate*w
		result.SimpleSlopes[fmt.Sprintf("%.0f", w)] = slope
		log.Printf("[Diagnostics] Wealth = %.0f: neighborhood effect = %.3f", w, slope)
	}

	switch {
	case interaction.Significant() && interaction.Estimate < 0:
		result.Verdict = report.VerdictSupported
	case interaction.Significant():
		result.Verdict = report.VerdictOpposite
	default:
		result.Verdict = report.VerdictNotSupported
	}
	log.Printf("[Diagnostics] Moderation verdict: %s", result.Verdict)
	return result, nil
}
