package diagnostics

import (
	"context"
	"log"
	"math"
	"sync"

	"buurtstat/domain/frame"
	"buurtstat/domain/model"
	"buurtstat/domain/report"
	"buurtstat/internal/mlm"

	"golang.org/x/sync/errgroup"
)

// sensitivitySpec describes one robustness check: an outcome and key
// predictor swap, an optional row filter, and whether born_in_nl stays
// among the controls.
type sensitivitySpec struct {
	name         string
	outcome      string
	predictor    string
	dropBornInNL bool
	interaction  string // moderator column for the interaction variant
	filter       func(data *frame.Frame) []bool
	minN         int
}

// SensitivityRunner refits the final specification under alternative
// outcomes, measures, and subsamples. Each specification is
// independent: one failing or skipped spec never blocks the others.
type SensitivityRunner struct {
	fitter *mlm.SequenceFitter
	est    *mlm.Estimator
}

func NewSensitivityRunner(est *mlm.Estimator) *SensitivityRunner {
	return &SensitivityRunner{fitter: mlm.NewSequenceFitter(est), est: est}
}

// Run executes all applicable specifications concurrently and returns
// one row per spec, in the fixed declaration order.
func (r *SensitivityRunner) Run(ctx context.Context, data *frame.Frame) []report.SensitivityRow {
	log.Printf("[Diagnostics] Running sensitivity analyses...")

	specs := []sensitivitySpec{
		{name: "Base (DV_single)", outcome: "DV_single", predictor: "b_perc_low40_hh"},
		{name: "2-item composite", outcome: "DV_2item_scaled", predictor: "b_perc_low40_hh"},
		{name: "3-item composite", outcome: "DV_3item_scaled", predictor: "b_perc_low40_hh"},
		{
			name: "Dutch-born only", outcome: "DV_single", predictor: "b_perc_low40_hh",
			dropBornInNL: true, minN: 100,
			filter: func(f *frame.Frame) []bool { return dutchBornMask(f) },
		},
		{name: "Income ratio (high/low)", outcome: "DV_single", predictor: "b_income_ratio"},
		{
			name: "With wealth interaction", outcome: "DV_single",
			predictor: "b_perc_low40_hh", interaction: "wealth_index",
		},
	}

	rows := make([][]report.SensitivityRow, len(specs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := r.runOne(data, spec)
			mu.Lock()
			rows[i] = out
			mu.Unlock()
			return nil
		})
	}
	// Individual failures are encoded in the rows, never returned.
	_ = g.Wait()

	var flat []report.SensitivityRow
	for _, set := range rows {
		flat = append(flat, set...)
	}
	for _, row := range flat {
		if row.Skipped {
			log.Printf("[Diagnostics] %s: skipped (%s)", row.Specification, row.SkipReason)
			continue
		}
		star := ""
		if row.Significant {
			star = "*"
		}
		log.Printf("[Diagnostics] %s: coef=%.3f (SE=%.3f), N=%d%s",
			row.Specification, row.Coefficient, row.SE, row.N, star)
	}
	return flat
}

// runOne fits one specification. The interaction variant emits two
// rows: the main effect and the interaction term.
func (r *SensitivityRunner) runOne(data *frame.Frame, s sensitivitySpec) []report.SensitivityRow {
	skip := func(reason string) []report.SensitivityRow {
		return []report.SensitivityRow{{
			Specification: s.name, Predictor: s.predictor, Skipped: true, SkipReason: reason,
		}}
	}

	if !data.HasColumn(s.outcome) {
		return skip("outcome " + s.outcome + " not available")
	}
	if !data.HasColumn(s.predictor) {
		return skip("predictor " + s.predictor + " not available")
	}
	if s.interaction != "" && !data.HasColumn(s.interaction) {
		return skip("moderator " + s.interaction + " not available")
	}

	subset := data
	if s.filter != nil {
		subset = data.Filter(s.filter(data))
	}

	spec := r.buildSpec(subset, s)
	design, err := mlm.BuildDesign(subset, spec)
	if err != nil {
		return skip(err.Error())
	}
	if s.minN > 0 && design.NObs() <= s.minN {
		return skip("too few observations after filtering")
	}

	fitted, err := r.est.Fit(spec, design)
	if err != nil {
		return skip(err.Error())
	}

	rows := []report.SensitivityRow{coefRow(s.name, s.predictor, fitted)}
	if s.interaction != "" {
		label := s.predictor + ":" + s.interaction
		rows = append(rows, coefRow("  -> Interaction term", label, fitted))
	}
	return rows
}

// buildSpec assembles the single-model specification for one check:
// key predictor plus the base control set.
func (r *SensitivityRunner) buildSpec(data *frame.Frame, s sensitivitySpec) model.Spec {
	terms := []model.Term{model.Continuous(s.predictor)}
	if s.interaction != "" {
		terms = append(terms,
			model.Continuous(s.interaction),
			model.Interaction(s.predictor, s.interaction))
	}

	terms = append(terms, r.fitter.ControlTerms(data, s.dropBornInNL)...)
	return model.NewSpec(s.name, s.outcome, "buurt_id", terms...)
}

func coefRow(name, label string, fitted *model.Fitted) report.SensitivityRow {
	row := report.SensitivityRow{Specification: name, Predictor: label, N: fitted.NObs}
	c, ok := fitted.Coefficient(label)
	if !ok {
		row.Skipped = true
		row.SkipReason = "coefficient " + label + " not estimated"
		return row
	}
	row.Coefficient = c.Estimate
	row.SE = c.SE
	row.Significant = c.Significant()
	return row
}

// dutchBornMask selects respondents born in the Netherlands. The item
// may arrive as 0/1 or with the affirmative as the maximum code, so
// the maximum observed value counts as Dutch-born.
func dutchBornMask(data *frame.Frame) []bool {
	vals := data.Numeric("born_in_nl")
	maxVal := math.Inf(-1)
	for _, v := range vals {
		if !math.IsNaN(v) && v > maxVal {
			maxVal = v
		}
	}
	target := 1.0
	if maxVal > 1 {
		target = maxVal
	}
	mask := make([]bool, len(vals))
	for i, v := range vals {
		mask[i] = !math.IsNaN(v) && v == target
	}
	return mask
}
