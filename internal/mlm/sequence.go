package mlm

import (
	"log"
	"sort"

	"buurtstat/domain/frame"
	"buurtstat/domain/model"
)

// sparseCovariateN is the minimum number of observed values a sparse
// covariate needs before it enters a model formula.
const sparseCovariateN = 100

// KeyPredictor is the focal neighborhood predictor in every sequence.
const KeyPredictor = "b_perc_low40_hh"

var (
	sexLevels = []string{"Male", "Female", "Other"}

	buurtControls = []string{
		"b_pop_dens", "b_pop_over_65", "b_pop_nonwest",
		"b_perc_low_inc_hh", "b_perc_soc_min_hh",
	}
	wijkControls = []string{
		"w_pop_dens", "w_pop_over_65", "w_pop_nonwest",
		"w_perc_low_inc_hh", "w_perc_soc_min_hh",
	}
)

// SequenceFitter builds and fits the nested model sequences.
type SequenceFitter struct {
	estimator       *Estimator
	sparseThreshold int
}

func NewSequenceFitter(est *Estimator) *SequenceFitter {
	return &SequenceFitter{estimator: est, sparseThreshold: sparseCovariateN}
}

// WithSparseThreshold overrides the default minimum observed count for
// optional covariates. Non-positive values keep the default.
func (f *SequenceFitter) WithSparseThreshold(n int) *SequenceFitter {
	if n > 0 {
		f.sparseThreshold = n
	}
	return f
}

// individualControlTerms builds the individual-level term list, with
// occupation included only when it is dense enough to estimate.
func (f *SequenceFitter) individualControlTerms(data *frame.Frame) []model.Term {
	terms := []model.Term{
		model.Continuous("age"),
		model.Categorical("sex", sexLevels...),
		model.Continuous("education"),
		categoricalFromData(data, "employment_status"),
		model.Continuous("born_in_nl"),
	}
	if data.HasColumn("occupation") && data.NonMissingCount("occupation") > f.sparseThreshold {
		terms = append(terms, categoricalFromData(data, "occupation"))
	}
	return terms
}

// ControlTerms returns the base control set used by the sensitivity
// checks: individual controls (without occupation, which the
// robustness specs leave out) plus available buurt controls. Subsample
// checks on Dutch-born respondents drop born_in_nl, which is constant
// there.
func (f *SequenceFitter) ControlTerms(data *frame.Frame, dropBornInNL bool) []model.Term {
	terms := []model.Term{
		model.Continuous("age"),
		model.Categorical("sex", sexLevels...),
		model.Continuous("education"),
		categoricalFromData(data, "employment_status"),
	}
	if !dropBornInNL {
		terms = append(terms, model.Continuous("born_in_nl"))
	}
	return append(terms, f.availableControls(data, buurtControls)...)
}

// availableControls filters a control list to columns that exist and
// are dense enough.
func (f *SequenceFitter) availableControls(data *frame.Frame, names []string) []model.Term {
	var terms []model.Term
	for _, name := range names {
		if data.HasColumn(name) && data.NonMissingCount(name) > f.sparseThreshold {
			terms = append(terms, model.Continuous(name))
		}
	}
	return terms
}

// TwoLevelSpecs builds the two-level sequence: empty model, key
// predictor, individual controls, buurt controls.
func (f *SequenceFitter) TwoLevelSpecs(data *frame.Frame) []model.Spec {
	m0 := model.NewSpec("m0_empty", "DV_single", "buurt_id")
	m1 := m0.Extend("m1_key_pred", model.Continuous(KeyPredictor))
	m2 := m1.Extend("m2_ind_controls", f.individualControlTerms(data)...)
	m3 := m2.Extend("m3_buurt_controls", f.availableControls(data, buurtControls)...)
	return []model.Spec{m0, m1, m2, m3}
}

// FourLevelSpecs builds the extended sequence carrying wijk and
// gemeente predictors. Buurt remains the grouping variable: the
// higher levels enter through their predictors, not through extra
// random intercepts.
func (f *SequenceFitter) FourLevelSpecs(data *frame.Frame) []model.Spec {
	m0 := model.NewSpec("m0_empty", "DV_single", "buurt_id")

	keyTerms := []model.Term{model.Continuous(KeyPredictor)}
	for _, name := range []string{"w_perc_low40_hh", "g_perc_low40_hh"} {
		if data.HasColumn(name) {
			keyTerms = append(keyTerms, model.Continuous(name))
		}
	}
	m1 := m0.Extend("m1_key_pred", keyTerms...)
	m2 := m1.Extend("m2_ind_controls", f.individualControlTerms(data)...)
	m3 := m2.Extend("m3_buurt_controls", f.availableControls(data, buurtControls)...)
	m4 := m3.Extend("m4_wijk_controls", f.availableControls(data, wijkControls)...)
	return []model.Spec{m0, m1, m2, m3, m4}
}

// FitSequence fits each spec in order. A model that fails is recorded
// with its error and the sequence continues; later models do not
// depend on earlier fits.
func (f *SequenceFitter) FitSequence(name string, data *frame.Frame, specs []model.Spec) *model.Sequence {
	seq := &model.Sequence{Name: name}
	for _, spec := range specs {
		log.Printf("[MLM] Fitting %s...", spec.Name)
		entry := model.SequenceEntry{Spec: spec}
		design, err := BuildDesign(data, spec)
		if err != nil {
			entry.Err = err
			log.Printf("[MLM] %s failed: %v", spec.Name, err)
			seq.Models = append(seq.Models, entry)
			continue
		}
		fitted, err := f.estimator.Fit(spec, design)
		if err != nil {
			entry.Err = err
			log.Printf("[MLM] %s failed: %v", spec.Name, err)
		} else {
			entry.Fitted = fitted
		}
		seq.Models = append(seq.Models, entry)
	}
	if len(seq.Failures()) == 0 {
		log.Printf("[MLM] All %s models fitted successfully", name)
	}
	return seq
}

// FitTwoLevel runs the standard two-level sequence.
func (f *SequenceFitter) FitTwoLevel(data *frame.Frame) *model.Sequence {
	log.Printf("[MLM] Fitting two-level multilevel models...")
	seq := f.FitSequence("two_level", data, f.TwoLevelSpecs(data))
	if final := seq.Final(); final != nil {
		if c, ok := final.Coefficient(KeyPredictor); ok {
			log.Printf("[MLM] Key predictor (%s): %s = %.3f (SE=%.3f)",
				final.Name, KeyPredictor, c.Estimate, c.SE)
		}
	}
	return seq
}

// FitFourLevel runs the extended sequence on rows complete for every
// variable any of its models uses, so all five models share one
// sample.
func (f *SequenceFitter) FitFourLevel(data *frame.Frame) *model.Sequence {
	log.Printf("[MLM] Fitting four-level multilevel models...")
	log.Printf("[MLM] Note: buurt is the grouping; wijk and gemeente enter via predictors")

	specs := f.FourLevelSpecs(data)
	widest := specs[len(specs)-1]
	keep := make([]bool, data.NumRows())
	required := widest.RequiredColumns()
	for i := range keep {
		keep[i] = true
	}
	for _, name := range required {
		col, ok := data.Column(name)
		if !ok {
			continue
		}
		for i := range keep {
			if col.IsMissing(i) {
				keep[i] = false
			}
		}
	}
	subset := data.Filter(keep)
	log.Printf("[MLM] Four-level sample size: %d", subset.NumRows())

	seq := f.FitSequence("four_level", subset, specs)
	if final := seq.Final(); final != nil {
		for _, name := range []string{KeyPredictor, "w_perc_low40_hh", "g_perc_low40_hh"} {
			if c, ok := final.Coefficient(name); ok {
				log.Printf("[MLM] %s: %.3f (SE=%.3f)", name, c.Estimate, c.SE)
			}
		}
	}
	return seq
}

// categoricalFromData builds a categorical term with levels observed
// in the data, sorted, first level as reference.
func categoricalFromData(data *frame.Frame, name string) model.Term {
	vals, missing := data.Strings(name)
	seen := make(map[string]bool)
	var levels []string
	for i, v := range vals {
		if missing != nil && missing[i] {
			continue
		}
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	sort.Strings(levels)
	return model.Categorical(name, levels...)
}
