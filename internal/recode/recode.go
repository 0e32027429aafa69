// Package recode turns raw survey items and admin indicators into
// analysis-ready variables: outcome scales, standardized covariates,
// categorical labels, and neighborhood inequality indices.
package recode

import (
	"log"
	"math"

	"buurtstat/domain/frame"

	"github.com/montanaflynn/stats"
)

// refusedSentinel marks a refused answer on the attitude items.
const refusedSentinel = 8.0

// dvItems are the redistribution attitude items on the 1-7 scale.
var dvItems = []string{"gov_int", "red_inc_diff", "union_pref"}

// sexLabels maps raw sex codes to category labels.
var sexLabels = map[float64]string{1: "Male", 2: "Female", 3: "Other"}

// employmentLabels maps raw work status codes to category labels.
var employmentLabels = map[float64]string{
	1: "Employed",
	2: "Self-employed",
	3: "Unemployed",
	4: "Student",
	5: "Retired",
	6: "Homemaker",
	7: "Disabled",
	8: "Other",
}

// occupationLabels maps raw occupation class codes to category labels.
var occupationLabels = map[float64]string{
	1: "Modern professional",
	2: "Clerical",
	3: "Senior manager",
	4: "Technical",
	5: "Semi-routine manual",
	6: "Routine manual",
	7: "Middle manager",
	8: "Traditional professional",
}

// higherClassCodes are occupation codes counted as professional or
// managerial.
var higherClassCodes = map[float64]bool{1: true, 3: true, 7: true, 8: true}

// occupationRank orders occupation codes from highest (1) to lowest
// (8) status.
var occupationRank = map[float64]float64{
	3: 1, 8: 2, 1: 3, 7: 4, 4: 5, 2: 6, 5: 7, 6: 8,
}

// ToScale100 rescales a 1-7 item to 0-100.
func ToScale100(v float64) float64 {
	return (v - 1) / 6 * 100
}

// Recoder derives analysis variables in place on a merged frame.
type Recoder struct {
	SurveyYear int
}

func NewRecoder(surveyYear int) *Recoder {
	return &Recoder{SurveyYear: surveyYear}
}

// Apply runs the full recoding sequence: outcome construction,
// demographics, employment, and wealth proxies.
func (r *Recoder) Apply(data *frame.Frame) error {
	if err := r.recodeOutcomes(data); err != nil {
		return err
	}
	if err := r.recodeDemographics(data); err != nil {
		return err
	}
	if err := r.recodeEmployment(data); err != nil {
		return err
	}
	if err := r.recodeWealth(data); err != nil {
		return err
	}
	log.Printf("[Recode] Recoding complete: %d observations", data.NumRows())
	return nil
}

// recodeOutcomes cleans the attitude items and builds the single- and
// multi-item outcome scales.
func (r *Recoder) recodeOutcomes(data *frame.Frame) error {
	// Refused answers become missing before any scale construction.
	for _, item := range dvItems {
		if !data.HasColumn(item) {
			continue
		}
		vals := data.Numeric(item)
		for i, v := range vals {
			if v == refusedSentinel {
				vals[i] = math.NaN()
			}
		}
		if err := data.AddNumeric(item, vals); err != nil {
			return err
		}
	}

	if data.HasColumn("red_inc_diff") {
		src := data.Numeric("red_inc_diff")
		dv := make([]float64, len(src))
		for i, v := range src {
			dv[i] = ToScale100(v)
		}
		if err := data.AddNumeric("DV_single", dv); err != nil {
			return err
		}
		if m, sd, ok := moments(dv); ok {
			log.Printf("[Recode] DV_single: mean=%.1f, sd=%.1f", m, sd)
		}
	}

	if data.HasColumn("gov_int") && data.HasColumn("red_inc_diff") {
		if err := addComposite(data, "DV_2item", []string{"gov_int", "red_inc_diff"}); err != nil {
			return err
		}
	}
	if data.HasColumn("gov_int") && data.HasColumn("red_inc_diff") && data.HasColumn("union_pref") {
		if err := addComposite(data, "DV_3item", dvItems); err != nil {
			return err
		}
	}
	return nil
}

// addComposite averages the available items per row (row mean over
// non-missing items) and adds both the 1-7 composite and its 0-100
// rescaling.
func addComposite(data *frame.Frame, name string, items []string) error {
	n := data.NumRows()
	sums := make([]float64, n)
	counts := make([]int, n)
	for _, item := range items {
		vals := data.Numeric(item)
		for i, v := range vals {
			if !math.IsNaN(v) {
				sums[i] += v
				counts[i]++
			}
		}
	}
	mean := make([]float64, n)
	scaled := make([]float64, n)
	for i := range mean {
		if counts[i] == 0 {
			mean[i] = math.NaN()
			scaled[i] = math.NaN()
			continue
		}
		mean[i] = sums[i] / float64(counts[i])
		scaled[i] = ToScale100(mean[i])
	}
	if err := data.AddNumeric(name, mean); err != nil {
		return err
	}
	return data.AddNumeric(name+"_scaled", scaled)
}

func (r *Recoder) recodeDemographics(data *frame.Frame) error {
	if data.HasColumn("sex") {
		if err := mapToCategories(data, "sex", "sex", sexLabels); err != nil {
			return err
		}
	}

	if data.HasColumn("birth_year") {
		years := data.Numeric("birth_year")
		ageRaw := make([]float64, len(years))
		for i, y := range years {
			ageRaw[i] = float64(r.SurveyYear) - y
		}
		if err := data.AddNumeric("age_raw", ageRaw); err != nil {
			return err
		}
		if err := addZScore(data, "age", ageRaw); err != nil {
			return err
		}
		if m, _, ok := moments(ageRaw); ok {
			lo, hi := minMax(ageRaw)
			log.Printf("[Recode] Age: mean=%.1f, range=%.0f-%.0f", m, lo, hi)
		}
	}

	if data.HasColumn("educyrs") {
		if err := addZScore(data, "education", data.Numeric("educyrs")); err != nil {
			return err
		}
	}

	// born_in_nl stays numeric 0/1.
	return nil
}

func (r *Recoder) recodeEmployment(data *frame.Frame) error {
	if data.HasColumn("work_status") {
		if err := mapToCategories(data, "work_status", "employment_status", employmentLabels); err != nil {
			return err
		}
	}
	if data.HasColumn("occupation_class") {
		if err := mapToCategories(data, "occupation_class", "occupation", occupationLabels); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recoder) recodeWealth(data *frame.Frame) error {
	wealthVars := []string{"owns_home", "owns_property", "has_savings", "owns_stocks"}
	available := wealthVars[:0]
	for _, v := range wealthVars {
		if data.HasColumn(v) {
			available = append(available, v)
		}
	}

	if len(available) > 0 {
		n := data.NumRows()
		index := make([]float64, n)
		for _, v := range available {
			vals := data.Numeric(v)
			for i, x := range vals {
				if !math.IsNaN(x) {
					index[i] += x
				}
			}
		}
		high := make([]float64, n)
		for i, x := range index {
			if x >= 2 {
				high[i] = 1
			}
		}
		if err := data.AddNumeric("wealth_index", index); err != nil {
			return err
		}
		if err := data.AddNumeric("high_wealth", high); err != nil {
			return err
		}
		if m, _, ok := moments(index); ok {
			hm, _, _ := moments(high)
			log.Printf("[Recode] Wealth index: mean=%.2f, high_wealth=%.1f%%", m, hm*100)
		}
	}

	if data.HasColumn("occupation_class") {
		codes := data.Numeric("occupation_class")
		professional := make([]float64, len(codes))
		rank := make([]float64, len(codes))
		for i, c := range codes {
			if math.IsNaN(c) {
				professional[i] = 0
				rank[i] = math.NaN()
				continue
			}
			if higherClassCodes[c] {
				professional[i] = 1
			}
			if r, ok := occupationRank[c]; ok {
				rank[i] = r
			} else {
				rank[i] = math.NaN()
			}
		}
		if err := data.AddNumeric("professional_class", professional); err != nil {
			return err
		}
		if err := data.AddNumeric("occupation_rank", rank); err != nil {
			return err
		}
		if m, _, ok := moments(professional); ok {
			log.Printf("[Recode] Professional class: %.1f%%", m*100)
		}
	}
	return nil
}

// mapToCategories replaces numeric codes with string labels; unmapped
// or missing codes become missing. A source that already carries
// labels (an in-place recode that ran before) is left alone.
func mapToCategories(data *frame.Frame, source, target string, labels map[float64]string) error {
	codes := data.Numeric(source)
	if codes == nil {
		return nil
	}
	vals := make([]string, len(codes))
	missing := make([]bool, len(codes))
	for i, c := range codes {
		label, ok := labels[c]
		if math.IsNaN(c) || !ok {
			missing[i] = true
			continue
		}
		vals[i] = label
	}
	return data.AddString(target, vals, missing)
}

// addZScore standardizes src against its own sample moments and adds
// the result under name.
func addZScore(data *frame.Frame, name string, src []float64) error {
	m, sd, ok := moments(src)
	z := make([]float64, len(src))
	for i, v := range src {
		if !ok || sd == 0 || math.IsNaN(v) {
			z[i] = math.NaN()
			continue
		}
		z[i] = (v - m) / sd
	}
	return data.AddNumeric(name, z)
}

// moments returns the mean and sample standard deviation over
// non-missing values.
func moments(vals []float64) (mean, sd float64, ok bool) {
	clean := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) < 2 {
		return 0, 0, false
	}
	mean, _ = stats.Mean(clean)
	sd, _ = stats.StandardDeviationSample(clean)
	return mean, sd, true
}

func minMax(vals []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
