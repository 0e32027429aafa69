package recode

import (
	"log"
	"math"
	"strings"

	"buurtstat/domain/frame"
)

// contextPrefixes identify neighborhood-level columns by naming
// convention.
var contextPrefixes = []string{"b_", "w_", "g_"}

// Standardizer z-scores context variables with moments frozen at fit
// time, so sensitivity reruns on subsamples reuse the full-sample
// scale.
type Standardizer struct {
	moments map[string][2]float64 // column -> {mean, sd}
}

func NewStandardizer() *Standardizer {
	return &Standardizer{moments: make(map[string][2]float64)}
}

// Fit records the mean and sd of every numeric context column. Columns
// with zero variance are left out and pass through unchanged.
func (s *Standardizer) Fit(data *frame.Frame) {
	for _, name := range data.ColumnNames() {
		if !isContextVar(name) {
			continue
		}
		col, _ := data.Column(name)
		if col.Type != frame.TypeNumeric {
			continue
		}
		m, sd, ok := moments(col.Floats)
		if !ok || sd <= 0 {
			continue
		}
		s.moments[name] = [2]float64{m, sd}
	}
	log.Printf("[Recode] Standardizer fitted on %d context variables", len(s.moments))
}

// Transform z-scores the fitted columns in place.
func (s *Standardizer) Transform(data *frame.Frame) error {
	count := 0
	for _, name := range data.ColumnNames() {
		mo, ok := s.moments[name]
		if !ok || !data.HasColumn(name) {
			continue
		}
		vals := data.Numeric(name)
		for i, v := range vals {
			if math.IsNaN(v) {
				continue
			}
			vals[i] = (v - mo[0]) / mo[1]
		}
		if err := data.AddNumeric(name, vals); err != nil {
			return err
		}
		count++
	}
	log.Printf("[Recode] Standardized %d context variables", count)
	return nil
}

// FitTransform fits on data and standardizes it in one step.
func (s *Standardizer) FitTransform(data *frame.Frame) error {
	s.Fit(data)
	return s.Transform(data)
}

// Moments returns the frozen mean and sd for a column, if fitted.
func (s *Standardizer) Moments(name string) (mean, sd float64, ok bool) {
	mo, ok := s.moments[name]
	if !ok {
		return 0, 0, false
	}
	return mo[0], mo[1], true
}

func isContextVar(name string) bool {
	for _, p := range contextPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// ratioFloor keeps the income ratio finite when the low-income share
// is zero.
const ratioFloor = 0.01

// AddInequalityIndices builds income_polarization and income_ratio at
// every level where both percentile shares are present.
func AddInequalityIndices(data *frame.Frame) error {
	created := 0
	for _, prefix := range contextPrefixes {
		low40 := prefix + "perc_low40_hh"
		high20 := prefix + "perc_high20_hh"
		if !data.HasColumn(low40) || !data.HasColumn(high20) {
			continue
		}
		lo := data.Numeric(low40)
		hi := data.Numeric(high20)

		polarization := make([]float64, len(lo))
		ratio := make([]float64, len(lo))
		for i := range lo {
			polarization[i] = lo[i] + hi[i]
			ratio[i] = hi[i] / (math.Abs(lo[i]) + ratioFloor)
		}
		if err := data.AddNumeric(prefix+"income_polarization", polarization); err != nil {
			return err
		}
		if err := data.AddNumeric(prefix+"income_ratio", ratio); err != nil {
			return err
		}
		created += 2
		log.Printf("[Recode] Created %sincome_polarization and %sincome_ratio", prefix, prefix)
	}
	log.Printf("[Recode] Created %d inequality indices", created)
	return nil
}
