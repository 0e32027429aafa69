package merge

import (
	"fmt"
	"log"
	"math"
	"sort"

	"buurtstat/domain/frame"
	"buurtstat/domain/report"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// lowMatchThreshold is the match rate below which a level is flagged
// LOW in merge validation.
const lowMatchThreshold = 80.0

// levelIndicators are the probe columns used to decide whether a row
// matched at each level.
var levelIndicators = []struct {
	Level     string
	Indicator string
}{
	{"Buurt", "b_pop_total"},
	{"Wijk", "w_pop_total"},
	{"Gemeente", "g_pop_total"},
}

// Validate computes per-level match rates on the merged data.
func Validate(data *frame.Frame) []report.MergeCheck {
	total := data.NumRows()
	var checks []report.MergeCheck

	for _, lc := range levelIndicators {
		if !data.HasColumn(lc.Indicator) {
			log.Printf("[Merge] %s: indicator column %q not found", lc.Level, lc.Indicator)
			continue
		}
		matched := data.NonMissingCount(lc.Indicator)
		pct := 0.0
		if total > 0 {
			pct = float64(matched) / float64(total) * 100
		}
		status := "OK"
		if pct < lowMatchThreshold {
			status = "LOW"
		}
		checks = append(checks, report.MergeCheck{
			Level:      lc.Level,
			NMatched:   matched,
			NMissing:   total - matched,
			PctMatched: pct,
			Status:     status,
		})
		log.Printf("[Merge] %s: %d/%d matched (%.1f%%) [%s]", lc.Level, matched, total, pct, status)
	}
	return checks
}

// GeoPattern is one row of the level-match cross-tab.
type GeoPattern struct {
	HasBuurt    bool `json:"has_buurt"`
	HasWijk     bool `json:"has_wijk"`
	HasGemeente bool `json:"has_gemeente"`
	Count       int  `json:"count"`
}

// VariableMissing records the missing share of one column.
type VariableMissing struct {
	Variable   string  `json:"variable"`
	PctMissing float64 `json:"pct_missing"`
}

// MissingnessReport describes missing-data structure after the merge.
type MissingnessReport struct {
	GeoPatterns []GeoPattern      `json:"geo_patterns"`
	Variables   []VariableMissing `json:"variables"`
	KeyVars     []VariableMissing `json:"key_vars"`
}

// AnalyzeMissingness cross-tabulates which levels matched per row and
// ranks columns by missing share.
func AnalyzeMissingness(data *frame.Frame) MissingnessReport {
	var rep MissingnessReport

	counts := make(map[[3]bool]int)
	for i := 0; i < data.NumRows(); i++ {
		var key [3]bool
		for j, lc := range levelIndicators {
			if data.HasColumn(lc.Indicator) {
				col, _ := data.Column(lc.Indicator)
				key[j] = !col.IsMissing(i)
			}
		}
		counts[key]++
	}
	for key, count := range counts {
		rep.GeoPatterns = append(rep.GeoPatterns, GeoPattern{
			HasBuurt: key[0], HasWijk: key[1], HasGemeente: key[2], Count: count,
		})
	}
	sort.Slice(rep.GeoPatterns, func(i, j int) bool {
		return rep.GeoPatterns[i].Count > rep.GeoPatterns[j].Count
	})

	total := data.NumRows()
	for _, name := range data.ColumnNames() {
		pct := 0.0
		if total > 0 {
			pct = float64(data.MissingCount(name)) / float64(total) * 100
		}
		rep.Variables = append(rep.Variables, VariableMissing{Variable: name, PctMissing: pct})
	}
	sort.Slice(rep.Variables, func(i, j int) bool {
		return rep.Variables[i].PctMissing > rep.Variables[j].PctMissing
	})

	keyVars := map[string]bool{
		"DV_single": true, "age": true, "education": true,
		"b_perc_low40_hh": true, "buurt_id": true,
	}
	for _, vm := range rep.Variables {
		if keyVars[vm.Variable] {
			rep.KeyVars = append(rep.KeyVars, vm)
			log.Printf("[Merge] %s: %.1f%% missing", vm.Variable, vm.PctMissing)
		}
	}
	return rep
}

// GroupComparison holds a two-sample t-test between matched and
// unmatched respondents on one variable.
type GroupComparison struct {
	Variable      string  `json:"variable"`
	MatchedMean   float64 `json:"matched_mean"`
	MatchedN      int     `json:"matched_n"`
	UnmatchedMean float64 `json:"unmatched_mean"`
	UnmatchedN    int     `json:"unmatched_n"`
	TStatistic    float64 `json:"t_statistic"`
	PValue        float64 `json:"p_value"`
	Significant   bool    `json:"significant"`
}

// CompareMatchedUnmatched tests whether respondents who matched a
// buurt differ systematically from those who did not.
func CompareMatchedUnmatched(data *frame.Frame) []GroupComparison {
	if !data.HasColumn("b_pop_total") {
		log.Printf("[Merge] Cannot compare matched vs unmatched: no buurt indicator found")
		return nil
	}
	probe, _ := data.Column("b_pop_total")

	var results []GroupComparison
	for _, variable := range []string{"DV_single", "age_raw", "education"} {
		if !data.HasColumn(variable) {
			continue
		}
		vals := data.Numeric(variable)
		var matched, unmatched []float64
		for i, v := range vals {
			if math.IsNaN(v) {
				continue
			}
			if probe.IsMissing(i) {
				unmatched = append(unmatched, v)
			} else {
				matched = append(matched, v)
			}
		}
		if len(matched) == 0 || len(unmatched) == 0 {
			continue
		}

		t, p := twoSampleTTest(matched, unmatched)
		gc := GroupComparison{
			Variable:      variable,
			MatchedMean:   stat.Mean(matched, nil),
			MatchedN:      len(matched),
			UnmatchedMean: stat.Mean(unmatched, nil),
			UnmatchedN:    len(unmatched),
			TStatistic:    t,
			PValue:        p,
			Significant:   p < 0.05,
		}
		results = append(results, gc)
		star := ""
		if gc.Significant {
			star = "*"
		}
		log.Printf("[Merge] %s: matched=%.2f, unmatched=%.2f, p=%s%s",
			gc.Variable, gc.MatchedMean, gc.UnmatchedMean,
			fmt.Sprintf("%.3f", gc.PValue), star)
	}
	return results
}

// twoSampleTTest runs a pooled-variance two-sample t-test and returns
// the statistic and two-sided p-value.
func twoSampleTTest(a, b []float64) (t, p float64) {
	n1, n2 := float64(len(a)), float64(len(b))
	m1, v1 := stat.MeanVariance(a, nil)
	m2, v2 := stat.MeanVariance(b, nil)

	df := n1 + n2 - 2
	if df <= 0 {
		return math.NaN(), math.NaN()
	}
	pooled := ((n1-1)*v1 + (n2-1)*v2) / df
	se := math.Sqrt(pooled * (1/n1 + 1/n2))
	if se == 0 {
		return math.NaN(), math.NaN()
	}
	t = (m1 - m2) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = 2 * dist.Survival(math.Abs(t))
	return t, p
}
