package report

import (
	"fmt"
	"log"
	"math"
	"sort"

	"buurtstat/domain/frame"

	"github.com/montanaflynn/stats"
)

// summaryVars are the continuous variables described in the
// descriptives table.
var summaryVars = []string{
	"DV_single", "age_raw", "educyrs",
	"b_perc_low40_hh", "b_pop_dens", "b_pop_over_65",
}

// VariableSummary is one row of the descriptives table.
type VariableSummary struct {
	Variable string  `json:"variable"`
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// SummaryStats describes the analysis sample's continuous variables.
func SummaryStats(data *frame.Frame) []VariableSummary {
	log.Printf("[Report] Creating summary statistics...")

	var out []VariableSummary
	for _, name := range summaryVars {
		if !data.HasColumn(name) {
			continue
		}
		vals := data.Numeric(name)
		clean := vals[:0]
		for _, v := range vals {
			if !math.IsNaN(v) {
				clean = append(clean, v)
			}
		}
		if len(clean) == 0 {
			continue
		}
		mean, _ := stats.Mean(clean)
		sd, _ := stats.StandardDeviationSample(clean)
		lo, _ := stats.Min(clean)
		hi, _ := stats.Max(clean)
		out = append(out, VariableSummary{
			Variable: name, N: len(clean),
			Mean: mean, SD: sd, Min: lo, Max: hi,
		})
	}
	return out
}

// StatsTable renders variable summaries as a Table for export.
func StatsTable(summaries []VariableSummary) *Table {
	t := &Table{
		Title:   "Descriptive Statistics",
		Headers: []string{"Variable", "N", "Mean", "SD", "Min", "Max"},
	}
	for _, s := range summaries {
		t.Rows = append(t.Rows, []string{
			s.Variable,
			fmt.Sprintf("%d", s.N),
			fmt.Sprintf("%.2f", s.Mean),
			fmt.Sprintf("%.2f", s.SD),
			fmt.Sprintf("%.2f", s.Min),
			fmt.Sprintf("%.2f", s.Max),
		})
	}
	return t
}

// GeoSummary is one geographic unit's aggregate.
type GeoSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	DVMean      float64 `json:"dv_mean"`
	DVSD        float64 `json:"dv_sd"`
	N           int     `json:"n_respondents"`
	KeyPredMean float64 `json:"key_pred_mean"`
}

// SummarizeByGeography aggregates the outcome and key predictor per
// geographic unit at the given level ("buurt", "wijk", "gemeente"),
// sorted by respondent count.
func SummarizeByGeography(data *frame.Frame, level, dvColumn, keyPredColumn string) []GeoSummary {
	idCol := level + "_id"
	nameCol := level + "_name"
	if !data.HasColumn(idCol) || !data.HasColumn(dvColumn) {
		log.Printf("[Report] Cannot summarize by %s: columns missing", level)
		return nil
	}

	ids, idMissing := data.Strings(idCol)
	dv := data.Numeric(dvColumn)
	var pred []float64
	if data.HasColumn(keyPredColumn) {
		pred = data.Numeric(keyPredColumn)
	}
	var names []string
	var nameMissing []bool
	if data.HasColumn(nameCol) {
		names, nameMissing = data.Strings(nameCol)
	}

	type acc struct {
		dv, pred []float64
		name     string
	}
	groups := make(map[string]*acc)
	var order []string
	for i, id := range ids {
		if idMissing[i] || math.IsNaN(dv[i]) {
			continue
		}
		g, ok := groups[id]
		if !ok {
			g = &acc{}
			groups[id] = g
			order = append(order, id)
		}
		g.dv = append(g.dv, dv[i])
		if pred != nil && !math.IsNaN(pred[i]) {
			g.pred = append(g.pred, pred[i])
		}
		if names != nil && !nameMissing[i] && g.name == "" {
			g.name = names[i]
		}
	}

	out := make([]GeoSummary, 0, len(groups))
	for _, id := range order {
		g := groups[id]
		mean, _ := stats.Mean(g.dv)
		sd := 0.0
		if len(g.dv) > 1 {
			sd, _ = stats.StandardDeviationSample(g.dv)
		}
		s := GeoSummary{ID: id, Name: g.name, DVMean: mean, DVSD: sd, N: len(g.dv)}
		if len(g.pred) > 0 {
			s.KeyPredMean, _ = stats.Mean(g.pred)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].N > out[j].N })
	return out
}
