// Package sample builds the final analysis sample: complete cases on
// the model variables, then removal of undersized clusters.
package sample

import (
	"log"

	"buurtstat/domain/frame"
	apperrors "buurtstat/internal/errors"
)

// buurtControls are the neighborhood-level control variables required
// in the analysis sample when present in the data.
var buurtControls = []string{
	"b_pop_dens",
	"b_pop_over_65",
	"b_pop_nonwest",
	"b_perc_low_inc_hh",
	"b_perc_soc_min_hh",
}

// Retention accounts for observations kept at each filtering stage.
type Retention struct {
	InitialN       int      `json:"initial_n"`
	CompleteN      int      `json:"complete_n"`
	FinalN         int      `json:"final_n"`
	UniqueClusters int      `json:"unique_clusters"`
	RequiredVars   []string `json:"required_vars"`
}

// Builder creates analysis samples.
type Builder struct {
	IncludeOccupation bool
	MinClusterSize    int
}

func NewBuilder(includeOccupation bool, minClusterSize int) *Builder {
	return &Builder{IncludeOccupation: includeOccupation, MinClusterSize: minClusterSize}
}

// requiredVars assembles the complete-case variable list from what the
// data actually carries.
func (b *Builder) requiredVars(data *frame.Frame) []string {
	required := []string{
		"DV_single", "age", "sex", "education",
		"employment_status", "born_in_nl", "buurt_id",
	}
	for _, v := range buurtControls {
		if data.HasColumn(v) {
			required = append(required, v)
		}
	}
	if data.HasColumn("b_perc_low40_hh") {
		required = append(required, "b_perc_low40_hh")
	}
	if b.IncludeOccupation && data.HasColumn("occupation") {
		required = append(required, "occupation")
	}

	available := required[:0]
	for _, v := range required {
		if data.HasColumn(v) {
			available = append(available, v)
		}
	}
	return available
}

// Build filters to complete cases on the required variables, then
// drops clusters smaller than the minimum size. The complete-case
// filter runs first, so cluster sizes are counted on complete cases
// only.
func (b *Builder) Build(data *frame.Frame) (*frame.Frame, Retention, error) {
	required := b.requiredVars(data)
	log.Printf("[Sample] Required variables: %d", len(required))

	ret := Retention{InitialN: data.NumRows(), RequiredVars: required}

	keep := make([]bool, data.NumRows())
	for i := range keep {
		keep[i] = true
	}
	for _, v := range required {
		col, ok := data.Column(v)
		if !ok {
			return nil, ret, apperrors.ValidationError("required variable missing from data: "+v, nil)
		}
		for i := range keep {
			if col.IsMissing(i) {
				keep[i] = false
			}
		}
	}
	complete := data.Filter(keep)
	ret.CompleteN = complete.NumRows()
	pct := 0.0
	if ret.InitialN > 0 {
		pct = float64(ret.CompleteN) / float64(ret.InitialN) * 100
	}
	log.Printf("[Sample] Complete cases: %d/%d (%.1f%%)", ret.CompleteN, ret.InitialN, pct)

	sample, clusters, err := b.filterClusters(complete)
	if err != nil {
		return nil, ret, err
	}
	ret.FinalN = sample.NumRows()
	ret.UniqueClusters = clusters
	log.Printf("[Sample] After cluster filter (min=%d): %d observations", b.MinClusterSize, ret.FinalN)
	log.Printf("[Sample] Unique buurten: %d", clusters)

	if ret.FinalN == 0 {
		return nil, ret, apperrors.ValidationError("analysis sample is empty after filtering", nil)
	}
	return sample, ret, nil
}

func (b *Builder) filterClusters(data *frame.Frame) (*frame.Frame, int, error) {
	ids, missing := data.Strings("buurt_id")
	sizes := make(map[string]int)
	for i, id := range ids {
		if missing[i] {
			continue
		}
		sizes[id]++
	}

	keep := make([]bool, len(ids))
	kept := make(map[string]bool)
	for i, id := range ids {
		if missing[i] {
			continue
		}
		if sizes[id] >= b.MinClusterSize {
			keep[i] = true
			kept[id] = true
		}
	}
	return data.Filter(keep), len(kept), nil
}
