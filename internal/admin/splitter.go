// Package admin splits CBS administrative data into per-level tables
// keyed by geographic ID, ready for the hierarchical merge.
package admin

import (
	"log"

	"buurtstat/domain/core"
	"buurtstat/domain/frame"
	"buurtstat/domain/geo"
	apperrors "buurtstat/internal/errors"
)

// indicatorVars are the canonical CBS indicators carried to each level.
// Indicators absent from the source table are skipped.
var indicatorVars = []string{
	"pop_total", "pop_over_65", "pop_west", "pop_nonwest", "pop_dens",
	"avg_home_value", "avg_inc_recip", "avg_inc_pers",
	"perc_low40_pers", "perc_high20_pers", "perc_low40_hh", "perc_high20_hh",
	"perc_low_inc_hh", "perc_soc_min_hh",
}

// LevelTables holds one admin table per geographic level. A level with
// no source rows has a nil entry.
type LevelTables struct {
	Buurt    *frame.Frame
	Wijk     *frame.Frame
	Gemeente *frame.Frame
}

// Table returns the table for a level, or nil when absent.
func (t *LevelTables) Table(level geo.Level) *frame.Frame {
	switch level {
	case geo.LevelBuurt:
		return t.Buurt
	case geo.LevelWijk:
		return t.Wijk
	default:
		return t.Gemeente
	}
}

// SplitByLevel partitions admin data into buurt, wijk, and gemeente
// tables. Each output table carries a zero-padded ID column plus the
// available indicators renamed with the level prefix, deduplicated on
// ID keeping the first occurrence.
func SplitByLevel(admin *frame.Frame) (*LevelTables, error) {
	codes, codeMissing, err := regionCodes(admin)
	if err != nil {
		return nil, err
	}

	available := make([]string, 0, len(indicatorVars))
	for _, v := range indicatorVars {
		if admin.HasColumn(v) {
			available = append(available, v)
		}
	}
	log.Printf("[Admin] Available indicators: %d/%d", len(available), len(indicatorVars))

	out := &LevelTables{}
	for _, level := range []geo.Level{geo.LevelBuurt, geo.LevelWijk, geo.LevelGemeente} {
		table, err := buildLevel(admin, level, codes, codeMissing, available)
		if err != nil {
			return nil, err
		}
		if table == nil {
			log.Printf("[Admin] Warning: no %s data found", level.Key())
			continue
		}
		log.Printf("[Admin] %s: %d units", level.Key(), table.NumRows())
		switch level {
		case geo.LevelBuurt:
			out.Buurt = table
		case geo.LevelWijk:
			out.Wijk = table
		case geo.LevelGemeente:
			out.Gemeente = table
		}
	}
	return out, nil
}

// regionCodes resolves the region code column, trying accepted source
// names in priority order. Missing all of them is fatal.
func regionCodes(admin *frame.Frame) ([]string, []bool, error) {
	for _, name := range []string{"region_code", "Codering_3", "WijkenEnBuurten"} {
		if admin.HasColumn(name) {
			codes, missing := admin.Strings(name)
			return codes, missing, nil
		}
	}
	return nil, nil, apperrors.ExtractError(
		"cannot identify region code column in admin data", core.ErrNoRegionColumn)
}

func buildLevel(admin *frame.Frame, level geo.Level, codes []string, codeMissing []bool, indicators []string) (*frame.Frame, error) {
	var rows []int
	ids := make(map[int]string)
	for i, code := range codes {
		if codeMissing[i] {
			continue
		}
		lvl, id, ok := geo.ParseRegionCode(code)
		if !ok || lvl != level {
			continue
		}
		rows = append(rows, i)
		ids[i] = geo.PadID(id, level)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// Dedupe on ID, keeping the first occurrence.
	seen := make(map[string]bool, len(rows))
	kept := rows[:0]
	for _, i := range rows {
		if seen[ids[i]] {
			continue
		}
		seen[ids[i]] = true
		kept = append(kept, i)
	}

	out := frame.New(len(kept))
	idVals := make([]string, len(kept))
	for j, i := range kept {
		idVals[j] = ids[i]
	}
	if err := out.AddString(level.IDColumn(), idVals, nil); err != nil {
		return nil, err
	}

	for _, v := range indicators {
		src := admin.Numeric(v)
		vals := make([]float64, len(kept))
		for j, i := range kept {
			vals[j] = src[i]
		}
		if err := out.AddNumeric(level.Prefix()+v, vals); err != nil {
			return nil, err
		}
	}
	return out, nil
}
