// Package merge joins survey respondents with administrative
// indicators at buurt, wijk, and gemeente level and validates the
// result.
package merge

import (
	"log"

	"buurtstat/domain/frame"
	"buurtstat/domain/geo"
	"buurtstat/internal/admin"
	apperrors "buurtstat/internal/errors"
)

// AddGeoIDs derives buurt_id, wijk_id, and gemeente_id columns from
// the raw Buurtcode. A missing or unparseable code leaves all three
// IDs missing.
func AddGeoIDs(survey *frame.Frame) error {
	if !survey.HasColumn("Buurtcode") {
		return apperrors.MergeError("survey has no Buurtcode column", nil)
	}
	codes, missing := survey.Strings("Buurtcode")

	n := len(codes)
	buurt := make([]string, n)
	wijk := make([]string, n)
	gemeente := make([]string, n)
	idMissing := make([]bool, n)
	valid := 0
	uniq := map[geo.Level]map[string]bool{
		geo.LevelBuurt:    {},
		geo.LevelWijk:     {},
		geo.LevelGemeente: {},
	}

	for i, code := range codes {
		raw := code
		if missing[i] {
			raw = ""
		}
		id := geo.DeriveID(raw)
		if id.IsMissing() {
			idMissing[i] = true
			continue
		}
		buurt[i] = id.Buurt
		wijk[i] = id.Wijk
		gemeente[i] = id.Gemeente
		valid++
		uniq[geo.LevelBuurt][id.Buurt] = true
		uniq[geo.LevelWijk][id.Wijk] = true
		uniq[geo.LevelGemeente][id.Gemeente] = true
	}

	for _, col := range []struct {
		name string
		vals []string
	}{
		{"buurt_id", buurt}, {"wijk_id", wijk}, {"gemeente_id", gemeente},
	} {
		if err := survey.AddString(col.name, col.vals, idMissing); err != nil {
			return apperrors.MergeError("failed to add geographic IDs", err)
		}
	}

	pct := 0.0
	if n > 0 {
		pct = float64(valid) / float64(n) * 100
	}
	log.Printf("[Merge] Created geo IDs for %d respondents (%.1f%%)", valid, pct)
	log.Printf("[Merge] Unique buurten: %d, wijken: %d, gemeenten: %d",
		len(uniq[geo.LevelBuurt]), len(uniq[geo.LevelWijk]), len(uniq[geo.LevelGemeente]))
	return nil
}

// Hierarchical performs the three sequential left joins attaching
// admin indicators to the survey. Row count must be preserved at
// every step; a right-side duplicate key aborts the merge.
func Hierarchical(survey *frame.Frame, levels *admin.LevelTables) (*frame.Frame, error) {
	merged := survey.Copy()
	initial := merged.NumRows()

	for _, level := range []geo.Level{geo.LevelBuurt, geo.LevelWijk, geo.LevelGemeente} {
		table := levels.Table(level)
		if table == nil || table.NumRows() == 0 {
			log.Printf("[Merge] Skipping %s level: no admin data", level.Key())
			continue
		}
		next, err := frame.LeftJoin(merged, table, level.IDColumn())
		if err != nil {
			return nil, apperrors.MergeError("hierarchical merge failed at "+level.Key()+" level", err)
		}
		merged = next
		log.Printf("[Merge] + %s: %d units", level.Key(), table.NumRows())
	}

	if merged.NumRows() != initial {
		return nil, apperrors.MergeError("row count changed during merge", nil)
	}
	log.Printf("[Merge] Final merged data: %d rows, %d columns",
		merged.NumRows(), merged.NumCols())
	return merged, nil
}
