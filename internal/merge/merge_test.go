package merge

import (
	"math"
	"testing"

	"buurtstat/domain/frame"
	"buurtstat/internal/admin"
)

func surveyWithCodes(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New(4)
	codes := []string{"3630100", "16800205.0", "nan", ""}
	missing := []bool{false, false, false, true}
	if err := f.AddString("Buurtcode", codes, missing); err != nil {
		t.Fatalf("AddString: %v", err)
	}
	if err := f.AddNumeric("DV_single", []float64{50, 75, 25, 100}); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	return f
}

func TestAddGeoIDs(t *testing.T) {
	f := surveyWithCodes(t)
	if err := AddGeoIDs(f); err != nil {
		t.Fatalf("AddGeoIDs: %v", err)
	}

	buurt, bMissing := f.Strings("buurt_id")
	wijk, _ := f.Strings("wijk_id")
	gemeente, _ := f.Strings("gemeente_id")

	if buurt[0] != "03630100" {
		t.Errorf("buurt_id[0] = %q, want 03630100", buurt[0])
	}
	if wijk[0] != "036301" {
		t.Errorf("wijk_id[0] = %q, want 036301", wijk[0])
	}
	if gemeente[0] != "0363" {
		t.Errorf("gemeente_id[0] = %q, want 0363", gemeente[0])
	}
	// ".0" export suffix stripped before padding.
	if buurt[1] != "16800205" {
		t.Errorf("buurt_id[1] = %q, want 16800205", buurt[1])
	}
	// "nan" text and a masked cell both leave every level missing.
	for _, i := range []int{2, 3} {
		if !bMissing[i] {
			t.Errorf("buurt_id[%d] should be missing", i)
		}
	}
	if got := f.MissingCount("wijk_id"); got != 2 {
		t.Errorf("wijk_id missing count = %d, want 2", got)
	}
	if got := f.MissingCount("gemeente_id"); got != 2 {
		t.Errorf("gemeente_id missing count = %d, want 2", got)
	}
}

func TestAddGeoIDsNoBuurtcode(t *testing.T) {
	f := frame.New(2)
	if err := f.AddNumeric("DV_single", []float64{1, 2}); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	if err := AddGeoIDs(f); err == nil {
		t.Fatal("expected error for survey without Buurtcode")
	}
}

func levelFixture(t *testing.T) *admin.LevelTables {
	t.Helper()
	buurt := frame.New(2)
	if err := buurt.AddString("buurt_id", []string{"03630100", "03630101"}, nil); err != nil {
		t.Fatalf("AddString: %v", err)
	}
	if err := buurt.AddNumeric("b_pop_total", []float64{1500, 2200}); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}

	gemeente := frame.New(1)
	if err := gemeente.AddString("gemeente_id", []string{"0363"}, nil); err != nil {
		t.Fatalf("AddString: %v", err)
	}
	if err := gemeente.AddNumeric("g_pop_total", []float64{850000}); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}

	return &admin.LevelTables{Buurt: buurt, Gemeente: gemeente}
}

func TestHierarchical(t *testing.T) {
	survey := frame.New(3)
	ids := []string{"03630100", "16800205", "03630101"}
	idMissing := []bool{false, false, false}
	if err := survey.AddString("buurt_id", ids, idMissing); err != nil {
		t.Fatalf("AddString: %v", err)
	}
	gem := []string{"0363", "1680", "0363"}
	if err := survey.AddString("gemeente_id", gem, idMissing); err != nil {
		t.Fatalf("AddString: %v", err)
	}

	merged, err := Hierarchical(survey, levelFixture(t))
	if err != nil {
		t.Fatalf("Hierarchical: %v", err)
	}

	if merged.NumRows() != 3 {
		t.Fatalf("merged rows = %d, want 3", merged.NumRows())
	}
	pop := merged.Numeric("b_pop_total")
	if pop[0] != 1500 || pop[2] != 2200 {
		t.Errorf("b_pop_total = %v, want matched values at rows 0 and 2", pop)
	}
	if !math.IsNaN(pop[1]) {
		t.Errorf("b_pop_total[1] = %v, want NaN for unmatched buurt", pop[1])
	}
	gpop := merged.Numeric("g_pop_total")
	if gpop[0] != 850000 || !math.IsNaN(gpop[1]) {
		t.Errorf("g_pop_total = %v", gpop)
	}
	// The wijk level has no table and is skipped, not attached empty.
	if merged.HasColumn("w_pop_total") {
		t.Error("wijk indicators should be absent when no wijk table exists")
	}
	// Input survey must not be mutated.
	if survey.HasColumn("b_pop_total") {
		t.Error("Hierarchical mutated its input")
	}
}

func TestValidate(t *testing.T) {
	nan := math.NaN()
	f := frame.New(5)
	if err := f.AddNumeric("b_pop_total", []float64{1, 2, 3, 4, nan}); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	if err := f.AddNumeric("w_pop_total", []float64{1, 2, 3, nan, nan}); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}

	checks := Validate(f)
	if len(checks) != 2 {
		t.Fatalf("got %d checks, want 2 (no gemeente indicator present)", len(checks))
	}

	buurt := checks[0]
	if buurt.Level != "Buurt" || buurt.NMatched != 4 || buurt.NMissing != 1 {
		t.Errorf("buurt check = %+v", buurt)
	}
	if buurt.Status != "OK" {
		t.Errorf("buurt at exactly 80%% should be OK, got %s", buurt.Status)
	}

	wijk := checks[1]
	if wijk.Status != "LOW" {
		t.Errorf("wijk at 60%% should be LOW, got %s", wijk.Status)
	}
	if math.Abs(wijk.PctMatched-60) > 1e-9 {
		t.Errorf("wijk pct = %v, want 60", wijk.PctMatched)
	}
}

func TestAnalyzeMissingness(t *testing.T) {
	nan := math.NaN()
	f := frame.New(4)
	cols := map[string][]float64{
		"b_pop_total": {1, 2, nan, nan},
		"w_pop_total": {1, 2, 3, nan},
		"g_pop_total": {1, 2, 3, 4},
		"DV_single":   {50, nan, nan, nan},
	}
	for name, vals := range cols {
		if err := f.AddNumeric(name, vals); err != nil {
			t.Fatalf("AddNumeric %s: %v", name, err)
		}
	}

	rep := AnalyzeMissingness(f)

	total := 0
	for _, p := range rep.GeoPatterns {
		total += p.Count
	}
	if total != 4 {
		t.Errorf("pattern counts sum = %d, want 4", total)
	}
	// Dominant pattern first: two rows matched at every level.
	top := rep.GeoPatterns[0]
	if !top.HasBuurt || !top.HasWijk || !top.HasGemeente || top.Count != 2 {
		t.Errorf("top pattern = %+v, want fully matched with count 2", top)
	}

	if rep.Variables[0].Variable != "DV_single" {
		t.Errorf("most-missing variable = %s, want DV_single", rep.Variables[0].Variable)
	}
	if math.Abs(rep.Variables[0].PctMissing-75) > 1e-9 {
		t.Errorf("DV_single pct missing = %v, want 75", rep.Variables[0].PctMissing)
	}

	if len(rep.KeyVars) != 1 || rep.KeyVars[0].Variable != "DV_single" {
		t.Errorf("key vars = %+v, want only DV_single", rep.KeyVars)
	}
}

func TestCompareMatchedUnmatched(t *testing.T) {
	nan := math.NaN()
	f := frame.New(8)
	// Rows 0-4 matched a buurt, rows 5-7 did not.
	probe := []float64{1, 1, 1, 1, 1, nan, nan, nan}
	dv := []float64{60, 62, 58, 64, 56, 30, 28, 32}
	if err := f.AddNumeric("b_pop_total", probe); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	if err := f.AddNumeric("DV_single", dv); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}

	results := CompareMatchedUnmatched(f)
	if len(results) != 1 {
		t.Fatalf("got %d comparisons, want 1", len(results))
	}
	r := results[0]
	if r.Variable != "DV_single" || r.MatchedN != 5 || r.UnmatchedN != 3 {
		t.Errorf("comparison = %+v", r)
	}
	if r.MatchedMean != 60 || r.UnmatchedMean != 30 {
		t.Errorf("means = %v / %v, want 60 / 30", r.MatchedMean, r.UnmatchedMean)
	}
	if !r.Significant {
		t.Errorf("30-point gap should be significant, p=%v", r.PValue)
	}
}

func TestCompareMatchedUnmatchedNoProbe(t *testing.T) {
	f := frame.New(2)
	if err := f.AddNumeric("DV_single", []float64{1, 2}); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	if results := CompareMatchedUnmatched(f); results != nil {
		t.Errorf("expected nil without buurt indicator, got %+v", results)
	}
}

func TestTwoSampleTTest(t *testing.T) {
	tStat, p := twoSampleTTest([]float64{1, 2, 3}, []float64{1, 2, 3})
	if tStat != 0 {
		t.Errorf("identical samples: t = %v, want 0", tStat)
	}
	if math.Abs(p-1) > 1e-9 {
		t.Errorf("identical samples: p = %v, want 1", p)
	}

	tStat, p = twoSampleTTest([]float64{10, 11, 12, 10, 11}, []float64{2, 3, 2, 3, 2})
	if tStat <= 0 {
		t.Errorf("t = %v, want positive", tStat)
	}
	if p >= 0.001 {
		t.Errorf("p = %v, want well below 0.001", p)
	}

	if _, p = twoSampleTTest([]float64{1, 1}, []float64{1, 1}); !math.IsNaN(p) {
		t.Errorf("zero pooled variance: p = %v, want NaN", p)
	}
}
