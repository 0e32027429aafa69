package diagnostics

import (
	"context"
	"fmt"
	"math"
	"testing"

	"buurtstat/domain/frame"
	"buurtstat/domain/model"
	"buurtstat/domain/report"
	"buurtstat/internal/mlm"
)

// robustnessFixture builds a recoded sample with 8 buurten of 5
// respondents. The outcome carries a strong negative neighborhood
// effect that weakens with individual wealth.
func robustnessFixture(t *testing.T) *frame.Frame {
	t.Helper()
	const nClusters, perCluster = 8, 5
	n := nClusters * perCluster
	f := frame.New(n)

	dv := make([]float64, n)
	key := make([]float64, n)
	age := make([]float64, n)
	edu := make([]float64, n)
	born := make([]float64, n)
	wealth := make([]float64, n)
	ids := make([]string, n)
	sex := make([]string, n)
	emp := make([]string, n)

	within := []float64{-2, 1, 0, -1, 2}
	for c := 0; c < nClusters; c++ {
		clusterKey := float64(c) - 3.5
		for j := 0; j < perCluster; j++ {
			i := c*perCluster + j
			ids[i] = fmt.Sprintf("0363%04d", c)
			key[i] = clusterKey
			age[i] = float64(j) - 2
			edu[i] = within[j]
			born[i] = float64(i % 4 / 2)
			wealth[i] = float64(i * 3 % 5)
			sex[i] = []string{"Male", "Female"}[i%2]
			emp[i] = []string{"Employed", "Retired", "Unemployed"}[i%3]
			dv[i] = 50 - 2*clusterKey - 0.5*clusterKey*wealth[i] + wealth[i] +
				within[j] + 0.5*age[i] + 0.3*math.Sin(float64(i))
		}
	}

	if err := f.AddString("buurt_id", ids, nil); err != nil {
		t.Fatalf("AddString: %v", err)
	}
	for name, vals := range map[string][]float64{
		"DV_single":       dv,
		"b_perc_low40_hh": key,
		"age":             age,
		"education":       edu,
		"born_in_nl":      born,
		"wealth_index":    wealth,
	} {
		if err := f.AddNumeric(name, vals); err != nil {
			t.Fatalf("AddNumeric %s: %v", name, err)
		}
	}
	for name, vals := range map[string][]string{"sex": sex, "employment_status": emp} {
		if err := f.AddString(name, vals, nil); err != nil {
			t.Fatalf("AddString %s: %v", name, err)
		}
	}
	return f
}

func TestCalculateVIF(t *testing.T) {
	n := 12
	f := frame.New(n)
	key := make([]float64, n)
	dens := make([]float64, n)
	age := make([]float64, n)
	edu := make([]float64, n)
	noise := []float64{0.1, -0.1, -0.1, 0.1}
	for i := 0; i < n; i++ {
		key[i] = float64(i + 1)
		dens[i] = 2*key[i] + noise[i%4]
		age[i] = float64(i % 2)
		edu[i] = float64(i % 4 / 2)
	}
	for name, vals := range map[string][]float64{
		"b_perc_low40_hh": key,
		"b_pop_dens":      dens,
		"age":             age,
		"education":       edu,
	} {
		if err := f.AddNumeric(name, vals); err != nil {
			t.Fatalf("AddNumeric %s: %v", name, err)
		}
	}

	results, high := CalculateVIF(f, 5.0)
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}

	byName := make(map[string]float64, len(results))
	for _, r := range results {
		byName[r.Variable] = r.VIF
	}
	if byName["b_perc_low40_hh"] < 5 {
		t.Errorf("VIF(b_perc_low40_hh) = %v, want well above threshold", byName["b_perc_low40_hh"])
	}
	if byName["age"] > 5 {
		t.Errorf("VIF(age) = %v, want near 1", byName["age"])
	}

	flagged := make(map[string]bool, len(high))
	for _, name := range high {
		flagged[name] = true
	}
	if !flagged["b_perc_low40_hh"] || !flagged["b_pop_dens"] {
		t.Errorf("high = %v, want the collinear pair flagged", high)
	}
	if flagged["age"] || flagged["education"] {
		t.Errorf("high = %v, independent predictors should not be flagged", high)
	}
}

func TestCalculateVIFTooFewPredictors(t *testing.T) {
	f := frame.New(10)
	if err := f.AddNumeric("age", make([]float64, 10)); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	if results, high := CalculateVIF(f, 5.0); results != nil || high != nil {
		t.Error("expected no output with a single screened predictor")
	}
}

func TestCheckModel(t *testing.T) {
	fitted := &model.Fitted{
		Name:      "m3_buurt_controls",
		NObs:      5,
		NClusters: 2,
		Residuals: []float64{-2, -1, 0, 1, 2},
		RandomEffects: []model.RandomEffect{
			{Cluster: "a", Value: -1.5},
			{Cluster: "b", Value: 1.5},
		},
	}

	res, err := CheckModel(fitted)
	if err != nil {
		t.Fatalf("CheckModel: %v", err)
	}
	if math.Abs(res.Residuals.Mean) > 1e-12 {
		t.Errorf("residual mean = %v, want 0", res.Residuals.Mean)
	}
	if math.Abs(res.Residuals.SD-math.Sqrt(2.5)) > 1e-12 {
		t.Errorf("residual SD = %v, want %v", res.Residuals.SD, math.Sqrt(2.5))
	}
	if res.Residuals.Min != -2 || res.Residuals.Max != 2 || res.Residuals.N != 5 {
		t.Errorf("residual moments = %+v", res.Residuals)
	}
	if math.Abs(res.Residuals.Skewness) > 1e-12 {
		t.Errorf("residual skewness = %v, want 0 for symmetric residuals", res.Residuals.Skewness)
	}
	if res.RandomEffects.Min != -1.5 || res.RandomEffects.Max != 1.5 {
		t.Errorf("random effect moments = %+v", res.RandomEffects)
	}
	if res.NObs != 5 || res.NClusters != 2 {
		t.Errorf("N = %d/%d, want 5/2", res.NObs, res.NClusters)
	}
}

func TestCheckModelNoResiduals(t *testing.T) {
	if _, err := CheckModel(&model.Fitted{Name: "m0_empty"}); err == nil {
		t.Fatal("expected error when residuals were not retained")
	}
}

func TestSensitivityRun(t *testing.T) {
	data := robustnessFixture(t)
	runner := NewSensitivityRunner(mlm.NewEstimator())

	rows := runner.Run(context.Background(), data)
	if len(rows) != 7 {
		t.Fatalf("got %d rows, want 7", len(rows))
	}

	wantOrder := []string{
		"Base (DV_single)",
		"2-item composite",
		"3-item composite",
		"Dutch-born only",
		"Income ratio (high/low)",
		"With wealth interaction",
		"  -> Interaction term",
	}
	for i, want := range wantOrder {
		if rows[i].Specification != want {
			t.Errorf("row[%d] = %q, want %q", i, rows[i].Specification, want)
		}
	}

	base := rows[0]
	if base.Skipped {
		t.Fatalf("base spec skipped: %s", base.SkipReason)
	}
	if base.N != 40 {
		t.Errorf("base N = %d, want 40", base.N)
	}
	if base.Coefficient > -1 {
		t.Errorf("base key effect = %v, want strongly negative", base.Coefficient)
	}

	// Alternative outcomes and measures are absent from the fixture.
	for _, i := range []int{1, 2, 4} {
		if !rows[i].Skipped {
			t.Errorf("row %q should be skipped", rows[i].Specification)
		}
	}
	// The Dutch-born subsample is far below the minimum N.
	if !rows[3].Skipped {
		t.Errorf("Dutch-born spec should be skipped at N=20")
	}

	inter := rows[6]
	if inter.Skipped {
		t.Fatalf("interaction row skipped: %s", inter.SkipReason)
	}
	if inter.Predictor != "b_perc_low40_hh:wealth_index" {
		t.Errorf("interaction predictor = %q", inter.Predictor)
	}
	if math.Abs(inter.Coefficient-(-0.5)) > 0.1 {
		t.Errorf("interaction = %v, want near -0.5", inter.Coefficient)
	}
}

func TestModeration(t *testing.T) {
	data := robustnessFixture(t)
	tester := NewModerationTester(mlm.NewEstimator())

	result, err := tester.Test(data)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}

	if result.Moderator != "wealth_index" {
		t.Errorf("moderator = %q", result.Moderator)
	}
	if result.N != 40 {
		t.Errorf("N = %d, want 40", result.N)
	}
	if math.Abs(result.MainEffect.Estimate-(-2)) > 0.2 {
		t.Errorf("main effect = %v, want near -2", result.MainEffect.Estimate)
	}
	if math.Abs(result.Interaction.Estimate-(-0.5)) > 0.1 {
		t.Errorf("interaction = %v, want near -0.5", result.Interaction.Estimate)
	}
	if result.Verdict != report.VerdictSupported {
		t.Errorf("verdict = %q, want supported", result.Verdict)
	}

	if len(result.SimpleSlopes) != 5 {
		t.Fatalf("simple slopes = %v, want 5 levels", result.SimpleSlopes)
	}
	at0 := result.SimpleSlopes["0"]
	at4 := result.SimpleSlopes["4"]
	if math.Abs(at0-result.MainEffect.Estimate) > 1e-12 {
		t.Errorf("slope at wealth 0 = %v, want the main effect", at0)
	}
	if at4 >= at0 {
		t.Errorf("slope should strengthen with wealth: at0=%v at4=%v", at0, at4)
	}
}

func TestModerationMissingModerator(t *testing.T) {
	data := robustnessFixture(t).DropColumns("wealth_index")
	tester := NewModerationTester(mlm.NewEstimator())
	if _, err := tester.Test(data); err == nil {
		t.Fatal("expected error without the moderator column")
	}
}
