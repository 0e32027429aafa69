package mlm

import (
	"math"
	"testing"

	"buurtstat/domain/frame"
	"buurtstat/domain/model"
)

// balancedFixture is a one-way layout with four clusters of three
// observations. Cluster means 10/12/14/16 with within-cluster offsets
// -1/0/+1 give closed-form ANOVA components: within variance 1,
// between variance 19/3.
func balancedFixture(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New(12)
	y := []float64{
		9, 10, 11,
		11, 12, 13,
		13, 14, 15,
		15, 16, 17,
	}
	g := []string{
		"a", "a", "a",
		"b", "b", "b",
		"c", "c", "c",
		"d", "d", "d",
	}
	if err := f.AddNumeric("y", y); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	if err := f.AddString("g", g, nil); err != nil {
		t.Fatalf("AddString: %v", err)
	}
	return f
}

func TestFitInterceptOnly(t *testing.T) {
	spec := model.NewSpec("m0_empty", "y", "g")
	d, err := BuildDesign(balancedFixture(t), spec)
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}

	fit, err := NewEstimator().Fit(spec, d)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if !fit.Converged {
		t.Fatal("REML search did not converge")
	}
	if fit.NObs != 12 || fit.NClusters != 4 {
		t.Errorf("N=%d clusters=%d, want 12/4", fit.NObs, fit.NClusters)
	}

	// Balanced one-way REML coincides with the ANOVA estimators.
	if math.Abs(fit.VarResidual-1) > 1e-3 {
		t.Errorf("VarResidual = %v, want 1", fit.VarResidual)
	}
	if math.Abs(fit.VarIntercept-19.0/3) > 5e-3 {
		t.Errorf("VarIntercept = %v, want %v", fit.VarIntercept, 19.0/3)
	}

	// GLS intercept in a balanced design is the grand mean at any
	// variance ratio.
	intercept := fit.Coefficients[0]
	if intercept.Label != "Intercept" {
		t.Fatalf("first coefficient = %q", intercept.Label)
	}
	if math.Abs(intercept.Estimate-13) > 1e-6 {
		t.Errorf("intercept = %v, want 13", intercept.Estimate)
	}
	if intercept.SE <= 0 {
		t.Errorf("intercept SE = %v, want positive", intercept.SE)
	}

	if fit.AIC >= fit.BIC {
		t.Errorf("AIC %v should be below BIC %v at N=12", fit.AIC, fit.BIC)
	}

	// BLUP for cluster a: shrinkage 19/20 on mean residual -3.
	var found bool
	for _, re := range fit.RandomEffects {
		if re.Cluster == "a" {
			found = true
			if math.Abs(re.Value-(-2.85)) > 1e-2 {
				t.Errorf("BLUP(a) = %v, want -2.85", re.Value)
			}
		}
	}
	if !found {
		t.Error("no BLUP for cluster a")
	}

	icc := model.NewICCResult(fit.VarIntercept, fit.VarResidual)
	if math.Abs(icc.ICC-19.0/22) > 1e-3 {
		t.Errorf("ICC = %v, want %v", icc.ICC, 19.0/22)
	}
}

func TestFitNoBetweenVariance(t *testing.T) {
	f := frame.New(12)
	y := make([]float64, 12)
	g := make([]string, 12)
	for i := range y {
		y[i] = float64(i%4 + 1)
		g[i] = string(rune('a' + i/4))
	}
	if err := f.AddNumeric("y", y); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	if err := f.AddString("g", g, nil); err != nil {
		t.Fatalf("AddString: %v", err)
	}

	spec := model.NewSpec("m0_empty", "y", "g")
	d, err := BuildDesign(f, spec)
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	fit, err := NewEstimator().Fit(spec, d)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if fit.VarIntercept != 0 {
		t.Errorf("VarIntercept = %v, want 0 for identical cluster means", fit.VarIntercept)
	}
	// At the boundary the fit is plain OLS: SST/(N-1).
	if math.Abs(fit.VarResidual-15.0/11) > 1e-9 {
		t.Errorf("VarResidual = %v, want %v", fit.VarResidual, 15.0/11)
	}
}

func TestFitRecoversFixedEffects(t *testing.T) {
	// y = 1 + 2x + e with residuals orthogonal to x and zero cluster
	// sums, so the solution is exact OLS at lambda 0.
	f := frame.New(8)
	x := []float64{0, 1, 2, 3, 0, 1, 2, 3}
	e := []float64{1, -1, -1, 1, 1, -1, -1, 1}
	y := make([]float64, 8)
	g := make([]string, 8)
	for i := range y {
		y[i] = 1 + 2*x[i] + e[i]
		g[i] = "c1"
		if i >= 4 {
			g[i] = "c2"
		}
	}
	if err := f.AddNumeric("y", y); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	if err := f.AddNumeric("x", x); err != nil {
		t.Fatalf("AddNumeric: %v", err)
	}
	if err := f.AddString("g", g, nil); err != nil {
		t.Fatalf("AddString: %v", err)
	}

	spec := model.NewSpec("m1", "y", "g", model.Continuous("x"))
	d, err := BuildDesign(f, spec)
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	est := NewEstimator()
	est.KeepResiduals = true
	fit, err := est.Fit(spec, d)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if c, ok := fit.Coefficient("x"); !ok || math.Abs(c.Estimate-2) > 1e-6 {
		t.Errorf("slope = %+v, want 2", c)
	}
	if c, ok := fit.Coefficient("Intercept"); !ok || math.Abs(c.Estimate-1) > 1e-6 {
		t.Errorf("intercept = %+v, want 1", c)
	}
	if math.Abs(fit.VarResidual-4.0/3) > 1e-9 {
		t.Errorf("VarResidual = %v, want %v", fit.VarResidual, 4.0/3)
	}
	if len(fit.Residuals) != 8 {
		t.Fatalf("residuals length = %d, want 8", len(fit.Residuals))
	}
	for i, r := range fit.Residuals {
		if math.Abs(r-e[i]) > 1e-6 {
			t.Errorf("residual[%d] = %v, want %v", i, r, e[i])
		}
	}
}

func TestFitInsufficientData(t *testing.T) {
	d := &Design{
		Y:        []float64{1, 2},
		X:        [][]float64{{1, 0, 1}, {1, 1, 0}},
		Labels:   []string{"Intercept", "a", "b"},
		Clusters: []string{"g1", "g2"},
		Groups:   groupRows([]string{"g1", "g2"}),
	}
	spec := model.NewSpec("tiny", "y", "g")
	if _, err := NewEstimator().Fit(spec, d); err == nil {
		t.Fatal("expected error when parameters outnumber observations")
	}
}

func TestFitConstantColumn(t *testing.T) {
	d := &Design{
		Y:        []float64{1, 2, 3, 4, 5, 6},
		Labels:   []string{"Intercept", "x"},
		Clusters: []string{"g1", "g1", "g1", "g2", "g2", "g2"},
	}
	d.Groups = groupRows(d.Clusters)
	d.X = make([][]float64, 6)
	for i := range d.X {
		d.X[i] = []float64{1, 5}
	}
	spec := model.NewSpec("const", "y", "g")
	if _, err := NewEstimator().Fit(spec, d); err == nil {
		t.Fatal("expected error for a constant design column")
	}
}

func TestGoldenSection(t *testing.T) {
	f := func(x float64) float64 { return -(x - 2) * (x - 2) }
	argmax, _, converged := goldenSection(f, 0, 10, 1e-10, 200)
	if !converged {
		t.Fatal("search did not converge")
	}
	if math.Abs(argmax-2) > 1e-6 {
		t.Errorf("argmax = %v, want 2", argmax)
	}

	// Monotone decreasing: the boundary must win.
	dec := func(x float64) float64 { return -x }
	argmax, _, converged = goldenSection(dec, 0, 10, 1e-10, 200)
	if !converged {
		t.Fatal("search did not converge")
	}
	if argmax != 0 {
		t.Errorf("argmax = %v, want boundary 0", argmax)
	}
}

func TestDecomposeVariance(t *testing.T) {
	empty := model.NewSpec("m0_empty", "y", "g")
	seq := &model.Sequence{
		Name: "two_level",
		Models: []model.SequenceEntry{{
			Spec: empty,
			Fitted: &model.Fitted{
				Spec: empty, Name: "m0_empty",
				VarIntercept: 17.8, VarResidual: 512.4,
			},
		}},
	}
	icc, err := DecomposeVariance(seq)
	if err != nil {
		t.Fatalf("DecomposeVariance: %v", err)
	}
	want := 17.8 / (17.8 + 512.4)
	if math.Abs(icc.ICC-want) > 1e-12 {
		t.Errorf("ICC = %v, want %v", icc.ICC, want)
	}

	if _, err := DecomposeVariance(&model.Sequence{Name: "empty"}); err == nil {
		t.Fatal("expected error without a fitted empty model")
	}
}
