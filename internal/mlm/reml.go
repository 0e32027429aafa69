package mlm

import (
	"fmt"
	"log"
	"math"

	"buurtstat/domain/core"
	"buurtstat/domain/model"
	apperrors "buurtstat/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// Estimator fits a linear random-intercept model by restricted
// maximum likelihood. The variance structure is profiled down to a
// single parameter, the ratio lambda = var_intercept / var_residual,
// which is optimized by golden-section search on the REML
// log-likelihood.
type Estimator struct {
	MaxIter       int
	Tol           float64
	LambdaMax     float64
	KeepResiduals bool
	KeepBLUPs     bool
}

func NewEstimator() *Estimator {
	return &Estimator{
		MaxIter:   200,
		Tol:       1e-8,
		LambdaMax: 1e4,
		KeepBLUPs: true,
	}
}

// Fit estimates the model for a realized design.
func (e *Estimator) Fit(spec model.Spec, d *Design) (*model.Fitted, error) {
	n, p := d.NObs(), d.NParams()
	if n <= p {
		return nil, apperrors.ModelError(spec.Name+": more parameters than observations",
			core.ErrInsufficientData)
	}
	for j := 1; j < p; j++ {
		if columnVariance(d.X, j) == 0 {
			return nil, apperrors.ModelError(
				spec.Name+": design column "+d.Labels[j]+" is constant",
				core.ErrZeroVariance)
		}
	}

	prof := newProfiler(d)

	lambda, iters, converged := goldenSection(prof.logLik, 0, e.LambdaMax, e.Tol, e.MaxIter)
	fit, err := prof.at(lambda)
	if err != nil {
		return nil, apperrors.ModelError(spec.Name+": estimation failed", err)
	}
	if !converged {
		return nil, apperrors.ModelError("REML search did not converge",
			core.NewConvergenceError(spec.Name, fmt.Sprintf("search hit iteration cap after %d steps", iters)))
	}

	out := &model.Fitted{
		Spec:         spec,
		Name:         spec.Name,
		VarIntercept: lambda * fit.sigma2,
		VarResidual:  fit.sigma2,
		NObs:         n,
		NClusters:    d.NGroups(),
		LogLik:       fit.logLik,
		Converged:    converged,
		Iterations:   iters,
	}
	for j, label := range d.Labels {
		out.Coefficients = append(out.Coefficients, model.Coefficient{
			Label:    label,
			Estimate: fit.beta[j],
			SE:       fit.se[j],
		})
	}

	// Information criteria on the REML likelihood; the parameter count
	// includes both variance components.
	k := float64(p + 2)
	out.AIC = -2*fit.logLik + 2*k
	out.BIC = -2*fit.logLik + k*math.Log(float64(n))

	if e.KeepResiduals {
		out.Residuals = fit.residuals(d)
	}
	if e.KeepBLUPs {
		out.RandomEffects = fit.blups(d, lambda)
	}

	log.Printf("[MLM] %s: N=%d, groups=%d, loglik=%.2f, var_u=%.3f, var_e=%.3f (%d iterations)",
		spec.Name, n, d.NGroups(), out.LogLik, out.VarIntercept, out.VarResidual, iters)
	return out, nil
}

// profiler evaluates the profiled REML log-likelihood at a given
// variance ratio. For a single random intercept the marginal
// covariance is block diagonal, V_j = sigma2 * (I + lambda*J), whose
// inverse and determinant have closed forms:
//
//	(I + lambda*J)^-1 = I - (lambda / (1 + lambda*n_j)) * J
//	log det(I + lambda*J) = log(1 + lambda*n_j)
//
// so each evaluation is one weighted least squares solve, no general
// matrix inversion.
type profiler struct {
	d     *Design
	cache map[float64]*profileFit
}

type profileFit struct {
	beta   []float64
	se     []float64
	sigma2 float64
	logLik float64
}

func newProfiler(d *Design) *profiler {
	return &profiler{d: d, cache: make(map[float64]*profileFit)}
}

func (p *profiler) logLik(lambda float64) float64 {
	fit, err := p.at(lambda)
	if err != nil {
		return math.Inf(-1)
	}
	return fit.logLik
}

func (p *profiler) at(lambda float64) (*profileFit, error) {
	if fit, ok := p.cache[lambda]; ok {
		return fit, nil
	}

	d := p.d
	n, k := d.NObs(), d.NParams()

	// Accumulate X'WX and X'Wy over clusters, where W is the
	// block-diagonal inverse of (I + lambda*J).
	xtwx := mat.NewSymDense(k, nil)
	xtwy := make([]float64, k)
	logDetV := 0.0

	for _, g := range d.Groups {
		nj := float64(len(g.Rows))
		shrink := lambda / (1 + lambda*nj)
		logDetV += math.Log(1 + lambda*nj)

		// Cluster sums of X columns and y.
		colSums := make([]float64, k)
		ySum := 0.0
		for _, i := range g.Rows {
			ySum += d.Y[i]
			for a := 0; a < k; a++ {
				colSums[a] += d.X[i][a]
			}
		}

		for _, i := range g.Rows {
			for a := 0; a < k; a++ {
				xtwy[a] += d.X[i][a] * d.Y[i]
				for b := a; b < k; b++ {
					xtwx.SetSym(a, b, xtwx.At(a, b)+d.X[i][a]*d.X[i][b])
				}
			}
		}
		for a := 0; a < k; a++ {
			xtwy[a] -= shrink * colSums[a] * ySum
			for b := a; b < k; b++ {
				xtwx.SetSym(a, b, xtwx.At(a, b)-shrink*colSums[a]*colSums[b])
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(xtwx); !ok {
		return nil, core.ErrSingularDesign
	}

	beta := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(beta, mat.NewVecDense(k, xtwy)); err != nil {
		return nil, core.ErrSingularDesign
	}

	// Weighted residual sum of squares, again via the closed-form W.
	rss := 0.0
	for _, g := range d.Groups {
		nj := float64(len(g.Rows))
		shrink := lambda / (1 + lambda*nj)
		rSum := 0.0
		for _, i := range g.Rows {
			r := d.Y[i] - dot(d.X[i], beta.RawVector().Data)
			rss += r * r
			rSum += r
		}
		rss -= shrink * rSum * rSum
	}

	// REML profiles out sigma2 with the n-p divisor.
	dfResid := float64(n - k)
	sigma2 := rss / dfResid
	if sigma2 <= 0 || math.IsNaN(sigma2) {
		return nil, core.ErrSingularDesign
	}

	logLik := -0.5 * (dfResid*(1+math.Log(2*math.Pi*sigma2)) + logDetV + chol.LogDet())

	// SE(beta) from sigma2 * (X'WX)^-1.
	se := make([]float64, k)
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, core.ErrSingularDesign
	}
	for a := 0; a < k; a++ {
		se[a] = math.Sqrt(sigma2 * cov.At(a, a))
	}

	fit := &profileFit{
		beta:   append([]float64(nil), beta.RawVector().Data...),
		se:     se,
		sigma2: sigma2,
		logLik: logLik,
	}
	p.cache[lambda] = fit
	return fit, nil
}

// residuals returns marginal residuals y - X*beta in design order.
func (f *profileFit) residuals(d *Design) []float64 {
	out := make([]float64, d.NObs())
	for i := range out {
		out[i] = d.Y[i] - dot(d.X[i], f.beta)
	}
	return out
}

// blups returns the empirical Bayes estimates of the cluster
// intercepts: u_j = (lambda*n_j / (1 + lambda*n_j)) * mean residual.
func (f *profileFit) blups(d *Design, lambda float64) []model.RandomEffect {
	resid := f.residuals(d)
	out := make([]model.RandomEffect, 0, d.NGroups())
	for _, g := range d.Groups {
		nj := float64(len(g.Rows))
		rBar := 0.0
		for _, i := range g.Rows {
			rBar += resid[i]
		}
		rBar /= nj
		out = append(out, model.RandomEffect{
			Cluster: g.Key,
			Value:   (lambda * nj / (1 + lambda*nj)) * rBar,
		})
	}
	return out
}

// goldenSection maximizes f over [lo, hi]. The variance ratio surface
// is unimodal for this model family; the boundary lambda=0 (no
// between-cluster variance) competes with the interior optimum, so
// both are compared at the end.
func goldenSection(f func(float64) float64, lo, hi, tol float64, maxIter int) (argmax float64, iters int, converged bool) {
	const phi = 0.6180339887498949

	a, b := lo, hi
	c := b - phi*(b-a)
	d := a + phi*(b-a)
	fc, fd := f(c), f(d)

	for iters = 0; iters < maxIter; iters++ {
		if b-a <= tol*(1+math.Abs(a)+math.Abs(b)) {
			converged = true
			break
		}
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - phi*(b-a)
			fc = f(c)
		} else {
			a, c, fc = c, d, fd
			d = a + phi*(b-a)
			fd = f(d)
		}
	}
	if iters == maxIter {
		// Interval may still be tight enough to report a usable
		// optimum; callers treat non-convergence as fatal.
		converged = b-a <= 1e-4*(1+math.Abs(a)+math.Abs(b))
	}

	mid := (a + b) / 2
	if f(lo) >= f(mid) {
		return lo, iters, converged
	}
	return mid, iters, converged
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
