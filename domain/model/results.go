package model

import "math"

// Coefficient is one estimated fixed effect with its standard error
type Coefficient struct {
	Label    string  `json:"label"`
	Estimate float64 `json:"estimate"`
	SE       float64 `json:"se"`
}

// Z returns the Wald z statistic, or 0 when the SE is unusable
func (c Coefficient) Z() float64 {
	if c.SE <= 0 || math.IsNaN(c.SE) {
		return 0
	}
	return c.Estimate / c.SE
}

// Stars returns conventional significance markers from a two-tailed
// z-test: * p<.05, ** p<.01, *** p<.001.
func (c Coefficient) Stars() string {
	z := math.Abs(c.Z())
	switch {
	case z > 3.29:
		return "***"
	case z > 2.58:
		return "**"
	case z > 1.96:
		return "*"
	}
	return ""
}

// Significant reports a two-tailed z-test at the 5% level
func (c Coefficient) Significant() bool {
	return math.Abs(c.Z()) > 1.96
}

// RandomEffect is one cluster's estimated intercept offset (BLUP)
type RandomEffect struct {
	Cluster string  `json:"cluster"`
	Value   float64 `json:"value"`
}

// Fitted is the outcome of one random-intercept estimation
type Fitted struct {
	Spec          Spec           `json:"-"`
	Name          string         `json:"name"`
	Coefficients  []Coefficient  `json:"coefficients"`
	VarIntercept  float64        `json:"var_intercept"` // between-cluster variance
	VarResidual   float64        `json:"var_residual"`
	RandomEffects []RandomEffect `json:"random_effects,omitempty"`
	NObs          int            `json:"n_obs"`
	NClusters     int            `json:"n_clusters"`
	LogLik        float64        `json:"loglik"` // REML log-likelihood
	AIC           float64        `json:"aic"`
	BIC           float64        `json:"bic"`
	Converged     bool           `json:"converged"`
	Iterations    int            `json:"iterations"`
	Residuals     []float64      `json:"-"`
}

// Coefficient looks up a fixed effect by label
func (f *Fitted) Coefficient(label string) (Coefficient, bool) {
	for _, c := range f.Coefficients {
		if c.Label == label {
			return c, true
		}
	}
	return Coefficient{}, false
}

// Sequence is an ordered list of fitted models sharing outcome and
// grouping, each formula a strict superset of the previous. A model that
// failed to converge is recorded with its error so the rest of the
// sequence survives.
type Sequence struct {
	Name   string
	Models []SequenceEntry
}

// SequenceEntry pairs a model slot with its outcome: a fit or a failure
type SequenceEntry struct {
	Spec   Spec
	Fitted *Fitted // nil when estimation failed
	Err    error
}

// Fitted returns the successfully fitted models in order
func (s *Sequence) Fitted() []*Fitted {
	out := make([]*Fitted, 0, len(s.Models))
	for _, e := range s.Models {
		if e.Fitted != nil {
			out = append(out, e.Fitted)
		}
	}
	return out
}

// Empty returns the unconditional model (first in the sequence), if fitted
func (s *Sequence) Empty() *Fitted {
	if len(s.Models) == 0 {
		return nil
	}
	return s.Models[0].Fitted
}

// Final returns the last successfully fitted model
func (s *Sequence) Final() *Fitted {
	for i := len(s.Models) - 1; i >= 0; i-- {
		if s.Models[i].Fitted != nil {
			return s.Models[i].Fitted
		}
	}
	return nil
}

// Failures returns the names and errors of models that did not fit
func (s *Sequence) Failures() map[string]error {
	out := make(map[string]error)
	for _, e := range s.Models {
		if e.Err != nil {
			out[e.Spec.Name] = e.Err
		}
	}
	return out
}

// ICCResult is the variance decomposition of the empty model: the share
// of outcome variance lying between clusters.
type ICCResult struct {
	ICC         float64 `json:"icc"`
	VarBetween  float64 `json:"var_between"`
	VarResidual float64 `json:"var_residual"`
	VarTotal    float64 `json:"var_total"`
	PctBetween  float64 `json:"pct_between"`
	PctWithin   float64 `json:"pct_within"`
}

// NewICCResult decomposes the empty model's variance components.
// icc = var_between / (var_between + var_residual).
func NewICCResult(varBetween, varResidual float64) ICCResult {
	total := varBetween + varResidual
	icc := 0.0
	if total > 0 {
		icc = varBetween / total
	}
	return ICCResult{
		ICC:         icc,
		VarBetween:  varBetween,
		VarResidual: varResidual,
		VarTotal:    total,
		PctBetween:  100 * icc,
		PctWithin:   100 * (1 - icc),
	}
}
