package diagnostics

import (
	"log"
	"math"

	"buurtstat/domain/model"
	apperrors "buurtstat/internal/errors"

	"gonum.org/v1/gonum/stat"
)

// Moments summarizes a distribution's shape.
type Moments struct {
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"` // excess kurtosis
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	N        int     `json:"n"`
}

// Result bundles the diagnostic checks on the final model.
type Result struct {
	VIF           []VIFResult `json:"vif"`
	HighVIF       []string    `json:"high_vif"`
	Residuals     Moments     `json:"residuals"`
	RandomEffects Moments     `json:"random_effects"`
	NObs          int         `json:"n_obs"`
	NClusters     int         `json:"n_clusters"`
}

// CheckModel runs residual and random-effect diagnostics on a fitted
// model. The model must have been estimated with residuals and BLUPs
// retained.
func CheckModel(fitted *model.Fitted) (Result, error) {
	if len(fitted.Residuals) == 0 {
		return Result{}, apperrors.ValidationError(
			fitted.Name+": residuals not retained during estimation", nil)
	}

	res := Result{
		NObs:      fitted.NObs,
		NClusters: fitted.NClusters,
	}

	log.Printf("[Diagnostics] Analyzing residuals...")
	res.Residuals = describe(fitted.Residuals)
	log.Printf("[Diagnostics] Residual mean: %.4f (should be ~0)", res.Residuals.Mean)
	log.Printf("[Diagnostics] Residual skewness: %.2f", res.Residuals.Skewness)
	log.Printf("[Diagnostics] Residual kurtosis: %.2f", res.Residuals.Kurtosis)

	if len(fitted.RandomEffects) > 0 {
		log.Printf("[Diagnostics] Analyzing random effects...")
		values := make([]float64, len(fitted.RandomEffects))
		for i, re := range fitted.RandomEffects {
			values[i] = re.Value
		}
		res.RandomEffects = describe(values)
		log.Printf("[Diagnostics] N clusters: %d", len(values))
		log.Printf("[Diagnostics] RE range: [%.2f, %.2f]",
			res.RandomEffects.Min, res.RandomEffects.Max)
	}
	return res, nil
}

func describe(values []float64) Moments {
	m := Moments{
		N:   len(values),
		Min: math.Inf(1),
		Max: math.Inf(-1),
	}
	if m.N == 0 {
		return m
	}
	mean, variance := stat.MeanVariance(values, nil)
	m.Mean = mean
	m.SD = math.Sqrt(variance)
	m.Skewness = stat.Skew(values, nil)
	m.Kurtosis = stat.ExKurtosis(values, nil)
	for _, v := range values {
		if v < m.Min {
			m.Min = v
		}
		if v > m.Max {
			m.Max = v
		}
	}
	return m
}
