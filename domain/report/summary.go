package report

import (
	"encoding/json"
	"fmt"
	"time"

	"buurtstat/domain/core"
	"buurtstat/domain/model"
)

// Summary is the precomputed results artifact consumed by the dashboard
// when the raw analysis table is unavailable ("demo mode"). It is the
// stable external contract: fields are explicit records, never loose
// maps, and schema problems surface at the serialization boundary.
type Summary struct {
	SchemaVersion int        `json:"schema_version"`
	RunID         core.RunID `json:"run_id"`
	GeneratedAt   time.Time  `json:"generated_at"`

	Sample       SampleCounts      `json:"sample"`
	ICC          model.ICCResult   `json:"icc"`
	KeyEffect    KeyEffectTrack    `json:"key_effect"`
	FourLevel    *KeyEffectTrack   `json:"four_level,omitempty"`
	FourLevelICC *model.ICCResult  `json:"four_level_icc,omitempty"`
	Sensitivity  []SensitivityRow  `json:"sensitivity"`
	Moderation   *ModerationResult `json:"moderation,omitempty"`
	Comparison   []ModelFitRow     `json:"model_comparison"`
	Validation   []MergeCheck      `json:"merge_validation"`
	RawData      *RawValidation    `json:"raw_validation,omitempty"`
}

// SchemaVersion for the serialized summary. Bump when the contract changes.
const SchemaVersion = 1

// SampleCounts reports observations and unique units at each level
type SampleCounts struct {
	Respondents int `json:"respondents"`
	AnalysisN   int `json:"analysis_n"`
	Buurten     int `json:"buurten"`
	Wijken      int `json:"wijken"`
	Gemeenten   int `json:"gemeenten"`
}

// KeyEffectTrack follows the key predictor's coefficient across a model
// sequence, one entry per model in which it appears.
type KeyEffectTrack struct {
	Predictor string              `json:"predictor"`
	Models    []model.Coefficient `json:"models"` // Label carries the model name
	FinalCI   [2]float64          `json:"final_ci"`
	CILevel   float64             `json:"ci_level"`
}

// SensitivityRow is one alternative-specification result
type SensitivityRow struct {
	Specification string  `json:"specification"`
	Predictor     string  `json:"predictor"`
	N             int     `json:"n"`
	Coefficient   float64 `json:"coefficient"`
	SE            float64 `json:"se"`
	Significant   bool    `json:"significant"`
	Skipped       bool    `json:"skipped"`
	SkipReason    string  `json:"skip_reason,omitempty"`
}

// ModerationVerdict classifies the cross-level interaction test
type ModerationVerdict string

const (
	VerdictSupported    ModerationVerdict = "supported"
	VerdictNotSupported ModerationVerdict = "not_supported"
	VerdictOpposite     ModerationVerdict = "opposite_direction"
)

// ModerationResult reports the moderation test with simple slopes
type ModerationResult struct {
	Moderator    string             `json:"moderator"`
	MainEffect   model.Coefficient  `json:"main_effect"`
	Interaction  model.Coefficient  `json:"interaction"`
	SimpleSlopes map[string]float64 `json:"simple_slopes"` // moderator value -> slope
	Verdict      ModerationVerdict  `json:"verdict"`
	N            int                `json:"n"`
}

// ModelFitRow is one line of the model-comparison table
type ModelFitRow struct {
	Model     string  `json:"model"`
	N         int     `json:"n"`
	NClusters int     `json:"n_clusters"`
	AIC       float64 `json:"aic"`
	BIC       float64 `json:"bic"`
	Converged bool    `json:"converged"`
}

// RawValidation summarizes the pre-merge sanity checks on freshly
// loaded data. Failures are advisory: the pipeline continues and the
// issues travel with the run results.
type RawValidation struct {
	SurveyN           int      `json:"survey_n"`
	SurveyCompleteGeo int      `json:"survey_complete_geo"`
	AdminN            int      `json:"admin_n"`
	AdminBuurt        int      `json:"admin_buurt"`
	AdminWijk         int      `json:"admin_wijk"`
	AdminGemeente     int      `json:"admin_gemeente"`
	Issues            []string `json:"issues"`
	Passed            bool     `json:"passed"`
}

// MergeCheck is one level's merge match-rate validation
type MergeCheck struct {
	Level      string  `json:"level"`
	NMatched   int     `json:"n_matched"`
	NMissing   int     `json:"n_missing"`
	PctMatched float64 `json:"pct_matched"`
	Status     string  `json:"status"` // "OK" or "LOW"
}

// Marshal serializes the summary, validating the contract first
func (s *Summary) Marshal() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(s, "", "  ")
}

// Validate checks the summary satisfies the external contract
func (s *Summary) Validate() error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("summary schema version %d, expected %d", s.SchemaVersion, SchemaVersion)
	}
	if s.RunID == "" {
		return fmt.Errorf("summary run id is required")
	}
	if s.KeyEffect.Predictor == "" {
		return fmt.Errorf("summary key predictor is required")
	}
	if s.ICC.VarTotal > 0 {
		want := s.ICC.VarBetween / s.ICC.VarTotal
		if diff := s.ICC.ICC - want; diff > 1e-9 || diff < -1e-9 {
			return fmt.Errorf("summary icc %.6f inconsistent with variance components", s.ICC.ICC)
		}
	}
	if s.FourLevelICC != nil && s.FourLevelICC.VarTotal > 0 {
		want := s.FourLevelICC.VarBetween / s.FourLevelICC.VarTotal
		if diff := s.FourLevelICC.ICC - want; diff > 1e-9 || diff < -1e-9 {
			return fmt.Errorf("summary four-level icc %.6f inconsistent with variance components", s.FourLevelICC.ICC)
		}
	}
	return nil
}

// UnmarshalSummary parses and validates a serialized summary
func UnmarshalSummary(data []byte) (*Summary, error) {
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse results summary: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
