package extract

import (
	"fmt"
	"log"
	"strings"

	"buurtstat/domain/core"
	"buurtstat/domain/frame"
	apperrors "buurtstat/internal/errors"
)

// surveyColumns maps raw questionnaire item names to analysis variable
// names. Unlisted source columns are dropped on load.
var surveyColumns = map[string]string{
	// Redistribution attitude items (1-7 agreement scale)
	"a27_1": "gov_int",
	"a27_2": "red_inc_diff",
	"a27_3": "union_pref",

	// Demographics
	"b01": "sex",
	"b02": "birth_year",
	"b03": "educlvl",
	"b04": "educyrs",

	// Employment
	"b07": "work_status",
	"b09": "employee_type",
	"b10": "org_type",
	"b11": "has_supervisory",
	"b13": "occupation_class",

	// Asset ownership
	"b14_1": "owns_home",
	"b14_2": "owns_property",
	"b14_3": "has_savings",
	"b14_4": "owns_stocks",
	"b14_5": "no_assets",

	// Migration background
	"b18": "born_in_nl",
	"b20": "father_dutch",
	"b21": "mother_dutch",

	// Neighborhood code and survey weight
	"Buurtcode": "Buurtcode",
	"weegfac":   "weight",
}

// requiredSurveyColumns must exist after mapping; without them no
// analysis is possible and extraction fails outright.
var requiredSurveyColumns = []string{"red_inc_diff", "Buurtcode"}

// SurveyReader loads the raw survey export and renames questionnaire
// items to analysis variable names.
type SurveyReader struct {
	filePath string
}

func NewSurveyReader(filePath string) *SurveyReader {
	return &SurveyReader{filePath: filePath}
}

// Load reads the survey file, keeps the mapped columns, and assigns a
// sequential respondent_id starting at 1.
func (r *SurveyReader) Load() (*frame.Frame, error) {
	header, rows, err := NewTableReader(r.filePath).Read()
	if err != nil {
		return nil, apperrors.ExtractError("failed to read survey file", err)
	}

	raw, err := ToFrame(header, rows, map[string]bool{"Buurtcode": true})
	if err != nil {
		return nil, apperrors.ExtractError("failed to parse survey file", err)
	}

	out := frame.New(raw.NumRows())
	found := 0
	for source, target := range surveyColumns {
		col, ok := raw.Column(source)
		if !ok {
			continue
		}
		found++
		switch col.Type {
		case frame.TypeNumeric:
			if err := out.AddNumeric(target, raw.Numeric(source)); err != nil {
				return nil, apperrors.ExtractError("failed to map survey column", err)
			}
		default:
			vals, missing := raw.Strings(source)
			if err := out.AddString(target, vals, missing); err != nil {
				return nil, apperrors.ExtractError("failed to map survey column", err)
			}
		}
	}

	var absent []string
	for _, name := range requiredSurveyColumns {
		if !out.HasColumn(name) {
			absent = append(absent, name)
		}
	}
	if len(absent) > 0 {
		return nil, apperrors.ExtractError("survey file is unusable",
			fmt.Errorf("%w: %s", core.ErrMissingColumns, strings.Join(absent, ", ")))
	}

	ids := make([]float64, out.NumRows())
	for i := range ids {
		ids[i] = float64(i + 1)
	}
	if err := out.AddNumeric("respondent_id", ids); err != nil {
		return nil, apperrors.ExtractError("failed to assign respondent ids", err)
	}

	log.Printf("[Extract] Loaded survey: %d respondents, %d/%d mapped columns",
		out.NumRows(), found, len(surveyColumns))
	return out, nil
}
