package extract

import (
	"fmt"
	"log"

	"buurtstat/domain/frame"
	"buurtstat/domain/report"
)

const (
	minSurveyN    = 5000
	minGeocodePct = 90.0
)

// ValidateRawData checks survey size, geocode coverage, and admin
// region counts before any transformation runs. The result lands in
// the run summary; failures are advisory.
func ValidateRawData(survey, admin *frame.Frame) report.RawValidation {
	v := report.RawValidation{
		SurveyN: survey.NumRows(),
		AdminN:  admin.NumRows(),
		Passed:  true,
	}

	if survey.HasColumn("Buurtcode") {
		v.SurveyCompleteGeo = survey.NonMissingCount("Buurtcode")
		geoPct := 0.0
		if v.SurveyN > 0 {
			geoPct = float64(v.SurveyCompleteGeo) / float64(v.SurveyN) * 100
		}
		log.Printf("[Extract] Survey: %d respondents, %.1f%% with geocode", v.SurveyN, geoPct)
		if geoPct < minGeocodePct {
			v.Issues = append(v.Issues, fmt.Sprintf("Low geocode coverage: %.1f%%", geoPct))
			v.Passed = false
		}
	} else {
		v.Issues = append(v.Issues, "No Buurtcode column in survey")
		v.Passed = false
	}

	if admin.HasColumn("region_type") {
		types, missing := admin.Strings("region_type")
		for i, t := range types {
			if missing[i] {
				continue
			}
			switch t {
			case "Buurt":
				v.AdminBuurt++
			case "Wijk":
				v.AdminWijk++
			case "Gemeente":
				v.AdminGemeente++
			}
		}
		log.Printf("[Extract] Admin: %d buurt, %d wijk, %d gemeente",
			v.AdminBuurt, v.AdminWijk, v.AdminGemeente)
	} else {
		log.Printf("[Extract] Admin: %d total rows (region type not identified)", v.AdminN)
	}

	if v.SurveyN < minSurveyN {
		v.Issues = append(v.Issues, fmt.Sprintf("Survey N too low: %d", v.SurveyN))
		v.Passed = false
	}

	if v.Passed {
		log.Printf("[Extract] Raw data validation passed")
	} else {
		log.Printf("[Extract] Raw data validation failed: %v", v.Issues)
	}
	return v
}
