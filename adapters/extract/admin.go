package extract

import (
	"log"

	"buurtstat/domain/frame"
	"buurtstat/domain/geo"
	apperrors "buurtstat/internal/errors"
)

// cbsColumnMap maps CBS StatLine column names (table 84286NED, 2018+)
// to canonical indicator names. Region code columns are handled
// separately because only one of them may be renamed.
var cbsColumnMap = map[string]string{
	"Gemeentenaam_1":                           "gemeente_name",
	"AantalInwoners_5":                         "pop_total",
	"k_65JaarOfOuder_12":                       "pop_over_65",
	"Bevolkingsdichtheid_33":                   "pop_dens",
	"WestersTotaal_17":                         "pop_west",
	"NietWestersTotaal_18":                     "pop_nonwest",
	"GemiddeldInkomenPerInkomensontvanger_68":  "avg_inc_recip",
	"GemiddeldInkomenPerInwoner_69":            "avg_inc_pers",
	"HuishoudensTotaal_28":                     "hh_total",
	"Koopwoningen_40":                          "owner_occupied",
	"GemiddeldeWoningwaarde_35":                "avg_home_value",
	"k_40PersonenMetLaagsteInkomen_70":         "perc_low40_pers",
	"k_20PersonenMetHoogsteInkomen_71":         "perc_high20_pers",
	"k_40HuishoudensMetLaagsteInkomen_73":      "perc_low40_hh",
	"k_20HuishoudensMetHoogsteInkomen_74":      "perc_high20_hh",
	"HuishoudensMetEenLaagInkomen_75":          "perc_low_inc_hh",
	"HuishoudensTot110VanSociaalMinimum_77":    "perc_soc_min_hh",
}

// regionCodeCandidates are accepted source columns for the region code,
// in priority order. Codering_3 is preferred because it carries the
// clean BU/WK/GM prefix.
var regionCodeCandidates = []string{"region_code", "Codering_3", "WijkenEnBuurten"}

// AdminReader loads CBS administrative indicators from a local file.
type AdminReader struct {
	filePath string
}

func NewAdminReader(filePath string) *AdminReader {
	return &AdminReader{filePath: filePath}
}

// Load reads the admin file and standardizes its columns.
func (r *AdminReader) Load() (*frame.Frame, error) {
	header, rows, err := NewTableReader(r.filePath).Read()
	if err != nil {
		return nil, apperrors.ExtractError("failed to read admin file", err)
	}

	forceString := map[string]bool{"Gemeentenaam_1": true, "Perioden": true}
	for _, name := range regionCodeCandidates {
		forceString[name] = true
	}
	raw, err := ToFrame(header, rows, forceString)
	if err != nil {
		return nil, apperrors.ExtractError("failed to parse admin file", err)
	}

	out, err := StandardizeCBSColumns(raw)
	if err != nil {
		return nil, err
	}
	log.Printf("[Extract] Loaded admin data: %d regions, %d columns",
		out.NumRows(), out.NumCols())
	return out, nil
}

// StandardizeCBSColumns renames CBS column variants to canonical names
// and derives region_type / region_id from the region code prefix.
func StandardizeCBSColumns(raw *frame.Frame) (*frame.Frame, error) {
	out := frame.New(raw.NumRows())

	var codeCol string
	for _, name := range regionCodeCandidates {
		if raw.HasColumn(name) {
			codeCol = name
			break
		}
	}

	for _, name := range raw.ColumnNames() {
		target := name
		if name == codeCol {
			target = "region_code"
		} else if mapped, ok := cbsColumnMap[name]; ok {
			target = mapped
		}

		col, _ := raw.Column(name)
		var err error
		if col.Type == frame.TypeNumeric {
			err = out.AddNumeric(target, raw.Numeric(name))
		} else {
			vals, missing := raw.Strings(name)
			err = out.AddString(target, vals, missing)
		}
		if err != nil {
			return nil, apperrors.ExtractError("failed to standardize admin columns", err)
		}
	}

	if codeCol == "" {
		return out, nil
	}

	codes, codeMissing := out.Strings("region_code")
	types := make([]string, len(codes))
	ids := make([]string, len(codes))
	missing := make([]bool, len(codes))
	for i, code := range codes {
		if codeMissing[i] {
			missing[i] = true
			continue
		}
		level, id, ok := geo.ParseRegionCode(code)
		if !ok {
			missing[i] = true
			continue
		}
		types[i] = regionTypeName(level)
		ids[i] = id
	}
	if err := out.AddString("region_type", types, missing); err != nil {
		return nil, apperrors.ExtractError("failed to derive region types", err)
	}
	if err := out.AddString("region_id", ids, missing); err != nil {
		return nil, apperrors.ExtractError("failed to derive region ids", err)
	}
	return out, nil
}

func regionTypeName(level geo.Level) string {
	switch level {
	case geo.LevelBuurt:
		return "Buurt"
	case geo.LevelWijk:
		return "Wijk"
	default:
		return "Gemeente"
	}
}
