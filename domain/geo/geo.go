package geo

import "strings"

// Dutch administrative hierarchy, finest to coarsest:
// buurt (8-digit code), wijk (first 6 digits), gemeente (first 4 digits).
const (
	BuurtWidth    = 8
	WijkWidth     = 6
	GemeenteWidth = 4
)

// Level identifies one of the three nested geographic resolutions
type Level string

const (
	LevelBuurt    Level = "Buurt"
	LevelWijk     Level = "Wijk"
	LevelGemeente Level = "Gemeente"
)

// Levels returns all levels, finest first
func Levels() []Level {
	return []Level{LevelBuurt, LevelWijk, LevelGemeente}
}

// Prefix returns the variable-name prefix used to namespace indicator
// columns for this level (b_, w_, g_).
func (l Level) Prefix() string {
	switch l {
	case LevelBuurt:
		return "b_"
	case LevelWijk:
		return "w_"
	case LevelGemeente:
		return "g_"
	}
	return ""
}

// IDWidth returns the zero-padded code width for this level
func (l Level) IDWidth() int {
	switch l {
	case LevelBuurt:
		return BuurtWidth
	case LevelWijk:
		return WijkWidth
	case LevelGemeente:
		return GemeenteWidth
	}
	return 0
}

// IDColumn returns the analysis-table column holding this level's id
func (l Level) IDColumn() string {
	switch l {
	case LevelBuurt:
		return "buurt_id"
	case LevelWijk:
		return "wijk_id"
	case LevelGemeente:
		return "gemeente_id"
	}
	return ""
}

// Key returns the lowercase lookup key for this level
func (l Level) Key() string {
	return strings.ToLower(string(l))
}

// ID is a three-level hierarchical identifier derived from one buurt code.
// Invariant: Wijk == Buurt[:6] and Gemeente == Buurt[:4] whenever Buurt is
// set; a missing source code leaves all three empty, never a partial set.
type ID struct {
	Buurt    string
	Wijk     string
	Gemeente string
}

// IsMissing reports whether the identifier carries no code
func (id ID) IsMissing() bool {
	return id.Buurt == ""
}

// At returns the code for the requested level
func (id ID) At(level Level) string {
	switch level {
	case LevelBuurt:
		return id.Buurt
	case LevelWijk:
		return id.Wijk
	case LevelGemeente:
		return id.Gemeente
	}
	return ""
}

// DeriveID builds the hierarchical identifier from a raw buurt code as it
// arrives from the survey: possibly numeric storage with a trailing ".0",
// possibly shorter than 8 digits. Codes are zero-padded to 8 characters
// and never rejected for being short; that mirrors the source data, where
// leading zeros are routinely lost in numeric storage.
func DeriveID(raw string) ID {
	code := strings.TrimSpace(raw)
	code = strings.TrimSuffix(code, ".0")
	if code == "" || strings.EqualFold(code, "nan") {
		return ID{}
	}
	code = zeroPad(code, BuurtWidth)
	return ID{
		Buurt:    code,
		Wijk:     code[:WijkWidth],
		Gemeente: code[:GemeenteWidth],
	}
}

// ParseRegionCode splits a prefixed CBS region code (BU03630000, WK036300,
// GM0363) into its level and bare id. Unrecognized prefixes return ok=false;
// callers drop such rows from every level table.
func ParseRegionCode(code string) (Level, string, bool) {
	code = strings.TrimSpace(code)
	if len(code) < 2 {
		return "", "", false
	}
	id := strings.TrimSpace(code[2:])
	switch code[:2] {
	case "BU":
		return LevelBuurt, id, true
	case "WK":
		return LevelWijk, id, true
	case "GM":
		return LevelGemeente, id, true
	}
	return "", "", false
}

// PadID zero-pads a bare region id to the level's fixed width
func PadID(id string, level Level) string {
	return zeroPad(id, level.IDWidth())
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
