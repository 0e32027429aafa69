package geo

import "testing"

func TestDeriveIDPadsShortCodes(t *testing.T) {
	id := DeriveID("3630100")

	if id.Buurt != "03630100" {
		t.Errorf("Buurt = %q, want 03630100", id.Buurt)
	}
	if id.Wijk != "036301" {
		t.Errorf("Wijk = %q, want 036301", id.Wijk)
	}
	if id.Gemeente != "0363" {
		t.Errorf("Gemeente = %q, want 0363", id.Gemeente)
	}
}

func TestDeriveIDStripsNumericSuffix(t *testing.T) {
	id := DeriveID("3630100.0")
	if id.Buurt != "03630100" {
		t.Errorf("Buurt = %q, want 03630100", id.Buurt)
	}
}

func TestDeriveIDMissingInputs(t *testing.T) {
	for _, raw := range []string{"", "  ", "nan", "NaN"} {
		id := DeriveID(raw)
		if !id.IsMissing() {
			t.Errorf("DeriveID(%q) should be missing, got %+v", raw, id)
		}
		if id.Wijk != "" || id.Gemeente != "" {
			t.Errorf("missing id must not carry partial codes: %+v", id)
		}
	}
}

func TestDeriveIDHierarchyInvariant(t *testing.T) {
	id := DeriveID("05189904")
	if id.Wijk != id.Buurt[:WijkWidth] {
		t.Errorf("Wijk %q is not a prefix of Buurt %q", id.Wijk, id.Buurt)
	}
	if id.Gemeente != id.Buurt[:GemeenteWidth] {
		t.Errorf("Gemeente %q is not a prefix of Buurt %q", id.Gemeente, id.Buurt)
	}
}

func TestParseRegionCode(t *testing.T) {
	tests := []struct {
		code  string
		level Level
		id    string
		ok    bool
	}{
		{"BU03630100", LevelBuurt, "03630100", true},
		{"WK036301", LevelWijk, "036301", true},
		{"GM0363", LevelGemeente, "0363", true},
		{"  GM0363  ", LevelGemeente, "0363", true},
		{"NL01", "", "", false},
		{"X", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		level, id, ok := ParseRegionCode(tt.code)
		if ok != tt.ok {
			t.Errorf("ParseRegionCode(%q) ok = %v, want %v", tt.code, ok, tt.ok)
			continue
		}
		if level != tt.level || id != tt.id {
			t.Errorf("ParseRegionCode(%q) = (%v, %q), want (%v, %q)", tt.code, level, id, tt.level, tt.id)
		}
	}
}

func TestPadID(t *testing.T) {
	if got := PadID("363", LevelGemeente); got != "0363" {
		t.Errorf("PadID gemeente = %q, want 0363", got)
	}
	if got := PadID("03630100", LevelBuurt); got != "03630100" {
		t.Errorf("PadID must not change full-width ids, got %q", got)
	}
}

func TestLevelAccessors(t *testing.T) {
	if LevelBuurt.Prefix() != "b_" || LevelWijk.Prefix() != "w_" || LevelGemeente.Prefix() != "g_" {
		t.Error("level prefixes must be b_, w_, g_")
	}
	if LevelBuurt.IDColumn() != "buurt_id" {
		t.Errorf("buurt id column = %q", LevelBuurt.IDColumn())
	}
	if LevelWijk.IDWidth() != WijkWidth {
		t.Errorf("wijk width = %d", LevelWijk.IDWidth())
	}
}
