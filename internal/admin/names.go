package admin

import (
	"log"
	"strings"

	"buurtstat/domain/frame"
	"buurtstat/domain/geo"
)

// NameLookup maps geographic IDs to human-readable names, built from
// the raw CBS table where WijkenEnBuurten carries the region name.
type NameLookup struct {
	Buurt    map[string]string
	Wijk     map[string]string
	Gemeente map[string]string
}

// BuildNameLookup scans the standardized admin table for region names.
// Returns nil when the source has no name column.
func BuildNameLookup(admin *frame.Frame) *NameLookup {
	if !admin.HasColumn("region_code") || !admin.HasColumn("WijkenEnBuurten") {
		return nil
	}
	codes, codeMissing := admin.Strings("region_code")
	names, nameMissing := admin.Strings("WijkenEnBuurten")

	lookup := &NameLookup{
		Buurt:    make(map[string]string),
		Wijk:     make(map[string]string),
		Gemeente: make(map[string]string),
	}
	var gemNames []string
	var gemMissing []bool
	if admin.HasColumn("gemeente_name") {
		gemNames, gemMissing = admin.Strings("gemeente_name")
	}

	for i, code := range codes {
		if codeMissing[i] || nameMissing[i] {
			continue
		}
		level, id, ok := geo.ParseRegionCode(code)
		if !ok {
			continue
		}
		id = geo.PadID(id, level)
		name := strings.TrimSpace(names[i])
		switch level {
		case geo.LevelBuurt:
			if _, dup := lookup.Buurt[id]; !dup {
				lookup.Buurt[id] = name
			}
			// Buurt rows also carry the parent gemeente name.
			if gemNames != nil && !gemMissing[i] {
				gem := id[:geo.GemeenteWidth]
				if _, dup := lookup.Gemeente[gem]; !dup {
					lookup.Gemeente[gem] = strings.TrimSpace(gemNames[i])
				}
			}
		case geo.LevelWijk:
			if _, dup := lookup.Wijk[id]; !dup {
				lookup.Wijk[id] = name
			}
		case geo.LevelGemeente:
			if _, dup := lookup.Gemeente[id]; !dup {
				lookup.Gemeente[id] = name
			}
		}
	}
	log.Printf("[Admin] Name lookup: %d buurten, %d wijken, %d gemeenten",
		len(lookup.Buurt), len(lookup.Wijk), len(lookup.Gemeente))
	return lookup
}

// AddNames attaches buurt_name, wijk_name, and gemeente_name columns
// to data by looking up its geographic ID columns. Rows without a
// match get a missing name. A nil lookup (admin source without a name
// column) is a no-op.
func (l *NameLookup) AddNames(data *frame.Frame) error {
	if l == nil {
		log.Printf("[Admin] No region names in source, skipping name enrichment")
		return nil
	}
	for _, attach := range []struct {
		idCol, nameCol string
		names          map[string]string
	}{
		{"buurt_id", "buurt_name", l.Buurt},
		{"wijk_id", "wijk_name", l.Wijk},
		{"gemeente_id", "gemeente_name", l.Gemeente},
	} {
		if !data.HasColumn(attach.idCol) || data.HasColumn(attach.nameCol) {
			continue
		}
		ids, idMissing := data.Strings(attach.idCol)
		vals := make([]string, len(ids))
		missing := make([]bool, len(ids))
		matched := 0
		for i, id := range ids {
			if idMissing[i] {
				missing[i] = true
				continue
			}
			name, ok := attach.names[strings.TrimSpace(id)]
			if !ok {
				missing[i] = true
				continue
			}
			vals[i] = name
			matched++
		}
		if err := data.AddString(attach.nameCol, vals, missing); err != nil {
			return err
		}
		log.Printf("[Admin] %s: %d/%d matched", attach.nameCol, matched, data.NumRows())
	}
	return nil
}
