package schema

import (
	"reflect"
	"sort"
)

// Conflict reports a definition the update refused to overwrite because it
// is structurally different and known to be in use by loaded tables.
type Conflict struct {
	Table   string
	Version uint32
}

// UpdateReport summarizes an UpdateFromAssKit run.
type UpdateReport struct {
	Added     int
	Replaced  int
	Conflicts []Conflict
}

// UpdateFromAssKit merges authoritative definitions from game-development-kit
// data into the registry.
//
// inUse lists (table → versions) currently referenced by loaded tables. A
// definition for an in-use version is never removed or structurally
// reinterpreted: when the incoming definition differs, the existing one is
// kept and the pair is reported as a conflict. Everything else is added or
// replaced in place. Patches are merged additively, incoming values winning
// per property.
func (r *Registry) UpdateFromAssKit(incoming *Registry, inUse map[string][]uint32) *UpdateReport {
	report := &UpdateReport{}

	for _, table := range incoming.Tables() {
		for _, def := range incoming.defs[table] {
			existing, err := r.Definition(table, def.Version)
			if err != nil {
				// Unknown (table, version): plain addition.
				_ = r.AddDefinition(table, def)
				report.Added++
				continue
			}
			if reflect.DeepEqual(existing.Fields, def.Fields) {
				continue
			}
			if versionInUse(inUse, table, def.Version) {
				report.Conflicts = append(report.Conflicts, Conflict{Table: table, Version: def.Version})
				continue
			}
			*existing = *def.Clone()
			report.Replaced++
		}
	}

	for table, patch := range incoming.patches {
		for field, props := range patch {
			for property, value := range props {
				r.SetPatch(table, field, property, value)
			}
		}
	}

	sort.Slice(report.Conflicts, func(i, j int) bool {
		a, b := report.Conflicts[i], report.Conflicts[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.Version < b.Version
	})
	return report
}

func versionInUse(inUse map[string][]uint32, table string, version uint32) bool {
	for _, v := range inUse[table] {
		if v == version {
			return true
		}
	}
	return false
}
