package schema

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoDefinition is returned when no definition matches the version stamped
// in a binary payload. It is deliberately distinct from a generic decode
// failure so callers can report "needs schema update" instead of "corrupt
// file".
var ErrNoDefinition = errors.New("schema: no definition for version")

// Patch carries field-level overrides for one table: field name → property
// name → value. Recognized properties are "default", "description" and
// "is_key".
type Patch map[string]map[string]string

// Registry is a snapshot of table definitions for one game.
//
// A Registry is not safe for concurrent mutation; owners that share one
// across goroutines must treat it as immutable and swap in a Clone when
// updating (the session loop does exactly that).
type Registry struct {
	game    string
	defs    map[string][]*Definition // ascending by version
	patches map[string]Patch
}

// NewRegistry creates an empty registry for the given game key.
func NewRegistry(game string) *Registry {
	return &Registry{
		game:    game,
		defs:    make(map[string][]*Definition),
		patches: make(map[string]Patch),
	}
}

// Game returns the game key the registry belongs to.
func (r *Registry) Game() string { return r.game }

// AddDefinition registers a definition for a table. A definition for the
// same (table, version) pair must not already exist.
func (r *Registry) AddDefinition(table string, def *Definition) error {
	for _, existing := range r.defs[table] {
		if existing.Version == def.Version {
			return fmt.Errorf("schema: %s already has a definition for version %d", table, def.Version)
		}
	}
	defs := append(r.defs[table], def.Clone())
	sort.Slice(defs, func(i, j int) bool { return defs[i].Version < defs[j].Version })
	r.defs[table] = defs
	return nil
}

// Definition returns the definition matching the exact version stamped in a
// payload. There is no fallback: a missing version is ErrNoDefinition.
func (r *Registry) Definition(table string, version uint32) (*Definition, error) {
	for _, def := range r.defs[table] {
		if def.Version == version {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: table %s version %d", ErrNoDefinition, table, version)
}

// Latest returns the highest-versioned definition of a table.
func (r *Registry) Latest(table string) (*Definition, error) {
	defs := r.defs[table]
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: table %s has no definitions", ErrNoDefinition, table)
	}
	return defs[len(defs)-1], nil
}

// Versions returns the known versions of a table, ascending.
func (r *Registry) Versions(table string) []uint32 {
	defs := r.defs[table]
	versions := make([]uint32, len(defs))
	for i, def := range defs {
		versions[i] = def.Version
	}
	return versions
}

// Tables returns all table names with at least one definition, sorted.
func (r *Registry) Tables() []string {
	tables := make([]string, 0, len(r.defs))
	for name := range r.defs {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// Patches returns the patch set of a table, or nil when none exists.
func (r *Registry) Patches(table string) Patch {
	return r.patches[table]
}

// PatchValue resolves one field-level override. The lookup is late-bound:
// patches are never merged into definitions, so updating a patch never
// invalidates a previously obtained Definition.
func (r *Registry) PatchValue(table, field, property string) (string, bool) {
	fields, ok := r.patches[table]
	if !ok {
		return "", false
	}
	props, ok := fields[field]
	if !ok {
		return "", false
	}
	v, ok := props[property]
	return v, ok
}

// SetPatch records a field-level override.
func (r *Registry) SetPatch(table, field, property, value string) {
	fields, ok := r.patches[table]
	if !ok {
		fields = make(Patch)
		r.patches[table] = fields
	}
	props, ok := fields[field]
	if !ok {
		props = make(map[string]string)
		fields[field] = props
	}
	props[property] = value
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	out := NewRegistry(r.game)
	for table, defs := range r.defs {
		copied := make([]*Definition, len(defs))
		for i, def := range defs {
			copied[i] = def.Clone()
		}
		out.defs[table] = copied
	}
	for table, patch := range r.patches {
		copied := make(Patch, len(patch))
		for field, props := range patch {
			p := make(map[string]string, len(props))
			for k, v := range props {
				p[k] = v
			}
			copied[field] = p
		}
		out.patches[table] = copied
	}
	return out
}
