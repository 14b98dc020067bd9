package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitsDefinition(version uint32) *Definition {
	return &Definition{
		Version: version,
		Fields: []Field{
			{Name: "key", Type: FTStringU8, IsKey: true},
			{Name: "health", Type: FTI32},
			{Name: "speed", Type: FTF32},
			{Name: "faction", Type: FTStringU8, Reference: &Reference{Table: "factions", Column: "key"}},
		},
	}
}

func TestDefinitionExactVersionOnly(t *testing.T) {
	t.Parallel()

	r := NewRegistry("arena_of_kings")
	require.NoError(t, r.AddDefinition("units", unitsDefinition(1)))
	require.NoError(t, r.AddDefinition("units", unitsDefinition(2)))

	def, err := r.Definition("units", 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), def.Version)

	// Version 3 is not guessed from 1 or 2.
	_, err = r.Definition("units", 3)
	require.ErrorIs(t, err, ErrNoDefinition)

	_, err = r.Definition("buildings", 1)
	require.ErrorIs(t, err, ErrNoDefinition)
}

func TestAddDefinitionRejectsDuplicateVersion(t *testing.T) {
	t.Parallel()

	r := NewRegistry("arena_of_kings")
	require.NoError(t, r.AddDefinition("units", unitsDefinition(1)))
	require.Error(t, r.AddDefinition("units", unitsDefinition(1)))
}

func TestVersionsAscending(t *testing.T) {
	t.Parallel()

	r := NewRegistry("arena_of_kings")
	require.NoError(t, r.AddDefinition("units", unitsDefinition(4)))
	require.NoError(t, r.AddDefinition("units", unitsDefinition(1)))
	require.NoError(t, r.AddDefinition("units", unitsDefinition(2)))

	assert.Equal(t, []uint32{1, 2, 4}, r.Versions("units"))

	latest, err := r.Latest("units")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), latest.Version)
}

func TestPatchesAreLateBound(t *testing.T) {
	t.Parallel()

	r := NewRegistry("arena_of_kings")
	require.NoError(t, r.AddDefinition("units", unitsDefinition(1)))
	def, err := r.Definition("units", 1)
	require.NoError(t, err)

	_, ok := r.PatchValue("units", "health", "default")
	assert.False(t, ok)

	r.SetPatch("units", "health", "default", "100")

	// The previously obtained definition is untouched; the override is
	// only visible through the patch lookup.
	assert.Empty(t, def.Fields[1].Default)
	v, ok := r.PatchValue("units", "health", "default")
	require.True(t, ok)
	assert.Equal(t, "100", v)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	r := NewRegistry("arena_of_kings")
	def := unitsDefinition(1)
	def.Fields[1].EnumValues = map[int64]string{0: "infantry", 1: "cavalry"}
	def.Fields = append(def.Fields, Field{
		Name: "abilities",
		Type: FTSequenceU32,
		Fields: []Field{
			{Name: "ability", Type: FTStringU8},
			{Name: "level", Type: FTI32},
		},
	})
	require.NoError(t, r.AddDefinition("units", def))
	r.SetPatch("units", "speed", "description", "movement speed in m/s")

	path := filepath.Join(t.TempDir(), "schema_arena_of_kings.json")
	require.NoError(t, r.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "arena_of_kings", loaded.Game())

	got, err := loaded.Definition("units", 1)
	require.NoError(t, err)
	assert.Equal(t, def.Fields, got.Fields)

	v, ok := loaded.PatchValue("units", "speed", "description")
	require.True(t, ok)
	assert.Equal(t, "movement speed in m/s", v)

	d1, err := r.Digest()
	require.NoError(t, err)
	d2, err := loaded.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestLoadRejectsNewerFormat(t *testing.T) {
	t.Parallel()

	r := NewRegistry("arena_of_kings")
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, r.Save(path))

	// Rewrite the format version to something from the future.
	raw := `{"format_version": 99, "game": "arena_of_kings", "definitions": {}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrFormatVersion)
}

func TestDigestChangesWithContent(t *testing.T) {
	t.Parallel()

	r := NewRegistry("arena_of_kings")
	require.NoError(t, r.AddDefinition("units", unitsDefinition(1)))
	d1, err := r.Digest()
	require.NoError(t, err)

	require.NoError(t, r.AddDefinition("units", unitsDefinition(2)))
	d2, err := r.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

func TestUpdateFromAssKit(t *testing.T) {
	t.Parallel()

	r := NewRegistry("arena_of_kings")
	require.NoError(t, r.AddDefinition("units", unitsDefinition(1)))
	require.NoError(t, r.AddDefinition("units", unitsDefinition(2)))

	incoming := NewRegistry("arena_of_kings")
	// Version 1 changes shape, version 2 is identical, version 3 is new.
	changed := unitsDefinition(1)
	changed.Fields = append(changed.Fields, Field{Name: "armor", Type: FTI32})
	require.NoError(t, incoming.AddDefinition("units", changed))
	require.NoError(t, incoming.AddDefinition("units", unitsDefinition(2)))
	require.NoError(t, incoming.AddDefinition("units", unitsDefinition(3)))
	incoming.SetPatch("units", "health", "default", "50")

	inUse := map[string][]uint32{"units": {1}}
	report := r.UpdateFromAssKit(incoming, inUse)

	assert.Equal(t, 1, report.Added)
	assert.Zero(t, report.Replaced)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, Conflict{Table: "units", Version: 1}, report.Conflicts[0])

	// The in-use definition kept its original shape.
	def, err := r.Definition("units", 1)
	require.NoError(t, err)
	assert.Len(t, def.Fields, 4)

	// Not in use: the same update now replaces it.
	report = r.UpdateFromAssKit(incoming, nil)
	assert.Equal(t, 1, report.Replaced)
	def, err = r.Definition("units", 1)
	require.NoError(t, err)
	assert.Len(t, def.Fields, 5)

	v, ok := r.PatchValue("units", "health", "default")
	require.True(t, ok)
	assert.Equal(t, "50", v)
}
