package session_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakrook/pack"
	"github.com/oakrook/pack/deps"
	"github.com/oakrook/pack/games"
	"github.com/oakrook/pack/schema"
	"github.com/oakrook/pack/search"
	"github.com/oakrook/pack/session"
)

const testTable = "units_tables"

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry("arena_of_kings")
	require.NoError(t, reg.AddDefinition(testTable, &schema.Definition{
		Version: 2,
		Fields: []schema.Field{
			{Name: "key", Type: schema.FTStringU8, IsKey: true},
			{Name: "display_name", Type: schema.FTStringU16},
			{Name: "health", Type: schema.FTI32},
		},
	}))
	return reg
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	game, err := games.Get("arena_of_kings")
	require.NoError(t, err)
	s := session.New(game, testRegistry(t), nil)
	t.Cleanup(s.Close)
	require.NoError(t, s.NewPack())
	return s
}

func unitsPayload(t *testing.T, reg *schema.Registry, rows ...pack.Row) []byte {
	t.Helper()
	def, err := reg.Definition(testTable, 2)
	require.NoError(t, err)
	db := &pack.DB{Table: testTable, Definition: def, Rows: rows}
	data, err := db.Encode()
	require.NoError(t, err)
	return data
}

func unitsRow(key string, health int32) pack.Row {
	return pack.Row{
		{Type: schema.FTStringU8, Str: key},
		{Type: schema.FTStringU16, Str: key},
		{Type: schema.FTI32, Int: int64(health)},
	}
}

func TestEntryLifecycle(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	require.NoError(t, s.Insert("script/init.lua", []byte("return {}\n")))

	paths, err := s.Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{"script/init.lua"}, paths)

	info, err := s.Info("script/init.lua")
	require.NoError(t, err)
	assert.Equal(t, pack.TypeText, info.Type)

	data, err := s.Data("script/init.lua")
	require.NoError(t, err)
	assert.Equal(t, []byte("return {}\n"), data)

	require.NoError(t, s.Move("script/init.lua", "script/main.lua"))
	_, err = s.Info("script/init.lua")
	assert.ErrorIs(t, err, pack.ErrNotFound)

	require.NoError(t, s.Delete("script/main.lua"))
	paths, err = s.Paths()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSaveAndReopen(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	require.NoError(t, s.Insert("script/init.lua", []byte("x")))

	dest := filepath.Join(t.TempDir(), "mod.pack")
	require.NoError(t, s.SaveAs(context.Background(), dest))

	require.NoError(t, s.Open(dest, false))
	data, err := s.Data("script/init.lua")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

// Concurrent callers funnel through the request loop one at a time, so every
// mutation lands.
func TestSerializedMutations(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Insert(fmt.Sprintf("script/gen_%03d.lua", i), []byte("x")))
		}(i)
	}
	wg.Wait()

	paths, err := s.Paths()
	require.NoError(t, err)
	assert.Len(t, paths, n)
}

func TestClosedSession(t *testing.T) {
	t.Parallel()

	game, err := games.Get("arena_of_kings")
	require.NoError(t, err)
	s := session.New(game, testRegistry(t), nil)
	s.Close()
	s.Close() // idempotent

	assert.ErrorIs(t, s.NewPack(), session.ErrClosed)
	_, err = s.Paths()
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestNoPack(t *testing.T) {
	t.Parallel()

	game, err := games.Get("arena_of_kings")
	require.NoError(t, err)
	s := session.New(game, testRegistry(t), nil)
	t.Cleanup(s.Close)

	_, err = s.Paths()
	assert.ErrorIs(t, err, session.ErrNoPack)
}

func TestSearchAndReplace(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	require.NoError(t, s.Insert("script/a.lua", []byte("fooBar foo")))

	q := &search.GlobalSearch{Pattern: "foo"}
	results, err := s.Search(q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, search.SourceLocal, results[0].Source)

	changed, err := s.ReplaceAll(q, &results[0], "X")
	require.NoError(t, err)
	assert.True(t, changed)

	d, err := s.Decode("script/a.lua")
	require.NoError(t, err)
	assert.Equal(t, "XBar X", d.(*pack.Text).Contents)
}

// Search reaches the resolver's cached vanilla tables as a read-only layer.
func TestSearchIncludesVanillaLayer(t *testing.T) {
	t.Parallel()

	game, err := games.Get("arena_of_kings")
	require.NoError(t, err)
	reg := testRegistry(t)

	dataDir := t.TempDir()
	vp := pack.New()
	require.NoError(t, vp.Insert(pack.NewRFile("db/units_tables/data__",
		unitsPayload(t, reg, unitsRow("spearman", 100)))))
	require.NoError(t, vp.SaveAs(context.Background(), filepath.Join(dataDir, "data.pack")))

	r := deps.NewResolver(game, dataDir, filepath.Join(t.TempDir(), "arena_of_kings.cache"))
	s := session.New(game, reg, r)
	t.Cleanup(s.Close)
	require.NoError(t, s.NewPack())
	require.NoError(t, s.RebuildDependencies(context.Background()))

	q := &search.GlobalSearch{Pattern: "spearman"}
	results, err := s.Search(q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, search.SourceVanilla, results[0].Source)
	assert.False(t, results[0].Writable)
	require.NotEmpty(t, results[0].Table)

	_, err = s.ReplaceAll(q, &results[0], "pikeman")
	assert.ErrorIs(t, err, search.ErrReadOnlySource)
}

func TestMergeTablesThroughSession(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	reg := testRegistry(t)
	require.NoError(t, s.Insert("db/units_tables/a__", unitsPayload(t, reg, unitsRow("spearman", 100))))
	require.NoError(t, s.Insert("db/units_tables/b__", unitsPayload(t, reg, unitsRow("archer", 80))))

	require.NoError(t, s.MergeTables(
		[]string{"db/units_tables/a__", "db/units_tables/b__"},
		"db/units_tables/merged__", true))

	paths, err := s.Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{"db/units_tables/merged__"}, paths)

	d, err := s.Decode("db/units_tables/merged__")
	require.NoError(t, err)
	assert.Len(t, d.(*pack.DB).Rows, 2)
}

func TestTSVThroughSession(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	reg := testRegistry(t)
	require.NoError(t, s.Insert("db/units_tables/a__", unitsPayload(t, reg, unitsRow("spearman", 100))))

	var buf bytes.Buffer
	require.NoError(t, s.ExportTSV("db/units_tables/a__", &buf))

	require.NoError(t, s.ImportTSV(&buf, "db/units_tables/copy__"))
	d, err := s.Decode("db/units_tables/copy__")
	require.NoError(t, err)
	db := d.(*pack.DB)
	require.Len(t, db.Rows, 1)
	assert.Equal(t, "spearman", db.Rows[0][0].Str)
}

func TestUpdateSchema(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	reg := testRegistry(t)
	require.NoError(t, s.Insert("db/units_tables/a__", unitsPayload(t, reg, unitsRow("spearman", 100))))

	// Edit the table so the session holds a decoded variant.
	d, err := s.Decode("db/units_tables/a__")
	require.NoError(t, err)
	d.(*pack.DB).Rows[0][2].Int = 120

	incoming := schema.NewRegistry("arena_of_kings")
	// Structurally different v2: in use, must be reported, not applied.
	require.NoError(t, incoming.AddDefinition(testTable, &schema.Definition{
		Version: 2,
		Fields:  []schema.Field{{Name: "key", Type: schema.FTStringU8, IsKey: true}},
	}))
	// Unknown v3: plain addition.
	require.NoError(t, incoming.AddDefinition(testTable, &schema.Definition{
		Version: 3,
		Fields:  []schema.Field{{Name: "key", Type: schema.FTStringU8, IsKey: true}},
	}))

	report, err := s.UpdateSchema(incoming)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, []schema.Conflict{{Table: testTable, Version: 2}}, report.Conflicts)

	// The decoded edit was frozen to raw bytes before the swap.
	info, err := s.Info("db/units_tables/a__")
	require.NoError(t, err)
	assert.False(t, info.IsDecoded)

	// The kept v2 definition still decodes the entry, edit included.
	d, err = s.Decode("db/units_tables/a__")
	require.NoError(t, err)
	assert.Equal(t, int64(120), d.(*pack.DB).Rows[0][2].Int)

	active, err := s.Schema()
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 3}, active.Versions(testTable))
}
