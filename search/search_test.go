package search_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakrook/pack"
	"github.com/oakrook/pack/schema"
	"github.com/oakrook/pack/search"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry("arena_of_kings")
	require.NoError(t, reg.AddDefinition("units_tables", &schema.Definition{
		Version: 2,
		Fields: []schema.Field{
			{Name: "key", Type: schema.FTStringU8, IsKey: true},
			{Name: "display_name", Type: schema.FTStringU16},
		},
	}))
	return reg
}

func unitsEntry(t *testing.T, reg *schema.Registry, pairs ...string) *pack.RFile {
	t.Helper()
	def, err := reg.Definition("units_tables", 2)
	require.NoError(t, err)
	db := &pack.DB{Table: "units_tables", Definition: def}
	for i := 0; i < len(pairs); i += 2 {
		db.Rows = append(db.Rows, pack.Row{
			{Type: schema.FTStringU8, Str: pairs[i]},
			{Type: schema.FTStringU16, Str: pairs[i+1]},
		})
	}
	data, err := db.Encode()
	require.NoError(t, err)
	return pack.NewRFile("db/units_tables/data__", data)
}

func localLayer(t *testing.T, entries ...*pack.RFile) search.Layer {
	t.Helper()
	p := pack.New()
	for _, f := range entries {
		require.NoError(t, p.Insert(f))
	}
	return search.Layer{Source: search.SourceLocal, Pack: p, Writable: true}
}

func TestPatternSearchCaseInsensitive(t *testing.T) {
	t.Parallel()

	layer := localLayer(t, pack.NewRFile("script/a.lua", []byte("FooBar foo")))
	q := &search.GlobalSearch{Pattern: "foo"}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)
	require.Len(t, results, 1)

	matches := results[0].Text
	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].Column)
	assert.Equal(t, 3, matches[0].Len)
	assert.Equal(t, 7, matches[1].Column)
	assert.Equal(t, 3, matches[1].Len)
}

func TestPatternSearchCaseSensitive(t *testing.T) {
	t.Parallel()

	layer := localLayer(t, pack.NewRFile("script/a.lua", []byte("FooBar foo")))
	q := &search.GlobalSearch{Pattern: "foo", CaseSensitive: true}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Text, 1)
	assert.Equal(t, 7, results[0].Text[0].Column)
}

func TestPatternSearchNoOverlap(t *testing.T) {
	t.Parallel()

	layer := localLayer(t, pack.NewRFile("script/a.lua", []byte("aaaa")))
	q := &search.GlobalSearch{Pattern: "aa"}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The cursor advances past each match: two hits, not three.
	matches := results[0].Text
	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].Column)
	assert.Equal(t, 2, matches[1].Column)
}

// Case folding can change a rune's byte width (the Kelvin sign folds to a
// one-byte "k"); recorded spans must index the original line so replacement
// splices cleanly.
func TestPatternSearchFoldedWidth(t *testing.T) {
	t.Parallel()

	layer := localLayer(t, pack.NewRFile("script/a.lua", []byte("xKy")))
	q := &search.GlobalSearch{Pattern: "k"}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)
	require.Len(t, results, 1)

	matches := results[0].Text
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].Column)
	assert.Equal(t, len("K"), matches[0].Len)

	changed, err := q.ReplaceAll(&results[0], "q")
	require.NoError(t, err)
	assert.True(t, changed)

	f, _ := layer.Pack.File("script/a.lua")
	data, err := f.Encode(pack.EncodeOpts{})
	require.NoError(t, err)
	assert.Equal(t, "xqy", string(data))
}

// The vanilla and assembly-kit layers hold decoded rows without container
// entries; SearchRows covers them and their matches refuse replacement.
func TestSearchRowsReadOnly(t *testing.T) {
	t.Parallel()

	sets := []search.RowSet{{
		Path: "db/units_tables",
		Rows: []pack.Row{{
			{Type: schema.FTStringU8, Str: "spearman"},
			{Type: schema.FTStringU16, Str: "Imperial Spearman"},
		}},
	}}
	q := &search.GlobalSearch{Pattern: "spearman"}
	results, err := q.SearchRows(search.SourceVanilla, sets)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, search.SourceVanilla, results[0].Source)
	assert.False(t, results[0].Writable)
	assert.Len(t, results[0].Table, 2)

	_, err = q.ReplaceAll(&results[0], "pikeman")
	assert.ErrorIs(t, err, search.ErrReadOnlySource)
}

func TestRegexSearch(t *testing.T) {
	t.Parallel()

	layer := localLayer(t, pack.NewRFile("script/a.lua", []byte("unit_01 unit_42\nnothing")))
	q := &search.GlobalSearch{Pattern: `unit_\d+`, Mode: search.ModeRegex}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)
	require.Len(t, results, 1)

	matches := results[0].Text
	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].Row)
	assert.Equal(t, 8, matches[1].Column)
	assert.Equal(t, 7, matches[1].Len)
}

func TestRegexSearchBadPattern(t *testing.T) {
	t.Parallel()

	q := &search.GlobalSearch{Pattern: `(`, Mode: search.ModeRegex}
	_, err := q.Search(nil)
	assert.Error(t, err)
}

func TestTableSearch(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	layer := localLayer(t, unitsEntry(t, reg, "spearman", "Imperial Spearman", "archer", "Archer"))
	q := &search.GlobalSearch{Pattern: "spearman", Schema: reg}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)
	require.Len(t, results, 1)

	matches := results[0].Table
	require.Len(t, matches, 2)
	assert.Equal(t, search.TableMatch{Row: 0, Column: 0, Value: "spearman"}, matches[0])
	assert.Equal(t, search.TableMatch{Row: 0, Column: 1, Value: "Imperial Spearman"}, matches[1])
}

func TestReplaceHighColumnFirst(t *testing.T) {
	t.Parallel()

	layer := localLayer(t, pack.NewRFile("script/a.lua", []byte("fooBar foo")))
	q := &search.GlobalSearch{Pattern: "foo"}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)
	require.Len(t, results, 1)

	changed, err := q.ReplaceAll(&results[0], "X")
	require.NoError(t, err)
	assert.True(t, changed)

	f, _ := layer.Pack.File("script/a.lua")
	data, err := f.Encode(pack.EncodeOpts{})
	require.NoError(t, err)
	assert.Equal(t, "XBar X", string(data))
}

// Applying the same matches low-column-first corrupts the later offset.
// This pins down why ReplaceAll orders within a line from the highest
// column down.
func TestReplaceLowColumnFirstCorrupts(t *testing.T) {
	t.Parallel()

	line := "fooBar foo"
	spans := [][2]int{{0, 3}, {7, 10}}
	for _, s := range spans {
		if s[1] <= len(line) {
			line = line[:s[0]] + "X" + line[s[1]:]
		}
	}
	assert.NotEqual(t, "XBar X", line)
	assert.Equal(t, "XBar foX", line)
}

func TestReplaceOne(t *testing.T) {
	t.Parallel()

	layer := localLayer(t, pack.NewRFile("script/a.lua", []byte("foo foo")))
	q := &search.GlobalSearch{Pattern: "foo"}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)

	changed, err := q.ReplaceOne(&results[0], "bar")
	require.NoError(t, err)
	assert.True(t, changed)

	f, _ := layer.Pack.File("script/a.lua")
	data, err := f.Encode(pack.EncodeOpts{})
	require.NoError(t, err)
	assert.Equal(t, "bar foo", string(data))
}

func TestReplaceNoChangeReportsFalse(t *testing.T) {
	t.Parallel()

	layer := localLayer(t, pack.NewRFile("script/a.lua", []byte("foo")))
	q := &search.GlobalSearch{Pattern: "foo"}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)

	changed, err := q.ReplaceAll(&results[0], "foo")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReplaceRefusesReadOnly(t *testing.T) {
	t.Parallel()

	p := pack.New()
	require.NoError(t, p.Insert(pack.NewRFile("script/a.lua", []byte("foo"))))
	layer := search.Layer{Source: search.SourceVanilla, Pack: p, Writable: false}

	q := &search.GlobalSearch{Pattern: "foo"}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)

	_, err = q.ReplaceAll(&results[0], "bar")
	assert.ErrorIs(t, err, search.ErrReadOnlySource)
}

func TestReplaceInTable(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	layer := localLayer(t, unitsEntry(t, reg, "spearman", "Imperial Spearman"))
	q := &search.GlobalSearch{Pattern: "Spearman", CaseSensitive: true, Schema: reg}
	results, err := q.Search([]search.Layer{layer})
	require.NoError(t, err)
	require.Len(t, results, 1)

	changed, err := q.ReplaceAll(&results[0], "Pikeman")
	require.NoError(t, err)
	assert.True(t, changed)

	f, _ := layer.Pack.File("db/units_tables/data__")
	d, err := f.Decode(pack.DecodeOpts{Schema: reg})
	require.NoError(t, err)
	assert.Equal(t, "Imperial Pikeman", d.(*pack.DB).Rows[0][1].Str)
}
