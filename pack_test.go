package pack

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakrook/pack/internal/binio"
	"github.com/oakrook/pack/schema"
)

const testTable = "units_tables"

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry("arena_of_kings_2")
	def := &schema.Definition{
		Version: 2,
		Fields: []schema.Field{
			{Name: "key", Type: schema.FTStringU8, IsKey: true},
			{Name: "display_name", Type: schema.FTStringU16},
			{Name: "health", Type: schema.FTI32},
			{Name: "speed", Type: schema.FTF32},
			{Name: "morale", Type: schema.FTOptionalI32},
			{Name: "flying", Type: schema.FTBoolean},
		},
	}
	require.NoError(t, reg.AddDefinition(testTable, def))
	return reg
}

func unitsRow(key, name string, health int32, speed float32, morale *int32, flying bool) Row {
	row := Row{
		{Type: schema.FTStringU8, Str: key},
		{Type: schema.FTStringU16, Str: name},
		{Type: schema.FTI32, Int: int64(health)},
		{Type: schema.FTF32, Float: float64(speed)},
		{Type: schema.FTOptionalI32},
		{Type: schema.FTBoolean, Bool: flying},
	}
	if morale != nil {
		row[4].Present = true
		row[4].Int = int64(*morale)
	}
	return row
}

func unitsPayload(t *testing.T, reg *schema.Registry, rows ...Row) []byte {
	t.Helper()
	def, err := reg.Definition(testTable, 2)
	require.NoError(t, err)
	db := &DB{Table: testTable, Definition: def, Rows: rows}
	data, err := db.Encode()
	require.NoError(t, err)
	return data
}

func locPayload(t *testing.T, pairs ...string) []byte {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	l := &Loc{Version: locVersion}
	for i := 0; i < len(pairs); i += 2 {
		l.Rows = append(l.Rows, Row{
			{Type: schema.FTStringU16, Str: pairs[i]},
			{Type: schema.FTStringU16, Str: pairs[i+1]},
			{Type: schema.FTBoolean},
		})
	}
	data, err := l.Encode()
	require.NoError(t, err)
	return data
}

func buildTestPack(t *testing.T, reg *schema.Registry) *Pack {
	t.Helper()
	p := New(WithKind(KindMod), WithGameVersion(42))
	morale := int32(7)
	require.NoError(t, p.Insert(NewRFile(
		"db/units_tables/data__",
		unitsPayload(t, reg,
			unitsRow("spearman", "Spearman", 100, 1.5, &morale, false),
			unitsRow("wyvern", "Wyvern", 450, 3.25, nil, true),
		),
	)))
	require.NoError(t, p.Insert(NewRFile("text/my_mod.loc", locPayload(t, "unit_spearman", "Spearman"))))
	require.NoError(t, p.Insert(NewRFile("script/init.lua", []byte("print('hello')\n"))))
	require.NoError(t, p.Insert(NewRFile("variants/orcs.unit_variant", mustEncode(t, &UnitVariant{
		Version:    2,
		Categories: []UVCategory{{Name: "orc", ID: 3, Variants: []UVVariant{{Mesh: "orc_a.mesh", Texture: "orc_a.dds"}}}},
	}))))
	return p
}

func mustEncode(t *testing.T, d Decoded) []byte {
	t.Helper()
	data, err := encodeDecoded(d)
	require.NoError(t, err)
	return data
}

func TestSaveAndReadRoundTrip(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	p := buildTestPack(t, reg)
	p.SetParents([]string{"base.pack", "shared.pack"})
	p.SetNotes("first release")
	p.SetSettings(Settings{PreferredLocale: "en", Custom: map[string]string{"theme": "dark"}})
	p.SetIndexTimestamps(true)
	f, ok := p.File("script/init.lua")
	require.True(t, ok)
	f.SetTimestamp(1700000000)

	dest := filepath.Join(t.TempDir(), "my_mod.pack")
	require.NoError(t, p.SaveAs(context.Background(), dest, WithSchema(reg)))
	assert.Equal(t, dest, p.DiskPath())

	got, err := Read(dest, false)
	require.NoError(t, err)
	defer got.Close()

	assert.Equal(t, KindMod, got.Header().Kind)
	assert.Equal(t, uint32(DefaultFormatVersion), got.Header().Version)
	assert.Equal(t, uint32(42), got.Header().GameVersion)
	assert.Equal(t, []string{"base.pack", "shared.pack"}, got.Parents())
	assert.Equal(t, "first release", got.Notes())
	assert.Equal(t, "en", got.Settings().PreferredLocale)
	assert.Equal(t, "dark", got.Settings().Custom["theme"])

	// Reserved metadata entries never surface in the listing.
	assert.Equal(t, p.Len(), got.Len())
	for _, path := range p.Paths() {
		want, _ := p.File(path)
		entry, ok := got.File(path)
		require.True(t, ok, path)
		wantData, err := want.Data()
		require.NoError(t, err)
		gotData, err := entry.Data()
		require.NoError(t, err)
		assert.Equal(t, wantData, gotData, path)
	}

	lua, ok := got.File("script/init.lua")
	require.True(t, ok)
	assert.Equal(t, uint32(1700000000), lua.Info().Timestamp)
}

func TestCompressedRoundTrip(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	p := buildTestPack(t, reg)
	p.SetCompressed(true)
	require.NoError(t, p.Insert(NewRFile("ui/portraits/orc.dds", []byte{0x44, 0x44, 0x53, 0x20, 1, 2, 3})))

	dest := filepath.Join(t.TempDir(), "compressed.pack")
	require.NoError(t, p.SaveAs(context.Background(), dest, WithSchema(reg)))

	got, err := Read(dest, false)
	require.NoError(t, err)
	defer got.Close()

	require.True(t, got.Compressed())
	for _, path := range p.Paths() {
		want, _ := p.File(path)
		entry, ok := got.File(path)
		require.True(t, ok, path)
		wantData, err := want.Data()
		require.NoError(t, err)
		gotData, err := entry.Data()
		require.NoError(t, err)
		assert.Equal(t, wantData, gotData, path)
	}
}

func TestLazyRead(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	p := buildTestPack(t, reg)
	dest := filepath.Join(t.TempDir(), "lazy.pack")
	require.NoError(t, p.SaveAs(context.Background(), dest, WithSchema(reg)))

	got, err := Read(dest, true)
	require.NoError(t, err)
	defer got.Close()

	f, ok := got.File("script/init.lua")
	require.True(t, ok)
	assert.False(t, f.Info().Loaded)

	data, err := f.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("print('hello')\n"), data)
	assert.True(t, f.Info().Loaded)
}

func TestSaveWithoutPath(t *testing.T) {
	t.Parallel()

	err := New().Save(context.Background())
	assert.ErrorIs(t, err, ErrNoSavePath)
}

func TestReservedPathsRejected(t *testing.T) {
	t.Parallel()

	p := New()
	assert.ErrorIs(t, p.Insert(NewRFile(".pack/notes", []byte("x"))), ErrReserved)
	assert.ErrorIs(t, p.Insert(NewRFile(".PACK/settings.toml", nil)), ErrReserved)

	require.NoError(t, p.Insert(NewRFile("script/a.lua", []byte("x"))))
	assert.ErrorIs(t, p.Move("script/a.lua", ".pack/a.lua"), ErrReserved)
}

func TestReadRejectsEncrypted(t *testing.T) {
	t.Parallel()

	for _, flag := range []Flags{FlagIndexEncrypted, FlagDataEncrypted} {
		w := binio.NewWriter()
		w.Raw([]byte("PFK5"))
		w.U32(uint32(KindMod))
		w.U32(uint32(flag))
		w.U32(0) // game version
		w.U32(0) // created at
		w.U32(0) // parent count
		w.U32(0) // parent index size
		w.U32(0) // file count
		w.U32(0) // file index size

		path := filepath.Join(t.TempDir(), "enc.pack")
		require.NoError(t, os.WriteFile(path, w.Bytes(), 0o644))

		_, err := Read(path, false)
		assert.ErrorIs(t, err, ErrEncryptionUnsupported)
	}
}

func TestReadRejectsMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	badMagic := filepath.Join(dir, "magic.pack")
	require.NoError(t, os.WriteFile(badMagic, make([]byte, headerSize), 0o644))
	_, err := Read(badMagic, false)
	assert.ErrorIs(t, err, ErrFormat)

	truncated := filepath.Join(dir, "short.pack")
	require.NoError(t, os.WriteFile(truncated, []byte("PFK5"), 0o644))
	_, err = Read(truncated, false)
	assert.ErrorIs(t, err, ErrFormat)

	// Declared index larger than the file.
	w := binio.NewWriter()
	w.Raw([]byte("PFK4"))
	w.U32(uint32(KindMod))
	w.U32(0)
	w.U32(0)
	w.U32(0)
	w.U32(0)
	w.U32(1 << 20)
	w.U32(0)
	w.U32(0)
	overrun := filepath.Join(dir, "overrun.pack")
	require.NoError(t, os.WriteFile(overrun, w.Bytes(), 0o644))
	_, err = Read(overrun, false)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestEntryOperations(t *testing.T) {
	t.Parallel()

	p := New()
	require.NoError(t, p.Insert(NewRFile(`script\Init.LUA`, []byte("a"))))

	// Paths normalize to forward slashes and match case-insensitively.
	f, ok := p.File("SCRIPT/init.lua")
	require.True(t, ok)
	assert.Equal(t, "script/Init.LUA", f.Path())

	// Case-insensitive collision replaces the stored entry.
	require.NoError(t, p.Insert(NewRFile("script/init.lua", []byte("b"))))
	assert.Equal(t, 1, p.Len())

	require.NoError(t, p.Insert(NewRFile("script/other.lua", []byte("c"))))
	assert.ErrorIs(t, p.Move("script/other.lua", "SCRIPT/INIT.LUA"), ErrExists)
	require.NoError(t, p.Move("script/other.lua", "script/renamed.lua"))
	_, ok = p.File("script/other.lua")
	assert.False(t, ok)

	assert.ErrorIs(t, p.Delete("script/missing.lua"), ErrNotFound)
	require.NoError(t, p.Delete("script/renamed.lua"))
	assert.Equal(t, []string{"script/init.lua"}, p.Paths())
}

func TestCleanAndSaveAs(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	p := buildTestPack(t, reg)
	p.SetIndexTimestamps(true)
	for _, f := range p.Files() {
		f.SetTimestamp(1700000000)
	}

	dest := filepath.Join(t.TempDir(), "clean.pack")
	require.NoError(t, p.CleanAndSaveAs(context.Background(), dest, WithSchema(reg)))

	got, err := Read(dest, false)
	require.NoError(t, err)
	defer got.Close()

	assert.False(t, got.Header().Flags.Has(FlagIndexTimestamps))
	for _, f := range got.Files() {
		assert.Zero(t, f.Info().Timestamp)
	}
}

func TestSaveReencodesDecodedEntries(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	p := buildTestPack(t, reg)

	f, ok := p.File("text/my_mod.loc")
	require.True(t, ok)
	d, err := f.Decode(DecodeOpts{Schema: reg})
	require.NoError(t, err)
	loc := d.(*Loc)
	loc.Rows[0][1].Str = "Pikeman"

	dest := filepath.Join(t.TempDir(), "edited.pack")
	require.NoError(t, p.SaveAs(context.Background(), dest, WithSchema(reg)))

	got, err := Read(dest, false)
	require.NoError(t, err)
	defer got.Close()

	entry, ok := got.File("text/my_mod.loc")
	require.True(t, ok)
	d2, err := entry.Decode(DecodeOpts{})
	require.NoError(t, err)
	assert.Equal(t, "Pikeman", d2.(*Loc).Text(0))
}
