// Package deps resolves table data across the dependency layers of a mod
// container: the container itself, its declared parents, the game's vanilla
// packs and the assembly-kit exports. Vanilla data is served from a local
// sqlite cache so editors do not re-read gigabytes of stock containers on
// every start; the cache is tied to one game and one schema snapshot and is
// rebuilt when either changes.
package deps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/oakrook/pack"
	"github.com/oakrook/pack/games"
	"github.com/oakrook/pack/schema"
)

var (
	// ErrGamePathUnset is returned when an operation needs the game's data
	// directory and none was configured.
	ErrGamePathUnset = errors.New("deps: game data directory not configured")

	// ErrCacheMissing is returned when the vanilla cache has never been
	// built for this game.
	ErrCacheMissing = errors.New("deps: dependency cache not built")

	// ErrCacheOutOfDate is returned when the on-disk cache was built for a
	// different game, schema or cache layout.
	ErrCacheOutOfDate = errors.New("deps: dependency cache out of date")
)

// Source identifies the dependency layer that supplied a resolved value.
type Source int

const (
	SourceLocal Source = iota
	SourceParent
	SourceVanilla
	SourceAssKit
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceParent:
		return "parent"
	case SourceVanilla:
		return "vanilla"
	default:
		return "asskit"
	}
}

// Resolver owns the loaded dependency layers for one game. Reads are safe
// for concurrent use; loading, rebuilding and layer swaps take the write
// lock.
type Resolver struct {
	game      *games.Game
	dataDir   string
	cachePath string
	logger    *slog.Logger

	mu      sync.RWMutex
	schema  *schema.Registry
	local   *pack.Pack
	parents []*pack.Pack

	vanillaDB   map[string][]*pack.DB // folded table name, cache path order
	vanillaLoc  []vanillaLocEntry
	vanillaHash map[string]string // folded entry path to content hash
	asskit      map[string]*pack.DB

	loaded bool
}

// vanillaLocEntry keeps the cached container path next to its decoded rows.
type vanillaLocEntry struct {
	path string
	loc  *pack.Loc
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger attaches a logger for cache and decode diagnostics.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a resolver for one game. dataDir is the game install's
// container directory and may be empty until the user configures it;
// cachePath is where the vanilla sqlite cache lives.
func NewResolver(game *games.Game, dataDir, cachePath string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		game:      game,
		dataDir:   dataDir,
		cachePath: cachePath,
		asskit:    make(map[string]*pack.DB),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Loaded reports whether the vanilla layer is in memory.
func (r *Resolver) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// SetLocal attaches the container being edited as the highest-priority
// layer.
func (r *Resolver) SetLocal(p *pack.Pack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = p
}

// SetParents replaces the parent layers, in declaration order.
func (r *Resolver) SetParents(parents []*pack.Pack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parents = make([]*pack.Pack, len(parents))
	copy(r.parents, parents)
}

// Load reads the vanilla cache into memory, decoding every cached payload
// against reg. The cache must have been built for this game and for reg's
// exact digest; otherwise ErrCacheMissing or ErrCacheOutOfDate tells the
// caller a Rebuild is needed.
func (r *Resolver) Load(ctx context.Context, reg *schema.Registry) error {
	dig, err := reg.Digest()
	if err != nil {
		return fmt.Errorf("deps: schema digest: %w", err)
	}
	raw, err := readCache(ctx, r.cachePath, r.game.Key, dig)
	if err != nil {
		return err
	}
	return r.install(raw, reg)
}

func (r *Resolver) install(raw *rawCache, reg *schema.Registry) error {
	vanillaDB := make(map[string][]*pack.DB)
	for _, e := range raw.dbEntries {
		db, err := pack.DecodeDB(e.table, e.payload, reg)
		if err != nil {
			// Stock data can stamp versions the schema never learned.
			// Those tables are simply absent from the layer.
			r.log().Warn("vanilla table not decodable", "path", e.path, "error", err)
			continue
		}
		key := strings.ToLower(e.table)
		vanillaDB[key] = append(vanillaDB[key], db)
	}
	var vanillaLoc []vanillaLocEntry
	for _, e := range raw.locEntries {
		loc, err := pack.DecodeLoc(e.payload)
		if err != nil {
			r.log().Warn("vanilla loc not decodable", "path", e.path, "error", err)
			continue
		}
		vanillaLoc = append(vanillaLoc, vanillaLocEntry{path: e.path, loc: loc})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schema = reg
	r.vanillaDB = vanillaDB
	r.vanillaLoc = vanillaLoc
	r.vanillaHash = raw.hashes
	r.loaded = true
	return nil
}

// ImportAssKit loads assembly-kit TSV exports from dir as the lowest
// dependency layer. Files that fail to import are skipped and logged;
// assembly-kit dumps routinely carry tables the schema does not cover.
func (r *Resolver) ImportAssKit(dir string, reg *schema.Registry) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("deps: read asskit dir: %w", err)
	}
	imported := make(map[string]*pack.DB)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tsv") {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		f, err := os.Open(full)
		if err != nil {
			return fmt.Errorf("deps: open asskit file: %w", err)
		}
		d, err := pack.ImportTSV(f, reg)
		f.Close()
		if err != nil {
			r.log().Warn("asskit table skipped", "file", entry.Name(), "error", err)
			continue
		}
		db, ok := d.(*pack.DB)
		if !ok {
			r.log().Warn("asskit file is not a db table", "file", entry.Name())
			continue
		}
		imported[strings.ToLower(db.Table)] = db
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, db := range imported {
		r.asskit[name] = db
	}
	return nil
}

// Match is one resolved table row and the layer it came from.
type Match struct {
	Row    pack.Row
	Source Source
}

// Lookup resolves a table row by its key column values, walking the layers
// in priority order: the edited container first, then parents in declaration
// order, then vanilla, then the assembly kit. The first hit wins; the
// returned row is a copy.
func (r *Resolver) Lookup(table string, key []string) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table = strings.ToLower(table)
	if row, ok := lookupPack(r.local, table, key, r.schema); ok {
		return Match{Row: row.Clone(), Source: SourceLocal}, true
	}
	for _, parent := range r.parents {
		if row, ok := lookupPack(parent, table, key, r.schema); ok {
			return Match{Row: row.Clone(), Source: SourceParent}, true
		}
	}
	for _, db := range r.vanillaDB[table] {
		if row, ok := lookupRows(db, key); ok {
			return Match{Row: row.Clone(), Source: SourceVanilla}, true
		}
	}
	if db, ok := r.asskit[table]; ok {
		if row, ok := lookupRows(db, key); ok {
			return Match{Row: row.Clone(), Source: SourceAssKit}, true
		}
	}
	return Match{}, false
}

// ReferenceValues collects every value of the referenced column across all
// layers, sorted and deduplicated. Editors use it to offer completions for
// reference fields.
func (r *Resolver) ReferenceValues(ref schema.Reference) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	collect := func(db *pack.DB) {
		idx := db.Definition.FieldIndex(ref.Column)
		if idx < 0 {
			return
		}
		for _, row := range db.Rows {
			seen[row[idx].String()] = true
		}
	}

	table := strings.ToLower(ref.Table)
	for _, p := range append([]*pack.Pack{r.local}, r.parents...) {
		for _, db := range packTables(p, table, r.schema) {
			collect(db)
		}
	}
	for _, db := range r.vanillaDB[table] {
		collect(db)
	}
	if db, ok := r.asskit[table]; ok {
		collect(db)
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// TableRows is one decoded table served straight from a cache layer; no
// container entry backs it.
type TableRows struct {
	Source Source
	Name   string
	Rows   []pack.Row
}

// CachedTables snapshots the decoded vanilla and assembly-kit layers for
// read-only consumers such as global search. The rows are the live layer
// data and must not be modified.
func (r *Resolver) CachedTables() []TableRows {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []TableRows
	names := make([]string, 0, len(r.vanillaDB))
	for name := range r.vanillaDB {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, db := range r.vanillaDB[name] {
			out = append(out, TableRows{Source: SourceVanilla, Name: "db/" + name, Rows: db.Rows})
		}
	}
	for _, e := range r.vanillaLoc {
		out = append(out, TableRows{Source: SourceVanilla, Name: e.path, Rows: e.loc.Rows})
	}

	names = names[:0]
	for name := range r.asskit {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, TableRows{Source: SourceAssKit, Name: "asskit/" + name, Rows: r.asskit[name].Rows})
	}
	return out
}

// packTables decodes every entry of one table inside a container. Entries
// that fail to decode are skipped; resolution is best effort over whatever
// the schema covers.
func packTables(p *pack.Pack, table string, reg *schema.Registry) []*pack.DB {
	if p == nil {
		return nil
	}
	var out []*pack.DB
	for _, f := range p.FilesWithPrefix("db/" + table + "/") {
		d, err := f.Decode(pack.DecodeOpts{Schema: reg})
		if err != nil {
			continue
		}
		if db, ok := d.(*pack.DB); ok {
			out = append(out, db)
		}
	}
	return out
}

func lookupPack(p *pack.Pack, table string, key []string, reg *schema.Registry) (pack.Row, bool) {
	for _, db := range packTables(p, table, reg) {
		if row, ok := lookupRows(db, key); ok {
			return row, true
		}
	}
	return nil, false
}

func lookupRows(db *pack.DB, key []string) (pack.Row, bool) {
	keyFields := db.Definition.KeyFields()
	if len(keyFields) != len(key) {
		return nil, false
	}
	for _, row := range db.Rows {
		match := true
		for i, fi := range keyFields {
			if row[fi].String() != key[i] {
				match = false
				break
			}
		}
		if match {
			return row, true
		}
	}
	return nil, false
}

// CachePath returns the vanilla cache location.
func (r *Resolver) CachePath() string { return r.cachePath }

// SetDataDir configures the game install's container directory.
func (r *Resolver) SetDataDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dataDir = dir
}
