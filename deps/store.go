package deps

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	_ "modernc.org/sqlite"

	"github.com/oakrook/pack/internal/zstdpool"
)

//go:embed schema.sql
var schemaSQL string

// cacheFormatVersion is the on-disk cache layout version. Bump it when the
// sqlite schema changes; older caches are reported as out of date.
const cacheFormatVersion = 1

// cacheEntry is one vanilla payload staged for the cache, or read back from
// it. Payload bytes are the uncompressed entry payload.
type cacheEntry struct {
	path    string
	table   string // db entries only
	version uint32 // db entries only
	payload []byte
	hash    string
}

// rawCache is the cache file's content before schema-aware decoding.
type rawCache struct {
	dbEntries  []cacheEntry
	locEntries []cacheEntry
	hashes     map[string]string
}

// writeCache serializes a snapshot to a fresh sqlite file and atomically
// renames it over path.
func writeCache(ctx context.Context, path, game string, schemaDigest digest.Digest, raw *rawCache) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".depscache-*")
	if err != nil {
		return fmt.Errorf("deps: create cache: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return fmt.Errorf("deps: open cache: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=OFF"); err != nil {
		return fmt.Errorf("deps: configure cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("deps: create cache schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("deps: begin cache tx: %w", err)
	}
	defer tx.Rollback()

	meta := map[string]string{
		"format_version": fmt.Sprint(cacheFormatVersion),
		"game":           game,
		"schema_digest":  schemaDigest.String(),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("deps: write cache meta: %w", err)
		}
	}

	for _, e := range raw.dbEntries {
		frame, err := zstdpool.Compress(e.payload)
		if err != nil {
			return fmt.Errorf("deps: compress %s: %w", e.path, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO db_tables (path, name, version, payload) VALUES (?, ?, ?, ?)",
			e.path, e.table, e.version, frame); err != nil {
			return fmt.Errorf("deps: write cache table %s: %w", e.path, err)
		}
	}
	for _, e := range raw.locEntries {
		frame, err := zstdpool.Compress(e.payload)
		if err != nil {
			return fmt.Errorf("deps: compress %s: %w", e.path, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO loc_tables (path, payload) VALUES (?, ?)", e.path, frame); err != nil {
			return fmt.Errorf("deps: write cache loc %s: %w", e.path, err)
		}
	}
	for p, h := range raw.hashes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO file_hashes (path, hash) VALUES (?, ?)", p, h); err != nil {
			return fmt.Errorf("deps: write cache hash %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("deps: commit cache: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("deps: close cache: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("deps: install cache: %w", err)
	}
	return nil
}

// readCache loads a cache file built for the given game and schema digest.
// A missing file is ErrCacheMissing; a stale game, schema or layout is
// ErrCacheOutOfDate.
func readCache(ctx context.Context, path, game string, schemaDigest digest.Digest) (*rawCache, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCacheMissing, path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("deps: open cache: %w", err)
	}
	defer db.Close()

	meta := make(map[string]string)
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable metadata: %v", ErrCacheOutOfDate, err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("deps: read cache meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deps: read cache meta: %w", err)
	}

	if meta["format_version"] != fmt.Sprint(cacheFormatVersion) {
		return nil, fmt.Errorf("%w: cache layout version %q", ErrCacheOutOfDate, meta["format_version"])
	}
	if meta["game"] != game {
		return nil, fmt.Errorf("%w: cache built for game %q, want %q", ErrCacheOutOfDate, meta["game"], game)
	}
	if meta["schema_digest"] != schemaDigest.String() {
		return nil, fmt.Errorf("%w: schema changed since cache was built", ErrCacheOutOfDate)
	}

	raw := &rawCache{hashes: make(map[string]string)}

	dbRows, err := db.QueryContext(ctx, "SELECT path, name, version, payload FROM db_tables ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("deps: read cache tables: %w", err)
	}
	for dbRows.Next() {
		var e cacheEntry
		var frame []byte
		if err := dbRows.Scan(&e.path, &e.table, &e.version, &frame); err != nil {
			dbRows.Close()
			return nil, fmt.Errorf("deps: read cache tables: %w", err)
		}
		if e.payload, err = zstdpool.Decompress(frame, 0); err != nil {
			dbRows.Close()
			return nil, fmt.Errorf("deps: decompress %s: %w", e.path, err)
		}
		raw.dbEntries = append(raw.dbEntries, e)
	}
	dbRows.Close()
	if err := dbRows.Err(); err != nil {
		return nil, fmt.Errorf("deps: read cache tables: %w", err)
	}

	locRows, err := db.QueryContext(ctx, "SELECT path, payload FROM loc_tables ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("deps: read cache locs: %w", err)
	}
	for locRows.Next() {
		var e cacheEntry
		var frame []byte
		if err := locRows.Scan(&e.path, &frame); err != nil {
			locRows.Close()
			return nil, fmt.Errorf("deps: read cache locs: %w", err)
		}
		if e.payload, err = zstdpool.Decompress(frame, 0); err != nil {
			locRows.Close()
			return nil, fmt.Errorf("deps: decompress %s: %w", e.path, err)
		}
		raw.locEntries = append(raw.locEntries, e)
	}
	locRows.Close()
	if err := locRows.Err(); err != nil {
		return nil, fmt.Errorf("deps: read cache locs: %w", err)
	}

	hashRows, err := db.QueryContext(ctx, "SELECT path, hash FROM file_hashes")
	if err != nil {
		return nil, fmt.Errorf("deps: read cache hashes: %w", err)
	}
	for hashRows.Next() {
		var p, h string
		if err := hashRows.Scan(&p, &h); err != nil {
			hashRows.Close()
			return nil, fmt.Errorf("deps: read cache hashes: %w", err)
		}
		raw.hashes[p] = h
	}
	hashRows.Close()
	if err := hashRows.Err(); err != nil {
		return nil, fmt.Errorf("deps: read cache hashes: %w", err)
	}

	return raw, nil
}
