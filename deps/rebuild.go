package deps

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/oakrook/pack"
	"github.com/oakrook/pack/schema"
)

// Rebuild regenerates the vanilla cache from the game install and loads it.
//
// The stock containers are read lazily and their payloads pulled in
// parallel. The new cache is written to a sibling temp file and renamed into
// place, so a crash mid-rebuild never leaves a truncated cache; a file lock
// keeps concurrent tool instances from rebuilding over each other.
func (r *Resolver) Rebuild(ctx context.Context, reg *schema.Registry) error {
	r.mu.RLock()
	dataDir := r.dataDir
	r.mu.RUnlock()
	if dataDir == "" {
		return ErrGamePathUnset
	}

	lock := flock.New(r.cachePath + ".lock")
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("deps: lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("deps: cache is locked by another process")
	}
	defer lock.Unlock()

	vanilla, err := pack.ReadCA(r.game, dataDir, true)
	if err != nil {
		return err
	}
	defer vanilla.Close()

	files := vanilla.Files()
	staged := make([]cacheEntry, len(files))
	kinds := make([]pack.FileType, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := f.Data()
			if err != nil {
				// An unreadable stock entry loses duplicate detection
				// for that path, nothing more.
				r.log().Warn("vanilla entry skipped", "path", f.Path(), "error", err)
				return nil
			}
			sum := blake3.Sum256(data)
			e := &staged[i]
			e.path = f.Path()
			e.hash = hex.EncodeToString(sum[:])
			kinds[i] = f.Type()
			switch kinds[i] {
			case pack.TypeDB:
				table, ok := pack.TableName(f.Path())
				if !ok || len(data) < 12 {
					kinds[i] = pack.TypeUnknown
					return nil
				}
				e.table = table
				e.version = binary.LittleEndian.Uint32(data[4:8])
				e.payload = data
			case pack.TypeLoc:
				e.payload = data
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	raw := &rawCache{hashes: make(map[string]string, len(files))}
	for i := range staged {
		e := staged[i]
		if e.path == "" {
			continue
		}
		raw.hashes[e.path] = e.hash
		switch kinds[i] {
		case pack.TypeDB:
			raw.dbEntries = append(raw.dbEntries, e)
		case pack.TypeLoc:
			raw.locEntries = append(raw.locEntries, e)
		}
	}

	dig, err := reg.Digest()
	if err != nil {
		return fmt.Errorf("deps: schema digest: %w", err)
	}
	if err := writeCache(ctx, r.cachePath, r.game.Key, dig, raw); err != nil {
		return err
	}
	r.log().Info("vanilla cache rebuilt",
		"game", r.game.Key, "entries", len(raw.hashes), "tables", len(raw.dbEntries))
	return r.install(raw, reg)
}
