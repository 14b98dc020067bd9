package pack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oakrook/pack/games"
)

// ReadAll reads several containers and merges them into one, later paths
// winning on case-insensitive path collisions. A container that fails to
// read is skipped and its failure joined into the returned error; the merged
// result is still returned when at least one container loaded, so callers
// can choose between best-effort and strict handling.
//
// The merged container adopts the header of the first container that loads
// and absorbs every source's lazy backing files; closing the merged
// container closes them all.
func ReadAll(paths []string, lazy bool, opts ...Option) (*Pack, error) {
	merged := New(opts...)
	var errs []error
	loaded := 0
	for _, path := range paths {
		p, err := Read(path, lazy, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if loaded == 0 {
			merged.header = p.header
		}
		merged.absorb(p)
		loaded++
	}
	if loaded == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return merged, errors.Join(errs...)
}

// absorb moves other's entries, sources and parent declarations into p.
// Entries transfer ownership rather than being cloned; other must not be
// used afterwards.
func (p *Pack) absorb(other *Pack) {
	for _, f := range other.Files() {
		f.owner = p
		p.fileSet.Insert(f)
	}
	p.sources = append(p.sources, other.sources...)
	for _, parent := range other.parents {
		if !containsString(p.parents, parent) {
			p.parents = append(p.parents, parent)
		}
	}
	if p.notes == "" {
		p.notes = other.notes
	}
}

// ReadCA loads a game's stock containers from its data directory, merged in
// the title's load order so that later containers override earlier ones.
// Containers the title declares but the install lacks are skipped.
func ReadCA(game *games.Game, dataDir string, lazy bool, opts ...Option) (*Pack, error) {
	var paths []string
	for _, name := range game.CAPacks {
		full := filepath.Join(dataDir, name)
		if _, err := os.Stat(full); err != nil {
			continue
		}
		paths = append(paths, full)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("pack: no stock containers for %s under %s", game.Key, dataDir)
	}
	return ReadAll(paths, lazy, opts...)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
