// Package games holds the registry of supported titles: their pack format
// tag, vanilla pack load order, and data layout conventions. The registry
// ships embedded in the binary and is loaded once at init.
package games

import (
	"fmt"
	"sort"

	_ "embed"

	"github.com/pelletier/go-toml/v2"
)

//go:embed games.toml
var embeddedGames []byte

// Game describes one supported title.
type Game struct {
	// Key is the stable identifier used for schema files, cache files and
	// session game selection.
	Key string `toml:"key"`

	// DisplayName is the human-readable title name.
	DisplayName string `toml:"display_name"`

	// PackVersion is the container format version the title ships with.
	PackVersion uint32 `toml:"pack_version"`

	// DBPrefix is the container-relative directory holding table entries.
	DBPrefix string `toml:"db_prefix"`

	// LocSuffix is the file extension of localization entries.
	LocSuffix string `toml:"loc_suffix"`

	// CAPacks lists the title's shipped packs in load-priority order:
	// later packs override entries of earlier ones.
	CAPacks []string `toml:"ca_packs"`
}

type registryFile struct {
	Games []Game `toml:"games"`
}

var byKey map[string]*Game

func init() {
	reg, err := parse(embeddedGames)
	if err != nil {
		panic(fmt.Sprintf("games: embedded registry is invalid: %v", err))
	}
	byKey = reg
}

func parse(data []byte) (map[string]*Game, error) {
	var file registryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	reg := make(map[string]*Game, len(file.Games))
	for i := range file.Games {
		g := &file.Games[i]
		if g.Key == "" {
			return nil, fmt.Errorf("game %d has no key", i)
		}
		if _, dup := reg[g.Key]; dup {
			return nil, fmt.Errorf("duplicate game key %q", g.Key)
		}
		reg[g.Key] = g
	}
	return reg, nil
}

// Get returns the game with the given key.
func Get(key string) (*Game, error) {
	g, ok := byKey[key]
	if !ok {
		return nil, fmt.Errorf("games: unknown game %q", key)
	}
	return g, nil
}

// Keys returns all supported game keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PackPriority returns the load priority of the named vanilla pack, or -1
// when the pack is not part of the title's shipped set.
func (g *Game) PackPriority(name string) int {
	for i, p := range g.CAPacks {
		if p == name {
			return i
		}
	}
	return -1
}
