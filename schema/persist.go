package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

// FormatVersion is the persisted registry format. Files written by a newer
// format are rejected on load instead of being reinterpreted.
const FormatVersion = 1

// ErrFormatVersion is returned when a persisted registry was written by an
// incompatible format version.
var ErrFormatVersion = errors.New("schema: unsupported registry format version")

type fileForm struct {
	FormatVersion int                      `json:"format_version"`
	Game          string                   `json:"game"`
	Definitions   map[string][]*Definition `json:"definitions"`
	Patches       map[string]Patch         `json:"patches,omitempty"`
}

func (r *Registry) fileForm() *fileForm {
	form := &fileForm{
		FormatVersion: FormatVersion,
		Game:          r.game,
		Definitions:   r.defs,
	}
	if len(r.patches) > 0 {
		form.Patches = r.patches
	}
	return form
}

// Save writes the registry to path atomically (temp file + rename).
func (r *Registry) Save(path string) error {
	data, err := json.MarshalIndent(r.fileForm(), "", "  ")
	if err != nil {
		return fmt.Errorf("schema: encode registry: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".schema-*")
	if err != nil {
		return fmt.Errorf("schema: save registry: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("schema: save registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("schema: save registry: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("schema: save registry: %w", err)
	}
	return nil
}

// Load reads a registry previously written by Save.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: load registry: %w", err)
	}
	var form fileForm
	if err := json.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("schema: load registry %s: %w", path, err)
	}
	if form.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrFormatVersion, form.FormatVersion, FormatVersion)
	}
	r := NewRegistry(form.Game)
	for table, defs := range form.Definitions {
		for _, def := range defs {
			if err := r.AddDefinition(table, def); err != nil {
				return nil, fmt.Errorf("schema: load registry %s: %w", path, err)
			}
		}
	}
	if form.Patches != nil {
		r.patches = form.Patches
	}
	return r, nil
}

// Digest fingerprints the registry snapshot. Dependency caches record the
// digest they were built against and are rejected when it no longer matches.
//
// The canonical encoding is deterministic: encoding/json sorts map keys and
// definitions are stored sorted by version.
func (r *Registry) Digest() (digest.Digest, error) {
	data, err := json.Marshal(r.fileForm())
	if err != nil {
		return "", fmt.Errorf("schema: digest registry: %w", err)
	}
	return digest.FromBytes(data), nil
}
