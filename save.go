package pack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/oakrook/pack/internal/binio"
	"github.com/oakrook/pack/internal/zstdpool"
	"github.com/oakrook/pack/schema"
)

// SaveOption configures a save.
type SaveOption func(*saveConfig)

type saveConfig struct {
	schema *schema.Registry
	game   string
}

// WithSchema supplies the registry used to re-encode decoded table entries.
func WithSchema(reg *schema.Registry) SaveOption {
	return func(c *saveConfig) { c.schema = reg }
}

// WithGame sets the active game key for title-specific encoding.
func WithGame(key string) SaveOption {
	return func(c *saveConfig) { c.game = key }
}

// Save writes the container back to the path it was read from or last saved
// to. It fails with ErrNoSavePath when the container has never touched disk.
func (p *Pack) Save(ctx context.Context, opts ...SaveOption) error {
	if p.diskPath == "" {
		return ErrNoSavePath
	}
	return p.SaveAs(ctx, p.diskPath, opts...)
}

// SaveAs writes the container to dest and records dest as its disk path.
//
// Every entry is materialized and re-encoded; decoded variants take priority
// over raw caches. Any single entry failing to encode aborts the whole save
// with no partial file left behind: the container is written to a temporary
// sibling and renamed into place only on success. After a successful save
// all lazy sources are released, since every payload now lives in memory.
func (p *Pack) SaveAs(ctx context.Context, dest string, opts ...SaveOption) error {
	var cfg saveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	files := p.Files()
	type pending struct {
		path      string
		timestamp uint32
		data      []byte
		stored    []byte
		deflated  bool
	}
	entries := make([]pending, 0, len(files)+2)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := f.Encode(EncodeOpts{Schema: cfg.schema, Game: cfg.game})
		if err != nil {
			return fmt.Errorf("pack: save %s: %w", f.path, err)
		}
		entries = append(entries, pending{path: f.path, timestamp: f.timestamp, data: data})
	}
	for _, r := range p.reservedEntries() {
		entries = append(entries, pending{path: r.path, data: r.data})
	}

	compressed := p.Compressed()
	timestamps := p.header.Flags.Has(FlagIndexTimestamps)
	for i := range entries {
		e := &entries[i]
		e.stored = e.data
		if compressed && !skipCompression(e.path) {
			frame, err := zstdpool.Compress(e.data)
			if err != nil {
				return fmt.Errorf("pack: compress %s: %w", e.path, err)
			}
			e.stored = frame
			e.deflated = true
		}
	}

	parentIndex := binio.NewWriter()
	for _, name := range p.parents {
		parentIndex.NullString(name)
	}
	fileIndex := binio.NewWriter()
	for _, e := range entries {
		fileIndex.U32(uint32(len(e.data)))
		if compressed {
			fileIndex.U32(uint32(len(e.stored)))
			if e.deflated {
				fileIndex.U8(1)
			} else {
				fileIndex.U8(0)
			}
		}
		if timestamps {
			fileIndex.U32(e.timestamp)
		}
		fileIndex.NullString(e.path)
	}
	if err := fileIndex.Err(); err != nil {
		return fmt.Errorf("pack: save %s: %w", dest, err)
	}

	p.header.CreatedAt = uint32(time.Now().Unix())
	magic := magicFor(p.header.Version)
	head := binio.NewWriter()
	head.Raw(magic[:])
	head.U32(uint32(p.header.Kind))
	head.U32(uint32(p.header.Flags))
	head.U32(p.header.GameVersion)
	head.U32(p.header.CreatedAt)
	head.U32(uint32(len(p.parents)))
	head.U32(uint32(parentIndex.Len()))
	head.U32(uint32(len(entries)))
	head.U32(uint32(fileIndex.Len()))

	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".pack-*")
	if err != nil {
		return fmt.Errorf("pack: save %s: %w", dest, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	for _, chunk := range [][]byte{head.Bytes(), parentIndex.Bytes(), fileIndex.Bytes()} {
		if _, err := tmp.Write(chunk); err != nil {
			return fmt.Errorf("pack: save %s: %w", dest, err)
		}
	}
	for _, e := range entries {
		if _, err := tmp.Write(e.stored); err != nil {
			return fmt.Errorf("pack: save %s: %w", dest, err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("pack: save %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pack: save %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("pack: save %s: %w", dest, err)
	}

	p.diskPath = dest
	p.Close()
	p.log().Info("container saved", "path", dest, "entries", len(entries))
	return nil
}

// CleanAndSaveAs strips editor residue before writing: raw caches of decoded
// entries are dropped so the decoded form is authoritative, per-entry
// timestamps are zeroed and the timestamp flag cleared.
func (p *Pack) CleanAndSaveAs(ctx context.Context, dest string, opts ...SaveOption) error {
	for _, f := range p.Files() {
		f.ClearRaw()
		f.timestamp = 0
	}
	p.SetIndexTimestamps(false)
	return p.SaveAs(ctx, dest, opts...)
}

type reservedEntry struct {
	path string
	data []byte
}

// reservedEntries synthesizes the hidden metadata entries written alongside
// regular entries. Empty metadata writes nothing.
func (p *Pack) reservedEntries() []reservedEntry {
	var out []reservedEntry
	if p.notes != "" {
		out = append(out, reservedEntry{path: notesPath, data: []byte(p.notes)})
	}
	if !p.settings.isZero() {
		blob, err := toml.Marshal(p.settings)
		if err != nil {
			p.log().Warn("settings blob not persisted", "error", err)
		} else {
			out = append(out, reservedEntry{path: settingsPath, data: blob})
		}
	}
	return out
}

func (s Settings) isZero() bool {
	return len(s.DiagnosticsIgnored) == 0 && s.PreferredLocale == "" && len(s.Custom) == 0
}

// skipCompression excludes payloads that are already entropy-coded, where a
// zstd frame only adds overhead.
func skipCompression(p string) bool {
	switch classify(p, nil) {
	case TypeImage, TypeAudio, TypeVideo:
		return true
	}
	return false
}
