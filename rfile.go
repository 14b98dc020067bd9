package pack

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/oakrook/pack/internal/zstdpool"
	"github.com/oakrook/pack/schema"
)

// payloadSource records where a lazily loaded entry's bytes live on disk.
// The backing file must remain open for the container's lifetime.
type payloadSource struct {
	file       *os.File
	offset     int64
	storedSize uint32
	compressed bool
}

// RFile is one named entry inside a container. An entry is materialized
// when it carries raw bytes, a decoded variant, or both; a lazily read entry
// carries neither until first access. Entries are exclusively owned by one
// container and cloned when copied across containers.
type RFile struct {
	path       string
	size       uint32 // uncompressed payload size
	timestamp  uint32 // unix seconds, 0 = unset
	compressed bool   // raw currently holds a compressed frame

	raw     []byte
	decoded Decoded
	src     *payloadSource

	owner *Pack
}

// NewRFile creates a materialized entry holding data.
func NewRFile(p string, data []byte) *RFile {
	return &RFile{
		path: NormalizePath(p),
		size: uint32(len(data)),
		raw:  data,
	}
}

// RFileInfo is the metadata surface of an entry.
type RFileInfo struct {
	Path       string
	Size       uint32
	Timestamp  uint32
	Compressed bool
	Loaded     bool
	IsDecoded  bool
	Type       FileType
}

// Path returns the entry's normalized container-relative path.
func (f *RFile) Path() string { return f.path }

// Size returns the uncompressed payload size in bytes.
func (f *RFile) Size() uint32 { return f.size }

// SetTimestamp records the entry's last-modified time in unix seconds.
func (f *RFile) SetTimestamp(secs uint32) { f.timestamp = secs }

// Info returns the entry's metadata without forcing a payload load.
func (f *RFile) Info() RFileInfo {
	return RFileInfo{
		Path:       f.path,
		Size:       f.size,
		Timestamp:  f.timestamp,
		Compressed: f.compressed,
		Loaded:     f.raw != nil,
		IsDecoded:  f.decoded != nil,
		Type:       f.Type(),
	}
}

// Type classifies the entry. Magic sniffing is only possible when the raw
// cache is loaded; otherwise classification falls back to path conventions.
func (f *RFile) Type() FileType {
	raw := f.raw
	if f.compressed {
		raw = nil
	}
	return classify(f.path, raw)
}

// Data returns the entry's raw payload bytes, loading and decompressing
// them on first access. The returned slice is the entry's cache and must
// not be modified.
func (f *RFile) Data() ([]byte, error) {
	if f.raw != nil {
		if !f.compressed {
			return f.raw, nil
		}
		plain, err := zstdpool.Decompress(f.raw, int(f.size))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, f.path, err)
		}
		f.raw = plain
		f.compressed = false
		f.size = uint32(len(plain))
		return f.raw, nil
	}
	if f.src == nil {
		if f.decoded != nil {
			return nil, fmt.Errorf("pack: %s has only a decoded form; use Encode", f.path)
		}
		return nil, fmt.Errorf("%w: %s has no payload", ErrNotFound, f.path)
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f.Data()
}

// load reads the entry's stored bytes from the backing file. Concurrent
// loads of the same entry are deduplicated through the owning container.
func (f *RFile) load() error {
	read := func() (any, error) {
		if f.raw != nil {
			return nil, nil
		}
		buf := make([]byte, f.src.storedSize)
		if _, err := f.src.file.ReadAt(buf, f.src.offset); err != nil {
			return nil, fmt.Errorf("pack: load %s: %w", f.path, err)
		}
		f.raw = buf
		f.compressed = f.src.compressed
		f.src = nil
		return nil, nil
	}
	if f.owner != nil {
		_, err, _ := f.owner.loadGroup.Do(f.path, read)
		return err
	}
	_, err := read()
	return err
}

// DecodeOpts carries the optional context for decoding an entry.
type DecodeOpts struct {
	// Schema resolves versioned definitions for table entries.
	Schema *schema.Registry

	// Game is the active game key, for title-specific quirks.
	Game string
}

// Decode materializes the entry's typed variant. The result is cached; the
// raw cache is kept alongside it until ClearRaw. A failed decode leaves the
// raw cache intact so the caller can retry after fixing the schema.
//
// Table entries without a registry in opts fail with ErrNoSchema; an
// unmatched version surfaces schema.ErrNoDefinition, distinct from ErrDecode.
func (f *RFile) Decode(opts DecodeOpts) (Decoded, error) {
	if f.decoded != nil {
		return f.decoded, nil
	}
	data, err := f.Data()
	if err != nil {
		return nil, err
	}

	var d Decoded
	switch t := classify(f.path, data); t {
	case TypeDB:
		if opts.Schema == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoSchema, f.path)
		}
		d, err = DecodeDB(tableNameOf(f.path), data, opts.Schema)
	case TypeLoc:
		d, err = DecodeLoc(data)
	case TypeText:
		d = DecodeText(f.path, data)
	case TypeAnimPack:
		d, err = DecodeAnimPack(data)
	case TypeUnitVariant:
		d, err = DecodeUnitVariant(data)
	case TypeAnimsTable:
		d, err = DecodeAnimsTable(data)
	case TypeAnimFragment:
		d, err = DecodeAnimFragment(data)
	default:
		buf := make([]byte, len(data))
		copy(buf, data)
		d = &Opaque{Kind: t, Data: buf}
	}
	if err != nil {
		return nil, fmt.Errorf("pack: decode %s: %w", f.path, err)
	}
	f.decoded = d
	return d, nil
}

// EncodeOpts carries the optional context for encoding an entry.
type EncodeOpts struct {
	Schema *schema.Registry
	Game   string
}

// Encode serializes the entry to payload bytes: the decoded variant when
// one is present, the raw cache otherwise.
func (f *RFile) Encode(EncodeOpts) ([]byte, error) {
	if f.decoded != nil {
		data, err := encodeDecoded(f.decoded)
		if err != nil {
			return nil, fmt.Errorf("pack: encode %s: %w", f.path, err)
		}
		return data, nil
	}
	return f.Data()
}

// Decoded returns the cached decoded variant, if any.
func (f *RFile) Decoded() (Decoded, bool) {
	return f.decoded, f.decoded != nil
}

// SetDecoded replaces the entry's content with a decoded variant. The raw
// cache is dropped: the variant is now the source of truth.
func (f *RFile) SetDecoded(d Decoded) {
	f.decoded = d
	f.raw = nil
	f.compressed = false
	f.src = nil
}

// SetData replaces the entry's content with raw bytes, dropping any decoded
// variant.
func (f *RFile) SetData(data []byte) {
	f.raw = data
	f.size = uint32(len(data))
	f.compressed = false
	f.decoded = nil
	f.src = nil
}

// ClearRaw drops the raw cache when a decoded variant is present. This is
// the cache-cleanup operation; it never leaves the entry without content.
func (f *RFile) ClearRaw() {
	if f.decoded != nil {
		f.raw = nil
		f.compressed = false
	}
}

// Clone returns a deep copy with no owner.
func (f *RFile) Clone() (*RFile, error) {
	out := &RFile{
		path:       f.path,
		size:       f.size,
		timestamp:  f.timestamp,
		compressed: f.compressed,
		src:        f.src,
	}
	if f.raw != nil {
		out.raw = make([]byte, len(f.raw))
		copy(out.raw, f.raw)
	}
	if f.decoded != nil {
		d, err := cloneDecoded(f.decoded)
		if err != nil {
			return nil, err
		}
		out.decoded = d
	}
	return out, nil
}

var (
	dbMarker     = []byte{0xFD, 0xFE, 0xFC, 0xFF}
	locMagic     = []byte{0xFF, 0xFE, 'L', 'O', 'C', 0x00}
	animPackTag  = []byte{'A', 'P', 'K', '1'}
	textFormats  = map[string]TextFormat{".txt": TextPlain, ".md": TextMarkdown, ".lua": TextLua, ".xml": TextXML, ".json": TextJSON, ".csv": TextPlain, ".inl": TextPlain, ".hlsl": TextPlain}
	imageExts    = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".tga": true, ".dds": true, ".gif": true}
	audioExts    = map[string]bool{".wav": true, ".mp3": true, ".ogg": true}
	videoExts    = map[string]bool{".ca_vp8": true, ".webm": true}
	rigidExts    = map[string]bool{".rigid_model_v2": true, ".wsmodel": true}
	esfExts      = map[string]bool{".esf": true, ".ccd": true, ".save": true}
	fragmentExts = map[string]bool{".frg": true}
)

// classify determines an entry's type: magic bytes first, then path
// conventions, then extension.
func classify(p string, data []byte) FileType {
	if bytes.HasPrefix(data, dbMarker) {
		return TypeDB
	}
	if bytes.HasPrefix(data, locMagic) {
		return TypeLoc
	}
	if bytes.HasPrefix(data, animPackTag) {
		return TypeAnimPack
	}

	lower := foldPath(p)
	if isDBPath(lower) {
		return TypeDB
	}
	ext := path.Ext(lower)
	base := path.Base(lower)
	switch {
	case ext == ".loc":
		return TypeLoc
	case ext == ".animpack":
		return TypeAnimPack
	case ext == ".unit_variant":
		return TypeUnitVariant
	case ext == ".bin" && strings.Contains(lower, "animations/tables/"):
		return TypeAnimsTable
	case ext == ".bin" && strings.Contains(lower, "animations/matched_combat/"):
		return TypeMatchedCombat
	case ext == ".bin" && strings.HasPrefix(base, "portrait_settings"):
		return TypePortraitSettings
	case fragmentExts[ext]:
		return TypeAnimFragment
	case esfExts[ext]:
		return TypeESF
	case strings.HasPrefix(lower, "ui/") && ext == "":
		return TypeUIC
	case imageExts[ext]:
		return TypeImage
	case audioExts[ext]:
		return TypeAudio
	case videoExts[ext]:
		return TypeVideo
	case rigidExts[ext]:
		return TypeRigidModel
	default:
		if _, ok := textFormats[ext]; ok {
			return TypeText
		}
		return TypeUnknown
	}
}

// isDBPath reports whether a folded path follows the db/<table>_tables/...
// convention.
func isDBPath(lower string) bool {
	parts := strings.Split(lower, "/")
	return len(parts) >= 3 && parts[0] == "db" && strings.HasSuffix(parts[1], "_tables")
}

// tableNameOf extracts the schema table name from a db entry path.
func tableNameOf(p string) string {
	parts := strings.Split(foldPath(p), "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
