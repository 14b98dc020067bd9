package pack

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/oakrook/pack/internal/binio"
)

// Read parses a container file.
//
// With lazy enabled, entry payloads are not read into memory: only offsets
// and sizes are recorded, and the backing file is kept open for the
// container's lifetime (first access seeks and reads). Without lazy, every
// payload is loaded and decompressed up front and the file is closed.
//
// A truncated or malformed header or index fails the whole read with
// ErrFormat. An individual entry that fails to decompress does not: it is
// kept as an opaque raw blob and logged.
func Read(path string, lazy bool, opts ...Option) (*Pack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pack: open %s: %w", path, err)
	}

	p, err := parse(f, path, lazy, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	if lazy {
		p.sources = append(p.sources, f)
	} else {
		f.Close()
	}
	return p, nil
}

func parse(f *os.File, path string, lazy bool, opts ...Option) (*Pack, error) {
	formatErr := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrFormat, path, fmt.Sprintf(format, args...))
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("pack: stat %s: %w", path, err)
	}

	head := make([]byte, headerSize)
	if _, err := f.ReadAt(head, 0); err != nil {
		return nil, formatErr("truncated header")
	}

	r := binio.NewReader(head)
	magic, _ := r.Bytes(4)
	version, ok := versionFromMagic(magic)
	if !ok {
		return nil, formatErr("bad magic %q", magic)
	}

	p := New(opts...)
	p.header.Version = version
	kind, _ := r.U32()
	if kind > uint32(KindMovie) {
		return nil, formatErr("unknown file kind %d", kind)
	}
	p.header.Kind = FileKind(kind)
	flags, _ := r.U32()
	p.header.Flags = Flags(flags)
	p.header.GameVersion, _ = r.U32()
	p.header.CreatedAt, _ = r.U32()
	parentCount, _ := r.U32()
	parentIndexSize, _ := r.U32()
	fileCount, _ := r.U32()
	fileIndexSize, _ := r.U32()

	if p.header.Flags.Has(FlagIndexEncrypted) || p.header.Flags.Has(FlagDataEncrypted) {
		return nil, fmt.Errorf("%w: %s", ErrEncryptionUnsupported, path)
	}

	indexLen := int64(parentIndexSize) + int64(fileIndexSize)
	if int64(headerSize)+indexLen > info.Size() {
		return nil, formatErr("index extends past end of file")
	}
	index := make([]byte, indexLen)
	if _, err := f.ReadAt(index, headerSize); err != nil {
		return nil, formatErr("truncated index")
	}

	// Parent index: NUL-terminated container names.
	pr := binio.NewReader(index[:parentIndexSize])
	for i := uint32(0); i < parentCount; i++ {
		name, err := pr.NullString()
		if err != nil {
			return nil, formatErr("parent index: %v", err)
		}
		p.parents = append(p.parents, name)
	}
	if pr.Remaining() != 0 {
		return nil, formatErr("parent index has %d trailing bytes", pr.Remaining())
	}

	compressed := p.header.Flags.Has(FlagDataCompressed)
	timestamps := p.header.Flags.Has(FlagIndexTimestamps)

	type indexEntry struct {
		path       string
		size       uint32
		stored     uint32
		timestamp  uint32
		compressed bool
	}

	fr := binio.NewReader(index[parentIndexSize:])
	entries := make([]indexEntry, 0, fileCount)
	for i := uint32(0); i < fileCount; i++ {
		var e indexEntry
		if e.size, err = fr.U32(); err != nil {
			return nil, formatErr("file index entry %d: %v", i, err)
		}
		e.stored = e.size
		if compressed {
			if e.stored, err = fr.U32(); err != nil {
				return nil, formatErr("file index entry %d: %v", i, err)
			}
			marker, err := fr.U8()
			if err != nil {
				return nil, formatErr("file index entry %d: %v", i, err)
			}
			e.compressed = marker != 0
		}
		if timestamps {
			if e.timestamp, err = fr.U32(); err != nil {
				return nil, formatErr("file index entry %d: %v", i, err)
			}
		}
		if e.path, err = fr.NullString(); err != nil {
			return nil, formatErr("file index entry %d: %v", i, err)
		}
		entries = append(entries, e)
	}
	if fr.Remaining() != 0 {
		return nil, formatErr("file index has %d trailing bytes", fr.Remaining())
	}

	// Payloads are concatenated in index order right after the index.
	offset := int64(headerSize) + indexLen
	for _, e := range entries {
		if offset+int64(e.stored) > info.Size() {
			return nil, formatErr("payload for %s extends past end of file", e.path)
		}
		rf := &RFile{
			path:      NormalizePath(e.path),
			size:      e.size,
			timestamp: e.timestamp,
			owner:     p,
			src: &payloadSource{
				file:       f,
				offset:     offset,
				storedSize: e.stored,
				compressed: e.compressed,
			},
		}
		offset += int64(e.stored)

		if isReserved(rf.path) {
			p.readReserved(rf)
			continue
		}
		p.fileSet.Insert(rf)
		if !lazy {
			p.materialize(rf)
		}
	}

	p.diskPath = path
	return p, nil
}

// materialize forces a payload into memory. A decompression failure demotes
// the entry to an opaque raw blob instead of failing the container load.
func (p *Pack) materialize(f *RFile) {
	if _, err := f.Data(); err != nil {
		if errors.Is(err, ErrDecode) && f.raw != nil {
			p.log().Warn("entry failed to decompress, keeping opaque blob",
				"path", f.path, "error", err)
			f.compressed = false
			f.size = uint32(len(f.raw))
			return
		}
		p.log().Warn("entry failed to load", "path", f.path, "error", err)
	}
}

// readReserved folds a reserved metadata entry into the container fields.
func (p *Pack) readReserved(f *RFile) {
	data, err := f.Data()
	if err != nil {
		p.log().Warn("reserved entry unreadable", "path", f.path, "error", err)
		return
	}
	switch foldPath(f.path) {
	case notesPath:
		p.notes = string(data)
	case settingsPath:
		var s Settings
		if err := toml.Unmarshal(data, &s); err != nil {
			p.log().Warn("settings blob unreadable", "error", err)
			return
		}
		p.settings = s
	default:
		p.log().Warn("unknown reserved entry ignored", "path", f.path)
	}
}
