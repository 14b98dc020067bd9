package pack

import "fmt"

// FileKind is the declared role of a container within a title's data set.
type FileKind uint32

const (
	KindBoot FileKind = iota
	KindRelease
	KindPatch
	KindMod
	KindMovie
)

func (k FileKind) String() string {
	switch k {
	case KindBoot:
		return "boot"
	case KindRelease:
		return "release"
	case KindPatch:
		return "patch"
	case KindMod:
		return "mod"
	case KindMovie:
		return "movie"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Flags is the container header bitmask.
type Flags uint32

const (
	// FlagIndexTimestamps marks an index carrying per-entry timestamps.
	FlagIndexTimestamps Flags = 1 << iota

	// FlagIndexEncrypted marks an encrypted index. Not supported.
	FlagIndexEncrypted

	// FlagDataEncrypted marks an encrypted payload. Not supported.
	FlagDataEncrypted

	// FlagDataCompressed marks a zstd-compressed payload.
	FlagDataCompressed
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Header is the fixed container header.
type Header struct {
	// Version is the container format version (the digit of the "PFKn"
	// magic). Supported versions are 4 and 5, which share one layout.
	Version uint32

	// Kind is the declared file kind.
	Kind FileKind

	// Flags is the feature bitmask.
	Flags Flags

	// GameVersion is the game patch level the container was built for.
	GameVersion uint32

	// CreatedAt is the creation time in unix seconds, 0 when unset.
	CreatedAt uint32
}

const (
	// headerSize is the fixed byte length of the on-disk header: magic,
	// kind, flags, game version, created-at, parent count/size, file
	// count/size.
	headerSize = 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4

	minFormatVersion = 4
	maxFormatVersion = 5

	// DefaultFormatVersion is used for newly created containers.
	DefaultFormatVersion = 5
)

func magicFor(version uint32) [4]byte {
	return [4]byte{'P', 'F', 'K', byte('0' + version)}
}

func versionFromMagic(magic []byte) (uint32, bool) {
	if len(magic) != 4 || magic[0] != 'P' || magic[1] != 'F' || magic[2] != 'K' {
		return 0, false
	}
	v := uint32(magic[3] - '0')
	if v < minFormatVersion || v > maxFormatVersion {
		return 0, false
	}
	return v, true
}
