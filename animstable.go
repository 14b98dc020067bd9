package pack

import (
	"fmt"

	"github.com/oakrook/pack/internal/binio"
)

// AnimsTable binds animation slots to skeletons.
type AnimsTable struct {
	Version uint32
	Entries []AnimsTableEntry

	tail []byte
}

// AnimsTableEntry is one slot binding.
type AnimsTableEntry struct {
	Slot     string
	Skeleton string
	Mounted  bool
	Priority int32
}

func (a *AnimsTable) FileType() FileType { return TypeAnimsTable }
func (a *AnimsTable) isDecoded()         {}

// DecodeAnimsTable parses an animation table payload.
func DecodeAnimsTable(data []byte) (*AnimsTable, error) {
	r := binio.NewReader(data)
	version, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: anims table header: %v", ErrDecode, err)
	}
	count, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: anims table header: %v", ErrDecode, err)
	}
	a := &AnimsTable{Version: version, Entries: make([]AnimsTableEntry, 0, count)}
	for i := uint32(0); i < count; i++ {
		var e AnimsTableEntry
		if e.Slot, err = r.StringU8(); err != nil {
			return nil, fmt.Errorf("%w: anims table entry %d: %v", ErrDecode, i, err)
		}
		if e.Skeleton, err = r.StringU8(); err != nil {
			return nil, fmt.Errorf("%w: anims table entry %s: %v", ErrDecode, e.Slot, err)
		}
		if e.Mounted, err = r.Bool(); err != nil {
			return nil, fmt.Errorf("%w: anims table entry %s: %v", ErrDecode, e.Slot, err)
		}
		if e.Priority, err = r.I32(); err != nil {
			return nil, fmt.Errorf("%w: anims table entry %s: %v", ErrDecode, e.Slot, err)
		}
		a.Entries = append(a.Entries, e)
	}
	if r.Remaining() > 0 {
		a.tail = make([]byte, r.Remaining())
		copy(a.tail, r.Rest())
	}
	return a, nil
}

// Encode serializes the animation table back to payload bytes.
func (a *AnimsTable) Encode() ([]byte, error) {
	w := binio.NewWriter()
	w.U32(a.Version)
	w.U32(uint32(len(a.Entries)))
	for _, e := range a.Entries {
		w.StringU8(e.Slot)
		w.StringU8(e.Skeleton)
		w.Bool(e.Mounted)
		w.I32(e.Priority)
	}
	w.Raw(a.tail)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("pack: encode anims table: %w", err)
	}
	return w.Bytes(), nil
}

// Clone deep-copies the animation table.
func (a *AnimsTable) Clone() *AnimsTable {
	out := &AnimsTable{Version: a.Version, Entries: make([]AnimsTableEntry, len(a.Entries))}
	copy(out.Entries, a.Entries)
	if a.tail != nil {
		out.tail = make([]byte, len(a.tail))
		copy(out.tail, a.tail)
	}
	return out
}
