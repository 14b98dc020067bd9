package pack

import (
	"fmt"

	"github.com/oakrook/pack/internal/binio"
)

// AnimFragment binds animation clips to the slots of one skeleton.
type AnimFragment struct {
	Version  uint32
	Skeleton string
	MinSlot  uint32
	MaxSlot  uint32
	Entries  []AnimFragmentEntry

	tail []byte
}

// AnimFragmentEntry is one clip binding.
type AnimFragmentEntry struct {
	Slot        uint32
	AnimPath    string
	MetaPath    string
	SoundPath   string
	BlendTime   float32
	Weight      float32
	SingleFrame bool
}

func (a *AnimFragment) FileType() FileType { return TypeAnimFragment }
func (a *AnimFragment) isDecoded()         {}

// DecodeAnimFragment parses a fragment payload: a header naming the skeleton
// and the slot range it covers, then the clip bindings.
func DecodeAnimFragment(data []byte) (*AnimFragment, error) {
	r := binio.NewReader(data)
	a := &AnimFragment{}
	var err error
	if a.Version, err = r.U32(); err != nil {
		return nil, fmt.Errorf("%w: anim fragment header: %v", ErrDecode, err)
	}
	if a.Skeleton, err = r.StringU8(); err != nil {
		return nil, fmt.Errorf("%w: anim fragment header: %v", ErrDecode, err)
	}
	if a.MinSlot, err = r.U32(); err != nil {
		return nil, fmt.Errorf("%w: anim fragment header: %v", ErrDecode, err)
	}
	if a.MaxSlot, err = r.U32(); err != nil {
		return nil, fmt.Errorf("%w: anim fragment header: %v", ErrDecode, err)
	}
	count, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: anim fragment header: %v", ErrDecode, err)
	}
	a.Entries = make([]AnimFragmentEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e AnimFragmentEntry
		if e.Slot, err = r.U32(); err != nil {
			return nil, fmt.Errorf("%w: anim fragment entry %d: %v", ErrDecode, i, err)
		}
		if e.AnimPath, err = r.StringU8(); err != nil {
			return nil, fmt.Errorf("%w: anim fragment entry %d: %v", ErrDecode, i, err)
		}
		if e.MetaPath, err = r.StringU8(); err != nil {
			return nil, fmt.Errorf("%w: anim fragment entry %s: %v", ErrDecode, e.AnimPath, err)
		}
		if e.SoundPath, err = r.StringU8(); err != nil {
			return nil, fmt.Errorf("%w: anim fragment entry %s: %v", ErrDecode, e.AnimPath, err)
		}
		if e.BlendTime, err = r.F32(); err != nil {
			return nil, fmt.Errorf("%w: anim fragment entry %s: %v", ErrDecode, e.AnimPath, err)
		}
		if e.Weight, err = r.F32(); err != nil {
			return nil, fmt.Errorf("%w: anim fragment entry %s: %v", ErrDecode, e.AnimPath, err)
		}
		if e.SingleFrame, err = r.Bool(); err != nil {
			return nil, fmt.Errorf("%w: anim fragment entry %s: %v", ErrDecode, e.AnimPath, err)
		}
		a.Entries = append(a.Entries, e)
	}
	if r.Remaining() > 0 {
		a.tail = make([]byte, r.Remaining())
		copy(a.tail, r.Rest())
	}
	return a, nil
}

// Encode serializes the fragment back to payload bytes.
func (a *AnimFragment) Encode() ([]byte, error) {
	w := binio.NewWriter()
	w.U32(a.Version)
	w.StringU8(a.Skeleton)
	w.U32(a.MinSlot)
	w.U32(a.MaxSlot)
	w.U32(uint32(len(a.Entries)))
	for _, e := range a.Entries {
		w.U32(e.Slot)
		w.StringU8(e.AnimPath)
		w.StringU8(e.MetaPath)
		w.StringU8(e.SoundPath)
		w.F32(e.BlendTime)
		w.F32(e.Weight)
		w.Bool(e.SingleFrame)
	}
	w.Raw(a.tail)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("pack: encode anim fragment: %w", err)
	}
	return w.Bytes(), nil
}

// Clone deep-copies the fragment.
func (a *AnimFragment) Clone() *AnimFragment {
	out := &AnimFragment{
		Version:  a.Version,
		Skeleton: a.Skeleton,
		MinSlot:  a.MinSlot,
		MaxSlot:  a.MaxSlot,
		Entries:  make([]AnimFragmentEntry, len(a.Entries)),
	}
	copy(out.Entries, a.Entries)
	if a.tail != nil {
		out.tail = make([]byte, len(a.tail))
		copy(out.tail, a.tail)
	}
	return out
}
