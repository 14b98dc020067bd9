package pack

import (
	"fmt"

	"github.com/oakrook/pack/internal/binio"
)

// UnitVariant maps unit categories to their mesh/texture variant sets.
type UnitVariant struct {
	Version    uint32
	Categories []UVCategory

	tail []byte
}

// UVCategory is one unit category and its variants.
type UVCategory struct {
	Name     string
	ID       uint32
	Variants []UVVariant
}

// UVVariant is one mesh/texture pairing.
type UVVariant struct {
	Mesh    string
	Texture string
}

func (u *UnitVariant) FileType() FileType { return TypeUnitVariant }
func (u *UnitVariant) isDecoded()         {}

// DecodeUnitVariant parses a unit variant payload: version, category count,
// then per category a UTF-16 name, a numeric id and its variant list.
func DecodeUnitVariant(data []byte) (*UnitVariant, error) {
	r := binio.NewReader(data)
	version, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: unit variant header: %v", ErrDecode, err)
	}
	count, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: unit variant header: %v", ErrDecode, err)
	}
	u := &UnitVariant{Version: version, Categories: make([]UVCategory, 0, count)}
	for i := uint32(0); i < count; i++ {
		var cat UVCategory
		if cat.Name, err = r.StringU16(); err != nil {
			return nil, fmt.Errorf("%w: unit variant category %d: %v", ErrDecode, i, err)
		}
		if cat.ID, err = r.U32(); err != nil {
			return nil, fmt.Errorf("%w: unit variant category %s: %v", ErrDecode, cat.Name, err)
		}
		variants, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("%w: unit variant category %s: %v", ErrDecode, cat.Name, err)
		}
		cat.Variants = make([]UVVariant, 0, variants)
		for j := uint32(0); j < variants; j++ {
			var v UVVariant
			if v.Mesh, err = r.StringU16(); err != nil {
				return nil, fmt.Errorf("%w: unit variant %s/%d: %v", ErrDecode, cat.Name, j, err)
			}
			if v.Texture, err = r.StringU16(); err != nil {
				return nil, fmt.Errorf("%w: unit variant %s/%d: %v", ErrDecode, cat.Name, j, err)
			}
			cat.Variants = append(cat.Variants, v)
		}
		u.Categories = append(u.Categories, cat)
	}
	if r.Remaining() > 0 {
		u.tail = make([]byte, r.Remaining())
		copy(u.tail, r.Rest())
	}
	return u, nil
}

// Encode serializes the unit variant back to payload bytes.
func (u *UnitVariant) Encode() ([]byte, error) {
	w := binio.NewWriter()
	w.U32(u.Version)
	w.U32(uint32(len(u.Categories)))
	for _, cat := range u.Categories {
		w.StringU16(cat.Name)
		w.U32(cat.ID)
		w.U32(uint32(len(cat.Variants)))
		for _, v := range cat.Variants {
			w.StringU16(v.Mesh)
			w.StringU16(v.Texture)
		}
	}
	w.Raw(u.tail)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("pack: encode unit variant: %w", err)
	}
	return w.Bytes(), nil
}

// Clone deep-copies the unit variant.
func (u *UnitVariant) Clone() *UnitVariant {
	out := &UnitVariant{Version: u.Version, Categories: make([]UVCategory, len(u.Categories))}
	for i, cat := range u.Categories {
		c := cat
		c.Variants = make([]UVVariant, len(cat.Variants))
		copy(c.Variants, cat.Variants)
		out.Categories[i] = c
	}
	if u.tail != nil {
		out.tail = make([]byte, len(u.tail))
		copy(out.tail, u.tail)
	}
	return out
}
