package pack

import (
	"fmt"

	"github.com/oakrook/pack/internal/binio"
)

// AnimPack is a nested container embedded in a single entry. It follows the
// same entry model as Pack (case-insensitive, case-preserving paths) through
// the shared file set, but keeps the payload's entry order: re-encoding a
// decoded nested container reproduces its bytes exactly.
type AnimPack struct {
	fileSet
	order []string // fold keys, payload order then insertion order
}

func (a *AnimPack) FileType() FileType { return TypeAnimPack }
func (a *AnimPack) isDecoded()         {}

// NewAnimPack creates an empty nested container.
func NewAnimPack() *AnimPack {
	return &AnimPack{fileSet: newFileSet()}
}

// DecodeAnimPack parses a nested container payload: a fixed tag, a file
// count, then count entries of (path, size, bytes).
func DecodeAnimPack(data []byte) (*AnimPack, error) {
	r := binio.NewReader(data)
	tag, err := r.Bytes(len(animPackTag))
	if err != nil || string(tag) != string(animPackTag) {
		return nil, fmt.Errorf("%w: missing animpack tag", ErrDecode)
	}
	count, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: animpack header: %v", ErrDecode, err)
	}
	a := NewAnimPack()
	for i := uint32(0); i < count; i++ {
		p, err := r.StringU8()
		if err != nil {
			return nil, fmt.Errorf("%w: animpack entry %d: %v", ErrDecode, i, err)
		}
		size, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("%w: animpack entry %s: %v", ErrDecode, p, err)
		}
		payload, err := r.Bytes(int(size))
		if err != nil {
			return nil, fmt.Errorf("%w: animpack entry %s: %v", ErrDecode, p, err)
		}
		buf := make([]byte, len(payload))
		copy(buf, payload)
		a.Insert(NewRFile(p, buf))
	}
	if r.Remaining() > 0 {
		return nil, fmt.Errorf("%w: animpack has %d trailing bytes", ErrDecode, r.Remaining())
	}
	return a, nil
}

// Encode serializes the nested container in entry order. Entries carrying a
// decoded variant are re-encoded first, exactly like top-level save.
func (a *AnimPack) Encode() ([]byte, error) {
	w := binio.NewWriter()
	w.Raw(animPackTag)
	w.U32(uint32(a.Len()))
	for _, f := range a.ordered() {
		data, err := f.Encode(EncodeOpts{})
		if err != nil {
			return nil, fmt.Errorf("pack: encode animpack entry %s: %w", f.Path(), err)
		}
		w.StringU8(f.Path())
		w.U32(uint32(len(data)))
		w.Raw(data)
	}
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("pack: encode animpack: %w", err)
	}
	return w.Bytes(), nil
}

// ordered returns the entries in payload order, then later inserts in
// insertion order.
func (a *AnimPack) ordered() []*RFile {
	files := make([]*RFile, 0, a.Len())
	for _, key := range a.order {
		if stored, ok := a.fold[key]; ok {
			files = append(files, a.byPath[stored])
		}
	}
	return files
}

// Insert adds an entry to the nested container. A new path goes to the end;
// replacing an existing path keeps its position.
func (a *AnimPack) Insert(f *RFile) {
	f.owner = nil
	key := foldPath(f.path)
	if _, ok := a.fold[key]; !ok {
		a.order = append(a.order, key)
	}
	a.fileSet.Insert(f)
}

// Delete removes the entry at path.
func (a *AnimPack) Delete(path string) error {
	key := foldPath(NormalizePath(path))
	if err := a.fileSet.Delete(path); err != nil {
		return err
	}
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return nil
}

// Move renames the entry at src to dst, keeping its position.
func (a *AnimPack) Move(src, dst string) error {
	oldKey := foldPath(NormalizePath(src))
	if err := a.fileSet.Move(src, dst); err != nil {
		return err
	}
	newKey := foldPath(NormalizePath(dst))
	for i, k := range a.order {
		if k == oldKey {
			a.order[i] = newKey
			break
		}
	}
	return nil
}

// Clone deep-copies the nested container and all entries.
func (a *AnimPack) Clone() (*AnimPack, error) {
	out := NewAnimPack()
	for _, f := range a.ordered() {
		c, err := f.Clone()
		if err != nil {
			return nil, err
		}
		out.Insert(c)
	}
	return out, nil
}
