package pack

import (
	"fmt"

	"github.com/oakrook/pack/internal/binio"
	"github.com/oakrook/pack/schema"
)

// locVersion is the only shipped localization format version.
const locVersion = 1

// locDefinition is the fixed three-column shape of localization entries.
// Loc tables reuse the DB row model so search, TSV and merge treat both
// uniformly.
var locDefinition = &schema.Definition{
	Version: locVersion,
	Fields: []schema.Field{
		{Name: "key", Type: schema.FTStringU16, IsKey: true},
		{Name: "text", Type: schema.FTStringU16},
		{Name: "tooltip", Type: schema.FTBoolean},
	},
}

// LocDefinition returns the fixed definition of localization tables.
func LocDefinition() *schema.Definition { return locDefinition }

// Loc is a decoded localization entry: UTF-16 key/text pairs plus a tooltip
// flag, in file order.
type Loc struct {
	Version uint32
	Rows    []Row
}

func (l *Loc) FileType() FileType { return TypeLoc }
func (l *Loc) isDecoded()         {}

// DecodeLoc parses a localization payload.
func DecodeLoc(data []byte) (*Loc, error) {
	r := binio.NewReader(data)
	magic, err := r.Bytes(len(locMagic))
	if err != nil || string(magic) != string(locMagic) {
		return nil, fmt.Errorf("%w: missing loc magic", ErrDecode)
	}
	version, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: loc header: %v", ErrDecode, err)
	}
	count, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: loc header: %v", ErrDecode, err)
	}
	rows := make([]Row, 0, count)
	for i := uint32(0); i < count; i++ {
		row, err := decodeRow(r, locDefinition.Fields)
		if err != nil {
			return nil, fmt.Errorf("%w: loc row %d: %v", ErrDecode, i, err)
		}
		rows = append(rows, row)
	}
	if r.Remaining() > 0 {
		return nil, fmt.Errorf("%w: loc has %d trailing bytes", ErrDecode, r.Remaining())
	}
	return &Loc{Version: version, Rows: rows}, nil
}

// Encode serializes the localization table back to payload bytes.
func (l *Loc) Encode() ([]byte, error) {
	w := binio.NewWriter()
	w.Raw(locMagic)
	w.U32(l.Version)
	w.U32(uint32(len(l.Rows)))
	for i, row := range l.Rows {
		if err := encodeRow(w, row, locDefinition.Fields); err != nil {
			return nil, fmt.Errorf("pack: encode loc row %d: %w", i, err)
		}
	}
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("pack: encode loc: %w", err)
	}
	return w.Bytes(), nil
}

// Clone deep-copies the table.
func (l *Loc) Clone() *Loc {
	return &Loc{Version: l.Version, Rows: cloneRows(l.Rows)}
}

// Key returns the key column of row i.
func (l *Loc) Key(i int) string { return l.Rows[i][0].Str }

// Text returns the text column of row i.
func (l *Loc) Text(i int) string { return l.Rows[i][1].Str }
