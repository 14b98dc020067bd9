package pack

import (
	"fmt"

	"github.com/oakrook/pack/internal/binio"
	"github.com/oakrook/pack/schema"
)

// DB is a decoded tabular entry. Rows follow the resolved definition's field
// order exactly; trailing bytes the definition does not describe are
// preserved verbatim so re-encode stays byte-identical.
type DB struct {
	Table      string
	Definition *schema.Definition
	Rows       []Row

	tail []byte
}

func (d *DB) FileType() FileType { return TypeDB }
func (d *DB) isDecoded()         {}

// Version returns the binary format version the table was decoded with.
func (d *DB) Version() uint32 { return d.Definition.Version }

// DecodeDB parses a table payload: the fixed marker, the stamped version,
// the row count, then rowCount rows in definition field order.
//
// An unmatched version fails with schema.ErrNoDefinition rather than
// guessing a nearby definition.
func DecodeDB(table string, data []byte, reg *schema.Registry) (*DB, error) {
	r := binio.NewReader(data)
	marker, err := r.Bytes(4)
	if err != nil || string(marker) != string(dbMarker) {
		return nil, fmt.Errorf("%w: table %s has no table marker", ErrDecode, table)
	}
	version, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: table %s: %v", ErrDecode, table, err)
	}
	count, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: table %s: %v", ErrDecode, table, err)
	}

	def, err := reg.Definition(table, version)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, count)
	for i := uint32(0); i < count; i++ {
		row, err := decodeRow(r, def.Fields)
		if err != nil {
			return nil, fmt.Errorf("%w: table %s version %d row %d: %v", ErrDecode, table, version, i, err)
		}
		rows = append(rows, row)
	}

	var tail []byte
	if r.Remaining() > 0 {
		tail = make([]byte, r.Remaining())
		copy(tail, r.Rest())
	}

	return &DB{Table: table, Definition: def, Rows: rows, tail: tail}, nil
}

// Encode serializes the table back to payload bytes, including any
// preserved trailing bytes.
func (d *DB) Encode() ([]byte, error) {
	w := binio.NewWriter()
	w.Raw(dbMarker)
	w.U32(d.Definition.Version)
	w.U32(uint32(len(d.Rows)))
	for i, row := range d.Rows {
		if err := encodeRow(w, row, d.Definition.Fields); err != nil {
			return nil, fmt.Errorf("pack: encode table %s row %d: %w", d.Table, i, err)
		}
	}
	w.Raw(d.tail)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("pack: encode table %s: %w", d.Table, err)
	}
	return w.Bytes(), nil
}

// Clone deep-copies the table.
func (d *DB) Clone() *DB {
	out := &DB{Table: d.Table, Definition: d.Definition, Rows: cloneRows(d.Rows)}
	if d.tail != nil {
		out.tail = make([]byte, len(d.tail))
		copy(out.tail, d.tail)
	}
	return out
}

// KeyOf renders a row's key columns joined for identity comparison.
func (d *DB) KeyOf(row Row) string {
	keys := d.Definition.KeyFields()
	if len(keys) == 0 {
		return ""
	}
	out := ""
	for _, i := range keys {
		out += row[i].String() + "\x00"
	}
	return out
}

func decodeRow(r *binio.Reader, fields []schema.Field) (Row, error) {
	row := make(Row, len(fields))
	for i, f := range fields {
		cell, err := decodeCell(r, f)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		row[i] = cell
	}
	return row, nil
}

func decodeCell(r *binio.Reader, f schema.Field) (Cell, error) {
	c := Cell{Type: f.Type}
	var err error
	switch f.Type {
	case schema.FTBoolean:
		c.Bool, err = r.Bool()
	case schema.FTF32:
		var v float32
		v, err = r.F32()
		c.Float = float64(v)
	case schema.FTF64:
		c.Float, err = r.F64()
	case schema.FTI16:
		var v int16
		v, err = r.I16()
		c.Int = int64(v)
	case schema.FTI32:
		var v int32
		v, err = r.I32()
		c.Int = int64(v)
	case schema.FTI64:
		c.Int, err = r.I64()
	case schema.FTOptionalI16:
		if c.Present, err = r.Bool(); err == nil && c.Present {
			var v int16
			v, err = r.I16()
			c.Int = int64(v)
		}
	case schema.FTOptionalI32:
		if c.Present, err = r.Bool(); err == nil && c.Present {
			var v int32
			v, err = r.I32()
			c.Int = int64(v)
		}
	case schema.FTOptionalI64:
		if c.Present, err = r.Bool(); err == nil && c.Present {
			c.Int, err = r.I64()
		}
	case schema.FTColourRGB:
		var v uint32
		v, err = r.U32()
		c.Int = int64(v)
	case schema.FTStringU8:
		c.Str, err = r.StringU8()
	case schema.FTStringU16:
		c.Str, err = r.StringU16()
	case schema.FTOptionalStringU8:
		if c.Present, err = r.Bool(); err == nil && c.Present {
			c.Str, err = r.StringU8()
		}
	case schema.FTOptionalStringU16:
		if c.Present, err = r.Bool(); err == nil && c.Present {
			c.Str, err = r.StringU16()
		}
	case schema.FTSequenceU32:
		var count uint32
		count, err = r.U32()
		if err != nil {
			break
		}
		c.Seq = make([]Row, 0, count)
		for i := uint32(0); i < count; i++ {
			var row Row
			row, err = decodeRow(r, f.Fields)
			if err != nil {
				break
			}
			c.Seq = append(c.Seq, row)
		}
	default:
		err = fmt.Errorf("unhandled field type %s", f.Type)
	}
	if err != nil {
		return Cell{}, err
	}
	return c, nil
}

func encodeRow(w *binio.Writer, row Row, fields []schema.Field) error {
	if len(row) != len(fields) {
		return fmt.Errorf("row has %d cells, definition has %d fields", len(row), len(fields))
	}
	for i, f := range fields {
		if err := encodeCell(w, row[i], f); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

func encodeCell(w *binio.Writer, c Cell, f schema.Field) error {
	switch f.Type {
	case schema.FTBoolean:
		w.Bool(c.Bool)
	case schema.FTF32:
		w.F32(float32(c.Float))
	case schema.FTF64:
		w.F64(c.Float)
	case schema.FTI16:
		w.I16(int16(c.Int))
	case schema.FTI32:
		w.I32(int32(c.Int))
	case schema.FTI64:
		w.I64(c.Int)
	case schema.FTOptionalI16:
		w.Bool(c.Present)
		if c.Present {
			w.I16(int16(c.Int))
		}
	case schema.FTOptionalI32:
		w.Bool(c.Present)
		if c.Present {
			w.I32(int32(c.Int))
		}
	case schema.FTOptionalI64:
		w.Bool(c.Present)
		if c.Present {
			w.I64(c.Int)
		}
	case schema.FTColourRGB:
		w.U32(uint32(c.Int))
	case schema.FTStringU8:
		w.StringU8(c.Str)
	case schema.FTStringU16:
		w.StringU16(c.Str)
	case schema.FTOptionalStringU8:
		w.Bool(c.Present)
		if c.Present {
			w.StringU8(c.Str)
		}
	case schema.FTOptionalStringU16:
		w.Bool(c.Present)
		if c.Present {
			w.StringU16(c.Str)
		}
	case schema.FTSequenceU32:
		w.U32(uint32(len(c.Seq)))
		for _, row := range c.Seq {
			if err := encodeRow(w, row, f.Fields); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unhandled field type %s", f.Type)
	}
	return nil
}
