package pack

import (
	"fmt"
	"strconv"

	"github.com/oakrook/pack/schema"
)

// Row is one decoded table row; cells follow the definition's field order.
type Row []Cell

// Cell is one decoded table value. The Type tag says which value field is
// meaningful; Present distinguishes absent optional values.
type Cell struct {
	Type    schema.FieldType
	Bool    bool
	Int     int64   // integer, optional integer and colour types
	Float   float64 // f32 values survive exactly in a float64
	Str     string  // string types
	Present bool    // optional types: value present
	Seq     []Row   // nested sequence rows
}

// String renders the cell for display, search and TSV export. Absent
// optional values render empty.
func (c Cell) String() string {
	switch c.Type {
	case schema.FTBoolean:
		return strconv.FormatBool(c.Bool)
	case schema.FTF32:
		return strconv.FormatFloat(c.Float, 'g', -1, 32)
	case schema.FTF64:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case schema.FTI16, schema.FTI32, schema.FTI64, schema.FTColourRGB:
		return strconv.FormatInt(c.Int, 10)
	case schema.FTOptionalI16, schema.FTOptionalI32, schema.FTOptionalI64:
		if !c.Present {
			return ""
		}
		return strconv.FormatInt(c.Int, 10)
	case schema.FTStringU8, schema.FTStringU16:
		return c.Str
	case schema.FTOptionalStringU8, schema.FTOptionalStringU16:
		if !c.Present {
			return ""
		}
		return c.Str
	case schema.FTSequenceU32:
		return fmt.Sprintf("[%d rows]", len(c.Seq))
	default:
		return ""
	}
}

// SetString parses s into the cell according to its type tag. An empty
// string clears optional values. Sequence cells cannot be set from text.
func (c *Cell) SetString(s string) error {
	switch c.Type {
	case schema.FTBoolean:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("pack: %q is not a boolean: %w", s, err)
		}
		c.Bool = v
	case schema.FTF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return fmt.Errorf("pack: %q is not a float: %w", s, err)
		}
		c.Float = v
	case schema.FTF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("pack: %q is not a float: %w", s, err)
		}
		c.Float = v
	case schema.FTI16, schema.FTI32, schema.FTI64, schema.FTColourRGB:
		v, err := parseCellInt(s, c.Type)
		if err != nil {
			return err
		}
		c.Int = v
	case schema.FTOptionalI16, schema.FTOptionalI32, schema.FTOptionalI64:
		if s == "" {
			c.Present = false
			c.Int = 0
			return nil
		}
		v, err := parseCellInt(s, c.Type)
		if err != nil {
			return err
		}
		c.Present = true
		c.Int = v
	case schema.FTStringU8, schema.FTStringU16:
		c.Str = s
	case schema.FTOptionalStringU8, schema.FTOptionalStringU16:
		if s == "" {
			c.Present = false
			c.Str = ""
			return nil
		}
		c.Present = true
		c.Str = s
	case schema.FTSequenceU32:
		return fmt.Errorf("pack: sequence cells cannot be set from text")
	default:
		return fmt.Errorf("pack: unhandled field type %s", c.Type)
	}
	return nil
}

func parseCellInt(s string, ft schema.FieldType) (int64, error) {
	bits := 64
	switch ft {
	case schema.FTI16, schema.FTOptionalI16:
		bits = 16
	case schema.FTI32, schema.FTOptionalI32, schema.FTColourRGB:
		bits = 32
	}
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		// Colour values may also appear as unsigned 32-bit hex-ish
		// decimals above MaxInt32.
		if ft == schema.FTColourRGB {
			u, uerr := strconv.ParseUint(s, 10, 32)
			if uerr == nil {
				return int64(u), nil
			}
		}
		return 0, fmt.Errorf("pack: %q is not a %s: %w", s, ft, err)
	}
	return v, nil
}

// Clone deep-copies the cell.
func (c Cell) Clone() Cell {
	out := c
	if c.Seq != nil {
		out.Seq = cloneRows(c.Seq)
	}
	return out
}

// Clone deep-copies the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for i, c := range r {
		out[i] = c.Clone()
	}
	return out
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// defaultCell builds a cell for a field, honoring the late-bound default
// patch when a registry is available.
func defaultCell(reg *schema.Registry, table string, f schema.Field) Cell {
	c := Cell{Type: f.Type}
	def := f.Default
	if reg != nil {
		if v, ok := reg.PatchValue(table, f.Name, "default"); ok {
			def = v
		}
	}
	if def != "" {
		// A malformed default degrades to the zero value.
		_ = c.SetString(def)
	}
	if f.Type == schema.FTSequenceU32 {
		c.Seq = []Row{}
	}
	return c
}

// NewRow builds a row of default cells for a definition, consulting the
// registry's patches for overridden defaults.
func NewRow(reg *schema.Registry, table string, def *schema.Definition) Row {
	row := make(Row, len(def.Fields))
	for i, f := range def.Fields {
		row[i] = defaultCell(reg, table, f)
	}
	return row
}
