// Package schema holds the versioned structural definitions that drive
// decoding of tabular pack entries. A table name maps to one Definition per
// shipped binary format version; field order inside a Definition is the
// binary field order. Patches are field-level overrides kept beside the
// definitions and consulted late, at the moment a decoder or editor needs a
// default value, key flag or description.
package schema

import (
	"encoding/json"
	"fmt"
)

// FieldType identifies the wire encoding of one table column.
type FieldType int

const (
	FTBoolean FieldType = iota
	FTF32
	FTF64
	FTI16
	FTI32
	FTI64
	FTOptionalI16
	FTOptionalI32
	FTOptionalI64
	FTColourRGB
	FTStringU8
	FTStringU16
	FTOptionalStringU8
	FTOptionalStringU16
	FTSequenceU32
)

var fieldTypeNames = map[FieldType]string{
	FTBoolean:           "boolean",
	FTF32:               "f32",
	FTF64:               "f64",
	FTI16:               "i16",
	FTI32:               "i32",
	FTI64:               "i64",
	FTOptionalI16:       "optional_i16",
	FTOptionalI32:       "optional_i32",
	FTOptionalI64:       "optional_i64",
	FTColourRGB:         "colour_rgb",
	FTStringU8:          "string_u8",
	FTStringU16:         "string_u16",
	FTOptionalStringU8:  "optional_string_u8",
	FTOptionalStringU16: "optional_string_u16",
	FTSequenceU32:       "sequence_u32",
}

var fieldTypeValues = func() map[string]FieldType {
	m := make(map[string]FieldType, len(fieldTypeNames))
	for ft, name := range fieldTypeNames {
		m[name] = ft
	}
	return m
}()

func (ft FieldType) String() string {
	if name, ok := fieldTypeNames[ft]; ok {
		return name
	}
	return fmt.Sprintf("field_type(%d)", int(ft))
}

// MarshalJSON encodes the type as its stable name so persisted schemas stay
// readable and diffable.
func (ft FieldType) MarshalJSON() ([]byte, error) {
	name, ok := fieldTypeNames[ft]
	if !ok {
		return nil, fmt.Errorf("schema: unknown field type %d", int(ft))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a type name written by MarshalJSON.
func (ft *FieldType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := fieldTypeValues[name]
	if !ok {
		return fmt.Errorf("schema: unknown field type %q", name)
	}
	*ft = v
	return nil
}

// Reference points a column at the key column of another table.
type Reference struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Field describes one column of a table definition.
type Field struct {
	Name        string           `json:"name"`
	Type        FieldType        `json:"type"`
	IsKey       bool             `json:"is_key,omitempty"`
	Default     string           `json:"default,omitempty"`
	Description string           `json:"description,omitempty"`
	CAOrder     int              `json:"ca_order,omitempty"`
	Reference   *Reference       `json:"reference,omitempty"`
	EnumValues  map[int64]string `json:"enum_values,omitempty"`

	// Fields holds the nested definition of a sequence column and is only
	// set when Type is FTSequenceU32.
	Fields []Field `json:"fields,omitempty"`
}

// Definition is the ordered field list for one binary format version of a
// table. Field order is the exact binary field order.
type Definition struct {
	Version uint32  `json:"version"`
	Fields  []Field `json:"fields"`
}

// FieldIndex returns the position of the named field, or -1.
func (d *Definition) FieldIndex(name string) int {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// KeyFields returns the indexes of the definition's key columns.
func (d *Definition) KeyFields() []int {
	var keys []int
	for i := range d.Fields {
		if d.Fields[i].IsKey {
			keys = append(keys, i)
		}
	}
	return keys
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	out := &Definition{Version: d.Version, Fields: cloneFields(d.Fields)}
	return out
}

func cloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = f
		if f.Reference != nil {
			ref := *f.Reference
			out[i].Reference = &ref
		}
		if f.EnumValues != nil {
			ev := make(map[int64]string, len(f.EnumValues))
			for k, v := range f.EnumValues {
				ev[k] = v
			}
			out[i].EnumValues = ev
		}
		out[i].Fields = cloneFields(f.Fields)
	}
	return out
}
