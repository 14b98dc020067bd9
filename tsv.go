package pack

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oakrook/pack/schema"
)

// The TSV interchange format: one metadata record of "#<table>;<version>",
// one header record of field names, then one record per row with cells
// rendered as text. Localization tables use the pseudo table name "loc".
const locTableName = "loc"

// ExportTSV writes the table as tab-separated values. Tables whose
// definition contains nested sequence columns cannot round-trip through a
// flat text format and are rejected.
func (d *DB) ExportTSV(w io.Writer) error {
	for _, f := range d.Definition.Fields {
		if f.Type == schema.FTSequenceU32 {
			return fmt.Errorf("pack: table %s: sequence column %q cannot be exported as TSV", d.Table, f.Name)
		}
	}
	return writeTSV(w, d.Table, d.Definition, d.Rows)
}

// ExportTSV writes the localization table as tab-separated values.
func (l *Loc) ExportTSV(w io.Writer) error {
	return writeTSV(w, locTableName, LocDefinition(), l.Rows)
}

func writeTSV(w io.Writer, table string, def *schema.Definition, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write([]string{fmt.Sprintf("#%s;%d", table, def.Version)}); err != nil {
		return fmt.Errorf("pack: export %s: %w", table, err)
	}
	header := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		header[i] = f.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("pack: export %s: %w", table, err)
	}
	record := make([]string, len(def.Fields))
	for _, row := range rows {
		for i, c := range row {
			record[i] = c.String()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("pack: export %s: %w", table, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportTSV parses tab-separated values back into a decoded table. The
// metadata record names the table and version; the version must resolve in
// the registry for db tables (localization tables need no registry). Columns
// missing from the input take the field's default; unknown column names are
// rejected.
func ImportTSV(r io.Reader, reg *schema.Registry) (Decoded, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	meta, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("pack: import tsv: %w", err)
	}
	table, version, err := parseTSVMeta(meta)
	if err != nil {
		return nil, err
	}

	var def *schema.Definition
	if table == locTableName {
		def = LocDefinition()
		if version != def.Version {
			return nil, fmt.Errorf("pack: import tsv: unsupported loc version %d", version)
		}
	} else {
		if reg == nil {
			return nil, fmt.Errorf("%w: table %s", ErrNoSchema, table)
		}
		def, err = reg.Definition(table, version)
		if err != nil {
			return nil, err
		}
	}

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("pack: import tsv %s: missing header record: %w", table, err)
	}
	cols := make([]int, len(header)) // input column to field index
	for i, name := range header {
		idx := def.FieldIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("pack: import tsv %s: unknown column %q", table, name)
		}
		cols[i] = idx
	}

	var rows []Row
	for line := 3; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pack: import tsv %s: %w", table, err)
		}
		if len(record) > len(cols) {
			return nil, fmt.Errorf("pack: import tsv %s: line %d has %d cells, header has %d", table, line, len(record), len(cols))
		}
		row := NewRow(reg, table, def)
		for i, text := range record {
			if err := row[cols[i]].SetString(text); err != nil {
				return nil, fmt.Errorf("pack: import tsv %s: line %d column %q: %w", table, line, header[i], err)
			}
		}
		rows = append(rows, row)
	}

	if table == locTableName {
		return &Loc{Version: def.Version, Rows: rows}, nil
	}
	return &DB{Table: table, Definition: def, Rows: rows}, nil
}

func parseTSVMeta(record []string) (table string, version uint32, err error) {
	if len(record) != 1 || !strings.HasPrefix(record[0], "#") {
		return "", 0, fmt.Errorf("pack: import tsv: first record is not a #table;version line")
	}
	name, ver, ok := strings.Cut(record[0][1:], ";")
	if !ok {
		return "", 0, fmt.Errorf("pack: import tsv: malformed metadata %q", record[0])
	}
	v, err := strconv.ParseUint(ver, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("pack: import tsv: bad version in %q: %w", record[0], err)
	}
	return name, uint32(v), nil
}
