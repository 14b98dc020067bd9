package pack

import (
	"fmt"
)

// MergeTables combines several decoded table entries into one new entry at
// dstPath, concatenating rows in input order. All inputs must be db tables of
// the same table name and definition version, or all localization tables;
// anything else fails with ErrTypeConflict. Inputs are decoded as needed and
// left untouched; rows are cloned into the result.
func MergeTables(files []*RFile, dstPath string, opts DecodeOpts) (*RFile, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("pack: merge tables: no inputs")
	}

	decoded := make([]Decoded, len(files))
	for i, f := range files {
		d, err := f.Decode(opts)
		if err != nil {
			return nil, fmt.Errorf("pack: merge tables: %s: %w", f.Path(), err)
		}
		decoded[i] = d
	}

	out := &RFile{path: NormalizePath(dstPath)}
	switch first := decoded[0].(type) {
	case *DB:
		merged := first.Clone()
		for i, d := range decoded[1:] {
			db, ok := d.(*DB)
			if !ok {
				return nil, fmt.Errorf("%w: %s is not a db table", ErrTypeConflict, files[i+1].Path())
			}
			if db.Table != merged.Table || db.Version() != merged.Version() {
				return nil, fmt.Errorf("%w: %s is %s v%d, want %s v%d",
					ErrTypeConflict, files[i+1].Path(), db.Table, db.Version(), merged.Table, merged.Version())
			}
			merged.Rows = append(merged.Rows, cloneRows(db.Rows)...)
		}
		out.SetDecoded(merged)
	case *Loc:
		merged := first.Clone()
		for i, d := range decoded[1:] {
			loc, ok := d.(*Loc)
			if !ok {
				return nil, fmt.Errorf("%w: %s is not a localization table", ErrTypeConflict, files[i+1].Path())
			}
			merged.Rows = append(merged.Rows, cloneRows(loc.Rows)...)
		}
		out.SetDecoded(merged)
	default:
		return nil, fmt.Errorf("%w: %s is not a mergeable table", ErrTypeConflict, files[0].Path())
	}
	return out, nil
}
