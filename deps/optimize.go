package deps

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/oakrook/pack"
	"github.com/oakrook/pack/schema"
)

// OptimizeReport summarizes what Optimize stripped.
type OptimizeReport struct {
	RemovedFiles []string
	RemovedRows  int
}

// Optimize removes content from p that the layers below already provide:
// whole entries byte-identical to a parent or vanilla entry at the same
// path, then individual table and localization rows identical to a row with
// the same key below. A table left with no rows is removed entirely.
//
// The pass is idempotent: running it on its own output changes nothing,
// because everything it removes is redundant with the layers it compares
// against.
func (r *Resolver) Optimize(p *pack.Pack, reg *schema.Registry) (*OptimizeReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := &OptimizeReport{}
	parentHashes := r.parentHashes()

	for _, f := range p.Files() {
		path := strings.ToLower(f.Path())

		if sum, ok := r.entryHash(f); ok {
			if sum == r.vanillaHash[path] || sum == parentHashes[path] {
				if err := p.Delete(f.Path()); err != nil {
					return nil, err
				}
				report.RemovedFiles = append(report.RemovedFiles, f.Path())
				continue
			}
		}

		switch f.Type() {
		case pack.TypeDB:
			removed, empty, err := r.stripTableRows(f, reg)
			if err != nil {
				// Entries the schema cannot decode are left alone.
				continue
			}
			report.RemovedRows += removed
			if empty {
				if err := p.Delete(f.Path()); err != nil {
					return nil, err
				}
				report.RemovedFiles = append(report.RemovedFiles, f.Path())
			}
		case pack.TypeLoc:
			removed, empty, err := r.stripLocRows(f)
			if err != nil {
				continue
			}
			report.RemovedRows += removed
			if empty {
				if err := p.Delete(f.Path()); err != nil {
					return nil, err
				}
				report.RemovedFiles = append(report.RemovedFiles, f.Path())
			}
		}
	}
	return report, nil
}

func (r *Resolver) entryHash(f *pack.RFile) (string, bool) {
	data, err := f.Data()
	if err != nil {
		return "", false
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

// parentHashes hashes every parent entry, later parents winning on path
// collisions to mirror load order.
func (r *Resolver) parentHashes() map[string]string {
	hashes := make(map[string]string)
	for _, parent := range r.parents {
		for _, f := range parent.Files() {
			if sum, ok := r.entryHash(f); ok {
				hashes[strings.ToLower(f.Path())] = sum
			}
		}
	}
	return hashes
}

// stripTableRows drops rows that exactly duplicate a same-keyed row in a
// lower layer. Keyless tables are left untouched; without identity there is
// no safe notion of "the same row below".
func (r *Resolver) stripTableRows(f *pack.RFile, reg *schema.Registry) (removed int, empty bool, err error) {
	d, err := f.Decode(pack.DecodeOpts{Schema: reg})
	if err != nil {
		return 0, false, err
	}
	db, ok := d.(*pack.DB)
	if !ok {
		return 0, false, nil
	}
	keyFields := db.Definition.KeyFields()
	if len(keyFields) == 0 {
		return 0, false, nil
	}

	kept := db.Rows[:0]
	for _, row := range db.Rows {
		key := make([]string, len(keyFields))
		for i, fi := range keyFields {
			key[i] = row[fi].String()
		}
		if below, ok := r.lookupBelow(db.Table, key); ok && rowsEqual(row, below) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	if removed == 0 {
		return 0, false, nil
	}
	db.Rows = kept
	f.SetDecoded(db)
	return removed, len(db.Rows) == 0, nil
}

func (r *Resolver) stripLocRows(f *pack.RFile) (removed int, empty bool, err error) {
	d, err := f.Decode(pack.DecodeOpts{})
	if err != nil {
		return 0, false, err
	}
	loc, ok := d.(*pack.Loc)
	if !ok {
		return 0, false, nil
	}

	kept := loc.Rows[:0]
	for _, row := range loc.Rows {
		if below, ok := r.lookupLocBelow(row[0].Str); ok && rowsEqual(row, below) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	if removed == 0 {
		return 0, false, nil
	}
	loc.Rows = kept
	f.SetDecoded(loc)
	return removed, len(loc.Rows) == 0, nil
}

// lookupBelow resolves a table row in the layers under the edited container:
// parents, vanilla, assembly kit.
func (r *Resolver) lookupBelow(table string, key []string) (pack.Row, bool) {
	table = strings.ToLower(table)
	for _, parent := range r.parents {
		if row, ok := lookupPack(parent, table, key, r.schema); ok {
			return row, true
		}
	}
	for _, db := range r.vanillaDB[table] {
		if row, ok := lookupRows(db, key); ok {
			return row, true
		}
	}
	if db, ok := r.asskit[table]; ok {
		if row, ok := lookupRows(db, key); ok {
			return row, true
		}
	}
	return nil, false
}

func (r *Resolver) lookupLocBelow(key string) (pack.Row, bool) {
	for _, parent := range r.parents {
		for _, f := range parent.Files() {
			if f.Type() != pack.TypeLoc {
				continue
			}
			d, err := f.Decode(pack.DecodeOpts{})
			if err != nil {
				continue
			}
			loc, ok := d.(*pack.Loc)
			if !ok {
				continue
			}
			for i, row := range loc.Rows {
				if loc.Key(i) == key {
					return row, true
				}
			}
		}
	}
	for _, e := range r.vanillaLoc {
		for i, row := range e.loc.Rows {
			if e.loc.Key(i) == key {
				return row, true
			}
		}
	}
	return nil, false
}

// rowsEqual compares rows by rendered cell values.
func rowsEqual(a, b pack.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].String() != b[i].String() {
			return false
		}
	}
	return true
}
