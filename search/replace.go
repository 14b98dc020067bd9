package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oakrook/pack"
)

// ReplaceAll rewrites every match in one entry with replacement and reports
// whether any content actually changed. Matches from read-only layers are
// refused with ErrReadOnlySource.
//
// Within a line, matches are applied from the highest column to the lowest:
// replacing a match shifts the offsets of everything after it on the same
// line, so applying high-to-low keeps every recorded position valid.
func (g *GlobalSearch) ReplaceAll(fm *FileMatches, replacement string) (bool, error) {
	return g.replace(fm, replacement, -1)
}

// ReplaceOne rewrites only the first match of the entry.
func (g *GlobalSearch) ReplaceOne(fm *FileMatches, replacement string) (bool, error) {
	return g.replace(fm, replacement, 1)
}

func (g *GlobalSearch) replace(fm *FileMatches, replacement string, limit int) (bool, error) {
	if !fm.Writable {
		return false, fmt.Errorf("%w: %s entry %s", ErrReadOnlySource, fm.Source, fm.Path)
	}
	if err := g.compile(); err != nil {
		return false, err
	}

	d, err := fm.file.Decode(pack.DecodeOpts{Schema: g.Schema})
	if err != nil {
		return false, err
	}
	switch v := d.(type) {
	case *pack.Text:
		return g.replaceText(fm, v, replacement, limit)
	case *pack.DB:
		return g.replaceRows(fm, v.Rows, replacement, limit)
	case *pack.Loc:
		return g.replaceRows(fm, v.Rows, replacement, limit)
	default:
		return false, fmt.Errorf("search: %s is not replaceable", fm.Path)
	}
}

func (g *GlobalSearch) replaceText(fm *FileMatches, text *pack.Text, replacement string, limit int) (bool, error) {
	matches := fm.Text
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	byRow := make(map[int][]TextMatch)
	for _, m := range matches {
		byRow[m.Row] = append(byRow[m.Row], m)
	}

	lines := strings.Split(text.Contents, "\n")
	changed := false
	for row, rowMatches := range byRow {
		if row >= len(lines) {
			continue
		}
		sort.Slice(rowMatches, func(i, j int) bool {
			return rowMatches[i].Column > rowMatches[j].Column
		})
		line := lines[row]
		for _, m := range rowMatches {
			if m.Column+m.Len > len(line) {
				continue
			}
			line = line[:m.Column] + replacement + line[m.Column+m.Len:]
		}
		if line != lines[row] {
			lines[row] = line
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	text.Contents = strings.Join(lines, "\n")
	fm.file.SetDecoded(text)
	return true, nil
}

func (g *GlobalSearch) replaceRows(fm *FileMatches, rows []pack.Row, replacement string, limit int) (bool, error) {
	matches := fm.Table
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	changed := false
	for _, m := range matches {
		if m.Row >= len(rows) || m.Column >= len(rows[m.Row]) {
			continue
		}
		cell := &rows[m.Row][m.Column]
		value := cell.String()
		edited := g.replaceInValue(value, replacement)
		if edited == value {
			continue
		}
		if err := cell.SetString(edited); err != nil {
			return changed, fmt.Errorf("search: %s row %d: %w", fm.Path, m.Row, err)
		}
		changed = true
	}
	if changed {
		// Drop the raw cache so the edited rows are authoritative on save.
		if d, ok := fm.file.Decoded(); ok {
			fm.file.SetDecoded(d)
		}
	}
	return changed, nil
}

// replaceInValue rewrites every match inside one rendered cell value,
// applied from the highest offset to the lowest.
func (g *GlobalSearch) replaceInValue(value, replacement string) string {
	spans := g.matchLine(value)
	for i := len(spans) - 1; i >= 0; i-- {
		value = value[:spans[i][0]] + replacement + value[spans[i][1]:]
	}
	return value
}
