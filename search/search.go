// Package search implements the global search and replace engine over a
// container and its dependency layers. Matches carry the layer they came
// from so replacement can refuse to touch read-only layers.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oakrook/pack"
	"github.com/oakrook/pack/schema"
)

// ErrReadOnlySource is returned when a replacement targets a match from a
// layer that was not opened for writing.
var ErrReadOnlySource = errors.New("search: layer is read-only")

// Mode selects the matching strategy.
type Mode int

const (
	// ModePattern matches a literal pattern, scanning each line left to
	// right and advancing past each match so matches never overlap.
	ModePattern Mode = iota

	// ModeRegex compiles the pattern once and runs it per line.
	ModeRegex
)

// Source identifies the dependency layer a match came from.
type Source int

const (
	SourceLocal Source = iota
	SourceParent
	SourceVanilla
	SourceAssKit
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceParent:
		return "parent"
	case SourceVanilla:
		return "vanilla"
	default:
		return "asskit"
	}
}

// TextMatch is one hit inside a free-text entry: zero-based line and byte
// column plus the matched length.
type TextMatch struct {
	Row    int
	Column int
	Len    int
	Line   string
}

// TableMatch is one hit inside a tabular entry: the row index and the field
// index whose rendered value contains the pattern.
type TableMatch struct {
	Row    int
	Column int
	Value  string
}

// FileMatches groups every hit inside one entry, tagged with the layer the
// entry lives in.
type FileMatches struct {
	Path     string
	Source   Source
	Writable bool

	Text  []TextMatch
	Table []TableMatch

	file *pack.RFile
}

// Layer is one searchable dependency layer.
type Layer struct {
	Source   Source
	Pack     *pack.Pack
	Writable bool
}

// GlobalSearch is one search request. The zero Mode is a literal pattern
// scan; regex mode compiles Pattern with Go regexp syntax.
type GlobalSearch struct {
	Pattern       string
	Mode          Mode
	CaseSensitive bool

	// Schema decodes tabular entries; without it only text and loc
	// entries are searched.
	Schema *schema.Registry

	re *regexp.Regexp
}

func (g *GlobalSearch) compile() error {
	if g.Mode != ModeRegex || g.re != nil {
		return nil
	}
	expr := g.Pattern
	if !g.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("search: bad pattern: %w", err)
	}
	g.re = re
	return nil
}

// Search runs the query over every layer and returns per-entry match sets.
// Entries that fail to decode are skipped; search is best effort over
// whatever the schema covers.
func (g *GlobalSearch) Search(layers []Layer) ([]FileMatches, error) {
	if g.Pattern == "" {
		return nil, errors.New("search: empty pattern")
	}
	if err := g.compile(); err != nil {
		return nil, err
	}

	var results []FileMatches
	for _, layer := range layers {
		if layer.Pack == nil {
			continue
		}
		for _, f := range layer.Pack.Files() {
			fm := g.searchFile(f)
			if fm == nil {
				continue
			}
			fm.Source = layer.Source
			fm.Writable = layer.Writable
			results = append(results, *fm)
		}
	}
	return results, nil
}

// RowSet is one decoded table from a layer with no container entry behind
// it, such as the vanilla cache or an assembly-kit import.
type RowSet struct {
	Path string
	Rows []pack.Row
}

// SearchRows runs the query over decoded row sets. Matches from these layers
// are always read-only; replacement refuses them.
func (g *GlobalSearch) SearchRows(source Source, sets []RowSet) ([]FileMatches, error) {
	if g.Pattern == "" {
		return nil, errors.New("search: empty pattern")
	}
	if err := g.compile(); err != nil {
		return nil, err
	}

	var results []FileMatches
	for _, set := range sets {
		table := g.matchRows(set.Rows)
		if len(table) == 0 {
			continue
		}
		results = append(results, FileMatches{Path: set.Path, Source: source, Table: table})
	}
	return results, nil
}

func (g *GlobalSearch) searchFile(f *pack.RFile) *FileMatches {
	d, err := f.Decode(pack.DecodeOpts{Schema: g.Schema})
	if err != nil {
		return nil
	}

	fm := &FileMatches{Path: f.Path(), file: f}
	switch v := d.(type) {
	case *pack.Text:
		for row, line := range strings.Split(v.Contents, "\n") {
			for _, m := range g.matchLine(line) {
				fm.Text = append(fm.Text, TextMatch{Row: row, Column: m[0], Len: m[1] - m[0], Line: line})
			}
		}
	case *pack.DB:
		fm.Table = g.matchRows(v.Rows)
	case *pack.Loc:
		fm.Table = g.matchRows(v.Rows)
	default:
		return nil
	}
	if len(fm.Text) == 0 && len(fm.Table) == 0 {
		return nil
	}
	return fm
}

func (g *GlobalSearch) matchRows(rows []pack.Row) []TableMatch {
	var out []TableMatch
	for ri, row := range rows {
		for ci, cell := range row {
			value := cell.String()
			if len(g.matchLine(value)) > 0 {
				out = append(out, TableMatch{Row: ri, Column: ci, Value: value})
			}
		}
	}
	return out
}

// matchLine returns the [start, end) pairs of every match in one line. The
// literal scan advances the cursor past each match, so matches never
// overlap; regexp's FindAll gives the same guarantee. Offsets always index
// the original line, so replacement can splice with them directly.
func (g *GlobalSearch) matchLine(line string) [][2]int {
	if g.Mode == ModeRegex {
		var out [][2]int
		for _, m := range g.re.FindAllStringIndex(line, -1) {
			out = append(out, [2]int{m[0], m[1]})
		}
		return out
	}
	if g.Pattern == "" {
		return nil
	}

	if g.CaseSensitive {
		var out [][2]int
		cursor := 0
		for {
			idx := strings.Index(line[cursor:], g.Pattern)
			if idx < 0 {
				return out
			}
			start := cursor + idx
			out = append(out, [2]int{start, start + len(g.Pattern)})
			cursor = start + len(g.Pattern)
		}
	}

	// Case folding can change a rune's byte length, so the insensitive scan
	// compares rune by rune and records the span the line itself occupies.
	var out [][2]int
	for i := 0; i < len(line); {
		if n, ok := foldMatch(line[i:], g.Pattern); ok {
			out = append(out, [2]int{i, i + n})
			i += n
			continue
		}
		_, size := utf8.DecodeRuneInString(line[i:])
		i += size
	}
	return out
}

// foldMatch reports whether s begins with a simple-case-fold match of
// needle, and the matched byte length in s.
func foldMatch(s, needle string) (int, bool) {
	n := 0
	for _, nr := range needle {
		sr, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || !runeFoldEqual(sr, nr) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func runeFoldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
