// Package pack implements the binary Pack container used by a family of
// strategy-game titles: an ordered archive of heterogeneous game assets with
// a fixed header, a path index, lazily loaded payloads and container-wide
// compression, plus the polymorphic per-entry decode/encode dispatch that
// reproduces byte-identical output on re-encode.
package pack

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Reserved metadata paths. Notes and the settings blob are persisted as
// hidden entries under this prefix and surface through dedicated accessors
// instead of the entry listing.
const (
	reservedPrefix = ".pack/"
	notesPath      = reservedPrefix + "notes"
	settingsPath   = reservedPrefix + "settings.toml"
)

// Settings is the free-form per-container settings blob, persisted inside
// the container as TOML.
type Settings struct {
	// DiagnosticsIgnored lists diagnostic rule identifiers external
	// tooling should skip for this container.
	DiagnosticsIgnored []string `toml:"diagnostics_ignored,omitempty"`

	// PreferredLocale selects which localization entries editors show by
	// default.
	PreferredLocale string `toml:"preferred_locale,omitempty"`

	// Custom carries tool-specific key/value settings.
	Custom map[string]string `toml:"custom,omitempty"`
}

// Pack is a binary asset container: an ordered mapping from normalized
// forward-slash path to entry, plus header metadata, a declared parent list,
// free-form notes and an embedded settings blob.
//
// A Pack is owned by a single logical writer; see the session package for
// the serialized mutation loop. Entries are exclusively owned by their Pack
// and are cloned when copied across containers.
type Pack struct {
	fileSet

	header   Header
	parents  []string
	notes    string
	settings Settings
	diskPath string

	// sources holds backing files kept open for lazily loaded entries.
	sources   []*os.File
	loadGroup singleflight.Group
	logger    *slog.Logger
}

// Option configures a Pack.
type Option func(*Pack)

// WithLogger attaches a logger for per-entry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pack) { p.logger = logger }
}

// WithKind sets the declared file kind.
func WithKind(k FileKind) Option {
	return func(p *Pack) { p.header.Kind = k }
}

// WithGameVersion stamps the game patch level.
func WithGameVersion(v uint32) Option {
	return func(p *Pack) { p.header.GameVersion = v }
}

// WithFormatVersion selects the container format version (4 or 5).
func WithFormatVersion(v uint32) Option {
	return func(p *Pack) { p.header.Version = v }
}

// New creates an empty mod container.
func New(opts ...Option) *Pack {
	p := &Pack{
		fileSet: newFileSet(),
		header: Header{
			Version: DefaultFormatVersion,
			Kind:    KindMod,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pack) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// Header returns a copy of the container header.
func (p *Pack) Header() Header { return p.header }

// SetKind changes the declared file kind.
func (p *Pack) SetKind(k FileKind) { p.header.Kind = k }

// SetGameVersion changes the stamped game patch level.
func (p *Pack) SetGameVersion(v uint32) { p.header.GameVersion = v }

// Compressed reports whether payloads are compressed on save.
func (p *Pack) Compressed() bool { return p.header.Flags.Has(FlagDataCompressed) }

// SetCompressed toggles container-wide payload compression. It takes effect
// on the next save; there is no per-entry override.
func (p *Pack) SetCompressed(enabled bool) {
	p.setFlag(FlagDataCompressed, enabled)
}

// SetIndexTimestamps toggles per-entry timestamps in the index.
func (p *Pack) SetIndexTimestamps(enabled bool) {
	p.setFlag(FlagIndexTimestamps, enabled)
}

func (p *Pack) setFlag(f Flags, enabled bool) {
	if enabled {
		p.header.Flags |= f
	} else {
		p.header.Flags &^= f
	}
}

// Parents returns the declared parent container names, in declaration order.
func (p *Pack) Parents() []string {
	out := make([]string, len(p.parents))
	copy(out, p.parents)
	return out
}

// SetParents replaces the declared parent container list.
func (p *Pack) SetParents(parents []string) {
	p.parents = make([]string, len(parents))
	copy(p.parents, parents)
}

// Notes returns the container's free-form notes.
func (p *Pack) Notes() string { return p.notes }

// SetNotes replaces the container's free-form notes.
func (p *Pack) SetNotes(notes string) { p.notes = notes }

// Settings returns the embedded settings blob.
func (p *Pack) Settings() Settings { return p.settings }

// SetSettings replaces the embedded settings blob.
func (p *Pack) SetSettings(s Settings) { p.settings = s }

// DiskPath returns the path the container was read from or last saved to.
func (p *Pack) DiskPath() string { return p.diskPath }

// Insert adds an entry, replacing any existing entry at the same path. The
// entry becomes owned by this container. Reserved metadata paths are
// rejected.
func (p *Pack) Insert(f *RFile) error {
	if isReserved(f.path) {
		return fmt.Errorf("%w: %s", ErrReserved, f.path)
	}
	f.owner = p
	p.fileSet.Insert(f)
	return nil
}

// Move renames the entry at src to dst.
func (p *Pack) Move(src, dst string) error {
	if isReserved(NormalizePath(dst)) {
		return fmt.Errorf("%w: %s", ErrReserved, dst)
	}
	return p.fileSet.Move(src, dst)
}

// Close releases backing files held open for lazy loading. Lazily loaded
// entries that were never materialized become unreadable afterwards.
func (p *Pack) Close() error {
	var firstErr error
	for _, f := range p.sources {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.sources = nil
	return firstErr
}

// Timestamp converts an index timestamp to local time; zero means unset.
func Timestamp(secs uint32) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0)
}

func isReserved(path string) bool {
	return strings.HasPrefix(foldPath(path), reservedPrefix)
}
