// Package session owns the mutable editing state of one container: the
// active game, the active schema registry, the opened container and its
// dependency resolver. Every operation is serialized through a
// single-consumer request loop, so container mutation is linearizable
// without locking the container itself; an operation runs to completion
// before the next starts and there is no cancellation of an in-flight
// request.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/oakrook/pack"
	"github.com/oakrook/pack/deps"
	"github.com/oakrook/pack/games"
	"github.com/oakrook/pack/schema"
	"github.com/oakrook/pack/search"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("session: closed")

// ErrNoPack is returned by operations that need an opened container.
var ErrNoPack = errors.New("session: no container open")

// state is the session's owned mutable state. Only the request loop
// goroutine touches it.
type state struct {
	game     *games.Game
	reg      *schema.Registry
	pk       *pack.Pack
	parents  []*pack.Pack
	resolver *deps.Resolver
}

type request struct {
	fn    func(*state) (any, error)
	reply chan response
}

type response struct {
	value any
	err   error
}

// Session is the single logical owner of one opened container.
type Session struct {
	logger   *slog.Logger
	requests chan request
	closed   chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a logger for operation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// New starts a session for one game. reg is the active schema snapshot and
// resolver the game's dependency resolver; both may be updated later through
// session operations.
func New(game *games.Game, reg *schema.Registry, resolver *deps.Resolver, opts ...Option) *Session {
	s := &Session{
		requests: make(chan request, 16),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop(&state{game: game, reg: reg, resolver: resolver})
	return s
}

func (s *Session) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

func (s *Session) loop(st *state) {
	for req := range s.requests {
		value, err := req.fn(st)
		req.reply <- response{value: value, err: err}
	}
	if st.pk != nil {
		st.pk.Close()
	}
	for _, p := range st.parents {
		p.Close()
	}
}

// Close shuts the request loop down and releases the opened containers.
// Pending requests complete first. Close must not race with callers still
// issuing operations.
func (s *Session) Close() {
	select {
	case <-s.closed:
		return
	default:
	}
	close(s.closed)
	close(s.requests)
}

func (s *Session) do(fn func(*state) (any, error)) (any, error) {
	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}
	reply := make(chan response, 1)
	select {
	case s.requests <- request{fn: fn, reply: reply}:
	case <-s.closed:
		return nil, ErrClosed
	}
	resp := <-reply
	return resp.value, resp.err
}

func (s *Session) doErr(fn func(*state) error) error {
	_, err := s.do(func(st *state) (any, error) { return nil, fn(st) })
	return err
}

func needPack(st *state) (*pack.Pack, error) {
	if st.pk == nil {
		return nil, ErrNoPack
	}
	return st.pk, nil
}

// Open reads a container and makes it the session's editing target,
// replacing and closing any previously opened one.
func (s *Session) Open(path string, lazy bool) error {
	return s.doErr(func(st *state) error {
		p, err := pack.Read(path, lazy, pack.WithLogger(s.logger))
		if err != nil {
			return err
		}
		s.installPack(st, p)
		return nil
	})
}

// OpenMerge reads several containers merged last-wins and makes the result
// the editing target.
func (s *Session) OpenMerge(paths []string, lazy bool) error {
	return s.doErr(func(st *state) error {
		p, err := pack.ReadAll(paths, lazy, pack.WithLogger(s.logger))
		if p == nil {
			return err
		}
		if err != nil {
			s.log().Warn("merge opened with unreadable members", "error", err)
		}
		s.installPack(st, p)
		return nil
	})
}

// NewPack makes an empty mod container the editing target.
func (s *Session) NewPack() error {
	return s.doErr(func(st *state) error {
		var opts []pack.Option
		if s.logger != nil {
			opts = append(opts, pack.WithLogger(s.logger))
		}
		if st.game != nil {
			opts = append(opts, pack.WithFormatVersion(st.game.PackVersion))
		}
		s.installPack(st, pack.New(opts...))
		return nil
	})
}

func (s *Session) installPack(st *state, p *pack.Pack) {
	if st.pk != nil {
		st.pk.Close()
	}
	st.pk = p
	if st.resolver != nil {
		st.resolver.SetLocal(p)
	}
}

// OpenParents reads the given containers as read-mostly parent layers in
// declaration order.
func (s *Session) OpenParents(paths []string) error {
	return s.doErr(func(st *state) error {
		var parents []*pack.Pack
		for _, path := range paths {
			p, err := pack.Read(path, true, pack.WithLogger(s.logger))
			if err != nil {
				for _, opened := range parents {
					opened.Close()
				}
				return err
			}
			parents = append(parents, p)
		}
		for _, old := range st.parents {
			old.Close()
		}
		st.parents = parents
		if st.resolver != nil {
			st.resolver.SetParents(parents)
		}
		return nil
	})
}

// Save writes the container back to its disk path.
func (s *Session) Save(ctx context.Context) error {
	return s.doErr(func(st *state) error {
		p, err := needPack(st)
		if err != nil {
			return err
		}
		return p.Save(ctx, pack.WithSchema(st.reg), saveGame(st))
	})
}

// SaveAs writes the container to dest.
func (s *Session) SaveAs(ctx context.Context, dest string) error {
	return s.doErr(func(st *state) error {
		p, err := needPack(st)
		if err != nil {
			return err
		}
		return p.SaveAs(ctx, dest, pack.WithSchema(st.reg), saveGame(st))
	})
}

// CleanAndSaveAs strips editor residue and writes the container to dest.
func (s *Session) CleanAndSaveAs(ctx context.Context, dest string) error {
	return s.doErr(func(st *state) error {
		p, err := needPack(st)
		if err != nil {
			return err
		}
		return p.CleanAndSaveAs(ctx, dest, pack.WithSchema(st.reg), saveGame(st))
	})
}

func saveGame(st *state) pack.SaveOption {
	if st.game == nil {
		return pack.WithGame("")
	}
	return pack.WithGame(st.game.Key)
}

// Paths lists the container's entry paths, sorted.
func (s *Session) Paths() ([]string, error) {
	v, err := s.do(func(st *state) (any, error) {
		p, err := needPack(st)
		if err != nil {
			return nil, err
		}
		return p.Paths(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Info returns one entry's metadata.
func (s *Session) Info(path string) (pack.RFileInfo, error) {
	v, err := s.do(func(st *state) (any, error) {
		p, err := needPack(st)
		if err != nil {
			return nil, err
		}
		f, ok := p.File(path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", pack.ErrNotFound, path)
		}
		return f.Info(), nil
	})
	if err != nil {
		return pack.RFileInfo{}, err
	}
	return v.(pack.RFileInfo), nil
}

// Insert adds an entry holding data, replacing any existing entry at path.
func (s *Session) Insert(path string, data []byte) error {
	return s.doErr(func(st *state) error {
		p, err := needPack(st)
		if err != nil {
			return err
		}
		return p.Insert(pack.NewRFile(path, data))
	})
}

// Delete removes the entry at path.
func (s *Session) Delete(path string) error {
	return s.doErr(func(st *state) error {
		p, err := needPack(st)
		if err != nil {
			return err
		}
		return p.Delete(path)
	})
}

// Move renames the entry at src to dst.
func (s *Session) Move(src, dst string) error {
	return s.doErr(func(st *state) error {
		p, err := needPack(st)
		if err != nil {
			return err
		}
		return p.Move(src, dst)
	})
}

// Data returns one entry's payload bytes.
func (s *Session) Data(path string) ([]byte, error) {
	v, err := s.do(func(st *state) (any, error) {
		p, err := needPack(st)
		if err != nil {
			return nil, err
		}
		f, ok := p.File(path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", pack.ErrNotFound, path)
		}
		return f.Data()
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Decode materializes one entry's typed variant using the active schema.
// The returned value stays owned by the session; treat it as read-only
// outside session operations.
func (s *Session) Decode(path string) (pack.Decoded, error) {
	v, err := s.do(func(st *state) (any, error) {
		p, err := needPack(st)
		if err != nil {
			return nil, err
		}
		f, ok := p.File(path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", pack.ErrNotFound, path)
		}
		return f.Decode(decodeOpts(st))
	})
	if err != nil {
		return nil, err
	}
	return v.(pack.Decoded), nil
}

func decodeOpts(st *state) pack.DecodeOpts {
	opts := pack.DecodeOpts{Schema: st.reg}
	if st.game != nil {
		opts.Game = st.game.Key
	}
	return opts
}

// Game returns the session's game.
func (s *Session) Game() (*games.Game, error) {
	v, err := s.do(func(st *state) (any, error) { return st.game, nil })
	if err != nil {
		return nil, err
	}
	return v.(*games.Game), nil
}

// Schema returns the active schema snapshot.
func (s *Session) Schema() (*schema.Registry, error) {
	v, err := s.do(func(st *state) (any, error) { return st.reg, nil })
	if err != nil {
		return nil, err
	}
	return v.(*schema.Registry), nil
}

// Search runs a global search over the container, its parent layers and the
// resolver's cached vanilla and assembly-kit tables, local first. Everything
// below the local layer is tagged read-only.
func (s *Session) Search(q *search.GlobalSearch) ([]search.FileMatches, error) {
	v, err := s.do(func(st *state) (any, error) {
		p, err := needPack(st)
		if err != nil {
			return nil, err
		}
		q.Schema = st.reg
		layers := []search.Layer{{Source: search.SourceLocal, Pack: p, Writable: true}}
		for _, parent := range st.parents {
			layers = append(layers, search.Layer{Source: search.SourceParent, Pack: parent})
		}
		results, err := q.Search(layers)
		if err != nil {
			return nil, err
		}
		if st.resolver != nil {
			var vanilla, asskit []search.RowSet
			for _, tr := range st.resolver.CachedTables() {
				set := search.RowSet{Path: tr.Name, Rows: tr.Rows}
				if tr.Source == deps.SourceAssKit {
					asskit = append(asskit, set)
				} else {
					vanilla = append(vanilla, set)
				}
			}
			more, err := q.SearchRows(search.SourceVanilla, vanilla)
			if err != nil {
				return nil, err
			}
			results = append(results, more...)
			more, err = q.SearchRows(search.SourceAssKit, asskit)
			if err != nil {
				return nil, err
			}
			results = append(results, more...)
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]search.FileMatches), nil
}

// ReplaceAll rewrites every match of one search result.
func (s *Session) ReplaceAll(q *search.GlobalSearch, fm *search.FileMatches, replacement string) (bool, error) {
	v, err := s.do(func(*state) (any, error) {
		return q.ReplaceAll(fm, replacement)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ReplaceOne rewrites the first match of one search result.
func (s *Session) ReplaceOne(q *search.GlobalSearch, fm *search.FileMatches, replacement string) (bool, error) {
	v, err := s.do(func(*state) (any, error) {
		return q.ReplaceOne(fm, replacement)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// RebuildDependencies regenerates the vanilla cache for the session's game
// and reloads the resolver.
func (s *Session) RebuildDependencies(ctx context.Context) error {
	return s.doErr(func(st *state) error {
		if st.resolver == nil {
			return deps.ErrGamePathUnset
		}
		return st.resolver.Rebuild(ctx, st.reg)
	})
}

// Optimize strips content the dependency layers already provide from the
// opened container.
func (s *Session) Optimize() (*deps.OptimizeReport, error) {
	v, err := s.do(func(st *state) (any, error) {
		p, err := needPack(st)
		if err != nil {
			return nil, err
		}
		if st.resolver == nil {
			return nil, deps.ErrCacheMissing
		}
		return st.resolver.Optimize(p, st.reg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*deps.OptimizeReport), nil
}

// MergeTables merges the table entries at srcPaths into a new entry at
// dstPath and, when deleteSources is set, removes the sources.
func (s *Session) MergeTables(srcPaths []string, dstPath string, deleteSources bool) error {
	return s.doErr(func(st *state) error {
		p, err := needPack(st)
		if err != nil {
			return err
		}
		files := make([]*pack.RFile, 0, len(srcPaths))
		for _, path := range srcPaths {
			f, ok := p.File(path)
			if !ok {
				return fmt.Errorf("%w: %s", pack.ErrNotFound, path)
			}
			files = append(files, f)
		}
		merged, err := pack.MergeTables(files, dstPath, decodeOpts(st))
		if err != nil {
			return err
		}
		if err := p.Insert(merged); err != nil {
			return err
		}
		if deleteSources {
			for _, path := range srcPaths {
				if pathEqualFold(path, dstPath) {
					continue
				}
				if err := p.Delete(path); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func pathEqualFold(a, b string) bool {
	return strings.EqualFold(pack.NormalizePath(a), pack.NormalizePath(b))
}

// ExportTSV writes the table entry at path to w as tab-separated values.
func (s *Session) ExportTSV(path string, w io.Writer) error {
	return s.doErr(func(st *state) error {
		p, err := needPack(st)
		if err != nil {
			return err
		}
		f, ok := p.File(path)
		if !ok {
			return fmt.Errorf("%w: %s", pack.ErrNotFound, path)
		}
		d, err := f.Decode(decodeOpts(st))
		if err != nil {
			return err
		}
		switch v := d.(type) {
		case *pack.DB:
			return v.ExportTSV(w)
		case *pack.Loc:
			return v.ExportTSV(w)
		default:
			return fmt.Errorf("%w: %s is not a table", pack.ErrTypeConflict, path)
		}
	})
}

// ImportTSV parses tab-separated values from r into a new entry at dstPath.
func (s *Session) ImportTSV(r io.Reader, dstPath string) error {
	return s.doErr(func(st *state) error {
		p, err := needPack(st)
		if err != nil {
			return err
		}
		d, err := pack.ImportTSV(r, st.reg)
		if err != nil {
			return err
		}
		f := pack.NewRFile(dstPath, nil)
		f.SetDecoded(d)
		return p.Insert(f)
	})
}
