package session

import (
	"encoding/binary"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/oakrook/pack"
	"github.com/oakrook/pack/schema"
)

// UpdateSchema merges authoritative definitions into the active registry and
// swaps the new snapshot in.
//
// Before the swap, every table entry carrying a decoded variant is frozen
// back to raw bytes under the old definitions, in parallel across entries;
// an entry that fails to re-encode keeps its decoded form and is skipped, it
// never aborts the update. The swap itself happens on the owning loop only
// after all workers finish. Versions stamped in the container's tables are
// reported to the registry as in use, so the update refuses to reinterpret
// them and reports conflicts instead.
//
// The vanilla cache is keyed by the schema digest; after a successful update
// that changed anything, RebuildDependencies is needed before resolver
// queries work again.
func (s *Session) UpdateSchema(incoming *schema.Registry) (*schema.UpdateReport, error) {
	v, err := s.do(func(st *state) (any, error) {
		inUse := make(map[string][]uint32)
		if st.pk != nil {
			var mu sync.Mutex
			g := new(errgroup.Group)
			g.SetLimit(runtime.GOMAXPROCS(0))
			for _, f := range st.pk.Files() {
				g.Go(func() error {
					if f.Type() != pack.TypeDB {
						return nil
					}
					if _, ok := f.Decoded(); ok {
						data, err := f.Encode(encodeOpts(st))
						if err != nil {
							s.log().Warn("table not frozen before schema swap",
								"path", f.Path(), "error", err)
							return nil
						}
						f.SetData(data)
					}
					data, err := f.Data()
					if err != nil || len(data) < 12 {
						return nil
					}
					table, ok := pack.TableName(f.Path())
					if !ok {
						return nil
					}
					version := binary.LittleEndian.Uint32(data[4:8])
					mu.Lock()
					inUse[table] = appendVersion(inUse[table], version)
					mu.Unlock()
					return nil
				})
			}
			// Workers only touch their own entry; the index is not
			// mutated until they all finish.
			if err := g.Wait(); err != nil {
				return nil, err
			}
		}

		next := st.reg.Clone()
		report := next.UpdateFromAssKit(incoming, inUse)
		st.reg = next
		s.log().Info("schema updated",
			"added", report.Added, "replaced", report.Replaced, "conflicts", len(report.Conflicts))
		return report, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.UpdateReport), nil
}

func encodeOpts(st *state) pack.EncodeOpts {
	opts := pack.EncodeOpts{Schema: st.reg}
	if st.game != nil {
		opts.Game = st.game.Key
	}
	return opts
}

func appendVersion(versions []uint32, v uint32) []uint32 {
	for _, existing := range versions {
		if existing == v {
			return versions
		}
	}
	return append(versions, v)
}
