package pack

import (
	"fmt"
	"sort"
)

// fileSet is the ordered path→entry mapping shared by Pack and the nested
// AnimPack container. Paths are unique case-insensitively but stored
// case-preserving; iteration order is sorted by path.
type fileSet struct {
	byPath map[string]*RFile
	fold   map[string]string // fold key → stored path
}

func newFileSet() fileSet {
	return fileSet{
		byPath: make(map[string]*RFile),
		fold:   make(map[string]string),
	}
}

// Len returns the number of entries.
func (s *fileSet) Len() int { return len(s.byPath) }

// File returns the entry at path, matched case-insensitively.
func (s *fileSet) File(path string) (*RFile, bool) {
	stored, ok := s.fold[foldPath(NormalizePath(path))]
	if !ok {
		return nil, false
	}
	return s.byPath[stored], true
}

// Insert adds an entry, replacing any existing entry at the same
// case-insensitive path. The stored path takes the casing of f.
func (s *fileSet) Insert(f *RFile) {
	key := foldPath(f.path)
	if old, ok := s.fold[key]; ok {
		delete(s.byPath, old)
	}
	s.fold[key] = f.path
	s.byPath[f.path] = f
}

// Delete removes the entry at path.
func (s *fileSet) Delete(path string) error {
	key := foldPath(NormalizePath(path))
	stored, ok := s.fold[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	delete(s.byPath, stored)
	delete(s.fold, key)
	return nil
}

// Move renames the entry at src to dst. Moving onto an existing entry is
// rejected.
func (s *fileSet) Move(src, dst string) error {
	dst = NormalizePath(dst)
	f, ok := s.File(src)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, src)
	}
	if existing, ok := s.File(dst); ok && existing != f {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}
	if err := s.Delete(src); err != nil {
		return err
	}
	f.path = dst
	s.Insert(f)
	return nil
}

// Paths returns all stored paths, sorted.
func (s *fileSet) Paths() []string {
	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Files returns all entries ordered by path.
func (s *fileSet) Files() []*RFile {
	paths := s.Paths()
	files := make([]*RFile, len(paths))
	for i, p := range paths {
		files[i] = s.byPath[p]
	}
	return files
}

// FilesWithPrefix returns entries whose path starts with prefix
// (case-insensitive), ordered by path.
func (s *fileSet) FilesWithPrefix(prefix string) []*RFile {
	prefix = foldPath(NormalizePath(prefix))
	var files []*RFile
	for _, p := range s.Paths() {
		if len(prefix) == 0 || foldHasPrefix(p, prefix) {
			files = append(files, s.byPath[p])
		}
	}
	return files
}

func foldHasPrefix(path, foldedPrefix string) bool {
	f := foldPath(path)
	return len(f) >= len(foldedPrefix) && f[:len(foldedPrefix)] == foldedPrefix
}
