package rename

import (
	"strings"
	"sync"
)

// NameSet records destination paths already taken in a run. Names compare
// case-insensitively so the result is safe on case-folding filesystems.
type NameSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewNameSet returns a set seeded with names.
func NewNameSet(names ...string) *NameSet {
	s := &NameSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.names[nameKey(n)] = struct{}{}
	}
	return s
}

func nameKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "\\", "/"))
}

// Contains reports whether name is taken.
func (s *NameSet) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[nameKey(name)]
	return ok
}

// Reserve marks name as taken. It returns false if it already was.
func (s *NameSet) Reserve(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nameKey(name)
	if _, ok := s.names[key]; ok {
		return false
	}
	s.names[key] = struct{}{}
	return true
}

// Len returns the number of reserved names.
func (s *NameSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}
