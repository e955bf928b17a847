package scanner

import (
	"sync"
)

// SeenSet records absolute paths that have already been handed to the
// extractor. It is safe for concurrent use and may be shared across scans.
type SeenSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func NewSeenSet(paths ...string) *SeenSet {
	s := &SeenSet{paths: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		s.paths[p] = struct{}{}
	}
	return s
}

// Add marks path as seen and reports whether it was new. A path counts as
// already seen when any of its aliases is in the set; only path is recorded.
func (s *SeenSet) Add(path string, aliases ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[path]; ok {
		return false
	}
	for _, a := range aliases {
		if _, ok := s.paths[a]; ok {
			return false
		}
	}
	s.paths[path] = struct{}{}
	return true
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}
