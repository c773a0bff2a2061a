package selection

import "sync"

// Set tracks the lead ids marked for a bulk action.
// It never looks at pipeline or filter state.
type Set struct {
	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

// NewSet creates an empty selection
func NewSet() *Set {
	return &Set{index: make(map[string]struct{})}
}

// Select marks id. Selecting an id twice keeps its original position.
func (s *Set) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectLocked(id)
}

func (s *Set) selectLocked(id string) {
	if _, ok := s.index[id]; ok || id == "" {
		return
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
}

// Deselect unmarks id
func (s *Set) Deselect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deselectLocked(id)
}

func (s *Set) deselectLocked(id string) {
	if _, ok := s.index[id]; !ok {
		return
	}
	delete(s.index, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Toggle flips the membership of id and reports whether it is now selected
func (s *Set) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		s.deselectLocked(id)
		return false
	}
	s.selectLocked(id)
	_, ok := s.index[id]
	return ok
}

// Contains reports whether id is selected
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// IDs returns the selected ids in the order they were selected
func (s *Set) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.order...)
}

// Len returns the number of selected ids
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Clear empties the selection
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.index = make(map[string]struct{})
}
