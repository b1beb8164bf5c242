package browse

import "sync"

// SortState is a sort spec shared between the session that reads it and the
// table headers that write it. Listeners run synchronously after each change,
// outside the state's lock.
type SortState struct {
	mu        sync.Mutex
	spec      SortSpec
	listeners map[int]func(SortSpec)
	nextID    int
}

// NewSortState returns a state holding a copy of initial.
func NewSortState(initial SortSpec) *SortState {
	return &SortState{
		spec:      initial.Clone(),
		listeners: make(map[int]func(SortSpec)),
	}
}

// Get returns a copy of the current spec.
func (s *SortState) Get() SortSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec.Clone()
}

// Set replaces the spec. Listeners are only notified when it actually changed.
func (s *SortState) Set(spec SortSpec) {
	s.mu.Lock()
	if s.spec.Equal(spec) {
		s.mu.Unlock()
		return
	}
	s.spec = spec.Clone()
	current := s.spec.Clone()
	fns := make([]func(SortSpec), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(current)
	}
}

// Toggle advances the direction of field id and returns the new spec.
func (s *SortState) Toggle(id string) SortSpec {
	next := s.Get().Toggle(id)
	s.Set(next)
	return next
}

// Subscribe registers fn to run after every change and returns a function
// that removes it.
func (s *SortState) Subscribe(fn func(SortSpec)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
