package service

import "sync"

// OwnedStore maps setNumber -> inventoryKey -> owned quantity. It only clamps
// at zero; the upper bound depends on row metadata and is the resolver's job.
type OwnedStore struct {
	mu   sync.RWMutex
	sets map[string]map[string]int
}

func NewOwnedStore() *OwnedStore {
	return &OwnedStore{sets: make(map[string]map[string]int)}
}

func (s *OwnedStore) Get(setNumber, key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets[setNumber][key]
}

func (s *OwnedStore) Set(setNumber, key string, value int) {
	if value < 0 {
		value = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(setNumber)[key] = value
}

func (s *OwnedStore) ClearAll(setNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, setNumber)
}

// Load replaces the whole map of a set.
func (s *OwnedStore) Load(setNumber string, owned map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]int, len(owned))
	for k, v := range owned {
		if v > 0 {
			m[k] = v
		}
	}
	s.sets[setNumber] = m
}

// Snapshot returns a copy of a set's map.
func (s *OwnedStore) Snapshot(setNumber string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.sets[setNumber]
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (s *OwnedStore) setLocked(setNumber string) map[string]int {
	m, ok := s.sets[setNumber]
	if !ok {
		m = make(map[string]int)
		s.sets[setNumber] = m
	}
	return m
}
