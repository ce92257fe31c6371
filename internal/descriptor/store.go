package descriptor

import (
	"fmt"
)

// Entry is one stored descriptor, keyed by its candidate identifier
type Entry struct {
	ID     string    `json:"id"`
	Index  int       `json:"index"`
	Vector []float32 `json:"vector"`
}

// Store is an insertion-ordered descriptor batch. Every vector in a store
// shares the dimensionality of the first one added.
type Store struct {
	dim     int
	entries []Entry
	byID    map[string]int
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{byID: make(map[string]int)}
}

// Put adds a descriptor. The vector is copied.
func (s *Store) Put(id string, index int, vec []float32) error {
	if len(vec) == 0 {
		return &InvalidDescriptorError{ID: id}
	}
	if s.dim != 0 && len(vec) != s.dim {
		return &InvalidDescriptorError{ID: id, Want: s.dim, Got: len(vec)}
	}
	if _, ok := s.byID[id]; ok {
		return fmt.Errorf("duplicate descriptor id %q", id)
	}

	cp := make([]float32, len(vec))
	copy(cp, vec)

	s.dim = len(vec)
	s.byID[id] = len(s.entries)
	s.entries = append(s.entries, Entry{ID: id, Index: index, Vector: cp})
	return nil
}

// Get returns the descriptor stored for id
func (s *Store) Get(id string) ([]float32, error) {
	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.entries[i].Vector, nil
}

func (s *Store) Len() int {
	return len(s.entries)
}

// Dim returns the shared dimensionality, or 0 for an empty store
func (s *Store) Dim() int {
	return s.dim
}

// Entries returns the stored descriptors in insertion order
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// FromEntries rebuilds a store, validating every entry
func FromEntries(entries []Entry) (*Store, error) {
	s := NewStore()
	for _, e := range entries {
		if err := s.Put(e.ID, e.Index, e.Vector); err != nil {
			return nil, err
		}
	}
	return s, nil
}
