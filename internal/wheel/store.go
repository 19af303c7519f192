package wheel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// RefValidator checks that function references resolve to registered actions.
type RefValidator interface {
	ValidateRefs(refs []string) error
}

// Store serves the active wheel catalogue. A reload that fails validation
// leaves the previous catalogue in place.
type Store struct {
	dir       string
	loader    *Loader
	validator RefValidator

	mu     sync.RWMutex
	wheels map[string]*Wheel
}

// NewStore creates an empty store reading from dir.
func NewStore(dir string, loader *Loader, validator RefValidator) *Store {
	return &Store{
		dir:       dir,
		loader:    loader,
		validator: validator,
		wheels:    make(map[string]*Wheel),
	}
}

// Reload re-reads the definitions directory and swaps the catalogue in.
func (s *Store) Reload() (int, error) {
	wheels, err := s.loader.LoadDir(s.dir)
	if err != nil {
		return 0, err
	}
	if err := s.Replace(wheels); err != nil {
		return 0, err
	}
	return len(wheels), nil
}

// Replace validates wheels and makes them the active catalogue.
func (s *Store) Replace(wheels map[string]*Wheel) error {
	if s.validator != nil {
		for _, w := range wheels {
			if err := s.validator.ValidateRefs(w.Refs()); err != nil {
				return fmt.Errorf("wheel %s: %w", w.Slug, err)
			}
		}
	}

	s.mu.Lock()
	s.wheels = wheels
	s.mu.Unlock()

	for _, w := range wheels {
		log.Info().
			Str("wheel", w.Slug).
			Str("version", w.Version).
			Int("sectors", len(w.Sectors)).
			Bool("ticket_only", w.TicketOnly).
			Msg("Wheel loaded")
	}
	return nil
}

// Get returns the active version of a wheel.
func (s *Store) Get(slug string) (*Wheel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wheels[NormalizeSlug(slug)]
	return w, ok
}

// List returns the active wheels ordered by slug.
func (s *Store) List() []*Wheel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Wheel, 0, len(s.wheels))
	for _, w := range s.wheels {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// TicketOnly reports whether slug exists and is gated by tickets.
func (s *Store) TicketOnly(slug string) (bool, bool) {
	w, ok := s.Get(slug)
	if !ok {
		return false, false
	}
	return true, w.TicketOnly
}
