package session

import (
	"sync"

	"checkout-service/internal/checkout"
	"github.com/google/uuid"
)

// Store holds the live checkout sessions of this process. Sessions are
// not persisted; a restart starts every visitor over.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*checkout.Checkout
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*checkout.Checkout)}
}

// Create registers a session and returns its fresh ID.
func (s *Store) Create(c *checkout.Checkout) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = c

	return id
}

func (s *Store) Get(id string) (*checkout.Checkout, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.sessions[id]
	return c, ok
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}
