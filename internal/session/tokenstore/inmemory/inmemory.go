package inmemory

import (
	"context"
	"sync"

	"github.com/mohammad-safakhou/bulkcart/internal/session/models"
)

// Store holds the token for the lifetime of the process only.
type Store struct {
	mu  sync.RWMutex
	tok *models.Token
}

func NewInMemoryTokenStore() *Store {
	return &Store{}
}

func (s *Store) Load(ctx context.Context) (models.Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil {
		return models.Token{}, false, ctx.Err()
	}
	return *s.tok, true, ctx.Err()
}

func (s *Store) Save(ctx context.Context, tok models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = &tok
	return ctx.Err()
}

func (s *Store) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	return ctx.Err()
}
