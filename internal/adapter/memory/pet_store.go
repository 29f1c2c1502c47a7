// Package memory provides the in-process pet store used for development and
// single-instance deployments.
package memory

import (
	"context"
	"sync"

	"github.com/alessandrobessi/tamagotchi/internal/domain"
)

// PetStore keeps the single pet record in memory. The record is lost on restart.
type PetStore struct {
	mu  sync.RWMutex
	pet *domain.Pet
}

func NewPetStore() *PetStore {
	return &PetStore{}
}

func (s *PetStore) Load(_ context.Context) (domain.Pet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pet == nil {
		return domain.Pet{}, domain.ErrPetNotFound
	}
	return *s.pet, nil
}

func (s *PetStore) Save(_ context.Context, pet domain.Pet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pet = &pet
	return nil
}
