package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alessandrobessi/tamagotchi/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// PetStore keeps the pet as a JSON string under a single key. The key has no
// TTL: a pet outlives any idle period.
type PetStore struct {
	rdb *goredis.Client
	key string
}

func NewPetStore(rdb *goredis.Client, key string) *PetStore {
	return &PetStore{rdb: rdb, key: key}
}

func (s *PetStore) Load(ctx context.Context) (domain.Pet, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Pet{}, domain.ErrPetNotFound
	}
	if err != nil {
		return domain.Pet{}, fmt.Errorf("failed to get pet: %w", err)
	}

	var pet domain.Pet
	if err := json.Unmarshal(raw, &pet); err != nil {
		return domain.Pet{}, fmt.Errorf("failed to decode pet: %w", err)
	}
	return pet, nil
}

func (s *PetStore) Save(ctx context.Context, pet domain.Pet) error {
	raw, err := json.Marshal(pet)
	if err != nil {
		return fmt.Errorf("failed to encode pet: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to set pet: %w", err)
	}
	return nil
}
