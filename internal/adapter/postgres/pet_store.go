package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	loadPetSQL = `SELECT state FROM pet_state WHERE key = $1`

	savePetSQL = `
INSERT INTO pet_state (key, state, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE
SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`
)

// PetStore keeps the pet as a JSONB row in pet_state, keyed by the configured pet key.
type PetStore struct {
	pool *pgxpool.Pool
	key  string
}

func NewPetStore(pool *pgxpool.Pool, key string) *PetStore {
	return &PetStore{pool: pool, key: key}
}

func (s *PetStore) Load(ctx context.Context) (domain.Pet, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, loadPetSQL, s.key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pet{}, domain.ErrPetNotFound
	}
	if err != nil {
		return domain.Pet{}, fmt.Errorf("failed to query pet: %w", err)
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
	if _, err := s.pool.Exec(ctx, savePetSQL, s.key, raw); err != nil {
		return fmt.Errorf("failed to upsert pet: %w", err)
	}
	return nil
}
