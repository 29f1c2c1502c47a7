package domain

import (
	"context"
)

// PetStore persists the single canonical pet record.
// Load returns ErrPetNotFound when no record has been written yet.
type PetStore interface {
	Load(ctx context.Context) (Pet, error)
	Save(ctx context.Context, pet Pet) error
}
