// Package sqlite holds a file-backed pet store on the pure-Go SQLite driver,
// for single-instance deployments that want persistence without a server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pet_state (
	key        TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

const (
	loadPetSQL = `SELECT state FROM pet_state WHERE key = ?`

	savePetSQL = `
INSERT INTO pet_state (key, state, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`
)

// Open creates the parent directory if needed, opens the database and ensures
// the schema exists.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// PetStore keeps the pet as a JSON text row keyed by the configured pet key.
type PetStore struct {
	db  *sql.DB
	key string
}

func NewPetStore(db *sql.DB, key string) *PetStore {
	return &PetStore{db: db, key: key}
}

func (s *PetStore) Load(ctx context.Context) (domain.Pet, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, loadPetSQL, s.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Pet{}, domain.ErrPetNotFound
	}
	if err != nil {
		return domain.Pet{}, fmt.Errorf("failed to query pet: %w", err)
	}

	var pet domain.Pet
	if err := json.Unmarshal([]byte(raw), &pet); err != nil {
		return domain.Pet{}, fmt.Errorf("failed to decode pet: %w", err)
	}
	return pet, nil
}

func (s *PetStore) Save(ctx context.Context, pet domain.Pet) error {
	raw, err := json.Marshal(pet)
	if err != nil {
		return fmt.Errorf("failed to encode pet: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, savePetSQL, s.key, string(raw), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to upsert pet: %w", err)
	}
	return nil
}
