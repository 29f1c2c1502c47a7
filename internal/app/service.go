package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/adapter/metrics"
	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	opState   = "state"
	opRebirth = "rebirth"

	resultOK   = "ok"
	resultDead = "dead"

	loadGroupKey = "pet"

	// loadTimeout bounds a shared load, which no single caller can cancel.
	loadTimeout = 10 * time.Second
)

// Service is the application layer. It is the only component that touches both
// the persistence gateway and the snapshot publisher.
type Service struct {
	store     domain.PetStore
	publisher domain.SnapshotPublisher
	clock     clockwork.Clock
	metrics   *metrics.PetMetrics

	// writeMu serialises mutations within this process so that
	// decay, delta, save and publish of one operation are never interleaved with another.
	writeMu   sync.Mutex
	loadGroup singleflight.Group
}

// NewService creates the application layer service. m may be nil.
func NewService(store domain.PetStore, publisher domain.SnapshotPublisher, clock clockwork.Clock, m *metrics.PetMetrics) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		clock:     clock,
		metrics:   m,
	}
}

// State returns the pet aged to now. current, when non-nil, is used instead of
// the persisted record. Nothing is saved or published.
func (s *Service) State(ctx context.Context, current *domain.Pet) domain.Pet {
	pet := s.resolve(ctx, current)
	if pet.IsAlive {
		pet = domain.ApplyDecay(pet, s.clock.Now()).Clamp()
	}
	s.observe(opState, resultOK, pet)
	return pet
}

// Feed restores hunger.
func (s *Service) Feed(ctx context.Context, current *domain.Pet) domain.Pet {
	return s.mutate(ctx, domain.ActionFeed, current)
}

// Play restores happiness at the cost of some hunger.
func (s *Service) Play(ctx context.Context, current *domain.Pet) domain.Pet {
	return s.mutate(ctx, domain.ActionPlay, current)
}

// Heal restores health.
func (s *Service) Heal(ctx context.Context, current *domain.Pet) domain.Pet {
	return s.mutate(ctx, domain.ActionHeal, current)
}

// Rebirth replaces whatever pet exists, dead or alive, with a fresh egg.
func (s *Service) Rebirth(ctx context.Context, name string) domain.Pet {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pet := domain.NewPet(name, s.clock.Now())
	s.save(ctx, pet)
	s.publisher.Publish(ctx, pet)

	slog.InfoContext(ctx, "Pet reborn", "name", pet.Name)
	s.observe(opRebirth, resultOK, pet)
	return pet
}

func (s *Service) mutate(ctx context.Context, action domain.Action, current *domain.Pet) domain.Pet {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	op := string(action)
	pet := s.resolve(ctx, current)
	if !pet.IsAlive {
		s.observe(op, resultDead, pet)
		return pet
	}

	now := s.clock.Now()
	pet = domain.ApplyDecay(pet, now).Clamp()
	if pet.IsAlive {
		pet = action.Apply(pet)
		pet.LastUpdate = max(pet.LastUpdate, now.UnixMilli())
	} else {
		// Decay killed it: persist the death, skip the action.
		slog.InfoContext(ctx, "Pet died", "name", pet.Name, "age_hours", pet.Age)
	}

	s.save(ctx, pet)
	s.publisher.Publish(ctx, pet)

	slog.DebugContext(ctx, "Pet updated",
		"operation", op,
		"hunger", pet.Hunger,
		"happiness", pet.Happiness,
		"health", pet.Health,
		"stage", pet.Stage,
	)

	result := resultOK
	if !pet.IsAlive {
		result = resultDead
	}
	s.observe(op, result, pet)
	return pet
}

// resolve returns the caller-held snapshot if there is one, else the persisted
// record, else a fresh pet. Concurrent loads share one store round trip, which
// is detached from the caller that started it so that caller's cancellation
// cannot fail the others.
func (s *Service) resolve(ctx context.Context, current *domain.Pet) domain.Pet {
	if current != nil {
		return *current
	}

	v, err, _ := s.loadGroup.Do(loadGroupKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.store.Load(loadCtx)
	})
	if err == nil {
		return v.(domain.Pet)
	}

	if errors.Is(err, domain.ErrPetNotFound) {
		slog.InfoContext(ctx, "No existing pet found, creating new pet")
	} else {
		slog.ErrorContext(ctx, "Failed to load pet, creating new pet", "error", err)
		s.recordStoreFailure("load")
	}
	return domain.NewPet(domain.DefaultPetName, s.clock.Now())
}

func (s *Service) save(ctx context.Context, pet domain.Pet) {
	if err := s.store.Save(ctx, pet); err != nil {
		slog.ErrorContext(ctx, "Failed to save pet", "name", pet.Name, "error", err)
		s.recordStoreFailure("save")
	}
}

func (s *Service) recordStoreFailure(direction string) {
	if s.metrics != nil {
		s.metrics.StoreFailures.WithLabelValues(direction).Inc()
	}
}

func (s *Service) observe(op, result string, pet domain.Pet) {
	if s.metrics == nil {
		return
	}
	s.metrics.Operations.WithLabelValues(op, result).Inc()
	s.metrics.Gauges.WithLabelValues("hunger").Set(pet.Hunger)
	s.metrics.Gauges.WithLabelValues("happiness").Set(pet.Happiness)
	s.metrics.Gauges.WithLabelValues("health").Set(pet.Health)
	s.metrics.Gauges.WithLabelValues("age_hours").Set(pet.Age)
	if pet.IsAlive {
		s.metrics.Alive.Set(1)
	} else {
		s.metrics.Alive.Set(0)
	}
}
