// Package breaker wraps a pet store in a circuit breaker so a failing backend
// is given time to recover instead of being hit on every request.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/adapter/metrics"
	"github.com/alessandrobessi/tamagotchi/internal/domain"
	apperrors "github.com/alessandrobessi/tamagotchi/internal/platform/errors"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

// ErrOpen is returned without touching the backend while the circuit is open.
var ErrOpen = circuitbreaker.ErrOpen

// Settings mirror the defaults used for every backend.
type Settings struct {
	FailureRate      uint
	MinExecutions    uint
	FailureWindow    time.Duration
	OpenDelay        time.Duration
	SuccessThreshold uint
}

// DefaultSettings opens at 60% failures over at least 5 calls in 10s and
// probes again after 30s.
var DefaultSettings = Settings{
	FailureRate:      60,
	MinExecutions:    5,
	FailureWindow:    10 * time.Second,
	OpenDelay:        30 * time.Second,
	SuccessThreshold: 1,
}

// Store decorates a domain.PetStore. ErrPetNotFound and any error listed as
// benign count as successes: they say nothing about backend health.
type Store struct {
	inner   domain.PetStore
	cb      circuitbreaker.CircuitBreaker[any]
	metrics *metrics.BreakerMetrics
	benign  []error
}

var _ domain.PetStore = (*Store)(nil)

// New wraps inner. m may be nil.
func New(inner domain.PetStore, settings Settings, m *metrics.BreakerMetrics, benign ...error) *Store {
	s := &Store{
		inner:   inner,
		metrics: m,
		benign:  append([]error{domain.ErrPetNotFound}, benign...),
	}
	s.cb = circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(settings.FailureRate, settings.MinExecutions, settings.FailureWindow).
		WithDelay(settings.OpenDelay).
		WithSuccessThreshold(settings.SuccessThreshold).
		OnStateChanged(s.onStateChanged).
		Build()
	return s
}

func (s *Store) onStateChanged(e circuitbreaker.StateChangedEvent) {
	slog.Warn("Circuit breaker state changed",
		"component", "pet_store",
		"from", e.OldState.String(),
		"to", e.NewState.String(),
	)
	if s.metrics != nil {
		s.metrics.StateChanges.WithLabelValues(e.NewState.String()).Inc()
		s.metrics.State.Set(stateToFloat(e.NewState))
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (s *Store) Load(ctx context.Context) (domain.Pet, error) {
	if err := s.acquire("load"); err != nil {
		return domain.Pet{}, err
	}
	pet, err := s.inner.Load(ctx)
	s.record(err)
	return pet, err
}

func (s *Store) Save(ctx context.Context, pet domain.Pet) error {
	if err := s.acquire("save"); err != nil {
		return err
	}
	err := s.inner.Save(ctx, pet)
	s.record(err)
	return err
}

// State exposes the breaker state for readiness checks.
func (s *Store) State() circuitbreaker.State {
	return s.cb.State()
}

func (s *Store) acquire(op string) error {
	if s.cb.TryAcquirePermit() {
		return nil
	}
	if s.metrics != nil {
		s.metrics.Rejected.Inc()
	}
	return apperrors.UnavailableError("pet store circuit open", fmt.Errorf("%s: %w", op, ErrOpen))
}

func (s *Store) record(err error) {
	if err == nil || s.isBenign(err) {
		s.cb.RecordSuccess()
		return
	}
	s.cb.RecordError(err)
}

func (s *Store) isBenign(err error) bool {
	for _, b := range s.benign {
		if errors.Is(err, b) {
			return true
		}
	}
	return false
}
