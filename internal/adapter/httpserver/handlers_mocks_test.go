package httpserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/broadcast"
	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/alessandrobessi/tamagotchi/internal/platform/config"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Mock implementations ---

type mockPetService struct {
	stateFn   func(ctx context.Context, current *domain.Pet) domain.Pet
	feedFn    func(ctx context.Context, current *domain.Pet) domain.Pet
	playFn    func(ctx context.Context, current *domain.Pet) domain.Pet
	healFn    func(ctx context.Context, current *domain.Pet) domain.Pet
	rebirthFn func(ctx context.Context, name string) domain.Pet

	mu       sync.Mutex
	received []*domain.Pet
}

func (m *mockPetService) record(current *domain.Pet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, current)
}

func (m *mockPetService) lastReceived() *domain.Pet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.received) == 0 {
		return nil
	}
	return m.received[len(m.received)-1]
}

func (m *mockPetService) State(ctx context.Context, current *domain.Pet) domain.Pet {
	m.record(current)
	if m.stateFn != nil {
		return m.stateFn(ctx, current)
	}
	return testPet()
}

func (m *mockPetService) Feed(ctx context.Context, current *domain.Pet) domain.Pet {
	m.record(current)
	if m.feedFn != nil {
		return m.feedFn(ctx, current)
	}
	return testPet()
}

func (m *mockPetService) Play(ctx context.Context, current *domain.Pet) domain.Pet {
	m.record(current)
	if m.playFn != nil {
		return m.playFn(ctx, current)
	}
	return testPet()
}

func (m *mockPetService) Heal(ctx context.Context, current *domain.Pet) domain.Pet {
	m.record(current)
	if m.healFn != nil {
		return m.healFn(ctx, current)
	}
	return testPet()
}

func (m *mockPetService) Rebirth(ctx context.Context, name string) domain.Pet {
	if m.rebirthFn != nil {
		return m.rebirthFn(ctx, name)
	}
	return domain.NewPet(name, time.UnixMilli(testBirthMs))
}

// --- Test helpers ---

const testBirthMs int64 = 1_700_000_000_000

func testPet() domain.Pet {
	return domain.NewPet("Tama", time.UnixMilli(testBirthMs))
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:             "development",
		Port:               "8080",
		StoreBackend:       config.BackendMemory,
		PetKey:             "pet",
		SubscriberBuffer:   broadcast.DefaultBufferSize,
		SSEKeepalive:       15 * time.Second,
		RateLimitPerSecond: 100,
		RateLimitBurst:     100,
	}
}

type testServer struct {
	*Server
	hub      *broadcast.Hub
	clock    *clockwork.FakeClock
	registry *prometheus.Registry
}

type testOption func(*config.Config, *[]HealthCheck)

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(_ *config.Config, hc *[]HealthCheck) {
		*hc = append(*hc, checks...)
	}
}

func withConfig(mutate func(*config.Config)) testOption {
	return func(cfg *config.Config, _ *[]HealthCheck) {
		mutate(cfg)
	}
}

// newTestServer wires a Server to app and a real hub. The server clock starts
// at wall time so connection deadlines derived from it stay in the future.
func newTestServer(t *testing.T, app petService, opts ...testOption) *testServer {
	t.Helper()

	cfg := testConfig()
	var checks []HealthCheck
	for _, opt := range opts {
		opt(cfg, &checks)
	}

	hub := broadcast.NewHub(clockwork.NewFakeClock(), cfg.SubscriberBuffer, nil)
	t.Cleanup(hub.Stop)

	clock := clockwork.NewFakeClockAt(time.Now())
	reg := prometheus.NewRegistry()

	return &testServer{
		Server:   NewServer(cfg, app, hub, clock, reg, checks),
		hub:      hub,
		clock:    clock,
		registry: reg,
	}
}
