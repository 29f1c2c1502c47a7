package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/adapter/metrics"
	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockStore struct {
	mu     sync.Mutex
	pet    *domain.Pet
	saves  []domain.Pet
	loads  atomic.Int32
	loadFn func(ctx context.Context) (domain.Pet, error)
	saveFn func(ctx context.Context, pet domain.Pet) error
}

func (m *mockStore) Load(ctx context.Context) (domain.Pet, error) {
	m.loads.Add(1)
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pet == nil {
		return domain.Pet{}, domain.ErrPetNotFound
	}
	return *m.pet, nil
}

func (m *mockStore) Save(ctx context.Context, pet domain.Pet) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, pet)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pet = &pet
	m.saves = append(m.saves, pet)
	return nil
}

func (m *mockStore) saved() []domain.Pet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Pet(nil), m.saves...)
}

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.Pet
}

func (m *mockPublisher) Publish(_ context.Context, pet domain.Pet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, pet)
}

func (m *mockPublisher) snapshots() []domain.Pet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Pet(nil), m.published...)
}

// --- Test helpers ---

var start = time.UnixMilli(1_700_000_000_000)

func newTestService(t *testing.T, store *mockStore) (*Service, *mockPublisher, *clockwork.FakeClock, *metrics.PetMetrics) {
	t.Helper()
	pub := &mockPublisher{}
	clock := clockwork.NewFakeClockAt(start)
	m := metrics.NewPetMetrics(prometheus.NewRegistry())
	return NewService(store, pub, clock, m), pub, clock, m
}

func storedPet(p domain.Pet) *mockStore {
	return &mockStore{pet: &p}
}

// --- Tests ---

func TestFeed_LoadsDecaysAndSaves(t *testing.T) {
	store := storedPet(domain.NewPet("Tama", start))
	svc, pub, clock, _ := newTestService(t, store)
	ctx := context.Background()

	clock.Advance(2 * time.Hour)
	got := svc.Feed(ctx, nil)

	assert.InDelta(t, 100.0, got.Hunger, 1e-9, "90 after decay, +20 capped at 100")
	assert.InDelta(t, 94.0, got.Happiness, 1e-9)
	assert.InDelta(t, 96.0, got.Health, 1e-9)
	assert.InDelta(t, 2.0, got.Age, 1e-9)
	assert.Equal(t, domain.StageBaby, got.Stage)
	assert.Equal(t, clock.Now().UnixMilli(), got.LastUpdate)

	require.Len(t, store.saved(), 1)
	assert.Equal(t, got, store.saved()[0])
	require.Len(t, pub.snapshots(), 1)
	assert.Equal(t, got, pub.snapshots()[0])
}

func TestPlay_AppliesDeltaAfterDecay(t *testing.T) {
	p := domain.NewPet("Tama", start)
	p.Hunger = 50
	p.Happiness = 50
	svc, _, clock, _ := newTestService(t, storedPet(p))

	clock.Advance(time.Hour)
	got := svc.Play(context.Background(), nil)

	assert.InDelta(t, 40.0, got.Hunger, 1e-9, "50 - 5 decay - 5 play")
	assert.InDelta(t, 62.0, got.Happiness, 1e-9, "50 - 3 decay + 15 play")
}

func TestHeal_CapsAtHundred(t *testing.T) {
	p := domain.NewPet("Tama", start)
	p.Health = 90
	svc, _, _, _ := newTestService(t, storedPet(p))

	got := svc.Heal(context.Background(), nil)
	assert.Equal(t, 100.0, got.Health)
}

func TestMutations_UseClientSnapshot(t *testing.T) {
	store := storedPet(domain.NewPet("Stored", start))
	svc, _, _, _ := newTestService(t, store)

	client := domain.NewPet("Client", start)
	client.Hunger = 10

	got := svc.Feed(context.Background(), &client)

	assert.Equal(t, "Client", got.Name)
	assert.Equal(t, 30.0, got.Hunger)
	assert.Equal(t, int32(0), store.loads.Load(), "client snapshot bypasses the store read")
	assert.Equal(t, 10.0, client.Hunger, "caller's snapshot is not aliased")
}

func TestMutations_DeadPetIsReadOnly(t *testing.T) {
	dead := domain.NewPet("Tama", start)
	dead.IsAlive = false
	dead.Health = 0
	dead.Hunger = 12
	store := storedPet(dead)
	svc, pub, clock, m := newTestService(t, store)
	ctx := context.Background()

	for range 3 {
		clock.Advance(10 * time.Hour)
		assert.Equal(t, dead, svc.Feed(ctx, nil))
		assert.Equal(t, dead, svc.Play(ctx, nil))
		assert.Equal(t, dead, svc.Heal(ctx, nil))
	}

	assert.Empty(t, store.saved())
	assert.Empty(t, pub.snapshots())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Operations.WithLabelValues("heal", "dead")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Alive))
}

func TestMutations_DeathByDecayIsPersistedWithoutAction(t *testing.T) {
	store := storedPet(domain.NewPet("Tama", start))
	svc, pub, clock, _ := newTestService(t, store)

	clock.Advance(300 * time.Hour)
	got := svc.Heal(context.Background(), nil)

	assert.False(t, got.IsAlive)
	assert.Equal(t, 0.0, got.Health, "heal does not revive")
	require.Len(t, store.saved(), 1)
	assert.False(t, store.saved()[0].IsAlive)
	require.Len(t, pub.snapshots(), 1)
}

func TestMutations_RapidCallsDoNotDoubleDecay(t *testing.T) {
	svc, _, clock, _ := newTestService(t, storedPet(domain.NewPet("Tama", start)))
	ctx := context.Background()

	first := svc.Heal(ctx, nil)
	clock.Advance(2 * time.Second)
	second := svc.Heal(ctx, nil)

	assert.Equal(t, first.Hunger, second.Hunger)
	assert.Equal(t, first.Happiness, second.Happiness)
}

func TestMutations_FutureClientTimestampNeverRewinds(t *testing.T) {
	svc, _, clock, _ := newTestService(t, &mockStore{})

	client := domain.NewPet("Tama", start)
	client.LastUpdate = clock.Now().Add(time.Hour).UnixMilli()

	got := svc.Feed(context.Background(), &client)
	assert.Equal(t, client.LastUpdate, got.LastUpdate)
}

func TestRebirth_ResetsRegardlessOfPriorState(t *testing.T) {
	dead := domain.NewPet("Old", start)
	dead.IsAlive = false
	dead.Health = 0
	store := storedPet(dead)
	svc, pub, clock, _ := newTestService(t, store)

	clock.Advance(time.Hour)
	got := svc.Rebirth(context.Background(), "X")

	assert.Equal(t, domain.Pet{
		Name:       "X",
		Hunger:     100,
		Happiness:  100,
		Health:     100,
		Age:        0,
		BirthTime:  clock.Now().UnixMilli(),
		Stage:      domain.StageEgg,
		IsAlive:    true,
		LastUpdate: clock.Now().UnixMilli(),
	}, got)
	assert.Equal(t, int32(0), store.loads.Load(), "rebirth never reads the old record")
	require.Len(t, store.saved(), 1)
	require.Len(t, pub.snapshots(), 1)
	assert.Equal(t, got, pub.snapshots()[0])
}

func TestRebirth_BlankNameDefaults(t *testing.T) {
	svc, _, _, _ := newTestService(t, &mockStore{})
	assert.Equal(t, domain.DefaultPetName, svc.Rebirth(context.Background(), "  ").Name)
}

func TestState_ProjectsDecayWithoutWriting(t *testing.T) {
	store := storedPet(domain.NewPet("Tama", start))
	svc, pub, clock, _ := newTestService(t, store)

	clock.Advance(4 * time.Hour)
	got := svc.State(context.Background(), nil)

	assert.InDelta(t, 80.0, got.Hunger, 1e-9)
	assert.Equal(t, domain.StageBaby, got.Stage)
	assert.Empty(t, store.saved())
	assert.Empty(t, pub.snapshots())
}

func TestState_LoadMissCreatesFreshPetWithoutSaving(t *testing.T) {
	store := &mockStore{}
	svc, _, clock, _ := newTestService(t, store)

	got := svc.State(context.Background(), nil)

	assert.Equal(t, domain.NewPet(domain.DefaultPetName, clock.Now()), got)
	assert.Empty(t, store.saved())
}

func TestLoadFailure_FallsBackToFreshPet(t *testing.T) {
	store := &mockStore{loadFn: func(context.Context) (domain.Pet, error) {
		return domain.Pet{}, errors.New("connection refused")
	}}
	svc, _, _, m := newTestService(t, store)

	got := svc.Feed(context.Background(), nil)

	assert.Equal(t, domain.DefaultPetName, got.Name)
	assert.True(t, got.IsAlive)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreFailures.WithLabelValues("load")))
}

func TestSaveFailure_IsSwallowed(t *testing.T) {
	store := &mockStore{saveFn: func(context.Context, domain.Pet) error {
		return errors.New("quota exceeded")
	}}
	svc, pub, _, m := newTestService(t, store)

	got := svc.Rebirth(context.Background(), "Tama")

	assert.Equal(t, "Tama", got.Name)
	require.Len(t, pub.snapshots(), 1, "publish still happens")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreFailures.WithLabelValues("save")))
}

func TestConcurrentMutations_AreSerialised(t *testing.T) {
	store := storedPet(domain.NewPet("Tama", start))
	store.pet.Hunger = 0
	svc, pub, _, _ := newTestService(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Feed(ctx, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100.0, store.pet.Hunger, "5 feeds of +20 each, none lost")
	assert.Len(t, pub.snapshots(), 5)
}

func TestService_NilMetrics(t *testing.T) {
	svc := NewService(&mockStore{}, &mockPublisher{}, clockwork.NewFakeClockAt(start), nil)
	assert.NotPanics(t, func() {
		svc.Feed(context.Background(), nil)
		svc.State(context.Background(), nil)
	})
}

func TestSharedLoad_SurvivesCancelledCaller(t *testing.T) {
	rex := domain.NewPet("Rex", start.Add(-100*time.Hour))
	rex.LastUpdate = start.UnixMilli()

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	store := &mockStore{}
	store.loadFn = func(ctx context.Context) (domain.Pet, error) {
		started <- struct{}{}
		select {
		case <-ctx.Done():
			return domain.Pet{}, ctx.Err()
		case <-release:
			return rex, nil
		}
	}
	svc, _, _, m := newTestService(t, store)

	readerCtx, cancelReader := context.WithCancel(context.Background())
	stateDone := make(chan domain.Pet, 1)
	go func() { stateDone <- svc.State(readerCtx, nil) }()
	<-started

	feedDone := make(chan domain.Pet, 1)
	go func() { feedDone <- svc.Feed(context.Background(), nil) }()
	time.Sleep(20 * time.Millisecond)

	cancelReader()
	time.Sleep(20 * time.Millisecond)
	close(release)

	fed := <-feedDone
	assert.Equal(t, "Rex", fed.Name)
	assert.Equal(t, rex.BirthTime, fed.BirthTime)
	assert.Equal(t, "Rex", (<-stateDone).Name)

	saved := store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "Rex", saved[0].Name)
	assert.Equal(t, rex.BirthTime, saved[0].BirthTime)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StoreFailures.WithLabelValues("load")))
}

func TestState_ClampsLiveClientSnapshot(t *testing.T) {
	svc, _, _, _ := newTestService(t, &mockStore{})

	p := domain.NewPet("Tama", start)
	p.Hunger = 500
	p.Happiness = -20
	got := svc.State(context.Background(), &p)

	assert.Equal(t, 100.0, got.Hunger)
	assert.Equal(t, 0.0, got.Happiness)
	assert.Equal(t, 100.0, got.Health)
}

func TestState_DeadClientSnapshotIsUnchanged(t *testing.T) {
	svc, _, clock, _ := newTestService(t, &mockStore{})
	clock.Advance(5 * time.Hour)

	p := domain.NewPet("Tama", start)
	p.IsAlive = false
	p.Health = 0
	p.Hunger = 500

	assert.Equal(t, p, svc.State(context.Background(), &p))
}

func TestFeed_ClampsOutOfRangeClientSnapshot(t *testing.T) {
	svc, _, _, _ := newTestService(t, &mockStore{})

	p := domain.NewPet("Tama", start)
	p.Happiness = 900
	got := svc.Feed(context.Background(), &p)

	assert.Equal(t, 100.0, got.Happiness)
	assert.Equal(t, 100.0, got.Hunger)
}
