package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/alessandrobessi/tamagotchi/internal/platform/correlation"
	"github.com/jonboulle/clockwork"
)

// stateReader is the subset of Service the ticker needs.
type stateReader interface {
	State(ctx context.Context, current *domain.Pet) domain.Pet
}

// audience reports how many streams are listening.
type audience interface {
	Count() int
}

// SnapshotTicker periodically republishes the decayed pet so that open streams
// watch the gauges drain even when nobody interacts. It never persists.
type SnapshotTicker struct {
	state     stateReader
	audience  audience
	publisher domain.SnapshotPublisher
	clock     clockwork.Clock
	interval  time.Duration
}

func NewSnapshotTicker(state stateReader, audience audience, publisher domain.SnapshotPublisher, clock clockwork.Clock, interval time.Duration) *SnapshotTicker {
	return &SnapshotTicker{
		state:     state,
		audience:  audience,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
	}
}

// Run starts the periodic refresh loop. It blocks until ctx is cancelled.
func (t *SnapshotTicker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.refresh(ctx)
		}
	}
}

func (t *SnapshotTicker) refresh(ctx context.Context) {
	if t.audience.Count() <= 0 {
		return
	}

	tickCtx := correlation.WithID(ctx, correlation.NewID())
	pet := t.state.State(tickCtx, nil)
	t.publisher.Publish(tickCtx, pet)

	slog.DebugContext(tickCtx, "Ticker: refreshed snapshot", "hunger", pet.Hunger, "happiness", pet.Happiness, "health", pet.Health, "alive", pet.IsAlive)
}
