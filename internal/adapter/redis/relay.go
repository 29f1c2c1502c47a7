package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alessandrobessi/tamagotchi/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// SnapshotChannel is the Redis pub/sub channel carrying serialised snapshots.
const SnapshotChannel = "pet:snapshots"

// localFanout is the subset of broadcast.Hub the relay delivers to.
type localFanout interface {
	PublishPayload(ctx context.Context, payload []byte)
}

// Relay publishes snapshots through Redis so every instance's subscribers see
// them. Run delivers what arrives on the channel to the local hub, including
// this instance's own publishes.
type Relay struct {
	rdb     *goredis.Client
	local   localFanout
	channel string
}

var _ domain.SnapshotPublisher = (*Relay)(nil)

func NewRelay(rdb *goredis.Client, local localFanout) *Relay {
	return &Relay{rdb: rdb, local: local, channel: SnapshotChannel}
}

// Publish sends pet to the channel. When Redis is unreachable the snapshot is
// delivered to local subscribers directly so this instance still sees it.
func (r *Relay) Publish(ctx context.Context, pet domain.Pet) {
	payload, err := json.Marshal(pet)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode snapshot", "error", err)
		return
	}

	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		slog.WarnContext(ctx, "Relay publish failed, delivering locally", "error", fmt.Errorf("publish %s: %w", r.channel, err))
		r.local.PublishPayload(ctx, payload)
	}
}

// Run subscribes to the channel and forwards every message to the local hub.
// It blocks until ctx is cancelled or the subscription is closed.
func (r *Relay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return
			}
			r.deliver(ctx, msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) deliver(ctx context.Context, payload string) {
	if !json.Valid([]byte(payload)) {
		slog.Warn("Dropping malformed relay message", "channel", r.channel, "bytes", len(payload))
		return
	}
	r.local.PublishPayload(ctx, []byte(payload))
}
