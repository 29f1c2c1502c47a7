package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/adapter/metrics"
	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	commandTimeout      = 5 * time.Second
	stopTimeout         = 10 * time.Second
	commandChannelSize  = 256
	commandDepthWarning = 200 // 80% of commandChannelSize
	DefaultBufferSize   = 16
)

var ErrHubStopped = errors.New("broadcast hub stopped")

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	subscriber *Subscriber
	reply      chan struct{}
}

type unregisterCmd struct {
	baseHubCmd
	subscriber *Subscriber
}

type publishCmd struct {
	baseHubCmd
	payload []byte
}

type countCmd struct {
	baseHubCmd
	reply chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub fans serialized pet snapshots out to every registered subscriber.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	subscribers map[*Subscriber]struct{}
	bufferSize  int
	metrics     *metrics.BroadcastMetrics
	done        chan struct{}
	stopTimeout time.Duration
}

// NewHub starts the hub actor. bufferSize is the per-subscriber backlog before
// a subscriber counts as stalled and is evicted. m may be nil.
func NewHub(clock clockwork.Clock, bufferSize int, m *metrics.BroadcastMetrics) *Hub {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	h := &Hub{
		cmdCh:       make(chan hubCmd, commandChannelSize),
		clock:       clock,
		subscribers: make(map[*Subscriber]struct{}),
		bufferSize:  bufferSize,
		metrics:     m,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go h.run()
	return h
}

// Subscribe registers a new subscriber and returns it.
func (h *Hub) Subscribe() (*Subscriber, error) {
	sub := newSubscriber(h.bufferSize)
	reply := make(chan struct{}, 1)
	if !h.send(context.Background(), registerCmd{subscriber: sub, reply: reply}) {
		return nil, ErrHubStopped
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case <-reply:
		return sub, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-timer.Chan():
		return nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes sub. Unknown or already evicted subscribers are ignored.
func (h *Hub) Unregister(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.send(context.Background(), unregisterCmd{subscriber: sub})
}

// Publish serializes pet once and hands it to every subscriber.
func (h *Hub) Publish(ctx context.Context, pet domain.Pet) {
	data, err := json.Marshal(pet)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal pet snapshot", "error", err)
		return
	}
	h.PublishPayload(ctx, data)
}

// PublishPayload hands an already serialized snapshot to every subscriber.
func (h *Hub) PublishPayload(ctx context.Context, payload []byte) {
	if !h.send(ctx, publishCmd{payload: payload}) {
		slog.DebugContext(ctx, "Snapshot dropped, hub not accepting commands")
	}
}

// Count returns the number of registered subscribers, or -1 if the hub does not answer.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	if !h.send(context.Background(), countCmd{reply: reply}) {
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-reply:
		return n
	case <-h.done:
		return 0
	case <-timer.Chan():
		slog.Warn("Count timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every subscriber and shuts the actor down.
// Blocks until the actor goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	if !h.send(context.Background(), stopCmd{}) {
		return
	}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Broadcast hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcast hub stop timeout exceeded", "timeout", h.stopTimeout)
	}
}

func (h *Hub) send(ctx context.Context, cmd hubCmd) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcast hub panic recovered", "panic", r)
			h.closeAll()
		}
	}()

	depthTicker := h.clock.NewTicker(time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			if h.metrics != nil {
				h.metrics.CommandQueueDepth.Set(float64(depth))
			}
			if depth > commandDepthWarning {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.remove(c.subscriber)
			case publishCmd:
				h.handlePublish(c)
			case countCmd:
				c.reply <- len(h.subscribers)
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Broadcast hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	h.subscribers[c.subscriber] = struct{}{}
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Set(float64(len(h.subscribers)))
	}
	slog.Debug("Subscriber registered", "subscriber_id", c.subscriber.id.String(), "total_subscribers", len(h.subscribers))
	c.reply <- struct{}{}
}

func (h *Hub) handlePublish(c publishCmd) {
	var stalled []*Subscriber
	for sub := range h.subscribers {
		select {
		case sub.messages <- c.payload:
		default:
			stalled = append(stalled, sub)
		}
	}

	for _, sub := range stalled {
		slog.Warn("Evicting stalled subscriber", "subscriber_id", sub.id.String())
		if h.metrics != nil {
			h.metrics.SubscribersEvicted.Inc()
		}
		h.remove(sub)
	}

	if h.metrics != nil {
		h.metrics.SnapshotsPublished.Inc()
	}
}

func (h *Hub) remove(sub *Subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.messages)

	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Set(float64(len(h.subscribers)))
	}
	slog.Debug("Subscriber unregistered", "subscriber_id", sub.id.String(), "remaining_subscribers", len(h.subscribers))
}

func (h *Hub) handleStop() {
	total := len(h.subscribers)
	slog.Info("Broadcast hub shutting down", "subscribers", total)
	h.closeAll()
	slog.Info("Broadcast hub shutdown complete", "disconnected_subscribers", total)
}

// closeAll drops every subscriber. Used during panic recovery and graceful shutdown.
func (h *Hub) closeAll() {
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.messages)
	}
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Set(0)
	}
}
