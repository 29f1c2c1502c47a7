// Package broadcast implements the snapshot fan-out hub using the actor pattern.
//
// A single goroutine owns the subscriber set and serves register, unregister, publish and count
// commands from a channel (no mutexes). Delivery is a non-blocking send into each subscriber's
// buffer; a subscriber whose buffer is full is evicted and its channel closed, so one stalled
// stream can never hold up the others.
package broadcast
