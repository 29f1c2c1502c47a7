package broadcast

import (
	"github.com/google/uuid"
)

// Subscriber is one connected stream. The hub owns the channel and closes it
// when the subscriber is unregistered or evicted.
type Subscriber struct {
	id       uuid.UUID
	messages chan []byte
}

func newSubscriber(bufferSize int) *Subscriber {
	return &Subscriber{
		id:       uuid.New(),
		messages: make(chan []byte, bufferSize),
	}
}

// ID identifies the subscriber in logs.
func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// Messages yields serialized snapshots. It is closed once the hub drops the subscriber.
func (s *Subscriber) Messages() <-chan []byte {
	return s.messages
}
