package domain

import (
	"context"
)

// SnapshotPublisher fans a pet snapshot out to every connected stream.
// Delivery is best effort; implementations never report per-subscriber failures.
type SnapshotPublisher interface {
	Publish(ctx context.Context, pet Pet)
}
