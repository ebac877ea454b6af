package domain

import "context"

// BusMessage is a single message received from a SignalBus subscription.
// Channel is the concrete channel the message arrived on, which matters
// for pattern subscriptions.
type BusMessage struct {
	Channel string
	Payload []byte
}

// SignalBus provides pub/sub messaging between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan BusMessage, error)
}

// Broadcaster delivers a batched payload to all live subscribers of a route,
// scoped to a single user.
type Broadcaster interface {
	Publish(ctx context.Context, route, userID string, payload []byte) error
}
