package redis

import (
	"context"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// Broadcaster implements domain.Broadcaster over the signal bus. Each
// (route, user) pair maps to its own Pub/Sub channel; the websocket hub
// pattern-subscribes to the route and fans payloads out to that user's
// live connections.
type Broadcaster struct {
	bus domain.SignalBus
}

// NewBroadcaster creates a Broadcaster over the given bus.
func NewBroadcaster(bus domain.SignalBus) *Broadcaster {
	return &Broadcaster{bus: bus}
}

// Publish delivers payload on the channel "<route>:<userID>".
func (b *Broadcaster) Publish(ctx context.Context, route, userID string, payload []byte) error {
	return b.bus.Publish(ctx, route+":"+userID, payload)
}

// Compile-time interface check.
var _ domain.Broadcaster = (*Broadcaster)(nil)
