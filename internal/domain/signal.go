package domain

import "context"

// SignalBus delivers staking lifecycle events (position opened/closed, token
// registered) to interested subscribers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel of raw payloads. The subscription ends and
	// the channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
