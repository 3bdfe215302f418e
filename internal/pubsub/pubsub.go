// Package pubsub defines the cross-process broadcast channel used to fan
// out settings saves to every cooperating process.
package pubsub

import "context"

// Broadcaster delivers opaque payloads to every subscriber of a channel,
// including the publishing process itself. Delivery is best-effort and
// at-most-once; subscribers treat payloads as eventually-consistent state
// announcements, never as commands requiring acknowledgement.
type Broadcaster interface {
	// Publish sends payload to all current subscribers of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers handler for channel and returns immediately.
	// The handler runs until ctx is cancelled or the broadcaster closes.
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error

	Close() error
}
