// Package pubsub defines the transport capability that courier clients are
// built on: fire-and-forget publishes to named channels and glob-style
// pattern subscriptions. It also ships an in-memory implementation backed by
// watermill's GoChannel, which is what the tests and the demo run against.
//
// Anything that can publish bytes to a channel and deliver notifications for
// channels matching a pattern (where "*" matches any run of characters) can
// back a client: connection management, authentication and reconnection are
// the transport's own business.
package pubsub

import "context"

// Notification is one delivery from a pattern subscription: the pattern that
// matched, the concrete channel the message was published to, and the
// payload.
type Notification struct {
	Pattern string
	Channel string
	Payload []byte
}

// Transport is the capability courier consumes. Implementations must fan a
// published message out to every subscription whose pattern matches the
// channel.
type Transport interface {
	// Publish sends payload to the given channel. It must not block on
	// delivery to subscribers.
	Publish(ctx context.Context, channel string, payload []byte) error

	// SubscribePattern starts a pattern subscription. The returned channel
	// yields one Notification per matching publish and is closed when ctx is
	// canceled or the transport shuts down. Canceling ctx is how a caller
	// unsubscribes.
	SubscribePattern(ctx context.Context, pattern string) (<-chan Notification, error)

	// Close releases the transport's resources and ends all subscriptions.
	Close() error
}
