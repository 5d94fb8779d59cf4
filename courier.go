// Package courier is a peer-addressing and request/response layer on top of
// a pattern-based pub/sub transport. A Client owns an identity inside a
// namespace and can send point-to-point messages (optionally awaiting a
// correlated reply), fire namespace-wide broadcasts, and exchange messages in
// named rooms that peers opt in and out of.
//
// The transport is pluggable: anything implementing pubsub.Transport works.
// pubsub.NewGoChannelTransport provides an in-process implementation.
package courier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/courier/internal/address"
	"github.com/nfrund/courier/internal/correlation"
	"github.com/nfrund/courier/pubsub"
)

// Callback receives the outcome of a correlated SendMessage: a reply
// (nil error, sender and payload set) or ErrTimeout/ErrClosed with no
// payload. It is invoked exactly once.
type Callback = correlation.Callback

// Reply is the capability handed to message handlers for answering a direct
// message. It is bound to the original sender and correlation id at dispatch
// time and is meaningful to use once; the peer's correlation entry is gone
// after the first response arrives.
type Reply struct {
	client        *Client
	recipient     string
	correlationID uint64
}

// Send publishes a response back to the message's sender. An empty payload
// sends nothing, which is how a handler declines to reply.
func (r Reply) Send(payload []byte) error {
	if len(payload) == 0 || r.client == nil {
		return nil
	}
	return r.client.sendResponse(r.recipient, r.correlationID, payload)
}

// roomState tracks one room's live transport subscription.
type roomState struct {
	cancel context.CancelFunc
}

// Client is one addressable peer on the transport. Create it with New and
// release it with Close.
type Client struct {
	namespace string
	id        string
	opts      Options

	transport pubsub.Transport
	table     *correlation.Table
	handlers  *handlerRegistry
	logger    *slog.Logger

	directPattern    string
	broadcastPattern string
	roomPrefix       string

	// notifications funnels every subscription into the single dispatch
	// goroutine, so classification and handler invocation for one incoming
	// message always run to completion before the next is taken.
	notifications chan pubsub.Notification

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	nextCorrelation uint64
	rooms           map[string]*roomState
	closed          bool
}

// New creates a client, subscribes its direct and broadcast patterns on the
// transport, and starts its dispatch loop. The caller retains ownership of
// the transport; Close does not close it, so several clients can share one.
func New(transport pubsub.Transport, opts Options) (*Client, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		namespace:        opts.Namespace,
		id:               opts.ClientID,
		opts:             opts,
		transport:        transport,
		table:            correlation.NewTable(opts.Logger),
		handlers:         newHandlerRegistry(),
		logger:           opts.Logger.With("component", "courier", "client_id", opts.ClientID),
		directPattern:    address.DirectPattern(opts.Namespace, opts.ClientID),
		broadcastPattern: address.BroadcastPattern(opts.Namespace),
		roomPrefix:       address.RoomPatternPrefix(opts.Namespace),
		notifications:    make(chan pubsub.Notification, 64),
		ctx:              ctx,
		cancel:           cancel,
		rooms:            make(map[string]*roomState),
	}

	for _, pattern := range []string{c.directPattern, c.broadcastPattern} {
		sub, err := transport.SubscribePattern(ctx, pattern)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("courier: subscribe %q: %w", pattern, err)
		}
		c.wg.Add(1)
		go c.pump(sub)
	}

	c.wg.Add(1)
	go c.dispatchLoop()

	c.logger.Debug("client ready", "namespace", c.namespace)
	return c, nil
}

// ID returns the client's identity within its namespace.
func (c *Client) ID() string { return c.id }

// Namespace returns the client's isolation domain.
func (c *Client) Namespace() string { return c.namespace }

// SendMessage publishes a direct message to recipient. When cb is non-nil a
// correlation entry is registered first, and cb is later invoked exactly once
// with the reply, ErrTimeout, or ErrClosed. A nil cb is fire-and-forget: no
// entry, no timer.
func (c *Client) SendMessage(recipient string, payload []byte, cb Callback) error {
	id, err := c.nextID()
	if err != nil {
		return err
	}

	if cb != nil {
		c.table.Register(id, cb, c.opts.MessageTimeout)
	}

	channel := address.EncodeDirect(c.namespace, recipient, c.id, id, false)
	if err := c.transport.Publish(c.ctx, channel, payload); err != nil {
		if c.opts.SurfaceTransportErrors {
			// Take the entry back out so no timer fires for a message that
			// never left.
			if cb != nil {
				c.table.Remove(id)
			}
			return fmt.Errorf("courier: publish direct message: %w", err)
		}
		// Suppressed: the pending entry, if any, times out normally.
		c.logger.Error("transport publish failed", "channel", channel, "error", err)
	}
	return nil
}

// Broadcast publishes a fire-and-forget announcement to every listener in
// the namespace, tagged with kind.
func (c *Client) Broadcast(kind string, payload []byte) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.publish(address.EncodeBroadcast(c.namespace, kind, c.id), payload)
}

// SendRoomMessage publishes a fire-and-forget message to every client
// listening to the room.
func (c *Client) SendRoomMessage(room string, payload []byte) error {
	id, err := c.nextID()
	if err != nil {
		return err
	}
	return c.publish(address.EncodeRoom(c.namespace, room, c.id, id), payload)
}

// OnMessage registers a handler for direct messages. The returned func
// removes it again.
func (c *Client) OnMessage(h MessageHandler) (remove func()) {
	id := c.handlers.addMessage(h)
	return func() { c.handlers.removeMessage(id) }
}

// OnBroadcast registers a handler for namespace broadcasts. The returned
// func removes it again.
func (c *Client) OnBroadcast(h BroadcastHandler) (remove func()) {
	id := c.handlers.addBroadcast(h)
	return func() { c.handlers.removeBroadcast(id) }
}

// ListenToRoom registers a handler for a room's messages, subscribing to the
// room's pattern on first use. The returned func removes the handler and
// drops the subscription when it was the last one.
func (c *Client) ListenToRoom(room string, h RoomHandler) (remove func(), err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}

	if _, subscribed := c.rooms[room]; !subscribed {
		roomCtx, roomCancel := context.WithCancel(c.ctx)
		sub, err := c.transport.SubscribePattern(roomCtx, address.RoomPattern(c.namespace, room))
		if err != nil {
			roomCancel()
			c.mu.Unlock()
			return nil, fmt.Errorf("courier: subscribe room %q: %w", room, err)
		}
		c.rooms[room] = &roomState{cancel: roomCancel}
		c.wg.Add(1)
		go c.pump(sub)
		c.logger.Debug("joined room", "room", room)
	}
	c.mu.Unlock()

	id := c.handlers.addRoom(room, h)
	return func() {
		if c.handlers.removeRoom(room, id) == 0 {
			c.unsubscribeRoom(room)
		}
	}, nil
}

// IgnoreRoom removes every handler for the room and drops its subscription.
func (c *Client) IgnoreRoom(room string) {
	c.handlers.dropRoom(room)
	c.unsubscribeRoom(room)
}

// Close shuts the client down: it cancels every subscription, waits for the
// dispatch loop to drain, then fails all pending correlation entries with
// ErrClosed. After Close returns, no handler or callback runs again and no
// timers are live. Close is idempotent and does not close the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.table.ExpireAll(ErrClosed)

	c.logger.Debug("client closed")
	return nil
}

// sendResponse routes a reply back to the sender of a direct message, on the
// response leg of the original correlation id.
func (c *Client) sendResponse(recipient string, correlationID uint64, payload []byte) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.publish(address.EncodeDirect(c.namespace, recipient, c.id, correlationID, true), payload)
}

// publish sends to the transport, applying the configured error policy for
// sends that carry no correlation entry.
func (c *Client) publish(channel string, payload []byte) error {
	err := c.transport.Publish(c.ctx, channel, payload)
	if err == nil {
		return nil
	}
	if c.opts.SurfaceTransportErrors {
		return fmt.Errorf("courier: publish: %w", err)
	}
	c.logger.Error("transport publish failed", "channel", channel, "error", err)
	return nil
}

// nextID hands out the next correlation id. Ids start at 1, never repeat for
// the life of the client, and are scoped to it; the channel name also carries
// the sender, so ids cannot collide across clients.
func (c *Client) nextID() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClientClosed
	}
	c.nextCorrelation++
	return c.nextCorrelation, nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) unsubscribeRoom(room string) {
	c.mu.Lock()
	state, ok := c.rooms[room]
	if ok {
		delete(c.rooms, room)
	}
	c.mu.Unlock()

	if ok {
		state.cancel()
		c.logger.Debug("left room", "room", room)
	}
}

// pump forwards one subscription's notifications into the dispatch funnel.
// It exits when the subscription's channel closes (context cancellation or
// transport shutdown).
func (c *Client) pump(sub <-chan pubsub.Notification) {
	defer c.wg.Done()
	for n := range sub {
		select {
		case c.notifications <- n:
		case <-c.ctx.Done():
			return
		}
	}
}
