package courier

import (
	"strings"

	"github.com/nfrund/courier/internal/address"
	"github.com/nfrund/courier/pubsub"
)

// dispatchLoop is the client's single event-processing goroutine. Every
// notification from every subscription passes through here, one at a time.
func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case n := <-c.notifications:
			c.dispatch(n)
		}
	}
}

// dispatch classifies a notification by the pattern that matched it and
// routes it. Precedence: broadcast, then room, then direct. Anything else is
// dropped; on a shared transport, near-miss channels from other namespaces
// are routine, not errors.
func (c *Client) dispatch(n pubsub.Notification) {
	switch {
	case n.Pattern == c.broadcastPattern:
		c.dispatchBroadcast(n)
	case strings.HasPrefix(n.Pattern, c.roomPrefix):
		c.dispatchRoom(n)
	case n.Pattern == c.directPattern:
		c.dispatchDirect(n)
	default:
		c.logger.Debug("dropping notification from unknown subscription", "pattern", n.Pattern)
	}
}

func (c *Client) dispatchBroadcast(n pubsub.Notification) {
	// Skip decode work entirely when nobody is listening.
	if !c.handlers.hasBroadcast() {
		return
	}
	b, err := address.DecodeBroadcast(n.Channel)
	if err != nil {
		c.logger.Debug("dropping malformed broadcast channel", "channel", n.Channel)
		return
	}
	if b.Namespace != c.namespace {
		return
	}
	c.handlers.emitBroadcast(b.Kind, b.Sender, n.Payload)
}

func (c *Client) dispatchRoom(n pubsub.Notification) {
	r, err := address.DecodeRoom(n.Channel)
	if err != nil {
		c.logger.Debug("dropping malformed room channel", "channel", n.Channel)
		return
	}
	if r.Namespace != c.namespace {
		return
	}
	c.handlers.emitRoom(r.Room, r.Sender, n.Payload)
}

func (c *Client) dispatchDirect(n pubsub.Notification) {
	d, err := address.DecodeDirect(n.Channel)
	if err != nil {
		c.logger.Debug("dropping malformed direct channel", "channel", n.Channel)
		return
	}
	// The pattern subscription should already guarantee both of these, but
	// pattern matching is string-based, so the decoded fields are
	// re-verified.
	if d.Namespace != c.namespace || d.Recipient != c.id {
		return
	}

	if d.Response {
		if !c.table.Resolve(d.CorrelationID, d.Sender, n.Payload) {
			// Late, duplicate, or never-sent: dropped by design.
			c.logger.Debug("dropping unmatched response",
				"correlation_id", d.CorrelationID,
				"sender", d.Sender)
		}
		return
	}

	if !c.handlers.hasMessage() {
		return
	}
	reply := Reply{client: c, recipient: d.Sender, correlationID: d.CorrelationID}
	c.handlers.emitMessage(d.Sender, n.Payload, reply)
}
