package courier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/courier/pubsub"
)

// mockTransport records publishes and hands out idle subscriptions, so tests
// can drive the dispatcher directly with fabricated notifications.
type mockTransport struct {
	mu         sync.Mutex
	published  map[string][]byte
	publishErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{published: make(map[string][]byte)}
}

func (m *mockTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published[channel] = payload
	return nil
}

func (m *mockTransport) SubscribePattern(ctx context.Context, pattern string) (<-chan pubsub.Notification, error) {
	ch := make(chan pubsub.Notification)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) get(channel string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.published[channel]
	return payload, ok
}

func (m *mockTransport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func newDispatchClient(t *testing.T, transport pubsub.Transport) *Client {
	t.Helper()
	c, err := New(transport, Options{
		Namespace:      "ns",
		ClientID:       "me",
		MessageTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDispatchMalformedChannelsAreDropped(t *testing.T) {
	transport := newMockTransport()
	c := newDispatchClient(t, transport)

	received := make(chan string, 1)
	c.OnMessage(func(sender string, payload []byte, reply Reply) {
		received <- sender
	})
	c.OnBroadcast(func(kind, sender string, payload []byte) {
		received <- sender
	})

	// Too few fields, bad correlation id, broadcast with missing fields.
	c.dispatch(pubsub.Notification{Pattern: c.directPattern, Channel: "ns:me", Payload: []byte("x")})
	c.dispatch(pubsub.Notification{Pattern: c.directPattern, Channel: "ns:me:you:nan", Payload: []byte("x")})
	c.dispatch(pubsub.Notification{Pattern: c.broadcastPattern, Channel: "ns::orphan", Payload: []byte("x")})

	select {
	case sender := <-received:
		t.Fatalf("malformed channel reached a handler (sender %q)", sender)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchForeignNamespaceIsDropped(t *testing.T) {
	transport := newMockTransport()
	c := newDispatchClient(t, transport)

	received := make(chan struct{}, 1)
	c.OnMessage(func(sender string, payload []byte, reply Reply) {
		received <- struct{}{}
	})

	// Shape is valid but the namespace is someone else's.
	c.dispatch(pubsub.Notification{
		Pattern: c.directPattern,
		Channel: "elsewhere:me:you:1",
		Payload: []byte("x"),
	})

	select {
	case <-received:
		t.Fatal("foreign-namespace message reached a handler")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchWrongRecipientIsDropped(t *testing.T) {
	transport := newMockTransport()
	c := newDispatchClient(t, transport)

	received := make(chan struct{}, 1)
	c.OnMessage(func(sender string, payload []byte, reply Reply) {
		received <- struct{}{}
	})

	c.dispatch(pubsub.Notification{
		Pattern: c.directPattern,
		Channel: "ns:someone-else:you:1",
		Payload: []byte("x"),
	})

	select {
	case <-received:
		t.Fatal("message for another recipient reached a handler")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchUnmatchedResponseIsDropped(t *testing.T) {
	transport := newMockTransport()
	c := newDispatchClient(t, transport)

	// No correlation entry for id 42; a response for it is a silent no-op.
	c.dispatch(pubsub.Notification{
		Pattern: c.directPattern,
		Channel: "ns:me:you:42:r",
		Payload: []byte("late"),
	})

	assert.Equal(t, 0, c.table.Len())
}

func TestDispatchResponseResolvesPendingEntry(t *testing.T) {
	transport := newMockTransport()
	c := newDispatchClient(t, transport)

	results := make(chan outcome, 1)
	require.NoError(t, c.SendMessage("you", []byte("ping"), collect(results)))
	require.Equal(t, 1, c.table.Len())

	c.dispatch(pubsub.Notification{
		Pattern: c.directPattern,
		Channel: "ns:me:you:1:r",
		Payload: []byte("pong"),
	})

	got := <-results
	assert.NoError(t, got.err)
	assert.Equal(t, "you", got.sender)
	assert.Equal(t, []byte("pong"), got.payload)
	assert.Equal(t, 0, c.table.Len())
}

func TestDispatchReplyPublishesResponseChannel(t *testing.T) {
	transport := newMockTransport()
	c := newDispatchClient(t, transport)

	c.OnMessage(func(sender string, payload []byte, reply Reply) {
		require.NoError(t, reply.Send([]byte("pong")))
	})

	c.dispatch(pubsub.Notification{
		Pattern: c.directPattern,
		Channel: "ns:me:you:7",
		Payload: []byte("ping"),
	})

	payload, ok := transport.get("ns:you:me:7:r")
	require.True(t, ok, "no response published; got %d publishes", transport.count())
	assert.Equal(t, []byte("pong"), payload)
}

func TestDispatchBroadcastSkippedWithoutListener(t *testing.T) {
	transport := newMockTransport()
	c := newDispatchClient(t, transport)

	// No broadcast handler registered: even a well-formed broadcast is
	// dropped before decode, and nothing happens.
	c.dispatch(pubsub.Notification{
		Pattern: c.broadcastPattern,
		Channel: "ns::news::you",
		Payload: []byte("x"),
	})
}

func TestDispatchRoomRoutesByRoomName(t *testing.T) {
	transport := newMockTransport()
	c := newDispatchClient(t, transport)

	lobby := make(chan []byte, 1)
	_, err := c.ListenToRoom("lobby", func(sender string, payload []byte) {
		lobby <- payload
	})
	require.NoError(t, err)

	den := make(chan []byte, 1)
	_, err = c.ListenToRoom("den", func(sender string, payload []byte) {
		den <- payload
	})
	require.NoError(t, err)

	c.dispatch(pubsub.Notification{
		Pattern: "ns:room:lobby:*",
		Channel: "ns:room:lobby:you:3",
		Payload: []byte("hi lobby"),
	})

	assert.Equal(t, []byte("hi lobby"), <-lobby)
	select {
	case payload := <-den:
		t.Fatalf("den handler received lobby traffic: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishFailureSuppressedByDefault(t *testing.T) {
	transport := newMockTransport()
	transport.publishErr = errors.New("connection refused")

	c := newDispatchClient(t, transport)

	// Default policy: the error is logged and swallowed; the correlation
	// entry stays and times out like any unanswered send.
	results := make(chan outcome, 1)
	assert.NoError(t, c.SendMessage("you", []byte("ping"), collect(results)))
	assert.Equal(t, 1, c.table.Len())
}

func TestPublishFailureSurfacedOnRequest(t *testing.T) {
	transport := newMockTransport()
	transport.publishErr = errors.New("connection refused")

	c, err := New(transport, Options{
		Namespace:              "ns",
		ClientID:               "me",
		SurfaceTransportErrors: true,
	})
	require.NoError(t, err)
	defer c.Close()

	results := make(chan outcome, 1)
	err = c.SendMessage("you", []byte("ping"), collect(results))
	assert.Error(t, err)

	// The entry was withdrawn; no timer will fire for it.
	assert.Equal(t, 0, c.table.Len())

	assert.Error(t, c.Broadcast("kind", nil))
	assert.Error(t, c.SendRoomMessage("lobby", nil))
}
