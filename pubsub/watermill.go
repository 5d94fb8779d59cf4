package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	// firehoseTopic is the single GoChannel topic every publish lands on.
	// GoChannel only routes by exact topic name, so pattern matching happens
	// in the subscription pumps instead: each pattern subscription consumes
	// the whole firehose and filters it.
	firehoseTopic = "courier.firehose"

	// metaKeyChannel carries the concrete channel name through watermill's
	// message metadata.
	metaKeyChannel = "channel"

	// notificationBuffer is the size of each subscription's outbound buffer.
	notificationBuffer = 64
)

// GoChannelTransport is an in-process Transport built on watermill's
// GoChannel pub/sub. It supports any number of concurrent clients and is the
// transport used by the test suite and the demo CLI.
type GoChannelTransport struct {
	bus    *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewGoChannelTransport creates an in-memory transport. The caller owns it
// and must Close it; closing ends every subscription.
func NewGoChannelTransport() *GoChannelTransport {
	logger := watermill.NewStdLogger(false, false)
	bus := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: notificationBuffer},
		logger,
	)
	return &GoChannelTransport{
		bus:    bus,
		logger: logger,
	}
}

// Publish implements Transport. The channel name travels in message metadata
// so subscribers can match it against their patterns.
func (t *GoChannelTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaKeyChannel, channel)
	return t.bus.Publish(firehoseTopic, msg)
}

// SubscribePattern implements Transport. Each subscription runs its own pump
// goroutine that filters the firehose through Match and forwards hits.
func (t *GoChannelTransport) SubscribePattern(ctx context.Context, pattern string) (<-chan Notification, error) {
	messages, err := t.bus.Subscribe(ctx, firehoseTopic)
	if err != nil {
		return nil, err
	}

	out := make(chan Notification, notificationBuffer)
	go func() {
		defer close(out)
		for msg := range messages {
			channel := msg.Metadata.Get(metaKeyChannel)
			if !Match(pattern, channel) {
				msg.Ack()
				continue
			}
			n := Notification{
				Pattern: pattern,
				Channel: channel,
				Payload: msg.Payload,
			}
			select {
			case out <- n:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
		slog.Debug("pattern subscription ended", "pattern", pattern)
	}()

	return out, nil
}

// Close implements Transport. It shuts the GoChannel down, which closes every
// subscriber's message stream.
func (t *GoChannelTransport) Close() error {
	return t.bus.Close()
}
