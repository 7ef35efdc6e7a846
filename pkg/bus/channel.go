// Package bus provides an in-process event bus for single-instance deployments
// that run without NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ChannelBus implements events.Publisher and events.Subscriber on a watermill
// Go channel pub/sub. Every subscriber receives every event of its type.
type ChannelBus struct {
	pubsub *gochannel.GoChannel
	logger logger.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewChannelBus(log logger.ILogger) *ChannelBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChannelBus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewWatermillLogger(log)),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *ChannelBus) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(events.OccurredAtHeader, event.Timestamp().UTC().Format(time.RFC3339Nano))

	return b.pubsub.Publish(events.Subject(event.EventType()), msg)
}

// Subscribe starts a consumer goroutine. Handler errors are logged and the
// message acknowledged; there is no redelivery in-process.
func (b *ChannelBus) Subscribe(eventType, group string, handler events.Handler) error {
	messages, err := b.pubsub.Subscribe(b.ctx, events.Subject(eventType))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			b.dispatch(eventType, group, msg, handler)
		}
	}()
	return nil
}

func (b *ChannelBus) dispatch(eventType, group string, msg *message.Message, handler events.Handler) {
	defer msg.Ack()

	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		b.logger.Error("BUS", "Dropping undecodable event", map[string]interface{}{"type": eventType, "error": err.Error()})
		return
	}

	event := events.BaseEvent{
		Type:       eventType,
		Data:       payload,
		OccurredAt: events.ParseOccurredAt(msg.Metadata.Get(events.OccurredAtHeader)),
	}
	if err := handler(b.ctx, event); err != nil {
		b.logger.Error("BUS", "Event handler failed", map[string]interface{}{"type": eventType, "group": group, "error": err.Error()})
	}
}

// Close stops the consumers and waits for in-flight handlers.
func (b *ChannelBus) Close() {
	b.cancel()
	if err := b.pubsub.Close(); err != nil {
		b.logger.Warn("BUS", "Failed to close pub/sub", map[string]interface{}{"error": err.Error()})
	}
	b.wg.Wait()
}
