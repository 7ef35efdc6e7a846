package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"clinic-chat-be/internal/pkg/logger"
	"clinic-chat-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber consumes events through durable JetStream consumers, one per group.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.ILogger

	mu       sync.Mutex
	consumes []jetstream.ConsumeContext
}

func NewSubscriber(url string, log logger.ILogger) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, logger: log}, nil
}

func (s *Subscriber) Subscribe(eventType, group string, handler events.Handler) error {
	ctx := context.Background()
	subject := events.Subject(eventType)

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       group,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Data(), &payload); err != nil {
			s.logger.Error("NATS", "Dropping undecodable event", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			_ = msg.Term()
			return
		}

		event := events.BaseEvent{
			Type:       events.TypeFromSubject(msg.Subject()),
			Data:       payload,
			OccurredAt: events.ParseOccurredAt(msg.Headers().Get(events.OccurredAtHeader)),
		}

		if err := handler(context.Background(), event); err != nil {
			s.logger.Warn("NATS", "Handler failed, event will be redelivered", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	s.mu.Lock()
	s.consumes = append(s.consumes, cc)
	s.mu.Unlock()

	s.logger.Info("NATS", "Subscribed", map[string]interface{}{"subject": subject, "durable": group})
	return nil
}

func (s *Subscriber) Close() {
	s.mu.Lock()
	for _, cc := range s.consumes {
		cc.Stop()
	}
	s.consumes = nil
	s.mu.Unlock()

	if s.nc != nil {
		s.nc.Close()
	}
}
